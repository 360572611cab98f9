// Package shard builds the DynamoDB partition keys of the item store.
package shard

import (
	"fmt"
	"hash/fnv"
)

// MaxShards is the largest supported shard count.
const MaxShards = 256

// Scoped prefixes key with its tenant. The tenant length is spelled out
// so that no tenant/key pair can collide with another.
func Scoped(tenant, key string) string {
	return fmt.Sprintf("%d:%s|%s", len(tenant), tenant, key)
}

// ChildrenPK computes the partition of the children index that holds
// the entry of childID under parentID. With numShards <= 1 every child of
// a parent goes to shard "00"; otherwise children are spread by a hash of
// their id.
func ChildrenPK(tenant, parentID, childID string, numShards int) string {
	return fmt.Sprintf("%s#%02x", Scoped(tenant, parentID), Of(childID, numShards))
}

// ChildrenPKs returns every partition of the children index that may
// hold children of parentID, in shard order.
func ChildrenPKs(tenant, parentID string, numShards int) []string {
	numShards = clamp(numShards)
	prefix := Scoped(tenant, parentID)
	pks := make([]string, numShards)
	for i := range pks {
		pks[i] = fmt.Sprintf("%s#%02x", prefix, i)
	}
	return pks
}

// Of returns the shard of key.
func Of(key string, numShards int) int {
	numShards = clamp(numShards)
	if numShards == 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(numShards))
}

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxShards {
		return MaxShards
	}
	return n
}
