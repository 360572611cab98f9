package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsRemoved reports whether a raw items-table record is a tombstone.
func IsRemoved(raw map[string]types.AttributeValue) bool {
	v, ok := raw["removed_at"].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	return err == nil && n != 0
}

// LiveCondition is the condition expression that holds for a stored,
// not removed item.
func LiveCondition() string {
	return "attribute_exists(pk) AND attribute_not_exists(removed_at)"
}

// SeqCondition returns the condition expression and values that hold
// when the stored seq equals expected. Zero means the item must not
// exist yet.
func SeqCondition(expected uint64) (string, map[string]types.AttributeValue) {
	if expected == 0 {
		return "attribute_not_exists(pk)", nil
	}
	return "#seq = :expected", map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.FormatUint(expected, 10)},
	}
}

// tombstoneExpiry returns the TTL attribute for a tombstone created at
// now, or 0 when tombstones are kept forever.
func tombstoneExpiry(now time.Time, retention time.Duration) int64 {
	if retention <= 0 {
		return 0
	}
	return now.Add(retention).Unix()
}
