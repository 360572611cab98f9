package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/internal/codec"
	"github.com/jacentio/arbor/item"
)

// record is one item in the items table.
type record struct {
	PK       string `dynamodbav:"pk"`
	Tenant   string `dynamodbav:"tenant"`
	ID       string `dynamodbav:"id"`
	ParentID string `dynamodbav:"parent_id"`
	Seq      uint64 `dynamodbav:"seq"`

	// Fields is the CBOR encoding of the item's fields.
	Fields []byte `dynamodbav:"fields,omitempty"`

	// RemovedAt is the Unix time of removal; zero for live items.
	RemovedAt int64 `dynamodbav:"removed_at,omitempty"`

	// TTL is the DynamoDB expiry of a tombstone.
	TTL int64 `dynamodbav:"ttl,omitempty"`
}

func (r *record) live() bool { return r != nil && r.RemovedAt == 0 }

func (r *record) item() (item.Item, error) {
	it := item.New(r.ID, r.ParentID, r.Seq)
	if len(r.Fields) == 0 {
		return it, nil
	}
	if err := codec.Unmarshal(r.Fields, &it.Fields); err != nil {
		return item.Item{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, r.ID, err)
	}
	return it, nil
}

func newRecord(tenant string, it item.Item, seq uint64) (record, error) {
	r := record{
		PK:       itemPK(tenant, it.ID),
		Tenant:   tenant,
		ID:       it.ID,
		ParentID: it.ParentID,
		Seq:      seq,
	}
	if len(it.Fields) > 0 {
		blob, err := codec.Marshal(it.Fields)
		if err != nil {
			return record{}, fmt.Errorf("encode fields of %q: %w", it.ID, err)
		}
		r.Fields = blob
	}
	return r, nil
}

func decodeRecord(raw map[string]types.AttributeValue) (*record, error) {
	if raw == nil {
		return nil, nil
	}
	var r record
	if err := attributevalue.UnmarshalMap(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &r, nil
}

// childEntry is one item in the children table. Entries of removed
// children stay so that listings report the removal.
type childEntry struct {
	PK      string `dynamodbav:"pk"`
	ChildID string `dynamodbav:"child_id"`
	Seq     uint64 `dynamodbav:"seq"`
	Removed bool   `dynamodbav:"removed,omitempty"`
	TTL     int64  `dynamodbav:"ttl,omitempty"`
}

// Child is a child of an item as recorded in the children table.
type Child struct {
	ID      string
	Seq     uint64
	Removed bool
}
