package engine

import (
	"context"

	"github.com/jacentio/arbor/item"
)

// Store is one tenant's item tree.
//
// Every successful mutation assigns the item a new seq drawn from a
// counter shared by the whole tenant, so seqs also order changes across
// siblings. Mutators take the seq the caller observed for the item (0
// when absent) and fail with ErrConcurrentModification when the stored
// seq no longer matches.
type Store interface {
	// EnumerateItems returns the children of parentID whose seq exceeds
	// since, removed children included. An empty parentID lists roots.
	EnumerateItems(ctx context.Context, since uint64, parentID string) ([]item.ShortItem, error)

	// LoadItem returns a live item. Removed and unknown ids report false.
	LoadItem(ctx context.Context, id string) (item.Item, bool, error)

	// SeqNum returns the stored seq of id, removed items included, or 0
	// when the id was never stored.
	SeqNum(ctx context.Context, id string) (uint64, error)

	// AddItem stores it as a live item, replacing any previous version.
	AddItem(ctx context.Context, it item.Item, expected uint64) (uint64, error)

	// ModifyItem replaces the fields of a live item. The stored parent is
	// kept. Fails with ErrItemNotFound when the item is not live.
	ModifyItem(ctx context.Context, it item.Item, expected uint64) (uint64, error)

	// RemoveItem tombstones a live item. Fails with ErrItemNotFound when
	// the item is not live.
	RemoveItem(ctx context.Context, id string, expected uint64) (uint64, error)
}

// BatchStore is a Store that can apply several mutations atomically.
// Either every mutation commits and ApplyBatch returns their new seqs in
// order, or none does.
type BatchStore interface {
	Store
	ApplyBatch(ctx context.Context, muts []Mutation) ([]uint64, error)
}

// Mutation is one conditional write.
type Mutation struct {
	// Kind is KindAppend, KindModify or KindRemove.
	Kind item.Kind

	// Item is the submitted item. Only its ID is used for removals.
	Item item.Item

	// Expected is the seq the write is conditioned on.
	Expected uint64
}

// Apply runs m against st without a transaction.
func (m Mutation) Apply(ctx context.Context, st Store) (uint64, error) {
	switch m.Kind {
	case item.KindAppend:
		return st.AddItem(ctx, m.Item, m.Expected)
	case item.KindModify:
		return st.ModifyItem(ctx, m.Item, m.Expected)
	case item.KindRemove:
		return st.RemoveItem(ctx, m.Item.ID, m.Expected)
	default:
		return 0, ErrUnsupportedMutation
	}
}
