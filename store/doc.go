// Package store keeps tenants' item trees in DynamoDB.
//
// Three tables are used:
//
//   - items: one record per item, keyed by "pk" ("<len>:<tenant>|<id>").
//     Removed items stay as tombstones with "removed_at" set so that their
//     seq survives; with [Config.TombstoneRetention] set, DynamoDB TTL
//     deletes them later.
//   - children: one entry per (parent, child), keyed by "pk" and
//     "child_id". Entries carry the child's latest seq and a "removed"
//     flag, so listings since a cursor report removals too.
//   - counters: one seq counter per tenant, keyed by "pk".
//
// Every write of a batch runs in a single TransactWriteItems call. Puts
// are conditioned on the seq the caller observed, and appends check that
// their parent is live:
//
//	st := store.New(client, store.DefaultConfig())
//	seq, err := st.Tenant("acme").AddItem(ctx, it, 0)
//
// # Removal
//
// RemoveItem only tombstones the item itself. Descendants are removed by
// the stream package, which reacts to tombstones on the items table's
// stream and calls [Store.RemoveLive] for every live child.
//
// # Sharding
//
// Use [DefaultConfig] for small datasets (NumShards=1, single queries).
// Increase NumShards when a single parent receives many writes:
//
//	cfg := store.DefaultConfig()
//	cfg.NumShards = 16 // 16,000 writes/sec per parent
//
// # Errors
//
// Conditional failures are reported with the engine package's errors:
//
//   - engine.ErrConcurrentModification: the stored seq moved on
//   - engine.ErrItemNotFound: modify or remove of an item that is not live
//   - engine.ErrParentNotFound: append under a missing or removed parent
//
// [ErrBatchTooLarge] and [ErrCorruptRecord] are specific to this package.
package store
