// Package item defines the records exchanged between sync clients and the
// server: versioned items, their short projection, and operations.
//
// An [Item] has an id, a parent id (empty for root-level items), a
// store-assigned sequence number and a map of scalar [Value] fields. The
// sequence number strictly increases with every successful mutation of the
// item; clients echo it back so the server can detect stale writes.
//
// [Item.Merge] overlays one version of an item onto another. Merging items
// with different ids is a programming error and fails with
// [ErrInvalidArgument].
package item
