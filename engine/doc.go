// Package engine applies batches of item operations to a tenant's
// [Store].
//
// Reads (list, fetch) go straight to the store. Writes (append, modify,
// remove) take the optimistic path: the engine compares every submitted
// seq with the stored one and, if any item is stale, answers with a
// single refetch operation naming the stale items and their current seqs
// without writing anything. Otherwise each write is conditioned on the
// seq the engine observed, so a write racing another client also ends in
// a refetch. Stores implementing [BatchStore] apply the writes of one
// operation atomically.
//
// Failures are reported as [*OpError] values carrying a wire [Code].
package engine
