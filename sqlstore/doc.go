// Package sqlstore keeps item trees in a local SQLite database.
//
// One database holds every tenant. Items live in a single table keyed by
// (tenant, id); a per-tenant counter supplies seqs. Each batch of writes
// runs in one IMMEDIATE transaction, so a [Tenant] is an
// [engine.BatchStore].
//
// Removing an item tombstones it together with all of its live
// descendants in the same transaction. Tombstones keep their seq, so a
// client holding an older seq is told to refetch, and List cursors see
// the removal.
package sqlstore
