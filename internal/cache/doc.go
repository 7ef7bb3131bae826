// Package cache persists per-asset deployment state in a durable JSON record
// file and acts as the single source of truth for what has already happened
// across runs.
//
// Every mutation goes through the Store's serialized update path and is
// written to disk (temp file + rename) before the call returns, so the file
// on disk is always a valid resumption point. Statuses only move forward;
// the two sanctioned exceptions are the operator-forced retry reset and the
// reconciler's rollback of items whose on-chain write was lost.
//
// A header records the program and collection identifiers the cache belongs
// to; opening a cache against a different run is a fatal error, as is a
// corrupt file. Silent data loss is never acceptable in this layer.
package cache
