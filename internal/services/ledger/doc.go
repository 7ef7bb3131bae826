// Package ledger talks to the on-chain collection program through its fixed
// instruction interface.
//
// The program itself is an already-deployed external service; this package
// only builds, signs, and submits write transactions, reads the collection
// account's item list back, and moves funds. Wire sizes are exposed so the
// writer can pack batches against the transaction payload limit.
package ledger
