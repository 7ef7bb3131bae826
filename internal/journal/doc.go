// Package journal records every storage upload failure and on-chain
// submission attempt in a local SQLite database.
//
// The journal is an append-only audit trail, not a source of truth: the
// cache file decides what still needs doing, while the journal answers
// "what did we try, when, and how did it go" for the report command and for
// post-timeout duplicate-write investigation. Losing it loses history, not
// correctness.
package journal
