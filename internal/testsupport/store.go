package testsupport

import (
	"testing"

	"foundry/internal/cache"
	"foundry/internal/config"
	"foundry/internal/journal"
	"foundry/internal/logging"
)

// MustOpenStore opens the durable cache for tests.
func MustOpenStore(t testing.TB, cfg *config.Config) *cache.Store {
	t.Helper()

	store, err := cache.Open(cfg.CachePath(), cfg.Ledger.ProgramID, cfg.Ledger.CollectionID, logging.NewNop())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	return store
}

// MustOpenJournal opens the submission journal for tests and registers
// cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Journal {
	t.Helper()

	jnl, err := journal.Open(cfg.JournalPath())
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		jnl.Close()
	})
	return jnl
}
