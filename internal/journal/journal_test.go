package journal_test

import (
	"context"
	"path/filepath"
	"testing"

	"foundry/internal/journal"
)

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { jnl.Close() })
	return jnl
}

func TestAppendAndRecent(t *testing.T) {
	jnl := openJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := jnl.Append(ctx, journal.Record{
			RequestID:  "req",
			Kind:       journal.KindUpload,
			AssetIndex: i,
			Provider:   "bundlr",
			Outcome:    journal.OutcomeUploaded,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	records, err := jnl.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].AssetIndex != 2 {
		t.Fatalf("newest record should come first, got index %d", records[0].AssetIndex)
	}
	if records[0].Attempt != 1 {
		t.Fatalf("attempt should default to 1, got %d", records[0].Attempt)
	}
	if records[0].CreatedAt.IsZero() {
		t.Fatal("created_at not recorded")
	}
}

func TestBatchAttemptsCoverIndex(t *testing.T) {
	jnl := openJournal(t)
	ctx := context.Background()

	batches := []struct {
		start, end int
		outcome    string
	}{
		{0, 4, journal.OutcomeTimeout},
		{0, 4, journal.OutcomeConfirmed},
		{5, 9, journal.OutcomeConfirmed},
	}
	for i, batch := range batches {
		err := jnl.Append(ctx, journal.Record{
			RequestID:  "req",
			Kind:       journal.KindWriteBatch,
			StartIndex: batch.start,
			EndIndex:   batch.end,
			Attempt:    i + 1,
			Signature:  "sig",
			Outcome:    batch.outcome,
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	attempts, err := jnl.BatchAttempts(ctx, 3)
	if err != nil {
		t.Fatalf("BatchAttempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts covering index 3, got %d", len(attempts))
	}
	if attempts[0].Outcome != journal.OutcomeTimeout || attempts[1].Outcome != journal.OutcomeConfirmed {
		t.Fatalf("attempts out of order: %+v", attempts)
	}

	none, err := jnl.BatchAttempts(ctx, 42)
	if err != nil {
		t.Fatalf("BatchAttempts: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no attempts for uncovered index, got %d", len(none))
	}
}

func TestStatsGroupsByKindAndOutcome(t *testing.T) {
	jnl := openJournal(t)
	ctx := context.Background()

	records := []journal.Record{
		{RequestID: "a", Kind: journal.KindUpload, Outcome: journal.OutcomeUploaded},
		{RequestID: "b", Kind: journal.KindUpload, Outcome: journal.OutcomeUploaded},
		{RequestID: "c", Kind: journal.KindUpload, Outcome: journal.OutcomeFailed},
		{RequestID: "d", Kind: journal.KindWriteBatch, Outcome: journal.OutcomeConfirmed},
	}
	for _, record := range records {
		if err := jnl.Append(ctx, record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	stats, err := jnl.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[journal.KindUpload][journal.OutcomeUploaded] != 2 {
		t.Fatalf("stats = %v", stats)
	}
	if stats[journal.KindUpload][journal.OutcomeFailed] != 1 {
		t.Fatalf("stats = %v", stats)
	}
	if stats[journal.KindWriteBatch][journal.OutcomeConfirmed] != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	jnl, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := jnl.Append(ctx, journal.Record{RequestID: "r", Kind: journal.KindUpload, Outcome: journal.OutcomeUploaded}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := jnl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("history lost on reopen: %d records", len(records))
	}
}
