package report

import (
	"context"
	"testing"

	"foundry/internal/assets"
	"foundry/internal/cache"
	"foundry/internal/journal"
	"foundry/internal/testsupport"
)

func TestBuildSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteAssetSet(t, cfg.Paths.AssetsDir, 3)

	set, err := assets.Scan(cfg.Paths.AssetsDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.EnsureEntries(set); err != nil {
		t.Fatalf("EnsureEntries: %v", err)
	}
	if err := store.Update(0, cache.Patch{
		ImageLink:    "https://storage.test/image/0",
		MetadataLink: "https://storage.test/metadata/0",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	summary := Build(store)
	if summary.Total != 3 {
		t.Fatalf("total = %d", summary.Total)
	}
	if summary.Counts[cache.StatusPending] != 2 || summary.Counts[cache.StatusMetadataUploaded] != 1 {
		t.Fatalf("counts = %+v", summary.Counts)
	}
	if len(summary.Incomplete) != 3 {
		t.Fatalf("incomplete = %v", summary.Incomplete)
	}
	if summary.Complete() {
		t.Fatal("summary claims completion")
	}
}

func TestSummaryCompleteRequiresEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	summary := Build(store)
	if summary.Complete() {
		t.Fatal("empty cache reported complete")
	}
}

func TestBuildActivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jnl := testsupport.MustOpenJournal(t, cfg)

	records := []journal.Record{
		{RequestID: "r1", Kind: journal.KindUpload, AssetIndex: 0, Outcome: journal.OutcomeUploaded},
		{RequestID: "r2", Kind: journal.KindUpload, AssetIndex: 1, Outcome: journal.OutcomeFailed, Detail: "boom"},
		{RequestID: "r3", Kind: journal.KindWriteBatch, StartIndex: 0, EndIndex: 1, Outcome: journal.OutcomeConfirmed},
	}
	for _, record := range records {
		if err := jnl.Append(context.Background(), record); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	activity, err := BuildActivity(context.Background(), jnl, 2)
	if err != nil {
		t.Fatalf("BuildActivity: %v", err)
	}
	if len(activity.Recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(activity.Recent))
	}
	if activity.Stats[journal.KindUpload][journal.OutcomeUploaded] != 1 {
		t.Fatalf("stats = %+v", activity.Stats)
	}
	if activity.Stats[journal.KindUpload][journal.OutcomeFailed] != 1 {
		t.Fatalf("stats = %+v", activity.Stats)
	}
}
