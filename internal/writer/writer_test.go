package writer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"foundry/internal/assets"
	"foundry/internal/cache"
	"foundry/internal/config"
	"foundry/internal/journal"
	"foundry/internal/logging"
	"foundry/internal/services/ledger"
	"foundry/internal/testsupport"
)

type fixture struct {
	cfg     *config.Config
	store   *cache.Store
	journal *journal.Journal
	svc     *testsupport.FakeLedger
}

func newFixture(t *testing.T, count int, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	testsupport.WriteAssetSet(t, cfg.Paths.AssetsDir, count)

	set, err := assets.Scan(cfg.Paths.AssetsDir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.EnsureEntries(set); err != nil {
		t.Fatalf("EnsureEntries: %v", err)
	}
	return &fixture{
		cfg:     cfg,
		store:   store,
		journal: testsupport.MustOpenJournal(t, cfg),
		svc:     testsupport.NewFakeLedger(),
	}
}

// markUploaded advances entries to metadata_uploaded, the state the upload
// stage leaves them in.
func (f *fixture) markUploaded(t *testing.T, indices ...int) {
	t.Helper()
	for _, index := range indices {
		patch := cache.Patch{
			ImageLink:    fmt.Sprintf("https://storage.test/image/%d", index),
			MetadataLink: fmt.Sprintf("https://storage.test/metadata/%d", index),
		}
		if err := f.store.Update(index, patch); err != nil {
			t.Fatalf("Update(%d): %v", index, err)
		}
	}
}

func (f *fixture) writer() *Writer {
	return New(f.store, f.journal, f.svc, f.cfg.Deploy, logging.NewNop())
}

func TestRunWritesAllItems(t *testing.T) {
	f := newFixture(t, 3)
	f.markUploaded(t, 0, 1, 2)

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 3 || len(result.Blocked) != 0 {
		t.Fatalf("result = %+v", result)
	}

	items := f.svc.Items()
	if len(items) != 3 {
		t.Fatalf("ledger items = %d, want 3", len(items))
	}
	for i, item := range items {
		entry, _ := f.store.Entry(i)
		if item.Name != entry.Name || item.URI != entry.MetadataLink {
			t.Fatalf("item %d = %+v, entry = %+v", i, item, entry)
		}
		if entry.Status != cache.StatusWritten {
			t.Fatalf("index %d status = %s", i, entry.Status)
		}
		if !strings.HasPrefix(entry.OnChainAddress, f.svc.CollectionID()+"#") {
			t.Fatalf("index %d address = %q", i, entry.OnChainAddress)
		}
		if entry.Status == cache.StatusConfirmed {
			t.Fatalf("index %d confirmed before reconcile", i)
		}
	}
}

func TestRunCreatesCollectionOnFirstUse(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)

	if _, err := f.writer().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.svc.CollectionID() == "" {
		t.Fatal("collection was not created")
	}
	if f.store.CollectionID() != f.svc.CollectionID() {
		t.Fatalf("cache collection %q, ledger %q", f.store.CollectionID(), f.svc.CollectionID())
	}
}

func TestRunReusesExistingCollection(t *testing.T) {
	f := newFixture(t, 1)
	f.markUploaded(t, 0)
	f.svc.SetCollectionID("ExistingCollection")

	if _, err := f.writer().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.svc.CollectionID() != "ExistingCollection" {
		t.Fatalf("collection replaced: %q", f.svc.CollectionID())
	}
	entry, _ := f.store.Entry(0)
	if !strings.HasPrefix(entry.OnChainAddress, "ExistingCollection#") {
		t.Fatalf("address = %q", entry.OnChainAddress)
	}
}

func TestRunSecondRunWritesNothing(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)
	w := f.writer()

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	writes := f.svc.Writes()

	result, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Written != 0 || result.Skipped != 2 {
		t.Fatalf("result = %+v", result)
	}
	if f.svc.Writes() != writes {
		t.Fatal("second run resubmitted a batch")
	}
}

func TestPackBatchesRespectsWireLimit(t *testing.T) {
	f := newFixture(t, 4, testsupport.WithBatchWireLimit(80))
	f.markUploaded(t, 0, 1, 2, 3)

	batches, skipped := f.writer().packBatches()
	if skipped != 0 {
		t.Fatalf("skipped = %d", skipped)
	}
	if len(batches) < 2 {
		t.Fatalf("batches = %d, want at least 2", len(batches))
	}
	next := 0
	for _, batch := range batches {
		if batch.StartIndex != next {
			t.Fatalf("batch starts at %d, want %d", batch.StartIndex, next)
		}
		if size := ledger.BatchWireSize(batch.Items); size > 80 {
			t.Fatalf("batch %d-%d wire size %d exceeds limit", batch.StartIndex, batch.EndIndex(), size)
		}
		next = batch.EndIndex() + 1
	}
	if next != 4 {
		t.Fatalf("batches cover up to %d, want 4", next)
	}
}

func TestPackBatchesBreaksOnGap(t *testing.T) {
	f := newFixture(t, 4)
	f.markUploaded(t, 0, 1, 3)
	// Index 2 stays pending, so 3 cannot join the first batch.

	batches, skipped := f.writer().packBatches()
	if skipped != 0 {
		t.Fatalf("skipped = %d", skipped)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if batches[0].StartIndex != 0 || len(batches[0].Items) != 2 {
		t.Fatalf("first batch = %+v", batches[0])
	}
	if batches[1].StartIndex != 3 || len(batches[1].Items) != 1 {
		t.Fatalf("second batch = %+v", batches[1])
	}
}

func TestPackBatchesSkipsOversizedItem(t *testing.T) {
	f := newFixture(t, 1, testsupport.WithBatchWireLimit(30))
	if err := f.store.Update(0, cache.Patch{
		ImageLink:    "https://storage.test/image/0",
		MetadataLink: "https://storage.test/metadata/very-long-locator-that-never-fits-anywhere",
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	batches, skipped := f.writer().packBatches()
	if len(batches) != 0 {
		t.Fatalf("batches = %+v, want none", batches)
	}
	if skipped != 1 {
		t.Fatalf("skipped = %d, want 1", skipped)
	}
}

func TestRunRecheckFindsLandedBatch(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)
	// The write applies but its confirmation never arrives. The recheck
	// before the retry must discover the items on chain and not submit
	// the batch a second time.
	f.svc.DropNext = 1

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 2 || len(result.Blocked) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if writes := f.svc.Writes(); writes != 1 {
		t.Fatalf("writes = %d, want 1", writes)
	}
	if items := f.svc.Items(); len(items) != 2 {
		t.Fatalf("ledger items = %d, want 2", len(items))
	}
	for i := 0; i < 2; i++ {
		entry, _ := f.store.Entry(i)
		if entry.Status != cache.StatusWritten {
			t.Fatalf("index %d status = %s", i, entry.Status)
		}
	}
}

func TestRunResubmitsLostBatch(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)
	// The first submission vanishes entirely. The recheck finds nothing on
	// chain and the batch is submitted again.
	f.svc.LoseNext = 1

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 2 || len(result.Blocked) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if writes := f.svc.Writes(); writes != 2 {
		t.Fatalf("writes = %d, want 2", writes)
	}
	if items := f.svc.Items(); len(items) != 2 {
		t.Fatalf("ledger items = %d, want 2", len(items))
	}
}

func TestRunBlocksBatchAfterExhaustedAttempts(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)
	f.svc.SetCollectionID("ExistingCollection")
	f.svc.FailWrites = true
	f.cfg.Deploy.BatchRetryAttempts = 2

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 0 {
		t.Fatalf("written = %d", result.Written)
	}
	if len(result.Blocked) != 1 {
		t.Fatalf("blocked = %+v", result.Blocked)
	}
	blocked := result.Blocked[0]
	if blocked.StartIndex != 0 || blocked.EndIndex != 1 {
		t.Fatalf("blocked range = %d-%d", blocked.StartIndex, blocked.EndIndex)
	}
	for i := 0; i < 2; i++ {
		entry, _ := f.store.Entry(i)
		if entry.Status != cache.StatusMetadataUploaded {
			t.Fatalf("index %d status = %s, want metadata_uploaded", i, entry.Status)
		}
	}
}

func TestRunWritesPastUnuploadedIndex(t *testing.T) {
	f := newFixture(t, 3)
	// Index 1 never finished uploading. Indices 0 and 2 must still land at
	// their positions; the gap does not hold them back.
	f.markUploaded(t, 0, 2)

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 2 || len(result.Blocked) != 0 {
		t.Fatalf("result = %+v", result)
	}

	items := f.svc.Items()
	if len(items) != 2 {
		t.Fatalf("ledger items = %d, want 2", len(items))
	}
	if _, ok := items[1]; ok {
		t.Fatal("position 1 registered without an upload")
	}
	for _, index := range []int{0, 2} {
		entry, _ := f.store.Entry(index)
		if items[index].URI != entry.MetadataLink {
			t.Fatalf("position %d = %+v, entry = %+v", index, items[index], entry)
		}
		if entry.Status != cache.StatusWritten {
			t.Fatalf("index %d status = %s", index, entry.Status)
		}
	}
}

func TestRunOverwritesStaleContent(t *testing.T) {
	f := newFixture(t, 1)
	f.markUploaded(t, 0)
	f.svc.SetCollectionID("ExistingCollection")
	// The position still holds the item from before the asset was edited.
	f.svc.SetItem(0, ledger.Item{Name: "Item #0", URI: "https://storage.test/metadata/old"})

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 1 || len(result.Blocked) != 0 {
		t.Fatalf("result = %+v", result)
	}
	entry, _ := f.store.Entry(0)
	if got := f.svc.Items()[0].URI; got != entry.MetadataLink {
		t.Fatalf("position 0 holds %q, want %q", got, entry.MetadataLink)
	}
}

func TestRunChecksJournalBeforeResubmitting(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)
	f.svc.SetCollectionID("ExistingCollection")

	// A previous run submitted this batch and died before the confirmation
	// reached the cache. The journal remembers the signed attempt and the
	// items sit on chain; the batch must not be written a second time.
	for i := 0; i < 2; i++ {
		entry, _ := f.store.Entry(i)
		f.svc.SetItem(i, ledger.Item{Name: entry.Name, URI: entry.MetadataLink})
	}
	record := journal.Record{
		RequestID:  "prior-run",
		Kind:       journal.KindWriteBatch,
		StartIndex: 0,
		EndIndex:   1,
		Attempt:    1,
		Signature:  "sig-prior",
		Outcome:    journal.OutcomeTimeout,
	}
	if err := f.journal.Append(context.Background(), record); err != nil {
		t.Fatalf("Append: %v", err)
	}

	result, err := f.writer().Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Written != 2 || len(result.Blocked) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if writes := f.svc.Writes(); writes != 0 {
		t.Fatalf("writes = %d, want 0", writes)
	}
	for i := 0; i < 2; i++ {
		entry, _ := f.store.Entry(i)
		if entry.Status != cache.StatusWritten {
			t.Fatalf("index %d status = %s", i, entry.Status)
		}
	}
}

func TestRunJournalsBatchOutcomes(t *testing.T) {
	f := newFixture(t, 2)
	f.markUploaded(t, 0, 1)

	if _, err := f.writer().Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	records, err := f.journal.BatchAttempts(context.Background(), 1)
	if err != nil {
		t.Fatalf("BatchAttempts: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	record := records[0]
	if record.Kind != journal.KindWriteBatch {
		t.Fatalf("kind = %q", record.Kind)
	}
	if record.Outcome != journal.OutcomeConfirmed {
		t.Fatalf("outcome = %q", record.Outcome)
	}
	if record.Signature == "" || record.RequestID == "" {
		t.Fatalf("record missing identifiers: %+v", record)
	}
}
