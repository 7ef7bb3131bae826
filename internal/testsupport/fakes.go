package testsupport

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"foundry/internal/services"
	"foundry/internal/services/ledger"
)

// FakeUploader is an in-memory storage backend. Payloads are assigned
// sequential locators; FailFirst and FailAll inject errors.
type FakeUploader struct {
	mu       sync.Mutex
	uploads  int
	failures map[string]int

	// FailAlways makes every upload of payloads containing the given
	// substring fail permanently.
	FailAlways string
	// FailFirst makes the first N uploads fail with a transient error.
	FailFirst int
	// Cost is returned by EstimateCost per byte.
	Cost uint64
	// Funds is returned by Balance.
	Funds uint64
}

// NewFakeUploader builds a fake with ample funds and free uploads.
func NewFakeUploader() *FakeUploader {
	return &FakeUploader{Funds: math.MaxUint64, failures: map[string]int{}}
}

func (f *FakeUploader) Name() string { return "fake" }

func (f *FakeUploader) Upload(_ context.Context, payload []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailAlways != "" && strings.Contains(string(payload), f.FailAlways) {
		return "", services.Wrap(services.ErrPermanent, "fake", "upload", "injected permanent failure", nil)
	}
	if f.FailFirst > 0 {
		f.FailFirst--
		return "", services.Wrap(services.ErrTransient, "fake", "upload", "injected transient failure", nil)
	}

	f.uploads++
	return fmt.Sprintf("https://storage.test/%s/%d", contentType, f.uploads), nil
}

func (f *FakeUploader) EstimateCost(_ context.Context, totalBytes int64) (uint64, error) {
	return f.Cost * uint64(totalBytes), nil
}

func (f *FakeUploader) Balance(context.Context) (uint64, error) {
	return f.Funds, nil
}

// Uploads reports how many payloads were accepted.
func (f *FakeUploader) Uploads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

// FakeLedger is an in-memory ledger node. Writes land at their positions
// immediately unless DropNext or FailWrites is set; positions are
// independent, so a batch can register past an unwritten index.
type FakeLedger struct {
	mu           sync.Mutex
	collectionID string
	items        map[int]ledger.Item
	confirmed    map[string]bool
	writes       int
	seq          int

	// DropNext makes the next N WriteItems calls return a signature whose
	// transaction never confirms, while still applying the write. This
	// simulates the confirmation timeout a recheck must resolve.
	DropNext int
	// LoseNext makes the next N WriteItems calls return a signature whose
	// transaction neither confirms nor lands.
	LoseNext int
	// FailWrites makes every WriteItems call fail transiently.
	FailWrites bool
	// Funds is the payer balance reported by Balance.
	Funds uint64
}

// NewFakeLedger builds a funded fake ledger.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		items:     map[int]ledger.Item{},
		confirmed: map[string]bool{},
		Funds:     1_000_000_000,
	}
}

func (f *FakeLedger) PayerAddress() string { return "FakePayer11111111111111111111111" }

func (f *FakeLedger) Balance(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Funds, nil
}

func (f *FakeLedger) CollectionID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collectionID
}

// SetCollectionID mirrors the production client's cache adoption hook.
func (f *FakeLedger) SetCollectionID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collectionID = id
}

func (f *FakeLedger) InitializeCollection(_ context.Context, capacity int) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.collectionID = fmt.Sprintf("FakeCollection%d", capacity)
	signature := f.signatureLocked("init")
	f.confirmed[signature] = true
	return f.collectionID, signature, nil
}

func (f *FakeLedger) WriteItems(_ context.Context, startIndex int, items []ledger.Item) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWrites {
		return "", services.Wrap(services.ErrTransient, "fake", "write", "injected write failure", nil)
	}
	if startIndex < 0 {
		return "", services.Wrap(services.ErrPermanent, "fake", "write",
			fmt.Sprintf("negative start index %d", startIndex), nil)
	}

	f.writes++
	signature := f.signatureLocked("write")
	if f.LoseNext > 0 {
		f.LoseNext--
		f.confirmed[signature] = false
		return signature, nil
	}
	for i, item := range items {
		f.items[startIndex+i] = item
	}
	if f.DropNext > 0 {
		f.DropNext--
		f.confirmed[signature] = false
	} else {
		f.confirmed[signature] = true
	}
	return signature, nil
}

func (f *FakeLedger) Confirm(_ context.Context, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmed[signature], nil
}

func (f *FakeLedger) ReadState(context.Context) (ledger.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := make(map[int]ledger.Item, len(f.items))
	for index, item := range f.items {
		items[index] = item
	}
	return ledger.State{Items: items}, nil
}

func (f *FakeLedger) Withdraw(_ context.Context, collectionID string) (string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	signature := f.signatureLocked("withdraw")
	f.confirmed[signature] = true
	return signature, 1_000_000, nil
}

func (f *FakeLedger) ListCollections(context.Context) ([]ledger.CollectionFunds, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.collectionID == "" {
		return nil, nil
	}
	return []ledger.CollectionFunds{{Address: f.collectionID, Lamports: 1_000_000}}, nil
}

// Items returns a copy of the registered items keyed by position.
func (f *FakeLedger) Items() map[int]ledger.Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	items := make(map[int]ledger.Item, len(f.items))
	for index, item := range f.items {
		items[index] = item
	}
	return items
}

// SetItem registers content at a position directly, bypassing the write
// path. Tests use it to seed on-chain state that diverges from the cache.
func (f *FakeLedger) SetItem(index int, item ledger.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[index] = item
}

// TruncateItems drops every registered item at or beyond index, simulating
// divergence between the cache and the ledger.
func (f *FakeLedger) TruncateItems(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for position := range f.items {
		if position >= index {
			delete(f.items, position)
		}
	}
}

// Writes reports how many WriteItems calls were made.
func (f *FakeLedger) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FakeLedger) signatureLocked(kind string) string {
	f.seq++
	return fmt.Sprintf("sig-%s-%d", kind, f.seq)
}
