// Package writer registers uploaded items on the ledger. Items are packed
// into contiguous, size-bounded batches and submitted one at a time in
// ascending index order. A confirmation timeout triggers an on-chain
// re-check before any retry, so a batch that actually landed is never
// submitted twice.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"foundry/internal/cache"
	"foundry/internal/config"
	"foundry/internal/journal"
	"foundry/internal/logging"
	"foundry/internal/services"
	"foundry/internal/services/ledger"
)

// Batch is a contiguous run of items small enough for one transaction.
type Batch struct {
	StartIndex int
	Items      []ledger.Item
}

// EndIndex returns the last index covered by the batch.
func (b Batch) EndIndex() int { return b.StartIndex + len(b.Items) - 1 }

// Result summarizes one run of the writer.
type Result struct {
	Written int
	Skipped int
	Blocked []Failure
}

// Failure records a batch that could not be written.
type Failure struct {
	StartIndex int
	EndIndex   int
	Err        error
}

// Writer drives the on-chain write stage.
type Writer struct {
	store   *cache.Store
	journal *journal.Journal
	svc     ledger.Service
	cfg     config.Deploy
	logger  *slog.Logger
}

// New builds a writer.
func New(store *cache.Store, jnl *journal.Journal, svc ledger.Service, cfg config.Deploy, logger *slog.Logger) *Writer {
	return &Writer{
		store:   store,
		journal: jnl,
		svc:     svc,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "writer"),
	}
}

// Run writes every uploaded-but-unwritten item. The collection account is
// created on first use. Batches that exhaust their retries block, leaving
// their items untouched for a later run.
func (w *Writer) Run(ctx context.Context) (Result, error) {
	if err := w.ensureCollection(ctx); err != nil {
		return Result{}, err
	}

	batches, skipped := w.packBatches()
	result := Result{Skipped: skipped}
	if len(batches) == 0 {
		w.logger.Info("all items already written")
		return result, nil
	}

	w.logger.Info("starting ledger writes",
		logging.Int("batches", len(batches)),
		logging.Int("skipped", skipped))

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := w.writeBatch(ctx, batch); err != nil {
			if services.IsFatal(err) {
				return result, err
			}
			w.logger.Error("batch blocked",
				logging.Int("start_index", batch.StartIndex),
				logging.Int("end_index", batch.EndIndex()),
				logging.Error(err))
			result.Blocked = append(result.Blocked, Failure{
				StartIndex: batch.StartIndex,
				EndIndex:   batch.EndIndex(),
				Err:        err,
			})
			continue
		}
		result.Written += len(batch.Items)
	}

	w.logger.Info("ledger writes finished",
		logging.Int("written", result.Written),
		logging.Int("blocked", len(result.Blocked)))
	return result, nil
}

func (w *Writer) ensureCollection(ctx context.Context) error {
	if w.svc.CollectionID() != "" {
		return nil
	}

	collectionID, signature, err := w.svc.InitializeCollection(ctx, w.store.Len())
	if err != nil {
		return err
	}
	confirmed, err := ledger.ConfirmWithTimeout(ctx, w.svc, signature, w.confirmTimeout(), w.pollInterval())
	if err != nil {
		return err
	}
	if !confirmed {
		return services.Wrap(services.ErrTransient, "writer", "initialize",
			fmt.Sprintf("collection creation %s not confirmed in time", signature), nil)
	}
	return w.store.SetCollectionID(collectionID)
}

// packBatches walks the cache in index order and greedily packs every
// item at metadata_uploaded into contiguous batches whose wire size stays
// inside the configured limit. A gap (an index not yet eligible) always
// starts a new batch.
func (w *Writer) packBatches() ([]Batch, int) {
	indices := w.store.Indices()
	sort.Ints(indices)

	var (
		batches []Batch
		current *Batch
		skipped int
	)
	flush := func() {
		if current != nil && len(current.Items) > 0 {
			batches = append(batches, *current)
		}
		current = nil
	}

	for _, index := range indices {
		entry, _ := w.store.Entry(index)
		if entry.Status != cache.StatusMetadataUploaded {
			if entry.Status.AtLeast(cache.StatusWritten) {
				skipped++
			}
			flush()
			continue
		}

		item := ledger.Item{Name: entry.Name, URI: entry.MetadataLink}
		if current != nil {
			contiguous := index == current.StartIndex+len(current.Items)
			fits := ledger.BatchWireSize(append(current.Items, item)) <= w.cfg.BatchWireLimit
			if !contiguous || !fits {
				flush()
			}
		}
		if current == nil {
			if item.WireSize()+ledgerOverhead() > w.cfg.BatchWireLimit {
				// A single oversized item can never be written.
				skipped++
				continue
			}
			current = &Batch{StartIndex: index}
		}
		current.Items = append(current.Items, item)
	}
	flush()
	return batches, skipped
}

func ledgerOverhead() int {
	return ledger.BatchWireSize(nil)
}

// writeBatch submits one batch with bounded retries. Before any retry it
// re-reads the on-chain state; if the batch's items are already present
// the earlier submission landed and the cache is advanced without a
// resubmission.
func (w *Writer) writeBatch(ctx context.Context, batch Batch) error {
	logger := w.logger.With(
		logging.Int("start_index", batch.StartIndex),
		logging.Int("end_index", batch.EndIndex()))

	var lastErr error
	for attempt := 1; attempt <= w.attempts(); attempt++ {
		if attempt > 1 || w.submittedBefore(ctx, batch, logger) {
			landed, err := w.alreadyLanded(ctx, batch)
			if err != nil {
				return err
			}
			if landed {
				logger.Info("batch found on chain after recheck", logging.Int("attempt", attempt))
				return w.markWritten(batch)
			}
		}

		err := w.submitOnce(ctx, batch, attempt, logger)
		if err == nil {
			return w.markWritten(batch)
		}
		if services.IsFatal(err) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("batch %d-%d: %w", batch.StartIndex, batch.EndIndex(), lastErr)
}

// submitOnce performs a single submit-and-confirm cycle and journals the
// outcome.
func (w *Writer) submitOnce(ctx context.Context, batch Batch, attempt int, logger *slog.Logger) error {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)

	record := journal.Record{
		RequestID:  requestID,
		Kind:       journal.KindWriteBatch,
		StartIndex: batch.StartIndex,
		EndIndex:   batch.EndIndex(),
		Attempt:    attempt,
	}

	signature, err := w.svc.WriteItems(ctx, batch.StartIndex, batch.Items)
	if err != nil {
		record.Outcome = journal.OutcomeFailed
		record.Detail = err.Error()
		w.appendJournal(ctx, logger, record)
		return err
	}
	record.Signature = signature

	confirmed, err := ledger.ConfirmWithTimeout(ctx, w.svc, signature, w.confirmTimeout(), w.pollInterval())
	if err != nil {
		record.Outcome = journal.OutcomeFailed
		record.Detail = err.Error()
		w.appendJournal(ctx, logger, record)
		return err
	}
	if !confirmed {
		record.Outcome = journal.OutcomeTimeout
		w.appendJournal(ctx, logger, record)
		return services.Wrap(services.ErrTransient, "writer", "confirm",
			fmt.Sprintf("transaction %s not confirmed within %s", signature, w.confirmTimeout()), nil)
	}

	record.Outcome = journal.OutcomeConfirmed
	w.appendJournal(ctx, logger, record)
	logger.Info("batch confirmed",
		logging.Int("items", len(batch.Items)),
		logging.String("signature", signature))
	return nil
}

// submittedBefore reports whether an earlier run journalled a signed
// submission covering this batch. Such a transaction may have landed
// after the run died, so the on-chain state is checked before writing
// again.
func (w *Writer) submittedBefore(ctx context.Context, batch Batch, logger *slog.Logger) bool {
	records, err := w.journal.BatchAttempts(ctx, batch.StartIndex)
	if err != nil {
		logger.Warn("journal lookup failed", logging.Error(err))
		return false
	}
	for _, record := range records {
		if record.Signature != "" && record.Outcome != journal.OutcomeFailed {
			return true
		}
	}
	return false
}

// alreadyLanded reports whether every item of the batch is present on
// chain, meaning a previous submission succeeded despite the timeout.
// A position holding different content counts as not landed; the
// resubmission overwrites it.
func (w *Writer) alreadyLanded(ctx context.Context, batch Batch) (bool, error) {
	state, err := w.svc.ReadState(ctx)
	if err != nil {
		return false, err
	}
	for i, item := range batch.Items {
		got, ok := state.Items[batch.StartIndex+i]
		if !ok || got != item {
			return false, nil
		}
	}
	return true, nil
}

// markWritten records the on-chain address for every item of a landed
// batch. Promotion to confirmed happens in the reconcile stage once the
// account state has been read back.
func (w *Writer) markWritten(batch Batch) error {
	for i := range batch.Items {
		index := batch.StartIndex + i
		address := fmt.Sprintf("%s#%d", w.svc.CollectionID(), index)
		if err := w.store.Update(index, cache.Patch{OnChainAddress: address}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) appendJournal(ctx context.Context, logger *slog.Logger, record journal.Record) {
	if err := w.journal.Append(ctx, record); err != nil {
		logger.Warn("journal append failed", logging.Error(err))
	}
}

func (w *Writer) attempts() int {
	if w.cfg.BatchRetryAttempts > 0 {
		return w.cfg.BatchRetryAttempts
	}
	return 3
}

func (w *Writer) confirmTimeout() time.Duration {
	return time.Duration(w.cfg.ConfirmTimeout) * time.Second
}

func (w *Writer) pollInterval() time.Duration {
	interval := time.Duration(w.cfg.ConfirmPollInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return interval
}
