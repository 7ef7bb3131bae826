// Package uploader pushes asset files to the configured storage provider
// and records locators in the cache. It only touches assets whose cache
// entry still lacks a locator, so re-running after an interruption resumes
// instead of re-uploading.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"foundry/internal/assets"
	"foundry/internal/cache"
	"foundry/internal/journal"
	"foundry/internal/logging"
	"foundry/internal/services"
	"foundry/internal/services/storage"
)

// task is the per-asset unit of work handed to a worker.
type task struct {
	pair          assets.Pair
	needImage     bool
	needAnimation bool
	needMetadata  bool
}

// Result summarizes one run of the uploader.
type Result struct {
	Uploaded int
	Skipped  int
	Failed   []Failure
}

// Failure records an asset that exhausted its retries.
type Failure struct {
	Index int
	Err   error
}

// Uploader drives the upload stage.
type Uploader struct {
	set     *assets.Set
	store   *cache.Store
	journal *journal.Journal
	backend storage.Uploader
	workers int
	retry   services.RetryPolicy
	logger  *slog.Logger
}

// New builds an uploader. workers <= 0 selects one worker per CPU.
func New(set *assets.Set, store *cache.Store, jnl *journal.Journal, backend storage.Uploader, workers int, retry services.RetryPolicy, logger *slog.Logger) *Uploader {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Uploader{
		set:     set,
		store:   store,
		journal: jnl,
		backend: backend,
		workers: workers,
		retry:   retry,
		logger:  logging.NewComponentLogger(logger, "uploader"),
	}
}

// Preflight quotes the cost of the outstanding uploads and checks the
// payer's balance on the provider. A zero quote means the provider does
// not meter uploads.
func (u *Uploader) Preflight(ctx context.Context) error {
	pending := u.pendingBytes()
	if pending == 0 {
		return nil
	}

	cost, err := u.backend.EstimateCost(ctx, pending)
	if err != nil {
		return err
	}
	if cost == 0 {
		return nil
	}

	balance, err := u.backend.Balance(ctx)
	if err != nil {
		return err
	}
	if balance < cost {
		return services.Wrap(services.ErrInsufficientFunds, "uploader", "preflight",
			fmt.Sprintf("provider %s: need %d, have %d", u.backend.Name(), cost, balance), nil)
	}

	u.logger.Info("upload preflight passed",
		logging.String(logging.FieldProvider, u.backend.Name()),
		logging.Int64("pending_bytes", pending),
		logging.Uint64("cost", cost),
		logging.Uint64("balance", balance))
	return nil
}

// Run uploads every outstanding file. Individual asset failures are
// collected, not fatal; the caller decides whether partial progress is
// acceptable.
func (u *Uploader) Run(ctx context.Context) (Result, error) {
	tasks := u.collectTasks()

	result := Result{Skipped: u.set.Len() - len(tasks)}
	if len(tasks) == 0 {
		u.logger.Info("all assets already uploaded")
		return result, nil
	}

	u.logger.Info("starting uploads",
		logging.String(logging.FieldProvider, u.backend.Name()),
		logging.Int("outstanding", len(tasks)),
		logging.Int("workers", u.workers))

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan task)
	)

	for i := 0; i < u.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				err := u.process(ctx, t)
				mu.Lock()
				if err != nil {
					result.Failed = append(result.Failed, Failure{Index: t.pair.Index, Err: err})
				} else {
					result.Uploaded++
				}
				mu.Unlock()
			}
		}()
	}

	for _, t := range tasks {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return result, ctx.Err()
		case queue <- t:
		}
	}
	close(queue)
	wg.Wait()

	u.logger.Info("uploads finished",
		logging.Int("uploaded", result.Uploaded),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", len(result.Failed)))
	return result, nil
}

// collectTasks diffs the asset set against the cache and returns the
// assets that still need at least one upload.
func (u *Uploader) collectTasks() []task {
	var tasks []task
	for _, pair := range u.set.Pairs() {
		entry, ok := u.store.Entry(pair.Index)
		if !ok {
			continue
		}
		t := task{
			pair:          pair,
			needImage:     entry.ImageLink == "",
			needAnimation: pair.HasAnimation() && entry.AnimationLink == "",
			needMetadata:  entry.MetadataLink == "",
		}
		if t.needImage || t.needAnimation || t.needMetadata {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func (u *Uploader) pendingBytes() int64 {
	var total int64
	for _, t := range u.collectTasks() {
		if t.needImage {
			total += t.pair.MediaSize
		}
		if t.needAnimation {
			total += t.pair.AnimationSize
		}
		if t.needMetadata {
			total += t.pair.MetadataSize
		}
	}
	return total
}

// process uploads one asset's outstanding files in dependency order:
// media first, then the metadata that embeds the media locators. Each
// completed upload is persisted immediately so a crash mid-asset loses at
// most the in-flight file.
func (u *Uploader) process(ctx context.Context, t task) error {
	ctx = services.WithIndex(ctx, t.pair.Index)
	logger := u.logger.With(logging.Int(logging.FieldIndex, t.pair.Index))

	if t.needImage {
		link, err := u.uploadFile(ctx, logger, t.pair.MediaPath, t.pair.MediaContentType(), t.pair.Index)
		if err != nil {
			return err
		}
		if err := u.store.Update(t.pair.Index, cache.Patch{ImageLink: link}); err != nil {
			return err
		}
		t.needMetadata = true
	}

	if t.needAnimation {
		link, err := u.uploadFile(ctx, logger, t.pair.AnimationPath, t.pair.AnimationContentType(), t.pair.Index)
		if err != nil {
			return err
		}
		if err := u.store.Update(t.pair.Index, cache.Patch{AnimationLink: link}); err != nil {
			return err
		}
		t.needMetadata = true
	}

	if !t.needMetadata {
		return nil
	}

	entry, _ := u.store.Entry(t.pair.Index)
	payload, err := assets.RewriteMetadata(t.pair.MetadataPath, entry.ImageLink, entry.AnimationLink)
	if err != nil {
		return err
	}
	link, err := u.uploadPayload(ctx, logger, payload, "application/json", t.pair.Index)
	if err != nil {
		return err
	}
	return u.store.Update(t.pair.Index, cache.Patch{MetadataLink: link})
}

func (u *Uploader) uploadFile(ctx context.Context, logger *slog.Logger, path, contentType string, index int) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "uploader", "read", path, err)
	}
	return u.uploadPayload(ctx, logger, payload, contentType, index)
}

func (u *Uploader) uploadPayload(ctx context.Context, logger *slog.Logger, payload []byte, contentType string, index int) (string, error) {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)

	var link string
	attempt := 0
	err := u.retry.Do(ctx, logger, "upload", func(ctx context.Context) error {
		attempt++
		var uploadErr error
		link, uploadErr = u.backend.Upload(ctx, payload, contentType)
		return uploadErr
	})

	outcome := journal.OutcomeUploaded
	detail := ""
	if err != nil {
		outcome = journal.OutcomeFailed
		detail = err.Error()
	}
	record := journal.Record{
		RequestID:  requestID,
		Kind:       journal.KindUpload,
		AssetIndex: index,
		Attempt:    attempt,
		Provider:   u.backend.Name(),
		Outcome:    outcome,
		Detail:     detail,
	}
	if jErr := u.journal.Append(ctx, record); jErr != nil {
		logger.Warn("journal append failed", logging.Error(jErr))
	}

	if err != nil {
		if errors.Is(err, services.ErrInsufficientFunds) {
			return "", err
		}
		return "", fmt.Errorf("upload via %s: %w", u.backend.Name(), err)
	}
	return link, nil
}
