// Package pipeline orchestrates a deployment end to end: validate the
// asset set, upload outstanding files, write outstanding items to the
// ledger, then reconcile the cache against the on-chain state. Every
// stage derives its work from the durable cache, so an interrupted run
// resumes from where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"foundry/internal/assets"
	"foundry/internal/cache"
	"foundry/internal/config"
	"foundry/internal/journal"
	"foundry/internal/logging"
	"foundry/internal/reconcile"
	"foundry/internal/report"
	"foundry/internal/services"
	"foundry/internal/services/ledger"
	"foundry/internal/services/storage"
	"foundry/internal/uploader"
	"foundry/internal/writer"
)

// State names the stage a run is in.
type State string

const (
	StateValidating  State = "validating"
	StateUploading   State = "uploading"
	StateWriting     State = "writing"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Outcome is the final report of one run.
type Outcome struct {
	State          State
	Summary        report.Summary
	UploadFailures []uploader.Failure
	BlockedBatches []writer.Failure
	Faults         []reconcile.Fault
}

// Pipeline wires the stages together.
type Pipeline struct {
	cfg        *config.Config
	logger     *slog.Logger
	backend    storage.Uploader
	svc        ledger.Service
	lock       *flock.Flock
	forceRetry []int
}

// Option customizes a pipeline, mainly to substitute fakes in tests.
type Option func(*Pipeline)

// WithStorage replaces the configured storage backend.
func WithStorage(backend storage.Uploader) Option {
	return func(p *Pipeline) { p.backend = backend }
}

// WithLedger replaces the configured ledger service.
func WithLedger(svc ledger.Service) Option {
	return func(p *Pipeline) { p.svc = svc }
}

// WithForceRetry resets the given indices to pending before the run,
// discarding their locators and addresses. This is the only status
// regression an operator can request.
func WithForceRetry(indices []int) Option {
	return func(p *Pipeline) { p.forceRetry = indices }
}

// New constructs a pipeline with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("pipeline requires config and logger")
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		lock:   flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.svc == nil {
		svc, err := ledger.NewClient(cfg.Ledger, logger)
		if err != nil {
			return nil, err
		}
		p.svc = svc
	}
	if p.backend == nil {
		backend, err := storage.New(cfg.Storage, p.svc.PayerAddress(), logger)
		if err != nil {
			return nil, err
		}
		p.backend = backend
	}
	return p, nil
}

// Run drives a deployment through every stage and returns the outcome.
// The returned error is non-nil only for aborts; per-item failures are
// reported through the outcome.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	outcome := Outcome{State: StateFailed}

	ok, err := p.lock.TryLock()
	if err != nil {
		return outcome, fmt.Errorf("acquire deployment lock: %w", err)
	}
	if !ok {
		return outcome, services.Wrap(services.ErrConfiguration, "pipeline", "lock",
			"another deployment is already running against this project", nil)
	}
	defer func() {
		if err := p.lock.Unlock(); err != nil {
			p.logger.Warn("failed to release deployment lock", logging.Error(err))
		}
	}()

	p.transition(StateValidating)
	set, store, jnl, err := p.validate()
	if err != nil {
		return outcome, err
	}
	defer func() {
		if err := jnl.Close(); err != nil {
			p.logger.Warn("failed to close journal", logging.Error(err))
		}
	}()

	p.transition(StateUploading)
	up := uploader.New(set, store, jnl, p.backend, p.cfg.Deploy.Workers, p.cfg.Deploy.RetryPolicy(), p.logger)
	if err := up.Preflight(ctx); err != nil {
		return outcome, err
	}
	uploadResult, err := up.Run(ctx)
	outcome.UploadFailures = uploadResult.Failed
	if err != nil {
		return outcome, err
	}

	wr := writer.New(store, jnl, p.svc, p.cfg.Deploy, p.logger)
	rec := reconcile.New(store, p.svc, p.logger)

	// Write and reconcile alternate: a reconcile pass that rolled entries
	// back hands them straight to the next write pass. The pass budget
	// bounds how long a flapping ledger can keep the loop alive.
	passes := p.cfg.Deploy.ReconcilePasses
	if passes <= 0 {
		passes = 3
	}
	for pass := 1; pass <= passes; pass++ {
		p.transition(StateWriting)
		writeResult, err := wr.Run(ctx)
		outcome.BlockedBatches = writeResult.Blocked
		if err != nil {
			return outcome, err
		}

		p.transition(StateReconciling)
		recResult, err := rec.Pass(ctx)
		if err != nil {
			return outcome, err
		}
		outcome.Faults = recResult.Faults
		if recResult.Clean() || !needsRewrite(recResult) {
			break
		}
	}

	outcome.Summary = report.Build(store)
	outcome.State = p.finalState(outcome)
	p.transition(outcome.State)
	return outcome, nil
}

// validate scans the asset set, opens the durable state, and checks the
// working directories before any money moves.
func (p *Pipeline) validate() (*assets.Set, *cache.Store, *journal.Journal, error) {
	for _, dir := range []string{p.cfg.Paths.AssetsDir, p.cfg.Paths.CacheDir} {
		if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
			return nil, nil, nil, services.Wrap(services.ErrConfiguration, "pipeline", "preflight",
				fmt.Sprintf("directory %s is not accessible", dir), err)
		}
	}

	set, err := assets.Scan(p.cfg.Paths.AssetsDir)
	if err != nil {
		return nil, nil, nil, err
	}
	p.logger.Info("asset set validated",
		logging.Int("assets", set.Len()),
		logging.Int64("total_bytes", set.TotalUploadBytes()))

	store, err := cache.Open(p.cfg.CachePath(), p.cfg.Ledger.ProgramID, p.cfg.Ledger.CollectionID, p.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.EnsureEntries(set); err != nil {
		return nil, nil, nil, err
	}
	if len(p.forceRetry) > 0 {
		if err := store.ForceRetry(p.forceRetry); err != nil {
			return nil, nil, nil, err
		}
		p.logger.Info("reset entries for retry", logging.Int("count", len(p.forceRetry)))
	}
	if id := store.CollectionID(); id != "" {
		if setter, ok := p.svc.(interface{ SetCollectionID(string) }); ok {
			setter.SetCollectionID(id)
		}
	}

	jnl, err := journal.Open(p.cfg.JournalPath())
	if err != nil {
		return nil, nil, nil, err
	}
	return set, store, jnl, nil
}

func (p *Pipeline) finalState(outcome Outcome) State {
	if len(outcome.Faults) > 0 {
		return StateFailed
	}
	if outcome.Summary.Complete() && len(outcome.UploadFailures) == 0 && len(outcome.BlockedBatches) == 0 {
		return StateDone
	}
	return StateFailed
}

func (p *Pipeline) transition(state State) {
	p.logger.Info("pipeline state",
		logging.String(logging.FieldStage, string(state)),
		logging.String(logging.FieldEventType, "stage_transition"))
}

// needsRewrite reports whether a reconcile pass produced rollbacks that
// the writer has to pick up again.
func needsRewrite(result reconcile.Result) bool {
	for _, action := range result.Actions {
		if action.Kind == reconcile.ActionRollback || action.Kind == reconcile.ActionRequeue {
			return true
		}
	}
	return false
}

// Reconcile runs a single reconcile pass outside a full deployment,
// repairing cache/ledger divergence in place. It takes the same run lock
// as Run since it mutates the cache.
func (p *Pipeline) Reconcile(ctx context.Context) (reconcile.Result, report.Summary, error) {
	ok, err := p.lock.TryLock()
	if err != nil {
		return reconcile.Result{}, report.Summary{}, fmt.Errorf("acquire deployment lock: %w", err)
	}
	if !ok {
		return reconcile.Result{}, report.Summary{}, services.Wrap(services.ErrConfiguration, "pipeline", "lock",
			"another deployment is already running against this project", nil)
	}
	defer func() {
		if err := p.lock.Unlock(); err != nil {
			p.logger.Warn("failed to release deployment lock", logging.Error(err))
		}
	}()

	_, store, jnl, err := p.validate()
	if err != nil {
		return reconcile.Result{}, report.Summary{}, err
	}
	defer func() {
		if err := jnl.Close(); err != nil {
			p.logger.Warn("failed to close journal", logging.Error(err))
		}
	}()

	result, err := reconcile.New(store, p.svc, p.logger).Pass(ctx)
	if err != nil {
		return result, report.Summary{}, err
	}
	return result, report.Build(store), nil
}

// Withdraw drains a collection account back to the payer. An incomplete
// deployment refuses to withdraw unless forced, since draining the
// account strands the remaining writes.
func (p *Pipeline) Withdraw(ctx context.Context, collectionID string, force bool) (string, uint64, error) {
	if collectionID == "" {
		collectionID = p.svc.CollectionID()
	}
	if collectionID == "" {
		store, err := cache.Open(p.cfg.CachePath(), p.cfg.Ledger.ProgramID, p.cfg.Ledger.CollectionID, p.logger)
		if err != nil {
			return "", 0, err
		}
		collectionID = store.CollectionID()
	}
	if collectionID == "" {
		return "", 0, services.Wrap(services.ErrValidation, "pipeline", "withdraw",
			"no collection account known; pass one explicitly", nil)
	}

	if !force {
		store, err := cache.Open(p.cfg.CachePath(), p.cfg.Ledger.ProgramID, p.cfg.Ledger.CollectionID, p.logger)
		if err == nil {
			summary := report.Build(store)
			if summary.Total > 0 && !summary.Complete() {
				return "", 0, services.Wrap(services.ErrValidation, "pipeline", "withdraw",
					fmt.Sprintf("%d of %d items not confirmed; withdrawing now strands them (use --force to override)",
						len(summary.Incomplete), summary.Total), nil)
			}
		}
	}

	signature, lamports, err := p.svc.Withdraw(ctx, collectionID)
	if err != nil {
		return "", 0, err
	}

	jnl, err := journal.Open(p.cfg.JournalPath())
	if err == nil {
		record := journal.Record{
			RequestID: uuid.NewString(),
			Kind:      journal.KindWithdraw,
			Signature: signature,
			Outcome:   journal.OutcomeConfirmed,
			Detail:    fmt.Sprintf("collection %s drained %d", collectionID, lamports),
		}
		if jErr := jnl.Append(ctx, record); jErr != nil {
			p.logger.Warn("journal append failed", logging.Error(jErr))
		}
		if cErr := jnl.Close(); cErr != nil {
			p.logger.Warn("failed to close journal", logging.Error(cErr))
		}
	}

	p.logger.Info("withdrew collection funds",
		logging.String("collection", collectionID),
		logging.Uint64("lamports", lamports),
		logging.String("signature", signature))
	return signature, lamports, nil
}

// ListCollections enumerates the payer's collection accounts.
func (p *Pipeline) ListCollections(ctx context.Context) ([]ledger.CollectionFunds, error) {
	return p.svc.ListCollections(ctx)
}
