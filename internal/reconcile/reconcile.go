// Package reconcile compares the durable cache against the on-chain
// collection state and repairs divergence. Running it against an already
// consistent deployment changes nothing, so it is safe to invoke any
// number of times.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"foundry/internal/cache"
	"foundry/internal/logging"
	"foundry/internal/services/ledger"
)

// Action names one corrective step the reconciler took.
type Action struct {
	Index  int
	Kind   ActionKind
	Detail string
}

// ActionKind classifies a corrective step.
type ActionKind string

const (
	// ActionConfirm promoted a written entry whose item was found on chain.
	ActionConfirm ActionKind = "confirm"
	// ActionRollback demoted an entry claiming an on-chain presence the
	// ledger does not show.
	ActionRollback ActionKind = "rollback"
	// ActionRequeue reset an entry whose uploads were lost or never made.
	ActionRequeue ActionKind = "requeue"
)

// Result is the outcome of one reconcile pass.
type Result struct {
	Actions []Action
	// Faults are unrecoverable divergences: on-chain content that does
	// not match the cache. The affected indices are reported, everything
	// else proceeds.
	Faults []Fault
}

// Fault is an on-chain divergence the reconciler cannot repair.
type Fault struct {
	Index  int
	Detail string
}

// Clean reports whether the pass found nothing to do.
func (r Result) Clean() bool { return len(r.Actions) == 0 && len(r.Faults) == 0 }

// Reconciler drives the reconcile stage.
type Reconciler struct {
	store  *cache.Store
	svc    ledger.Service
	logger *slog.Logger
}

// New builds a reconciler.
func New(store *cache.Store, svc ledger.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "reconcile"),
	}
}

// statusAheadOfLinks reports whether an entry's status promises uploads
// its locators do not back, which happens when a cache file is restored
// from a partial copy.
func statusAheadOfLinks(entry cache.Entry) bool {
	if entry.Status.AtLeast(cache.StatusImageUploaded) && entry.ImageLink == "" {
		return true
	}
	return entry.Status.AtLeast(cache.StatusMetadataUploaded) && entry.MetadataLink == ""
}

// Pass runs one reconcile pass: read the on-chain state once, then walk
// every cache entry and repair what diverges.
//
// Three divergence classes are handled:
//   - the cache claims on-chain presence the ledger does not show: the
//     entry rolls back to metadata_uploaded so the writer re-submits it;
//   - the ledger shows an item the cache has not confirmed: the entry is
//     promoted to confirmed when the content matches; a written entry the
//     ledger contradicts is reported as a fault;
//   - an entry's status promises uploads its locators do not back (a
//     cache restored from a partial copy): the entry is reset so the
//     uploader redoes it from scratch.
func (r *Reconciler) Pass(ctx context.Context) (Result, error) {
	state, err := r.svc.ReadState(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	indices := r.store.Indices()
	sort.Ints(indices)

	known := make(map[int]bool, len(indices))
	for _, index := range indices {
		known[index] = true
		entry, _ := r.store.Entry(index)
		item, onChain := state.Items[index]

		switch {
		case statusAheadOfLinks(entry):
			if err := r.store.ForceRetry([]int{index}); err != nil {
				return result, err
			}
			result.Actions = append(result.Actions, Action{
				Index:  index,
				Kind:   ActionRequeue,
				Detail: "status claims uploads the entry does not hold",
			})

		case entry.Status.AtLeast(cache.StatusWritten) && !onChain:
			if err := r.store.Rollback(index, cache.StatusMetadataUploaded); err != nil {
				return result, err
			}
			result.Actions = append(result.Actions, Action{
				Index:  index,
				Kind:   ActionRollback,
				Detail: "cache claims on-chain presence the ledger does not show",
			})

		case onChain:
			if item.Name != entry.Name || item.URI != entry.MetadataLink {
				// Content the cache never claimed to have written is just
				// stale; the next write pass overwrites the position. Only
				// a written entry contradicted by the ledger is a fault.
				if entry.Status.AtLeast(cache.StatusWritten) {
					result.Faults = append(result.Faults, Fault{
						Index: index,
						Detail: fmt.Sprintf("on-chain item %q %q does not match cache %q %q",
							item.Name, item.URI, entry.Name, entry.MetadataLink),
					})
				}
				continue
			}
			if entry.Status != cache.StatusConfirmed {
				if err := r.store.Update(index, cache.Patch{Confirmed: true}); err != nil {
					return result, err
				}
				result.Actions = append(result.Actions, Action{
					Index:  index,
					Kind:   ActionConfirm,
					Detail: "item present on chain",
				})
			}
		}
	}

	// Positions registered on chain for which no asset exists mean the
	// collection account is shared with something else entirely. That is
	// never repairable from here.
	for _, index := range state.Indices() {
		if !known[index] {
			result.Faults = append(result.Faults, Fault{
				Index:  index,
				Detail: fmt.Sprintf("ledger holds item %q at position %d but no such asset is known", state.Items[index].Name, index),
			})
		}
	}

	for _, action := range result.Actions {
		r.logger.Info("reconcile action",
			logging.Int(logging.FieldIndex, action.Index),
			logging.String("action", string(action.Kind)),
			logging.String("detail", action.Detail))
	}
	for _, fault := range result.Faults {
		r.logger.Error("reconcile fault",
			logging.Int(logging.FieldIndex, fault.Index),
			logging.String("detail", fault.Detail))
	}
	return result, nil
}
