// Package report assembles run summaries from the cache and journal for
// operator-facing output.
package report

import (
	"context"
	"sort"

	"foundry/internal/cache"
	"foundry/internal/journal"
)

// Summary is the deployment state as reflected by the cache.
type Summary struct {
	CollectionID string
	Total        int
	Counts       map[cache.Status]int
	// Incomplete lists every index not yet confirmed, in ascending order.
	Incomplete []int
}

// Complete reports whether every item reached confirmed.
func (s Summary) Complete() bool {
	return s.Total > 0 && s.Counts[cache.StatusConfirmed] == s.Total
}

// Build reads the current cache state into a summary.
func Build(store *cache.Store) Summary {
	summary := Summary{
		CollectionID: store.CollectionID(),
		Total:        store.Len(),
		Counts:       store.Counts(),
	}
	for _, index := range store.Indices() {
		entry, _ := store.Entry(index)
		if entry.Status != cache.StatusConfirmed {
			summary.Incomplete = append(summary.Incomplete, index)
		}
	}
	sort.Ints(summary.Incomplete)
	return summary
}

// Activity is the recent submission history with per-kind outcome totals.
type Activity struct {
	Recent []journal.Record
	Stats  map[string]map[string]int
}

// BuildActivity reads the submission journal.
func BuildActivity(ctx context.Context, jnl *journal.Journal, limit int) (Activity, error) {
	recent, err := jnl.Recent(ctx, limit)
	if err != nil {
		return Activity{}, err
	}
	stats, err := jnl.Stats(ctx)
	if err != nil {
		return Activity{}, err
	}
	return Activity{Recent: recent, Stats: stats}, nil
}
