package main

import (
	"errors"
	"strings"
	"testing"

	"foundry/internal/cache"
	"foundry/internal/pipeline"
	"foundry/internal/reconcile"
	"foundry/internal/report"
	"foundry/internal/uploader"
	"foundry/internal/writer"
)

func TestRenderOutcomeComplete(t *testing.T) {
	outcome := pipeline.Outcome{
		State: pipeline.StateDone,
		Summary: report.Summary{
			CollectionID: "Collection1111",
			Total:        3,
			Counts:       map[cache.Status]int{cache.StatusConfirmed: 3},
		},
	}

	var buf strings.Builder
	renderOutcome(&buf, outcome)
	out := buf.String()

	if !strings.Contains(out, "done") {
		t.Fatalf("output missing state:\n%s", out)
	}
	if !strings.Contains(out, "Collection1111") {
		t.Fatalf("output missing collection:\n%s", out)
	}
	if !strings.Contains(out, "confirmed") || !strings.Contains(out, "3") {
		t.Fatalf("output missing status row:\n%s", out)
	}
}

func TestRenderOutcomeFailures(t *testing.T) {
	outcome := pipeline.Outcome{
		State: pipeline.StateFailed,
		Summary: report.Summary{
			Total:  3,
			Counts: map[cache.Status]int{cache.StatusPending: 1, cache.StatusConfirmed: 2},
		},
		UploadFailures: []uploader.Failure{{Index: 1, Err: errors.New("boom")}},
		BlockedBatches: []writer.Failure{{StartIndex: 2, EndIndex: 2, Err: errors.New("stuck")}},
		Faults:         []reconcile.Fault{{Index: 0, Detail: "content mismatch"}},
	}

	var buf strings.Builder
	renderOutcome(&buf, outcome)
	out := buf.String()

	if !strings.Contains(out, "Upload failures: [1]") {
		t.Fatalf("output missing upload failures:\n%s", out)
	}
	if !strings.Contains(out, "Blocked batch 2-2") {
		t.Fatalf("output missing blocked batch:\n%s", out)
	}
	if !strings.Contains(out, "Consistency fault at 0") {
		t.Fatalf("output missing fault:\n%s", out)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable(
		[]string{"Status", "Items"},
		[][]string{{"pending", "12"}, {"confirmed", "3"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	if !strings.Contains(out, "pending") || !strings.Contains(out, "confirmed") {
		t.Fatalf("table missing rows:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("empty table should render nothing")
	}
}
