// Package pipeline drives the crop and paste stages over a batch of cases.
//
// Cases are independent: each worker loads, processes and writes one case
// at a time and owns every buffer it touches. A per-case error is recorded
// in that case's Result and the batch continues; only a Fatal result stops
// the scheduling of further cases.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"roikit/internal/models"
	"roikit/pkg/report"
)

// ErrFatalCase is returned by Process when a case ended the batch
var ErrFatalCase = errors.New("batch stopped by a fatal case")

// BatchParams are the scheduling settings shared by both stages
type BatchParams struct {
	// NumWorkers bounds the cases processed in parallel; 0 means one per CPU
	NumWorkers int

	// MaxCases bounds the cases attempted; 0 means all
	MaxCases int

	// ReportPath receives the Parquet ledger of the run; empty disables it
	ReportPath string
}

type caseFunc func(ctx context.Context, c models.Case) Result

// runCases processes cases with a bounded pool. Results arrive over a
// channel in completion order. The returned error is ErrFatalCase when a
// case was fatal, or the context error when the run was cancelled.
func runCases(ctx context.Context, bp BatchParams, cases []models.Case, fn caseFunc) ([]Result, error) {
	if bp.MaxCases > 0 && len(cases) > bp.MaxCases {
		slog.Info("Limiting batch", "matched", len(cases), "max_cases", bp.MaxCases)
		cases = cases[:bp.MaxCases]
	}
	workers := bp.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	resultsChan := make(chan Result, len(cases))

	for i, c := range cases {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// the slot may have been granted after a fatal case
			if gctx.Err() != nil {
				return nil
			}
			slog.Info("Processing case", "id", c.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(cases)))

			start := time.Now()
			r := fn(gctx, c)
			r.Duration = time.Since(start)
			logResult(r)
			resultsChan <- r

			if r.Status == Fatal {
				return fmt.Errorf("%w: case %s: %v", ErrFatalCase, c.ID, r.Err)
			}
			return nil
		})
	}

	err := g.Wait()
	close(resultsChan)

	results := make([]Result, 0, len(cases))
	for r := range resultsChan {
		results = append(results, r)
	}
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

func logResult(r Result) {
	for _, w := range r.Warnings {
		slog.Warn(w, "id", r.ID)
	}
	switch r.Status {
	case Succeeded:
		slog.Info("Case done", "id", r.ID, "duration", r.Duration.Round(time.Millisecond))
	case Skipped:
		slog.Warn("Case skipped", "id", r.ID, "reason", r.Reason)
	default:
		slog.Error("Case failed", "id", r.ID, "status", r.Status, "error", r.Err)
	}
}

// classify maps a per-case error to a result: missing inputs skip the case,
// anything else fails it.
func classify(id, name string, err error) Result {
	if errors.Is(err, os.ErrNotExist) {
		return skipped(id, name, err.Error())
	}
	return failed(id, name, err)
}

// writeReport stores the ledger when a report path is configured
func writeReport(path string, s *Summary) error {
	if path == "" {
		return nil
	}
	if err := report.Write(path, s.Rows()); err != nil {
		return err
	}
	slog.Info("Report written", "path", path, "rows", len(s.Results))
	return nil
}
