package pipeline

import (
	"fmt"
	"io"
	"sort"
	"time"

	"roikit/pkg/anatomy"
	"roikit/pkg/report"
)

// Status is the terminal state of one case
type Status int

const (
	// Succeeded cases produced all their outputs
	Succeeded Status = iota
	// Skipped cases lacked an expected input file
	Skipped
	// Failed cases hit an error; the batch went on
	Failed
	// Fatal cases stop the batch; no further case is started
	Fatal
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the outcome of one case
type Result struct {
	ID       string
	Name     string
	Status   Status
	Reason   string
	Err      error
	Duration time.Duration

	// BBox is the crop box, or the region a prediction was placed in
	BBox string

	// Adjusted is set when the whole volume was used for lack of foreground,
	// or when a paste was clamped or clipped
	Adjusted bool

	// Warnings are non-fatal findings for operator review
	Warnings []string

	// Classes is the post-processing report of a pasted case
	Classes []anatomy.ClassReport
}

func succeeded(id, name string) Result {
	return Result{ID: id, Name: name, Status: Succeeded}
}

func skipped(id, name, reason string) Result {
	return Result{ID: id, Name: name, Status: Skipped, Reason: reason}
}

func failed(id, name string, err error) Result {
	return Result{ID: id, Name: name, Status: Failed, Reason: err.Error(), Err: err}
}

func fatal(id, name string, err error) Result {
	return Result{ID: id, Name: name, Status: Fatal, Reason: err.Error(), Err: err}
}

// Summary tallies the results of one batch run
type Summary struct {
	RunID   string
	Stage   string
	Results []Result

	Succeeded int
	Skipped   int
	Failed    int
	Fatal     int

	// NotAttempted counts matched cases left out by MaxCases or a fatal stop
	NotAttempted int
}

func summarize(runID, stage string, matched int, results []Result) *Summary {
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	s := &Summary{RunID: runID, Stage: stage, Results: results}
	for _, r := range results {
		switch r.Status {
		case Succeeded:
			s.Succeeded++
		case Skipped:
			s.Skipped++
		case Failed:
			s.Failed++
		case Fatal:
			s.Fatal++
		}
	}
	s.NotAttempted = matched - len(results)
	return s
}

// Print writes the per-case outcomes and the final tally
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintf(w, "%s summary (run %s)\n", s.Stage, s.RunID)
	fmt.Fprintln(w, "========================================")
	for _, r := range s.Results {
		if r.Status == Succeeded {
			continue
		}
		fmt.Fprintf(w, "  %-8s %s: %s\n", r.Status, r.ID, r.Reason)
	}
	fmt.Fprintf(w, "Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(w, "Skipped:   %d\n", s.Skipped)
	fmt.Fprintf(w, "Failed:    %d\n", s.Failed)
	if s.Fatal > 0 {
		fmt.Fprintf(w, "Fatal:     %d\n", s.Fatal)
	}
	if s.NotAttempted > 0 {
		fmt.Fprintf(w, "Not attempted: %d\n", s.NotAttempted)
	}
}

// Rows converts the results to ledger rows
func (s *Summary) Rows() []report.Row {
	rows := make([]report.Row, 0, len(s.Results))
	for _, r := range s.Results {
		row := report.Row{
			RunID:      s.RunID,
			Stage:      s.Stage,
			CaseID:     r.ID,
			Status:     r.Status.String(),
			Reason:     r.Reason,
			DurationMs: r.Duration.Milliseconds(),
			BBox:       r.BBox,
			Adjusted:   r.Adjusted,
		}
		for _, c := range r.Classes {
			row.ClassIDs = append(row.ClassIDs, int32(c.ID))
			row.ClassVoxels = append(row.ClassVoxels, int64(c.Final))
		}
		rows = append(rows, row)
	}
	return rows
}
