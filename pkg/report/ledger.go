// Package report writes the per-case outcome ledger of a batch run as a
// Parquet file, one row per case.
package report

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
)

// Row is one case outcome
type Row struct {
	RunID      string `parquet:"run_id"`
	Stage      string `parquet:"stage"`
	CaseID     string `parquet:"case_id"`
	Status     string `parquet:"status"`
	Reason     string `parquet:"reason"`
	DurationMs int64  `parquet:"duration_ms"`

	// BBox is the crop or placement box, empty when none was computed
	BBox string `parquet:"bbox"`

	// Adjusted is set when the crop fell back to the whole volume or the
	// paste had to clamp or clip the recorded box
	Adjusted bool `parquet:"adjusted"`

	// ClassIDs and ClassVoxels are parallel lists of final voxel counts per class
	ClassIDs    []int32 `parquet:"class_ids,list"`
	ClassVoxels []int64 `parquet:"class_voxels,list"`
}

// NewRunID returns a fresh identifier for one batch run
func NewRunID() string {
	return uuid.New().String()
}

// Write stores rows at path, replacing any existing file
func Write(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[Row](f)
	if _, err := w.Write(rows); err != nil {
		w.Close()
		return fmt.Errorf("failed to write report rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish report: %w", err)
	}

	slog.Debug("Wrote report", "path", path, "rows", len(rows))
	return f.Close()
}

// Read loads every row of a ledger written by Write
func Read(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	rows := make([]Row, 0, pf.NumRows())
	for {
		// fresh batch each time, rows keep references to their list columns
		batch := make([]Row, 64)
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report rows: %w", err)
		}
	}
	return rows, nil
}
