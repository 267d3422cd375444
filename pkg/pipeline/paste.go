package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"roikit/internal/models"
	"roikit/pkg/anatomy"
	"roikit/pkg/casematch"
	"roikit/pkg/metadata"
	"roikit/pkg/nifti"
	"roikit/pkg/report"
	"roikit/pkg/roi"
	"roikit/pkg/visualization"
)

// Roles of the paste stage inputs
const (
	RolePred = "pred"
	RoleMeta = "meta"
	RoleRef  = "images"
)

// PasteParams configures the paste stage
type PasteParams struct {
	// PredDir holds ROI predictions named <CASE>.nii.gz
	PredDir string

	// MetaDir holds the sidecars written by the crop stage
	MetaDir string

	// ImagesDir holds the full-field reference images
	ImagesDir string

	// OutputDir receives one full-field labelmap per case
	OutputDir string

	Anatomy anatomy.Config
	IDWidth int

	// PreviewDir receives one PNG slice per case; empty disables previews
	PreviewDir   string
	PreviewScale int

	BatchParams
}

// PasteRunner places predictions back into full-field volumes and cleans them
type PasteRunner struct {
	params *PasteParams
	engine *anatomy.Engine
}

// NewPasteRunner validates the anatomy settings and creates a paste runner
func NewPasteRunner(params *PasteParams) (*PasteRunner, error) {
	engine, err := anatomy.NewEngine(params.Anatomy)
	if err != nil {
		return nil, err
	}
	return &PasteRunner{params: params, engine: engine}, nil
}

// MatchInputs correlates the three input directories by case ID
func MatchInputs(predDir, metaDir, imagesDir string, idWidth int) (*casematch.Result, error) {
	return casematch.Match(idWidth,
		casematch.Source{Role: RolePred, Dir: predDir, Suffixes: nifti.Extensions},
		casematch.Source{Role: RoleMeta, Dir: metaDir, Suffixes: []string{metadata.Extension}},
		casematch.Source{Role: RoleRef, Dir: imagesDir, Suffixes: nifti.Extensions},
	)
}

// Process pastes and post-processes every case present in all three inputs
func (r *PasteRunner) Process(ctx context.Context) (*Summary, error) {
	match, err := MatchInputs(r.params.PredDir, r.params.MetaDir, r.params.ImagesDir, r.params.IDWidth)
	if err != nil {
		return nil, err
	}
	slog.Info("Starting paste",
		"cases", len(match.Cases),
		"strategy", r.params.Anatomy.Strategy,
		"output", r.params.OutputDir)

	runID := report.NewRunID()
	results, runErr := runCases(ctx, r.params.BatchParams, match.Cases, r.processCase)
	summary := summarize(runID, "paste", len(match.Cases), results)

	if err := writeReport(r.params.ReportPath, summary); err != nil {
		return summary, fmt.Errorf("failed to write report: %w", err)
	}
	return summary, runErr
}

func (r *PasteRunner) processCase(_ context.Context, c models.Case) Result {
	name := nifti.TrimExt(filepath.Base(c.Path(RolePred)))

	pred, err := nifti.Load(c.Path(RolePred))
	if err != nil {
		return classify(c.ID, name, fmt.Errorf("failed to load prediction: %w", err))
	}
	meta, err := metadata.Load(c.Path(RoleMeta))
	if err != nil {
		return classify(c.ID, name, fmt.Errorf("failed to load metadata: %w", err))
	}
	ref, err := nifti.Load(c.Path(RoleRef))
	if err != nil {
		return classify(c.ID, name, fmt.Errorf("failed to load reference image: %w", err))
	}

	full, placement := roi.Paste(pred, meta, ref)
	cleaned, rep := r.engine.Apply(full)

	result := succeeded(c.ID, name)
	result.BBox = placement.Placed.String()
	result.Adjusted = placement.Adjusted()
	result.Warnings = placement.Warnings(meta, ref.Shape, pred.Shape)
	result.Classes = rep.Classes

	out := filepath.Join(r.params.OutputDir, name+".nii.gz")
	if err := nifti.Save(out, cleaned); err != nil {
		return failed(c.ID, name, err)
	}

	if r.params.PreviewDir != "" {
		if err := r.savePreview(name, cleaned, ref); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("preview not written: %v", err))
		}
	}

	for _, cr := range rep.Classes {
		slog.Debug("Class cleaned", "id", c.ID, "class", cr.Name,
			"input", cr.Input, "removed_components", cr.Components.Removed,
			"outside_parent", cr.OutsideParent, "final", cr.Final)
	}
	return result
}

func (r *PasteRunner) savePreview(name string, labels, ref *models.Volume) error {
	viewer, err := visualization.NewViewer(labels).WithFocus(r.params.Anatomy.Taxonomy.Organ.ID).WithBackground(ref)
	if err != nil {
		return err
	}
	scale := r.params.PreviewScale
	if scale < 1 {
		scale = 1
	}
	return viewer.SavePreview(filepath.Join(r.params.PreviewDir, name+".png"), 0, scale)
}
