package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"roikit/internal/models"
	"roikit/pkg/casematch"
	"roikit/pkg/metadata"
	"roikit/pkg/nifti"
	"roikit/pkg/report"
	"roikit/pkg/roi"
)

// ChannelSuffix marks the first input channel of a reference image name
const ChannelSuffix = "_0000"

// Roles of the crop stage inputs
const (
	RoleImage = "images"
	RoleMask  = "masks"
)

// CropParams configures the crop stage
type CropParams struct {
	// ImagesDir holds full-field images named <CASE>_0000.nii.gz
	ImagesDir string

	// MasksDir holds coarse masks named <CASE>.nii.gz
	MasksDir string

	// OutputDirs each receive a copy of every cropped image
	OutputDirs []string

	// MetaDir receives one <CASE>.json sidecar per cropped case
	MetaDir string

	Options        roi.CropOptions
	MaskThreshold  float64
	MetadataLayout metadata.Layout
	IDWidth        int

	BatchParams
}

// CropRunner cuts every image to the padded box of its coarse mask
type CropRunner struct {
	params *CropParams
	store  *metadata.Store
}

// NewCropRunner creates a crop runner with the provided parameters
func NewCropRunner(params *CropParams) *CropRunner {
	return &CropRunner{
		params: params,
		store:  metadata.NewStore(params.MetaDir, params.MetadataLayout),
	}
}

// Process crops every image that has a mask. Images without a mask are
// skipped. A shape mismatch between an image and its mask is fatal.
func (r *CropRunner) Process(ctx context.Context) (*Summary, error) {
	if len(r.params.OutputDirs) == 0 {
		return nil, fmt.Errorf("at least one output directory is required")
	}

	images, err := casematch.Build(casematch.Source{
		Role: RoleImage, Dir: r.params.ImagesDir, Suffixes: nifti.Extensions,
	}, r.params.IDWidth)
	if err != nil {
		return nil, err
	}
	masks, err := casematch.Build(casematch.Source{
		Role: RoleMask, Dir: r.params.MasksDir, Suffixes: nifti.Extensions,
	}, r.params.IDWidth)
	if err != nil {
		return nil, err
	}
	// logs collisions, unparsed names and IDs missing in either direction;
	// images without a mask are still scheduled and end up skipped
	if _, err := casematch.Intersect(images, masks); err != nil && !errors.Is(err, casematch.ErrNoCommonCases) {
		return nil, err
	}

	// every image is a case; the mask may be missing
	var cases []models.Case
	for _, id := range images.IDs() {
		c := models.Case{ID: id, Paths: map[string]string{RoleImage: images.Paths[id]}}
		if p, ok := masks.Paths[id]; ok {
			c.Paths[RoleMask] = p
		}
		cases = append(cases, c)
	}
	slog.Info("Starting crop", "images", len(cases), "masks", len(masks.Paths), "outputs", len(r.params.OutputDirs))

	runID := report.NewRunID()
	results, runErr := runCases(ctx, r.params.BatchParams, cases, r.processCase)
	summary := summarize(runID, "crop", len(cases), results)

	if err := writeReport(r.params.ReportPath, summary); err != nil {
		return summary, fmt.Errorf("failed to write report: %w", err)
	}
	return summary, runErr
}

// CaseName derives the output case token from a reference image path
func CaseName(imagePath string) string {
	return strings.TrimSuffix(nifti.TrimExt(filepath.Base(imagePath)), ChannelSuffix)
}

func (r *CropRunner) processCase(_ context.Context, c models.Case) Result {
	name := CaseName(c.Path(RoleImage))
	maskPath := c.Path(RoleMask)
	if maskPath == "" {
		return skipped(c.ID, name, "no coarse mask")
	}

	img, err := nifti.Load(c.Path(RoleImage))
	if err != nil {
		return classify(c.ID, name, fmt.Errorf("failed to load image: %w", err))
	}
	maskVol, err := nifti.Load(maskPath)
	if err != nil {
		return classify(c.ID, name, fmt.Errorf("failed to load mask: %w", err))
	}

	res, err := roi.CropToMask(img, maskVol.Threshold(r.params.MaskThreshold), r.params.Options)
	if errors.Is(err, roi.ErrShapeMismatch) {
		return fatal(c.ID, name, err)
	}
	if err != nil {
		return failed(c.ID, name, err)
	}

	result := succeeded(c.ID, name)
	result.BBox = res.Metadata.BBox.String()
	if !res.Foreground {
		result.Adjusted = true
		slog.Info("Empty mask, using the whole volume", "id", c.ID)
	}

	for _, dir := range r.params.OutputDirs {
		out := filepath.Join(dir, name+ChannelSuffix+".nii.gz")
		if err := nifti.Save(out, res.Volume); err != nil {
			return failed(c.ID, name, err)
		}
	}

	res.Metadata.Case = name
	if err := r.store.Put(res.Metadata); err != nil {
		return failed(c.ID, name, fmt.Errorf("failed to write metadata: %w", err))
	}

	slog.Debug("Cropped case", "id", c.ID, "bbox", result.BBox, "orig_shape", img.Shape, "crop_shape", res.Volume.Shape)
	return result
}
