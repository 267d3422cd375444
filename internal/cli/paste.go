package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"roikit/pkg/config"
	"roikit/pkg/pipeline"
)

// classFlags holds the per-class overrides of the taxonomy
type classFlags struct {
	organID, lesionAID, lesionBID    int
	organMin, lesionAMin, lesionBMin int
}

func (f *classFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.organID, "organ-id", 1, "Label of the organ class")
	cmd.Flags().IntVar(&f.lesionAID, "lesion-a-id", 2, "Label of the first lesion class")
	cmd.Flags().IntVar(&f.lesionBID, "lesion-b-id", 3, "Label of the second lesion class")
	cmd.Flags().IntVar(&f.organMin, "minvox-organ", 20000, "Smallest organ component kept, in voxels")
	cmd.Flags().IntVar(&f.lesionAMin, "minvox-lesion-a", 200, "Smallest first-lesion component kept, in voxels")
	cmd.Flags().IntVar(&f.lesionBMin, "minvox-lesion-b", 50, "Smallest second-lesion component kept, in voxels")
}

func (f *classFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	tax := &cfg.Taxonomy

	setID := func(name string, dst *uint8, v int) error {
		if !flags.Changed(name) {
			return nil
		}
		if v < 1 || v > 255 {
			return fmt.Errorf("--%s must be in 1..255, got %d", name, v)
		}
		*dst = uint8(v)
		return nil
	}
	setMin := func(name string, dst *int, v int) {
		if flags.Changed(name) {
			*dst = v
		}
	}

	if err := setID("organ-id", &tax.Organ.ID, f.organID); err != nil {
		return err
	}
	setMin("minvox-organ", &tax.Organ.MinVoxels, f.organMin)

	lesions := []struct {
		id, min   string
		idV, minV int
	}{
		{"lesion-a-id", "minvox-lesion-a", f.lesionAID, f.lesionAMin},
		{"lesion-b-id", "minvox-lesion-b", f.lesionBID, f.lesionBMin},
	}
	for i, l := range lesions {
		if i >= len(tax.Lesions) {
			if flags.Changed(l.id) || flags.Changed(l.min) {
				return fmt.Errorf("the configured taxonomy has no lesion class %d", i+1)
			}
			continue
		}
		if err := setID(l.id, &tax.Lesions[i].ID, l.idV); err != nil {
			return err
		}
		setMin(l.min, &tax.Lesions[i].MinVoxels, l.minV)
	}
	return nil
}

func newPasteCmd(g *globals) *cobra.Command {
	var (
		predDir      string
		metaDir      string
		imagesDir    string
		outDir       string
		classes      classFlags
		strategy     string
		radius       int
		minOverlap   float64
		connectivity int
		hierarchical bool
		idWidth      int
		workers      int
		maxCases     int
		reportPath   string
		previewDir   string
		previewScale int
	)

	cmd := &cobra.Command{
		Use:   "paste",
		Short: "Paste ROI predictions back to full field and clean them",
		Example: `  # Paste with voxel containment
  roikit paste --pred ./pred_roi --meta ./meta --images ./imagesTs --out ./pred_full

  # Keep lesion components that mostly overlap the dilated organ
  roikit paste --pred ./pred_roi --meta ./meta --images ./imagesTs --out ./pred_full \
    --strategy overlap --dilation-radius 2 --min-overlap 0.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			flags := cmd.Flags()
			if err := classes.apply(cmd, cfg); err != nil {
				return err
			}
			if flags.Changed("strategy") {
				cfg.Containment.Strategy = strategy
			}
			if flags.Changed("dilation-radius") {
				cfg.Containment.DilationRadius = radius
			}
			if flags.Changed("min-overlap") {
				cfg.Containment.MinOverlapRatio = minOverlap
			}
			if flags.Changed("connectivity") {
				cfg.Containment.Connectivity = connectivity
			}
			if flags.Changed("hierarchical") {
				cfg.Containment.Hierarchical = hierarchical
			}
			if flags.Changed("id-width") {
				cfg.Matching.IDWidth = idWidth
			}
			if flags.Changed("workers") {
				cfg.Processing.NumWorkers = workers
			}
			if flags.Changed("max-cases") {
				cfg.Processing.MaxCases = maxCases
			}
			if flags.Changed("report") {
				cfg.Output.ReportPath = reportPath
			}
			if flags.Changed("preview-dir") {
				cfg.Output.PreviewDir = previewDir
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			anatomyCfg, err := cfg.Anatomy()
			if err != nil {
				return err
			}

			runner, err := pipeline.NewPasteRunner(&pipeline.PasteParams{
				PredDir:      predDir,
				MetaDir:      metaDir,
				ImagesDir:    imagesDir,
				OutputDir:    outDir,
				Anatomy:      anatomyCfg,
				IDWidth:      cfg.Matching.IDWidth,
				PreviewDir:   cfg.Output.PreviewDir,
				PreviewScale: previewScale,
				BatchParams: pipeline.BatchParams{
					NumWorkers: cfg.Processing.NumWorkers,
					MaxCases:   cfg.Processing.MaxCases,
					ReportPath: cfg.Output.ReportPath,
				},
			})
			if err != nil {
				return err
			}

			summary, err := runner.Process(cmd.Context())
			if summary != nil {
				summary.Print(os.Stdout)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&predDir, "pred", "", "Directory of ROI predictions named <CASE>.nii.gz (required)")
	cmd.Flags().StringVar(&metaDir, "meta", "", "Directory of crop metadata sidecars (required)")
	cmd.Flags().StringVar(&imagesDir, "images", "", "Directory of full-field reference images (required)")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory for full-field labelmaps (required)")
	classes.register(cmd)
	cmd.Flags().StringVar(&strategy, "strategy", "voxel", "Lesion containment: voxel or overlap")
	cmd.Flags().IntVar(&radius, "dilation-radius", 2, "Organ dilation in voxels for the overlap strategy")
	cmd.Flags().Float64Var(&minOverlap, "min-overlap", 0.10, "Fraction of a lesion component required inside the dilated organ")
	cmd.Flags().IntVar(&connectivity, "connectivity", 26, "Component neighbourhood: 6, 18 or 26")
	cmd.Flags().BoolVar(&hierarchical, "hierarchical", true, "Measure organ components together with the lesions they hold")
	cmd.Flags().IntVar(&idWidth, "id-width", 5, "Zero-pad width of case IDs")
	cmd.Flags().IntVar(&workers, "workers", 0, "Cases processed in parallel (default from config)")
	cmd.Flags().IntVar(&maxCases, "max-cases", 0, "Process at most this many cases (0 for all)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Parquet ledger of the run to this path")
	cmd.Flags().StringVar(&previewDir, "preview-dir", "", "Write one PNG overlay per case to this directory")
	cmd.Flags().IntVar(&previewScale, "preview-scale", 2, "Upscaling factor of preview images")

	_ = cmd.MarkFlagRequired("pred")
	_ = cmd.MarkFlagRequired("meta")
	_ = cmd.MarkFlagRequired("images")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
