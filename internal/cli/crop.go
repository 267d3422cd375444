package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"roikit/pkg/metadata"
	"roikit/pkg/pipeline"
)

func newCropCmd(g *globals) *cobra.Command {
	var (
		imagesDir  string
		masksDir   string
		outDirs    []string
		metaDir    string
		padding    []int
		threshold  float64
		shift      bool
		layout     string
		idWidth    int
		workers    int
		maxCases   int
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "crop",
		Short: "Crop images to the padded bounding box of their coarse masks",
		Example: `  # Crop into two model input folders with 12 voxels of margin
  roikit crop --images ./imagesTs --masks ./coarse --out ./fine_a --out ./fine_b --meta ./meta

  # Anisotropic margin, nested sidecars
  roikit crop --images ./imagesTs --masks ./coarse --out ./fine --meta ./meta --pad-vox 4,12,12 --meta-layout nested`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			flags := cmd.Flags()
			if flags.Changed("pad-vox") {
				cfg.Crop.Padding = padding
			}
			if flags.Changed("mask-threshold") {
				cfg.Crop.MaskThreshold = threshold
			}
			if flags.Changed("shift-origin") {
				cfg.Crop.ShiftOrigin = shift
			}
			if flags.Changed("meta-layout") {
				cfg.Crop.MetadataLayout = layout
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
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			metaLayout, _ := metadata.ParseLayout(cfg.Crop.MetadataLayout)

			runner := pipeline.NewCropRunner(&pipeline.CropParams{
				ImagesDir:      imagesDir,
				MasksDir:       masksDir,
				OutputDirs:     outDirs,
				MetaDir:        metaDir,
				Options:        cfg.CropOptions(),
				MaskThreshold:  cfg.Crop.MaskThreshold,
				MetadataLayout: metaLayout,
				IDWidth:        cfg.Matching.IDWidth,
				BatchParams: pipeline.BatchParams{
					NumWorkers: cfg.Processing.NumWorkers,
					MaxCases:   cfg.Processing.MaxCases,
					ReportPath: cfg.Output.ReportPath,
				},
			})

			summary, err := runner.Process(cmd.Context())
			if summary != nil {
				summary.Print(os.Stdout)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&imagesDir, "images", "", "Directory of full-field images named <CASE>_0000.nii.gz (required)")
	cmd.Flags().StringVar(&masksDir, "masks", "", "Directory of coarse masks named <CASE>.nii.gz (required)")
	cmd.Flags().StringArrayVar(&outDirs, "out", nil, "Output directory for cropped images; repeat for several model inputs (required)")
	cmd.Flags().StringVar(&metaDir, "meta", "", "Output directory for crop metadata sidecars (required)")
	cmd.Flags().IntSliceVar(&padding, "pad-vox", []int{12, 12, 12}, "Margin in voxels per axis as z,y,x")
	cmd.Flags().Float64Var(&threshold, "mask-threshold", 0.5, "Mask voxels above this value are foreground")
	cmd.Flags().BoolVar(&shift, "shift-origin", false, "Move the crop affine origin to the box start")
	cmd.Flags().StringVar(&layout, "meta-layout", "flat", "Sidecar layout: flat or nested")
	cmd.Flags().IntVar(&idWidth, "id-width", 5, "Zero-pad width of case IDs")
	cmd.Flags().IntVar(&workers, "workers", 0, "Cases processed in parallel (default from config)")
	cmd.Flags().IntVar(&maxCases, "max-cases", 0, "Process at most this many cases (0 for all)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a Parquet ledger of the run to this path")

	_ = cmd.MarkFlagRequired("images")
	_ = cmd.MarkFlagRequired("masks")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("meta")

	return cmd
}
