package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"roikit/pkg/casematch"
	"roikit/pkg/pipeline"
)

func newMatchCmd(g *globals) *cobra.Command {
	var predDir, metaDir, imagesDir string
	var idWidth int

	cmd := &cobra.Command{
		Use:   "match",
		Short: "List the cases present in all paste inputs",
		Long: `Correlate predictions, metadata sidecars and reference images by case ID
without processing anything. IDs missing from one input are reported per input.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			width := g.cfg.Matching.IDWidth
			if cmd.Flags().Changed("id-width") {
				width = idWidth
			}
			res, err := pipeline.MatchInputs(predDir, metaDir, imagesDir, width)
			if res != nil {
				printMatch(res)
			}
			if errors.Is(err, casematch.ErrNoCommonCases) {
				return fmt.Errorf("nothing to paste: %w", err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&predDir, "pred", "", "Directory of ROI predictions (required)")
	cmd.Flags().StringVar(&metaDir, "meta", "", "Directory of crop metadata sidecars (required)")
	cmd.Flags().StringVar(&imagesDir, "images", "", "Directory of full-field reference images (required)")
	cmd.Flags().IntVar(&idWidth, "id-width", 5, "Zero-pad width of case IDs")

	_ = cmd.MarkFlagRequired("pred")
	_ = cmd.MarkFlagRequired("meta")
	_ = cmd.MarkFlagRequired("images")

	return cmd
}

func printMatch(res *casematch.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPREDICTION\tMETADATA\tIMAGE")
	for _, c := range res.Cases {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID,
			c.Path(pipeline.RolePred), c.Path(pipeline.RoleMeta), c.Path(pipeline.RoleRef))
	}
	w.Flush()

	fmt.Printf("\nMatched cases: %d\n", len(res.Cases))
	for _, warning := range res.Warnings() {
		fmt.Printf("Warning: %s\n", warning)
	}
}
