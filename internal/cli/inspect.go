package cli

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"roikit/internal/models"
	"roikit/pkg/metadata"
	"roikit/pkg/nifti"
)

// maxHistogramLabels bounds the label table printed for integer volumes
const maxHistogramLabels = 32

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Print the geometry and value statistics of volumes or crop sidecars",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := inspectFile(os.Stdout, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func inspectFile(w io.Writer, path string) error {
	if !nifti.IsVolumeFile(path) {
		m, err := metadata.Load(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s\n", path)
		fmt.Fprintf(w, "  Case:       %s\n", m.Case)
		fmt.Fprintf(w, "  BBox:       %s\n", m.BBox)
		fmt.Fprintf(w, "  Crop shape: %s\n", m.BBox.Shape())
		fmt.Fprintf(w, "  Orig shape: %s\n", m.OrigShape)
		return nil
	}

	vol, err := nifti.Load(path)
	if err != nil {
		return err
	}
	describeVolume(w, path, vol)
	return nil
}

func describeVolume(w io.Writer, name string, vol *models.Volume) {
	hdr := vol.Header
	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "  Shape:    %s\n", vol.Shape)
	fmt.Fprintf(w, "  Datatype: %s\n", hdr.Datatype)
	fmt.Fprintf(w, "  Spacing:  %.4g x %.4g x %.4g\n", hdr.Spacing[0], hdr.Spacing[1], hdr.Spacing[2])
	if hdr.SclSlope != 0 {
		fmt.Fprintf(w, "  Scaling:  slope %g, intercept %g\n", hdr.SclSlope, hdr.SclInter)
	}
	fmt.Fprintf(w, "  Affine:\n%.4g\n", mat.Formatted(hdr.Affine, mat.Prefix("    "), mat.Squeeze()))

	if len(vol.Data) == 0 {
		return
	}
	values := make([]float64, len(vol.Data))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range vol.Data {
		v := vol.Scaled(i)
		values[i] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	mean, std := stat.MeanStdDev(values, nil)
	fmt.Fprintf(w, "  Range:    [%g, %g]\n", lo, hi)
	fmt.Fprintf(w, "  Mean:     %.4f (std %.4f)\n", mean, std)

	if hdr.Datatype.IsInteger() && hdr.SclSlope == 0 {
		printLabels(w, vol)
	}
}

func printLabels(w io.Writer, vol *models.Volume) {
	counts := make(map[float64]int)
	for _, v := range vol.Data {
		counts[v]++
		if len(counts) > maxHistogramLabels {
			return
		}
	}
	labels := make([]float64, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Float64s(labels)

	fmt.Fprintf(w, "  Labels:\n")
	for _, l := range labels {
		fmt.Fprintf(w, "    %4g: %d\n", l, counts[l])
	}
}
