// Package cli wires the roikit subcommands to the pipeline packages.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"roikit/pkg/config"
)

// globals are the persistent flags and the configuration they resolve to
type globals struct {
	configPath string
	verbose    bool
	cfg        *config.Config
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "roikit",
		Short: "Crop volumes to a region of interest and paste predictions back",
		Long: `roikit prepares NIfTI volumes for a fine-resolution segmentation model
and restores its predictions to the original image space.

The crop stage cuts every image to the padded bounding box of a coarse mask
and records the box in a JSON sidecar. The paste stage places each ROI
prediction back into a labelmap matching the reference image, removes small
components and keeps lesion classes inside the organ.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if !cmd.Flags().Changed("config") {
				if env := os.Getenv(config.EnvConfigPath); env != "" {
					g.configPath = env
				}
			}
			cfg, err := config.LoadConfig(g.configPath)
			if err != nil {
				return err
			}
			if g.verbose {
				cfg.Output.Verbose = true
			}
			g.cfg = cfg

			logLevel := slog.LevelInfo
			if cfg.Output.Verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)

			if g.configPath != "" {
				slog.Debug("Configuration loaded", "path", g.configPath)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", fmt.Sprintf("YAML configuration file (default $%s)", config.EnvConfigPath))
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newCropCmd(g))
	cmd.AddCommand(newPasteCmd(g))
	cmd.AddCommand(newMatchCmd(g))
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newConfigCmd(g))

	return cmd
}
