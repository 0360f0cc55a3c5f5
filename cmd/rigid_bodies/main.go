package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/farnunglab/afrigid/internal/config"
	"github.com/farnunglab/afrigid/internal/pipeline"
	"github.com/farnunglab/afrigid/internal/selection"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fatalf("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configDir      string
		selectionPath  string
		predictionsDir string
		outputDir      string
		verbose        bool
	)
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "rigid_bodies [CONFIG_DIR SELECTION PRED_DIR OUT_DIR]",
		Short: "Extract rigid bodies from AlphaFold predictions using PAE and pLDDT",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 4 {
				return fmt.Errorf("expected 0 or 4 positional arguments, got %d", len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 4 {
				configDir, selectionPath, predictionsDir, outputDir = args[0], args[1], args[2], args[3]
			}
			setupLogging(verbose)
			if selectionPath == "" || predictionsDir == "" || outputDir == "" {
				return errors.New("provide --selection, --predictions and --output")
			}

			cfg, err := config.Load(configDir, v)
			if err != nil {
				return err
			}
			entries, err := selection.Read(selectionPath)
			if err != nil {
				return err
			}
			runner, err := pipeline.New(cfg, predictionsDir, outputDir, pipeline.WithStdout(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			_, err = runner.Run(cmd.Context(), entries)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configDir, "config", "", "Pipeline configuration directory (config.yaml, .env)")
	flags.StringVar(&selectionPath, "selection", "", "Residue selection JSON")
	flags.StringVar(&predictionsDir, "predictions", "", "Directory holding the predictions")
	flags.StringVar(&outputDir, "output", "", "Output directory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	flags.String("method", "", "Segmentation method: soft, strict or both")
	flags.Float64("plddt-cutoff", 70, "Residues below this pLDDT are left out of rigid bodies")
	flags.Float64("pae-cutoff", 5, "PAE threshold in Angstrom for grouping residues")
	flags.StringSlice("format", nil, "Output formats: txt, json, csv")
	flags.StringSlice("viz", nil, "Visualization scripts: pymol, chimerax, none")

	for key, flag := range map[string]string{
		"method":       "method",
		"plddt_cutoff": "plddt-cutoff",
		"pae_cutoff":   "pae-cutoff",
		"formats":      "format",
		"viz":          "viz",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func fatalf(format string, args ...interface{}) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
