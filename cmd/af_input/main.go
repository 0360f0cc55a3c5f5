package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/farnunglab/afrigid/internal/afinput"
	"github.com/farnunglab/afrigid/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatalf("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "af_input --targets targets.yaml --sequences proteins.fasta --output DIR",
		Short:         "Write AlphaFold 3, AlphaFold 2 or ColabFold job inputs from a targets file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)
			targetsPath, sequencesPath, outputDir := v.GetString("targets"), v.GetString("sequences"), v.GetString("output")
			if targetsPath == "" || sequencesPath == "" || outputDir == "" {
				return errors.New("provide --targets, --sequences and --output")
			}
			mode, err := afinput.ParseMode(v.GetString("mode"))
			if err != nil {
				return err
			}

			cycles, err := afinput.ReadTargets(targetsPath)
			if err != nil {
				return err
			}
			var seqs afinput.Sequences
			if seqs.Proteins, err = afinput.ReadFASTA(sequencesPath); err != nil {
				return err
			}
			if path := v.GetString("nucleotides"); path != "" {
				if seqs.NucleicAcids, err = afinput.ReadFASTA(path); err != nil {
					return err
				}
			}
			if path := v.GetString("entities"); path != "" {
				if seqs.EntityMap, err = afinput.ReadEntityMap(path); err != nil {
					return err
				}
			}

			builder := afinput.NewBuilder(seqs)
			if seed := v.GetInt64("seed"); seed != 0 {
				builder.Rand = rand.New(rand.NewSource(seed))
			}
			files, err := builder.Write(cycles, mode, outputDir, v.GetInt("jobs-per-file"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				fmt.Fprintln(out, f)
			}
			slog.Info("job inputs written", "mode", mode, "cycles", len(cycles), "files", len(files), "output", outputDir)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("targets", "", "Targets YAML (cycle -> jobs)")
	flags.String("sequences", "", "Protein FASTA")
	flags.String("nucleotides", "", "DNA/RNA FASTA")
	flags.String("entities", "", "JSON map of entity name to FASTA key (e.g. UniProt ID)")
	flags.String("output", "", "Output directory")
	flags.String("mode", string(afinput.ModeAF3), "Job input kind: af3, af2 or colabfold")
	flags.Int("jobs-per-file", afinput.DefaultJobsPerFile, "AF3 jobs per JSON file (1-100)")
	flags.Int64("seed", 0, "Random seed for drawn model seeds (0 for time based)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
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
