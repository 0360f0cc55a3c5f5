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

	"github.com/farnunglab/afrigid/internal/afdb"
	"github.com/farnunglab/afrigid/internal/config"
	"github.com/farnunglab/afrigid/internal/emit"
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
		configDir  string
		accessions []string
		outputDir  string
		version    int
		jsonOut    bool
		verbose    bool
	)
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "af_fetch --accession P12345 [--output DIR]",
		Short:         "Download AlphaFold DB models and PAE documents",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)
			if len(accessions) == 0 {
				return errors.New("provide --accession")
			}
			cfg, err := config.Load(configDir, v)
			if err != nil {
				return err
			}
			client := newClient(cfg.AFDB)

			var downloads []*afdb.Download
			for _, acc := range accessions {
				d, err := client.Fetch(cmd.Context(), acc, version, outputDir)
				if err != nil {
					return err
				}
				downloads = append(downloads, d)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return emit.WriteJSON(out, downloads)
			}
			for _, d := range downloads {
				fmt.Fprintf(out, "%s v%d\n  %s\n  %s\n", d.Accession, d.Version, d.Structure, d.PAE)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configDir, "config", "", "Pipeline configuration directory (config.yaml, .env)")
	flags.StringSliceVar(&accessions, "accession", nil, "UniProt accession (repeatable)")
	flags.StringVar(&outputDir, "output", ".", "Directory to write the model and PAE files to")
	flags.IntVar(&version, "version", 0, "Model version (0 for the latest)")
	flags.BoolVar(&jsonOut, "json", false, "Print the downloaded files as JSON")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	flags.String("cache-dir", "", "Response cache directory")
	if err := v.BindPFlag("afdb.cache_dir", flags.Lookup("cache-dir")); err != nil {
		panic(err)
	}
	return cmd
}

func newClient(cfg config.AFDB) *afdb.Client {
	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = afdb.DefaultCacheDir()
	}
	return afdb.New(afdb.Options{
		BaseURL:           cfg.BaseURL,
		Cache:             afdb.NewCache(cacheDir, cfg.CacheTTL),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout,
		Attempts:          cfg.Attempts,
	})
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
