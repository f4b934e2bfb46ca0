package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tcx "github.com/lucasjlepore/tcx-analyzer"
	"github.com/lucasjlepore/tcx-analyzer/pipeline"
)

func main() {
	var (
		tcxPath    = flag.String("tcx", "", "Path to input .tcx file")
		outDir     = flag.String("out", "", "Output directory")
		ftp        = flag.Float64("ftp", 0, "FTP override in watts")
		format     = flag.String("format", "parquet", "Canonical sample format: parquet|csv")
		configPath = flag.String("config", "", "YAML file with high_altitude and recovery parameters")
		dbPath     = flag.String("db", "", "SQLite database to store the session in (optional)")
		fitExport  = flag.Bool("fit", false, "Also write the activity as activity.fit")
		overwrite  = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
		noRecovery = flag.Bool("no-recovery", false, "Disable gap filling of missing samples")
		verbose    = flag.Bool("v", false, "Verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --tcx input.tcx --out outdir [--ftp 250] [--format parquet|csv] [--db sessions.db]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*tcxPath) == "" || strings.TrimSpace(*outDir) == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	params := tcx.DefaultParams()
	if *configPath != "" {
		loaded, err := tcx.LoadParams(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tcx_analyze failed: %v\n", err)
			os.Exit(1)
		}
		params = loaded
	}
	if *noRecovery {
		params.Recovery = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := pipeline.Run(ctx, pipeline.Options{
		TCXPath:     *tcxPath,
		OutDir:      *outDir,
		FTPOverride: *ftp,
		Format:      *format,
		Overwrite:   *overwrite,
		CopySource:  true,
		FITExport:   *fitExport,
		DBPath:      *dbPath,
		Params:      &params,
		Logger:      logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tcx_analyze failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("tcx_analyze complete\n")
	fmt.Printf("Output dir:          %s\n", result.OutputDir)
	fmt.Printf("manifest.json:       %s\n", result.ManifestPath)
	fmt.Printf("canonical samples:   %s (%d rows)\n", result.CanonicalSamplesPath, result.SampleCount)
	fmt.Printf("activity summary:    %s\n", result.ActivitySummaryPath)
	fmt.Printf("features:            %s\n", result.FeaturesPath)
	fmt.Printf("training summary:    %s\n", result.TrainingSummaryPath)
	if result.FITPath != "" {
		fmt.Printf("fit file:            %s\n", result.FITPath)
	}
	if result.SourceCopyPath != "" {
		fmt.Printf("source copy:         %s\n", result.SourceCopyPath)
	}
	if result.SessionID != "" {
		fmt.Printf("stored session:      %s\n", result.SessionID)
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning:             %s\n", w)
	}
}
