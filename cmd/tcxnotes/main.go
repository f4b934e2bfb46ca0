package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	tcx "github.com/lucasjlepore/tcx-analyzer"
	"github.com/lucasjlepore/tcx-analyzer/internal/store"
)

func main() {
	var (
		ftp        = flag.Float64("ftp", 0, "FTP in watts (optional; if omitted the tool estimates FTP from best 20-minute power)")
		jsonOut    = flag.Bool("json", false, "Emit full analysis as JSON")
		showLaps   = flag.Bool("laps", false, "Include lap-by-lap summary in text output")
		configPath = flag.String("config", "", "YAML file with high_altitude and recovery parameters")
		noRecovery = flag.Bool("no-recovery", false, "Disable gap filling of missing samples")
		dbPath     = flag.String("db", "", "SQLite database written by tcx_analyze -db")
		list       = flag.Bool("list", false, "List stored sessions (requires -db)")
		limit      = flag.Int("limit", 20, "Maximum sessions listed; 0 lists all")
		show       = flag.String("show", "", "Print a stored session by id (requires -db)")
		remove     = flag.String("delete", "", "Delete a stored session by id (requires -db)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-tcx-file>\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "       %s -db sessions.db [-list | -show id | -delete id]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *list || *show != "" || *remove != "" {
		if *dbPath == "" {
			fmt.Fprintln(os.Stderr, "-list, -show and -delete require -db")
			os.Exit(2)
		}
		if err := runStore(*dbPath, *list, *limit, *show, *remove); err != nil {
			fmt.Fprintf(os.Stderr, "session store: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var opts []tcx.Option
	if *configPath != "" {
		params, err := tcx.LoadParams(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, tcx.WithParams(params))
	}
	if *noRecovery {
		opts = append(opts, tcx.WithRecovery(false))
	}

	filePath := flag.Arg(0)
	analysis, err := tcx.AnalyzeFile(filePath, tcx.Config{FTPWatts: *ftp}, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(analysis); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println(analysis.Notes)
	if *showLaps && len(analysis.Laps) > 0 {
		fmt.Println()
		fmt.Println("Lap Summary")
		for _, lap := range analysis.Laps {
			fmt.Printf(
				"- Lap %02d | %-8s | %6.0f W | %5.0f bpm | %5.0f rpm | %7.2f km | %6.1fs\n",
				lap.Index,
				lap.Intensity,
				lap.AvgPowerWatts,
				lap.AvgHeartRate,
				lap.AvgCadence,
				lap.DistanceMeters/1000.0,
				lap.TotalTimeSeconds,
			)
		}
	}
}

func runStore(dbPath string, list bool, limit int, show, remove string) error {
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	switch {
	case remove != "":
		return deleteSession(ctx, os.Stdout, st, remove)
	case show != "":
		return showSession(ctx, os.Stdout, st, show)
	case list:
		return listSessions(ctx, os.Stdout, st, limit)
	}
	return nil
}
