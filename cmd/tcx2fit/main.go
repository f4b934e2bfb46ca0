package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tcx "github.com/lucasjlepore/tcx-analyzer"
	"github.com/lucasjlepore/tcx-analyzer/fitexport"
)

func main() {
	var (
		outPath    = flag.String("out", "", "Output .fit path (default: input name with .fit extension)")
		overwrite  = flag.Bool("overwrite", false, "Replace an existing output file")
		noRecovery = flag.Bool("no-recovery", false, "Keep missing samples as invalid FIT values instead of gap filling")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-tcx-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	inputPath := flag.Arg(0)
	if strings.TrimSpace(*outPath) == "" {
		*outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".fit"
	}
	if _, err := os.Stat(*outPath); err == nil && !*overwrite {
		fmt.Fprintf(os.Stderr, "output exists: %s (use -overwrite)\n", *outPath)
		os.Exit(1)
	}

	session, err := tcx.Open(inputPath, tcx.WithRecovery(!*noRecovery))
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert failed: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "convert failed: %v\n", err)
		os.Exit(1)
	}
	if err := fitexport.Encode(f, session); err != nil {
		f.Close()
		os.Remove(*outPath)
		fmt.Fprintf(os.Stderr, "convert failed: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "convert failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion complete\n")
	fmt.Printf("Input:  %s\n", inputPath)
	fmt.Printf("Output: %s\n", *outPath)
}
