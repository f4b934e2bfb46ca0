package pipeline

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lucasjlepore/tcx-analyzer/fitexport"
)

// RunBytes runs the pipeline on an in-memory TCX document and returns the
// artifacts Run would write, keyed by file name. Nothing touches the
// filesystem, so it also serves the js/wasm build.
func RunBytes(opts BytesOptions) (*BytesResult, error) {
	if len(opts.TCXData) == 0 {
		return nil, fmt.Errorf("tcx data is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	sourceName := strings.TrimSpace(opts.SourceFileName)
	if sourceName == "" {
		sourceName = "input.tcx"
	}
	sourceName = filepath.Base(sourceName)
	logger := loggerOrDiscard(opts.Logger)

	b, err := analyze(opts.TCXData, opts.FTPOverride, opts.Params, logger)
	if err != nil {
		return nil, err
	}

	files := make(map[string][]byte)
	add := func(name string, data []byte) {
		files[name] = data
		logger.Info("built artifact", "name", name, "bytes", len(data))
	}

	name := canonicalFileName(format)
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := encodeCanonicalCSV(&buf, b.samples); err != nil {
			return nil, fmt.Errorf("encode canonical csv: %w", err)
		}
		add(name, buf.Bytes())
	case "parquet":
		data, err := marshalCanonicalParquet(b.samples)
		if err != nil {
			return nil, fmt.Errorf("encode canonical parquet: %w", err)
		}
		add(name, data)
	}

	summary, err := marshalJSON(b.analysis)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", activitySummaryName, err)
	}
	add(activitySummaryName, summary)

	features, err := marshalJSON(b.features)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", featuresName, err)
	}
	add(featuresName, features)

	add(trainingSummaryName, trainingSummary(sourceName, b.analysis))

	if opts.FITExport {
		var buf bytes.Buffer
		if err := fitexport.Encode(&buf, b.session); err != nil {
			return nil, fmt.Errorf("encode %s: %w", fitName, err)
		}
		add(fitName, buf.Bytes())
	}
	if opts.CopySource {
		add(sourceCopyName, append([]byte(nil), opts.TCXData...))
	}

	artifacts := make([]string, 0, len(files))
	for name := range files {
		artifacts = append(artifacts, name)
	}
	manifest, err := marshalJSON(buildManifest(b, "", sourceName, format, artifacts))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", manifestName, err)
	}
	add(manifestName, manifest)

	return &BytesResult{
		Files:    files,
		Analysis: b.analysis,
		Warnings: b.warnings,
	}, nil
}
