package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasjlepore/tcx-analyzer/fitexport"
)

// Run executes the full tcx_analyze pipeline and writes all artifacts to
// opts.OutDir.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.TCXPath) == "" {
		return nil, fmt.Errorf("tcx path is required")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	logger := loggerOrDiscard(opts.Logger)

	data, err := os.ReadFile(opts.TCXPath)
	if err != nil {
		return nil, fmt.Errorf("read tcx file: %w", err)
	}
	b, err := analyze(data, opts.FTPOverride, opts.Params, logger)
	if err != nil {
		return nil, err
	}
	b.analysis.FilePath = opts.TCXPath

	if err := ensureOutputDir(opts.OutDir, opts.Overwrite); err != nil {
		return nil, err
	}

	res := &Result{
		OutputDir:   opts.OutDir,
		SampleCount: len(b.samples),
		Warnings:    b.warnings,
	}
	var artifacts []string
	wrote := func(name, path string) {
		artifacts = append(artifacts, name)
		logger.Info("wrote artifact", "name", name, "path", path)
	}

	name := canonicalFileName(format)
	res.CanonicalSamplesPath = filepath.Join(opts.OutDir, name)
	switch format {
	case "csv":
		if err := writeCanonicalCSV(res.CanonicalSamplesPath, b.samples); err != nil {
			return nil, fmt.Errorf("write canonical csv: %w", err)
		}
	case "parquet":
		if err := writeCanonicalParquet(res.CanonicalSamplesPath, b.samples); err != nil {
			return nil, fmt.Errorf("write canonical parquet: %w", err)
		}
	}
	wrote(name, res.CanonicalSamplesPath)

	res.ActivitySummaryPath = filepath.Join(opts.OutDir, activitySummaryName)
	if err := writeJSON(res.ActivitySummaryPath, b.analysis); err != nil {
		return nil, fmt.Errorf("write %s: %w", activitySummaryName, err)
	}
	wrote(activitySummaryName, res.ActivitySummaryPath)

	res.FeaturesPath = filepath.Join(opts.OutDir, featuresName)
	if err := writeJSON(res.FeaturesPath, b.features); err != nil {
		return nil, fmt.Errorf("write %s: %w", featuresName, err)
	}
	wrote(featuresName, res.FeaturesPath)

	sourceName := filepath.Base(opts.TCXPath)
	res.TrainingSummaryPath = filepath.Join(opts.OutDir, trainingSummaryName)
	if err := os.WriteFile(res.TrainingSummaryPath, trainingSummary(sourceName, b.analysis), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", trainingSummaryName, err)
	}
	wrote(trainingSummaryName, res.TrainingSummaryPath)

	if opts.FITExport {
		res.FITPath = filepath.Join(opts.OutDir, fitName)
		if err := writeFIT(res.FITPath, b); err != nil {
			return nil, fmt.Errorf("write %s: %w", fitName, err)
		}
		wrote(fitName, res.FITPath)
	}

	if opts.CopySource {
		res.SourceCopyPath = filepath.Join(opts.OutDir, sourceCopyName)
		if err := copyFile(opts.TCXPath, res.SourceCopyPath); err != nil {
			return nil, fmt.Errorf("copy source tcx file: %w", err)
		}
		wrote(sourceCopyName, res.SourceCopyPath)
	}

	if opts.DBPath != "" {
		id, err := persist(ctx, opts.DBPath, sourceName, b)
		if err != nil {
			return nil, fmt.Errorf("store session: %w", err)
		}
		res.SessionID = id
		logger.Info("stored session", "id", id, "db", opts.DBPath, "samples", len(b.samples))
	}

	res.ManifestPath = filepath.Join(opts.OutDir, manifestName)
	manifest := buildManifest(b, opts.TCXPath, sourceName, format, artifacts)
	if err := writeJSON(res.ManifestPath, manifest); err != nil {
		return nil, fmt.Errorf("write %s: %w", manifestName, err)
	}
	logger.Info("wrote artifact", "name", manifestName, "path", res.ManifestPath)

	return res, nil
}

func writeFIT(path string, b *bundle) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fitexport.Encode(f, b.session); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ensureOutputDir(path string, overwrite bool) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read output directory: %w", err)
	}
	if len(entries) > 0 && !overwrite {
		return fmt.Errorf("output directory is not empty: %s (set overwrite=true to allow)", path)
	}
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func writeJSON(path string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
