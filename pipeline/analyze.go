package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	tcx "github.com/lucasjlepore/tcx-analyzer"
)

// bundle is everything derived from one TCX document before any artifact is
// serialized.
type bundle struct {
	session  *tcx.Session
	analysis *tcx.Analysis
	samples  []CanonicalSample
	features map[string]any
	warnings []string
	sha256   string
	size     int64
}

func analyze(data []byte, ftp float64, params *tcx.Params, logger *slog.Logger) (*bundle, error) {
	opts := []tcx.Option{tcx.WithLogger(logger)}
	if params != nil {
		opts = append(opts, tcx.WithParams(*params))
	}
	session, err := tcx.Parse(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, fmt.Errorf("parse tcx: %w", err)
	}

	samples, err := buildCanonicalSamples(session)
	if err != nil {
		return nil, fmt.Errorf("build canonical samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no Trackpoint samples found: %w", tcx.ErrNotFound)
	}

	analysis, err := tcx.AnalyzeSession(session, tcx.Config{FTPWatts: ftp})
	if err != nil {
		return nil, fmt.Errorf("analyze session: %w", err)
	}

	sum := sha256.Sum256(data)
	b := &bundle{
		session:  session,
		analysis: analysis,
		samples:  samples,
		features: session.Features(),
		sha256:   hex.EncodeToString(sum[:]),
		size:     int64(len(data)),
	}
	b.warnings = collectWarnings(session, analysis, samples)
	for _, w := range b.warnings {
		logger.Warn("analysis warning", "warning", w)
	}
	return b, nil
}

func buildCanonicalSamples(s *tcx.Session) ([]CanonicalSample, error) {
	timestamps, err := s.Timestamps()
	if err != nil {
		return nil, err
	}
	series := make(map[string][]float64, 9)
	loaders := []struct {
		name string
		fn   func() ([]float64, error)
	}{
		{"power", s.Powers},
		{"speed", s.Speeds},
		{"distance", s.Distances},
		{"altitude", s.Altitudes},
		{"heart_rate", s.HeartRate},
		{"cadence", s.Cadences},
		{"move", s.Moves},
		{"elevation", s.Elevations},
		{"grade", s.Grades},
	}
	for _, l := range loaders {
		v, err := l.fn()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.name, err)
		}
		if len(v) != len(timestamps) {
			return nil, fmt.Errorf("%s has %d samples, expected %d", l.name, len(v), len(timestamps))
		}
		series[l.name] = v
	}

	threshold := s.Params().HighAltitude
	var firstTS time.Time
	out := make([]CanonicalSample, len(timestamps))
	for i, ts := range timestamps {
		if firstTS.IsZero() && !ts.IsZero() {
			firstTS = ts
		}
		sample := CanonicalSample{
			Index:      i,
			Timestamp:  ts,
			ElapsedS:   math.NaN(),
			PowerW:     series["power"][i],
			SpeedMPS:   series["speed"][i],
			DistanceM:  series["distance"][i],
			AltitudeM:  series["altitude"][i],
			HRBPM:      series["heart_rate"][i],
			CadenceRPM: series["cadence"][i],
			MoveM:      series["move"][i],
			ElevationM: series["elevation"][i],
			Grade:      series["grade"][i],
		}
		if !ts.IsZero() {
			sample.TSUTCISO = ts.UTC().Format(time.RFC3339Nano)
			sample.ElapsedS = ts.Sub(firstTS).Seconds()
		}
		sample.HighAltitude = sample.AltitudeM >= threshold
		out[i] = sample
	}
	return out, nil
}

func collectWarnings(s *tcx.Session, a *tcx.Analysis, samples []CanonicalSample) []string {
	var warnings []string
	if !a.HasPower {
		warnings = append(warnings, "no power samples; power metrics are zero")
	}
	hasHR := false
	missingTime := 0
	for _, sample := range samples {
		if !math.IsNaN(sample.HRBPM) {
			hasHR = true
		}
		if sample.Timestamp.IsZero() {
			missingTime++
		}
	}
	if !hasHR {
		warnings = append(warnings, "no heart rate samples")
	}
	if missingTime > 0 {
		warnings = append(warnings, fmt.Sprintf("%d trackpoints have no Time", missingTime))
	}
	if _, err := s.Datetime(); err != nil {
		warnings = append(warnings, "activity Id is missing or not a timestamp; start time taken from the first trackpoint")
	}
	if _, err := s.TotalDistance(); errors.Is(err, tcx.ErrNotFound) {
		warnings = append(warnings, "first lap has no DistanceMeters; low-altitude distance uses the summed lap distance")
	}
	return warnings
}

func buildManifest(b *bundle, sourcePath, sourceName, format string, artifacts []string) Manifest {
	laps, _ := b.session.Laps()
	names := append([]string(nil), artifacts...)
	names = append(names, manifestName)
	sort.Strings(names)
	return Manifest{
		FormatVersion:   FormatVersion,
		GeneratedAt:     time.Now().UTC(),
		SourceFile:      sourcePath,
		SourceFileName:  sourceName,
		SourceSHA256:    b.sha256,
		SourceSizeBytes: b.size,
		Sport:           b.analysis.Sport,
		SampleCount:     len(b.samples),
		LapCount:        len(laps),
		Params:          b.session.Params(),
		SampleFormat:    format,
		Artifacts:       names,
		Warnings:        b.warnings,
	}
}

func trainingSummary(sourceName string, a *tcx.Analysis) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Training summary: %s\n\n", sourceName)
	buf.WriteString(tcx.BuildTrainingNotes(a))
	buf.WriteByte('\n')
	return buf.Bytes()
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "parquet"
	}
	if format != "parquet" && format != "csv" {
		return "", fmt.Errorf("unsupported format %q (expected parquet|csv)", format)
	}
	return format, nil
}

func canonicalFileName(format string) string {
	return canonicalBaseName + "." + format
}

func loggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
