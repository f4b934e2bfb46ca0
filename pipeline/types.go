package pipeline

import (
	"log/slog"
	"time"

	tcx "github.com/lucasjlepore/tcx-analyzer"
)

const (
	// FormatVersion identifies the artifact layout written by Run and RunBytes.
	FormatVersion = "tcx_analyze_v1"

	canonicalBaseName   = "canonical_samples"
	activitySummaryName = "activity_summary.json"
	featuresName        = "features.json"
	trainingSummaryName = "training_summary.md"
	manifestName        = "manifest.json"
	fitName             = "activity.fit"
	sourceCopyName      = "source.tcx"
)

// Options configures the tcx_analyze pipeline.
type Options struct {
	TCXPath     string
	OutDir      string
	FTPOverride float64
	Format      string // parquet|csv
	Overwrite   bool
	CopySource  bool

	// FITExport also writes the activity as a FIT file.
	FITExport bool

	// DBPath, when set, stores the session summary and samples in SQLite.
	DBPath string

	// Params overrides tcx.DefaultParams when non-nil.
	Params *tcx.Params
	Logger *slog.Logger
}

// Result returns generated output paths.
type Result struct {
	OutputDir            string   `json:"output_dir"`
	ManifestPath         string   `json:"manifest_path"`
	CanonicalSamplesPath string   `json:"canonical_samples_path"`
	ActivitySummaryPath  string   `json:"activity_summary_path"`
	FeaturesPath         string   `json:"features_path"`
	TrainingSummaryPath  string   `json:"training_summary_path"`
	FITPath              string   `json:"fit_path,omitempty"`
	SourceCopyPath       string   `json:"source_copy_path,omitempty"`
	SessionID            string   `json:"session_id,omitempty"`
	SampleCount          int      `json:"sample_count"`
	Warnings             []string `json:"warnings,omitempty"`
}

// BytesOptions configures RunBytes.
type BytesOptions struct {
	SourceFileName string
	TCXData        []byte
	FTPOverride    float64
	Format         string // parquet|csv
	CopySource     bool
	FITExport      bool
	Params         *tcx.Params
	Logger         *slog.Logger
}

// BytesResult holds in-memory artifacts keyed by file name.
type BytesResult struct {
	Files    map[string][]byte
	Analysis *tcx.Analysis
	Warnings []string
}

// CanonicalSample is one trackpoint row. Missing values are NaN and a missing
// time leaves Timestamp zero and TSUTCISO empty.
type CanonicalSample struct {
	Index        int       `json:"index"`
	TSUTCISO     string    `json:"ts_utc_iso"`
	Timestamp    time.Time `json:"-"`
	ElapsedS     float64   `json:"elapsed_s"`
	PowerW       float64   `json:"power_w"`
	SpeedMPS     float64   `json:"speed_mps"`
	DistanceM    float64   `json:"distance_m"`
	AltitudeM    float64   `json:"altitude_m"`
	HRBPM        float64   `json:"hr_bpm"`
	CadenceRPM   float64   `json:"cadence_rpm"`
	MoveM        float64   `json:"move_m"`
	ElevationM   float64   `json:"elevation_m"`
	Grade        float64   `json:"grade"`
	HighAltitude bool      `json:"high_altitude"`
}

// Manifest captures run metadata and the artifacts written next to it.
type Manifest struct {
	FormatVersion   string     `json:"format_version"`
	GeneratedAt     time.Time  `json:"generated_at"`
	SourceFile      string     `json:"source_file,omitempty"`
	SourceFileName  string     `json:"source_file_name"`
	SourceSHA256    string     `json:"source_sha256"`
	SourceSizeBytes int64      `json:"source_size_bytes"`
	Sport           string     `json:"sport"`
	SampleCount     int        `json:"sample_count"`
	LapCount        int        `json:"lap_count"`
	Params          tcx.Params `json:"params"`
	SampleFormat    string     `json:"sample_format"`
	Artifacts       []string   `json:"artifacts"`
	Warnings        []string   `json:"warnings,omitempty"`
}
