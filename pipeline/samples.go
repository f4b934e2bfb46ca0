package pipeline

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
)

var canonicalHeader = []string{
	"index", "ts_utc_iso", "elapsed_s", "power_w", "speed_mps", "distance_m", "altitude_m",
	"hr_bpm", "cadence_rpm", "move_m", "elevation_m", "grade", "high_altitude",
}

func writeCanonicalCSV(path string, samples []CanonicalSample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeCanonicalCSV(f, samples); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// encodeCanonicalCSV writes one row per sample; NaN values are empty cells.
func encodeCanonicalCSV(out io.Writer, samples []CanonicalSample) error {
	w := csv.NewWriter(out)
	if err := w.Write(canonicalHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.Itoa(s.Index),
			s.TSUTCISO,
			formatFloat(s.ElapsedS),
			formatFloat(s.PowerW),
			formatFloat(s.SpeedMPS),
			formatFloat(s.DistanceM),
			formatFloat(s.AltitudeM),
			formatFloat(s.HRBPM),
			formatFloat(s.CadenceRPM),
			formatFloat(s.MoveM),
			formatFloat(s.ElevationM),
			formatFloat(s.Grade),
			strconv.FormatBool(s.HighAltitude),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
