package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/lucasjlepore/tcx-analyzer/internal/store"
)

func listSessions(ctx context.Context, w io.Writer, st *store.Store, limit int) error {
	recs, err := st.ListSessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "No stored sessions.")
		return nil
	}
	for _, rec := range recs {
		fmt.Fprintf(w, "%s | %s | %-8s | %7.2f km | %8s | %4.0f W NP | %5.1f TSS | %s\n",
			rec.ID,
			startLabel(rec.StartTime),
			rec.Sport,
			rec.DistanceMeters/1000.0,
			clock(rec.ElapsedSeconds),
			valueOrZero(rec.NormalizedPower),
			valueOrZero(rec.TrainingStress),
			rec.Source,
		)
	}
	return nil
}

func showSession(ctx context.Context, w io.Writer, st *store.Store, id string) error {
	rec, err := st.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	samples, err := st.GetSamples(ctx, id)
	if err != nil {
		return fmt.Errorf("get samples: %w", err)
	}

	fmt.Fprintf(w, "Session %s (%s)\n", rec.ID, rec.Source)
	fmt.Fprintf(w, "- Sport: %s\n", rec.Sport)
	fmt.Fprintf(w, "- Start: %s\n", startLabel(rec.StartTime))
	fmt.Fprintf(w, "- Duration: %s\n", clock(rec.ElapsedSeconds))
	fmt.Fprintf(w, "- Distance: %.2f km\n", rec.DistanceMeters/1000.0)
	fmt.Fprintf(w, "- Elevation gain: %.0f m\n", valueOrZero(rec.ElevationGainM))
	fmt.Fprintf(w, "- Above %.0f m: %.2f km over %d samples, below: %.2f km\n",
		rec.HighAltitudeM,
		valueOrZero(rec.HighAltitudeDistanceM)/1000.0,
		rec.HighAltitudeSamples,
		valueOrZero(rec.LowAltitudeDistanceM)/1000.0,
	)
	fmt.Fprintf(w, "- Power: avg %.0f W, NP %.0f W, TSS %.1f\n",
		valueOrZero(rec.AvgPowerWatts), valueOrZero(rec.NormalizedPower), valueOrZero(rec.TrainingStress))
	fmt.Fprintf(w, "- Avg HR: %.0f bpm\n", valueOrZero(rec.AvgHeartRate))

	var maxPower, maxHR float64
	var powered int
	for _, s := range samples {
		if !math.IsNaN(s.Power) {
			powered++
			maxPower = math.Max(maxPower, s.Power)
		}
		if !math.IsNaN(s.HeartRate) {
			maxHR = math.Max(maxHR, s.HeartRate)
		}
	}
	fmt.Fprintf(w, "- Samples: %d stored, %d with power, max %.0f W, max HR %.0f bpm\n",
		len(samples), powered, maxPower, maxHR)
	return nil
}

func deleteSession(ctx context.Context, w io.Writer, st *store.Store, id string) error {
	if err := st.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Fprintf(w, "Deleted session %s\n", id)
	return nil
}

func startLabel(t time.Time) string {
	if t.IsZero() {
		return "unknown start    "
	}
	return t.UTC().Format("2006-01-02 15:04Z")
}

func clock(seconds float64) string {
	if math.IsNaN(seconds) || seconds <= 0 {
		return "0s"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func valueOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
