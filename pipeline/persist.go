//go:build !js

package pipeline

import (
	"context"

	"github.com/lucasjlepore/tcx-analyzer/internal/store"
)

func persist(ctx context.Context, dbPath, source string, b *bundle) (string, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	a := b.analysis
	rec := &store.SessionRecord{
		Source:                source,
		Sport:                 a.Sport,
		StartTime:             a.StartTime,
		ElapsedSeconds:        a.ElapsedSeconds,
		DistanceMeters:        a.DistanceMeters,
		Calories:              a.Calories,
		ElevationGainM:        a.ElevationGainM,
		HighAltitudeM:         a.HighAltitudeM,
		HighAltitudeDistanceM: a.HighAltitudeDistanceM,
		LowAltitudeDistanceM:  a.LowAltitudeDistanceM,
		HighAltitudeSamples:   a.HighAltitudeSamples,
		MaxGrade:              a.MaxGrade,
		AvgPowerWatts:         a.AvgPowerWatts,
		NormalizedPower:       a.NormalizedPower,
		AvgHeartRate:          a.AvgHeartRate,
		TrainingStress:        a.TrainingStress,
	}
	samples := make([]store.Sample, len(b.samples))
	for i, s := range b.samples {
		samples[i] = store.Sample{
			Index:     s.Index,
			Timestamp: s.Timestamp,
			Power:     s.PowerW,
			Speed:     s.SpeedMPS,
			Distance:  s.DistanceM,
			Altitude:  s.AltitudeM,
			HeartRate: s.HRBPM,
			Cadence:   s.CadenceRPM,
			Grade:     s.Grade,
		}
	}
	return st.SaveSession(ctx, rec, samples)
}
