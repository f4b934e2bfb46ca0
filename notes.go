package tcx

import (
	"fmt"
	"math"
	"strings"
)

// BuildTrainingNotes turns extracted metrics into a plain-text training summary.
func BuildTrainingNotes(a *Analysis) string {
	if a == nil {
		return ""
	}

	var b strings.Builder

	sport := a.Sport
	if sport == "" {
		sport = "Activity"
	}
	fmt.Fprintf(&b, "Session: %s\n", sport)
	if !a.StartTime.IsZero() {
		fmt.Fprintf(&b, "Start: %s\n", a.StartTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(
		&b,
		"Duration %s | Distance %.1f km | Elevation +%.0f m | Calories %d\n",
		formatDuration(a.ElapsedSeconds),
		a.DistanceMeters/1000.0,
		a.ElevationGainM,
		a.Calories,
	)
	fmt.Fprintf(
		&b,
		"Altitude >= %.0f m: %.1f km over %d samples | below: %.1f km | Max grade %.1f\n",
		a.HighAltitudeM,
		a.HighAltitudeDistanceM/1000.0,
		a.HighAltitudeSamples,
		a.LowAltitudeDistanceM/1000.0,
		a.MaxGrade,
	)

	if a.HasPower {
		fmt.Fprintf(
			&b,
			"Power %.0f avg / %.0f NP / %.0f max W | Work %.0f kJ | VI %.2f\n",
			a.AvgPowerWatts,
			a.NormalizedPower,
			a.MaxPowerWatts,
			a.WorkKilojoules,
			a.VariabilityIndex,
		)
	} else {
		b.WriteString("Power: no power samples recorded\n")
	}
	fmt.Fprintf(
		&b,
		"HR %.0f avg / %.0f max bpm | Cadence %.0f avg / %.0f max rpm | Speed %.1f avg / %.1f max km/h\n",
		a.AvgHeartRate,
		a.MaxHeartRate,
		a.AvgCadence,
		a.MaxCadence,
		mpsToKmh(a.AvgSpeedMps),
		mpsToKmh(a.MaxSpeedMps),
	)

	if a.FTPWatts > 0 {
		fmt.Fprintf(
			&b,
			"Load IF %.2f | TSS %.0f | FTP %.0f W (%s)\n",
			a.IntensityFactor,
			a.TrainingStress,
			a.FTPWatts,
			a.FTPSource,
		)
	} else if a.HasPower {
		b.WriteString("Load IF/TSS unavailable (FTP not provided and could not be estimated)\n")
	}
	if a.Best20MinPower > 0 {
		fmt.Fprintf(&b, "Best 20 min power: %.0f W\n", a.Best20MinPower)
	}
	if a.PowerHRDecoupling != 0 && a.VariabilityIndex <= 1.10 {
		fmt.Fprintf(&b, "Power:HR decoupling: %+.1f%%\n", a.PowerHRDecoupling)
	}

	if len(a.PowerZones) > 0 {
		b.WriteString("\nPower Zone Distribution\n")
		for _, z := range a.PowerZones {
			if z.Seconds <= 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s (%.1f%%)\n", z.Zone, formatDuration(z.Seconds), z.Percentage)
		}
	}

	if len(a.Laps) > 1 {
		b.WriteString("\nLaps\n")
		for _, lap := range a.Laps {
			fmt.Fprintf(
				&b,
				"- Lap %02d | %s | %.2f km | +%.0f m | %.0f W | %.0f bpm\n",
				lap.Index,
				formatDuration(lap.TotalTimeSeconds),
				lap.DistanceMeters/1000.0,
				lap.ElevationGainM,
				lap.AvgPowerWatts,
				lap.AvgHeartRate,
			)
		}
	}

	b.WriteString("\nCoaching Notes\n- ")
	b.WriteString(coachingAssessment(a))
	b.WriteByte('\n')

	return strings.TrimSpace(b.String())
}

func coachingAssessment(a *Analysis) string {
	switch {
	case a.IntensityFactor >= 0.9:
		return "High-intensity load for this duration; prioritize sleep and fueling to absorb the session."
	case a.DistanceMeters > 0 && a.HighAltitudeDistanceM/a.DistanceMeters >= 0.5:
		return "Most of the distance was covered at altitude; expect elevated heart rate for a given power."
	case a.DistanceMeters > 0 && a.ElevationGainM/(a.DistanceMeters/1000.0) >= 15:
		return "Climbing-heavy session; pacing on the ascents drives most of the load."
	default:
		return "Aerobic load appears manageable and supports base development."
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

func mpsToKmh(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * 3.6
}
