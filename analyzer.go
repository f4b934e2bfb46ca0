package tcx

import (
	"fmt"
	"math"
	"time"
)

const (
	secondsPerHour = 3600.0

	// Samples further apart than this are treated as a recording pause when
	// integrating work.
	maxWorkGapSeconds = 5.0
)

// Config controls optional calculations that require athlete-specific inputs.
type Config struct {
	FTPWatts float64
}

// Analysis is the session summary built from a Session's series and scalars.
type Analysis struct {
	FilePath              string         `json:"file_path,omitempty"`
	Sport                 string         `json:"sport"`
	StartTime             time.Time      `json:"start_time"`
	ElapsedSeconds        float64        `json:"elapsed_seconds"`
	DistanceMeters        float64        `json:"distance_meters"`
	Calories              int            `json:"calories"`
	Samples               int            `json:"samples"`
	ElevationGainM        float64        `json:"elevation_gain_m"`
	HighAltitudeM         float64        `json:"high_altitude_threshold_m"`
	HighAltitudeDistanceM float64        `json:"high_altitude_distance_m"`
	LowAltitudeDistanceM  float64        `json:"low_altitude_distance_m"`
	HighAltitudeSamples   int            `json:"high_altitude_samples"`
	MaxGrade              float64        `json:"max_grade"`
	AvgSpeedMps           float64        `json:"avg_speed_mps"`
	MaxSpeedMps           float64        `json:"max_speed_mps"`
	HasPower              bool           `json:"has_power"`
	AvgPowerWatts         float64        `json:"avg_power_watts"`
	MaxPowerWatts         float64        `json:"max_power_watts"`
	NormalizedPower       float64        `json:"normalized_power_watts"`
	VariabilityIndex      float64        `json:"variability_index"`
	WorkKilojoules        float64        `json:"work_kilojoules"`
	AvgHeartRate          float64        `json:"avg_heart_rate_bpm"`
	MaxHeartRate          float64        `json:"max_heart_rate_bpm"`
	AvgCadence            float64        `json:"avg_cadence_rpm"`
	MaxCadence            float64        `json:"max_cadence_rpm"`
	FTPWatts              float64        `json:"ftp_watts"`
	FTPSource             string         `json:"ftp_source"`
	IntensityFactor       float64        `json:"intensity_factor"`
	TrainingStress        float64        `json:"training_stress_score"`
	Best20MinPower        float64        `json:"best_20min_power_watts"`
	PowerHRDecoupling     float64        `json:"power_hr_decoupling_pct"`
	PowerZones            []ZoneDuration `json:"power_zones,omitempty"`
	Laps                  []LapSummary   `json:"laps,omitempty"`
	Notes                 string         `json:"notes"`
}

// ZoneDuration stores the samples spent in a given FTP-based power zone.
type ZoneDuration struct {
	Zone       string  `json:"zone"`
	MinPctFTP  float64 `json:"min_pct_ftp"`
	MaxPctFTP  float64 `json:"max_pct_ftp"`
	Seconds    float64 `json:"seconds"`
	Percentage float64 `json:"percentage"`
}

// LapSummary extends a lap with metrics computed from its trackpoints.
type LapSummary struct {
	Lap
	StartOffsetSeconds float64 `json:"start_offset_seconds"`
	EndOffsetSeconds   float64 `json:"end_offset_seconds"`
	AvgPowerWatts      float64 `json:"avg_power_watts"`
	MaxPowerWatts      float64 `json:"max_power_watts"`
	AvgCadence         float64 `json:"avg_cadence_rpm"`
	ElevationGainM     float64 `json:"elevation_gain_m"`
}

type sessionSeries struct {
	timestamps []time.Time
	powers     []float64
	speeds     []float64
	distances  []float64
	heartRate  []float64
	cadences   []float64
	elevations []float64
}

// AnalyzeFile opens and analyzes a TCX activity file.
func AnalyzeFile(path string, cfg Config, opts ...Option) (*Analysis, error) {
	s, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	analysis, err := AnalyzeSession(s, cfg)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", path, err)
	}
	analysis.FilePath = path
	return analysis, nil
}

// AnalyzeSession summarizes a parsed session.
func AnalyzeSession(s *Session, cfg Config) (*Analysis, error) {
	series, err := loadSeries(s)
	if err != nil {
		return nil, err
	}
	laps, err := s.Laps()
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Sport:         s.Sport(),
		Samples:       len(series.distances),
		HighAltitudeM: s.Params().HighAltitude,
	}
	if start, err := s.Datetime(); err == nil {
		a.StartTime = start
	} else if first := firstTime(series.timestamps); !first.IsZero() {
		a.StartTime = first
	}

	for _, lap := range laps {
		a.ElapsedSeconds += safePositive(lap.TotalTimeSeconds)
		a.DistanceMeters += safePositive(lap.DistanceMeters)
		a.Calories += lap.Calories
	}
	if a.ElapsedSeconds == 0 {
		a.ElapsedSeconds = timeSpan(series.timestamps)
	}
	if a.DistanceMeters == 0 {
		a.DistanceMeters = safePositive(lastFinite(series.distances))
	}

	if a.ElevationGainM, err = s.TotalElevation(); err != nil {
		return nil, err
	}
	if a.HighAltitudeDistanceM, err = s.HighAltitudeDistance(); err != nil {
		return nil, err
	}
	if a.HighAltitudeSamples, err = s.HighAltitudeTime(); err != nil {
		return nil, err
	}
	// Session.LowAltitudeDistance only covers the first lap.
	a.LowAltitudeDistanceM = safePositive(a.DistanceMeters - a.HighAltitudeDistanceM)
	if a.MaxGrade, err = s.MaxGrade(); err != nil {
		return nil, err
	}
	if math.IsNaN(a.MaxGrade) {
		a.MaxGrade = 0
	}

	a.MaxSpeedMps = maxValue(series.speeds)
	a.AvgSpeedMps = average(series.speeds)
	if a.AvgSpeedMps == 0 && a.ElapsedSeconds > 0 {
		a.AvgSpeedMps = a.DistanceMeters / a.ElapsedSeconds
	}

	if a.HasPower, err = s.HasPowers(); err != nil {
		return nil, err
	}
	power := finiteValues(series.powers)
	a.AvgPowerWatts = average(power)
	a.MaxPowerWatts = maxValue(power)
	a.NormalizedPower = normalizedPower(power)
	a.WorkKilojoules = workKilojoules(series.timestamps, series.powers)

	a.AvgHeartRate = average(series.heartRate)
	if a.AvgHeartRate == 0 {
		if mean, err := s.MeanHeartRate(); err == nil {
			a.AvgHeartRate = safePositive(mean)
		}
	}
	a.MaxHeartRate = maxValue(series.heartRate)
	a.AvgCadence = average(series.cadences)
	a.MaxCadence = maxValue(series.cadences)

	a.Best20MinPower = bestRollingPower(power, 20*60)
	a.FTPWatts = safePositive(cfg.FTPWatts)
	if a.FTPWatts > 0 {
		a.FTPSource = "input"
	} else {
		estimated := estimateFTP(power)
		if estimated > 0 {
			a.FTPWatts = estimated
			a.FTPSource = "estimated"
		} else {
			a.FTPSource = "unavailable"
		}
	}

	if a.AvgPowerWatts > 0 {
		a.VariabilityIndex = a.NormalizedPower / a.AvgPowerWatts
	}
	if a.FTPWatts > 0 && a.NormalizedPower > 0 {
		a.IntensityFactor = a.NormalizedPower / a.FTPWatts
	}
	if a.ElapsedSeconds > 0 && a.IntensityFactor > 0 {
		a.TrainingStress = (a.ElapsedSeconds / secondsPerHour) * a.IntensityFactor * a.IntensityFactor * 100.0
	}

	pairedPower, pairedHR := pairPowerHR(series.powers, series.heartRate)
	a.PowerHRDecoupling = powerHRDecoupling(pairedPower, pairedHR)
	a.PowerZones = buildPowerZones(power, a.FTPWatts)
	a.Laps = summarizeLaps(laps, series)
	a.Notes = BuildTrainingNotes(a)

	return a, nil
}

func loadSeries(s *Session) (sessionSeries, error) {
	var (
		ss  sessionSeries
		err error
	)
	if ss.timestamps, err = s.Timestamps(); err != nil {
		return ss, err
	}
	if ss.powers, err = s.Powers(); err != nil {
		return ss, err
	}
	if ss.speeds, err = s.Speeds(); err != nil {
		return ss, err
	}
	if ss.distances, err = s.Distances(); err != nil {
		return ss, err
	}
	if ss.heartRate, err = s.HeartRate(); err != nil {
		return ss, err
	}
	if ss.cadences, err = s.Cadences(); err != nil {
		return ss, err
	}
	if ss.elevations, err = s.Elevations(); err != nil {
		return ss, err
	}
	return ss, nil
}

// summarizeLaps assigns trackpoints to laps in document order, each lap taking
// as many samples as it contains trackpoints.
func summarizeLaps(laps []Lap, series sessionSeries) []LapSummary {
	if len(laps) == 0 {
		return nil
	}

	summaries := make([]LapSummary, 0, len(laps))
	offset := 0.0
	pos := 0
	for _, lap := range laps {
		duration := safePositive(lap.TotalTimeSeconds)
		end := min(pos+lap.Trackpoints, len(series.powers))

		summary := LapSummary{
			Lap:                lap,
			StartOffsetSeconds: offset,
			EndOffsetSeconds:   offset + duration,
		}
		if pos < end {
			power := finiteValues(series.powers[pos:end])
			summary.AvgPowerWatts = average(power)
			summary.MaxPowerWatts = maxValue(power)
			if end <= len(series.cadences) {
				summary.AvgCadence = average(series.cadences[pos:end])
			}
			if end <= len(series.elevations) {
				for _, e := range series.elevations[pos:end] {
					if e > 0 {
						summary.ElevationGainM += e
					}
				}
			}
		}
		summaries = append(summaries, summary)
		offset += duration
		pos = end
	}
	return summaries
}

func buildPowerZones(powerSamples []float64, ftp float64) []ZoneDuration {
	if ftp <= 0 || len(powerSamples) == 0 {
		return nil
	}

	type boundary struct {
		zone string
		min  float64
		max  float64
	}
	zones := []boundary{
		{zone: "Z1 Active Recovery", min: 0, max: 55},
		{zone: "Z2 Endurance", min: 55, max: 75},
		{zone: "Z3 Tempo", min: 75, max: 90},
		{zone: "Z4 Threshold", min: 90, max: 105},
		{zone: "Z5 VO2", min: 105, max: 120},
		{zone: "Z6 Anaerobic", min: 120, max: 150},
		{zone: "Z7 Neuromuscular", min: 150, max: 1000},
	}

	counts := make([]int, len(zones))
	total := 0
	for _, p := range powerSamples {
		if p < 0 {
			continue
		}
		percent := (p / ftp) * 100.0
		for i, z := range zones {
			if percent >= z.min && percent < z.max {
				counts[i]++
				total++
				break
			}
		}
	}
	if total == 0 {
		return nil
	}

	out := make([]ZoneDuration, 0, len(zones))
	for i, z := range zones {
		seconds := float64(counts[i])
		out = append(out, ZoneDuration{
			Zone:       z.zone,
			MinPctFTP:  z.min,
			MaxPctFTP:  z.max,
			Seconds:    seconds,
			Percentage: (seconds / float64(total)) * 100.0,
		})
	}
	return out
}

// normalizedPower uses a 30-sample rolling mean, which assumes 1 Hz recording.
func normalizedPower(powerSamples []float64) float64 {
	if len(powerSamples) == 0 {
		return 0
	}
	if len(powerSamples) < 30 {
		return average(powerSamples)
	}

	rolling, err := movingAverage(powerSamples, 30)
	if err != nil {
		return average(powerSamples)
	}
	fourthPowerTotal := 0.0
	for _, r := range rolling {
		fourthPowerTotal += math.Pow(r, 4)
	}
	return math.Pow(fourthPowerTotal/float64(len(rolling)), 0.25)
}

func estimateFTP(powerSamples []float64) float64 {
	best20 := bestRollingPower(powerSamples, 20*60)
	if best20 <= 0 {
		return 0
	}
	return best20 * 0.95
}

func bestRollingPower(powerSamples []float64, samples int) float64 {
	if len(powerSamples) == 0 || samples <= 0 {
		return 0
	}
	if len(powerSamples) < samples {
		return average(powerSamples)
	}

	rolling, err := movingAverage(powerSamples, samples)
	if err != nil {
		return 0
	}
	return maxValue(rolling)
}

func pairPowerHR(power, hr []float64) ([]float64, []float64) {
	n := min(len(power), len(hr))
	pairedPower := make([]float64, 0, n)
	pairedHR := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !isFinite(power[i]) || !isFinite(hr[i]) || hr[i] <= 0 {
			continue
		}
		pairedPower = append(pairedPower, power[i])
		pairedHR = append(pairedHR, hr[i])
	}
	return pairedPower, pairedHR
}

func powerHRDecoupling(power, hr []float64) float64 {
	n := len(power)
	if n == 0 || n != len(hr) || n < 20 {
		return 0
	}
	mid := n / 2

	p1, h1 := average(power[:mid]), average(hr[:mid])
	p2, h2 := average(power[mid:]), average(hr[mid:])
	if p1 == 0 || p2 == 0 || h1 == 0 || h2 == 0 {
		return 0
	}

	firstRatio := p1 / h1
	secondRatio := p2 / h2
	return ((secondRatio / firstRatio) - 1.0) * 100.0
}

// workKilojoules integrates power over trackpoint time deltas. Without
// timestamps every sample counts as one second.
func workKilojoules(timestamps []time.Time, power []float64) float64 {
	joules := 0.0
	integrated := false
	for i := 1; i < len(power) && i < len(timestamps); i++ {
		prev, cur := timestamps[i-1], timestamps[i]
		if prev.IsZero() || cur.IsZero() || !isFinite(power[i-1]) {
			continue
		}
		delta := cur.Sub(prev).Seconds()
		if delta > 0 && delta <= maxWorkGapSeconds {
			joules += power[i-1] * delta
			integrated = true
		}
	}
	if !integrated {
		for _, p := range power {
			if isFinite(p) {
				joules += p
			}
		}
	}
	return joules / 1000.0
}

func firstTime(ts []time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func timeSpan(ts []time.Time) float64 {
	first := firstTime(ts)
	if first.IsZero() {
		return 0
	}
	for i := len(ts) - 1; i >= 0; i-- {
		if !ts[i].IsZero() {
			return safePositive(ts[i].Sub(first).Seconds())
		}
	}
	return 0
}

func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if isFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

func lastFinite(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if isFinite(values[i]) {
			return values[i]
		}
	}
	return 0
}

func average(values []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func maxValue(values []float64) float64 {
	max := 0.0
	found := false
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !found || v > max {
			max = v
			found = true
		}
	}
	return max
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}
