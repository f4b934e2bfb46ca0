// Package fitexport converts a parsed TCX session into a FIT activity file.
package fitexport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tormoder/fit"

	tcx "github.com/lucasjlepore/tcx-analyzer"
)

// Encode writes s as a little-endian FIT activity file with one record per
// trackpoint, one lap message per lap and a single session message. Missing
// samples keep the FIT invalid value for their field.
func Encode(w io.Writer, s *tcx.Session) error {
	file, err := Build(s)
	if err != nil {
		return err
	}
	if err := fit.Encode(w, file, binary.LittleEndian); err != nil {
		return fmt.Errorf("encode FIT file: %w", err)
	}
	return nil
}

// Build assembles the FIT activity for s without encoding it.
func Build(s *tcx.Session) (*fit.File, error) {
	series, err := loadSamples(s)
	if err != nil {
		return nil, err
	}
	laps, err := s.Laps()
	if err != nil {
		return nil, err
	}

	start := series.start()
	if start.IsZero() {
		if start, err = s.Datetime(); err != nil {
			return nil, fmt.Errorf("FIT export needs a start time: %w", err)
		}
	}
	end := series.end(start)

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		return nil, fmt.Errorf("new FIT file: %w", err)
	}
	file.FileId.TimeCreated = start

	activity, err := file.Activity()
	if err != nil {
		return nil, fmt.Errorf("FIT activity: %w", err)
	}
	sport := mapSport(s.Sport())

	activity.Events = append(activity.Events,
		timerEvent(start, fit.EventTypeStart),
		timerEvent(end, fit.EventTypeStopAll),
	)

	last := start
	for i := range series.distances {
		ts := series.timestamps[i]
		if ts.IsZero() || ts.Before(last) {
			ts = last
		}
		last = ts
		activity.Records = append(activity.Records, series.record(i, ts))
	}

	lapStart := start
	for _, lap := range laps {
		msg := fit.NewLapMsg()
		if !lap.StartTime.IsZero() {
			lapStart = lap.StartTime
		}
		lapEnd := lapStart.Add(seconds(lap.TotalTimeSeconds))
		msg.Timestamp = lapEnd
		msg.StartTime = lapStart
		msg.Event = fit.EventLap
		msg.EventType = fit.EventTypeStop
		msg.Sport = sport
		msg.TotalElapsedTime = scaleUint32(lap.TotalTimeSeconds, 1000)
		msg.TotalTimerTime = scaleUint32(lap.TotalTimeSeconds, 1000)
		msg.TotalDistance = scaleUint32(lap.DistanceMeters, 100)
		if lap.Calories > 0 {
			msg.TotalCalories = uint16(min(lap.Calories, math.MaxUint16-1))
		}
		msg.AvgHeartRate = scaleUint8(lap.AvgHeartRate)
		msg.MaxHeartRate = scaleUint8(lap.MaxHeartRate)
		activity.Laps = append(activity.Laps, msg)
		lapStart = lapEnd
	}

	session := fit.NewSessionMsg()
	session.Timestamp = end
	session.StartTime = start
	session.Event = fit.EventSession
	session.EventType = fit.EventTypeStop
	session.Sport = sport
	session.NumLaps = uint16(len(activity.Laps))
	sum := lapTotals(laps)
	if sum.seconds == 0 {
		sum.seconds = end.Sub(start).Seconds()
	}
	session.TotalElapsedTime = scaleUint32(sum.seconds, 1000)
	session.TotalTimerTime = scaleUint32(sum.seconds, 1000)
	session.TotalDistance = scaleUint32(sum.meters, 100)
	if sum.calories > 0 {
		session.TotalCalories = uint16(min(sum.calories, math.MaxUint16-1))
	}
	if gain, err := s.TotalElevation(); err == nil && gain > 0 {
		session.TotalAscent = uint16(min(math.Round(gain), math.MaxUint16-1))
	}
	activity.Sessions = append(activity.Sessions, session)

	activity.Activity = fit.NewActivityMsg()
	activity.Activity.Timestamp = end
	activity.Activity.TotalTimerTime = scaleUint32(sum.seconds, 1000)
	activity.Activity.NumSessions = 1

	return file, nil
}

type sampleSeries struct {
	timestamps []time.Time
	powers     []float64
	heartRate  []float64
	cadences   []float64
	distances  []float64
	speeds     []float64
	altitudes  []float64
}

func loadSamples(s *tcx.Session) (sampleSeries, error) {
	var (
		out sampleSeries
		err error
	)
	if out.timestamps, err = s.Timestamps(); err != nil {
		return out, err
	}
	if out.powers, err = s.Powers(); err != nil {
		return out, err
	}
	if out.heartRate, err = s.HeartRate(); err != nil {
		return out, err
	}
	if out.cadences, err = s.Cadences(); err != nil {
		return out, err
	}
	if out.distances, err = s.Distances(); err != nil {
		return out, err
	}
	if out.speeds, err = s.Speeds(); err != nil {
		return out, err
	}
	if out.altitudes, err = s.Altitudes(); err != nil {
		return out, err
	}
	return out, nil
}

func (s sampleSeries) start() time.Time {
	for _, ts := range s.timestamps {
		if !ts.IsZero() {
			return ts
		}
	}
	return time.Time{}
}

func (s sampleSeries) end(start time.Time) time.Time {
	for i := len(s.timestamps) - 1; i >= 0; i-- {
		if ts := s.timestamps[i]; !ts.IsZero() && ts.After(start) {
			return ts
		}
	}
	return start
}

func (s sampleSeries) record(i int, ts time.Time) *fit.RecordMsg {
	rec := fit.NewRecordMsg()
	rec.Timestamp = ts
	if v, ok := valid(s.powers[i], math.MaxUint16-1); ok {
		rec.Power = uint16(math.Round(v))
	}
	if v, ok := valid(s.heartRate[i], math.MaxUint8-1); ok {
		rec.HeartRate = uint8(math.Round(v))
	}
	if v, ok := valid(s.cadences[i], math.MaxUint8-1); ok {
		rec.Cadence = uint8(math.Round(v))
	}
	if v, ok := valid(s.distances[i]*100, math.MaxUint32-1); ok {
		rec.Distance = uint32(math.Round(v))
	}
	if v, ok := valid(s.speeds[i]*1000, math.MaxUint16-1); ok {
		rec.Speed = uint16(math.Round(v))
	}
	// Altitude is stored as (meters + 500) * 5.
	if v, ok := valid((s.altitudes[i]+500)*5, math.MaxUint16-1); ok {
		rec.Altitude = uint16(math.Round(v))
	}
	return rec
}

type totals struct {
	seconds  float64
	meters   float64
	calories int
}

func lapTotals(laps []tcx.Lap) totals {
	var t totals
	for _, lap := range laps {
		t.seconds += max(lap.TotalTimeSeconds, 0)
		t.meters += max(lap.DistanceMeters, 0)
		t.calories += max(lap.Calories, 0)
	}
	return t
}

func timerEvent(ts time.Time, kind fit.EventType) *fit.EventMsg {
	ev := fit.NewEventMsg()
	ev.Timestamp = ts
	ev.Event = fit.EventTimer
	ev.EventType = kind
	return ev
}

func mapSport(sport string) fit.Sport {
	switch sport {
	case "Biking":
		return fit.SportCycling
	case "Running":
		return fit.SportRunning
	default:
		return fit.SportGeneric
	}
}

// valid reports whether v is a finite value in [0, limit].
func valid(v, limit float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > limit {
		return 0, false
	}
	return v, true
}

func scaleUint32(v, scale float64) uint32 {
	if scaled, ok := valid(v*scale, math.MaxUint32-1); ok {
		return uint32(math.Round(scaled))
	}
	return 0
}

func scaleUint8(v float64) uint8 {
	if bpm, ok := valid(v, math.MaxUint8-1); ok && bpm > 0 {
		return uint8(math.Round(bpm))
	}
	return math.MaxUint8
}

func seconds(v float64) time.Duration {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
