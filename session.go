// Package tcx extracts per-sample telemetry and derived metrics from Garmin TCX
// activity files.
package tcx

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Session gives lazy, memoized access to the telemetry of one TCX activity.
//
// Every series and scalar is computed on first access and cached for the
// lifetime of the Session. A failed computation is not cached, so a later call
// runs the same query again. A Session is not safe for concurrent use; give each
// goroutine its own Session.
type Session struct {
	root     *Node
	activity *Node
	params   Params
	logger   *slog.Logger

	trackpoints memo[[]*Node]
	timestamps  memo[[]time.Time]
	start       memo[time.Time]

	powers     memo[[]float64]
	speeds     memo[[]float64]
	distances  memo[[]float64]
	altitudes  memo[[]float64]
	heartRate  memo[[]float64]
	moves      memo[[]float64]
	elevations memo[[]float64]
	grades     memo[[]float64]

	highAltitudeDistance memo[float64]
}

type memo[T any] struct {
	value T
	ok    bool
}

func (m *memo[T]) get(compute func() (T, error)) (T, error) {
	if m.ok {
		return m.value, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	m.value, m.ok = v, true
	return v, nil
}

// Open parses the TCX file at path.
func Open(path string, opts ...Option) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open TCX file: %w", err)
	}
	defer f.Close()

	s, err := Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse reads a TCX document from r. It fails with ErrStructure when the
// document has no Activities/Activity node.
func Parse(r io.Reader, opts ...Option) (*Session, error) {
	o := buildOptions(opts)

	root, err := parseDocument(r)
	if err != nil {
		return nil, fmt.Errorf("parse TCX document: %w", err)
	}
	activity := root.Child(nameActivities, nameActivity)
	if activity == nil {
		return nil, fmt.Errorf("missing Activities/Activity node: %w", ErrStructure)
	}

	s := &Session{
		root:     root,
		activity: activity,
		params:   o.params,
		logger:   o.logger,
	}
	if o.preRead {
		if err := s.preRead(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) preRead() error {
	if _, err := s.powerSeries(); err != nil {
		return err
	}
	if _, err := s.distanceSeries(); err != nil {
		return err
	}
	if _, err := s.speedSeries(); err != nil {
		return err
	}
	if _, err := s.HighAltitudeDistance(); err != nil {
		return err
	}
	return nil
}

// Params returns the parameters the Session was built with.
func (s *Session) Params() Params {
	return s.params
}

// Activity returns the Activities/Activity node.
func (s *Session) Activity() *Node {
	return s.activity
}

// Features flattens the activity node into nested maps. See Flatten.
func (s *Session) Features() map[string]any {
	return Flatten(s.activity)
}

// Sport returns the Sport attribute of the activity, or "" when absent.
func (s *Session) Sport() string {
	sport, _ := s.activity.Attr("Sport")
	return sport
}

// Query returns every node matching path, where each segment is "prefix:Local"
// or a bare TrainingCenterDatabase local name. It fails with ErrNotFound when
// nothing matches.
func (s *Session) Query(path ...string) ([]*Node, error) {
	names, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	nodes := s.root.Find(names...)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(path, "/"), ErrNotFound)
	}
	return nodes, nil
}

// Text returns the trimmed text of the first node matching path.
func (s *Session) Text(path ...string) (string, error) {
	nodes, err := s.Query(path...)
	if err != nil {
		return "", err
	}
	return nodes[0].TrimmedText(), nil
}

// Powers returns Extensions/TPX/Watts per trackpoint, NaN where absent.
func (s *Session) Powers() ([]float64, error) {
	return cloneSeries(s.powerSeries())
}

// Speeds returns Extensions/TPX/Speed per trackpoint, NaN where absent.
func (s *Session) Speeds() ([]float64, error) {
	return cloneSeries(s.speedSeries())
}

// Distances returns DistanceMeters per trackpoint.
func (s *Session) Distances() ([]float64, error) {
	return cloneSeries(s.distanceSeries())
}

// Altitudes returns AltitudeMeters per trackpoint.
func (s *Session) Altitudes() ([]float64, error) {
	return cloneSeries(s.altitudeSeries())
}

// HeartRate returns HeartRateBpm/Value per trackpoint. It is never gap-filled.
func (s *Session) HeartRate() ([]float64, error) {
	return cloneSeries(s.heartRate.get(func() ([]float64, error) {
		v, err := s.readTrackpoints(nameHeartRateBpm, nameValue)
		if err != nil {
			return nil, fmt.Errorf("heart rate: %w", err)
		}
		s.logComputed("heart_rate", v)
		return v, nil
	}))
}

// Cadences returns Cadence per trackpoint. Unlike the other series it is read
// from the document on every call.
func (s *Session) Cadences() ([]float64, error) {
	v, err := s.readTrackpoints(nameCadence)
	if err != nil {
		return nil, fmt.Errorf("cadences: %w", err)
	}
	if s.params.Recovery {
		v = FillGaps(v)
	}
	return v, nil
}

// Moves returns the distance covered from each sample to the next. The last
// sample has no successor and moves 0.
func (s *Session) Moves() ([]float64, error) {
	return cloneSeries(s.moveSeries())
}

// Elevations returns the positive altitude gain from each sample to the next;
// descents and the last sample contribute 0.
func (s *Session) Elevations() ([]float64, error) {
	return cloneSeries(s.elevationSeries())
}

// Grades returns the slope of each sample as a scaled arcsine of
// elevation/move. Samples without forward movement or with a rise above the
// move are NaN before gap filling.
func (s *Session) Grades() ([]float64, error) {
	return cloneSeries(s.gradeSeries())
}

// MaxGrade returns the largest finite grade, or NaN when there is none.
func (s *Session) MaxGrade() (float64, error) {
	grades, err := s.gradeSeries()
	if err != nil {
		return 0, err
	}
	best := math.NaN()
	for _, g := range grades {
		if isFinite(g) && (math.IsNaN(best) || g > best) {
			best = g
		}
	}
	return best, nil
}

// Timestamps returns the Time of each trackpoint; the zero time marks a
// trackpoint without one.
func (s *Session) Timestamps() ([]time.Time, error) {
	v, err := s.timestamps.get(func() ([]time.Time, error) {
		tps := s.trackpointNodes()
		out := make([]time.Time, len(tps))
		for i, tp := range tps {
			n := tp.Child(nameTime)
			if n == nil {
				continue
			}
			ts, err := parseTimestamp(n.TrimmedText())
			if err != nil {
				return nil, fmt.Errorf("trackpoint %d time %q: %w", i, n.TrimmedText(), ErrInvalidValue)
			}
			out[i] = ts
		}
		return out, nil
	})
	return slices.Clone(v), err
}

// HighAltitudeDistance sums the moves of samples at or above Params.HighAltitude.
func (s *Session) HighAltitudeDistance() (float64, error) {
	return s.highAltitudeDistance.get(func() (float64, error) {
		moves, err := s.moveSeries()
		if err != nil {
			return 0, err
		}
		altitudes, err := s.altitudeSeries()
		if err != nil {
			return 0, err
		}
		total := 0.0
		for i := 0; i < len(moves) && i < len(altitudes); i++ {
			if altitudes[i] >= s.params.HighAltitude {
				total += moves[i]
			}
		}
		return total, nil
	})
}

// LowAltitudeDistance is TotalDistance minus HighAltitudeDistance.
func (s *Session) LowAltitudeDistance() (float64, error) {
	total, err := s.TotalDistance()
	if err != nil {
		return 0, err
	}
	high, err := s.HighAltitudeDistance()
	if err != nil {
		return 0, err
	}
	return total - high, nil
}

// HighAltitudeTime counts the samples at or above Params.HighAltitude. The
// result is a sample count, not seconds.
func (s *Session) HighAltitudeTime() (int, error) {
	altitudes, err := s.altitudeSeries()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range altitudes {
		if a >= s.params.HighAltitude {
			count++
		}
	}
	return count, nil
}

// TotalElevation sums the positive elevation gains.
func (s *Session) TotalElevation() (float64, error) {
	elevations, err := s.elevationSeries()
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, e := range elevations {
		if e > 0 {
			total += e
		}
	}
	return total, nil
}

// HasPowers reports whether at least one power sample is present.
func (s *Session) HasPowers() (bool, error) {
	powers, err := s.powerSeries()
	if err != nil {
		return false, err
	}
	for _, p := range powers {
		if !math.IsNaN(p) {
			return true, nil
		}
	}
	return false, nil
}

// MeanPowerInterval returns the moving average of Powers over every complete
// window of the given number of samples. It fails with ErrInvalidValue when
// window is not in [1, len(Powers)].
func (s *Session) MeanPowerInterval(window int) ([]float64, error) {
	powers, err := s.powerSeries()
	if err != nil {
		return nil, err
	}
	return movingAverage(powers, window)
}

// Datetime returns the session start parsed from the first Id element.
func (s *Session) Datetime() (time.Time, error) {
	return s.start.get(func() (time.Time, error) {
		ids := s.root.Find(nameID)
		if len(ids) == 0 {
			return time.Time{}, fmt.Errorf("session id: %w", ErrNotFound)
		}
		raw := ids[0].TrimmedText()
		text := strings.ReplaceAll(strings.ReplaceAll(raw, "T", " "), "Z", "")
		ts, err := time.ParseInLocation(idLayout, text, time.UTC)
		if err == nil {
			return ts, nil
		}
		if ts, err = parseTimestamp(raw); err != nil {
			return time.Time{}, fmt.Errorf("session id %q: %w", raw, ErrInvalidValue)
		}
		return ts, nil
	})
}

// parseTimestamp reads an RFC 3339 time in UTC. Text without a zone, as some
// exporters write it, is taken as UTC.
func parseTimestamp(text string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return ts.UTC(), nil
	}
	return time.ParseInLocation(localLayout, text, time.UTC)
}

// Date returns the calendar date of Datetime at midnight UTC.
func (s *Session) Date() (time.Time, error) {
	ts, err := s.Datetime()
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// TotalDistance returns DistanceMeters of the first lap.
func (s *Session) TotalDistance() (float64, error) {
	return s.lapValue(nameDistanceMeters)
}

// Calories returns Calories of the first lap.
func (s *Session) Calories() (int, error) {
	v, err := s.lapValue(nameCalories)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// TotalTime returns TotalTimeSeconds of the first lap.
func (s *Session) TotalTime() (float64, error) {
	return s.lapValue(nameTotalTime)
}

// MeanHeartRate returns AverageHeartRateBpm/Value of the first lap.
func (s *Session) MeanHeartRate() (float64, error) {
	return s.lapValue(nameAvgHeartRate, nameValue)
}

func (s *Session) lapValue(path ...xml.Name) (float64, error) {
	full := append([]xml.Name{nameLap}, path...)
	nodes := s.root.Find(full...)
	if len(nodes) == 0 {
		return 0, fmt.Errorf("%s: %w", joinNames(full), ErrNotFound)
	}
	return parseFloat(nodes[0])
}

func (s *Session) powerSeries() ([]float64, error) {
	return s.powers.get(func() ([]float64, error) {
		return s.recoverable("powers", nameExtensions, nameTPX, nameWatts)
	})
}

func (s *Session) speedSeries() ([]float64, error) {
	return s.speeds.get(func() ([]float64, error) {
		return s.recoverable("speeds", nameExtensions, nameTPX, nameSpeed)
	})
}

func (s *Session) distanceSeries() ([]float64, error) {
	return s.distances.get(func() ([]float64, error) {
		return s.recoverable("distances", nameDistanceMeters)
	})
}

func (s *Session) altitudeSeries() ([]float64, error) {
	return s.altitudes.get(func() ([]float64, error) {
		return s.recoverable("altitudes", nameAltitudeMeters)
	})
}

func (s *Session) moveSeries() ([]float64, error) {
	return s.moves.get(func() ([]float64, error) {
		distances, err := s.distanceSeries()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(distances))
		for i := range distances {
			next := distances[len(distances)-1]
			if i+1 < len(distances) {
				next = distances[i+1]
			}
			out[i] = next - distances[i]
		}
		s.logComputed("moves", out)
		return out, nil
	})
}

func (s *Session) elevationSeries() ([]float64, error) {
	return s.elevations.get(func() ([]float64, error) {
		altitudes, err := s.altitudeSeries()
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(altitudes))
		for i := range altitudes {
			next := altitudes[len(altitudes)-1]
			if i+1 < len(altitudes) {
				next = altitudes[i+1]
			}
			if diff := next - altitudes[i]; diff > 0 {
				out[i] = diff
			}
		}
		if s.params.Recovery {
			out = FillGaps(out)
		}
		s.logComputed("elevations", out)
		return out, nil
	})
}

func (s *Session) gradeSeries() ([]float64, error) {
	return s.grades.get(func() ([]float64, error) {
		elevations, err := s.elevationSeries()
		if err != nil {
			return nil, err
		}
		moves, err := s.moveSeries()
		if err != nil {
			return nil, err
		}

		ratios := make([]float64, min(len(elevations), len(moves)))
		for i := range ratios {
			ratios[i] = math.NaN()
			if moves[i] > 0 {
				if r := elevations[i] / moves[i]; r <= 1 {
					ratios[i] = r
				}
			}
		}
		if s.params.Recovery {
			ratios = FillGaps(ratios)
		}
		out, err := GradeArcsin(ratios)
		if err != nil {
			return nil, fmt.Errorf("grades: %w", err)
		}
		s.logComputed("grades", out)
		return out, nil
	})
}

// recoverable reads one value per trackpoint and gap-fills the series when
// recovery is enabled.
func (s *Session) recoverable(series string, path ...xml.Name) ([]float64, error) {
	v, err := s.readTrackpoints(path...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", series, err)
	}
	if s.params.Recovery {
		v = FillGaps(v)
	}
	s.logComputed(series, v)
	return v, nil
}

func (s *Session) readTrackpoints(path ...xml.Name) ([]float64, error) {
	tps := s.trackpointNodes()
	out := make([]float64, len(tps))
	for i, tp := range tps {
		n := tp.Child(path...)
		if n == nil {
			out[i] = math.NaN()
			continue
		}
		v, err := parseFloat(n)
		if err != nil {
			return nil, fmt.Errorf("trackpoint %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Session) trackpointNodes() []*Node {
	tps, _ := s.trackpoints.get(func() ([]*Node, error) {
		return s.root.Find(nameTrackpoint), nil
	})
	return tps
}

func (s *Session) logComputed(series string, values []float64) {
	s.logger.Debug("computed series",
		"series", series,
		"samples", len(values),
		"recovery", s.params.Recovery,
	)
}

func parseFloat(n *Node) (float64, error) {
	text := n.TrimmedText()
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", n.Name.Local, text, ErrInvalidValue)
	}
	return v, nil
}

func joinNames(names []xml.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n.Local
	}
	return strings.Join(parts, "/")
}

func cloneSeries(v []float64, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	return slices.Clone(v), nil
}
