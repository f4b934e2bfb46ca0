package tcx

import (
	"encoding/xml"
	"fmt"
	"time"
)

// Lap is the summary block of one activity lap. Numeric fields absent from the
// document are 0.
type Lap struct {
	Index            int       `json:"index"`
	StartTime        time.Time `json:"start_time"`
	TotalTimeSeconds float64   `json:"total_time_seconds"`
	DistanceMeters   float64   `json:"distance_meters"`
	Calories         int       `json:"calories"`
	AvgHeartRate     float64   `json:"avg_heart_rate_bpm"`
	MaxHeartRate     float64   `json:"max_heart_rate_bpm"`
	Intensity        string    `json:"intensity,omitempty"`
	TriggerMethod    string    `json:"trigger_method,omitempty"`
	Trackpoints      int       `json:"trackpoints"`
}

// Laps returns every lap of the activity in document order.
func (s *Session) Laps() ([]Lap, error) {
	var laps []Lap
	for _, c := range s.activity.Children {
		if c.Name != nameLap {
			continue
		}
		lap, err := readLap(c, len(laps)+1)
		if err != nil {
			return nil, fmt.Errorf("lap %d: %w", len(laps)+1, err)
		}
		laps = append(laps, lap)
	}
	return laps, nil
}

func readLap(n *Node, index int) (Lap, error) {
	lap := Lap{
		Index:       index,
		Trackpoints: len(n.Find(nameTrackpoint)),
	}

	if raw, ok := n.Attr("StartTime"); ok {
		ts, err := parseTimestamp(raw)
		if err != nil {
			return Lap{}, fmt.Errorf("StartTime %q: %w", raw, ErrInvalidValue)
		}
		lap.StartTime = ts
	}

	fields := []struct {
		dst  *float64
		path []xml.Name
	}{
		{&lap.TotalTimeSeconds, []xml.Name{nameTotalTime}},
		{&lap.DistanceMeters, []xml.Name{nameDistanceMeters}},
		{&lap.AvgHeartRate, []xml.Name{nameAvgHeartRate, nameValue}},
		{&lap.MaxHeartRate, []xml.Name{nameMaxHeartRate, nameValue}},
	}
	for _, f := range fields {
		c := n.Child(f.path...)
		if c == nil {
			continue
		}
		v, err := parseFloat(c)
		if err != nil {
			return Lap{}, err
		}
		*f.dst = v
	}

	if c := n.Child(nameCalories); c != nil {
		v, err := parseFloat(c)
		if err != nil {
			return Lap{}, err
		}
		lap.Calories = int(v)
	}
	if c := n.Child(nameIntensity); c != nil {
		lap.Intensity = c.TrimmedText()
	}
	if c := n.Child(nameTriggerMethod); c != nil {
		lap.TriggerMethod = c.TrimmedText()
	}
	return lap, nil
}
