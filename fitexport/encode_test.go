package fitexport

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/tormoder/fit"

	tcx "github.com/lucasjlepore/tcx-analyzer"
	"github.com/lucasjlepore/tcx-analyzer/internal/tcxtest"
)

var start = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func fixture(sport string) []byte {
	pts := make([]tcxtest.Point, 5)
	for i := range pts {
		pts[i] = tcxtest.Point{
			Time:      start.Add(time.Duration(i) * time.Second),
			Distance:  float64(i) * 7.5,
			Altitude:  1600 + float64(i),
			HeartRate: 140 + float64(i),
			Cadence:   88,
			Watts:     210,
			Speed:     7.5,
		}
	}
	pts[2].Watts = tcxtest.Missing
	return tcxtest.Build(tcxtest.Activity{
		Sport: sport,
		ID:    start.Format(time.RFC3339),
		Laps: []tcxtest.Lap{{
			Start:     start,
			TotalTime: 4,
			Distance:  30,
			Calories:  12,
			AvgHR:     142,
			MaxHR:     144,
			Points:    pts,
		}},
	})
}

func TestEncodeRoundTripsThroughDecoder(t *testing.T) {
	s, err := tcx.Parse(bytes.NewReader(fixture("Biking")), tcx.WithRecovery(false))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	decoded, err := fit.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode FIT: %v", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}

	if len(activity.Records) != 5 {
		t.Fatalf("got %d records, want 5", len(activity.Records))
	}
	first := activity.Records[0]
	if !first.Timestamp.Equal(start) {
		t.Fatalf("first record timestamp = %v, want %v", first.Timestamp, start)
	}
	if first.Power != 210 || first.HeartRate != 140 || first.Cadence != 88 {
		t.Fatalf("first record power/hr/cadence = %d/%d/%d", first.Power, first.HeartRate, first.Cadence)
	}
	if activity.Records[2].Power != math.MaxUint16 {
		t.Fatalf("missing power encoded as %d, want invalid", activity.Records[2].Power)
	}
	if got := activity.Records[4].GetDistanceScaled(); math.Abs(got-30) > 0.01 {
		t.Fatalf("last record distance = %v, want 30", got)
	}
	if got := activity.Records[1].GetAltitudeScaled(); math.Abs(got-1601) > 0.2 {
		t.Fatalf("altitude = %v, want 1601", got)
	}

	if len(activity.Laps) != 1 || activity.Laps[0].TotalCalories != 12 {
		t.Fatalf("laps = %+v", activity.Laps)
	}
	if len(activity.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(activity.Sessions))
	}
	session := activity.Sessions[0]
	if session.Sport != fit.SportCycling {
		t.Fatalf("session sport = %v, want cycling", session.Sport)
	}
	if got := session.GetTotalDistanceScaled(); math.Abs(got-30) > 0.01 {
		t.Fatalf("session distance = %v, want 30", got)
	}
	if session.TotalAscent != 4 {
		t.Fatalf("session ascent = %d, want 4", session.TotalAscent)
	}
}

func TestMapSport(t *testing.T) {
	tests := map[string]fit.Sport{
		"Biking":  fit.SportCycling,
		"Running": fit.SportRunning,
		"Other":   fit.SportGeneric,
		"":        fit.SportGeneric,
	}
	for in, want := range tests {
		if got := mapSport(in); got != want {
			t.Fatalf("mapSport(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuildNeedsStartTime(t *testing.T) {
	doc := tcxtest.Build(tcxtest.Activity{
		Laps: []tcxtest.Lap{{
			TotalTime: tcxtest.Missing,
			Distance:  tcxtest.Missing,
			Calories:  -1,
			AvgHR:     tcxtest.Missing,
			MaxHR:     tcxtest.Missing,
			Points:    []tcxtest.Point{tcxtest.EmptyPoint()},
		}},
	})
	s, err := tcx.Parse(bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, err := Build(s); err == nil {
		t.Fatal("expected error without any timestamp or Id")
	}
}
