package tcx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lucasjlepore/tcx-analyzer/internal/tcxtest"
)

var testStart = time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

// points builds trackpoints one second apart from parallel series. A nil
// series leaves that field missing on every point.
func points(distances, altitudes, watts []float64) []tcxtest.Point {
	n := max(len(distances), len(altitudes), len(watts))
	out := make([]tcxtest.Point, n)
	for i := range out {
		p := tcxtest.EmptyPoint()
		p.Time = testStart.Add(time.Duration(i) * time.Second)
		if i < len(distances) {
			p.Distance = distances[i]
		}
		if i < len(altitudes) {
			p.Altitude = altitudes[i]
		}
		if i < len(watts) {
			p.Watts = watts[i]
		}
		out[i] = p
	}
	return out
}

func singleLap(pts []tcxtest.Point, distance float64) tcxtest.Activity {
	return tcxtest.Activity{
		Sport: "Biking",
		ID:    "2021-03-04T05:06:07.000Z",
		Laps: []tcxtest.Lap{{
			Start:     testStart,
			TotalTime: float64(len(pts)),
			Distance:  distance,
			Calories:  42,
			AvgHR:     140,
			MaxHR:     170,
			Points:    pts,
		}},
	}
}

func parseActivity(t *testing.T, a tcxtest.Activity, opts ...Option) *Session {
	t.Helper()
	s, err := Parse(bytes.NewReader(tcxtest.Build(a)), opts...)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return s
}

func TestMovesAndAltitudeSplit(t *testing.T) {
	s := parseActivity(t, singleLap(points(
		[]float64{0, 10, 25, 25},
		[]float64{100, 1600, 1600, 100},
		nil,
	), 25))

	moves, err := s.Moves()
	if err != nil {
		t.Fatalf("Moves error: %v", err)
	}
	if !equalSeries(moves, []float64{10, 15, 0, 0}) {
		t.Fatalf("Moves = %v, want [10 15 0 0]", moves)
	}

	highTime, err := s.HighAltitudeTime()
	if err != nil {
		t.Fatalf("HighAltitudeTime error: %v", err)
	}
	if highTime != 2 {
		t.Fatalf("HighAltitudeTime = %d, want 2", highTime)
	}

	high, err := s.HighAltitudeDistance()
	if err != nil {
		t.Fatalf("HighAltitudeDistance error: %v", err)
	}
	low, err := s.LowAltitudeDistance()
	if err != nil {
		t.Fatalf("LowAltitudeDistance error: %v", err)
	}
	total, err := s.TotalDistance()
	if err != nil {
		t.Fatalf("TotalDistance error: %v", err)
	}
	if high != 15 || low != 10 {
		t.Fatalf("high/low = %v/%v, want 15/10", high, low)
	}
	if high+low != total {
		t.Fatalf("high %v + low %v != total %v", high, low, total)
	}

	elevations, err := s.Elevations()
	if err != nil {
		t.Fatalf("Elevations error: %v", err)
	}
	if !equalSeries(elevations, []float64{1500, 0, 0, 0}) {
		t.Fatalf("Elevations = %v", elevations)
	}
	gain, err := s.TotalElevation()
	if err != nil {
		t.Fatalf("TotalElevation error: %v", err)
	}
	if gain != 1500 {
		t.Fatalf("TotalElevation = %v, want 1500", gain)
	}
}

func TestHighAltitudeThresholdFromParams(t *testing.T) {
	a := singleLap(points([]float64{0, 10, 20}, []float64{900, 1000, 1100}, nil), 20)

	s := parseActivity(t, a, WithParams(Params{HighAltitude: 1000, Recovery: true}))
	got, err := s.HighAltitudeTime()
	if err != nil {
		t.Fatalf("HighAltitudeTime error: %v", err)
	}
	if got != 2 {
		t.Fatalf("HighAltitudeTime = %d, want 2", got)
	}
	if s.Params().HighAltitude != 1000 {
		t.Fatalf("Params().HighAltitude = %v", s.Params().HighAltitude)
	}
}

func TestMeanPowerInterval(t *testing.T) {
	s := parseActivity(t, singleLap(points(nil, nil, []float64{10, 20, 30}), 0))

	got, err := s.MeanPowerInterval(2)
	if err != nil {
		t.Fatalf("MeanPowerInterval error: %v", err)
	}
	if !equalSeries(got, []float64{15, 25}) {
		t.Fatalf("MeanPowerInterval = %v, want [15 25]", got)
	}
	if _, err := s.MeanPowerInterval(4); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue for oversized window, got %v", err)
	}
}

func TestHasPowers(t *testing.T) {
	withPower := parseActivity(t, singleLap(points(nil, nil, []float64{tcxtest.Missing, 250}), 0))
	ok, err := withPower.HasPowers()
	if err != nil || !ok {
		t.Fatalf("HasPowers = %v, %v; want true", ok, err)
	}

	noPower := parseActivity(t, singleLap(points([]float64{0, 5}, nil, nil), 5))
	ok, err = noPower.HasPowers()
	if err != nil || ok {
		t.Fatalf("HasPowers = %v, %v; want false", ok, err)
	}
	powers, err := noPower.Powers()
	if err != nil {
		t.Fatalf("Powers error: %v", err)
	}
	if len(powers) != 2 || !math.IsNaN(powers[0]) || !math.IsNaN(powers[1]) {
		t.Fatalf("Powers = %v, want two NaN", powers)
	}
}

func TestRecoveryFillsGaps(t *testing.T) {
	a := singleLap(points(nil, nil, []float64{tcxtest.Missing, 100, tcxtest.Missing, 200}), 0)

	s := parseActivity(t, a)
	got, err := s.Powers()
	if err != nil {
		t.Fatalf("Powers error: %v", err)
	}
	if !equalSeries(got, []float64{100, 100, 150, 200}) {
		t.Fatalf("recovered Powers = %v", got)
	}

	raw := parseActivity(t, a, WithRecovery(false))
	got, err = raw.Powers()
	if err != nil {
		t.Fatalf("Powers error: %v", err)
	}
	if !equalSeries(got, []float64{nan, 100, nan, 200}) {
		t.Fatalf("raw Powers = %v", got)
	}
}

func TestWithRecoveryOverridesParams(t *testing.T) {
	s := parseActivity(t, singleLap(nil, 0),
		WithRecovery(false),
		WithParams(Params{HighAltitude: 10, Recovery: true}),
	)
	if s.Params().Recovery {
		t.Fatal("WithRecovery(false) should win over WithParams")
	}
	if s.Params().HighAltitude != 10 {
		t.Fatalf("HighAltitude = %v, want 10", s.Params().HighAltitude)
	}
}

func TestHeartRateIsNeverFilled(t *testing.T) {
	pts := points([]float64{0, 1, 2}, nil, nil)
	pts[0].HeartRate = 120
	pts[2].HeartRate = 140

	s := parseActivity(t, singleLap(pts, 2))
	hr, err := s.HeartRate()
	if err != nil {
		t.Fatalf("HeartRate error: %v", err)
	}
	if !equalSeries(hr, []float64{120, nan, 140}) {
		t.Fatalf("HeartRate = %v", hr)
	}
}

func TestCadences(t *testing.T) {
	pts := points([]float64{0, 1, 2}, nil, nil)
	pts[0].Cadence = 80
	pts[2].Cadence = 90

	s := parseActivity(t, singleLap(pts, 2))
	got, err := s.Cadences()
	if err != nil {
		t.Fatalf("Cadences error: %v", err)
	}
	if !equalSeries(got, []float64{80, 85, 90}) {
		t.Fatalf("Cadences = %v", got)
	}
}

func TestGrades(t *testing.T) {
	a := singleLap(points(
		[]float64{0, 10, 20, 30},
		[]float64{100, 101, 103, 103},
		nil,
	), 30)
	steep := math.Asin(0.2) * gradeScale

	s := parseActivity(t, a)
	got, err := s.Grades()
	if err != nil {
		t.Fatalf("Grades error: %v", err)
	}
	if !equalSeries(got, []float64{steep, steep, 0, 0}) {
		t.Fatalf("Grades = %v", got)
	}
	maxGrade, err := s.MaxGrade()
	if err != nil {
		t.Fatalf("MaxGrade error: %v", err)
	}
	if math.Abs(maxGrade-steep) > 1e-9 {
		t.Fatalf("MaxGrade = %v, want %v", maxGrade, steep)
	}

	raw := parseActivity(t, a, WithRecovery(false))
	got, err = raw.Grades()
	if err != nil {
		t.Fatalf("Grades error: %v", err)
	}
	if !equalSeries(got, []float64{steep, steep, 0, nan}) {
		t.Fatalf("Grades without recovery = %v", got)
	}
}

func TestMaxGradeWithoutMovement(t *testing.T) {
	s := parseActivity(t, singleLap(points([]float64{5, 5}, []float64{10, 10}, nil), 0), WithRecovery(false))
	got, err := s.MaxGrade()
	if err != nil {
		t.Fatalf("MaxGrade error: %v", err)
	}
	if !math.IsNaN(got) {
		t.Fatalf("MaxGrade = %v, want NaN", got)
	}
}

func TestDatetimeAndDate(t *testing.T) {
	s := parseActivity(t, singleLap(nil, 0))

	got, err := s.Datetime()
	if err != nil {
		t.Fatalf("Datetime error: %v", err)
	}
	if !got.Equal(testStart) {
		t.Fatalf("Datetime = %v, want %v", got, testStart)
	}
	date, err := s.Date()
	if err != nil {
		t.Fatalf("Date error: %v", err)
	}
	if want := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC); !date.Equal(want) {
		t.Fatalf("Date = %v, want %v", date, want)
	}

	plain := singleLap(nil, 0)
	plain.ID = "2021-03-04T05:06:07Z"
	if got, err := parseActivity(t, plain).Datetime(); err != nil || !got.Equal(testStart) {
		t.Fatalf("Datetime without fraction = %v, %v", got, err)
	}

	noID := singleLap(nil, 0)
	noID.ID = ""
	if _, err := parseActivity(t, noID).Datetime(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	badID := singleLap(nil, 0)
	badID.ID = "yesterday"
	if _, err := parseActivity(t, badID).Date(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestLapScalars(t *testing.T) {
	s := parseActivity(t, singleLap(points([]float64{0, 100}, nil, nil), 100))

	if v, err := s.TotalDistance(); err != nil || v != 100 {
		t.Fatalf("TotalDistance = %v, %v", v, err)
	}
	if v, err := s.Calories(); err != nil || v != 42 {
		t.Fatalf("Calories = %v, %v", v, err)
	}
	if v, err := s.TotalTime(); err != nil || v != 2 {
		t.Fatalf("TotalTime = %v, %v", v, err)
	}
	if v, err := s.MeanHeartRate(); err != nil || v != 140 {
		t.Fatalf("MeanHeartRate = %v, %v", v, err)
	}
}

func TestLapScalarsMissing(t *testing.T) {
	a := singleLap(points([]float64{0, 100}, nil, nil), tcxtest.Missing)
	a.Laps[0].Calories = -1
	a.Laps[0].AvgHR = tcxtest.Missing
	s := parseActivity(t, a)

	if _, err := s.TotalDistance(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("TotalDistance: expected ErrNotFound, got %v", err)
	}
	if _, err := s.LowAltitudeDistance(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LowAltitudeDistance: expected ErrNotFound, got %v", err)
	}
	if _, err := s.Calories(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Calories: expected ErrNotFound, got %v", err)
	}
	if _, err := s.MeanHeartRate(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("MeanHeartRate: expected ErrNotFound, got %v", err)
	}
}

func TestParseRejectsMissingActivity(t *testing.T) {
	doc := `<TrainingCenterDatabase xmlns="` + NamespaceTCD + `"><Courses/></TrainingCenterDatabase>`
	if _, err := Parse(strings.NewReader(doc)); !errors.Is(err, ErrStructure) {
		t.Fatalf("expected ErrStructure, got %v", err)
	}
	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrStructure) {
		t.Fatalf("expected ErrStructure for empty input, got %v", err)
	}
}

func TestInvalidNumericTextIsNotCached(t *testing.T) {
	doc := `<TrainingCenterDatabase xmlns="` + NamespaceTCD + `">
  <Activities><Activity Sport="Biking"><Lap><Track>
    <Trackpoint><DistanceMeters>abc</DistanceMeters></Trackpoint>
  </Track></Lap></Activity></Activities>
</TrainingCenterDatabase>`

	s, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Distances(); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("call %d: expected ErrInvalidValue, got %v", i, err)
		}
	}
	if s.distances.ok {
		t.Fatal("failed distances should not be memoized")
	}

	if _, err := Parse(strings.NewReader(doc), WithPreRead()); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("pre-read: expected ErrInvalidValue, got %v", err)
	}
}

func TestSeriesAreMemoizedAndCopied(t *testing.T) {
	s := parseActivity(t, singleLap(points([]float64{0, 10}, nil, nil), 10), WithPreRead())
	if !s.distances.ok || !s.powers.ok || !s.speeds.ok || !s.highAltitudeDistance.ok {
		t.Fatal("pre-read should populate powers, distances, speeds and high-altitude distance")
	}

	d, err := s.Distances()
	if err != nil {
		t.Fatalf("Distances error: %v", err)
	}
	d[0] = 999
	again, err := s.Distances()
	if err != nil {
		t.Fatalf("Distances error: %v", err)
	}
	if again[0] != 0 {
		t.Fatalf("cached series was mutated through a returned slice: %v", again)
	}
}

func TestTimestamps(t *testing.T) {
	pts := points([]float64{0, 1, 2}, nil, nil)
	pts[1].Time = time.Time{}
	s := parseActivity(t, singleLap(pts, 2))

	got, err := s.Timestamps()
	if err != nil {
		t.Fatalf("Timestamps error: %v", err)
	}
	if len(got) != 3 || !got[0].Equal(testStart) || !got[1].IsZero() || !got[2].Equal(testStart.Add(2*time.Second)) {
		t.Fatalf("Timestamps = %v", got)
	}
}

func TestTimestampsWithoutZone(t *testing.T) {
	doc := `<TrainingCenterDatabase xmlns="` + NamespaceTCD + `">
  <Activities><Activity Sport="Running">
    <Id>2021-03-04T07:06:07+02:00</Id>
    <Lap StartTime="2021-03-04T05:06:07"><Track>
      <Trackpoint><Time>2021-03-04T05:06:07</Time><DistanceMeters>0</DistanceMeters></Trackpoint>
      <Trackpoint><Time>2021-03-04T05:06:08.500</Time><DistanceMeters>3</DistanceMeters></Trackpoint>
      <Trackpoint><Time>2021-03-04T07:06:09+02:00</Time><DistanceMeters>6</DistanceMeters></Trackpoint>
    </Track></Lap>
  </Activity></Activities>
</TrainingCenterDatabase>`

	s, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	got, err := s.Timestamps()
	if err != nil {
		t.Fatalf("Timestamps error: %v", err)
	}
	want := []time.Time{testStart, testStart.Add(1500 * time.Millisecond), testStart.Add(2 * time.Second)}
	for i := range want {
		if !got[i].Equal(want[i]) || got[i].Location() != time.UTC {
			t.Fatalf("Timestamps[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	start, err := s.Datetime()
	if err != nil || !start.Equal(testStart) {
		t.Fatalf("Datetime = %v, %v; want %v", start, err, testStart)
	}
	laps, err := s.Laps()
	if err != nil || len(laps) != 1 || !laps[0].StartTime.Equal(testStart) {
		t.Fatalf("Laps = %+v, %v", laps, err)
	}
	if _, err := AnalyzeSession(s, Config{}); err != nil {
		t.Fatalf("AnalyzeSession error: %v", err)
	}
}

func TestTimestampsRejectGarbage(t *testing.T) {
	doc := `<TrainingCenterDatabase xmlns="` + NamespaceTCD + `">
  <Activities><Activity Sport="Running"><Lap><Track>
    <Trackpoint><Time>noon</Time></Trackpoint>
  </Track></Lap></Activity></Activities>
</TrainingCenterDatabase>`

	s, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if _, err := s.Timestamps(); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestSeriesAlignWithTrackpoints(t *testing.T) {
	pts := points([]float64{0, 10, 20}, []float64{5, 6, 7}, []float64{100, 110, 120})
	pts[1].Distance = tcxtest.Missing
	pts[2].Altitude = tcxtest.Missing
	s := parseActivity(t, singleLap(pts, 20))

	series := map[string]func() ([]float64, error){
		"powers":     s.Powers,
		"speeds":     s.Speeds,
		"distances":  s.Distances,
		"altitudes":  s.Altitudes,
		"heart_rate": s.HeartRate,
		"cadences":   s.Cadences,
		"moves":      s.Moves,
		"elevations": s.Elevations,
		"grades":     s.Grades,
	}
	for name, fn := range series {
		v, err := fn()
		if err != nil {
			t.Fatalf("%s error: %v", name, err)
		}
		if len(v) != 3 {
			t.Fatalf("%s has %d samples, want 3", name, len(v))
		}
	}
}

func TestLaps(t *testing.T) {
	a := singleLap(points([]float64{0, 10}, nil, nil), 10)
	second := a.Laps[0]
	second.Start = testStart.Add(time.Minute)
	second.Distance = 20
	second.Calories = 5
	second.Points = points([]float64{10, 20, 30}, nil, nil)
	a.Laps = append(a.Laps, second)

	laps, err := parseActivity(t, a).Laps()
	if err != nil {
		t.Fatalf("Laps error: %v", err)
	}
	if len(laps) != 2 {
		t.Fatalf("got %d laps, want 2", len(laps))
	}
	first := laps[0]
	if first.Index != 1 || !first.StartTime.Equal(testStart) || first.DistanceMeters != 10 ||
		first.Calories != 42 || first.AvgHeartRate != 140 || first.MaxHeartRate != 170 ||
		first.Intensity != "Active" || first.TriggerMethod != "Manual" || first.Trackpoints != 2 {
		t.Fatalf("first lap = %+v", first)
	}
	if laps[1].Index != 2 || laps[1].Trackpoints != 3 || laps[1].Calories != 5 {
		t.Fatalf("second lap = %+v", laps[1])
	}
}

func TestQueryAndText(t *testing.T) {
	s := parseActivity(t, singleLap(points(nil, nil, []float64{150, 160}), 0))

	watts, err := s.Query("ns3:Watts")
	if err != nil {
		t.Fatalf("Query error: %v", err)
	}
	if len(watts) != 2 || watts[1].TrimmedText() != "160" {
		t.Fatalf("Query(ns3:Watts) returned %d nodes", len(watts))
	}

	cal, err := s.Text("Lap", "Calories")
	if err != nil || cal != "42" {
		t.Fatalf("Text(Lap, Calories) = %q, %v", cal, err)
	}
	if s.Sport() != "Biking" {
		t.Fatalf("Sport = %q", s.Sport())
	}
	if _, err := s.Query("Course"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Query("zz:Watts"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestFeatures(t *testing.T) {
	s := parseActivity(t, singleLap(nil, 0))
	features := s.Features()
	if features["Id"] != "2021-03-04T05:06:07.000Z" {
		t.Fatalf("Id feature = %#v", features["Id"])
	}
	lap, ok := features["Lap"].(map[string]any)
	if !ok {
		t.Fatalf("Lap feature = %#v", features["Lap"])
	}
	if lap["Calories"] != "42" {
		t.Fatalf("Calories feature = %#v", lap["Calories"])
	}
}

func TestFindMatchesTrailingPath(t *testing.T) {
	root := mustParse(t, `<a xmlns="`+NamespaceTCD+`"><b><c>1</c></b><c>2</c><d><b><c>3</c></b></d></a>`)

	got := root.Find(tcd("b"), tcd("c"))
	if len(got) != 2 || got[0].Text != "1" || got[1].Text != "3" {
		t.Fatalf("Find(b, c) = %d nodes", len(got))
	}
	if n := root.Child(tcd("d"), tcd("b"), tcd("c")); n == nil || n.Text != "3" {
		t.Fatalf("Child(d, b, c) = %v", n)
	}
	if n := root.Child(tcd("c"), tcd("x")); n != nil {
		t.Fatalf("Child(c, x) = %v, want nil", n)
	}
}

func TestParsePath(t *testing.T) {
	got, err := parsePath([]string{"Lap", "ns3:TPX", "xsi:type"})
	if err != nil {
		t.Fatalf("parsePath error: %v", err)
	}
	want := []xml.Name{
		{Space: NamespaceTCD, Local: "Lap"},
		{Space: NamespaceActivityExt, Local: "TPX"},
		{Space: NamespaceXSI, Local: "type"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segment %d = %v, want %v", i, got[i], want[i])
		}
	}
	if _, err := parsePath([]string{"ns3:"}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := parseActivity(t, singleLap(points([]float64{0, 1}, nil, nil), 1), WithLogger(logger))
	if _, err := s.Moves(); err != nil {
		t.Fatalf("Moves error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "series=distances") || !strings.Contains(out, "series=moves") {
		t.Fatalf("unexpected log output: %s", out)
	}
}
