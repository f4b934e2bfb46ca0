// Package tcxtest builds TCX documents for tests.
package tcxtest

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Missing marks an optional numeric value that is left out of the document.
var Missing = math.NaN()

// Point is one trackpoint. NaN fields and a zero Time are omitted.
type Point struct {
	Time      time.Time
	Distance  float64
	Altitude  float64
	HeartRate float64
	Cadence   float64
	Watts     float64
	Speed     float64
}

// Lap is one lap. NaN fields, a zero Start and negative Calories are omitted.
type Lap struct {
	Start     time.Time
	TotalTime float64
	Distance  float64
	Calories  int
	AvgHR     float64
	MaxHR     float64
	Points    []Point
}

// Activity is a single-activity document.
type Activity struct {
	Sport string
	ID    string
	Laps  []Lap
}

// EmptyPoint returns a trackpoint with every value missing.
func EmptyPoint() Point {
	return Point{
		Distance:  Missing,
		Altitude:  Missing,
		HeartRate: Missing,
		Cadence:   Missing,
		Watts:     Missing,
		Speed:     Missing,
	}
}

// Build renders the activity as a TCX document.
func Build(a Activity) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2" xmlns:ns3="http://www.garmin.com/xmlschemas/ActivityExtension/v2">` + "\n")
	b.WriteString("  <Activities>\n")
	if a.Sport != "" {
		fmt.Fprintf(&b, "    <Activity Sport=%q>\n", a.Sport)
	} else {
		b.WriteString("    <Activity>\n")
	}
	if a.ID != "" {
		fmt.Fprintf(&b, "      <Id>%s</Id>\n", a.ID)
	}
	for _, lap := range a.Laps {
		writeLap(&b, lap)
	}
	b.WriteString("    </Activity>\n")
	b.WriteString("  </Activities>\n")
	b.WriteString("</TrainingCenterDatabase>\n")
	return []byte(b.String())
}

func writeLap(b *strings.Builder, lap Lap) {
	if lap.Start.IsZero() {
		b.WriteString("      <Lap>\n")
	} else {
		fmt.Fprintf(b, "      <Lap StartTime=%q>\n", lap.Start.UTC().Format(time.RFC3339Nano))
	}
	writeValue(b, 8, "TotalTimeSeconds", lap.TotalTime)
	writeValue(b, 8, "DistanceMeters", lap.Distance)
	if lap.Calories >= 0 {
		fmt.Fprintf(b, "        <Calories>%d</Calories>\n", lap.Calories)
	}
	if !math.IsNaN(lap.AvgHR) {
		fmt.Fprintf(b, "        <AverageHeartRateBpm><Value>%s</Value></AverageHeartRateBpm>\n", formatFloat(lap.AvgHR))
	}
	if !math.IsNaN(lap.MaxHR) {
		fmt.Fprintf(b, "        <MaximumHeartRateBpm><Value>%s</Value></MaximumHeartRateBpm>\n", formatFloat(lap.MaxHR))
	}
	b.WriteString("        <Intensity>Active</Intensity>\n")
	b.WriteString("        <TriggerMethod>Manual</TriggerMethod>\n")
	b.WriteString("        <Track>\n")
	for _, p := range lap.Points {
		writePoint(b, p)
	}
	b.WriteString("        </Track>\n")
	b.WriteString("      </Lap>\n")
}

func writePoint(b *strings.Builder, p Point) {
	b.WriteString("          <Trackpoint>\n")
	if !p.Time.IsZero() {
		fmt.Fprintf(b, "            <Time>%s</Time>\n", p.Time.UTC().Format(time.RFC3339Nano))
	}
	writeValue(b, 12, "AltitudeMeters", p.Altitude)
	writeValue(b, 12, "DistanceMeters", p.Distance)
	if !math.IsNaN(p.HeartRate) {
		fmt.Fprintf(b, "            <HeartRateBpm><Value>%s</Value></HeartRateBpm>\n", formatFloat(p.HeartRate))
	}
	writeValue(b, 12, "Cadence", p.Cadence)
	if !math.IsNaN(p.Watts) || !math.IsNaN(p.Speed) {
		b.WriteString("            <Extensions>\n")
		b.WriteString("              <ns3:TPX>\n")
		if !math.IsNaN(p.Speed) {
			fmt.Fprintf(b, "                <ns3:Speed>%s</ns3:Speed>\n", formatFloat(p.Speed))
		}
		if !math.IsNaN(p.Watts) {
			fmt.Fprintf(b, "                <ns3:Watts>%s</ns3:Watts>\n", formatFloat(p.Watts))
		}
		b.WriteString("              </ns3:TPX>\n")
		b.WriteString("            </Extensions>\n")
	}
	b.WriteString("          </Trackpoint>\n")
}

func writeValue(b *strings.Builder, indent int, tag string, v float64) {
	if math.IsNaN(v) {
		return
	}
	fmt.Fprintf(b, "%s<%s>%s</%s>\n", strings.Repeat(" ", indent), tag, formatFloat(v), tag)
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
