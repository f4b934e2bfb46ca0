package tcx

import (
	"fmt"
	"math"
)

// gradeScale converts arcsine radians into the grade display unit.
const gradeScale = 15.915

// FillGaps returns a copy of values with every NaN replaced by linear
// interpolation between its nearest valid neighbors by index. NaNs before the
// first valid value or after the last take that value. A series with no valid
// value is returned unchanged.
func FillGaps(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	prev := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		switch {
		case prev < 0:
			for j := 0; j < i; j++ {
				out[j] = v
			}
		case i-prev > 1:
			left := out[prev]
			step := (v - left) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				out[j] = left + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev < 0 {
		return out
	}
	for j := prev + 1; j < len(out); j++ {
		out[j] = out[prev]
	}
	return out
}

// GradeArcsin converts rise/run ratios into grades. The first sample takes the
// value of the second, then every ratio is mapped through a scaled arcsine.
// NaN passes through; a finite ratio outside [-1, 1] fails with ErrDomain.
func GradeArcsin(ratios []float64) ([]float64, error) {
	out := make([]float64, len(ratios))
	copy(out, ratios)
	if len(out) >= 2 {
		out[0] = out[1]
	}
	for i, r := range out {
		if r > 1 || r < -1 {
			return nil, fmt.Errorf("grade sample %d = %v: %w", i, r, ErrDomain)
		}
		out[i] = math.Asin(r) * gradeScale
	}
	return out, nil
}

// movingAverage returns the mean of every complete window of the given width.
// A window containing NaN averages to NaN.
func movingAverage(values []float64, window int) ([]float64, error) {
	if window <= 0 || window > len(values) {
		return nil, fmt.Errorf("window %d for %d samples: %w", window, len(values), ErrInvalidValue)
	}
	out := make([]float64, 0, len(values)-window+1)
	sum := 0.0
	nans := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= window {
			if old := values[i-window]; math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i < window-1 {
			continue
		}
		if nans > 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, sum/float64(window))
	}
	return out, nil
}
