package metrics

import "math"

// Rolling helpers over nullable series. Every window requires all of
// its positions to hold a value; a window touching a missing value or
// running past the start of the series yields nil. Shorter history
// therefore surfaces as null metrics, never as a value computed from a
// partial window.

// tailWindow returns the last window values if they are all present
func tailWindow(xs []*float64, window int) []float64 {
	if window <= 0 || len(xs) < window {
		return nil
	}
	out := make([]float64, 0, window)
	for _, x := range xs[len(xs)-window:] {
		if x == nil {
			return nil
		}
		out = append(out, *x)
	}
	return out
}

// tailMean is the mean of the last window values
func tailMean(xs []*float64, window int) *float64 {
	w := tailWindow(xs, window)
	if w == nil {
		return nil
	}
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	mean := sum / float64(window)
	return &mean
}

// tailStd is the sample standard deviation of the last window values
func tailStd(xs []*float64, window int) *float64 {
	w := tailWindow(xs, window)
	if w == nil || window < 2 {
		return nil
	}

	sum := 0.0
	for _, v := range w {
		sum += v
	}
	mean := sum / float64(window)

	ss := 0.0
	for _, v := range w {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(window-1))
	return &std
}

// tailMax is the maximum of the last window values
func tailMax(xs []*float64, window int) *float64 {
	w := tailWindow(xs, window)
	if w == nil {
		return nil
	}
	m := w[0]
	for _, v := range w[1:] {
		if v > m {
			m = v
		}
	}
	return &m
}

// tailMin is the minimum of the last window values
func tailMin(xs []*float64, window int) *float64 {
	w := tailWindow(xs, window)
	if w == nil {
		return nil
	}
	m := w[0]
	for _, v := range w[1:] {
		if v < m {
			m = v
		}
	}
	return &m
}

// pctChange returns the element-over-previous fractional change series
func pctChange(xs []*float64) []*float64 {
	out := make([]*float64, len(xs))
	for i := 1; i < len(xs); i++ {
		out[i] = fracChange(xs[i-1], xs[i])
	}
	return out
}

// tailPctChange returns the fractional change between the last value
// and the value n positions earlier
func tailPctChange(xs []*float64, n int) *float64 {
	if n <= 0 || len(xs) <= n {
		return nil
	}
	return fracChange(xs[len(xs)-1-n], xs[len(xs)-1])
}

func fracChange(prev, cur *float64) *float64 {
	if prev == nil || cur == nil || *prev == 0 {
		return nil
	}
	v := *cur / *prev - 1
	return &v
}
