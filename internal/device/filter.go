package device

// Filter smooths raw LDR samples with a fixed-window moving average. The sum
// is kept incrementally with integer arithmetic only: subtract the slot being
// evicted, add the new sample. The ring never overflows, the oldest sample is
// simply overwritten.
type Filter struct {
	samples []int
	sum     int
	idx     int
}

func NewFilter(window int) *Filter {
	if window < 1 {
		window = 1
	}
	return &Filter{samples: make([]int, window)}
}

// Sample pushes a raw reading and returns the truncated integer average of
// the current window.
func (f *Filter) Sample(raw int) int {
	if raw < 0 {
		raw = 0
	} else if raw > 1023 {
		raw = 1023
	}

	f.sum -= f.samples[f.idx]
	f.samples[f.idx] = raw
	f.sum += raw
	f.idx = (f.idx + 1) % len(f.samples)

	return f.sum / len(f.samples)
}

// Average returns the current smoothed value without consuming a sample.
func (f *Filter) Average() int {
	return f.sum / len(f.samples)
}

// Sum returns the exact running sum of the window contents.
func (f *Filter) Sum() int {
	return f.sum
}

// Calibration holds observed sensor extremes. Valid mirrors the stored magic
// byte: bounds only become invalid by explicit reset, never by value range.
type Calibration struct {
	Min   uint16
	Max   uint16
	Valid bool
}

// Percent maps a raw average to [0, 100] through the calibration bounds when
// valid, else through the full sensor range. The result is clamped even for
// inverted or degenerate bounds; min==max saturates to the nearer bound.
func Percent(avg int, cal Calibration) int {
	lo, hi := 0, 1023
	if cal.Valid {
		lo, hi = int(cal.Min), int(cal.Max)
	}

	if lo == hi {
		if avg <= lo {
			return 0
		}
		return 100
	}

	p := (avg - lo) * 100 / (hi - lo)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
