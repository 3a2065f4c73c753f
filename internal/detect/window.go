package detect

import "math"

// Window is a fixed-capacity rolling buffer of recent samples for one metric.
// It is not safe for concurrent use; the monitoring engine owns each window
// and serialises access through its poll loop.
type Window struct {
	capacity int
	samples  []float64
}

// NewWindow creates a window retaining up to capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 20
	}
	return &Window{capacity: capacity, samples: make([]float64, 0, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (w *Window) Push(v float64) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.capacity-1]
	}
	w.samples = append(w.samples, v)
}

// Fill replaces the window contents with the trailing capacity entries of
// samples, oldest first.
func (w *Window) Fill(samples []float64) {
	if len(samples) > w.capacity {
		samples = samples[len(samples)-w.capacity:]
	}
	w.samples = append(w.samples[:0], samples...)
}

// Resize adjusts the capacity, keeping the newest samples.
func (w *Window) Resize(capacity int) {
	if capacity <= 0 || capacity == w.capacity {
		return
	}
	if len(w.samples) > capacity {
		kept := make([]float64, capacity)
		copy(kept, w.samples[len(w.samples)-capacity:])
		w.samples = kept
	}
	w.capacity = capacity
}

// Len returns the number of retained samples.
func (w *Window) Len() int { return len(w.samples) }

// Values returns a copy of the retained samples, oldest first.
func (w *Window) Values() []float64 {
	return append([]float64(nil), w.samples...)
}

// Latest returns the newest sample, or false when empty.
func (w *Window) Latest() (float64, bool) {
	if len(w.samples) == 0 {
		return 0, false
	}
	return w.samples[len(w.samples)-1], true
}

// Mean returns the arithmetic mean of the retained samples.
func (w *Window) Mean() float64 {
	return mean(w.samples)
}

// StdDev returns the population standard deviation of the retained samples.
func (w *Window) StdDev() float64 {
	return stdDev(w.samples)
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

func stdDev(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	mu := mean(samples)
	variance := 0.0
	for _, v := range samples {
		variance += (v - mu) * (v - mu)
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance)
}

// pearson returns the Pearson correlation coefficient of two equal-length
// series, or false when it is undefined (short input or zero variance).
func pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0, false
	}

	meanX := mean(xs)
	meanY := mean(ys)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		dy := ys[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varX*varY), true
}
