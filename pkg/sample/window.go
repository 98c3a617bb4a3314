package sample

import "time"

// DefaultBufferSize is the output buffer used when none is given.
const DefaultBufferSize = 100

// Point is a timestamped value, typically a weight.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Converter transforms a stream of points. The output channel is closed once
// the input channel is closed and drained.
type Converter func(in <-chan Point) <-chan Point

// Window keeps the most recent values and reduces them on demand.
type Window struct {
	strategy Strategy
	size     int
	values   []float64
}

// NewWindow creates a rolling window of size values, at least 1.
func NewWindow(s Strategy, size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		strategy: s,
		size:     size,
		values:   make([]float64, 0, size),
	}
}

// Add pushes v, evicting the oldest value once full, and returns the
// reduced window.
func (w *Window) Add(v float64) float64 {
	if len(w.values) == w.size {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.size-1]
	}
	w.values = append(w.values, v)
	r, _ := Reduce(w.strategy, w.values)
	return r
}

// Len returns the number of values currently held.
func (w *Window) Len() int {
	return len(w.values)
}

// Reset drops all values.
func (w *Window) Reset() {
	w.values = w.values[:0]
}

// NewWindowConverter smooths a stream with a rolling window. Each input point
// produces one output point carrying the input timestamp.
func NewWindowConverter(s Strategy, size int, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	return func(in <-chan Point) <-chan Point {
		out := make(chan Point, bufSize)

		go func() {
			defer close(out)

			w := NewWindow(s, size)
			for p := range in {
				out <- Point{Timestamp: p.Timestamp, Value: w.Add(p.Value)}
			}
		}()

		return out
	}
}
