package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Evicts(t *testing.T) {
	w := NewWindow(Mean, 3)

	assert.InDelta(t, 3.0, w.Add(3), 1e-9)
	assert.InDelta(t, 4.0, w.Add(5), 1e-9)
	assert.InDelta(t, 5.0, w.Add(7), 1e-9)
	assert.InDelta(t, 7.0, w.Add(9), 1e-9)
	assert.Equal(t, 3, w.Len())

	w.Reset()
	assert.Zero(t, w.Len())
}

func TestWindow_MedianRejectsSpike(t *testing.T) {
	w := NewWindow(Median, 5)
	var got float64
	for _, v := range []float64{10, 10, 580, 10, 10} {
		got = w.Add(v)
	}
	assert.InDelta(t, 10.0, got, 1e-9)
}

func TestNewWindow_InvalidSize(t *testing.T) {
	w := NewWindow(Mean, 0)
	w.Add(1)
	w.Add(2)
	assert.Equal(t, 1, w.Len())
}

func TestWindowConverter_GracefulShutdown(t *testing.T) {
	convert := NewWindowConverter(Mean, 2, 0)

	in := make(chan Point, 4)
	out := convert(in)

	now := time.Now()
	for i, v := range []float64{2, 4, 6} {
		in <- Point{Timestamp: now.Add(time.Duration(i) * time.Second), Value: v}
	}
	close(in)

	var got []Point
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range out {
			got = append(got, p)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("output channel did not close")
	}

	require.Len(t, got, 3)
	assert.InDelta(t, 2.0, got[0].Value, 1e-9)
	assert.InDelta(t, 3.0, got[1].Value, 1e-9)
	assert.InDelta(t, 5.0, got[2].Value, 1e-9)
	assert.Equal(t, now.Add(2*time.Second), got[2].Timestamp)
}
