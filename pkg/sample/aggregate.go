// Package sample reduces repeated raw HX711 conversions to a single value.
package sample

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// TrimFraction is the share of samples dropped from each end by the trimmed mean.
const TrimFraction = 0.2

// ErrInvalidCount is returned when asked to aggregate fewer than one sample.
var ErrInvalidCount = errors.New("sample count must be at least 1")

// Number is any sample type the reducers accept.
type Number interface {
	~int32 | ~int64 | ~float64
}

// Strategy selects how samples are reduced.
type Strategy int

const (
	// Auto returns a single sample as is, the median of 2 to 4 samples and
	// the trimmed mean of 5 or more.
	Auto Strategy = iota
	Median
	Mean
	Trimmed
)

// ParseStrategy accepts "auto", "median", "mean" and "trimmed".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "median":
		return Median, nil
	case "mean", "average":
		return Mean, nil
	case "trimmed":
		return Trimmed, nil
	default:
		return Auto, fmt.Errorf("unknown strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case Auto:
		return "auto"
	case Median:
		return "median"
	case Mean:
		return "mean"
	case Trimmed:
		return "trimmed"
	default:
		return "(invalid strategy)"
	}
}

// Collect calls read n times. The first failed read aborts the collection;
// it is not retried.
func Collect(n int, read func() (int32, error)) ([]int32, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidCount, n)
	}

	values := make([]int32, 0, n)
	for range n {
		v, err := read()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Aggregate collects n samples and reduces them with s.
func Aggregate(s Strategy, n int, read func() (int32, error)) (float64, error) {
	values, err := Collect(n, read)
	if err != nil {
		return 0, err
	}
	return Reduce(s, values)
}

// Reduce combines values with s. values is not modified.
func Reduce[T Number](s Strategy, values []T) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w, got 0", ErrInvalidCount)
	}

	switch s {
	case Median:
		return MedianOf(values), nil
	case Mean:
		return MeanOf(values), nil
	case Trimmed:
		return TrimmedMeanOf(values), nil
	}

	switch n := len(values); {
	case n == 1:
		return float64(values[0]), nil
	case n < 5:
		return MedianOf(values), nil
	default:
		return TrimmedMeanOf(values), nil
	}
}

// MeanOf returns the arithmetic mean of values.
func MeanOf[T Number](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// MedianOf returns the middle value, or the mean of the two middle values
// for an even count.
func MedianOf[T Number](values []T) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return (float64(sorted[n/2-1]) + float64(sorted[n/2])) / 2
}

// TrimmedMeanOf drops floor(n*TrimFraction) values from each end of the
// sorted samples and averages the rest.
func TrimmedMeanOf[T Number](values []T) float64 {
	sorted := sortedCopy(values)
	trim := int(float64(len(sorted)) * TrimFraction)
	return MeanOf(sorted[trim : len(sorted)-trim])
}

func sortedCopy[T Number](values []T) []T {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted
}
