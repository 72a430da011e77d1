package evaluator

import "math"

// Direction labels the slope of a value series.
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// stableSlopeBand is the |slope| below which a series counts as stable.
const stableSlopeBand = 0.01

// Trend is the least-squares fit over a value series, with the sample
// index as the x axis.
type Trend struct {
	Direction Direction
	Slope     float64
	Rate      float64
}

// ComputeTrend fits a line through values (index vs value) and classifies
// its direction. Rate is the absolute slope per sample.
func ComputeTrend(values []float64) Trend {
	n := float64(len(values))
	if n < 2 {
		return Trend{Direction: DirectionStable}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Trend{Direction: DirectionStable}
	}
	slope := (n*sumXY - sumX*sumY) / denom

	dir := DirectionStable
	switch {
	case slope >= stableSlopeBand:
		dir = DirectionIncreasing
	case slope <= -stableSlopeBand:
		dir = DirectionDecreasing
	}

	return Trend{Direction: dir, Slope: slope, Rate: math.Abs(slope)}
}

// MeanStdDev returns the mean and sample standard deviation of values.
// The standard deviation is zero when fewer than two values are given.
func MeanStdDev(values []float64) (mean, stdDev float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	if n < 2 {
		return mean, 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	variance := sumSq / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
