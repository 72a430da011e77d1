package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTrend_Increasing(t *testing.T) {
	trend := ComputeTrend([]float64{10, 12, 14, 16, 18})
	assert.Equal(t, DirectionIncreasing, trend.Direction)
	assert.InDelta(t, 2.0, trend.Slope, 1e-9)
	assert.InDelta(t, 2.0, trend.Rate, 1e-9)
}

func TestComputeTrend_Decreasing(t *testing.T) {
	trend := ComputeTrend([]float64{18, 16, 14, 12, 10})
	assert.Equal(t, DirectionDecreasing, trend.Direction)
	assert.InDelta(t, -2.0, trend.Slope, 1e-9)
}

func TestComputeTrend_Stable(t *testing.T) {
	trend := ComputeTrend([]float64{50, 50.001, 50, 49.999, 50})
	assert.Equal(t, DirectionStable, trend.Direction)
}

func TestComputeTrend_TooFewPoints(t *testing.T) {
	assert.Equal(t, DirectionStable, ComputeTrend(nil).Direction)
	assert.Equal(t, DirectionStable, ComputeTrend([]float64{42}).Direction)
}

func TestMeanStdDev(t *testing.T) {
	mean, stdDev := MeanStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	// Sample stddev, not population
	assert.InDelta(t, 2.13809, stdDev, 1e-4)
}

func TestMeanStdDev_Degenerate(t *testing.T) {
	mean, stdDev := MeanStdDev(nil)
	assert.Zero(t, mean)
	assert.Zero(t, stdDev)

	mean, stdDev = MeanStdDev([]float64{7})
	assert.Equal(t, 7.0, mean)
	assert.Zero(t, stdDev)
}
