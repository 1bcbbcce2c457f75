package velocity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	t.Run("SamePoint", func(t *testing.T) {
		assert.Equal(t, 0.0, HaversineKm(40.7128, -74.0060, 40.7128, -74.0060))
	})

	t.Run("NewYorkToLondon", func(t *testing.T) {
		d := HaversineKm(40.7128, -74.0060, 51.5074, -0.1278)
		assert.InDelta(t, 5570, d, 15)
	})

	t.Run("OneDegreeLatitude", func(t *testing.T) {
		d := HaversineKm(0, 0, 1, 0)
		assert.InDelta(t, 111.19, d, 0.1)
	})

	t.Run("Symmetric", func(t *testing.T) {
		a := HaversineKm(10, 20, -30, 40)
		b := HaversineKm(-30, 40, 10, 20)
		assert.InDelta(t, a, b, 1e-9)
	})
}

func TestCell(t *testing.T) {
	t.Run("JitterSnapsToSameCell", func(t *testing.T) {
		a := Cell(40.000010, -74.000010, 100)
		b := Cell(40.000020, -74.000020, 100)
		assert.Equal(t, a, b)
	})

	t.Run("DistantPointsDiffer", func(t *testing.T) {
		a := Cell(40.0, -74.0, 100)
		b := Cell(40.01, -74.0, 100)
		assert.NotEqual(t, a, b)
	})
}

func TestCellRepresentatives(t *testing.T) {
	points := []Point{
		{Lat: 40.000010, Lon: -74.000010},
		{Lat: 40.000020, Lon: -74.000020},
		{Lat: 40.5, Lon: -74.5},
	}
	reps := CellRepresentatives(points, 100)
	assert.Len(t, reps, 2)
}

func TestMaxPairwiseKm(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, 0.0, MaxPairwiseKm(nil, 100, 1024))
	})

	t.Run("SinglePoint", func(t *testing.T) {
		assert.Equal(t, 0.0, MaxPairwiseKm([]Point{{Lat: 1, Lon: 1}}, 100, 1024))
	})

	t.Run("PicksFarthestPair", func(t *testing.T) {
		points := []Point{
			{Lat: 0, Lon: 0.001},
			{Lat: 0, Lon: 1},
			{Lat: 0, Lon: 0.5},
			{Lat: 0, Lon: 0},
		}
		d := MaxPairwiseKm(points, 100, 1024)
		assert.InDelta(t, HaversineKm(0, 0, 0, 1), d, 1e-9)
	})

	t.Run("GridFallbackStaysClose", func(t *testing.T) {
		var points []Point
		for i := 0; i < 50; i++ {
			points = append(points, Point{Lat: 0, Lon: float64(i) * 0.01})
		}
		exact := MaxPairwiseKm(points, 100, 1024)
		approx := MaxPairwiseKm(points, 100, 10)
		assert.InDelta(t, exact, approx, 0.2)
	})
}

func TestSpeedKmh(t *testing.T) {
	tests := []struct {
		name      string
		distance  float64
		elapsedMs int64
		want      float64
	}{
		{"OneHundredKmInOneHour", 100, 3600 * 1000, 100},
		{"TenKmInHalfHour", 10, 1800 * 1000, 20},
		{"ZeroElapsed", 10, 0, 0},
		{"NegativeElapsed", 10, -5, 0},
		{"ZeroDistance", 0, 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SpeedKmh(tt.distance, tt.elapsedMs), 1e-9)
		})
	}
}
