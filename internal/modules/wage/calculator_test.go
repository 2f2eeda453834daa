package wage

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDefaultTable(t *testing.T) {
	calc := NewCalculator()
	table := DefaultTable("")

	tests := []struct {
		name     string
		distance float64
		want     float64
	}{
		{"zero distance", 0, 30},
		{"first band", 0.8, 30},
		{"band upper bound inclusive", 1, 30},
		{"second band", 1.5, 40},
		{"third band", 2.7, 50},
		{"gap falls to formula", 3.5, 55},
		{"exactly 4 km falls to formula", 4, 60},
		{"fifth band", 4.5, 70},
		{"beyond bands", 8, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Calculate(table, tt.distance)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestCalculateInvalidDistance(t *testing.T) {
	calc := NewCalculator()
	for _, d := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := calc.Calculate(DefaultTable(""), d)
		assert.ErrorIs(t, err, ErrInvalidDistance, "distance %v", d)
	}
}

func TestCalculateNoRule(t *testing.T) {
	calc := NewCalculator()
	_, err := calc.Calculate(Table{Bands: []Band{{Min: 0, Max: 1, Wage: 10}}}, 2)
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestCalculateFormulaClampsNegative(t *testing.T) {
	calc := NewCalculator()
	got, err := calc.Calculate(Table{Formula: "distance * 10 - 100"}, 2)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestCalculateBadFormula(t *testing.T) {
	calc := NewCalculator()
	_, err := calc.Calculate(Table{Formula: "distance +"}, 7)
	assert.Error(t, err)

	_, err = calc.Calculate(Table{Formula: "unknown_var * 2"}, 7)
	assert.Error(t, err)
}

func TestCalculatorConcurrent(t *testing.T) {
	calc := NewCalculator()
	table := Table{Formula: "distance * 2"}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := calc.Calculate(table, float64(i))
			assert.NoError(t, err)
			assert.InDelta(t, float64(i)*2, got, 1e-9)
		}(i)
	}
	wg.Wait()
}
