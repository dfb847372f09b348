package util

import (
	"math"
	"testing"
)

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name     string
		x        float64
		tick     float64
		expected float64
	}{
		{
			name:     "basic rounding down",
			x:        1.2345,
			tick:     0.01,
			expected: 1.23,
		},
		{
			name:     "basic rounding up",
			x:        1.2371,
			tick:     0.01,
			expected: 1.24,
		},
		{
			name:     "negative basic rounding",
			x:        -1.2345,
			tick:     0.01,
			expected: -1.23,
		},
		{
			name:     "larger tick size",
			x:        1.27,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "exact multiple",
			x:        1.25,
			tick:     0.05,
			expected: 1.25,
		},
		{
			name:     "zero tick returns input",
			x:        1.2345,
			tick:     0,
			expected: 1.2345,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundToTick(tt.x, tt.tick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("RoundToTick(%v, %v) = %v, expected %v", tt.x, tt.tick, result, tt.expected)
			}
		})
	}
}

func TestLimitPrice(t *testing.T) {
	tests := []struct {
		name     string
		net      float64
		expected float64
	}{
		{"credit", 1.2345, 1.23},
		{"debit is made positive", -0.874, 0.87},
		{"tiny price floors at one tick", 0.001, 0.01},
		{"zero floors at one tick", 0, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := LimitPrice(tt.net, PennyTick)
			if math.Abs(result-tt.expected) > 1e-10 {
				t.Errorf("LimitPrice(%v) = %v, expected %v", tt.net, result, tt.expected)
			}
		})
	}

	if result := LimitPrice(1.2345, 0); result != 1.2345 {
		t.Errorf("LimitPrice with zero tick = %v, expected 1.2345", result)
	}
}
