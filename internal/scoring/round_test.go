package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		places   int
		expected float64
	}{
		{name: "binary-unfriendly half", input: 1.005, places: 2, expected: 1.01},
		{name: "half at two places", input: 4.245, places: 2, expected: 4.25},
		{name: "half at one place rounds up", input: 3.25, places: 1, expected: 3.3},
		{name: "below half rounds down", input: 3.24, places: 1, expected: 3.2},
		{name: "zero places", input: 2.5, places: 0, expected: 3},
		{name: "carry into integer part", input: 9.995, places: 2, expected: 10},
		{name: "already short enough", input: 4.25, places: 2, expected: 4.25},
		{name: "tiny value", input: 0.0000001, places: 2, expected: 0},
		{name: "small half", input: 0.05, places: 1, expected: 0.1},
		{name: "negative half rounds away from zero", input: -1.25, places: 1, expected: -1.3},
		{name: "long tail", input: 10.0 / 3, places: 2, expected: 3.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RoundHalfUp(tt.input, tt.places))
		})
	}
}

func TestRoundHalfUp_NonFinite(t *testing.T) {
	assert.True(t, math.IsNaN(RoundHalfUp(math.NaN(), 2)))
	assert.True(t, math.IsInf(RoundHalfUp(math.Inf(1), 2), 1))
}
