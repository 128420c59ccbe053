package rating

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDuration(t *testing.T) {
	tests := []struct {
		name     string
		minutes  float64
		quantity float64
		code     ServiceCode
	}{
		{name: "standard session", minutes: 50, quantity: 1, code: ServiceCode50},
		{name: "double session", minutes: 100, quantity: 2, code: ServiceCode50},
		{name: "ninety minute bucket low edge", minutes: 85, quantity: 1.7, code: ServiceCode90},
		{name: "ninety minutes", minutes: 90, quantity: 1.8, code: ServiceCode90},
		{name: "ninety minute bucket high edge", minutes: 95, quantity: 1.9, code: ServiceCode90},
		{name: "just below ninety bucket", minutes: 84, quantity: 1.68, code: ServiceCode50},
		{name: "just above ninety bucket", minutes: 96, quantity: 1.92, code: ServiceCode50},
		{name: "prorated short session", minutes: 55, quantity: 1.1, code: ServiceCode50},
		{name: "rounds to two decimals", minutes: 47, quantity: 0.94, code: ServiceCode50},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := NormalizeDuration(tc.minutes)
			require.NoError(t, err)
			assert.InDelta(t, tc.quantity, result.Quantity, 0.001)
			assert.Equal(t, tc.code, result.ServiceCode)
		})
	}
}

func TestNormalizeDurationUnbillable(t *testing.T) {
	for _, minutes := range []float64{0, -30, math.NaN(), math.Inf(1)} {
		_, err := NormalizeDuration(minutes)
		assert.ErrorIs(t, err, ErrUnbillableDuration)
	}
}

func TestMinutesBetween(t *testing.T) {
	start := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, 50.0, MinutesBetween(start, start.Add(50*time.Minute)))
	assert.Equal(t, 90.0, MinutesBetween(start, start.Add(90*time.Minute)))
	// Sub-minute jitter from calendar timestamps rounds away.
	assert.Equal(t, 50.0, MinutesBetween(start, start.Add(50*time.Minute+20*time.Second)))
	assert.Equal(t, 0.0, MinutesBetween(start, start))
}
