package storage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumeric2(t *testing.T) {
	assert.Equal(t, "1846.60", numeric2(1846.6014).StringFixed(2))
	assert.Equal(t, "1553.40", numeric2(1553.3986).StringFixed(2))
	assert.Equal(t, "1500.00", numeric2(1500).StringFixed(2))

	// Half away from zero.
	assert.Equal(t, "-0.13", numeric2(-0.125).StringFixed(2))
}

func TestNullNumeric2RoundTrip(t *testing.T) {
	assert.False(t, nullNumeric2(nil).Valid)
	assert.Nil(t, floatPtr(decimal.NullDecimal{}))

	rating := 1712.345
	wire := nullNumeric2(&rating)
	require.True(t, wire.Valid)
	assert.Equal(t, "1712.35", wire.Decimal.StringFixed(2))

	back := floatPtr(wire)
	require.NotNil(t, back)
	assert.InDelta(t, 1712.35, *back, 1e-9)
}
