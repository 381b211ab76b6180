package seawater

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZFromP_Surface(t *testing.T) {
	assert.Equal(t, 0.0, ZFromP(0, -27))
}

func TestDepthFromPressure_GSWMagnitude(t *testing.T) {
	d := DepthFromPressure(1000, -27, MethodGSW)
	assert.InDelta(t, 991, d, 4, "1000 dbar should be a little under 1000 m")

	// deeper pressure, deeper depth
	assert.Greater(t, DepthFromPressure(2000, -27, MethodGSW), d)
	// gravity is higher at the poles so the same pressure is shallower
	assert.Less(t, DepthFromPressure(1000, -80, MethodGSW), DepthFromPressure(1000, 0, MethodGSW))
}

func TestUnescoDepth_CheckValue(t *testing.T) {
	// Fofonoff & Millard (1983) check value.
	assert.InDelta(t, 9712.653, UnescoDepth(10000, 30), 1e-3)
	assert.InDelta(t, 9712.653, DepthFromPressure(10000, 30, MethodUNESCO), 1e-3)
}

func TestRoundTrip_ReferenceLatitude(t *testing.T) {
	for _, p := range []float64{0.5, 10, 55.3, 150, 1000, 4500} {
		d := DepthFromPressure(p, -27, MethodGSW)
		back := PressureFromDepth(d, -27)
		assert.InDelta(t, p, back, 1e-6, "round trip at %v dbar", p)
	}
}

func TestPFromZ_NaN(t *testing.T) {
	assert.True(t, math.IsNaN(PFromZ(math.NaN(), -27)))
	assert.True(t, math.IsNaN(PFromZ(-10, math.NaN())))
	assert.True(t, math.IsNaN(ZFromP(math.NaN(), -27)))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodGSW, m)

	m, err = ParseMethod(" UNESCO ")
	require.NoError(t, err)
	assert.Equal(t, MethodUNESCO, m)

	_, err = ParseMethod("chen-millero")
	assert.Error(t, err)
}
