package adcp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAggregate_Bands(t *testing.T) {
	nan := math.NaN()
	stat := mat.NewDense(2, 3, []float64{1, 2, 3, 3, 4, nan})
	depth := mat.NewDense(2, 3, []float64{10, 12, 14, 10, 12, 14})

	prof, err := Aggregate(stat, depth, 2, 2.5, above(2.5))
	require.NoError(t, err)

	want := &Profile{
		Threshold: 2.5,
		Bands: []Band{
			{Top: 10, Bottom: 12, Count: 2, Mean: 2, Std: math.Sqrt2, Min: 1, Max: 3, Exceed: 1},
			{Top: 12, Bottom: 14, Count: 2, Mean: 3, Std: math.Sqrt2, Min: 2, Max: 4, Exceed: 1},
			{Top: 14, Bottom: 16, Count: 1, Mean: 3, Std: 0, Min: 3, Max: 3, Exceed: 1},
		},
	}
	if diff := cmp.Diff(want, prof, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Aggregate() mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_FirstBandStartsTwoBinsAbove(t *testing.T) {
	stat := mat.NewDense(1, 1, []float64{5})
	depth := mat.NewDense(1, 1, []float64{7.5})

	prof, err := Aggregate(stat, depth, 0.5, 1, nil)
	require.NoError(t, err)
	require.Len(t, prof.Bands, 1)
	// shallowest depth 7.5, first edge at 6.5; the sample lands in band 2
	assert.InDelta(t, 7.5, prof.Bands[0].Top, 1e-12)
	assert.Equal(t, 0, prof.Bands[0].Exceed)
}

func TestAggregate_EmptyAndInvalid(t *testing.T) {
	prof, err := Aggregate(fill(1, 2, math.NaN()), fill(1, 2, math.NaN()), 1, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, prof.Bands)

	_, err = Aggregate(fill(1, 2, 0), fill(2, 2, 0), 1, 0, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Aggregate(fill(1, 1, 0), fill(1, 1, 0), 0, 0, nil)
	assert.ErrorIs(t, err, ErrMissingBinSize)
}

func TestAggregate_NoEffectOnFlags(t *testing.T) {
	set := imos()
	stat := mat.NewDense(1, 3, []float64{10, 60, 70})
	depth := mat.NewDense(1, 3, []float64{5, 4, 3})

	before := ExceedsFlags(set, stat, 50)
	_, err := Aggregate(stat, depth, 1, 50, above(50))
	require.NoError(t, err)
	after := ExceedsFlags(set, stat, 50)
	assert.Equal(t, before, after)
}

func TestAggregate_OutlyingDepth(t *testing.T) {
	stat := mat.NewDense(1, 3, []float64{1, 2, 3})
	// NetCDF float fill value and an infinite depth among real bins
	depth := mat.NewDense(1, 3, []float64{10, 9.96921e36, math.Inf(1)})

	prof, err := Aggregate(stat, depth, 2, 1.5, above(1.5))
	require.NoError(t, err)
	require.Len(t, prof.Bands, 2)

	assert.Equal(t, 10.0, prof.Bands[0].Top)
	assert.Equal(t, 1, prof.Bands[0].Count)
	assert.Equal(t, 1.0, prof.Bands[0].Mean)

	assert.InEpsilon(t, 9.96921e36, prof.Bands[1].Top, 1e-9)
	assert.Equal(t, 1, prof.Bands[1].Count)
	assert.Equal(t, 1, prof.Bands[1].Exceed)
}

func TestScreen_OutlyingDepthKeepsDiagnostics(t *testing.T) {
	rec := newFullRecord(t, 2, 3)
	depth, _ := rec.Series(VarDepth)
	depth.Data[0] = 9.96921e36

	res, err := Screen(rec, DefaultThresholds(), DefaultOptions())
	require.NoError(t, err)
	echo := res.Test(CheckEchoRange)
	require.NotNil(t, echo.Profile)
	total := 0
	for _, b := range echo.Profile.Bands {
		total += b.Count
	}
	assert.Equal(t, 6, total)
}
