package adcp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/adcpqc/internal/qcflag"
)

func TestContaminatedDistance_UpwardExample(t *testing.T) {
	got := ContaminatedDistance(100, 20, 2, 0.5)
	assert.InDelta(t, 100-(100*math.Cos(20*math.Pi/180)-1), got, 1e-12)
	assert.InDelta(t, 7.03, got, 0.01)
}

func TestContaminatedDistance_MonotonicInBeamAngle(t *testing.T) {
	prevUsable := math.Inf(1)
	for angle := 5.0; angle < 90; angle += 5 {
		usable := 100 - ContaminatedDistance(100, angle, 2, 0.5)
		assert.Less(t, usable, prevUsable, "beam angle %v", angle)
		prevUsable = usable
	}
}

func TestSideLobeFlags_Upward(t *testing.T) {
	set := imos()
	rec := newBareRecord(t, 2, 6, true)
	// bins at 8, 6, 4, 2, 0, -2 m
	require.NoError(t, rec.AddSeries(VarDepth, []float64{10, math.NaN()}, nil))
	geom, err := ResolveGeometry(rec, DefaultOptions())
	require.NoError(t, err)

	sl, err := SideLobeFlags(set, rec, geom, 0.5)
	require.NoError(t, err)

	boundary := 10 - (10*math.Cos(20*math.Pi/180) - 1)
	assert.InDelta(t, boundary, sl.Boundary[0], 1e-12)
	assert.True(t, math.IsNaN(sl.SiteDepth))

	for j, want := range []uint8{1, 1, 1, 1, 4, 4} {
		assert.EqualValues(t, want, sl.Flags.At(0, j), "bin %d", j)
	}
	// unknown instrument depth
	assert.True(t, math.IsNaN(sl.Boundary[1]))
	assert.Equal(t, 6, countRow(sl, 1, set.Missing()))
}

func TestSideLobeFlags_UpwardNotReachingSurface(t *testing.T) {
	set := imos()
	rec, err := NewRecord(Metadata{BeamAngle: 20, BinSize: 2}, pingTimes(1), DimHeightAboveSensor,
		[]float64{2, 4, 6, 8, 9.5})
	require.NoError(t, err)
	// bins at 8, 6, 4, 2, 0.5 m: the last one is inside the contaminated
	// layer but nothing reaches the surface.
	require.NoError(t, rec.AddSeries(VarDepth, []float64{10}, nil))
	geom, err := ResolveGeometry(rec, DefaultOptions())
	require.NoError(t, err)

	sl, err := SideLobeFlags(set, rec, geom, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 5, sl.Flags.Count(set.Good()))
}

func TestSideLobeFlags_Downward(t *testing.T) {
	set := imos()
	rec := newBareRecord(t, 1, 10, false)
	rec.Meta.SiteNominalDepth = ptr(50)
	// bins at 32 .. 50 m
	require.NoError(t, rec.AddSeries(VarDepth, []float64{30}, nil))
	geom, err := ResolveGeometry(rec, DefaultOptions())
	require.NoError(t, err)

	sl, err := SideLobeFlags(set, rec, geom, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 50.0, sl.SiteDepth)

	dist := 20.0
	want := 50 - (dist - (dist*math.Cos(20*math.Pi/180) - 1))
	assert.InDelta(t, want, sl.Boundary[0], 1e-12)

	for j := 0; j < 10; j++ {
		z := geom.BinDepth.At(0, j)
		if z > want {
			assert.Equal(t, set.Bad(), sl.Flags.At(0, j), "bin at %v m", z)
		} else {
			assert.Equal(t, set.Good(), sl.Flags.At(0, j), "bin at %v m", z)
		}
	}
	assert.Equal(t, 2, sl.Flags.Count(set.Bad()))
}

func TestSideLobeFlags_DownwardUsesDeploymentDepth(t *testing.T) {
	set := imos()
	rec := newBareRecord(t, 1, 10, false)
	rec.Meta.SiteDepthAtDeployment = ptr(40)
	require.NoError(t, rec.AddSeries(VarDepth, []float64{30}, nil))
	geom, err := ResolveGeometry(rec, DefaultOptions())
	require.NoError(t, err)

	sl, err := SideLobeFlags(set, rec, geom, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 40.0, sl.SiteDepth)
}

func TestSideLobeFlags_DownwardWithoutSiteDepth(t *testing.T) {
	rec := newBareRecord(t, 1, 3, false)
	require.NoError(t, rec.AddSeries(VarDepth, []float64{30}, nil))
	geom, err := ResolveGeometry(rec, DefaultOptions())
	require.NoError(t, err)

	_, err = SideLobeFlags(imos(), rec, geom, 0.5)
	require.ErrorIs(t, err, ErrMissingSiteDepth)
	assert.Contains(t, err.Error(), "site_nominal_depth")
}

func countRow(sl *SideLobe, i int, code qcflag.Code) int {
	_, cols := sl.Flags.Dims()
	n := 0
	for j := 0; j < cols; j++ {
		if sl.Flags.At(i, j) == code {
			n++
		}
	}
	return n
}
