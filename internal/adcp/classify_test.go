package adcp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/adcpqc/internal/qcflag"
)

func TestExceedsFlags_OnlyPassOrFail(t *testing.T) {
	set := imos()
	stat := mat.NewDense(2, 4, []float64{0, 49.9, 50, 50.1, -10, 1e6, 25, 75})
	flags := ExceedsFlags(set, stat, 50)

	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			f := flags.At(i, j)
			assert.Contains(t, []qcflag.Code{set.Good(), set.Bad()}, f)
			assert.Equal(t, stat.At(i, j) > 50, f == set.Bad(), "cell %d,%d", i, j)
		}
	}
}

func TestExceedsFlags_NaNIsMissing(t *testing.T) {
	set := imos()
	flags := ExceedsFlags(set, mat.NewDense(1, 2, []float64{math.NaN(), 1}), 0.5)
	assert.Equal(t, set.Missing(), flags.At(0, 0))
	assert.Equal(t, set.Bad(), flags.At(0, 1))
}

func TestCorrelationFlags(t *testing.T) {
	set := imos()
	nan := math.NaN()
	tests := []struct {
		name  string
		beams [NumBeams]float64
		want  qcflag.Code
	}{
		{"one beam below threshold", [NumBeams]float64{70, 70, 70, 60}, 4},
		{"all above", [NumBeams]float64{70, 70, 70, 70}, 1},
		{"at threshold passes", [NumBeams]float64{64, 64, 64, 64}, 1},
		{"all below", [NumBeams]float64{10, 20, 30, 40}, 4},
		{"nan and no failure", [NumBeams]float64{nan, 70, 70, 70}, 9},
		{"nan and a failure", [NumBeams]float64{nan, 70, 70, 50}, 4},
		{"failure before nan", [NumBeams]float64{50, nan, 70, 70}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, err := CorrelationFlags(set, beamsOf(tt.beams), 64)
			require.NoError(t, err)
			assert.Equal(t, tt.want, flags.At(0, 0))
		})
	}
}

func TestErrorVelocityFlags_CentredOnMean(t *testing.T) {
	set := imos()

	// A constant 1 m/s bias: every value is beyond 0.8 from zero but
	// within 0.8 of the mean.
	erv := mat.NewDense(1, 5, []float64{1, 1, 1, 1, 1.5})
	flags, mean := ErrorVelocityFlags(set, erv, 0.8)
	assert.InDelta(t, 1.1, mean, 1e-12)
	assert.Equal(t, 5, flags.Count(set.Good()))

	erv = mat.NewDense(1, 5, []float64{0.1, 0.2, 0.3, 2.0, math.NaN()})
	flags, mean = ErrorVelocityFlags(set, erv, 0.8)
	assert.InDelta(t, 0.65, mean, 1e-12)
	assert.Equal(t, set.Good(), flags.At(0, 0))
	assert.Equal(t, set.Bad(), flags.At(0, 3))
	assert.Equal(t, set.Missing(), flags.At(0, 4))
}

func TestErrorVelocityFlags_AllNaN(t *testing.T) {
	set := imos()
	flags, mean := ErrorVelocityFlags(set, fill(2, 2, math.NaN()), 0.8)
	assert.True(t, math.IsNaN(mean))
	assert.Equal(t, 4, flags.Count(set.Missing()))
}

func TestHorizontalSpeed(t *testing.T) {
	u := mat.NewDense(1, 3, []float64{3, 1.5, -2})
	v := mat.NewDense(1, 3, []float64{4, 0, -0.1})
	speed, err := HorizontalSpeed(u, v)
	require.NoError(t, err)
	assert.InDelta(t, 5, speed.At(0, 0), 1e-12)
	assert.InDelta(t, 1.5, speed.At(0, 1), 1e-12)

	set := imos()
	flags := ExceedsFlags(set, speed, 2)
	assert.Equal(t, set.Bad(), flags.At(0, 0))
	assert.Equal(t, set.Good(), flags.At(0, 1))
	assert.Equal(t, set.Bad(), flags.At(0, 2))

	_, err = HorizontalSpeed(u, fill(2, 3, 0))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestVerticalSpeedFlags(t *testing.T) {
	set := imos()
	w := mat.NewDense(1, 4, []float64{-1.5, -0.5, 0.9, 1.01})
	flags := ExceedsFlags(set, AbsDense(w), 1)
	assert.Equal(t, []qcflag.Code{4, 1, 1, 4},
		[]qcflag.Code{flags.At(0, 0), flags.At(0, 1), flags.At(0, 2), flags.At(0, 3)})
}

func TestTiltAngle(t *testing.T) {
	assert.Equal(t, 0.0, Tilt(0, 0))
	assert.InDelta(t, 30, Tilt(30, 0), 1e-9)
	assert.InDelta(t, 30, Tilt(0, -30), 1e-9)
	assert.Less(t, Tilt(30, 0), 50.0)

	// roll and pitch together tilt further than either alone
	assert.Greater(t, Tilt(20, 20), Tilt(20, 0))

	// no real solution: reported as horizontal
	assert.Equal(t, 90.0, Tilt(60, 60))
	assert.True(t, math.IsNaN(Tilt(math.NaN(), 0)))
}

func TestTiltFlags_BroadcastPerPing(t *testing.T) {
	set := imos()
	tilt, err := TiltSeries([]float64{0, 30, 60, math.NaN()}, []float64{0, 0, 60, 0})
	require.NoError(t, err)

	flags := TiltFlags(set, tilt, 3, 50)
	rows, cols := flags.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)
	for j := 0; j < cols; j++ {
		assert.Equal(t, set.Good(), flags.At(0, j))
		assert.Equal(t, set.Good(), flags.At(1, j))
		assert.Equal(t, set.Bad(), flags.At(2, j))
		assert.Equal(t, set.Missing(), flags.At(3, j))
	}

	_, err = TiltSeries([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
