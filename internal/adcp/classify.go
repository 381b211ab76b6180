package adcp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/adcpqc/internal/qcflag"
)

// ExceedsFlags flags a cell bad when stat > threshold and good otherwise.
// NaN cells are flagged missing.
func ExceedsFlags(set *qcflag.Set, statistic *mat.Dense, threshold float64) *qcflag.Matrix {
	rows, cols := statistic.Dims()
	out := qcflag.NewMatrix(rows, cols, set.Good())
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := statistic.At(i, j)
			switch {
			case math.IsNaN(v):
				out.Set(i, j, set.Missing())
			case v > threshold:
				out.Set(i, j, set.Bad())
			}
		}
	}
	return out
}

// CorrelationFlags fails a cell when any of the four beams has a correlation
// magnitude below threshold, so a cell passes only with every beam good.
// A cell with no failing beam but a NaN beam is flagged missing.
func CorrelationFlags(set *qcflag.Set, beams [NumBeams]*mat.Dense, threshold float64) (*qcflag.Matrix, error) {
	rows, cols, err := beamDims(beams)
	if err != nil {
		return nil, err
	}
	out := qcflag.NewMatrix(rows, cols, set.Good())
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			missing := false
			for b := range beams {
				v := beams[b].At(i, j)
				if v < threshold {
					out.Set(i, j, set.Bad())
					missing = false
					break
				}
				missing = missing || math.IsNaN(v)
			}
			if missing {
				out.Set(i, j, set.Missing())
			}
		}
	}
	return out, nil
}

// NaNMean is the mean of the finite values in m, NaN when there are none.
func NaNMean(m *mat.Dense) float64 {
	vals := finiteValues(m)
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// ErrorVelocityFlags fails a cell when the error velocity lies outside
// mean ± threshold. The band is centred on the sample mean rather than zero
// so a constant instrument bias does not fail every cell.
func ErrorVelocityFlags(set *qcflag.Set, erv *mat.Dense, threshold float64) (flags *qcflag.Matrix, mean float64) {
	mean = NaNMean(erv)
	rows, cols := erv.Dims()
	dev := mat.NewDense(rows, cols, nil)
	dev.Apply(func(_, _ int, v float64) float64 { return math.Abs(v - mean) }, erv)
	return ExceedsFlags(set, dev, threshold), mean
}

// HorizontalSpeed returns sqrt(u² + v²) per cell.
func HorizontalSpeed(u, v *mat.Dense) (*mat.Dense, error) {
	ur, uc := u.Dims()
	vr, vc := v.Dims()
	if ur != vr || uc != vc {
		return nil, fmt.Errorf("UCUR is %dx%d, VCUR is %dx%d: %w", ur, uc, vr, vc, ErrShapeMismatch)
	}
	out := mat.NewDense(ur, uc, nil)
	out.Apply(func(i, j int, x float64) float64 { return math.Hypot(x, v.At(i, j)) }, u)
	return out, nil
}

// AbsDense returns |m| per cell.
func AbsDense(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return math.Abs(v) }, m)
	return out
}

// Tilt returns the instrument tilt from vertical in degrees for roll and
// pitch in degrees:
//
//	tilt = acosd(sqrt(1 - sin²(roll) - sin²(pitch)))
//
// Roll/pitch combinations for which the radicand goes negative have no real
// tilt; they are reported as 90°, which fails any usable tilt threshold.
func Tilt(roll, pitch float64) float64 {
	sr := math.Sin(roll * math.Pi / 180)
	sp := math.Sin(pitch * math.Pi / 180)
	arg := 1 - sr*sr - sp*sp
	if arg <= 0 {
		return 90
	}
	return math.Acos(math.Sqrt(arg)) * 180 / math.Pi
}

// TiltSeries applies Tilt ping by ping.
func TiltSeries(roll, pitch []float64) ([]float64, error) {
	if len(roll) != len(pitch) {
		return nil, fmt.Errorf("ROLL has %d values, PITCH %d: %w", len(roll), len(pitch), ErrShapeMismatch)
	}
	out := make([]float64, len(roll))
	for i := range roll {
		out[i] = Tilt(roll[i], pitch[i])
	}
	return out, nil
}

// TiltFlags flags every bin of a ping bad when its tilt exceeds threshold.
func TiltFlags(set *qcflag.Set, tilt []float64, bins int, threshold float64) *qcflag.Matrix {
	out := qcflag.NewMatrix(len(tilt), bins, set.Good())
	for i, t := range tilt {
		switch {
		case math.IsNaN(t):
			out.SetRow(i, set.Missing())
		case t > threshold:
			out.SetRow(i, set.Bad())
		}
	}
	return out
}

func finiteValues(m *mat.Dense) []float64 {
	r, c := m.Dims()
	vals := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				vals = append(vals, v)
			}
		}
	}
	return vals
}
