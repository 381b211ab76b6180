package adcp

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// BeamSpread sorts the four beam values of every ping/bin cell and returns
//
//	df1 = highest - lowest
//	df2 = highest - second lowest
//
// df1 screens the echo range across all beams; df2 tells whether a three
// beam solution would still be possible, which only makes sense for data
// left in beam coordinates. A NaN in any beam makes both statistics NaN.
func BeamSpread(beams [NumBeams]*mat.Dense) (df1, df2 *mat.Dense, err error) {
	rows, cols, err := beamDims(beams)
	if err != nil {
		return nil, nil, err
	}

	df1 = mat.NewDense(rows, cols, nil)
	df2 = mat.NewDense(rows, cols, nil)
	var v [NumBeams]float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			hasNaN := false
			for b := range beams {
				v[b] = beams[b].At(i, j)
				hasNaN = hasNaN || math.IsNaN(v[b])
			}
			if hasNaN {
				df1.Set(i, j, math.NaN())
				df2.Set(i, j, math.NaN())
				continue
			}
			sort.Sort(sort.Reverse(sort.Float64Slice(v[:])))
			df1.Set(i, j, v[0]-v[NumBeams-1])
			df2.Set(i, j, v[0]-v[NumBeams-2])
		}
	}
	return df1, df2, nil
}

// BeamMin returns the lowest beam value per cell, NaN when any beam is NaN.
// Correlation magnitude fails as soon as this drops below the threshold.
func BeamMin(beams [NumBeams]*mat.Dense) (*mat.Dense, error) {
	rows, cols, err := beamDims(beams)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m := math.Inf(1)
			for b := range beams {
				x := beams[b].At(i, j)
				if math.IsNaN(x) {
					m = math.NaN()
					break
				}
				m = math.Min(m, x)
			}
			out.Set(i, j, m)
		}
	}
	return out, nil
}

func beamDims(beams [NumBeams]*mat.Dense) (rows, cols int, err error) {
	for b, m := range beams {
		if m == nil {
			return 0, 0, fmt.Errorf("beam %d: no data", b+1)
		}
		r, c := m.Dims()
		if b == 0 {
			rows, cols = r, c
			continue
		}
		if r != rows || c != cols {
			return 0, 0, fmt.Errorf("beam %d is %dx%d, beam 1 is %dx%d: %w", b+1, r, c, rows, cols, ErrShapeMismatch)
		}
	}
	return rows, cols, nil
}

// filteredBeams applies prior flags to each beam of a kind.
func filteredBeams(grids [NumBeams]*Grid, opts Options) [NumBeams]*mat.Dense {
	var out [NumBeams]*mat.Dense
	prior := opts.priorFlags()
	for b, g := range grids {
		out[b] = g.Filtered(prior)
	}
	return out
}
