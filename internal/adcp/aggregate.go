package adcp

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Band holds the statistics of one depth band. Top is the shallower edge.
type Band struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// Exceed counts the values failing the test threshold.
	Exceed int `json:"exceed"`
}

// Profile is a statistic summarised by depth band, used to choose
// thresholds. It has no influence on the flags.
type Profile struct {
	Threshold float64 `json:"threshold"`
	Bands     []Band  `json:"bands"`
}

// Aggregate buckets statistic by bin depth into bands binSize wide,
// starting two bins above the shallowest observed depth. fails decides
// whether a value counts towards Band.Exceed. Bands without samples are
// omitted.
func Aggregate(statistic, binDepth *mat.Dense, binSize, threshold float64, fails func(float64) bool) (*Profile, error) {
	sr, sc := statistic.Dims()
	dr, dc := binDepth.Dims()
	if sr != dr || sc != dc {
		return nil, fmt.Errorf("statistic is %dx%d, depth is %dx%d: %w", sr, sc, dr, dc, ErrShapeMismatch)
	}
	if !(binSize > 0) {
		return nil, ErrMissingBinSize
	}

	depths := finiteValues(binDepth)
	prof := &Profile{Threshold: threshold}
	if len(depths) == 0 {
		return prof, nil
	}
	top := floats.Min(depths) - 2*binSize

	// Band indices are kept as floats so an outlying depth adds one
	// distant band instead of sizing a slice over the whole range.
	buckets := make(map[float64][]float64)
	for i := 0; i < sr; i++ {
		for j := 0; j < sc; j++ {
			v, z := statistic.At(i, j), binDepth.At(i, j)
			if math.IsNaN(v) || math.IsNaN(z) || math.IsInf(z, 0) {
				continue
			}
			k := math.Floor((z - top) / binSize)
			buckets[k] = append(buckets[k], v)
		}
	}
	keys := make([]float64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	for _, k := range keys {
		vals := buckets[k]
		b := Band{
			Top:    top + k*binSize,
			Bottom: top + (k+1)*binSize,
			Count:  len(vals),
			Min:    floats.Min(vals),
			Max:    floats.Max(vals),
		}
		if len(vals) > 1 {
			b.Mean, b.Std = stat.MeanStdDev(vals, nil)
		} else {
			b.Mean = vals[0]
		}
		for _, v := range vals {
			if fails != nil && fails(v) {
				b.Exceed++
			}
		}
		prof.Bands = append(prof.Bands, b)
	}
	return prof, nil
}
