package adcp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/adcpqc/internal/monitoring"
	"github.com/banshee-data/adcpqc/internal/seawater"
)

// IsUpwardLooking reports whether the bin heights describe an upward looking
// instrument: true unless every height is <= 0. A NaN height is not <= 0,
// so it counts as upward.
func IsUpwardLooking(binHeights []float64) bool {
	for _, h := range binHeights {
		if !(h <= 0) {
			return true
		}
	}
	return false
}

// Geometry places every bin of every ping in the water column.
type Geometry struct {
	Upward bool
	// InstrumentDepth is positive-down depth of the transducer per ping.
	InstrumentDepth []float64
	// BinDepth is pings × bins, positive-down.
	BinDepth *mat.Dense
	BinSize  float64
	// DepthSource names the variable the instrument depth came from.
	DepthSource string
	// Latitude used for the pressure conversion; NaN when DEPTH was used.
	Latitude float64
}

// ResolveGeometry computes the orientation, instrument depth and per-bin
// depth of a record.
func ResolveGeometry(rec *Record, opts Options) (*Geometry, error) {
	if err := checkOrientation(rec.BinHeights); err != nil {
		return nil, err
	}
	if err := checkMonotonic(rec.BinHeights); err != nil {
		return nil, err
	}

	upward := IsUpwardLooking(rec.BinHeights)

	binSize, err := resolveBinSize(rec)
	if err != nil {
		return nil, err
	}

	depth, source, lat, err := InstrumentDepth(rec, opts)
	if err != nil {
		return nil, err
	}

	return &Geometry{
		Upward:          upward,
		InstrumentDepth: depth,
		BinDepth:        BinDepths(depth, rec.BinHeights, upward),
		BinSize:         binSize,
		DepthSource:     source,
		Latitude:        lat,
	}, nil
}

// InstrumentDepth returns the transducer depth per ping. DEPTH is used when
// present, otherwise PRES_REL, otherwise PRES less one atmosphere, converted
// at the record latitude or the reference latitude.
func InstrumentDepth(rec *Record, opts Options) (depth []float64, source string, lat float64, err error) {
	prior := opts.priorFlags()
	if s, ok := rec.Series(VarDepth); ok {
		return s.Filtered(prior), VarDepth, math.NaN(), nil
	}

	var pres []float64
	if s, ok := rec.Series(VarPresRel); ok {
		pres, source = s.Filtered(prior), VarPresRel
	} else if s, ok := rec.Series(VarPres); ok {
		pres, source = s.Filtered(prior), VarPres
		for i := range pres {
			pres[i] -= seawater.StandardAtmosphere
		}
	} else {
		return nil, "", math.NaN(), fmt.Errorf("%s: %w", rec.Meta.Instrument(), ErrMissingDepth)
	}

	lat = opts.ReferenceLatitude
	if rec.Meta.Latitude != nil {
		lat = *rec.Meta.Latitude
	} else {
		monitoring.Diagf("%s: no latitude, converting %s to depth at reference latitude %.1f",
			rec.Meta.Instrument(), source, lat)
	}

	depth = make([]float64, len(pres))
	for i, p := range pres {
		depth[i] = seawater.DepthFromPressure(p, lat, opts.DepthMethod)
	}
	return depth, source, lat, nil
}

// BinDepths returns pings × bins depths: the instrument depth minus the bin
// distance for upward looking instruments, plus it otherwise.
func BinDepths(instrumentDepth, binHeights []float64, upward bool) *mat.Dense {
	out := mat.NewDense(len(instrumentDepth), len(binHeights), nil)
	sign := 1.0
	if upward {
		sign = -1.0
	}
	for i, d := range instrumentDepth {
		for j, h := range binHeights {
			out.Set(i, j, d+sign*math.Abs(h))
		}
	}
	return out
}

// checkOrientation rejects bin vectors that are partly positive and partly
// negative. Both bin dimensions carry negative values for downward looking
// instruments.
func checkOrientation(heights []float64) error {
	var pos, neg bool
	for _, h := range heights {
		pos = pos || h > 0
		neg = neg || h < 0
	}
	if pos && neg {
		return ErrInconsistentOrientation
	}
	return nil
}

// checkMonotonic requires bin distance from the transducer to be strictly
// monotonic with bin index; a constant instrument depth per ping then makes
// bin depth monotonic too.
func checkMonotonic(heights []float64) error {
	dir := 0
	prev := math.NaN()
	for j, h := range heights {
		a := math.Abs(h)
		if math.IsNaN(a) {
			continue
		}
		if !math.IsNaN(prev) {
			d := 0
			switch {
			case a > prev:
				d = 1
			case a < prev:
				d = -1
			}
			if d == 0 || (dir != 0 && d != dir) {
				return fmt.Errorf("bin %d: %w", j, ErrNonMonotonicBins)
			}
			dir = d
		}
		prev = a
	}
	return nil
}

func resolveBinSize(rec *Record) (float64, error) {
	if rec.Meta.BinSize > 0 {
		return rec.Meta.BinSize, nil
	}
	if len(rec.BinHeights) < 2 {
		return 0, ErrMissingBinSize
	}
	size := math.Abs(math.Abs(rec.BinHeights[1]) - math.Abs(rec.BinHeights[0]))
	if size == 0 || math.IsNaN(size) {
		return 0, ErrMissingBinSize
	}
	return size, nil
}
