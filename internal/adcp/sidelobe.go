package adcp

import (
	"fmt"
	"math"

	"github.com/banshee-data/adcpqc/internal/qcflag"
)

// ContaminatedDistance returns how far from the boundary (surface or
// seabed) the side-lobe contamination extends, for a transducer at
// distance from that boundary:
//
//	distance - (distance·cos(beamAngle) - fraction·binSize)
//
// The usable range distance·cos(beamAngle) - fraction·binSize shrinks as
// the beam angle grows.
func ContaminatedDistance(distance, beamAngle, binSize, fraction float64) float64 {
	return distance - (distance*math.Cos(beamAngle*math.Pi/180) - fraction*binSize)
}

// SideLobe is the outcome of the side-lobe contamination test.
type SideLobe struct {
	Flags *qcflag.Matrix
	// Boundary is the depth per ping past which bins are contaminated:
	// shallower for upward looking, deeper for downward looking.
	Boundary []float64
	// SiteDepth is the bottom depth used for downward looking instruments,
	// NaN otherwise.
	SiteDepth float64
}

// SideLobeFlags flags the bins lying in the side-lobe contaminated zone next
// to the surface (upward looking) or the seabed (downward looking). A ping
// whose bins never reach past the boundary itself is left good.
func SideLobeFlags(set *qcflag.Set, rec *Record, geom *Geometry, fraction float64) (*SideLobe, error) {
	pings, bins := geom.BinDepth.Dims()
	res := &SideLobe{
		Flags:     qcflag.NewMatrix(pings, bins, set.Good()),
		Boundary:  make([]float64, pings),
		SiteDepth: math.NaN(),
	}

	if !geom.Upward {
		site, ok := rec.Meta.SiteDepth()
		if !ok {
			return nil, fmt.Errorf("%s is downward looking: %w; set site_nominal_depth or site_depth_at_deployment in the deployment metadata and reprocess",
				rec.Meta.Instrument(), ErrMissingSiteDepth)
		}
		res.SiteDepth = site
	}

	for i, d := range geom.InstrumentDepth {
		if math.IsNaN(d) {
			res.Boundary[i] = math.NaN()
			res.Flags.SetRow(i, set.Missing())
			continue
		}

		var boundary float64
		if geom.Upward {
			boundary = ContaminatedDistance(d, rec.Meta.BeamAngle, geom.BinSize, fraction)
		} else {
			dist := res.SiteDepth - d
			boundary = res.SiteDepth - ContaminatedDistance(dist, rec.Meta.BeamAngle, geom.BinSize, fraction)
		}
		res.Boundary[i] = boundary

		if !reachesBoundary(geom, i, bins, res.SiteDepth) {
			continue
		}
		for j := 0; j < bins; j++ {
			z := geom.BinDepth.At(i, j)
			switch {
			case math.IsNaN(z):
				res.Flags.Set(i, j, set.Missing())
			case geom.Upward && z < boundary:
				res.Flags.Set(i, j, set.Bad())
			case !geom.Upward && z > boundary:
				res.Flags.Set(i, j, set.Bad())
			}
		}
	}
	return res, nil
}

// reachesBoundary reports whether any bin of ping i lies beyond the surface
// (depth <= 0) or the seabed (depth >= site depth).
func reachesBoundary(geom *Geometry, i, bins int, site float64) bool {
	for j := 0; j < bins; j++ {
		z := geom.BinDepth.At(i, j)
		if geom.Upward && z <= 0 {
			return true
		}
		if !geom.Upward && z >= site {
			return true
		}
	}
	return false
}
