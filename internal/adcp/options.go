package adcp

import (
	"github.com/banshee-data/adcpqc/internal/qcflag"
	"github.com/banshee-data/adcpqc/internal/seawater"
)

// DefaultReferenceLatitude is used for pressure to depth conversion when the
// record has no latitude.
const DefaultReferenceLatitude = -27.0

// Thresholds is the resolved threshold set for one instrument.
type Thresholds struct {
	// EchoRange is ea_fishthresh, compared against the cross-beam echo
	// amplitude differences.
	EchoRange            float64 `json:"echo_range"`
	CorrelationMagnitude float64 `json:"correlation_magnitude"`
	// ErrorVelocity is the half width of the band around the mean error
	// velocity, m/s.
	ErrorVelocity      float64 `json:"error_velocity"`
	HorizontalVelocity float64 `json:"horizontal_velocity"`
	VerticalVelocity   float64 `json:"vertical_velocity"`
	// Tilt in degrees.
	Tilt float64 `json:"tilt"`
	// SideLobeFraction is the fraction of a bin added back to the usable
	// range.
	SideLobeFraction float64 `json:"side_lobe_fraction"`
}

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EchoRange:            50,
		CorrelationMagnitude: 64,
		ErrorVelocity:        0.8,
		HorizontalVelocity:   2,
		VerticalVelocity:     1,
		Tilt:                 50,
		SideLobeFraction:     0.5,
	}
}

// Options carries everything a screening run needs apart from thresholds.
type Options struct {
	FlagSet           *qcflag.Set
	ReferenceLatitude float64
	DepthMethod       seawater.Method
	// IgnorePriorFlags disables masking of values already flagged by
	// earlier QC.
	IgnorePriorFlags bool
}

// DefaultOptions uses the IMOS flag set, the reference latitude and the GSW
// depth conversion.
func DefaultOptions() Options {
	return Options{
		FlagSet:           qcflag.MustLookup(qcflag.DefaultSetID),
		ReferenceLatitude: DefaultReferenceLatitude,
		DepthMethod:       seawater.MethodGSW,
	}
}

func (o Options) flagSet() *qcflag.Set {
	if o.FlagSet == nil {
		return qcflag.MustLookup(qcflag.DefaultSetID)
	}
	return o.FlagSet
}

// priorFlags returns the set used to mask flagged input values, or nil.
func (o Options) priorFlags() *qcflag.Set {
	if o.IgnorePriorFlags {
		return nil
	}
	return o.flagSet()
}
