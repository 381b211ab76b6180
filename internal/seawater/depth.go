// Package seawater converts between sea pressure and depth.
//
// ZFromP and PFromZ follow the TEOS-10 gsw_z_from_p formulation with the
// dynamic height anomaly taken as zero. UnescoDepth is the older Fofonoff &
// Millard (1983) polynomial, kept for instruments processed against it.
package seawater

import (
	"fmt"
	"math"
	"strings"
)

// StandardAtmosphere is one atmosphere in dbar, subtracted from absolute
// pressure to get sea pressure.
const StandardAtmosphere = 10.1325

const (
	deg2rad = math.Pi / 180
	gamma   = 2.26e-7
)

// Method selects the pressure to depth formulation.
type Method string

const (
	MethodGSW    Method = "gsw"
	MethodUNESCO Method = "unesco"
)

// ParseMethod accepts "gsw" or "unesco", case-insensitively. An empty string
// selects MethodGSW.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(MethodGSW):
		return MethodGSW, nil
	case string(MethodUNESCO):
		return MethodUNESCO, nil
	}
	return "", fmt.Errorf("unknown depth method %q (want gsw or unesco)", s)
}

// enthalpySSO0 is the enthalpy at Standard Ocean Salinity and 0 °C
// conservative temperature, in J/kg, as a function of sea pressure in dbar.
func enthalpySSO0(p float64) float64 {
	z := p * 1e-4
	dyn := z * (9.726613854843870e-04 + z*(-2.252956605630465e-05+
		z*(2.376909655387404e-06+z*(-1.664294869986011e-07+
			z*(-5.988108894465758e-09+z*(1.166976569488420e-09+
				z*(-7.101716040856910e-11)))))))
	return dyn * 1e8
}

func gravityTerms(lat float64) (a, b float64) {
	x := math.Sin(lat * deg2rad)
	sin2 := x * x
	b = 9.780327 * (1.0 + (5.2792e-3+(2.32e-5*sin2))*sin2)
	a = -0.5 * gamma * b
	return a, b
}

// ZFromP returns height in metres (negative below the sea surface) for sea
// pressure p in dbar at latitude lat in degrees.
func ZFromP(p, lat float64) float64 {
	a, b := gravityTerms(lat)
	c := enthalpySSO0(p)
	return -2 * c / (b + math.Sqrt(b*b-4*a*c))
}

// PFromZ inverts ZFromP with Newton iterations. z is height in metres,
// negative below the surface.
func PFromZ(z, lat float64) float64 {
	if math.IsNaN(z) || math.IsNaN(lat) {
		return math.NaN()
	}
	// first guess: roughly 1 dbar per metre
	p := -z
	const h = 1e-3
	for i := 0; i < 50; i++ {
		f := ZFromP(p, lat) - z
		df := (ZFromP(p+h, lat) - ZFromP(p-h, lat)) / (2 * h)
		step := f / df
		p -= step
		if math.Abs(step) < 1e-10 {
			break
		}
	}
	return p
}

// UnescoDepth returns depth in metres for sea pressure p in dbar at latitude
// lat, using the UNESCO 1983 formula.
func UnescoDepth(p, lat float64) float64 {
	x := math.Sin(lat / 57.29578)
	x *= x
	gr := 9.780318*(1.0+(5.2788e-3+2.36e-5*x)*x) + 1.092e-6*p
	return (((-1.82e-15*p+2.279e-10)*p-2.2512e-5)*p + 9.72659) * p / gr
}

// DepthFromPressure returns positive-down depth in metres.
func DepthFromPressure(p, lat float64, method Method) float64 {
	if method == MethodUNESCO {
		return UnescoDepth(p, lat)
	}
	return -ZFromP(p, lat)
}

// PressureFromDepth is the inverse of DepthFromPressure for the GSW method.
func PressureFromDepth(depth, lat float64) float64 {
	return PFromZ(-depth, lat)
}
