// Package adcp derives threshold based QC flags for acoustic Doppler current
// profiler bin data: bin geometry, cross-beam statistics, threshold
// classification, side-lobe contamination and depth-band diagnostics.
package adcp

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/adcpqc/internal/qcflag"
)

// Variable and dimension names used by the sample data.
const (
	DimTime              = "TIME"
	DimHeightAboveSensor = "HEIGHT_ABOVE_SENSOR"
	DimDistAlongBeams    = "DIST_ALONG_BEAMS"

	VarPresRel = "PRES_REL"
	VarPres    = "PRES"
	VarDepth   = "DEPTH"
	VarUCur    = "UCUR"
	VarVCur    = "VCUR"
	VarWCur    = "WCUR"
	VarECur    = "ECUR"
	VarRoll    = "ROLL"
	VarPitch   = "PITCH"
)

// NumBeams is the number of acoustic beams handled by the beam statistics.
const NumBeams = 4

// BeamKind selects one of the per-beam quantities.
type BeamKind int

const (
	EchoAmplitude BeamKind = iota
	CorrelationMagnitude
)

// VarName returns the sample data name for beam b (0 based), e.g. CMAG3.
func (k BeamKind) VarName(b int) string {
	prefix := "ABSIC"
	if k == CorrelationMagnitude {
		prefix = "CMAG"
	}
	return fmt.Sprintf("%s%d", prefix, b+1)
}

// Metadata is the deployment metadata the QC tests read.
type Metadata struct {
	InstrumentMake   string `json:"instrument_make"`
	InstrumentModel  string `json:"instrument_model"`
	InstrumentSerial string `json:"instrument_serial_number"`

	NominalDepth          *float64 `json:"instrument_nominal_depth,omitempty"`
	SiteNominalDepth      *float64 `json:"site_nominal_depth,omitempty"`
	SiteDepthAtDeployment *float64 `json:"site_depth_at_deployment,omitempty"`
	Latitude              *float64 `json:"latitude,omitempty"`

	// BeamAngle is the beam angle from vertical in degrees.
	BeamAngle float64 `json:"beam_angle"`
	// BinSize in metres. Zero means derive it from the bin heights.
	BinSize float64 `json:"bin_size,omitempty"`
	// BeamCoordinates is true when velocities were not converted to ENU.
	BeamCoordinates bool `json:"beam_coordinates,omitempty"`
}

// Instrument returns a short label such as "Teledyne RDI Workhorse #1234".
func (m Metadata) Instrument() string {
	label := strings.TrimSpace(m.InstrumentMake + " " + m.InstrumentModel)
	if label == "" {
		label = "unknown instrument"
	}
	if m.InstrumentSerial != "" {
		label += " #" + m.InstrumentSerial
	}
	return label
}

// SiteDepth returns the site nominal depth, falling back to the depth at
// deployment.
func (m Metadata) SiteDepth() (float64, bool) {
	if m.SiteNominalDepth != nil {
		return *m.SiteNominalDepth, true
	}
	if m.SiteDepthAtDeployment != nil {
		return *m.SiteDepthAtDeployment, true
	}
	return 0, false
}

// Series is a per-ping variable.
type Series struct {
	Data  []float64
	Flags []qcflag.Code
}

// Filtered returns a copy of the data with values flagged bad by earlier QC
// replaced by NaN.
func (s *Series) Filtered(set *qcflag.Set) []float64 {
	out := make([]float64, len(s.Data))
	copy(out, s.Data)
	if s.Flags == nil || set == nil {
		return out
	}
	for i, f := range s.Flags {
		if set.IsBad(f) || f == set.Missing() {
			out[i] = math.NaN()
		}
	}
	return out
}

// Grid is a ping × bin variable.
type Grid struct {
	Data  *mat.Dense
	Flags *qcflag.Matrix
}

// Filtered returns a copy of the data with cells flagged bad by earlier QC
// replaced by NaN.
func (g *Grid) Filtered(set *qcflag.Set) *mat.Dense {
	out := mat.DenseCopyOf(g.Data)
	if g.Flags == nil || set == nil {
		return out
	}
	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			f := g.Flags.At(i, j)
			if set.IsBad(f) || f == set.Missing() {
				out.Set(i, j, math.NaN())
			}
		}
	}
	return out
}

// Record is one instrument deployment: a time series of pings, each with a
// vector of range bins.
type Record struct {
	Meta Metadata
	Time []time.Time
	// BinHeights holds the bin dimension values. Both HEIGHT_ABOVE_SENSOR
	// and DIST_ALONG_BEAMS are negative for a downward looking instrument.
	BinHeights   []float64
	BinDimension string

	series map[string]*Series
	grids  map[string]*Grid
	beams  [2][NumBeams]*Grid
}

// NewRecord creates an empty record with the given dimensions.
func NewRecord(meta Metadata, times []time.Time, binDim string, binHeights []float64) (*Record, error) {
	if len(times) == 0 {
		return nil, ErrNoPings
	}
	if len(binHeights) == 0 {
		return nil, ErrNoBins
	}
	switch binDim {
	case DimHeightAboveSensor, DimDistAlongBeams:
	default:
		return nil, fmt.Errorf("unsupported bin dimension %q", binDim)
	}
	return &Record{
		Meta:         meta,
		Time:         times,
		BinHeights:   binHeights,
		BinDimension: binDim,
		series:       make(map[string]*Series),
		grids:        make(map[string]*Grid),
	}, nil
}

// Dims returns the number of pings and bins.
func (r *Record) Dims() (pings, bins int) { return len(r.Time), len(r.BinHeights) }

// AddSeries attaches a per-ping variable. flags may be nil.
func (r *Record) AddSeries(name string, data []float64, flags []qcflag.Code) error {
	if len(data) != len(r.Time) {
		return fmt.Errorf("%s: %d values for %d pings: %w", name, len(data), len(r.Time), ErrShapeMismatch)
	}
	if flags != nil && len(flags) != len(data) {
		return fmt.Errorf("%s: %d flags for %d values: %w", name, len(flags), len(data), ErrShapeMismatch)
	}
	r.series[name] = &Series{Data: data, Flags: flags}
	return nil
}

// AddGrid attaches a ping × bin variable. flags may be nil.
func (r *Record) AddGrid(name string, data *mat.Dense, flags *qcflag.Matrix) error {
	if err := r.checkGrid(name, data, flags); err != nil {
		return err
	}
	r.grids[name] = &Grid{Data: data, Flags: flags}
	return nil
}

// SetBeam attaches beam b (0 based) of the given kind.
func (r *Record) SetBeam(kind BeamKind, b int, data *mat.Dense, flags *qcflag.Matrix) error {
	if b < 0 || b >= NumBeams {
		return fmt.Errorf("beam index %d out of range", b)
	}
	if err := r.checkGrid(kind.VarName(b), data, flags); err != nil {
		return err
	}
	r.beams[kind][b] = &Grid{Data: data, Flags: flags}
	return nil
}

func (r *Record) checkGrid(name string, data *mat.Dense, flags *qcflag.Matrix) error {
	if data == nil {
		return fmt.Errorf("%s: no data", name)
	}
	pings, bins := r.Dims()
	rows, cols := data.Dims()
	if rows != pings || cols != bins {
		return fmt.Errorf("%s: shape %dx%d, record is %dx%d: %w", name, rows, cols, pings, bins, ErrShapeMismatch)
	}
	if flags != nil {
		fr, fc := flags.Dims()
		if fr != rows || fc != cols {
			return fmt.Errorf("%s: flags shape %dx%d, data is %dx%d: %w", name, fr, fc, rows, cols, ErrShapeMismatch)
		}
	}
	return nil
}

// Series looks up a per-ping variable by name.
func (r *Record) Series(name string) (*Series, bool) {
	s, ok := r.series[name]
	return s, ok
}

// Grid looks up a ping × bin variable by name.
func (r *Record) Grid(name string) (*Grid, bool) {
	g, ok := r.grids[name]
	return g, ok
}

// Beams returns all four beams of a kind. ok is false unless every beam is
// present.
func (r *Record) Beams(kind BeamKind) (beams [NumBeams]*Grid, ok bool) {
	beams = r.beams[kind]
	for _, b := range beams {
		if b == nil {
			return beams, false
		}
	}
	return beams, true
}
