package adcp

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/adcpqc/internal/monitoring"
	"github.com/banshee-data/adcpqc/internal/qcflag"
)

// TestName identifies one threshold test.
type TestName string

const (
	CheckEchoRange          TestName = "echo_range"
	CheckEchoRangeThreeBeam TestName = "echo_range_three_beam"
	CheckCorrelation        TestName = "correlation_magnitude"
	CheckErrorVelocity      TestName = "error_velocity"
	CheckHorizontalVelocity TestName = "horizontal_velocity"
	CheckVerticalVelocity   TestName = "vertical_velocity"
	CheckTilt               TestName = "tilt"
	CheckSideLobe           TestName = "side_lobe"
)

// AllTests lists the tests in the order Screen runs them.
var AllTests = []TestName{
	CheckEchoRange, CheckEchoRangeThreeBeam, CheckCorrelation, CheckErrorVelocity,
	CheckHorizontalVelocity, CheckVerticalVelocity, CheckTilt, CheckSideLobe,
}

// TestResult is the output of one test.
type TestResult struct {
	Name      TestName
	Threshold float64
	Flags     *qcflag.Matrix
	// Profile is nil for tests without a per-bin statistic and when the
	// statistic is empty after masking prior flags.
	Profile *Profile
	// Centre is the band centre for the error velocity test, 0 otherwise.
	Centre float64
}

// Skipped records a test that could not run.
type Skipped struct {
	Name   TestName `json:"name"`
	Reason string   `json:"reason"`
}

// Result gathers the flags and diagnostics of one instrument.
type Result struct {
	Meta       Metadata
	Pings      int
	Bins       int
	// Start and End are the first and last ping times.
	Start      time.Time
	End        time.Time
	Thresholds Thresholds
	FlagSetID  int
	Geometry   *Geometry
	Tests      []*TestResult
	Skipped    []Skipped
	// Combined is the most severe flag over every test that ran.
	Combined *qcflag.Matrix
	// SideLobeBoundary is the contamination boundary depth per ping, nil
	// when the side-lobe test was skipped.
	SideLobeBoundary []float64
}

// Test returns the result of the named test, nil when it did not run.
func (r *Result) Test(name TestName) *TestResult {
	for _, t := range r.Tests {
		if t.Name == name {
			return t
		}
	}
	return nil
}

type screener struct {
	rec  *Record
	th   Thresholds
	opts Options
	set  *qcflag.Set
	res  *Result
}

// Screen runs every threshold test whose inputs are present in rec. A
// missing depth, or missing site depth for a downward looking side-lobe
// test, is fatal; any other missing variable skips that test with a
// warning.
func Screen(rec *Record, th Thresholds, opts Options) (*Result, error) {
	geom, err := ResolveGeometry(rec, opts)
	if err != nil {
		return nil, err
	}

	pings, bins := rec.Dims()
	s := &screener{
		rec:  rec,
		th:   th,
		opts: opts,
		set:  opts.flagSet(),
		res: &Result{
			Meta:       rec.Meta,
			Pings:      pings,
			Bins:       bins,
			Start:      rec.Time[0],
			End:        rec.Time[pings-1],
			Thresholds: th,
			Geometry:   geom,
		},
	}
	s.res.FlagSetID = s.set.ID

	s.echoRange()
	s.correlation()
	s.errorVelocity()
	s.horizontalVelocity()
	s.verticalVelocity()
	s.tilt()
	if err := s.sideLobe(); err != nil {
		return nil, err
	}

	s.res.Combined = qcflag.NewMatrix(pings, bins, s.set.Raw())
	for _, t := range s.res.Tests {
		if err := s.res.Combined.Merge(s.set, t.Flags); err != nil {
			return nil, err
		}
	}
	return s.res, nil
}

func (s *screener) skip(name TestName, err error) {
	reason := err.Error()
	monitoring.Warnf("%s: skipping %s test: %s", s.rec.Meta.Instrument(), name, reason)
	s.res.Skipped = append(s.res.Skipped, Skipped{Name: name, Reason: reason})
}

func (s *screener) add(name TestName, threshold float64, flags *qcflag.Matrix) *TestResult {
	t := &TestResult{Name: name, Threshold: threshold, Flags: flags}
	s.res.Tests = append(s.res.Tests, t)
	return t
}

// profile aggregates statistic by depth, or reports that nothing is left
// to aggregate.
func (s *screener) profile(t *TestResult, statistic *mat.Dense, fails func(float64) bool) {
	if len(finiteValues(statistic)) == 0 {
		monitoring.Diagf("%s: no %s data left after QC filtering, no diagnostic profile", s.rec.Meta.Instrument(), t.Name)
		return
	}
	prof, err := Aggregate(statistic, s.res.Geometry.BinDepth, s.res.Geometry.BinSize, t.Threshold, fails)
	if err != nil {
		monitoring.Diagf("%s: %s profile: %v", s.rec.Meta.Instrument(), t.Name, err)
		return
	}
	t.Profile = prof
}

func above(threshold float64) func(float64) bool {
	return func(v float64) bool { return v > threshold }
}

func (s *screener) echoRange() {
	grids, ok := s.rec.Beams(EchoAmplitude)
	if !ok {
		err := &MissingVariableError{Name: "ABSIC1..ABSIC4"}
		s.skip(CheckEchoRange, err)
		s.skip(CheckEchoRangeThreeBeam, err)
		return
	}
	df1, df2, err := BeamSpread(filteredBeams(grids, s.opts))
	if err != nil {
		s.skip(CheckEchoRange, err)
		s.skip(CheckEchoRangeThreeBeam, err)
		return
	}

	thr := s.th.EchoRange
	t := s.add(CheckEchoRange, thr, ExceedsFlags(s.set, df1, thr))
	s.profile(t, df1, above(thr))

	if !s.rec.Meta.BeamCoordinates {
		monitoring.Diagf("%s: three beam echo range screening assumes beam coordinates, data are earth referenced", s.rec.Meta.Instrument())
	}
	t = s.add(CheckEchoRangeThreeBeam, thr, ExceedsFlags(s.set, df2, thr))
	s.profile(t, df2, above(thr))
}

func (s *screener) correlation() {
	grids, ok := s.rec.Beams(CorrelationMagnitude)
	if !ok {
		s.skip(CheckCorrelation, &MissingVariableError{Name: "CMAG1..CMAG4"})
		return
	}
	beams := filteredBeams(grids, s.opts)
	thr := s.th.CorrelationMagnitude
	flags, err := CorrelationFlags(s.set, beams, thr)
	if err != nil {
		s.skip(CheckCorrelation, err)
		return
	}
	t := s.add(CheckCorrelation, thr, flags)
	if low, err := BeamMin(beams); err == nil {
		s.profile(t, low, func(v float64) bool { return v < thr })
	}
}

func (s *screener) errorVelocity() {
	g, ok := s.rec.Grid(VarECur)
	if !ok {
		s.skip(CheckErrorVelocity, &MissingVariableError{Name: VarECur})
		return
	}
	erv := g.Filtered(s.opts.priorFlags())
	thr := s.th.ErrorVelocity
	flags, mean := ErrorVelocityFlags(s.set, erv, thr)
	t := s.add(CheckErrorVelocity, thr, flags)
	t.Centre = mean
	s.profile(t, erv, func(v float64) bool { return math.Abs(v-mean) > thr })
}

func (s *screener) horizontalVelocity() {
	u, okU := s.rec.Grid(VarUCur)
	v, okV := s.rec.Grid(VarVCur)
	if !okU || !okV {
		name := VarUCur
		if okU {
			name = VarVCur
		}
		s.skip(CheckHorizontalVelocity, &MissingVariableError{Name: name})
		return
	}
	prior := s.opts.priorFlags()
	speed, err := HorizontalSpeed(u.Filtered(prior), v.Filtered(prior))
	if err != nil {
		s.skip(CheckHorizontalVelocity, err)
		return
	}
	thr := s.th.HorizontalVelocity
	t := s.add(CheckHorizontalVelocity, thr, ExceedsFlags(s.set, speed, thr))
	s.profile(t, speed, above(thr))
}

func (s *screener) verticalVelocity() {
	w, ok := s.rec.Grid(VarWCur)
	if !ok {
		s.skip(CheckVerticalVelocity, &MissingVariableError{Name: VarWCur})
		return
	}
	abs := AbsDense(w.Filtered(s.opts.priorFlags()))
	thr := s.th.VerticalVelocity
	t := s.add(CheckVerticalVelocity, thr, ExceedsFlags(s.set, abs, thr))
	s.profile(t, abs, above(thr))
}

func (s *screener) tilt() {
	roll, okR := s.rec.Series(VarRoll)
	pitch, okP := s.rec.Series(VarPitch)
	if !okR || !okP {
		name := VarRoll
		if okR {
			name = VarPitch
		}
		s.skip(CheckTilt, &MissingVariableError{Name: name})
		return
	}
	prior := s.opts.priorFlags()
	tilt, err := TiltSeries(roll.Filtered(prior), pitch.Filtered(prior))
	if err != nil {
		s.skip(CheckTilt, err)
		return
	}
	s.add(CheckTilt, s.th.Tilt, TiltFlags(s.set, tilt, s.res.Bins, s.th.Tilt))
}

func (s *screener) sideLobe() error {
	if !(s.rec.Meta.BeamAngle > 0) {
		s.skip(CheckSideLobe, &MissingVariableError{Name: "beam_angle"})
		return nil
	}
	sl, err := SideLobeFlags(s.set, s.rec, s.res.Geometry, s.th.SideLobeFraction)
	if err != nil {
		return err
	}
	s.add(CheckSideLobe, s.th.SideLobeFraction, sl.Flags)
	s.res.SideLobeBoundary = sl.Boundary
	return nil
}
