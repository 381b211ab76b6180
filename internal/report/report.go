// Package report turns screening results into JSON documents for the
// plotting layer.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/adcpqc/internal/adcp"
	"github.com/banshee-data/adcpqc/internal/fsutil"
	"github.com/banshee-data/adcpqc/internal/qcflag"
	"github.com/banshee-data/adcpqc/internal/security"
	"github.com/banshee-data/adcpqc/internal/version"
)

// Report is the serialisable summary of one screened instrument.
type Report struct {
	Instrument   string          `json:"instrument"`
	Make         string          `json:"instrument_make"`
	Model        string          `json:"instrument_model"`
	Serial       string          `json:"instrument_serial_number"`
	Generator    string          `json:"generator"`
	Upward       bool            `json:"upward_looking"`
	DepthSource  string          `json:"depth_source"`
	BinSize      float64         `json:"bin_size"`
	Start        *time.Time      `json:"time_coverage_start,omitempty"`
	End          *time.Time      `json:"time_coverage_end,omitempty"`
	Pings        int             `json:"pings"`
	Bins         int             `json:"bins"`
	FlagSet      int             `json:"qc_set"`
	Thresholds   adcp.Thresholds `json:"thresholds"`
	Tests        []Test          `json:"tests"`
	Skipped      []adcp.Skipped  `json:"skipped,omitempty"`
	Combined     map[string]int  `json:"combined_counts"`
	Failed       bool            `json:"failed"`
	SideLobeEdge []*float64      `json:"side_lobe_boundary,omitempty"`
}

// Test is the summary of one test.
type Test struct {
	Name      adcp.TestName  `json:"name"`
	Threshold float64        `json:"threshold"`
	Counts    map[string]int `json:"counts"`
	Centre    *float64       `json:"centre,omitempty"`
	Bands     []Band         `json:"bands,omitempty"`
}

// Band mirrors adcp.Band with NaN statistics encoded as null.
type Band struct {
	Top    float64  `json:"top"`
	Bottom float64  `json:"bottom"`
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Std    *float64 `json:"std"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Exceed int      `json:"exceed"`
}

// Build summarises a result. Flag counts are keyed by flag name.
func Build(res *adcp.Result) (*Report, error) {
	set, err := qcflag.Lookup(res.FlagSetID)
	if err != nil {
		return nil, err
	}

	r := &Report{
		Instrument: res.Meta.Instrument(),
		Make:       res.Meta.InstrumentMake,
		Model:      res.Meta.InstrumentModel,
		Serial:     res.Meta.InstrumentSerial,
		Generator:  "adcpqc " + version.Version,
		Pings:      res.Pings,
		Bins:       res.Bins,
		FlagSet:    res.FlagSetID,
		Thresholds: res.Thresholds,
		Skipped:    res.Skipped,
	}
	if !res.Start.IsZero() {
		start, end := res.Start.UTC(), res.End.UTC()
		r.Start, r.End = &start, &end
	}
	if g := res.Geometry; g != nil {
		r.Upward = g.Upward
		r.DepthSource = g.DepthSource
		r.BinSize = g.BinSize
	}

	for _, t := range res.Tests {
		rt := Test{
			Name:      t.Name,
			Threshold: t.Threshold,
			Counts:    countsByName(set, t.Flags),
		}
		if t.Name == adcp.CheckErrorVelocity {
			rt.Centre = finite(t.Centre)
		}
		if t.Profile != nil {
			for _, b := range t.Profile.Bands {
				rt.Bands = append(rt.Bands, Band{
					Top:    b.Top,
					Bottom: b.Bottom,
					Count:  b.Count,
					Mean:   finite(b.Mean),
					Std:    finite(b.Std),
					Min:    finite(b.Min),
					Max:    finite(b.Max),
					Exceed: b.Exceed,
				})
			}
		}
		r.Tests = append(r.Tests, rt)
	}

	if res.Combined != nil {
		r.Combined = countsByName(set, res.Combined)
		for code := range res.Combined.Counts() {
			if set.IsBad(code) {
				r.Failed = true
				break
			}
		}
	}
	for _, v := range res.SideLobeBoundary {
		r.SideLobeEdge = append(r.SideLobeEdge, finite(v))
	}
	return r, nil
}

func countsByName(set *qcflag.Set, m *qcflag.Matrix) map[string]int {
	out := make(map[string]int)
	for code, n := range m.Counts() {
		name := set.Name(code)
		if name == "" {
			name = strconv.Itoa(int(code))
		}
		out[name] += n
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FileName returns <model>_<serial>_<start>_qc.json built from sanitised
// metadata. The first ping time tells apart deployments of the same
// instrument; it is left out when unknown.
func FileName(r *Report) string {
	serial := r.Serial
	if serial == "" {
		serial = "noserial"
	}
	name := security.SanitizeFilename(r.Model) + "_" + security.SanitizeFilename(serial)
	if r.Start != nil {
		name += "_" + r.Start.UTC().Format(fileTimeLayout)
	}
	return name + "_qc.json"
}

const fileTimeLayout = "20060102T150405Z"

// Write stores the report as indented JSON in dir and returns the path.
func Write(fs fsutil.FileSystem, dir string, r *Report) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	path := filepath.Join(dir, FileName(r))
	if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	if err := fs.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
