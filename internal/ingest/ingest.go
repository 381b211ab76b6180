// Package ingest loads instrument records from JSON sample-data documents.
//
// A document looks like
//
//	{
//	  "meta": {"instrument_make": "Teledyne RDI", "beam_angle": 20, ...},
//	  "dimensions": {"TIME": ["2024-03-01T00:00:00Z", ...], "HEIGHT_ABOVE_SENSOR": [2.5, 4.5, ...]},
//	  "variables": {
//	    "DEPTH": {"data": [20.1, ...], "flags": [1, ...]},
//	    "UCUR":  {"data": [[0.1, null, ...], ...]}
//	  }
//	}
//
// null values decode as NaN. One-dimensional variables become per-ping
// series, two-dimensional ones ping × bin grids, and ABSIC1..4 / CMAG1..4
// fill the beam arrays.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/adcpqc/internal/adcp"
	"github.com/banshee-data/adcpqc/internal/fsutil"
	"github.com/banshee-data/adcpqc/internal/qcflag"
)

type document struct {
	Meta       adcp.Metadata              `json:"meta"`
	Dimensions map[string]json.RawMessage `json:"dimensions"`
	Variables  map[string]variable        `json:"variables"`
}

type variable struct {
	Data  json.RawMessage `json:"data"`
	Flags json.RawMessage `json:"flags,omitempty"`
}

// value is a float64 that decodes JSON null as NaN.
type value float64

func (v *value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = value(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*v = value(f)
	return nil
}

// LoadRecord reads and validates one record.
func LoadRecord(fs fsutil.FileSystem, path string) (*adcp.Record, error) {
	data, err := fs.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// LoadRecords loads each path in order, stopping at the first error.
func LoadRecords(fs fsutil.FileSystem, paths []string) ([]*adcp.Record, error) {
	records := make([]*adcp.Record, 0, len(paths))
	for _, p := range paths {
		rec, err := LoadRecord(fs, p)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExpandPaths replaces every directory argument by the .json files it
// contains.
func ExpandPaths(fs fsutil.FileSystem, args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := fs.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat input: %w", err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		matches, err := fs.Glob(filepath.Join(arg, "*.json"))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

// Decode parses a sample-data document.
func Decode(data []byte) (*adcp.Record, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse record JSON: %w", err)
	}

	rawTimes, ok := doc.Dimensions[adcp.DimTime]
	if !ok {
		return nil, &adcp.MissingVariableError{Name: adcp.DimTime}
	}
	var stamps []string
	if err := json.Unmarshal(rawTimes, &stamps); err != nil {
		return nil, fmt.Errorf("%s: %w", adcp.DimTime, err)
	}
	times := make([]time.Time, len(stamps))
	for i, s := range stamps {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", adcp.DimTime, i, err)
		}
		times[i] = t
	}

	binDim := adcp.DimHeightAboveSensor
	rawBins, ok := doc.Dimensions[binDim]
	if !ok {
		binDim = adcp.DimDistAlongBeams
		if rawBins, ok = doc.Dimensions[binDim]; !ok {
			return nil, &adcp.MissingVariableError{Name: adcp.DimHeightAboveSensor}
		}
	}
	var bins []float64
	if err := json.Unmarshal(rawBins, &bins); err != nil {
		return nil, fmt.Errorf("%s: %w", binDim, err)
	}

	rec, err := adcp.NewRecord(doc.Meta, times, binDim, bins)
	if err != nil {
		return nil, err
	}

	beamVars := beamNames()
	for name, v := range doc.Variables {
		if isMatrix(v.Data) {
			grid, flags, err := decodeGrid(name, v)
			if err != nil {
				return nil, err
			}
			if b, ok := beamVars[name]; ok {
				err = rec.SetBeam(b.kind, b.index, grid, flags)
			} else {
				err = rec.AddGrid(name, grid, flags)
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		series, flags, err := decodeSeries(name, v)
		if err != nil {
			return nil, err
		}
		if err := rec.AddSeries(name, series, flags); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

type beamRef struct {
	kind  adcp.BeamKind
	index int
}

func beamNames() map[string]beamRef {
	m := make(map[string]beamRef, 2*adcp.NumBeams)
	for _, k := range []adcp.BeamKind{adcp.EchoAmplitude, adcp.CorrelationMagnitude} {
		for b := 0; b < adcp.NumBeams; b++ {
			m[k.VarName(b)] = beamRef{kind: k, index: b}
		}
	}
	return m
}

// isMatrix reports whether raw is an array of arrays.
func isMatrix(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	if len(b) == 0 || b[0] != '[' {
		return false
	}
	b = bytes.TrimSpace(b[1:])
	return len(b) > 0 && b[0] == '['
}

func decodeSeries(name string, v variable) ([]float64, []qcflag.Code, error) {
	var vals []value
	if err := json.Unmarshal(v.Data, &vals); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	data := make([]float64, len(vals))
	for i, x := range vals {
		data[i] = float64(x)
	}
	if len(v.Flags) == 0 {
		return data, nil, nil
	}
	var flags []qcflag.Code
	if err := json.Unmarshal(v.Flags, &flags); err != nil {
		return nil, nil, fmt.Errorf("%s flags: %w", name, err)
	}
	return data, flags, nil
}

func decodeGrid(name string, v variable) (*mat.Dense, *qcflag.Matrix, error) {
	var rows [][]value
	if err := json.Unmarshal(v.Data, &rows); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil, fmt.Errorf("%s: empty grid: %w", name, adcp.ErrShapeMismatch)
	}
	cols := len(rows[0])
	grid := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("%s: row %d has %d values, want %d: %w", name, i, len(row), cols, adcp.ErrShapeMismatch)
		}
		for j, x := range row {
			grid.Set(i, j, float64(x))
		}
	}

	if len(v.Flags) == 0 {
		return grid, nil, nil
	}
	var fr [][]qcflag.Code
	if err := json.Unmarshal(v.Flags, &fr); err != nil {
		return nil, nil, fmt.Errorf("%s flags: %w", name, err)
	}
	if len(fr) != len(rows) {
		return nil, nil, fmt.Errorf("%s flags: %d rows, data has %d: %w", name, len(fr), len(rows), adcp.ErrShapeMismatch)
	}
	flags := qcflag.NewMatrix(len(rows), cols, 0)
	for i, row := range fr {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("%s flags: row %d has %d values, want %d: %w", name, i, len(row), cols, adcp.ErrShapeMismatch)
		}
		for j, c := range row {
			flags.Set(i, j, c)
		}
	}
	return grid, flags, nil
}
