package adcp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/adcpqc/internal/qcflag"
)

func TestNewRecord_Validation(t *testing.T) {
	_, err := NewRecord(Metadata{}, nil, DimHeightAboveSensor, []float64{1})
	assert.ErrorIs(t, err, ErrNoPings)

	_, err = NewRecord(Metadata{}, pingTimes(1), DimHeightAboveSensor, nil)
	assert.ErrorIs(t, err, ErrNoBins)

	_, err = NewRecord(Metadata{}, pingTimes(1), "RANGE", []float64{1})
	assert.Error(t, err)
}

func TestRecord_ShapeChecks(t *testing.T) {
	rec := newBareRecord(t, 2, 3, true)

	assert.ErrorIs(t, rec.AddSeries(VarDepth, []float64{1}, nil), ErrShapeMismatch)
	assert.ErrorIs(t, rec.AddSeries(VarDepth, []float64{1, 2}, []qcflag.Code{1}), ErrShapeMismatch)
	assert.ErrorIs(t, rec.AddGrid(VarUCur, fill(3, 2, 0), nil), ErrShapeMismatch)
	assert.ErrorIs(t, rec.AddGrid(VarUCur, fill(2, 3, 0), qcflag.NewMatrix(2, 2, 1)), ErrShapeMismatch)
	assert.Error(t, rec.AddGrid(VarUCur, nil, nil))
	assert.Error(t, rec.SetBeam(EchoAmplitude, 4, fill(2, 3, 0), nil))
	assert.ErrorIs(t, rec.SetBeam(EchoAmplitude, 0, fill(1, 3, 0), nil), ErrShapeMismatch)
}

func TestRecord_Lookup(t *testing.T) {
	rec := newFullRecord(t, 2, 3)

	_, ok := rec.Series(VarDepth)
	assert.True(t, ok)
	_, ok = rec.Series(VarPresRel)
	assert.False(t, ok)
	_, ok = rec.Grid(VarECur)
	assert.True(t, ok)
	_, ok = rec.Grid("CSPD")
	assert.False(t, ok)

	_, ok = rec.Beams(CorrelationMagnitude)
	assert.True(t, ok)

	partial := newBareRecord(t, 2, 3, true)
	require.NoError(t, partial.SetBeam(CorrelationMagnitude, 0, fill(2, 3, 1), nil))
	_, ok = partial.Beams(CorrelationMagnitude)
	assert.False(t, ok)
}

func TestBeamKind_VarName(t *testing.T) {
	assert.Equal(t, "ABSIC1", EchoAmplitude.VarName(0))
	assert.Equal(t, "CMAG4", CorrelationMagnitude.VarName(3))
}

func TestMetadata_InstrumentAndSiteDepth(t *testing.T) {
	m := Metadata{InstrumentMake: "Nortek", InstrumentModel: "Signature500", InstrumentSerial: "101"}
	assert.Equal(t, "Nortek Signature500 #101", m.Instrument())
	assert.Equal(t, "unknown instrument", Metadata{}.Instrument())

	_, ok := m.SiteDepth()
	assert.False(t, ok)
	m.SiteDepthAtDeployment = ptr(80)
	d, ok := m.SiteDepth()
	assert.True(t, ok)
	assert.Equal(t, 80.0, d)
	m.SiteNominalDepth = ptr(75)
	d, _ = m.SiteDepth()
	assert.Equal(t, 75.0, d)
}

func TestFiltered_MasksBadAndMissing(t *testing.T) {
	set := imos()
	s := &Series{Data: []float64{1, 2, 3, 4}, Flags: []qcflag.Code{1, 3, 4, 9}}
	got := s.Filtered(set)
	assert.Equal(t, 1.0, got[0])
	for _, v := range got[1:] {
		assert.True(t, math.IsNaN(v))
	}
	// original untouched
	assert.Equal(t, []float64{1, 2, 3, 4}, s.Data)
	assert.Equal(t, s.Data, s.Filtered(nil))

	flags := qcflag.NewMatrix(1, 2, 2)
	flags.Set(0, 1, 4)
	g := &Grid{Data: mat.NewDense(1, 2, []float64{5, 6}), Flags: flags}
	gd := g.Filtered(set)
	assert.Equal(t, 5.0, gd.At(0, 0))
	assert.True(t, math.IsNaN(gd.At(0, 1)))
	assert.Equal(t, 6.0, g.Data.At(0, 1))
}
