package adcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/adcpqc/internal/testutil"
)

type modelThresholds map[string]Thresholds

func (m modelThresholds) Thresholds(meta Metadata) Thresholds {
	if th, ok := m[meta.InstrumentModel]; ok {
		return th
	}
	return DefaultThresholds()
}

func batchRecords(t *testing.T) []*Record {
	good := newFullRecord(t, 2, 3)

	broken := newBareRecord(t, 2, 3, true)
	broken.Meta.InstrumentSerial = "no-depth"

	other := newFullRecord(t, 2, 3)
	other.Meta.InstrumentModel = "Signature500"

	return []*Record{good, broken, other}
}

func TestScreenBatch_Sequential(t *testing.T) {
	strict := DefaultThresholds()
	strict.CorrelationMagnitude = 190
	resolver := modelThresholds{"Signature500": strict}

	out := ScreenBatch(context.Background(), batchRecords(t), resolver, DefaultOptions(), 1)
	require.Len(t, out, 3)

	for i, o := range out {
		assert.Equal(t, i, o.Index)
	}
	require.NoError(t, out[0].Err)
	assert.Equal(t, 64.0, out[0].Result.Thresholds.CorrelationMagnitude)

	assert.ErrorIs(t, out[1].Err, ErrMissingDepth)
	assert.Nil(t, out[1].Result)

	require.NoError(t, out[2].Err)
	assert.Equal(t, 190.0, out[2].Result.Thresholds.CorrelationMagnitude)
	assert.Equal(t, 6, out[2].Result.Test(CheckCorrelation).Flags.Count(4))
}

func TestScreenBatch_ParallelMatchesSequential(t *testing.T) {
	recs := batchRecords(t)
	resolver := StaticThresholds(DefaultThresholds())

	seq := ScreenBatch(context.Background(), recs, resolver, DefaultOptions(), 1)
	par := ScreenBatch(context.Background(), recs, resolver, DefaultOptions(), 4)
	require.Len(t, par, len(seq))
	for i := range seq {
		assert.Equal(t, seq[i].Err, par[i].Err)
		if seq[i].Result != nil {
			assert.Equal(t, seq[i].Result.Combined, par[i].Result.Combined)
		}
	}
}

func TestScreenBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := ScreenBatch(ctx, batchRecords(t), StaticThresholds(DefaultThresholds()), DefaultOptions(), 0)
	require.Len(t, out, 3)
	for _, o := range out {
		assert.ErrorIs(t, o.Err, context.Canceled)
		assert.Nil(t, o.Result)
	}
}

type panicThresholds struct{ model string }

func (p panicThresholds) Thresholds(meta Metadata) Thresholds {
	if meta.InstrumentModel == p.model {
		panic("no thresholds for " + p.model)
	}
	return DefaultThresholds()
}

func TestScreenBatch_FailureDoesNotAffectSiblings(t *testing.T) {
	testutil.MuteLogs(t)

	alone, err := Screen(newFullRecord(t, 2, 3), DefaultThresholds(), DefaultOptions())
	require.NoError(t, err)

	// NetCDF float fill value left unflagged in DEPTH
	outlier := newFullRecord(t, 2, 3)
	depth, _ := outlier.Series(VarDepth)
	depth.Data[1] = 9.96921e36

	crashing := newFullRecord(t, 2, 3)
	crashing.Meta.InstrumentModel = "Broken"

	recs := []*Record{newFullRecord(t, 2, 3), outlier, crashing, newFullRecord(t, 2, 3)}
	out := ScreenBatch(context.Background(), recs, panicThresholds{model: "Broken"}, DefaultOptions(), 2)
	require.Len(t, out, 4)

	require.NoError(t, out[1].Err)
	require.NotNil(t, out[1].Result)

	require.Error(t, out[2].Err)
	assert.Contains(t, out[2].Err.Error(), "no thresholds for Broken")
	assert.Nil(t, out[2].Result)

	for _, i := range []int{0, 3} {
		require.NoError(t, out[i].Err, "record %d", i)
		assert.Equal(t, alone.Combined, out[i].Result.Combined, "record %d", i)
		assert.Equal(t, alone.Test(CheckEchoRange).Profile, out[i].Result.Test(CheckEchoRange).Profile, "record %d", i)
	}
}
