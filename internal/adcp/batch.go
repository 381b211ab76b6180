package adcp

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/adcpqc/internal/monitoring"
)

// ThresholdResolver picks the thresholds for an instrument.
type ThresholdResolver interface {
	Thresholds(meta Metadata) Thresholds
}

// Outcome is the screening result of one record in a batch.
type Outcome struct {
	Index  int
	Record *Record
	Result *Result
	Err    error
}

// ScreenBatch screens records independently. With workers <= 1 records are
// processed one at a time in order; otherwise up to workers run at once.
// A fatal error for one record is reported in its Outcome and does not stop
// the others. Records not started before ctx is cancelled get ctx.Err().
func ScreenBatch(ctx context.Context, records []*Record, resolver ThresholdResolver, opts Options, workers int) []Outcome {
	out := make([]Outcome, len(records))
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range records {
		out[i] = Outcome{Index: i, Record: rec}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			res, err := screenOne(rec, resolver, opts)
			if err != nil {
				monitoring.Logf("%s: %v", rec.Meta.Instrument(), err)
				out[i].Err = err
				return nil
			}
			out[i].Result = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// screenOne screens a single record, turning a panic into an error so the
// rest of the batch still completes.
func screenOne(rec *Record, resolver ThresholdResolver, opts Options) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("screening panicked: %v", r)
		}
	}()
	return Screen(rec, resolver.Thresholds(rec.Meta), opts)
}

// StaticThresholds resolves every instrument to the same thresholds.
type StaticThresholds Thresholds

func (s StaticThresholds) Thresholds(Metadata) Thresholds { return Thresholds(s) }
