// Package store keeps a ledger of QC runs in SQLite: one row per screened
// instrument, a summary per test and the depth-band statistics. Flags
// themselves are not persisted.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/adcpqc/internal/adcp"
	"github.com/banshee-data/adcpqc/internal/qcflag"
	"github.com/banshee-data/adcpqc/internal/timeutil"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("qc run not found")

// Store is a QC run ledger.
type Store struct {
	*sql.DB
	clock timeutil.Clock
}

// Run is one screened instrument.
type Run struct {
	ID          string
	Instrument  string
	Make        string
	Model       string
	Serial      string
	Upward      bool
	DepthSource string
	FlagSetID   int
	Thresholds  adcp.Thresholds
	Pings       int
	Bins        int
	CreatedAt   time.Time
	// Tests is filled by GetRun only.
	Tests []TestSummary
}

// TestSummary counts the flags a test produced.
type TestSummary struct {
	Test      adcp.TestName
	Threshold float64
	// Flagged counts cells flagged probably bad or worse.
	Flagged int
	Missing int
	Total   int
	Skipped bool
	Reason  string
	// Centre is set for the error velocity test.
	Centre *float64
}

// Open opens (or creates) the ledger at path and applies the connection
// PRAGMAs. Call MigrateUp before use.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an injected clock for run timestamps.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db, clock: clock}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// InsertRun records a screening result and returns the new run id.
func (s *Store) InsertRun(ctx context.Context, res *adcp.Result) (string, error) {
	set, err := qcflag.Lookup(res.FlagSetID)
	if err != nil {
		return "", err
	}
	thresholds, err := json.Marshal(res.Thresholds)
	if err != nil {
		return "", fmt.Errorf("failed to encode thresholds: %w", err)
	}

	var upward bool
	var depthSource string
	if res.Geometry != nil {
		upward = res.Geometry.Upward
		depthSource = res.Geometry.DepthSource
	}

	id := uuid.NewString()
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qc_runs (run_id, instrument, make, model, serial, upward, depth_source,
			flag_set, thresholds_json, pings, bins, created_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.Meta.Instrument(), res.Meta.InstrumentMake, res.Meta.InstrumentModel,
		res.Meta.InstrumentSerial, upward, depthSource, res.FlagSetID, string(thresholds),
		res.Pings, res.Bins, s.clock.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, t := range res.Tests {
		flagged, missing := 0, 0
		for code, n := range t.Flags.Counts() {
			switch {
			case code == set.Missing():
				missing += n
			case set.IsBad(code):
				flagged += n
			}
		}
		var centre sql.NullFloat64
		if t.Name == adcp.CheckErrorVelocity && !math.IsNaN(t.Centre) {
			centre = sql.NullFloat64{Float64: t.Centre, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO qc_test_summaries (run_id, test, threshold, flagged, missing, total, skipped, reason, centre)
			VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)`,
			id, string(t.Name), t.Threshold, flagged, missing, t.Flags.Len(), centre)
		if err != nil {
			return "", fmt.Errorf("failed to insert %s summary: %w", t.Name, err)
		}
		if err := insertBands(ctx, tx, id, t); err != nil {
			return "", err
		}
	}

	for _, sk := range res.Skipped {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO qc_test_summaries (run_id, test, skipped, reason)
			VALUES (?, ?, 1, ?)`,
			id, string(sk.Name), sk.Reason)
		if err != nil {
			return "", fmt.Errorf("failed to insert skipped %s: %w", sk.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func insertBands(ctx context.Context, tx *sql.Tx, runID string, t *adcp.TestResult) error {
	if t.Profile == nil {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO qc_band_stats (run_id, test, band_index, top, bottom, count, mean, std, min, max, exceed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, b := range t.Profile.Bands {
		if _, err := stmt.ExecContext(ctx, runID, string(t.Name), i, b.Top, b.Bottom, b.Count,
			b.Mean, b.Std, b.Min, b.Max, b.Exceed); err != nil {
			return fmt.Errorf("failed to insert %s band %d: %w", t.Name, i, err)
		}
	}
	return nil
}

const runColumns = `run_id, instrument, make, model, serial, upward, depth_source,
	flag_set, thresholds_json, pings, bins, created_unix_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var thresholds string
	var created int64
	if err := row.Scan(&r.ID, &r.Instrument, &r.Make, &r.Model, &r.Serial, &r.Upward,
		&r.DepthSource, &r.FlagSetID, &thresholds, &r.Pings, &r.Bins, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(thresholds), &r.Thresholds); err != nil {
		return nil, fmt.Errorf("run %s: failed to decode thresholds: %w", r.ID, err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return &r, nil
}

// GetRun returns a run with its test summaries.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.QueryRowContext(ctx, `SELECT `+runColumns+` FROM qc_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.QueryContext(ctx, `
		SELECT test, threshold, flagged, missing, total, skipped, reason, centre
		FROM qc_test_summaries WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TestSummary
		var name string
		var threshold, centre sql.NullFloat64
		if err := rows.Scan(&name, &threshold, &ts.Flagged, &ts.Missing, &ts.Total,
			&ts.Skipped, &ts.Reason, &centre); err != nil {
			return nil, err
		}
		ts.Test = adcp.TestName(name)
		ts.Threshold = threshold.Float64
		if centre.Valid {
			v := centre.Float64
			ts.Centre = &v
		}
		r.Tests = append(r.Tests, ts)
	}
	return r, rows.Err()
}

// ListRuns returns runs newest first. An empty instrument lists every run.
func (s *Store) ListRuns(ctx context.Context, instrument string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM qc_runs`
	var args []any
	if instrument != "" {
		query += ` WHERE instrument = ?`
		args = append(args, instrument)
	}
	query += ` ORDER BY created_unix_ns DESC, run_id`

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// BandStats returns the depth-band statistics stored for one test of a run,
// shallowest band first.
func (s *Store) BandStats(ctx context.Context, runID string, test adcp.TestName) ([]adcp.Band, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT top, bottom, count, mean, std, min, max, exceed
		FROM qc_band_stats WHERE run_id = ? AND test = ? ORDER BY band_index`,
		runID, string(test))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bands []adcp.Band
	for rows.Next() {
		var b adcp.Band
		var mean, std, min, max sql.NullFloat64
		if err := rows.Scan(&b.Top, &b.Bottom, &b.Count, &mean, &std, &min, &max, &b.Exceed); err != nil {
			return nil, err
		}
		b.Mean, b.Std, b.Min, b.Max = nullNaN(mean), nullNaN(std), nullNaN(min), nullNaN(max)
		bands = append(bands, b)
	}
	return bands, rows.Err()
}

// nullNaN maps SQL NULL back to NaN; SQLite stores NaN as NULL.
func nullNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
