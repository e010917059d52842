package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"StockSentinel/internal/logger"
	"StockSentinel/internal/model"
)

// SQLiteRecorder persists runs and decisions to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *logger.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *logger.Logger) (*SQLiteRecorder, error) {
	if log == nil {
		log = logger.Nop()
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", logger.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			as_of                TEXT NOT NULL,
			generated_at         INTEGER NOT NULL,
			skipped              INTEGER NOT NULL,
			skip_reason          TEXT,
			signal_mode          TEXT,
			total                INTEGER,
			buy                  INTEGER,
			sell                 INTEGER,
			none                 INTEGER,
			insufficient_history INTEGER,
			data_unavailable     INTEGER,
			invalid_input        INTEGER,
			duration_ms          INTEGER,
			failures             TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_as_of ON runs(as_of)`,

		`CREATE TABLE IF NOT EXISTS advisory_decisions (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id         INTEGER NOT NULL,
			as_of          TEXT NOT NULL,
			position       INTEGER NOT NULL,
			instrument_id  TEXT NOT NULL,
			name           TEXT,
			action         TEXT NOT NULL,
			pe_ratio       REAL,
			valuation      TEXT,
			j              REAL,
			prev_j         REAL,
			volume_anomaly INTEGER NOT NULL,
			status         TEXT NOT NULL,
			reason         TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_day ON advisory_decisions(as_of, instrument_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_run ON advisory_decisions(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func nullable(v float64, ok bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RecordBatch stores the run summary and its decisions in one transaction.
// Re-running a day replaces that day's decisions.
func (r *SQLiteRecorder) RecordBatch(ctx context.Context, batch *model.AdvisoryBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	failures, err := json.Marshal(batch.Summary.Failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	asOf := model.DateKey(batch.AsOf)
	s := batch.Summary

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO runs
		(as_of, generated_at, skipped, skip_reason, signal_mode,
		 total, buy, sell, none, insufficient_history, data_unavailable, invalid_input,
		 duration_ms, failures)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		asOf, batch.GeneratedAt.Unix(), boolInt(batch.Skipped), batch.SkipReason, batch.SignalMode,
		s.Total, s.Buy, s.Sell, s.None, s.InsufficientHistory, s.DataUnavailable, s.InvalidInput,
		s.Duration.Milliseconds(), string(failures),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO advisory_decisions
		(run_id, as_of, position, instrument_id, name, action, pe_ratio, valuation,
		 j, prev_j, volume_anomaly, status, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(as_of, instrument_id) DO UPDATE SET
			run_id=excluded.run_id, position=excluded.position, name=excluded.name,
			action=excluded.action, pe_ratio=excluded.pe_ratio, valuation=excluded.valuation,
			j=excluded.j, prev_j=excluded.prev_j, volume_anomaly=excluded.volume_anomaly,
			status=excluded.status, reason=excluded.reason`)
	if err != nil {
		return fmt.Errorf("prepare decision: %w", err)
	}
	defer stmt.Close()

	for i, d := range batch.Decisions {
		if _, err := stmt.ExecContext(ctx,
			runID, asOf, i, d.InstrumentID, d.Name, string(d.Action),
			nullable(d.PERatio, d.PEAvailable), string(d.Valuation),
			nullable(d.J, d.JDefined), nullable(d.PrevJ, d.PrevJDefined),
			boolInt(d.VolumeAnomaly), string(d.Status), d.Reason,
		); err != nil {
			return fmt.Errorf("insert decision %s: %w", d.InstrumentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.log.Debug("batch recorded", logger.String("as_of", asOf), logger.Int("decisions", len(batch.Decisions)))
	return nil
}

func (r *SQLiteRecorder) LastBatch(ctx context.Context) (*model.AdvisoryBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		runID              int64
		asOf, mode, reason string
		generated, durMS   int64
		skipped            int
		failures           string
		b                  model.AdvisoryBatch
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, as_of, generated_at, skipped, COALESCE(skip_reason,''),
		COALESCE(signal_mode,''), total, buy, sell, none, insufficient_history, data_unavailable,
		invalid_input, duration_ms, COALESCE(failures,'null')
		FROM runs ORDER BY id DESC LIMIT 1`).Scan(
		&runID, &asOf, &generated, &skipped, &reason, &mode,
		&b.Summary.Total, &b.Summary.Buy, &b.Summary.Sell, &b.Summary.None,
		&b.Summary.InsufficientHistory, &b.Summary.DataUnavailable, &b.Summary.InvalidInput,
		&durMS, &failures,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last run: %w", err)
	}

	day, err := time.Parse("2006-01-02", asOf)
	if err != nil {
		return nil, fmt.Errorf("parse as_of %q: %w", asOf, err)
	}
	b.AsOf = day
	b.GeneratedAt = time.Unix(generated, 0)
	b.Skipped = skipped == 1
	b.SkipReason = reason
	b.SignalMode = mode
	b.Summary.Duration = time.Duration(durMS) * time.Millisecond
	if err := json.Unmarshal([]byte(failures), &b.Summary.Failures); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT instrument_id, COALESCE(name,''), action, pe_ratio,
		COALESCE(valuation,''), j, prev_j, volume_anomaly, status, COALESCE(reason,'')
		FROM advisory_decisions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d               model.AdvisoryDecision
			action, val, st string
			pe, j, prevJ    sql.NullFloat64
			anomaly         int
		)
		if err := rows.Scan(&d.InstrumentID, &d.Name, &action, &pe, &val, &j, &prevJ, &anomaly, &st, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Action = model.Action(action)
		d.Valuation = model.Valuation(val)
		d.Status = model.DecisionStatus(st)
		d.PERatio, d.PEAvailable = pe.Float64, pe.Valid
		d.J, d.JDefined = j.Float64, j.Valid
		d.PrevJ, d.PrevJDefined = prevJ.Float64, prevJ.Valid
		d.VolumeAnomaly = anomaly == 1
		b.Decisions = append(b.Decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return &b, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
