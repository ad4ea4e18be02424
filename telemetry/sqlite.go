package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Fixed width so that text order is time order
const startedAtLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNoCheckpoint is returned when a run has no saved best genotype.
var ErrNoCheckpoint = errors.New("no checkpoint")

// SQLiteStore is a Listener that keeps runs, progress and checkpoints in a
// SQLite database. Several runs may share one database file.
type SQLiteStore struct {
	path  string
	runID string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore creates a store for a new run. An empty runID gets a fresh UUID.
func NewSQLiteStore(path, runID string) *SQLiteStore {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &SQLiteStore{path: path, runID: runID}
}

// RunID returns the run this store records.
func (s *SQLiteStore) RunID() string { return s.runID }

// Open opens the database and creates the schema without registering a run.
// Use it to read checkpoints back.
func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

// Init opens the database and registers the run with its effective configuration.
func (s *SQLiteStore) Init(ctx context.Context, configYAML []byte) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, config)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			config = excluded.config
	`, s.runID, time.Now().UTC().Format(startedAtLayout), string(configYAML))
	if err != nil {
		return fmt.Errorf("register run %s: %w", s.runID, err)
	}
	return nil
}

// Listen stores one progress row.
func (s *SQLiteStore) Listen(ctx context.Context, p Progress) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO progress (run_id, iteration, elapsed_sec, evaluations, best_fitness,
			gen_best, gen_mean, gen_std, gen_p10, gen_p50, gen_p90)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, iteration) DO UPDATE SET
			elapsed_sec = excluded.elapsed_sec,
			evaluations = excluded.evaluations,
			best_fitness = excluded.best_fitness,
			gen_best = excluded.gen_best,
			gen_mean = excluded.gen_mean,
			gen_std = excluded.gen_std,
			gen_p10 = excluded.gen_p10,
			gen_p50 = excluded.gen_p50,
			gen_p90 = excluded.gen_p90
	`, s.runID, p.Iteration, p.ElapsedSec, p.Evaluations, p.BestFitness,
		p.GenBest, p.GenMean, p.GenStd, p.GenP10, p.GenP50, p.GenP90)
	return err
}

// SaveBest replaces the run's checkpoint.
func (s *SQLiteStore) SaveBest(ctx context.Context, snap *Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	snap.Version = SnapshotVersion
	snap.RunID = s.runID
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO best (run_id, iteration, fitness, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			iteration = excluded.iteration,
			fitness = excluded.fitness,
			payload = excluded.payload
	`, s.runID, snap.Iteration, snap.Fitness, payload)
	return err
}

// LoadBest returns the checkpoint of runID, or of the most recently started run
// when runID is empty.
func (s *SQLiteStore) LoadBest(ctx context.Context, runID string) (*Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	if runID == "" {
		err = db.QueryRowContext(ctx, `
			SELECT b.payload FROM best b JOIN runs r ON r.id = b.run_id
			ORDER BY r.started_at DESC, r.rowid DESC LIMIT 1
		`).Scan(&payload)
	} else {
		err = db.QueryRowContext(ctx, `SELECT payload FROM best WHERE run_id = ?`, runID).Scan(&payload)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %q: %w", runID, ErrNoCheckpoint)
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &snap, nil
}

// Progress returns the stored progress rows of runID in iteration order.
func (s *SQLiteStore) Progress(ctx context.Context, runID string) ([]Progress, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT iteration, elapsed_sec, evaluations, best_fitness,
			gen_best, gen_mean, gen_std, gen_p10, gen_p50, gen_p90
		FROM progress WHERE run_id = ? ORDER BY iteration
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.Iteration, &p.ElapsedSec, &p.Evaluations, &p.BestFitness,
			&p.GenBest, &p.GenMean, &p.GenStd, &p.GenP10, &p.GenP50, &p.GenP90); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			config TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS progress (
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			elapsed_sec REAL NOT NULL,
			evaluations INTEGER NOT NULL,
			best_fitness REAL NOT NULL,
			gen_best REAL NOT NULL,
			gen_mean REAL NOT NULL,
			gen_std REAL NOT NULL,
			gen_p10 REAL NOT NULL,
			gen_p50 REAL NOT NULL,
			gen_p90 REAL NOT NULL,
			PRIMARY KEY (run_id, iteration)
		);
		CREATE TABLE IF NOT EXISTS best (
			run_id TEXT PRIMARY KEY,
			iteration INTEGER NOT NULL,
			fitness REAL NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}
