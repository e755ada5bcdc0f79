// Package store persists run results in a local SQLite database so score
// history survives across invocations.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/machina/vm"

	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("machina.store")

// ErrNoRuns indicates no recorded run matches the query.
var ErrNoRuns = errors.New("no recorded runs")

// Run is one recorded, successful run of a solution against a problem.
type Run struct {
	ID         string
	Problem    string
	SourceHash string
	Size       int
	StepsMin   int
	StepsMax   int
	StepsAvg   float64
	CreatedAt  time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: setting busy timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		problem     TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		size        INTEGER NOT NULL,
		steps_min   INTEGER NOT NULL,
		steps_max   INTEGER NOT NULL,
		steps_avg   REAL NOT NULL,
		created_at  INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores one successful run and returns its generated ID.
func (s *Store) RecordRun(problemName, sourceHash string, score vm.Score) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, problem, source_hash, size, steps_min, steps_max, steps_avg, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, problemName, sourceHash,
		score.Size, score.StepsMin, score.StepsMax, score.StepsAvg,
		time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("store: recording run: %w", err)
	}
	log.Debugf("recorded run %s for problem %s", id, problemName)
	return id, nil
}

// History returns every recorded run for a problem, newest first.
func (s *Store) History(problemName string) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, problem, source_hash, size, steps_min, steps_max, steps_avg, created_at
		 FROM runs WHERE problem = ? ORDER BY created_at DESC, id`,
		problemName,
	)
	if err != nil {
		return nil, fmt.Errorf("store: querying history: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Best returns the best recorded run for a problem: smallest program,
// ties broken by average steps. Returns ErrNoRuns when nothing was
// recorded.
func (s *Store) Best(problemName string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, problem, source_hash, size, steps_min, steps_max, steps_avg, created_at
		 FROM runs WHERE problem = ? ORDER BY size, steps_avg, created_at LIMIT 1`,
		problemName,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var createdAt int64
	if err := row.Scan(&r.ID, &r.Problem, &r.SourceHash, &r.Size,
		&r.StepsMin, &r.StepsMax, &r.StepsAvg, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, sql.ErrNoRows
		}
		return Run{}, fmt.Errorf("store: scanning run: %w", err)
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	return r, nil
}
