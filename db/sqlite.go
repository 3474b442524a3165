package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrClosed = errors.New("database not initialized")

// Store keeps the training history in SQLite.
type Store struct {
	db *sql.DB
}

// TrainingLog is one evaluated model of a training run.
type TrainingLog struct {
	RunID      string    `json:"run_id"`
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	MacroF1    float64   `json:"macro_f1"`
	WeightedF1 float64   `json:"weighted_f1"`
	TrainSize  int       `json:"train_size"`
	TestSize   int       `json:"test_size"`
	TrainedAt  time.Time `json:"trained_at"`
}

// Open opens (creating if needed) the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)

	store := &Store{db: database}
	if err := store.createTables(); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS training_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            model_name VARCHAR(50) NOT NULL,
            accuracy REAL NOT NULL,
            macro_f1 REAL NOT NULL,
            weighted_f1 REAL NOT NULL,
            train_size INTEGER NOT NULL,
            test_size INTEGER NOT NULL,
            trained_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// RecordTraining stores the logs of one run in a single transaction.
func (s *Store) RecordTraining(ctx context.Context, logs []TrainingLog) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO training_log (
            run_id, model_name, accuracy, macro_f1, weighted_f1, train_size, test_size, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, l := range logs {
		if l.ModelName == "" {
			tx.Rollback()
			return errors.New("model name required")
		}
		_, err := stmt.ExecContext(ctx, l.RunID, l.ModelName, l.Accuracy, l.MacroF1, l.WeightedF1,
			l.TrainSize, l.TestSize, l.TrainedAt.UTC())
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// History returns up to limit logs, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, model_name, accuracy, macro_f1, weighted_f1, train_size, test_size, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var l TrainingLog
		if err := rows.Scan(&l.RunID, &l.ModelName, &l.Accuracy, &l.MacroF1, &l.WeightedF1,
			&l.TrainSize, &l.TestSize, &l.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
