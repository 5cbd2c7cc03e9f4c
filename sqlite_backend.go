package txwatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteBaselineStore keeps baselines in a SQLite table so they can be
// inspected and edited with standard SQLite tools.
//
//	CREATE TABLE baselines (
//	    transaction_type TEXT NOT NULL,
//	    status           TEXT NOT NULL,
//	    mean             REAL NOT NULL,
//	    stddev           REAL NOT NULL,
//	    updated_at       INTEGER NOT NULL,
//	    PRIMARY KEY (transaction_type, status)
//	);
type SQLiteBaselineStore struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

// OpenSQLiteBaselineStore opens or creates the database at path.
func OpenSQLiteBaselineStore(path string) (*SQLiteBaselineStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteBaselineStore{db: db, path: path, now: time.Now}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteBaselineStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS baselines (
			transaction_type TEXT NOT NULL,
			status TEXT NOT NULL,
			mean REAL NOT NULL,
			stddev REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (transaction_type, status)
		)`)
	return err
}

// Path returns the database file path.
func (s *SQLiteBaselineStore) Path() string {
	return s.path
}

// Load reads every row into an immutable BaselineStore. Rows with a
// negative or non-finite stddev are rejected.
func (s *SQLiteBaselineStore) Load(ctx context.Context) (*BaselineStore, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT transaction_type, status, mean, stddev FROM baselines`)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	entries := make(map[BaselineKey]Baseline)
	for rows.Next() {
		var key BaselineKey
		var b Baseline
		if err := rows.Scan(&key.TransactionType, &key.Status, &b.Mean, &b.Stddev); err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		entries[key] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate baselines: %w", err)
	}
	return NewBaselineStore(entries), nil
}

// Save upserts every entry of store in one transaction.
func (s *SQLiteBaselineStore) Save(ctx context.Context, store *BaselineStore) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO baselines (transaction_type, status, mean, stddev, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (transaction_type, status) DO UPDATE SET
			mean = excluded.mean,
			stddev = excluded.stddev,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	updated := s.now().Unix()
	entries := store.Entries()
	for _, key := range store.Keys() {
		b := entries[key]
		if _, err := stmt.ExecContext(ctx, key.TransactionType, key.Status, b.Mean, b.Stddev, updated); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", key.TransactionType, key.Status, err)
		}
	}
	return tx.Commit()
}

// Delete removes the baselines of one transaction type.
func (s *SQLiteBaselineStore) Delete(ctx context.Context, transactionType string) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM baselines WHERE transaction_type = ?`, transactionType)
	if err != nil {
		return 0, fmt.Errorf("delete baselines: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteBaselineStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sqlite baseline store is closed")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteBaselineStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
