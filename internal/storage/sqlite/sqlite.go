// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/cashflow/internal/models"
	"github.com/mmynk/cashflow/internal/storage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != MemoryPath {
		// Create parent directory if it doesn't exist
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps pragmas (and in-memory data) consistent and
	// serialises writers.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateObligations persists a batch of obligations in one transaction.
func (s *SQLiteStore) CreateObligations(ctx context.Context, obligations []*models.Obligation) error {
	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, o := range obligations {
		// Generate IDs if not set
		if o.ID == "" {
			o.ID = uuid.New().String()
		}
		if o.RecordedAt == 0 {
			o.RecordedAt = now
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO obligations
			 (id, group_id, debtor, creditor, principal, due_date, interest_rate, penalty, penalty_kind, recorded_at, created_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, nullString(o.GroupID), o.Debtor, o.Creditor, o.Principal, dateString(o.DueDate),
			o.InterestRate, o.Penalty, o.PenaltyKind, o.RecordedAt, o.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert obligation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const obligationColumns = `id, group_id, debtor, creditor, principal, due_date, interest_rate, penalty, penalty_kind, recorded_at, created_by`

// GetObligation retrieves an obligation by ID.
func (s *SQLiteStore) GetObligation(ctx context.Context, id string) (*models.Obligation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+obligationColumns+" FROM obligations WHERE id = ?",
		id,
	)
	o, err := scanObligation(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("obligation %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}
	return o, nil
}

// ListObligations retrieves the obligations of a group, or all of them when
// groupID is empty, in the order they were recorded.
func (s *SQLiteStore) ListObligations(ctx context.Context, groupID string) ([]*models.Obligation, error) {
	query := "SELECT " + obligationColumns + " FROM obligations"
	var args []any
	if groupID != "" {
		query += " WHERE group_id = ?"
		args = append(args, groupID)
	}
	query += " ORDER BY recorded_at, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list obligations: %w", err)
	}
	defer rows.Close()

	var obligations []*models.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		obligations = append(obligations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate obligations: %w", err)
	}

	return obligations, nil
}

// DeleteObligation removes an obligation by ID.
func (s *SQLiteStore) DeleteObligation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM obligations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete obligation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("obligation %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanObligation(row scanner) (*models.Obligation, error) {
	o := &models.Obligation{}
	var groupID, dueDate sql.NullString
	if err := row.Scan(&o.ID, &groupID, &o.Debtor, &o.Creditor, &o.Principal, &dueDate,
		&o.InterestRate, &o.Penalty, &o.PenaltyKind, &o.RecordedAt, &o.CreatedBy); err != nil {
		return nil, err
	}
	if groupID.Valid {
		o.GroupID = groupID.String
	}
	if dueDate.Valid {
		due, err := time.Parse(time.DateOnly, dueDate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid due date %q: %w", dueDate.String, err)
		}
		o.DueDate = &due
	}
	return o, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dateString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.DateOnly)
}
