// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/cashflow/internal/models"
)

// ErrNotFound is wrapped by every lookup that finds no record.
var ErrNotFound = errors.New("not found")

// ObligationStore persists recorded obligations. The settlement engine only
// ever reads snapshots returned by ListObligations.
type ObligationStore interface {
	// CreateObligations persists a batch atomically. IDs and RecordedAt are
	// filled in when empty.
	CreateObligations(ctx context.Context, obligations []*models.Obligation) error

	// GetObligation retrieves one obligation by ID.
	GetObligation(ctx context.Context, id string) (*models.Obligation, error)

	// ListObligations returns the obligations of a group, oldest first. An
	// empty groupID lists every obligation.
	ListObligations(ctx context.Context, groupID string) ([]*models.Obligation, error)

	// DeleteObligation removes an obligation by ID.
	DeleteObligation(ctx context.Context, id string) error
}

// GroupStore persists groups and their members.
type GroupStore interface {
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// AddGroupMembers adds members, ignoring those already present.
	AddGroupMembers(ctx context.Context, groupID string, members []string) error
}

// RunStore archives settlement runs.
type RunStore interface {
	CreateSettlementRun(ctx context.Context, run *models.SettlementRun) error

	// ListSettlementRuns returns runs for a group, newest first. An empty
	// groupID lists runs of the global ledger only.
	ListSettlementRuns(ctx context.Context, groupID string) ([]*models.SettlementRun, error)
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Store defines every storage operation the services need.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the service layer.
type Store interface {
	ObligationStore
	GroupStore
	RunStore
	UserStore

	// Close releases any resources held by the store.
	Close() error
}
