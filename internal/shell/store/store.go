package store

import (
	"context"

	"github.com/artpar/panelship/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for panelship entities.
type Store interface {
	// Server operations. Credentials are sealed on write and opened on read
	// when the store has an encryption key.
	CreateServer(ctx context.Context, server *domain.RemoteHost) error
	GetServer(ctx context.Context, id int64) (*domain.RemoteHost, error)
	UpdateServer(ctx context.Context, server *domain.RemoteHost) error
	DeleteServer(ctx context.Context, id int64) error
	ListServers(ctx context.Context) ([]domain.RemoteHost, error)

	// Project operations, keyed by absolute path
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, path string) (*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, path string) error
	ListProjects(ctx context.Context) ([]domain.Project, error)

	// Notification operations
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, opts ListOptions) ([]domain.Notification, error)
	ClearNotifications(ctx context.Context) (int64, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination and filtering options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithEncryptionKey seals server credentials with key (32 bytes, AES-256).
func WithEncryptionKey(key []byte) Option {
	return func(s *SQLiteStore) {
		s.key = key
	}
}
