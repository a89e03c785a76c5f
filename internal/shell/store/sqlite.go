package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/panelship/internal/core/crypto"
	"github.com/artpar/panelship/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sqlx.DB
	key []byte
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string, opts ...Option) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Every connection to :memory: is a separate database.
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateServer(ctx context.Context, server *domain.RemoteHost) error {
	return createServer(ctx, s.db, s.key, server)
}

func (s *SQLiteStore) GetServer(ctx context.Context, id int64) (*domain.RemoteHost, error) {
	return getServer(ctx, s.db, s.key, id)
}

func (s *SQLiteStore) UpdateServer(ctx context.Context, server *domain.RemoteHost) error {
	return updateServer(ctx, s.db, s.key, server)
}

func (s *SQLiteStore) DeleteServer(ctx context.Context, id int64) error {
	return deleteServer(ctx, s.db, id)
}

func (s *SQLiteStore) ListServers(ctx context.Context) ([]domain.RemoteHost, error) {
	return listServers(ctx, s.db, s.key)
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	return createProject(ctx, s.db, project)
}

func (s *SQLiteStore) GetProject(ctx context.Context, path string) (*domain.Project, error) {
	return getProject(ctx, s.db, path)
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	return updateProject(ctx, s.db, project)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, path string) error {
	return deleteProject(ctx, s.db, path)
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return listProjects(ctx, s.db)
}

func (s *SQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return createNotification(ctx, s.db, n)
}

func (s *SQLiteStore) ListNotifications(ctx context.Context, opts ListOptions) ([]domain.Notification, error) {
	return listNotifications(ctx, s.db, opts)
}

func (s *SQLiteStore) ClearNotifications(ctx context.Context) (int64, error) {
	return clearNotifications(ctx, s.db)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx, key: s.key}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx  *sqlx.Tx
	key []byte
}

func (s *txSQLiteStore) CreateServer(ctx context.Context, server *domain.RemoteHost) error {
	return createServer(ctx, s.tx, s.key, server)
}

func (s *txSQLiteStore) GetServer(ctx context.Context, id int64) (*domain.RemoteHost, error) {
	return getServer(ctx, s.tx, s.key, id)
}

func (s *txSQLiteStore) UpdateServer(ctx context.Context, server *domain.RemoteHost) error {
	return updateServer(ctx, s.tx, s.key, server)
}

func (s *txSQLiteStore) DeleteServer(ctx context.Context, id int64) error {
	return deleteServer(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListServers(ctx context.Context) ([]domain.RemoteHost, error) {
	return listServers(ctx, s.tx, s.key)
}

func (s *txSQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	return createProject(ctx, s.tx, project)
}

func (s *txSQLiteStore) GetProject(ctx context.Context, path string) (*domain.Project, error) {
	return getProject(ctx, s.tx, path)
}

func (s *txSQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	return updateProject(ctx, s.tx, project)
}

func (s *txSQLiteStore) DeleteProject(ctx context.Context, path string) error {
	return deleteProject(ctx, s.tx, path)
}

func (s *txSQLiteStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return listProjects(ctx, s.tx)
}

func (s *txSQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return createNotification(ctx, s.tx, n)
}

func (s *txSQLiteStore) ListNotifications(ctx context.Context, opts ListOptions) ([]domain.Notification, error) {
	return listNotifications(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ClearNotifications(ctx context.Context) (int64, error) {
	return clearNotifications(ctx, s.tx)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	// No-op for transaction store
	return nil
}

// =============================================================================
// Server Operations
// =============================================================================

// serverRow represents a server row in the database.
type serverRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	Host       string `db:"host"`
	Port       int    `db:"port"`
	Credential string `db:"credential"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func createServer(ctx context.Context, exec executor, key []byte, server *domain.RemoteHost) error {
	if err := server.Validate(); err != nil {
		return NewStoreError("CreateServer", "server", "", err.Error(), err)
	}

	sealed, err := crypto.SealCredential(server.Credential, key)
	if err != nil {
		return NewStoreError("CreateServer", "server", "", err.Error(), ErrCredential)
	}

	if server.CreatedAt.IsZero() {
		server.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO servers (name, host, port, credential, created_at, updated_at)
		VALUES (:name, :host, :port, :credential, :created_at, :updated_at)`

	now := formatTime(server.CreatedAt)
	result, err := exec.NamedExecContext(ctx, query, map[string]any{
		"name":       server.Name,
		"host":       server.Host,
		"port":       server.Port,
		"credential": sealed,
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: servers.name") {
			return NewStoreError("CreateServer", "server", server.Name, "server with this name already exists", ErrDuplicateName)
		}
		return NewStoreError("CreateServer", "server", server.Name, err.Error(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return NewStoreError("CreateServer", "server", server.Name, err.Error(), err)
	}
	server.ID = id
	return nil
}

func getServer(ctx context.Context, exec executor, key []byte, id int64) (*domain.RemoteHost, error) {
	var row serverRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM servers WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetServer", "server", idString(id), "server not found", ErrNotFound)
		}
		return nil, NewStoreError("GetServer", "server", idString(id), err.Error(), err)
	}
	return rowToServer(&row, key)
}

func updateServer(ctx context.Context, exec executor, key []byte, server *domain.RemoteHost) error {
	if err := server.Validate(); err != nil {
		return NewStoreError("UpdateServer", "server", idString(server.ID), err.Error(), err)
	}

	sealed, err := crypto.SealCredential(server.Credential, key)
	if err != nil {
		return NewStoreError("UpdateServer", "server", idString(server.ID), err.Error(), ErrCredential)
	}

	query := `
		UPDATE servers SET
			name = :name, host = :host, port = :port,
			credential = :credential, updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":         server.ID,
		"name":       server.Name,
		"host":       server.Host,
		"port":       server.Port,
		"credential": sealed,
		"updated_at": formatTime(time.Now()),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: servers.name") {
			return NewStoreError("UpdateServer", "server", idString(server.ID), "server with this name already exists", ErrDuplicateName)
		}
		return NewStoreError("UpdateServer", "server", idString(server.ID), err.Error(), err)
	}

	return requireAffected(result, "UpdateServer", "server", idString(server.ID))
}

func deleteServer(ctx context.Context, exec executor, id int64) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return NewStoreError("DeleteServer", "server", idString(id), err.Error(), err)
	}
	return requireAffected(result, "DeleteServer", "server", idString(id))
}

func listServers(ctx context.Context, exec executor, key []byte) ([]domain.RemoteHost, error) {
	var rows []serverRow
	if err := exec.SelectContext(ctx, &rows, `SELECT * FROM servers ORDER BY id`); err != nil {
		return nil, NewStoreError("ListServers", "server", "", err.Error(), err)
	}

	servers := make([]domain.RemoteHost, 0, len(rows))
	for i := range rows {
		server, err := rowToServer(&rows[i], key)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *server)
	}
	return servers, nil
}

// =============================================================================
// Project Operations
// =============================================================================

// projectRow represents a project row in the database.
type projectRow struct {
	Path               string        `db:"path"`
	ImageBaseName      string        `db:"image_base_name"`
	DefaultServerID    sql.NullInt64 `db:"default_server_id"`
	DefaultComposePath string        `db:"default_compose_path"`
	CreatedAt          string        `db:"created_at"`
}

func projectParams(project *domain.Project) map[string]any {
	var serverID any
	if project.DefaultServerID != nil {
		serverID = *project.DefaultServerID
	}
	return map[string]any{
		"path":                 project.Path,
		"image_base_name":      project.ImageBaseName,
		"default_server_id":    serverID,
		"default_compose_path": project.DefaultComposePath,
		"created_at":           formatTime(project.CreatedAt),
	}
}

func createProject(ctx context.Context, exec executor, project *domain.Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO projects (path, image_base_name, default_server_id, default_compose_path, created_at)
		VALUES (:path, :image_base_name, :default_server_id, :default_compose_path, :created_at)`

	if _, err := exec.NamedExecContext(ctx, query, projectParams(project)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: projects.path") {
			return NewStoreError("CreateProject", "project", project.Path, "project already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateProject", "project", project.Path, "default server does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateProject", "project", project.Path, err.Error(), err)
	}
	return nil
}

func getProject(ctx context.Context, exec executor, path string) (*domain.Project, error) {
	var row projectRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM projects WHERE path = ?`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetProject", "project", path, "project not found", ErrNotFound)
		}
		return nil, NewStoreError("GetProject", "project", path, err.Error(), err)
	}
	return rowToProject(&row), nil
}

func updateProject(ctx context.Context, exec executor, project *domain.Project) error {
	query := `
		UPDATE projects SET
			image_base_name = :image_base_name,
			default_server_id = :default_server_id,
			default_compose_path = :default_compose_path
		WHERE path = :path`

	result, err := exec.NamedExecContext(ctx, query, projectParams(project))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("UpdateProject", "project", project.Path, "default server does not exist", ErrForeignKey)
		}
		return NewStoreError("UpdateProject", "project", project.Path, err.Error(), err)
	}
	return requireAffected(result, "UpdateProject", "project", project.Path)
}

func deleteProject(ctx context.Context, exec executor, path string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM projects WHERE path = ?`, path)
	if err != nil {
		return NewStoreError("DeleteProject", "project", path, err.Error(), err)
	}
	return requireAffected(result, "DeleteProject", "project", path)
}

func listProjects(ctx context.Context, exec executor) ([]domain.Project, error) {
	var rows []projectRow
	if err := exec.SelectContext(ctx, &rows, `SELECT * FROM projects ORDER BY path`); err != nil {
		return nil, NewStoreError("ListProjects", "project", "", err.Error(), err)
	}

	projects := make([]domain.Project, 0, len(rows))
	for i := range rows {
		projects = append(projects, *rowToProject(&rows[i]))
	}
	return projects, nil
}

// =============================================================================
// Notification Operations
// =============================================================================

// notificationRow represents a notification row in the database.
type notificationRow struct {
	ID         string `db:"id"`
	Type       string `db:"type"`
	Title      string `db:"title"`
	Detail     string `db:"detail"`
	Status     string `db:"status"`
	Timestamp  string `db:"timestamp"`
	DurationMs int64  `db:"duration_ms"`
	ServerName string `db:"server_name"`
}

func createNotification(ctx context.Context, exec executor, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, type, title, detail, status, timestamp, duration_ms, server_name)
		VALUES (:id, :type, :title, :detail, :status, :timestamp, :duration_ms, :server_name)`

	_, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":          n.ID,
		"type":        n.Type,
		"title":       n.Title,
		"detail":      n.Detail,
		"status":      string(n.Status),
		"timestamp":   formatTime(n.Timestamp),
		"duration_ms": n.DurationMs,
		"server_name": n.ServerName,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: notifications.id") {
			return NewStoreError("CreateNotification", "notification", n.ID, "notification already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateNotification", "notification", n.ID, err.Error(), err)
	}
	return nil
}

// listNotifications returns notifications newest first.
func listNotifications(ctx context.Context, exec executor, opts ListOptions) ([]domain.Notification, error) {
	opts = opts.Normalize()

	var rows []notificationRow
	query := `SELECT * FROM notifications ORDER BY timestamp DESC, rowid DESC LIMIT ? OFFSET ?`
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListNotifications", "notification", "", err.Error(), err)
	}

	notifications := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, domain.Notification{
			ID:         row.ID,
			Type:       row.Type,
			Title:      row.Title,
			Detail:     row.Detail,
			Status:     domain.NotificationStatus(row.Status),
			Timestamp:  parseTime(row.Timestamp),
			DurationMs: row.DurationMs,
			ServerName: row.ServerName,
		})
	}
	return notifications, nil
}

func clearNotifications(ctx context.Context, exec executor) (int64, error) {
	result, err := exec.ExecContext(ctx, `DELETE FROM notifications`)
	if err != nil {
		return 0, NewStoreError("ClearNotifications", "notification", "", err.Error(), err)
	}
	return result.RowsAffected()
}

// =============================================================================
// Helpers
// =============================================================================

func rowToServer(row *serverRow, key []byte) (*domain.RemoteHost, error) {
	credential, err := crypto.OpenCredential(row.Credential, key)
	if err != nil {
		return nil, NewStoreError("rowToServer", "server", idString(row.ID), "failed to open credential", ErrCredential)
	}
	return &domain.RemoteHost{
		ID:         row.ID,
		Name:       row.Name,
		Host:       row.Host,
		Port:       row.Port,
		Credential: credential,
		CreatedAt:  parseTime(row.CreatedAt),
	}, nil
}

func rowToProject(row *projectRow) *domain.Project {
	p := &domain.Project{
		Path:               row.Path,
		ImageBaseName:      row.ImageBaseName,
		DefaultComposePath: row.DefaultComposePath,
		CreatedAt:          parseTime(row.CreatedAt),
	}
	if row.DefaultServerID.Valid {
		id := row.DefaultServerID.Int64
		p.DefaultServerID = &id
	}
	return p
}

func requireAffected(result sql.Result, op, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return NewStoreError(op, entity, id, err.Error(), err)
	}
	if n == 0 {
		return NewStoreError(op, entity, id, entity+" not found", ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

var _ Store = (*SQLiteStore)(nil)
var _ Store = (*txSQLiteStore)(nil)
