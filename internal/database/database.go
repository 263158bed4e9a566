package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-conversions/internal/logging"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository stores media records in SQLite.
type Repository struct {
	db     *sql.DB
	dbPath string
	locks  media.KeyedMutex
}

var _ media.Store = (*Repository)(nil)

// New opens (and creates if needed) the database file at dbPath.
// The parent directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Repository, error) {
	logging.Info("Database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors. Immediate
	// transactions take the write lock up front so Update never has to upgrade.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	r := &Repository{
		db:     db,
		dbPath: dbPath,
	}

	if err := r.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return r, nil
}

func (r *Repository) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		model_type TEXT NOT NULL,
		model_id INTEGER NOT NULL,
		collection_name TEXT NOT NULL DEFAULT 'default',
		name TEXT NOT NULL,
		file_name TEXT NOT NULL,
		mime_type TEXT,
		disk TEXT NOT NULL,
		conversions_disk TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		manipulations TEXT NOT NULL DEFAULT '{}',
		custom_properties TEXT NOT NULL DEFAULT '{}',
		generated_conversions TEXT NOT NULL DEFAULT '{}',
		responsive_images TEXT NOT NULL DEFAULT '{}',
		order_column INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_media_model ON media(model_type, model_id);
	CREATE INDEX IF NOT EXISTS idx_media_model_collection ON media(model_type, model_id, collection_name);
	CREATE INDEX IF NOT EXISTS idx_media_deleted_at ON media(deleted_at);
	`

	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Vacuum optimizes the database.
func (r *Repository) Vacuum(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err = r.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

// UpdateDBMetrics updates database connection metrics
func (r *Repository) UpdateDBMetrics() {
	stats := r.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	// The WAL and SHM files must stay writable or every write fails.
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("Database file is read-only! Mode: %v (%s)", info.Mode(), p)
		if p == dbPath {
			continue
		}
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", p)
		}
	}

	return nil
}
