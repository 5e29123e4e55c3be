// Package db implements the optional job archive: an append-only
// PostgreSQL record of terminal jobs used for history queries and
// aggregate status counts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
)

const (
	// Default database configuration values.
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
)

// DB wraps sqlx.DB with additional functionality.
type DB struct {
	*sqlx.DB
}

// Config holds job archive database configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig returns the default archive configuration.
// The archive is disabled until database name, username, and password
// are explicitly configured.
func DefaultConfig() Config {
	return Config{
		Enabled:         false,
		Host:            "localhost",
		Port:            defaultPostgresPort,
		Database:        "",
		Username:        "",
		Password:        "",
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
	}
}

// Connect establishes a connection to PostgreSQL.
// Returns sanitized errors that don't leak credentials or DSN details.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database,
		config.Username, config.Password, config.SSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.WrapArchiveError(errors.CodeArchiveConnection,
			"failed to connect to job archive", "connect", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Warn("failed to close archive connection after ping failure")
		}
		return nil, errors.WrapArchiveError(errors.CodeArchiveConnection,
			"failed to verify job archive connection", "ping", err)
	}

	logging.Info("connected to job archive",
		"host", config.Host, "port", config.Port, "database", config.Database)
	return &DB{DB: db}, nil
}

// JobRecord is the persisted form of a terminal job.
type JobRecord struct {
	ID           uuid.UUID      `db:"id"`
	Kind         string         `db:"kind"`
	Target       string         `db:"target"`
	Status       string         `db:"status"`
	SubmittedAt  time.Time      `db:"submitted_at"`
	StartedAt    sql.NullTime   `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	ResultRef    sql.NullString `db:"result_ref"`
	ErrorCode    sql.NullString `db:"error_code"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
}

// JobRepository persists terminal jobs.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert appends a terminal job to the archive.
func (r *JobRepository) Insert(ctx context.Context, record *JobRecord) error {
	query := `
		INSERT INTO jobs (id, kind, target, status, submitted_at, started_at,
		                  completed_at, result_ref, error_code, error_message)
		VALUES (:id, :kind, :target, :status, :submitted_at, :started_at,
		        :completed_at, :result_ref, :error_code, :error_message)
		RETURNING created_at`

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	rows, err := r.db.NamedQueryContext(ctx, query, record)
	if err != nil {
		return errors.WrapArchiveError(errors.CodeArchiveQuery,
			"failed to archive job", "insert job", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close archive rows", "error", err)
		}
	}()

	if rows.Next() {
		if err := rows.Scan(&record.CreatedAt); err != nil {
			return errors.WrapArchiveError(errors.CodeArchiveQuery,
				"failed to read archived job", "scan created job", err)
		}
	}

	return nil
}

// CountByKind returns the number of archived jobs for a kind, optionally
// restricted to a status. An empty status counts all terminal jobs.
func (r *JobRepository) CountByKind(ctx context.Context, kind, status string) (int, error) {
	var count int
	var err error
	if status == "" {
		err = r.db.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM jobs WHERE kind = $1`, kind)
	} else {
		err = r.db.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM jobs WHERE kind = $1 AND status = $2`, kind, status)
	}
	if err != nil {
		return 0, errors.WrapArchiveError(errors.CodeArchiveQuery,
			"failed to count archived jobs", "count jobs", err)
	}
	return count, nil
}

// Recent returns the most recent archived jobs for a kind, newest first.
func (r *JobRepository) Recent(ctx context.Context, kind string, limit int) ([]*JobRecord, error) {
	var records []*JobRecord
	query := `SELECT * FROM jobs WHERE kind = $1 ORDER BY submitted_at DESC LIMIT $2`

	if err := r.db.SelectContext(ctx, &records, query, kind, limit); err != nil {
		return nil, errors.WrapArchiveError(errors.CodeArchiveQuery,
			"failed to list archived jobs", "recent jobs", err)
	}
	return records, nil
}
