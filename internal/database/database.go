package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sportsync/internal/config"
	"sportsync/internal/models"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("record not found")

// DB is the relational store. Queries are written with '?' placeholders and
// rebound to '$N' for postgres.
type DB struct {
	db     *sql.DB
	driver string
	path   string
	logger *zerolog.Logger
}

// Open connects, migrates and seeds the store described by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	var (
		conn *sql.DB
		err  error
	)
	switch cfg.Driver {
	case models.DriverPostgres:
		conn, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		conn.SetMaxOpenConns(20)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	default:
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		conn, err = sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_foreign_keys=on")
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// a single connection serializes writers; every query drains its rows
		// before issuing the next one
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := newWithConn(conn, cfg.Driver, logger)
	db.path = cfg.Path

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := db.seed(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().Str("driver", db.driver).Msg("database initialized")
	return db, nil
}

// NewDB opens a sqlite database at path.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return Open(context.Background(), config.DatabaseConfig{Driver: models.DriverSQLite, Path: path}, logger)
}

func newWithConn(conn *sql.DB, driver string, logger *zerolog.Logger) *DB {
	if driver == "" {
		driver = models.DriverSQLite
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &DB{db: conn, driver: driver, logger: logger}
}

func (db *DB) seed(ctx context.Context) error {
	if _, err := db.exec(ctx,
		`INSERT INTO sports (code, name) VALUES (?, ?) ON CONFLICT (code) DO NOTHING`,
		models.SportFootball, "Football",
	); err != nil {
		return fmt.Errorf("seed sports: %w", err)
	}

	for _, bt := range models.DefaultBetTypes {
		if _, err := db.exec(ctx,
			`INSERT INTO bet_types (code, name) VALUES (?, ?) ON CONFLICT (code) DO NOTHING`,
			bt.Code, bt.Name,
		); err != nil {
			return fmt.Errorf("seed bet type %s: %w", bt.Code, err)
		}
	}
	return nil
}

func (db *DB) Driver() string { return db.driver }

// Path is the sqlite file path; empty for postgres.
func (db *DB) Path() string { return db.path }

func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) rebind(query string) string {
	if db.driver != models.DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, db.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, db.rebind(query), args...)
}

// insertID runs an INSERT ... RETURNING id statement.
func (db *DB) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := db.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// IsUniqueViolation reports whether err is a unique constraint failure on
// either dialect.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func nullString(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}

func rawOrNil(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
