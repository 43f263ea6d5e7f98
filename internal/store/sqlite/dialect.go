package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/loykin/cgirun/internal/constants"
	_ "modernc.org/sqlite"
)

// Dialect holds the SQLite specific SQL and type conversions.
type Dialect struct{}

func NewDialect() *Dialect {
	return &Dialect{}
}

// ConvertBoolToStorage stores booleans as integers.
func (s *Dialect) ConvertBoolToStorage(b bool) interface{} {
	if b {
		return 1
	}
	return 0
}

// ConvertTimeToStorage stores timestamps as RFC3339Nano text.
func (s *Dialect) ConvertTimeToStorage(t time.Time) interface{} {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *Dialect) ConvertBoolFromStorage(val interface{}) bool {
	switch i := val.(type) {
	case int64:
		return i != 0
	case int:
		return i != 0
	default:
		return false
	}
}

func (s *Dialect) ConvertTimeFromStorage(val interface{}) string {
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

// Connect opens dsn with a single-writer pool.
func (s *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	db.SetMaxOpenConns(constants.DefaultSQLiteMaxConnections)
	db.SetMaxIdleConns(constants.DefaultSQLiteMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultSQLiteLifetime)
	db.SetConnMaxIdleTime(constants.DefaultSQLiteIdleTime)
	return db, nil
}

// GetEnsureStatements returns the CREATE statements for both history tables.
func (s *Dialect) GetEnsureStatements(runs, storedEnv string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, scenario TEXT NOT NULL, version INTEGER NOT NULL, step TEXT NOT NULL, method TEXT NOT NULL, script TEXT NOT NULL, status_code INTEGER NOT NULL, body TEXT NULL, env_json TEXT NULL, failed INTEGER NOT NULL DEFAULT 0, ran_at TEXT NOT NULL)", runs),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL, name TEXT NOT NULL, value TEXT NOT NULL, PRIMARY KEY(version, name))", storedEnv),
	}
}

func (s *Dialect) GetDriverName() string {
	return "sqlite"
}
