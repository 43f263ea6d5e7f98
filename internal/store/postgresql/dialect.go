package postgresql

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/cgirun/internal/constants"
)

// Dialect holds the PostgreSQL specific SQL and type conversions.
type Dialect struct{}

func NewDialect() *Dialect {
	return &Dialect{}
}

// GetPlaceholder returns PostgreSQL-style placeholders ($1, $2, etc.)
func (p *Dialect) GetPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// Placeholders returns "$from, ..., $(from+n-1)".
func (p *Dialect) Placeholders(from, n int) string {
	out := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, p.GetPlaceholder(from+i)...)
	}
	return string(out)
}

// ConvertTimeFromStorage formats a TIMESTAMPTZ as RFC3339Nano in UTC.
func (p *Dialect) ConvertTimeFromStorage(val interface{}) string {
	switch t := val.(type) {
	case *time.Time:
		if t != nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// Connect opens dsn through the pgx stdlib driver.
func (p *Dialect) Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	db.SetMaxOpenConns(constants.DefaultPostgresMaxConnections)
	db.SetMaxIdleConns(constants.DefaultPostgresMaxIdleConns)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(constants.DefaultMaxIdleTime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	return db, nil
}

func (p *Dialect) GetEnsureStatements(runs, storedEnv string) []string {
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id SERIAL PRIMARY KEY, scenario TEXT NOT NULL, version INTEGER NOT NULL, step TEXT NOT NULL, method TEXT NOT NULL, script TEXT NOT NULL, status_code INTEGER NOT NULL, body TEXT NULL, env_json TEXT NULL, failed BOOLEAN NOT NULL DEFAULT FALSE, ran_at TIMESTAMPTZ NOT NULL)", runs),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version INTEGER NOT NULL, name TEXT NOT NULL, value TEXT NOT NULL, PRIMARY KEY(version, name))", storedEnv),
	}
}

func (p *Dialect) GetDriverName() string {
	return "postgresql"
}
