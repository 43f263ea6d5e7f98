package store

import (
	"context"
	"fmt"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/retry"
	"github.com/loykin/cgirun/internal/store/connector"
	"github.com/loykin/cgirun/internal/store/postgresql"
	"github.com/loykin/cgirun/internal/store/sqlite"
)

// Store records scenario runs and the env values they extracted.
type Store struct {
	connector connector.Connector
	tables    TableNames
	driver    string
	retry     *retry.Config
}

// Open connects to the configured database and creates the history tables.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := normalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	tables, err := TableNamesFor(cfg.TablePrefix)
	if err != nil {
		return nil, err
	}

	var c connector.Connector
	switch driver {
	case DriverPostgresql:
		c = postgresql.NewStore()
	default:
		c = sqlite.NewStore()
	}
	if cfg.DriverConfig != nil {
		if err := c.Load(cfg.DriverConfig.ToMap()); err != nil {
			return nil, err
		}
	}

	st := &Store{connector: c, tables: tables, driver: driver, retry: cfg.Retry}
	if _, err := retry.Do(ctx, st.retry, c.Connect); err != nil {
		common.GetLogger().WithStore(driver).Error("failed to connect history store", "error", err)
		return nil, fmt.Errorf("connect %s store: %w", driver, err)
	}
	if err := st.Ensure(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return st, nil
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string { return s.driver }

// Tables returns the table names in use.
func (s *Store) Tables() TableNames { return s.tables }

// Ensure creates missing tables. It is idempotent.
func (s *Store) Ensure(ctx context.Context) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.Ensure(s.tables)
	})
}

// RecordRun appends run to the history.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.RecordRun(s.tables, run)
	})
}

// ListRuns returns up to limit of the latest runs, oldest first. limit <= 0 lists all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	return s.connector.ListRuns(s.tables, limit)
}

// InsertStoredEnv saves kv for a scenario version, replacing existing names.
func (s *Store) InsertStoredEnv(ctx context.Context, version int, kv map[string]string) error {
	return retry.WithRetry(ctx, s.retry, func() error {
		return s.connector.InsertStoredEnv(s.tables, version, kv)
	})
}

func (s *Store) LoadStoredEnv(version int) (map[string]string, error) {
	return s.connector.LoadStoredEnv(s.tables, version)
}

// LoadAllStoredEnv merges the stored env of every version; later versions win.
func (s *Store) LoadAllStoredEnv() (map[string]string, error) {
	return s.connector.LoadAllStoredEnv(s.tables)
}

func (s *Store) Close() error {
	if s == nil || s.connector == nil {
		return nil
	}
	return s.connector.Close()
}
