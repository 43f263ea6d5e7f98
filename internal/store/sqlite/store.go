package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/store/connector"
)

// maxStoredEnvVars bounds a single InsertStoredEnv statement.
const maxStoredEnvVars = 10000

type Store struct {
	db      *sql.DB
	dialect *Dialect
	DSN     string
}

// NewStore creates a new SQLite store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load reads "dsn" or "path" from config. An explicit dsn wins.
func (s *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		s.DSN = dsn
		return nil
	}
	if path, ok := config["path"].(string); ok && path != "" {
		s.DSN = FileDSN(path)
	}
	return nil
}

// Connect opens the database; an empty DSN selects an in-memory database.
func (s *Store) Connect() (*sql.DB, error) {
	if s.DSN == "" {
		s.DSN = ":memory:"
	}
	db, err := s.dialect.Connect(s.DSN)
	if err != nil {
		return nil, err
	}
	s.db = db
	common.GetLogger().WithStore("sqlite").Debug("sqlite history store connected")
	return db, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure creates the history tables when missing.
func (s *Store) Ensure(th connector.TableNames) error {
	logger := common.GetLogger().WithStore("sqlite")
	for i, q := range s.dialect.GetEnsureStatements(th.Runs, th.StoredEnv) {
		if _, err := s.db.Exec(q); err != nil {
			logger.Error("failed to create history table", "error", err, "table_index", i+1)
			return fmt.Errorf("failed to create table %d in schema setup: %w", i+1, err)
		}
	}
	logger.Debug("sqlite history schema ensured", "runs", th.Runs, "stored_env", th.StoredEnv)
	return nil
}

// RecordRun appends one step result to the runs table.
func (s *Store) RecordRun(th connector.TableNames, run connector.Run) error {
	var envJSON *string
	if len(run.Env) > 0 {
		b, err := json.Marshal(run.Env)
		if err != nil {
			return fmt.Errorf("failed to marshal env for run (scenario %s, step %s): %w", run.Scenario, run.Step, err)
		}
		str := string(b)
		envJSON = &str
	}

	q := fmt.Sprintf("INSERT INTO %s(scenario, version, step, method, script, status_code, body, env_json, failed, ran_at) VALUES(?,?,?,?,?,?,?,?,?,?)", th.Runs)
	_, err := s.db.Exec(q,
		run.Scenario, run.Version, run.Step, run.Method, run.Script, run.StatusCode,
		run.Body, envJSON,
		s.dialect.ConvertBoolToStorage(run.Failed),
		s.dialect.ConvertTimeToStorage(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to record run (scenario %s, step %s, status %d): %w", run.Scenario, run.Step, run.StatusCode, err)
	}
	return nil
}

// ListRuns returns the last limit runs, oldest first.
func (s *Store) ListRuns(th connector.TableNames, limit int) ([]connector.Run, error) {
	cols := "id, scenario, version, step, method, script, status_code, body, env_json, failed, ran_at"
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		q := fmt.Sprintf("SELECT %s FROM (SELECT %s FROM %s ORDER BY id DESC LIMIT ?) ORDER BY id ASC", cols, cols, th.Runs)
		rows, err = s.db.Query(q, limit)
	} else {
		rows, err = s.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY id ASC", cols, th.Runs))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []connector.Run
	for rows.Next() {
		var (
			run     connector.Run
			body    sql.NullString
			envJSON sql.NullString
			failed  int64
			ranAt   string
		)
		if err := rows.Scan(&run.ID, &run.Scenario, &run.Version, &run.Step, &run.Method, &run.Script,
			&run.StatusCode, &body, &envJSON, &failed, &ranAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if body.Valid {
			b := body.String
			run.Body = &b
		}
		run.Env = map[string]string{}
		if envJSON.Valid && envJSON.String != "" {
			_ = json.Unmarshal([]byte(envJSON.String), &run.Env)
		}
		run.Failed = s.dialect.ConvertBoolFromStorage(failed)
		run.RanAt = s.dialect.ConvertTimeFromStorage(ranAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// InsertStoredEnv upserts kv for version.
func (s *Store) InsertStoredEnv(th connector.TableNames, version int, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	if len(kv) > maxStoredEnvVars {
		return fmt.Errorf("cannot store more than %d environment variables (got: %d)", maxStoredEnvVars, len(kv))
	}
	values := make([]string, 0, len(kv))
	args := make([]interface{}, 0, len(kv)*3)
	for name, value := range kv {
		values = append(values, "(?,?,?)")
		args = append(args, version, name, value)
	}
	q := fmt.Sprintf("INSERT OR REPLACE INTO %s(version, name, value) VALUES %s", th.StoredEnv, strings.Join(values, ","))
	if _, err := s.db.Exec(q, args...); err != nil {
		return fmt.Errorf("failed to insert stored env for version %d: %w", version, err)
	}
	return nil
}

func (s *Store) LoadStoredEnv(th connector.TableNames, version int) (map[string]string, error) {
	q := fmt.Sprintf("SELECT name, value FROM %s WHERE version = ?", th.StoredEnv)
	rows, err := s.db.Query(q, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored env for version %d: %w", version, err)
	}
	return scanEnv(rows)
}

func (s *Store) LoadAllStoredEnv(th connector.TableNames) (map[string]string, error) {
	q := fmt.Sprintf("SELECT name, value FROM %s ORDER BY version ASC", th.StoredEnv)
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored env: %w", err)
	}
	return scanEnv(rows)
}

func scanEnv(rows *sql.Rows) (map[string]string, error) {
	defer func() { _ = rows.Close() }()
	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan stored env: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stored env: %w", err)
	}
	return out, nil
}
