package postgresql

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/store/connector"
)

const maxStoredEnvVars = 10000

type Store struct {
	db      *sql.DB
	dialect *Dialect
	DSN     string
}

// NewStore creates a new PostgreSQL store
func NewStore() *Store {
	return &Store{
		dialect: NewDialect(),
	}
}

// Load reads "dsn" from config.
func (p *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok && dsn != "" {
		p.DSN = dsn
	}
	return nil
}

func (p *Store) Connect() (*sql.DB, error) {
	if strings.TrimSpace(p.DSN) == "" {
		return nil, errors.New("postgres store requires a dsn or host")
	}
	db, err := p.dialect.Connect(p.DSN)
	if err != nil {
		return nil, err
	}
	p.db = db
	common.GetLogger().WithStore("postgresql").Debug("postgres history store connected")
	return db, nil
}

func (p *Store) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

func (p *Store) Ensure(th connector.TableNames) error {
	logger := common.GetLogger().WithStore("postgresql")
	for i, q := range p.dialect.GetEnsureStatements(th.Runs, th.StoredEnv) {
		if _, err := p.db.Exec(q); err != nil {
			logger.Error("failed to create history table", "error", err, "table_index", i+1)
			return fmt.Errorf("failed to create table %d in PostgreSQL schema setup: %w", i+1, err)
		}
	}
	logger.Debug("postgres history schema ensured", "runs", th.Runs, "stored_env", th.StoredEnv)
	return nil
}

func (p *Store) RecordRun(th connector.TableNames, run connector.Run) error {
	var envJSON *string
	if len(run.Env) > 0 {
		b, err := json.Marshal(run.Env)
		if err != nil {
			return fmt.Errorf("failed to marshal env for run (scenario %s, step %s): %w", run.Scenario, run.Step, err)
		}
		str := string(b)
		envJSON = &str
	}
	// #nosec G201 -- only the validated table name is interpolated
	q := fmt.Sprintf("INSERT INTO %s(scenario, version, step, method, script, status_code, body, env_json, failed, ran_at) VALUES(%s)",
		th.Runs, p.dialect.Placeholders(1, 10))
	_, err := p.db.Exec(q,
		run.Scenario, run.Version, run.Step, run.Method, run.Script, run.StatusCode,
		run.Body, envJSON, run.Failed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record run (scenario %s, step %s, status %d): %w", run.Scenario, run.Step, run.StatusCode, err)
	}
	return nil
}

func (p *Store) ListRuns(th connector.TableNames, limit int) ([]connector.Run, error) {
	cols := "id, scenario, version, step, method, script, status_code, body, env_json, failed, ran_at"
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		// #nosec G201 -- validated table identifier; limit is a bind parameter
		q := fmt.Sprintf("SELECT %s FROM (SELECT %s FROM %s ORDER BY id DESC LIMIT %s) recent ORDER BY id ASC",
			cols, cols, th.Runs, p.dialect.GetPlaceholder(1))
		rows, err = p.db.Query(q, limit)
	} else {
		rows, err = p.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY id ASC", cols, th.Runs))
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
			ranAt   time.Time
		)
		if err := rows.Scan(&run.ID, &run.Scenario, &run.Version, &run.Step, &run.Method, &run.Script,
			&run.StatusCode, &body, &envJSON, &run.Failed, &ranAt); err != nil {
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
		run.RanAt = p.dialect.ConvertTimeFromStorage(ranAt)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// InsertStoredEnv upserts kv for version in a single statement.
func (p *Store) InsertStoredEnv(th connector.TableNames, version int, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	if len(kv) > maxStoredEnvVars {
		return fmt.Errorf("cannot store more than %d environment variables (got: %d)", maxStoredEnvVars, len(kv))
	}
	values := make([]string, 0, len(kv))
	args := make([]interface{}, 0, len(kv)*3)
	i := 1
	for name, value := range kv {
		values = append(values, "("+p.dialect.Placeholders(i, 3)+")")
		args = append(args, version, name, value)
		i += 3
	}
	// #nosec G201 -- validated table identifier; values are bind parameters
	q := fmt.Sprintf("INSERT INTO %s(version, name, value) VALUES %s ON CONFLICT (version, name) DO UPDATE SET value = EXCLUDED.value",
		th.StoredEnv, strings.Join(values, ","))
	if _, err := p.db.Exec(q, args...); err != nil {
		return fmt.Errorf("failed to insert stored env for version %d: %w", version, err)
	}
	return nil
}

func (p *Store) LoadStoredEnv(th connector.TableNames, version int) (map[string]string, error) {
	q := fmt.Sprintf("SELECT name, value FROM %s WHERE version = %s", th.StoredEnv, p.dialect.GetPlaceholder(1))
	rows, err := p.db.Query(q, version)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored env for version %d: %w", version, err)
	}
	return scanEnv(rows)
}

func (p *Store) LoadAllStoredEnv(th connector.TableNames) (map[string]string, error) {
	rows, err := p.db.Query(fmt.Sprintf("SELECT name, value FROM %s ORDER BY version ASC", th.StoredEnv))
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
