package store

import (
	"fmt"
	"regexp"

	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/retry"
	"github.com/loykin/cgirun/internal/store/connector"
	"github.com/loykin/cgirun/internal/store/postgresql"
	"github.com/loykin/cgirun/internal/store/sqlite"
	"github.com/loykin/cgirun/internal/util"
)

const (
	DriverSqlite     = "sqlite"
	DriverPostgresql = "postgresql"
)

type (
	Run            = connector.Run
	TableNames     = connector.TableNames
	SqliteConfig   = sqlite.Config
	PostgresConfig = postgresql.Config
)

// DriverConfig is the driver specific part of Config.
type DriverConfig interface {
	ToMap() map[string]interface{}
}

type Config struct {
	Driver       string
	TablePrefix  string
	DriverConfig DriverConfig
	Retry        *retry.Config
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableNamesFor returns the history table names for prefix. An empty prefix
// selects cgirun_runs and cgirun_stored_env.
func TableNamesFor(prefix string) (TableNames, error) {
	prefix, ok := util.TrimEmptyCheck(prefix)
	if !ok {
		return TableNames{Runs: constants.DefaultRunsTable, StoredEnv: constants.DefaultStoredEnvTable}, nil
	}
	if !identRe.MatchString(prefix) {
		return TableNames{}, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return TableNames{
		Runs:      prefix + constants.RunsSuffix,
		StoredEnv: prefix + constants.StoredEnvSuffix,
	}, nil
}

// normalizeDriver maps driver aliases to DriverSqlite or DriverPostgresql.
func normalizeDriver(d string) (string, error) {
	switch util.TrimAndLower(d) {
	case "", "sqlite", "sqlite3":
		return DriverSqlite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgresql, nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", d)
	}
}
