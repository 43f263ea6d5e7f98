package connector

import "database/sql"

// Run is one recorded scenario step. Body is nil when response bodies are
// not saved; Env holds the values the step extracted.
type Run struct {
	ID         int
	Scenario   string
	Version    int
	Step       string
	Method     string
	Script     string
	StatusCode int
	Body       *string
	Env        map[string]string
	Failed     bool
	RanAt      string // RFC3339Nano, UTC
}

// TableNames holds the (already validated) table identifiers of one store.
type TableNames struct {
	Runs      string
	StoredEnv string
}

// Connector is implemented by each database driver.
type Connector interface {
	Connect() (*sql.DB, error)
	Load(config map[string]interface{}) error
	Ensure(th TableNames) error
	RecordRun(th TableNames, run Run) error
	// ListRuns returns the most recent runs in ascending id order. limit <= 0 means all.
	ListRuns(th TableNames, limit int) ([]Run, error)
	InsertStoredEnv(th TableNames, version int, kv map[string]string) error
	LoadStoredEnv(th TableNames, version int) (map[string]string, error)
	// LoadAllStoredEnv merges stored env of every version, later versions winning.
	LoadAllStoredEnv(th TableNames) (map[string]string, error)
	Close() error
}
