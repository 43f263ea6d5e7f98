package sqlite

import "fmt"

const (
	busyTimeoutMS    = 5000
	foreignKeysParam = "_fk=1"
)

// Config selects the database file of the sqlite history store.
type Config struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func (c *Config) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"path": c.Path,
	}
}

// FileDSN returns the DSN used for a database file at path.
func FileDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=%d&%s", path, busyTimeoutMS, foreignKeysParam)
}
