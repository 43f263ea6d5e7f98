package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loykin/cgirun"
	"github.com/loykin/cgirun/internal/auth"
	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/store"
	"github.com/loykin/cgirun/internal/util"
	"github.com/loykin/cgirun/pkg/env"
)

type EnvConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Value        string `mapstructure:"value" yaml:"value"`
	ValueFromEnv string `mapstructure:"valueFromEnv" yaml:"valueFromEnv"`
}

type LoggingConfig struct {
	Level         string `mapstructure:"level" yaml:"level"`                   // error, warn, info, debug
	Format        string `mapstructure:"format" yaml:"format"`                 // text, json, color
	MaskSensitive *bool  `mapstructure:"mask_sensitive" yaml:"mask_sensitive"` // enable/disable sensitive data masking
	Color         *bool  `mapstructure:"color" yaml:"color"`                   // enable/disable colorized output
}

type StoreConfig struct {
	Disabled         bool                 `mapstructure:"disabled" yaml:"disabled"`
	SaveResponseBody bool                 `mapstructure:"save_response_body" yaml:"save_response_body"`
	Type             string               `mapstructure:"type" yaml:"type"`
	SQLite           store.SqliteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres         store.PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
	TablePrefix      string               `mapstructure:"table_prefix" yaml:"table_prefix"`
}

// ConfigDoc is the cgirun YAML configuration file.
type ConfigDoc struct {
	Interpreter     string            `mapstructure:"interpreter" yaml:"interpreter"`
	DocumentRoot    string            `mapstructure:"document_root" yaml:"document_root"`
	IncludePath     string            `mapstructure:"include_path" yaml:"include_path"`
	PHPOptions      map[string]string `mapstructure:"php_options" yaml:"php_options"`
	Timeout         string            `mapstructure:"timeout" yaml:"timeout"`
	TempDir         string            `mapstructure:"temp_dir" yaml:"temp_dir"`
	SessionSavePath string            `mapstructure:"session_save_path" yaml:"session_save_path"`
	CleanEnv        bool              `mapstructure:"clean_env" yaml:"clean_env"`
	// CGIEnv seeds the harness environment, e.g. HTTP_HOST or SERVER_NAME.
	CGIEnv      map[string]string `mapstructure:"cgi_env" yaml:"cgi_env"`
	ScenarioDir string            `mapstructure:"scenario_dir" yaml:"scenario_dir"`
	// Delay between two scenario files, as a duration string.
	Delay   string        `mapstructure:"delay" yaml:"delay"`
	Env     []EnvConfig   `mapstructure:"env" yaml:"env"`
	Auth    []auth.Auth   `mapstructure:"auth" yaml:"auth"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

func (c *ConfigDoc) Load(path string) error {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", clean)
	}
	// #nosec G304 -- config path is provided intentionally by the user/CI; cleaned and validated above
	f, err := os.Open(clean)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("%s: %w", clean, err)
	}
	return nil
}

// GetEnv builds the template environment from env[]. Values may come from
// the process environment through valueFromEnv.
func (c *ConfigDoc) GetEnv() (*env.Env, error) {
	base := env.New()
	for _, kv := range c.Env {
		name, ok := util.TrimEmptyCheck(kv.Name)
		if !ok {
			continue
		}
		val := kv.Value
		if val == "" && strings.TrimSpace(kv.ValueFromEnv) != "" {
			val = os.Getenv(kv.ValueFromEnv)
			if val == "" {
				common.LogWarn("env variable requested but empty or not set", "name", name, "env_var", kv.ValueFromEnv)
			}
		}
		if err := base.SetString("global", name, val); err != nil {
			return nil, err
		}
	}
	return base, nil
}

// DecodeAuth installs every auth[] entry in e as a lazily acquired credential.
func (c *ConfigDoc) DecodeAuth(ctx context.Context, e *env.Env) error {
	for i, a := range c.Auth {
		if strings.TrimSpace(a.Type) == "" {
			return fmt.Errorf("auth[%d]: missing type", i)
		}
	}
	return auth.Install(ctx, e, c.Auth)
}

// TesterConfig maps the document onto a harness configuration.
func (c *ConfigDoc) TesterConfig() (cgirun.Config, error) {
	cfg := cgirun.Config{
		Interpreter:     util.TrimWithDefault(c.Interpreter, constants.DefaultInterpreter),
		DocumentRoot:    strings.TrimSpace(c.DocumentRoot),
		IncludePath:     strings.TrimSpace(c.IncludePath),
		PHPOptions:      c.PHPOptions,
		TempDir:         strings.TrimSpace(c.TempDir),
		SessionSavePath: strings.TrimSpace(c.SessionSavePath),
		CleanEnv:        c.CleanEnv,
	}
	if ts, ok := util.TrimEmptyCheck(c.Timeout); ok {
		d, err := time.ParseDuration(ts)
		if err != nil {
			return cgirun.Config{}, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// NewTester builds a harness and seeds it with cgi_env.
func (c *ConfigDoc) NewTester() (*cgirun.Tester, error) {
	cfg, err := c.TesterConfig()
	if err != nil {
		return nil, err
	}
	t := cgirun.New(cfg)
	if len(c.CGIEnv) > 0 {
		if err := t.SetEnv(c.CGIEnv); err != nil {
			_ = t.Close()
			return nil, err
		}
	}
	return t, nil
}

// DelayDuration parses Delay; empty means no delay.
func (c *ConfigDoc) DelayDuration() (time.Duration, error) {
	ds, ok := util.TrimEmptyCheck(c.Delay)
	if !ok {
		return 0, nil
	}
	d, err := time.ParseDuration(ds)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q: %w", c.Delay, err)
	}
	return d, nil
}

// StoreOptions returns nil when the store is disabled. An unset type
// selects sqlite with a database file under dir.
func (c *StoreConfig) StoreOptions(dir string) *store.Config {
	if c.Disabled {
		return nil
	}
	out := &store.Config{Driver: util.TrimWithDefault(c.Type, store.DriverSqlite), TablePrefix: c.TablePrefix}
	switch util.TrimAndLower(out.Driver) {
	case "postgres", "postgresql", "pg":
		pg := c.Postgres
		out.DriverConfig = &pg
	default:
		path := strings.TrimSpace(c.SQLite.Path)
		if path == "" {
			path = filepath.Join(dir, constants.DefaultStoreFileName)
		}
		out.DriverConfig = &store.SqliteConfig{Path: path}
	}
	return out
}

func (c *ConfigDoc) parseLogLevel() (cgirun.LogLevel, error) {
	switch util.TrimAndLower(c.Logging.Level) {
	case "error":
		return cgirun.LogLevelError, nil
	case "warn", "warning":
		return cgirun.LogLevelWarn, nil
	case "info", "":
		return cgirun.LogLevelInfo, nil
	case "debug":
		return cgirun.LogLevelDebug, nil
	default:
		return cgirun.LogLevelInfo, fmt.Errorf("invalid logging level: %s (valid: error, warn, info, debug)", c.Logging.Level)
	}
}

// SetupLogging configures the global logger based on config settings
func (c *ConfigDoc) SetupLogging() error {
	level, err := c.parseLogLevel()
	if err != nil {
		return err
	}

	format := util.TrimAndLower(c.Logging.Format)
	useColor := false
	if c.Logging.Color != nil {
		useColor = *c.Logging.Color
	} else if format == "color" || format == "colour" {
		useColor = true
	}

	var logger *cgirun.Logger
	switch format {
	case "json":
		logger = cgirun.NewJSONLogger(level)
	case "color", "colour":
		logger = cgirun.NewColorLogger(level)
	case "text", "":
		if useColor {
			logger = cgirun.NewColorLogger(level)
		} else {
			logger = cgirun.NewLogger(level)
		}
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json, color)", c.Logging.Format)
	}

	masking := true
	if c.Logging.MaskSensitive != nil {
		masking = *c.Logging.MaskSensitive
	}
	cgirun.SetDefaultLogger(logger)
	cgirun.EnableMasking(masking)

	logger.Debug("logging configured", "level", level.String(), "format", format, "color", useColor, "mask_sensitive", masking)
	return nil
}
