package postgresql

import (
	"fmt"
	"net/url"

	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/util"
)

// Config describes a postgres connection either as a DSN or as fields.
type Config struct {
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// ToMap prefers an explicit DSN and otherwise builds one when Host is set.
func (p *Config) ToMap() map[string]interface{} {
	dsn, hasDSN := util.TrimEmptyCheck(p.DSN)
	host, hasHost := util.TrimEmptyCheck(p.Host)
	if !hasDSN && hasHost {
		port := p.Port
		if port == 0 {
			port = constants.DefaultPostgresPort
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(p.User, p.Password),
			Host:     fmt.Sprintf("%s:%d", host, port),
			Path:     "/" + p.DBName,
			RawQuery: "sslmode=" + url.QueryEscape(util.TrimWithDefault(p.SSLMode, constants.DefaultPostgresSSLMode)),
		}
		dsn = u.String()
	}
	return map[string]interface{}{
		"dsn": dsn,
	}
}
