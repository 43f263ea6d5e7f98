package constants

import (
	"net/http"
	"time"
)

// Interpreter defaults
const (
	DefaultInterpreter  = "php-cgi"
	DefaultDocumentRoot = "/"
	DefaultIncludePath  = ".:/usr/share/pear:/usr/share/php"

	// DefaultTimeout bounds a single interpreter run when the caller context has no deadline.
	DefaultTimeout = 30 * time.Second
	// DefaultWaitDelay is how long to wait for output pipes after the child was killed.
	DefaultWaitDelay = 2 * time.Second

	TempFilePattern = "cgirun-*.body"
)

// CGI/1.1 environment
const (
	EnvScriptFilename = "SCRIPT_FILENAME"
	EnvRequestMethod  = "REQUEST_METHOD"
	EnvContentType    = "CONTENT_TYPE"
	EnvContentLength  = "CONTENT_LENGTH"
	EnvRedirectStatus = "REDIRECT_STATUS"
	EnvQueryString    = "QUERY_STRING"
	EnvHTTPCookie     = "HTTP_COOKIE"
	EnvAuthorization  = "HTTP_AUTHORIZATION"

	// php-cgi refuses to run scripts unless REDIRECT_STATUS is set (cgi.force_redirect).
	DefaultRedirectStatus = "CGI"

	ContentTypeForm      = "application/x-www-form-urlencoded"
	ContentTypeMultipart = "multipart/form-data"
	ContentTypeOctet     = "application/octet-stream"
)

// Response defaults
const (
	DefaultProto      = "HTTP/1.1"
	DefaultStatusCode = http.StatusOK
	StatusHeader      = "Status"
)

// Session defaults
const (
	DefaultSessionName   = "PHPSESSID"
	SessionFilePrefix    = "sess_"
	SessionSavePathParam = "session.save_path"
	IncludePathParam     = "include_path"
)

// Store defaults
const (
	DefaultStoreFileName  = "cgirun.db"
	DefaultRunsTable      = "cgirun_runs"
	DefaultStoredEnvTable = "cgirun_stored_env"
	RunsSuffix            = "_runs"
	StoredEnvSuffix       = "_stored_env"

	DefaultPostgresPort    = 5432
	DefaultPostgresSSLMode = "disable"

	DefaultPostgresMaxConnections = 25
	DefaultPostgresMaxIdleConns   = 5
	DefaultSQLiteMaxConnections   = 1 // SQLite allows only one writer
	DefaultSQLiteMaxIdleConns     = 1

	DefaultMaxConnLifetime = 5 * time.Minute
	DefaultMaxIdleTime     = 1 * time.Minute
	DefaultSQLiteLifetime  = 10 * time.Minute
	DefaultSQLiteIdleTime  = 5 * time.Minute
)

// Scenario defaults
const (
	DefaultScenarioDir = "./scenarios"
	DefaultConfigPath  = "./config/cgirun.yaml"
	EnvPrefix          = "CGIRUN"
)
