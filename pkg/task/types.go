package task

import (
	"context"

	"github.com/loykin/cgirun/internal/session"
	"github.com/loykin/cgirun/pkg/request"
	"github.com/loykin/cgirun/pkg/response"
)

// Doer runs simulated requests; *cgirun.Tester implements it.
type Doer interface {
	Do(ctx context.Context, spec *request.Spec) (*response.Response, error)
	NewSession(values map[string]string, name string) (*session.Session, error)
}

// FileSpec is an uploaded file given either by Path (relative to the
// scenario file) or inline Content.
type FileSpec struct {
	Field    string `yaml:"field" json:"field"`
	Filename string `yaml:"filename" json:"filename"`
	Type     string `yaml:"type" json:"type"`
	Path     string `yaml:"path" json:"path"`
	Content  string `yaml:"content" json:"content"`
}

// SessionSpec creates a session sent with one step.
type SessionSpec struct {
	Name   string            `yaml:"name" json:"name"`
	Values map[string]string `yaml:"values" json:"values"`
}

// ExecResult contains the outcome of one step.
type ExecResult struct {
	Name       string
	Method     string
	Script     string
	StatusCode int
	// ExtractedEnv holds variables read from the response per env_from.
	ExtractedEnv map[string]string
	ResponseBody string
	Headers      []response.Header
	// Err is set on the step that stopped the scenario.
	Err error
}
