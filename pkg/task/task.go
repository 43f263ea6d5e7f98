// Package task describes scenario files: named request steps with response
// expectations, executed against a harness.
package task

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/pkg/env"
)

// Task is one scenario file.
type Task struct {
	Name string `yaml:"name" json:"name"`
	// Env holds defaults local to this scenario.
	Env   env.Vars `yaml:"env" json:"-"`
	Steps []Step   `yaml:"steps" json:"steps"`
}

// Step is a single request with its expectations.
type Step struct {
	Name     string       `yaml:"name" json:"name"`
	Request  RequestSpec  `yaml:"request" json:"request"`
	Response ResponseSpec `yaml:"response" json:"response"`
}

// Decode parses a scenario document.
func Decode(b []byte) (*Task, error) {
	var t Task
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if len(t.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", t.Name)
	}
	return &t, nil
}

// LoadFile reads and parses a scenario file.
func LoadFile(path string) (*Task, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Execute runs one step: render the request, send it, validate status and
// body, then extract env. A validation failure still returns the result.
func (s Step) Execute(ctx context.Context, d Doer, e *env.Env, baseDir string) (*ExecResult, error) {
	logger := common.GetLogger().WithComponent("task")
	logger.Debug("executing step", "name", s.Name, "method", s.Request.Method, "script", s.Request.Script)

	spec, err := s.Request.Build(ctx, d, e, baseDir)
	if err != nil {
		logger.Error("failed to build request", "name", s.Name, "error", err)
		return nil, fmt.Errorf("step %q: %w", s.Name, err)
	}
	resp, err := d.Do(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.Name, err)
	}

	res := &ExecResult{
		Name:         s.Name,
		Method:       spec.Method,
		Script:       spec.Script,
		StatusCode:   resp.StatusCode,
		ExtractedEnv: map[string]string{},
		ResponseBody: string(resp.Body),
		Headers:      resp.Headers,
	}
	if err := s.Response.ValidateStatus(resp.StatusCode, e); err != nil {
		logger.Warn("response status validation failed", "name", s.Name, "status", resp.StatusCode, "error", err)
		return res, fmt.Errorf("step %q: %w", s.Name, err)
	}
	if err := s.Response.ValidateBody(resp.Body, e); err != nil {
		logger.Warn("response body validation failed", "name", s.Name, "error", err)
		return res, fmt.Errorf("step %q: %w", s.Name, err)
	}
	extracted, err := s.Response.ExtractEnv(resp)
	res.ExtractedEnv = extracted
	if err != nil {
		return res, fmt.Errorf("step %q: %w", s.Name, err)
	}
	return res, nil
}

// Execute runs the steps in order on a copy of base. Task env is applied as
// the local layer and values extracted by a step are visible to the next
// ones. It stops at the first failing step and returns the results so far,
// the last one carrying the error.
func (t *Task) Execute(ctx context.Context, d Doer, base *env.Env, baseDir string) ([]*ExecResult, error) {
	e := base.Clone()
	t.Env.Each(func(k, v string) {
		_ = e.SetString("local", k, e.RenderGoTemplate(v))
	})

	results := make([]*ExecResult, 0, len(t.Steps))
	for i, step := range t.Steps {
		if step.Name == "" {
			step.Name = fmt.Sprintf("%s#%d", t.Name, i+1)
		}
		res, err := step.Execute(ctx, d, e, baseDir)
		if err != nil {
			if res == nil {
				res = &ExecResult{Name: step.Name, Method: step.Request.Method, Script: step.Request.Script, ExtractedEnv: map[string]string{}}
			}
			res.Err = err
			return append(results, res), err
		}
		results = append(results, res)
		for k, v := range res.ExtractedEnv {
			_ = e.SetString("local", k, v)
		}
	}
	return results, nil
}

// Extracted merges the env extracted by every result, later steps winning.
func Extracted(results []*ExecResult) map[string]string {
	out := map[string]string{}
	for _, r := range results {
		for k, v := range r.ExtractedEnv {
			out[k] = v
		}
	}
	return out
}
