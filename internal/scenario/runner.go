// Package scenario runs a directory of versioned scenario files against a
// harness and keeps their history.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/internal/store"
	"github.com/loykin/cgirun/pkg/env"
	"github.com/loykin/cgirun/pkg/task"
)

// Runner executes NNN_name.yaml files from Dir in version order.
type Runner struct {
	Dir  string
	Doer task.Doer
	// Env is the base environment; each file runs on a clone of it.
	Env *env.Env
	// Store is optional. When set, every step is recorded and extracted env
	// is persisted per version and fed to later runs.
	Store            *store.Store
	SaveResponseBody bool
	// Delay is the pause between two scenario files.
	Delay time.Duration
}

// Result is the outcome of one scenario file.
type Result struct {
	Version int
	File    string
	Name    string
	Steps   []*task.ExecResult
}

// Failed reports whether a step of the scenario failed.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Run executes the scenarios with from <= version <= to (to <= 0: no upper
// bound). It stops at the first failing scenario and returns the results so far.
func (r *Runner) Run(ctx context.Context, from, to int) ([]*Result, error) {
	if r.Doer == nil {
		return nil, fmt.Errorf("scenario runner has no harness")
	}
	files, err := listScenarioFiles(r.Dir)
	if err != nil {
		return nil, err
	}
	plan := planRange(files, from, to)
	logger := common.GetLogger().WithComponent("scenario")
	logger.Info("running scenarios", "dir", r.Dir, "count", len(plan), "from", from, "to", to)

	base := r.Env
	if base == nil {
		base = env.New()
	}
	carried := map[string]string{}
	if r.Store != nil {
		stored, err := r.Store.LoadAllStoredEnv()
		if err != nil {
			logger.Warn("failed to load stored env", "error", err)
		}
		for k, v := range stored {
			carried[k] = v
		}
	}

	results := make([]*Result, 0, len(plan))
	for i, f := range plan {
		if i > 0 && r.Delay > 0 {
			if err := sleep(ctx, r.Delay); err != nil {
				return results, err
			}
		}
		res, err := r.runFile(ctx, f, base, carried)
		if res != nil {
			results = append(results, res)
			for k, v := range task.Extracted(res.Steps) {
				carried[k] = v
			}
		}
		if err != nil {
			return results, fmt.Errorf("scenario %s failed: %w", f.name, err)
		}
	}
	return results, nil
}

func (r *Runner) runFile(ctx context.Context, f vfile, base *env.Env, carried map[string]string) (*Result, error) {
	t, err := task.LoadFile(f.path)
	if err != nil {
		return nil, err
	}
	name := t.Name
	if name == "" {
		name = f.label()
	}
	logger := common.GetLogger().WithScenario(name, f.version)

	e := base.Clone()
	for k, v := range carried {
		if err := e.SetString("local", k, v); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	steps, runErr := t.Execute(ctx, r.Doer, e, r.Dir)
	res := &Result{Version: f.version, File: f.name, Name: name, Steps: steps}
	if runErr != nil {
		logger.Error("scenario failed", "error", runErr, "steps", len(steps))
	} else {
		logger.Info("scenario passed", "steps", len(steps), "duration", time.Since(start))
	}

	if r.Store != nil {
		r.record(ctx, res)
	}
	return res, runErr
}

// record writes the steps and extracted env of res. Store failures are
// logged and do not fail the scenario.
func (r *Runner) record(ctx context.Context, res *Result) {
	logger := common.GetLogger().WithScenario(res.Name, res.Version).WithStore(r.Store.Driver())
	for _, s := range res.Steps {
		run := store.Run{
			Scenario:   res.Name,
			Version:    res.Version,
			Step:       s.Name,
			Method:     s.Method,
			Script:     s.Script,
			StatusCode: s.StatusCode,
			Env:        s.ExtractedEnv,
			Failed:     s.Err != nil,
		}
		if r.SaveResponseBody {
			body := s.ResponseBody
			run.Body = &body
		}
		if err := r.Store.RecordRun(ctx, run); err != nil {
			logger.Warn("failed to record run", "step", s.Name, "error", err)
		}
	}
	if extracted := task.Extracted(res.Steps); len(extracted) > 0 {
		if err := r.Store.InsertStoredEnv(ctx, res.Version, extracted); err != nil {
			logger.Warn("failed to store extracted env", "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
