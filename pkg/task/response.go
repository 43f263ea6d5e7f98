package task

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loykin/cgirun/pkg/env"
	"github.com/loykin/cgirun/pkg/response"
)

// headerPrefix marks env_from entries read from a response header instead of the JSON body.
const headerPrefix = "header:"

type ResponseSpec struct {
	// ResultCode entries may be integers or go-template strings (e.g., {{.env.code}}).
	ResultCode []string `yaml:"result_code" json:"result_code"`
	// BodyContains lists substrings the body must contain.
	BodyContains []string          `yaml:"body_contains" json:"body_contains"`
	EnvFrom      map[string]string `yaml:"env_from" json:"env_from"`
	// EnvMissing is "skip" (default) or "fail" when an env_from entry is absent.
	EnvMissing string `yaml:"env_missing" json:"env_missing"`
}

// AllowedStatus renders ResultCode against e and returns the set of allowed codes.
func (r ResponseSpec) AllowedStatus(e *env.Env) map[int]struct{} {
	allowed := map[int]struct{}{}
	for _, c := range r.ResultCode {
		rendered := strings.TrimSpace(e.RenderGoTemplate(c))
		if n, err := strconv.Atoi(rendered); err == nil {
			allowed[n] = struct{}{}
		}
	}
	return allowed
}

// ValidateStatus checks status against ResultCode. No ResultCode accepts every status.
func (r ResponseSpec) ValidateStatus(status int, e *env.Env) error {
	allowed := r.AllowedStatus(e)
	if len(allowed) == 0 {
		return nil
	}
	if _, ok := allowed[status]; !ok {
		return fmt.Errorf("status %d not in allowed set", status)
	}
	return nil
}

// ValidateBody checks every BodyContains entry, rendered against e.
func (r ResponseSpec) ValidateBody(body []byte, e *env.Env) error {
	s := string(body)
	for _, want := range r.BodyContains {
		w := e.RenderGoTemplate(want)
		if !strings.Contains(s, w) {
			return fmt.Errorf("body does not contain %q", w)
		}
	}
	return nil
}

// ExtractEnv reads variables from the response: "header:Name" entries from
// headers, everything else as a gjson path over the body. Missing entries
// are skipped unless EnvMissing is "fail"; values found are returned either way.
func (r ResponseSpec) ExtractEnv(resp *response.Response) (map[string]string, error) {
	extracted := map[string]string{}
	if len(r.EnvFrom) == 0 || resp == nil {
		return extracted, nil
	}
	fail := strings.EqualFold(strings.TrimSpace(r.EnvMissing), "fail")

	var parsed gjson.Result
	if gjson.ValidBytes(resp.Body) {
		parsed = gjson.ParseBytes(resp.Body)
	}
	var missing []string
	for key, path := range r.EnvFrom {
		p := strings.TrimSpace(path)
		if p == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(p), headerPrefix) {
			name := strings.TrimSpace(p[len(headerPrefix):])
			if vals := resp.Values(name); len(vals) > 0 {
				extracted[key] = vals[0]
			} else {
				missing = append(missing, key)
			}
			continue
		}
		res := parsed.Get(p)
		if !res.Exists() {
			missing = append(missing, key)
			continue
		}
		extracted[key] = resultString(res)
	}
	if fail && len(missing) > 0 {
		sort.Strings(missing)
		return extracted, fmt.Errorf("missing env_from for %s", strings.Join(missing, ", "))
	}
	return extracted, nil
}

// resultString keeps numbers as written in the body and objects or arrays
// as raw JSON.
func resultString(res gjson.Result) string {
	if res.IsObject() || res.IsArray() {
		return res.Raw
	}
	return res.String()
}
