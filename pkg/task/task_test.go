package task

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/cgirun/internal/session"
	"github.com/loykin/cgirun/pkg/env"
	"github.com/loykin/cgirun/pkg/request"
	"github.com/loykin/cgirun/pkg/response"
)

// fakeDoer records requests and answers with a canned response per script.
type fakeDoer struct {
	specs     []*request.Spec
	responses map[string]*response.Response
	sessions  []*session.Session
}

func (f *fakeDoer) Do(_ context.Context, spec *request.Spec) (*response.Response, error) {
	f.specs = append(f.specs, spec)
	if r, ok := f.responses[spec.Script]; ok {
		return r, nil
	}
	return nil, errors.New("no response for " + spec.Script)
}

func (f *fakeDoer) NewSession(values map[string]string, name string) (*session.Session, error) {
	s := &session.Session{Name: name, ID: "sid", Values: values}
	f.sessions = append(f.sessions, s)
	return s, nil
}

const scenario = `
name: login
env:
  user: alice
  greeting: "hi {{.env.site}}"
steps:
  - name: post login
    request:
      method: post
      script: /login.php
      auth_name: api
      params:
        - {name: user, value: "{{.env.user}}"}
        - {name: note, value: "{{.env.greeting}}"}
      options: {HTTP_X_TEST: "{{.env.user}}"}
      files:
        - {field: avatar, filename: a.txt, type: text/plain, path: ./a.txt}
        - {field: inline, filename: b.txt, content: "for {{.env.user}}"}
      session: {name: PHPSESSID, values: {uid: "7"}}
      timeout: 5s
    response:
      result_code: ["200", "{{.env.alt_code}}"]
      body_contains: ["Welcome {{.env.user}}"]
      env_from:
        token: data.token
        location: "header:Location"
  - name: profile
    request:
      script: "/profile.php"
      params:
        - {name: token, value: "{{.env.token}}"}
    response:
      result_code: [200]
`

func newEnv(t *testing.T) *env.Env {
	t.Helper()
	e := env.New()
	require.NoError(t, e.SetMap(map[string]string{"site": "example", "alt_code": "302"}))
	require.NoError(t, e.SetAuth("api", env.Str("Bearer abc")))
	return e
}

func TestTask_DecodeAndExecute(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("file-a"), 0o600))

	tk, err := Decode([]byte(scenario))
	require.NoError(t, err)
	assert.Equal(t, "login", tk.Name)
	assert.Equal(t, []string{"user", "greeting"}, tk.Env.Keys())

	d := &fakeDoer{responses: map[string]*response.Response{
		"/login.php": {StatusCode: 302, Headers: []response.Header{{Name: "Location", Value: "/home"}},
			Body: []byte(`{"msg":"Welcome alice","data":{"token":"T1"}}`)},
		"/profile.php": {StatusCode: 200, Body: []byte("ok")},
	}}

	base := newEnv(t)
	results, err := tk.Execute(context.Background(), d, base, dir)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := d.specs[0]
	assert.Equal(t, "POST", first.Method)
	assert.Equal(t, request.Params{{Name: "user", Value: "alice"}, {Name: "note", Value: "hi example"}}, first.Params)
	assert.Equal(t, "alice", first.Options["HTTP_X_TEST"])
	assert.Equal(t, "Bearer abc", first.Options["HTTP_AUTHORIZATION"])
	require.Len(t, first.Files, 2)
	assert.Equal(t, []byte("file-a"), first.Files[0].Content)
	assert.Equal(t, "for alice", string(first.Files[1].Content))
	require.NotNil(t, first.Session)
	assert.Equal(t, map[string]string{"uid": "7"}, d.sessions[0].Values)
	assert.Equal(t, "5s", first.Timeout.String())

	assert.Equal(t, map[string]string{"token": "T1", "location": "/home"}, results[0].ExtractedEnv)
	second := d.specs[1]
	assert.Equal(t, "GET", second.Method)
	assert.Equal(t, request.Params{{Name: "token", Value: "T1"}}, second.Params)

	assert.Equal(t, map[string]string{"token": "T1", "location": "/home"}, Extracted(results))
	_, leaked := base.Lookup("token")
	assert.False(t, leaked, "base env must not be modified")
}

func TestTask_StopsAtFirstFailure(t *testing.T) {
	tk, err := Decode([]byte(scenario))
	require.NoError(t, err)
	tk.Steps[0].Request.Files = nil

	d := &fakeDoer{responses: map[string]*response.Response{
		"/login.php": {StatusCode: 500, Body: []byte("boom")},
	}}
	results, err := tk.Execute(context.Background(), d, newEnv(t), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500 not in allowed set")
	require.Len(t, results, 1)
	assert.Equal(t, 500, results[0].StatusCode)
	assert.Equal(t, "POST", results[0].Method)
	assert.Error(t, results[0].Err)
	assert.Len(t, d.specs, 1)
}

func TestTask_FailedRequestYieldsResult(t *testing.T) {
	tk, err := Decode([]byte(scenario))
	require.NoError(t, err)
	tk.Steps[0].Request.Files = nil

	d := &fakeDoer{responses: map[string]*response.Response{
		"/login.php": {StatusCode: 200, Body: []byte(`{"msg":"Welcome alice","data":{"token":"T1"}}`)},
	}}
	results, err := tk.Execute(context.Background(), d, newEnv(t), "")
	require.Error(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "profile", results[1].Name)
	assert.Equal(t, "/profile.php", results[1].Script)
	assert.Equal(t, 0, results[1].StatusCode)
	assert.ErrorContains(t, results[1].Err, "no response for /profile.php")
}

func TestDecode_NoSteps(t *testing.T) {
	_, err := Decode([]byte("name: empty\n"))
	assert.Error(t, err)
}

func TestRequestSpec_AuthErrors(t *testing.T) {
	r := RequestSpec{Script: "/a.php", AuthName: "missing"}
	_, err := r.Build(context.Background(), &fakeDoer{}, env.New(), "")
	assert.ErrorIs(t, err, env.ErrKeyNotFound)

	r.Options = map[string]string{"HTTP_AUTHORIZATION": "explicit"}
	spec, err := r.Build(context.Background(), &fakeDoer{}, env.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "explicit", spec.Options["HTTP_AUTHORIZATION"])

	r = RequestSpec{Script: "{{.env.nope}}"}
	_, err = r.Build(context.Background(), &fakeDoer{}, env.New(), "")
	assert.Error(t, err)
}

func TestResponseSpec_ExtractEnv(t *testing.T) {
	resp := &response.Response{
		Headers: []response.Header{{Name: "X-Id", Value: "42"}},
		Body:    []byte(`{"n":3,"f":1.5,"b":true,"o":{"k":"v"},"s":"str"}`),
	}
	r := ResponseSpec{EnvFrom: map[string]string{
		"n": "n", "f": "f", "b": "b", "o": "o", "s": "s", "id": "header:x-id", "gone": "nope",
	}}
	got, err := r.ExtractEnv(resp)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"n": "3", "f": "1.5", "b": "true", "o": `{"k":"v"}`, "s": "str", "id": "42"}, got)

	r.EnvMissing = "fail"
	got, err = r.ExtractEnv(resp)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "gone"))
	assert.Equal(t, "42", got["id"])

	html := &response.Response{Body: []byte("<html>")}
	got, err = ResponseSpec{EnvFrom: map[string]string{"x": "x"}}.ExtractEnv(html)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResponseSpec_Validate(t *testing.T) {
	e := env.New()
	_ = e.SetString("global", "code", "201")
	r := ResponseSpec{ResultCode: []string{"200", "{{.env.code}}", "junk"}, BodyContains: []string{"id={{.env.code}}"}}
	assert.NoError(t, r.ValidateStatus(201, e))
	assert.Error(t, r.ValidateStatus(404, e))
	assert.NoError(t, ResponseSpec{}.ValidateStatus(599, e))
	assert.NoError(t, r.ValidateBody([]byte("created id=201"), e))
	assert.Error(t, r.ValidateBody([]byte("created"), e))
}
