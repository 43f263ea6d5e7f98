package cgirun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/cgirun/internal/common"
	"github.com/loykin/cgirun/pkg/request"
)

// echoStub prints the CGI variables it received followed by its stdin.
const echoStub = `printf 'Content-Type: text/plain\r\nX-Args: %s\r\n\r\n' "$*"
printf 'method=%s\n' "$REQUEST_METHOD"
printf 'script=%s\n' "$SCRIPT_FILENAME"
printf 'query=%s\n' "$QUERY_STRING"
printf 'ctype=%s\n' "$CONTENT_TYPE"
printf 'clen=%s\n' "$CONTENT_LENGTH"
printf 'redirect=%s\n' "$REDIRECT_STATUS"
printf 'cookie=%s\n' "$HTTP_COOKIE"
printf 'custom=%s\n' "$HTTP_X_CUSTOM"
printf 'body='
cat
`

func writeStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a unix shell")
	}
	path := filepath.Join(t.TempDir(), "php-cgi-stub")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func newTester(t *testing.T, script string) *Tester {
	t.Helper()
	tr := New(Config{
		Interpreter:  writeStub(t, script),
		DocumentRoot: "/srv/www",
		TempDir:      t.TempDir(),
		CleanEnv:     true,
		Logger:       common.NewLoggerTo(&bytes.Buffer{}, common.LogLevelError),
	})
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// fields parses the key=value lines printed by echoStub.
func fields(body []byte) map[string]string {
	out := map[string]string{}
	text := string(body)
	if i := strings.Index(text, "body="); i >= 0 {
		out["body"] = text[i+len("body="):]
		text = text[:i]
	}
	for _, line := range strings.Split(text, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			out[k] = v
		}
	}
	return out
}

func TestTester_GetQueryString(t *testing.T) {
	tr := newTester(t, echoStub)
	params := P("q", "a b&c", "page", "2")

	resp, err := tr.Get(context.Background(), "/search.php", params, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.ContentType())

	f := fields(resp.Body)
	assert.Equal(t, request.EncodeURLEncoded(params), f["query"])
	assert.Equal(t, "GET", f["method"])
	assert.Equal(t, "/srv/www/search.php", f["script"])
	assert.Equal(t, "CGI", f["redirect"])
	assert.Equal(t, "0", f["clen"])
	assert.Equal(t, "application/x-www-form-urlencoded", f["ctype"])
	assert.Equal(t, "", f["body"])
	assert.Equal(t, "-d include_path=.:/usr/share/pear:/usr/share/php", resp.Header("X-Args"))
}

func TestTester_PostURLEncoded(t *testing.T) {
	tr := newTester(t, echoStub)
	resp, err := tr.Post(context.Background(), "/login.php", P("user", "alice", "pass", "s3cret"), map[string]string{"HTTP_X_CUSTOM": "yes"}, nil)
	require.NoError(t, err)

	f := fields(resp.Body)
	assert.Equal(t, "POST", f["method"])
	assert.Equal(t, "user=alice&pass=s3cret", f["body"])
	assert.Equal(t, "22", f["clen"])
	assert.Equal(t, "", f["query"])
	assert.Equal(t, "yes", f["custom"])
}

func TestTester_PostMultipart(t *testing.T) {
	tr := newTester(t, echoStub)
	files := []FilePart{{Field: "avatar", Filename: "me.png", ContentType: "image/png", Content: []byte("\x89PNG")}}
	resp, err := tr.Post(context.Background(), "/upload.php", P("title", "hi"), nil, files)
	require.NoError(t, err)

	f := fields(resp.Body)
	mt, p, err := mime.ParseMediaType(f["ctype"])
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mt)
	assert.Equal(t, fmt.Sprint(len(f["body"])), f["clen"])

	r := multipart.NewReader(strings.NewReader(f["body"]), p["boundary"])
	part, err := r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "title", part.FormName())
	part, err = r.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "me.png", part.FileName())
}

func TestTester_StatusHeader(t *testing.T) {
	tr := newTester(t, `printf 'Status: 404 Not Found\r\nContent-Type: text/html\r\n\r\n<h1>missing</h1>'`)
	resp, err := tr.Get(context.Background(), "/nope.php", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "Not Found", resp.Reason)
	assert.Equal(t, "<h1>missing</h1>", string(resp.Body))
}

func TestTester_EnvIsAdditive(t *testing.T) {
	tr := newTester(t, echoStub)
	require.NoError(t, tr.SetEnv(map[string]string{"HTTP_X_CUSTOM": "from-setenv"}))

	resp, err := tr.Get(context.Background(), "/a.php", P("x", "1"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from-setenv", fields(resp.Body)["custom"])

	got, err := tr.GetEnv("REQUEST_METHOD", "QUERY_STRING", "HTTP_X_CUSTOM")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"REQUEST_METHOD": "GET", "QUERY_STRING": "x=1", "HTTP_X_CUSTOM": "from-setenv"}, got)

	// a later POST does not inherit the previous query string
	resp, err = tr.Post(context.Background(), "/a.php", nil, map[string]string{"HTTP_X_CUSTOM": "override"}, nil)
	require.NoError(t, err)
	f := fields(resp.Body)
	assert.Equal(t, "", f["query"])
	assert.Equal(t, "override", f["custom"])

	_, err = tr.GetEnv("QUERY_STRING")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, tr.EnvString(), tr.EnvString())
	assert.Contains(t, tr.EnvString(), "HTTP_X_CUSTOM='override'")
}

func TestTester_Sessions(t *testing.T) {
	tr := newTester(t, echoStub)
	s1, err := tr.SetSession(map[string]string{"uid": "7"}, "")
	require.NoError(t, err)
	s2, err := tr.SetSession(map[string]string{"role": "admin"}, "ADMIN")
	require.NoError(t, err)

	_, err = os.Stat(s1.Path)
	require.NoError(t, err)

	resp, err := tr.Get(context.Background(), "/me.php", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "PHPSESSID="+s1.ID+";ADMIN="+s2.ID, fields(resp.Body)["cookie"])
	assert.Contains(t, resp.Header("X-Args"), "-d session.save_path="+filepath.Dir(s1.Path))

	require.NoError(t, tr.InitializeSession("PHPSESSID"))
	_, err = os.Stat(s1.Path)
	assert.True(t, os.IsNotExist(err))
	cookie, err := tr.GetEnv("HTTP_COOKIE")
	require.NoError(t, err)
	assert.Equal(t, "ADMIN="+s2.ID, cookie["HTTP_COOKIE"])

	require.NoError(t, tr.InitializeSession("ADMIN"))
	_, err = tr.GetEnv("HTTP_COOKIE")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	dir := filepath.Dir(s1.Path)
	require.NoError(t, tr.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestTester_PerRequestSession(t *testing.T) {
	tr := newTester(t, echoStub)
	sess, err := tr.NewSession(map[string]string{"uid": "1"}, "")
	require.NoError(t, err)

	resp, err := tr.Do(context.Background(), &RequestSpec{Method: "get", Script: "/me.php", Session: sess})
	require.NoError(t, err)
	assert.Equal(t, sess.Cookie(), fields(resp.Body)["cookie"])

	_, err = tr.GetEnv("HTTP_COOKIE")
	assert.ErrorIs(t, err, ErrKeyNotFound, "per-request sessions must not leak into the state")
}

func TestTester_DoLeavesSpecUntouched(t *testing.T) {
	tr := newTester(t, echoStub)
	spec := &RequestSpec{Method: "post", Script: "/form.php", Params: P("a", "1")}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := tr.Do(context.Background(), spec)
			if assert.NoError(t, err) {
				assert.Equal(t, "POST", fields(resp.Body)["method"])
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, "post", spec.Method)
}

func TestTester_ConfigAccessors(t *testing.T) {
	tr := New(Config{})
	assert.Equal(t, "/", tr.DocumentRoot())
	assert.Equal(t, ".:/usr/share/pear:/usr/share/php", tr.IncludePath())

	tr.SetIncludePath(".")
	tr.AddIncludePath("/opt/lib")
	tr.AddIncludePath(":/opt/more")
	assert.Equal(t, ".:/opt/lib:/opt/more", tr.IncludePath())

	opts := map[string]string{"display_errors": "1"}
	tr.SetPHPOptions(opts)
	opts["display_errors"] = "0"
	assert.Equal(t, map[string]string{"display_errors": "1"}, tr.PHPOptions())

	tr.SetDocumentRoot("/var/www")
	assert.Equal(t, "/var/www", tr.DocumentRoot())
}

func TestTester_PHPOptionsPassed(t *testing.T) {
	tr := newTester(t, echoStub)
	tr.SetIncludePath("/inc")
	tr.SetPHPOptions(map[string]string{"memory_limit": "64M", "display_errors": "stderr"})

	resp, err := tr.Get(context.Background(), "/a.php", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "-d include_path=/inc -d display_errors=stderr -d memory_limit=64M", resp.Header("X-Args"))
}

func TestTester_Errors(t *testing.T) {
	tr := newTester(t, echoStub)
	ctx := context.Background()

	_, err := tr.Get(ctx, "", nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = tr.Request(ctx, "BREW", "/a.php", nil, nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	tr.SetDocumentRoot("")
	_, err = tr.Get(ctx, "/a.php", nil, nil)
	assert.ErrorIs(t, err, ErrConfiguration)
	tr.SetDocumentRoot("/srv")

	_, err = tr.Post(ctx, "/a.php", nil, nil, []FilePart{{Filename: "x"}})
	assert.ErrorIs(t, err, ErrEncoding)

	failing := newTester(t, "echo boom >&2\nexit 255\n")
	_, err = failing.Get(ctx, "/a.php", nil, nil)
	assert.ErrorIs(t, err, ErrProcess)
	assert.ErrorIs(t, err, ErrExitStatus)
	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 255, perr.ExitCode)

	garbage := newTester(t, "printf 'no separator here'\n")
	_, err = garbage.Get(ctx, "/a.php", nil, nil)
	assert.ErrorIs(t, err, ErrResponseFormat)

	missing := New(Config{Interpreter: filepath.Join(t.TempDir(), "absent"), TempDir: t.TempDir(),
		Logger: common.NewLoggerTo(&bytes.Buffer{}, common.LogLevelError)})
	_, err = missing.Get(ctx, "/a.php", nil, nil)
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestTester_ConcurrentHarnesses(t *testing.T) {
	stub := writeStub(t, "printf 'Content-Type: text/plain\\r\\n\\r\\n'\ncat\n")
	tmp := t.TempDir()

	const n = 12
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr := New(Config{Interpreter: stub, TempDir: tmp, CleanEnv: true,
				Logger: common.NewLoggerTo(&bytes.Buffer{}, common.LogLevelError)})
			want := fmt.Sprintf("harness=%d", i)
			resp, err := tr.Post(context.Background(), "/echo.php", P("harness", fmt.Sprint(i)), nil, nil)
			if err != nil {
				errCh <- err
				return
			}
			if string(resp.Body) != want {
				errCh <- fmt.Errorf("harness %d got %q", i, resp.Body)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left, "temp body files must be removed")
}

func TestTester_SharedTesterConcurrentCalls(t *testing.T) {
	tr := newTester(t, echoStub)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := fmt.Sprint(i)
			resp, err := tr.Post(context.Background(), "/a.php", P("n", v), map[string]string{"HTTP_X_CUSTOM": v}, nil)
			if assert.NoError(t, err) {
				f := fields(resp.Body)
				assert.Equal(t, v, f["custom"])
				assert.Equal(t, "n="+v, f["body"])
			}
		}(i)
	}
	wg.Wait()
}
