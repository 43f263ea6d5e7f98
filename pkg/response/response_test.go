package response

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatusLine(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"status header", "Status: 404 Not Found\r\nContent-Type: text/html\r\n\r\nx", "HTTP/1.1 404 Not Found\r\nStatus: 404 Not Found\r\n"},
		{"no status", "Content-Type: text/html\r\n\r\nx", "HTTP/1.1 200 OK\r\nContent-Type: text/html"},
		{"code only", "Status: 302\r\nLocation: /\r\n\r\n", "HTTP/1.1 302 Found\r\n"},
		{"lowercase name", "status: 500 Boom\n\n", "HTTP/1.1 500 Boom\r\n"},
		{"bad code", "Status: abc\r\n\r\n", "HTTP/1.1 abc\r\n"},
		{"empty", "", "HTTP/1.1 200 OK\r\n"},
		{"status later", "X-A: 1\r\nStatus: 404\r\n\r\n", "HTTP/1.1 200 OK\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(NormalizeStatusLine([]byte(tt.raw)))
			assert.True(t, strings.HasPrefix(got, tt.want), "got %q", got)
			assert.True(t, strings.HasSuffix(got, tt.raw))
		})
	}
}

func TestParse_Basic(t *testing.T) {
	r, err := Parse([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, 200, r.StatusCode)
	assert.Equal(t, "OK", r.Reason)
	assert.Equal(t, "HTTP/1.1", r.Proto)
	assert.Equal(t, []Header{{Name: "Content-Type", Value: "text/html"}}, r.Headers)
	assert.Equal(t, "<html></html>", string(r.Body))
}

func TestParse_DuplicatesOrderFoldingAndLF(t *testing.T) {
	msg := "HTTP/1.1 201 Created\n" +
		"Set-Cookie: a=1\n" +
		"X-Long: first\n" +
		"\tsecond\n" +
		"Set-Cookie: b=2\n" +
		"\n" +
		"line1\r\n\r\nline3"
	r, err := Parse([]byte(msg))
	require.NoError(t, err)
	assert.Equal(t, 201, r.StatusCode)
	assert.Equal(t, []Header{
		{Name: "Set-Cookie", Value: "a=1"},
		{Name: "X-Long", Value: "first second"},
		{Name: "Set-Cookie", Value: "b=2"},
	}, r.Headers)
	assert.Equal(t, []string{"a=1", "b=2"}, r.Values("set-cookie"))
	assert.Equal(t, "line1\r\n\r\nline3", string(r.Body))

	cookies := r.Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "a", cookies[0].Name)
	assert.Equal(t, "2", cookies[1].Value)
}

func TestParse_Malformed(t *testing.T) {
	tests := map[string]string{
		"no separator":        "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n",
		"no newline at all":   "HTTP/1.1 200 OK",
		"bad proto":           "FTP 200 OK\r\n\r\n",
		"bad code":            "HTTP/1.1 2x OK\r\n\r\n",
		"header without name": "HTTP/1.1 200 OK\r\nnot a header\r\n\r\n",
		"leading fold":        "HTTP/1.1 200 OK\r\n folded\r\n\r\n",
	}
	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(msg))
			assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestFromCGI(t *testing.T) {
	raw := "Status: 404 Not Found\r\nX-Powered-By: PHP/8.2\r\nContent-type: application/json\r\n\r\n{\"error\":{\"code\":\"missing\"}}"
	r, err := FromCGI([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 404, r.StatusCode)
	assert.Equal(t, "Not Found", r.Reason)
	assert.Equal(t, "404 Not Found", r.Status())
	assert.Equal(t, "404 Not Found", r.Header("status"))
	assert.Equal(t, "application/json", r.ContentType())
	assert.Equal(t, "missing", r.JSON("error.code").String())
	assert.False(t, r.JSON("nope").Exists())
}

func TestFromCGI_UnparsableStatus(t *testing.T) {
	for _, raw := range []string{
		"Status: banana\r\nContent-Type: text/plain\r\n\r\nx",
		"Status: 42 Too Low\r\n\r\n",
		"Status:\r\n\r\n",
	} {
		r, err := FromCGI([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedResponse, "raw %q", raw)
		assert.Nil(t, r)
	}
}

func TestFromCGI_EmptyBody(t *testing.T) {
	r, err := FromCGI([]byte("Content-type: text/html; charset=UTF-8\r\n\r\n"))
	require.NoError(t, err)
	assert.Equal(t, 200, r.StatusCode)
	assert.Empty(t, r.Body)
}

func TestHTTPResponse(t *testing.T) {
	r := &Response{Proto: "HTTP/1.1", StatusCode: 302, Reason: "Found",
		Headers: []Header{{"Location", "/home"}}, Body: []byte("bye")}
	hr := r.HTTPResponse()
	assert.Equal(t, 302, hr.StatusCode)
	assert.Equal(t, "302 Found", hr.Status)
	assert.Equal(t, 1, hr.ProtoMajor)
	assert.Equal(t, "/home", hr.Header.Get("Location"))
	b, err := io.ReadAll(hr.Body)
	require.NoError(t, err)
	assert.Equal(t, "bye", string(b))
}
