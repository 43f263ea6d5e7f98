// Package response turns CGI interpreter output into a plain HTTP response.
package response

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loykin/cgirun/internal/errs"
)

// ErrMalformedResponse reports output that is not a parsable HTTP message.
var ErrMalformedResponse = errs.ErrResponseFormat

var errBadStatus = errors.New("bad status")

// Header is one header field; Response keeps them in arrival order.
type Header struct {
	Name  string
	Value string
}

// Response is the (status, headers, body) triple of one simulated request.
type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Headers    []Header
	Body       []byte
}

// FromCGI normalizes raw interpreter output and parses it.
func FromCGI(raw []byte) (*Response, error) {
	return Parse(NormalizeStatusLine(raw))
}

// Parse reads a status line, a header block and the body. Lines may end in
// CRLF or LF; continuation lines are folded into the previous header. The
// body is every byte after the blank separator line.
func Parse(msg []byte) (*Response, error) {
	rest := msg
	line, rest, ok := nextLine(rest)
	if !ok {
		return nil, fmt.Errorf("%w: no header/body separator", ErrMalformedResponse)
	}
	r := &Response{}
	if err := r.parseStatusLine(line); err != nil {
		return nil, err
	}
	for {
		line, rest, ok = nextLine(rest)
		if !ok {
			return nil, fmt.Errorf("%w: no header/body separator", ErrMalformedResponse)
		}
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(r.Headers) == 0 {
				return nil, fmt.Errorf("%w: continuation line before any header", ErrMalformedResponse)
			}
			h := &r.Headers[len(r.Headers)-1]
			h.Value = strings.TrimSpace(h.Value + " " + strings.TrimSpace(line))
			continue
		}
		name, value, found := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf("%w: header line %q has no field name", ErrMalformedResponse, line)
		}
		r.Headers = append(r.Headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}
	r.Body = append([]byte{}, rest...)
	return r, nil
}

// nextLine splits off one LF terminated line, dropping a trailing CR. ok is
// false when no terminator is left.
func nextLine(b []byte) (string, []byte, bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return "", b, false
	}
	return strings.TrimSuffix(string(b[:i]), "\r"), b[i+1:], true
}

func (r *Response) parseStatusLine(line string) error {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return fmt.Errorf("%w: bad status line %q", ErrMalformedResponse, line)
	}
	codeStr, reason, _ := strings.Cut(strings.TrimSpace(rest), " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return fmt.Errorf("%w: bad status code in %q", ErrMalformedResponse, line)
	}
	r.Proto = proto
	r.StatusCode = code
	r.Reason = strings.TrimSpace(reason)
	return nil
}

// Status returns "404 Not Found" style text.
func (r *Response) Status() string {
	return strings.TrimSpace(strconv.Itoa(r.StatusCode) + " " + r.Reason)
}

// Header returns the first value of name, case-insensitively.
func (r *Response) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Values returns every value of name in arrival order.
func (r *Response) Values(name string) []string {
	var out []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// HTTPHeader converts the headers to an http.Header.
func (r *Response) HTTPHeader() http.Header {
	hdr := make(http.Header, len(r.Headers))
	for _, h := range r.Headers {
		hdr.Add(h.Name, h.Value)
	}
	return hdr
}

// ContentType returns the Content-Type header value.
func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

// Cookies parses the Set-Cookie headers.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.HTTPHeader()}).Cookies()
}

// JSON queries the body with a gjson path.
func (r *Response) JSON(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// HTTPResponse builds an *http.Response for matchers that expect one.
func (r *Response) HTTPResponse() *http.Response {
	major, minor, ok := http.ParseHTTPVersion(r.Proto)
	if !ok {
		major, minor = 1, 1
	}
	return &http.Response{
		Status:        r.Status(),
		StatusCode:    r.StatusCode,
		Proto:         r.Proto,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        r.HTTPHeader(),
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
	}
}
