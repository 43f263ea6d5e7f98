package response

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/loykin/cgirun/internal/constants"
)

// NormalizeStatusLine prepends an HTTP status line to raw CGI output. When
// the first line is a Status header its code and reason are used, otherwise
// the line is HTTP/1.1 200 OK. An unparsable Status value is copied as is,
// so Parse rejects the result. The output itself is kept untouched, so the
// Status header stays in the header block.
func NormalizeStatusLine(raw []byte) []byte {
	line := statusLine(firstLine(raw))
	out := make([]byte, 0, len(line)+2+len(raw))
	out = append(out, line...)
	out = append(out, '\r', '\n')
	return append(out, raw...)
}

func firstLine(raw []byte) string {
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(string(raw), "\r")
}

func statusLine(first string) string {
	def := constants.DefaultProto + " " + strconv.Itoa(constants.DefaultStatusCode) + " " + http.StatusText(constants.DefaultStatusCode)
	name, value, ok := strings.Cut(first, ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(name), constants.StatusHeader) {
		return def
	}
	code, reason, err := parseStatusValue(value)
	if err != nil {
		return constants.DefaultProto + " " + strings.TrimSpace(value)
	}
	return constants.DefaultProto + " " + strconv.Itoa(code) + " " + reason
}

// parseStatusValue reads "404 Not Found" or "404".
func parseStatusValue(v string) (int, string, error) {
	v = strings.TrimSpace(v)
	codeStr, reason, _ := strings.Cut(v, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil || code < 100 || code > 999 {
		return 0, "", errBadStatus
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = http.StatusText(code)
	}
	return code, reason, nil
}
