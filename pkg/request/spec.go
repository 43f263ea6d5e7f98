package request

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/errs"
	"github.com/loykin/cgirun/internal/session"
)

// Spec describes one simulated request. It is built per call and never
// shared between calls.
type Spec struct {
	Method string
	Script string
	Params Params
	// Options override the CGI variables composed for the call.
	Options map[string]string
	Files   []FilePart
	// Session, when set, is sent as a cookie for this call only.
	Session *session.Session
	// Timeout overrides the harness timeout for this call.
	Timeout time.Duration
}

// Body is the encoded request body with the CGI variables that describe it.
type Body struct {
	Data        []byte
	ContentType string
	// QueryString is only meaningful for GET.
	QueryString string
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

// Validate checks the method and the script path.
func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil request", errs.ErrConfiguration)
	}
	if strings.TrimSpace(s.Script) == "" {
		return fmt.Errorf("%w: empty script path", errs.ErrConfiguration)
	}
	if _, ok := allowedMethods[strings.ToUpper(s.Method)]; !ok {
		return fmt.Errorf("%w: unsupported method %q", errs.ErrConfiguration, s.Method)
	}
	return nil
}

// IsGet reports whether params travel in QUERY_STRING.
func (s *Spec) IsGet() bool {
	return strings.EqualFold(s.Method, http.MethodGet)
}

// Encode picks the body encoding: multipart when files are attached,
// urlencoded otherwise. GET requests carry their params in the query string
// and an empty body.
func (s *Spec) Encode() (Body, error) {
	if err := s.Validate(); err != nil {
		return Body{}, err
	}
	if s.IsGet() {
		if len(s.Files) > 0 {
			return Body{}, fmt.Errorf("%w: files cannot be sent with GET", errs.ErrEncoding)
		}
		return Body{ContentType: constants.ContentTypeForm, QueryString: EncodeURLEncoded(s.Params)}, nil
	}
	if len(s.Files) > 0 {
		boundary := NewBoundary(s.Params, s.Files)
		data, err := EncodeMultipart(s.Params, s.Files, boundary)
		if err != nil {
			return Body{}, err
		}
		return Body{Data: data, ContentType: constants.ContentTypeMultipart + "; boundary=" + boundary}, nil
	}
	return Body{Data: []byte(EncodeURLEncoded(s.Params)), ContentType: constants.ContentTypeForm}, nil
}
