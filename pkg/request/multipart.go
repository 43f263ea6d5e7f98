package request

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/loykin/cgirun/internal/constants"
	"github.com/loykin/cgirun/internal/errs"
)

// FilePart is one uploaded file of a multipart body.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Content     []byte
}

// FileFromPath reads path into a FilePart. An empty filename defaults to the
// base name of path.
func FileFromPath(field, path, filename, contentType string) (FilePart, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FilePart{}, fmt.Errorf("%w: read %s: %v", errs.ErrEncoding, path, err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	return FilePart{Field: field, Filename: filename, ContentType: contentType, Content: b}, nil
}

func (f FilePart) validate() error {
	if strings.TrimSpace(f.Field) == "" {
		return fmt.Errorf("%w: file part %q has no field name", errs.ErrEncoding, f.Filename)
	}
	if strings.TrimSpace(f.Filename) == "" {
		return fmt.Errorf("%w: file part for field %q has no filename", errs.ErrEncoding, f.Field)
	}
	return nil
}

// NewBoundary returns a random boundary that occurs in none of the parameter
// values or file contents.
func NewBoundary(params Params, files []FilePart) string {
	for {
		b := "cgirun-" + strings.ReplaceAll(uuid.NewString(), "-", "")
		if !collides(b, params, files) {
			return b
		}
	}
}

func collides(boundary string, params Params, files []FilePart) bool {
	for _, kv := range params {
		if strings.Contains(kv.Name, boundary) || strings.Contains(kv.Value, boundary) {
			return true
		}
	}
	bb := []byte(boundary)
	for _, f := range files {
		if bytes.Contains(f.Content, bb) {
			return true
		}
	}
	return false
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// EncodeMultipart serializes params then files as multipart/form-data
// delimited by boundary, each group in list order. No params and no files
// encode to an empty body.
func EncodeMultipart(params Params, files []FilePart, boundary string) ([]byte, error) {
	if len(params) == 0 && len(files) == 0 {
		return nil, nil
	}
	for _, f := range files {
		if err := f.validate(); err != nil {
			return nil, err
		}
	}
	if collides(boundary, params, files) {
		return nil, fmt.Errorf("%w: boundary %q occurs in the payload", errs.ErrEncoding, boundary)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
	}
	for _, kv := range params {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(kv.Name)))
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
		}
		if _, err := pw.Write([]byte(kv.Value)); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
		}
	}
	for _, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = constants.ContentTypeOctet
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		h.Set("Content-Type", ct)
		pw, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
		}
		if _, err := pw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrEncoding, err)
	}
	return buf.Bytes(), nil
}
