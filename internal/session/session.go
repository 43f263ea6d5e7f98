// Package session writes PHP "files" handler sessions so a simulated request
// can arrive with an already populated $_SESSION.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/loykin/cgirun/internal/constants"
)

// Session identifies one session file.
type Session struct {
	Name   string
	ID     string
	Path   string
	Values map[string]string
}

// Cookie renders the name=id pair sent in HTTP_COOKIE.
func (s *Session) Cookie() string {
	if s == nil {
		return ""
	}
	return s.Name + "=" + s.ID
}

// Store creates and destroys session files under Dir.
type Store struct {
	Dir string

	mu       sync.Mutex
	sessions map[string][]*Session
}

// NewStore returns a store writing into dir. An empty dir uses the system temp dir.
func NewStore(dir string) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	return &Store{Dir: dir, sessions: map[string][]*Session{}}
}

// NewID returns a session id made of characters php accepts in any sid configuration.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create writes a new session file named sess_<id> holding values.
func (s *Store) Create(name string, values map[string]string) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		name = constants.DefaultSessionName
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	id := NewID()
	path := filepath.Join(s.Dir, constants.SessionFilePrefix+id)
	if err := os.WriteFile(path, Encode(values), 0o600); err != nil {
		return nil, fmt.Errorf("session: write %s: %w", path, err)
	}
	sess := &Session{Name: name, ID: id, Path: path, Values: copyValues(values)}

	s.mu.Lock()
	s.sessions[name] = append(s.sessions[name], sess)
	s.mu.Unlock()
	return sess, nil
}

// Load reads back the values of a session file.
func (s *Store) Load(id string) (map[string]string, error) {
	b, err := os.ReadFile(filepath.Join(s.Dir, constants.SessionFilePrefix+id))
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return Decode(b)
}

// Destroy removes every session created under name and returns them.
// Files already removed by the script (session_destroy) are ignored.
func (s *Store) Destroy(name string) ([]*Session, error) {
	s.mu.Lock()
	list := s.sessions[name]
	delete(s.sessions, name)
	s.mu.Unlock()

	for _, sess := range list {
		if err := os.Remove(sess.Path); err != nil && !os.IsNotExist(err) {
			return list, fmt.Errorf("session: remove %s: %w", sess.Path, err)
		}
	}
	return list, nil
}

// Sessions returns the live sessions created under name.
func (s *Store) Sessions(name string) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Session(nil), s.sessions[name]...)
}

func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Encode serializes values in the php session format (key|s:len:"value";),
// keys sorted.
func Encode(values map[string]string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := values[k]
		fmt.Fprintf(&b, "%s|s:%d:\"%s\";", k, len(v), v)
	}
	return []byte(b.String())
}

// Decode parses string entries written by Encode or by php itself.
// Non-string values are not supported.
func Decode(b []byte) (map[string]string, error) {
	out := map[string]string{}
	s := string(b)
	for len(s) > 0 {
		bar := strings.IndexByte(s, '|')
		if bar <= 0 {
			return nil, fmt.Errorf("session: missing key separator")
		}
		key := s[:bar]
		s = s[bar+1:]
		if !strings.HasPrefix(s, "s:") {
			return nil, fmt.Errorf("session: %q: only string values are supported", key)
		}
		s = s[2:]
		colon := strings.IndexByte(s, ':')
		if colon < 0 {
			return nil, fmt.Errorf("session: %q: missing length", key)
		}
		n, err := strconv.Atoi(s[:colon])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("session: %q: bad length %q", key, s[:colon])
		}
		s = s[colon+1:]
		// "value";
		if len(s) < n+3 || s[0] != '"' || s[n+1] != '"' || s[n+2] != ';' {
			return nil, fmt.Errorf("session: %q: truncated value", key)
		}
		out[key] = s[1 : n+1]
		s = s[n+3:]
	}
	return out, nil
}

// AppendCookie adds name=id to an existing cookie header value.
func AppendCookie(cookie string, sess *Session) string {
	if sess == nil {
		return cookie
	}
	if strings.TrimSpace(cookie) == "" {
		return sess.Cookie()
	}
	return cookie + ";" + sess.Cookie()
}

// RemoveCookie drops every pair named name from a cookie header value.
func RemoveCookie(cookie, name string) string {
	parts := strings.Split(cookie, ";")
	kept := parts[:0]
	for _, p := range parts {
		n, _, _ := strings.Cut(strings.TrimSpace(p), "=")
		if n == name || strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, ";")
}
