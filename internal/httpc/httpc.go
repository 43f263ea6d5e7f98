// Package httpc builds the HTTP clients used by auth providers to reach
// login and token endpoints.
package httpc

import (
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Options controls TLS and timeouts of outgoing auth requests.
type Options struct {
	Insecure bool          `mapstructure:"insecure" yaml:"insecure"`
	MinTLS   string        `mapstructure:"min_tls" yaml:"min_tls"`
	MaxTLS   string        `mapstructure:"max_tls" yaml:"max_tls"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ParseTLSVersion accepts "1.2", "tls1.2", "TLS12" and friends. Unknown input returns 0.
func ParseTLSVersion(s string) uint16 {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "tls")
	v = strings.TrimPrefix(v, "v")
	switch v {
	case "1.0", "10":
		return tls.VersionTLS10
	case "1.1", "11":
		return tls.VersionTLS11
	case "1.2", "12":
		return tls.VersionTLS12
	case "1.3", "13":
		return tls.VersionTLS13
	default:
		return 0
	}
}

// TLSConfig returns nil when no TLS setting was requested.
func (o Options) TLSConfig() *tls.Config {
	minV, maxV := ParseTLSVersion(o.MinTLS), ParseTLSVersion(o.MaxTLS)
	if !o.Insecure && minV == 0 && maxV == 0 {
		return nil
	}
	// #nosec G402 -- insecure mode is an explicit opt-in for self-signed test servers
	return &tls.Config{InsecureSkipVerify: o.Insecure, MinVersion: minV, MaxVersion: maxV}
}

// New returns a resty client configured with o.
func (o Options) New() *resty.Client {
	c := resty.New()
	if o.Timeout > 0 {
		c.SetTimeout(o.Timeout)
	}
	if cfg := o.TLSConfig(); cfg != nil {
		c.SetTLSClientConfig(cfg)
	}
	return c
}

// HTTPClient returns a plain client for libraries that take *http.Client,
// such as golang.org/x/oauth2 through its context key.
func (o Options) HTTPClient() *http.Client {
	hc := &http.Client{Timeout: o.Timeout}
	if cfg := o.TLSConfig(); cfg != nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = cfg
		hc.Transport = tr
	}
	return hc
}
