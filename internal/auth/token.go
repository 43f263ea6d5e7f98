package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loykin/cgirun/internal/httpc"
	"github.com/loykin/cgirun/internal/util"
)

// TokenConfig logs in against a JSON endpoint and reads the token from the
// response with a gjson path.
type TokenConfig struct {
	URL       string                 `mapstructure:"url"`
	Method    string                 `mapstructure:"method"`
	Headers   map[string]string      `mapstructure:"headers"`
	Body      map[string]interface{} `mapstructure:"body"`
	TokenPath string                 `mapstructure:"token_path"`
	// Prefix is prepended to the token, default "Bearer"; "-" sends the bare token.
	Prefix string        `mapstructure:"prefix"`
	HTTP   httpc.Options `mapstructure:"http"`
}

func (c TokenConfig) Acquire(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.URL) == "" {
		return "", errors.New("token: url is required")
	}
	req := c.HTTP.New().R().SetContext(ctx).SetHeader("Accept", "application/json")
	for k, v := range c.Headers {
		req.SetHeader(k, v)
	}
	if c.Body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(c.Body)
	}
	resp, err := req.Execute(strings.ToUpper(util.TrimWithDefault(c.Method, http.MethodPost)), c.URL)
	if err != nil {
		return "", fmt.Errorf("token: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("token: login returned %d", resp.StatusCode())
	}
	path := util.TrimWithDefault(c.TokenPath, "token")
	tok := strings.TrimSpace(gjson.GetBytes(resp.Body(), path).String())
	if tok == "" {
		return "", fmt.Errorf("token: %q not found in response", path)
	}
	prefix := util.TrimWithDefault(c.Prefix, "Bearer")
	if prefix == "-" {
		return tok, nil
	}
	return prefix + " " + tok, nil
}
