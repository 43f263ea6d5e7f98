package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

// BasicConfig builds a Basic credential from a username and password.
type BasicConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func (c BasicConfig) Acquire(_ context.Context) (string, error) {
	u := strings.TrimSpace(c.Username)
	if u == "" || c.Password == "" {
		return "", errors.New("basic: username and password are required")
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(u+":"+c.Password)), nil
}
