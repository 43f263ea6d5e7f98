package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig issues an HS256 token locally, for scripts that only verify a
// shared secret.
type JWTConfig struct {
	Secret     string                 `mapstructure:"secret"`
	TTLSeconds int64                  `mapstructure:"ttl_seconds"`
	Subject    string                 `mapstructure:"sub"`
	Issuer     string                 `mapstructure:"iss"`
	Audience   []string               `mapstructure:"aud"`
	ID         string                 `mapstructure:"jti"`
	Claims     map[string]interface{} `mapstructure:"claims"`
}

// Issue signs the token. TTL defaults to 5 minutes.
func (c JWTConfig) Issue(now time.Time) (string, error) {
	if c.Secret == "" {
		return "", errors.New("jwt: secret is required")
	}
	ttl := c.TTLSeconds
	if ttl <= 0 {
		ttl = 300
	}
	claims := jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Unix() + ttl,
	}
	for k, v := range c.Claims {
		claims[k] = v
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if len(c.Audience) > 0 {
		claims["aud"] = c.Audience
	}
	if c.ID != "" {
		claims["jti"] = c.ID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.Secret))
}

func (c JWTConfig) Acquire(_ context.Context) (string, error) {
	tok, err := c.Issue(time.Now())
	if err != nil {
		return "", err
	}
	return "Bearer " + tok, nil
}
