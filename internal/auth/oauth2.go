package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/loykin/cgirun/internal/httpc"
	"github.com/loykin/cgirun/internal/util"
)

// OAuth2Config acquires a token with the client_credentials or password grant.
type OAuth2Config struct {
	GrantType    string        `mapstructure:"grant_type"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	AuthURL      string        `mapstructure:"auth_url"`
	TokenURL     string        `mapstructure:"token_url"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Scopes       []string      `mapstructure:"scopes"`
	HTTP         httpc.Options `mapstructure:"http"`
}

func (c OAuth2Config) Acquire(ctx context.Context) (string, error) {
	tokenURL := strings.TrimSpace(c.TokenURL)
	if tokenURL == "" {
		return "", errors.New("oauth2: token_url is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return "", errors.New("oauth2: client_id is required")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTP.HTTPClient())

	var (
		tok *oauth2.Token
		err error
	)
	switch util.TrimWithDefault(strings.ToLower(c.GrantType), "client_credentials") {
	case "client_credentials", "client-credentials":
		cc := &clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       c.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err = cc.Token(ctx)
	case "password":
		if strings.TrimSpace(c.Username) == "" || c.Password == "" {
			return "", errors.New("oauth2: username and password are required for password grant")
		}
		oc := &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
			Scopes:       c.Scopes,
		}
		tok, err = oc.PasswordCredentialsToken(ctx, c.Username, c.Password)
	default:
		return "", errors.New("oauth2: unsupported grant_type: " + c.GrantType)
	}
	if err != nil {
		return "", err
	}
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return "", errors.New("oauth2: received invalid token")
	}
	return util.TrimWithDefault(tok.TokenType, "Bearer") + " " + tok.AccessToken, nil
}
