package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenResponse is the token endpoint's JSON body for both grants.
type tokenResponse struct {
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	ExtExpiresIn int64  `json:"ext_expires_in"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
}

// AuthorizationURL returns the URL a human opens to grant consent. The
// authorization code arrives on the configured redirect URI. No network call.
func (c *Client) AuthorizationURL() string {
	return c.oauth.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for an access/refresh token pair.
// A rejected code is returned as *StatusError wrapping ErrInvalidGrant,
// ErrUnauthorized or ErrForbidden.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	c.logger.Info("exchanging authorization code for tokens")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("scope", c.tokenScope()))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, newStatusError(re.Response, re.Body,
				classifyTokenStatus(re.Response.StatusCode, string(re.Body)))
		}

		return nil, fmt.Errorf("graph: code exchange failed: %w", err)
	}

	c.logger.Info("code exchange successful", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

// ExchangeRefreshToken trades a refresh token for a new token pair. The form
// carries redirect_uri and scope, which oauth2's built-in refresh omits but
// the token endpoint requires for web-app registrations.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	c.logger.Info("exchanging refresh token")

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
		"redirect_uri":  {c.cfg.RedirectURL},
		"grant_type":    {"refresh_token"},
		"scope":         {c.tokenScope()},
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	_, body, err := c.send(req, classifyTokenStatus)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if decErr := json.Unmarshal(body, &tr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding token response: %w", decErr)
	}

	if tr.AccessToken == "" {
		return nil, errors.New("graph: token response missing access_token")
	}

	tok := tr.toToken(time.Now())

	c.logger.Info("refresh exchange successful", slog.Time("expiry", tok.Expiry))

	return tok, nil
}

func (tr *tokenResponse) toToken(now time.Time) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
	}

	if tr.ExpiresIn > 0 {
		tok.Expiry = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return tok.WithExtra(map[string]any{
		"scope":          tr.Scope,
		"ext_expires_in": tr.ExtExpiresIn,
		"id_token":       tr.IDToken,
	})
}
