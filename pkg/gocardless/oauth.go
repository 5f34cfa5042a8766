package gocardless

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AuthorizeURL builds the OAuth authorize link a merchant visits to connect
// their GoCardless account. The opaque state is produced (and later verified)
// by the connection service.
func (c *Client) AuthorizeURL(redirectURI, state string) string {
	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", "read_write")
	query.Set("state", state)
	return c.connectBaseURL + "/oauth/authorize?" + query.Encode()
}

// ExchangeCode swaps an authorization code for a merchant access token.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*AccessToken, error) {
	c.log(ctx, "request", "exchange_code", map[string]any{"code": code})

	body := map[string]any{
		"grant_type":    "authorization_code",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"redirect_uri":  redirectURI,
		"code":          code,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode token exchange: %w", err)
	}

	raw, err := c.doOnce(ctx, http.MethodPost, c.connectBaseURL+"/oauth/access_token", payload, "", "", c.retryOpts.Timeout)
	if err != nil {
		c.log(ctx, "error", "exchange_code", map[string]any{"error": err.Error()})
		return nil, err
	}

	var token AccessToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}
	if token.AccessToken == "" || token.OrganisationID == "" {
		return nil, fmt.Errorf("token exchange response incomplete")
	}

	c.log(ctx, "response", "exchange_code", map[string]any{"organisation_id": token.OrganisationID})
	return &token, nil
}
