package external

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"thermostat/internal/types"

	"golang.org/x/sync/singleflight"
)

// DefaultTokenExpiryMargin is subtracted from every expires_in so a token is
// refreshed before the vendor starts rejecting it.
const DefaultTokenExpiryMargin = 5 * time.Minute

// Grant describes how to obtain a bearer token for one API.
type Grant struct {
	TokenURL string
	params   func() url.Values
}

// ClientCredentialsGrant exchanges a client id and secret for a token.
func ClientCredentialsGrant(tokenURL, clientID string, secret types.SecretString, scope string) Grant {
	return Grant{
		TokenURL: tokenURL,
		params: func() url.Values {
			v := url.Values{
				"grant_type":    {"client_credentials"},
				"client_id":     {clientID},
				"client_secret": {secret.Unmask()},
			}
			if scope != "" {
				v.Set("scope", scope)
			}
			return v
		},
	}
}

// RefreshTokenGrant exchanges a long-lived refresh token for an access token.
func RefreshTokenGrant(tokenURL, clientID string, secret, refreshToken types.SecretString) Grant {
	return Grant{
		TokenURL: tokenURL,
		params: func() url.Values {
			return url.Values{
				"grant_type":    {"refresh_token"},
				"client_id":     {clientID},
				"client_secret": {secret.Unmask()},
				"refresh_token": {refreshToken.Unmask()},
			}
		},
	}
}

// tokenResponse is the subset of RFC 6749 §5.1 both vendors return.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// CredentialCacheConfig configures a CredentialCache. A zero Margin means
// DefaultTokenExpiryMargin.
type CredentialCacheConfig struct {
	Base   *BaseClient
	Margin time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

// CredentialCache hands out bearer tokens per API, exchanging a registered
// Grant only when the cached token is missing or inside the expiry margin.
// Concurrent refreshes for the same API collapse into one exchange.
type CredentialCache struct {
	base   *BaseClient
	margin time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	grants map[string]Grant
	tokens map[string]*types.CredentialToken
	group  singleflight.Group
}

// NewCredentialCache creates an empty cache. Call Register for each API.
func NewCredentialCache(cfg CredentialCacheConfig) *CredentialCache {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	base := cfg.Base
	if base == nil {
		base = NewBaseClient(nil, "oauth-token")
	}
	margin := cfg.Margin
	if margin <= 0 {
		margin = DefaultTokenExpiryMargin
	}

	return &CredentialCache{
		base:   base,
		margin: margin,
		logger: logger.With("component", "credentials"),
		now:    now,
		grants: make(map[string]Grant),
		tokens: make(map[string]*types.CredentialToken),
	}
}

// Register binds a grant to apiID, dropping any token cached under it.
func (c *CredentialCache) Register(apiID string, g Grant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants[apiID] = g
	delete(c.tokens, apiID)
}

// Invalidate drops the cached token so the next Token call re-exchanges.
// Clients call this after the vendor rejects a token early.
func (c *CredentialCache) Invalidate(apiID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, apiID)
}

// Token returns a bearer token for apiID.
func (c *CredentialCache) Token(ctx context.Context, apiID string) (string, error) {
	if tok := c.cached(apiID); tok != "" {
		return tok, nil
	}

	v, err, _ := c.group.Do(apiID, func() (any, error) {
		// Another caller may have refreshed while we waited on the group.
		if tok := c.cached(apiID); tok != "" {
			return tok, nil
		}
		return c.refresh(ctx, apiID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *CredentialCache) cached(apiID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok := c.tokens[apiID]; tok.Valid(c.now()) {
		return tok.AccessToken.Unmask()
	}
	return ""
}

func (c *CredentialCache) refresh(ctx context.Context, apiID string) (string, error) {
	c.mu.Lock()
	grant, ok := c.grants[apiID]
	c.mu.Unlock()
	if !ok {
		return "", types.NewAppError(
			types.ErrCodeAuthNotConfigured,
			fmt.Sprintf("no credentials registered for %s", apiID),
			nil,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, grant.TokenURL, strings.NewReader(grant.params().Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeAuthTokenExchange, fmt.Sprintf("%s token exchange failed", apiID), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		appErr := statusError(resp, types.ErrCodeAuthTokenExchange)
		appErr.Message = fmt.Sprintf("%s token exchange returned %d", apiID, resp.StatusCode)
		return "", appErr
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", types.NewAppError(types.ErrCodeAuthTokenMalformed, fmt.Sprintf("failed to decode %s token response", apiID), err)
	}
	if tr.AccessToken == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenMalformed, fmt.Sprintf("%s token response has no access_token", apiID), nil)
	}

	// A lifetime shorter than the margin yields an already-expired entry:
	// this caller still gets the token and the next call exchanges again.
	expiresAt := c.now().Add(time.Duration(tr.ExpiresIn)*time.Second - c.margin)

	c.mu.Lock()
	c.tokens[apiID] = &types.CredentialToken{
		AccessToken: types.SecretString(tr.AccessToken),
		ExpiresAt:   expiresAt,
	}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "token refreshed", "api", apiID, "expires_at", expiresAt)
	return tr.AccessToken, nil
}
