package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// OBO grant parameters, per RFC 7523 and the Entra token endpoint contract.
const (
	grantTypeJWTBearer   = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	requestedTokenUseOBO = "on_behalf_of"
	tokenExpiryBuffer    = 2 * time.Minute
	tokenEndpointTimeout = 30 * time.Second
)

// TokenEndpoint returns the v2.0 token endpoint for the given tenant.
func TokenEndpoint(tenantID string) string {
	return microsoft.AzureADEndpoint(tenantID).TokenURL
}

// tokenResponse is the token endpoint's success payload.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// tokenError is the token endpoint's failure payload.
type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// OBOTokenSource exchanges a caller's bearer assertion for a Graph access
// token and reuses it until it approaches expiry. It implements
// oauth2.TokenSource and is safe for concurrent use.
type OBOTokenSource struct {
	config    Config
	assertion string
	endpoint  string
	client    *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// OBOOption customizes an OBOTokenSource.
type OBOOption func(*OBOTokenSource)

// WithHTTPClient sets the HTTP client used for the token request.
func WithHTTPClient(client *http.Client) OBOOption {
	return func(s *OBOTokenSource) {
		s.client = client
	}
}

// WithTokenEndpoint overrides the token endpoint URL. Used by tests.
func WithTokenEndpoint(endpoint string) OBOOption {
	return func(s *OBOTokenSource) {
		s.endpoint = endpoint
	}
}

// NewOBOTokenSource creates a token source performing the On-Behalf-Of
// exchange for the given caller assertion.
func NewOBOTokenSource(config Config, assertion string, opts ...OBOOption) *OBOTokenSource {
	s := &OBOTokenSource{
		config:    config,
		assertion: assertion,
		endpoint:  TokenEndpoint(config.TenantID),
		client:    &http.Client{Timeout: tokenEndpointTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a valid Graph access token, performing the exchange when no
// cached token exists or the cached one is within the expiry buffer.
func (s *OBOTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && time.Until(s.token.Expiry) > tokenExpiryBuffer {
		return s.token, nil
	}

	token, err := s.exchange(context.Background())
	if err != nil {
		return nil, err
	}

	s.token = token
	return token, nil
}

// TokenContext is Token with an explicit context for the exchange request.
func (s *OBOTokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && time.Until(s.token.Expiry) > tokenExpiryBuffer {
		return s.token, nil
	}

	token, err := s.exchange(ctx)
	if err != nil {
		return nil, err
	}

	s.token = token
	return token, nil
}

// exchange performs the On-Behalf-Of grant against the token endpoint.
// Callers must hold s.mu.
func (s *OBOTokenSource) exchange(ctx context.Context) (*oauth2.Token, error) {
	form := url.Values{
		"grant_type":          {grantTypeJWTBearer},
		"client_id":           {s.config.ClientID},
		"client_secret":       {s.config.ClientSecret},
		"assertion":           {s.assertion},
		"scope":               {s.config.ScopeString()},
		"requested_token_use": {requestedTokenUseOBO},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var te tokenError
		if err := json.Unmarshal(body, &te); err == nil && te.Error != "" {
			return nil, fmt.Errorf("token exchange failed: %s: %s", te.Error, te.ErrorDescription)
		}
		return nil, fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	tokenType := tr.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tokenType,
		Expiry:      time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// HTTPClient returns an HTTP client that authenticates requests with tokens
// from this source.
func (s *OBOTokenSource) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}
