package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwksDocument is the key set served by the tenant's discovery endpoint.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

// jwksKey is a single RSA signing key in JWK format.
type jwksKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// DefaultJWKSURL returns the tenant's v2.0 signing key endpoint.
func DefaultJWKSURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/discovery/v2.0/keys", tenantID)
}

// IssuerURL returns the v2.0 issuer for the tenant, as it appears in the
// iss claim of issued tokens.
func IssuerURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", tenantID)
}

// KeySet fetches and caches the tenant's RSA signing keys, keyed by kid.
// Keys are refetched when a kid is unknown or the cache has gone stale.
type KeySet struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewKeySet creates a key set backed by the given JWKS endpoint.
func NewKeySet(url string, client *http.Client, logger *slog.Logger) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeySet{
		url:    url,
		client: client,
		logger: logger,
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// Key returns the public key for the given kid, fetching the key set when
// the kid is unknown or the cached set is stale.
func (ks *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.RLock()
	key, ok := ks.keys[kid]
	fresh := time.Since(ks.fetchedAt) < JWKSRefreshInterval
	ks.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := ks.refresh(ctx); err != nil {
		// A stale cached key is still usable when the refresh fails
		if ok {
			ks.logger.Warn("JWKS refresh failed, using cached key", "error", err)
			return key, nil
		}
		return nil, err
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if key, ok := ks.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("signing key %q not found in JWKS", kid)
}

// refresh fetches the key set and replaces the cache.
func (ks *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			ks.logger.Warn("Skipping unparseable JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("JWKS contained no usable RSA keys")
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.fetchedAt = time.Now()
	ks.mu.Unlock()

	ks.logger.Debug("Refreshed JWKS signing keys", "count", len(keys))
	return nil
}

// rsaPublicKey builds an rsa.PublicKey from the base64url modulus and exponent.
func rsaPublicKey(k jwksKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent value")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// Validator verifies Entra ID access tokens against the tenant's signing keys.
type Validator struct {
	keySet   *KeySet
	tenantID string
	audience string
	parser   *jwt.Parser
}

// NewValidator creates a token validator for the given tenant and audience.
func NewValidator(keySet *KeySet, tenantID, audience string) *Validator {
	return &Validator{
		keySet:   keySet,
		tenantID: tenantID,
		audience: audience,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithLeeway(ClockSkewGrace),
			jwt.WithExpirationRequired(),
		),
	}
}

// Validate verifies the token signature, issuer, audience and expiry, and
// returns the identity claims it carries.
func (v *Validator) Validate(ctx context.Context, tokenString string) (*AzureUserInfo, error) {
	claims := jwt.MapClaims{}

	_, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		return v.keySet.Key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if err := v.checkIssuer(claims); err != nil {
		return nil, err
	}
	if err := v.checkAudience(claims); err != nil {
		return nil, err
	}

	return userInfoFromClaims(claims), nil
}

func (v *Validator) checkIssuer(claims jwt.MapClaims) error {
	iss, _ := claims["iss"].(string)
	if iss == "" {
		return fmt.Errorf("token has no issuer")
	}
	// v1.0 tokens use sts.windows.net, v2.0 tokens use login.microsoftonline.com;
	// both carry the tenant ID in the issuer URL
	if !containsTenant(iss, v.tenantID) {
		return fmt.Errorf("token issuer %q does not match tenant", iss)
	}
	return nil
}

func (v *Validator) checkAudience(claims jwt.MapClaims) error {
	auds, err := claims.GetAudience()
	if err != nil || len(auds) == 0 {
		return fmt.Errorf("token has no audience")
	}
	for _, aud := range auds {
		if aud == v.audience || aud == "api://"+v.audience {
			return nil
		}
	}
	return fmt.Errorf("token audience does not match this application")
}

func containsTenant(issuer, tenantID string) bool {
	return tenantID != "" && strings.Contains(issuer, tenantID)
}

// userInfoFromClaims extracts identity fields, tolerating absent claims.
func userInfoFromClaims(claims jwt.MapClaims) *AzureUserInfo {
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	return &AzureUserInfo{
		Sub:               str("sub"),
		Email:             str("email"),
		Name:              str("name"),
		PreferredUsername: str("preferred_username"),
		ObjectID:          str("oid"),
		TenantID:          str("tid"),
		JobTitle:          str("job_title"),
		OfficeLocation:    str("office_location"),
	}
}
