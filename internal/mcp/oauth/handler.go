package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// AuthMetrics records bearer authentication outcomes. Satisfied by
// instrumentation.Metrics.
type AuthMetrics interface {
	RecordOAuthAuth(ctx context.Context, result string)
}

// Handler implements the OAuth 2.1 resource-server endpoints for the MCP
// server: bearer validation, protected resource metadata, and revocation.
type Handler struct {
	config      *Config
	store       *Store
	validator   *Validator
	rateLimiter *RateLimiter
	logger      *slog.Logger
	metrics     AuthMetrics

	// onRevoke is invoked with the revoked assertion so downstream caches
	// (the On-Behalf-Of token sources) can be evicted
	onRevoke func(assertion string)
}

// NewHandler creates a new OAuth handler
func NewHandler(config *Config) (*Handler, error) {
	if config.Resource == "" {
		return nil, fmt.Errorf("resource is required")
	}
	if config.TenantID == "" {
		return nil, fmt.Errorf("tenant ID is required")
	}
	if config.Audience == "" {
		return nil, fmt.Errorf("audience is required")
	}

	// Validate Resource URL and enforce HTTPS in production
	parsedURL, err := url.Parse(config.Resource)
	if err != nil {
		return nil, fmt.Errorf("invalid resource URL: %w", err)
	}

	// Allow HTTP only for localhost/loopback addresses (development)
	if parsedURL.Scheme != "https" {
		hostname := parsedURL.Hostname()
		if hostname != "localhost" &&
			hostname != "127.0.0.1" &&
			hostname != "::1" &&
			hostname != "[::1]" {
			return nil, fmt.Errorf("resource must use HTTPS in production (got %s://)", parsedURL.Scheme)
		}
	}

	if config.CleanupInterval == 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Create IP-based rate limiter if configured
	var rateLimiter *RateLimiter
	if config.RateLimit.Rate > 0 {
		burst := config.RateLimit.Burst
		if burst == 0 {
			burst = config.RateLimit.Rate * 2
		}
		cleanupInterval := config.RateLimit.CleanupInterval
		if cleanupInterval == 0 {
			cleanupInterval = DefaultRateLimitCleanupInterval
		}
		rateLimiter = NewRateLimiter(config.RateLimit.Rate, burst, config.RateLimit.TrustProxy, cleanupInterval)
		logger.Info("IP-based rate limiting enabled",
			"rate", config.RateLimit.Rate,
			"burst", burst)
	}

	jwksURL := config.JWKSURL
	if jwksURL == "" {
		jwksURL = DefaultJWKSURL(config.TenantID)
	}

	keySet := NewKeySet(jwksURL, config.HTTPClient, logger)
	validator := NewValidator(keySet, config.TenantID, config.Audience)

	store := NewStoreWithInterval(config.CleanupInterval)
	store.SetLogger(logger)

	return &Handler{
		config:      config,
		store:       store,
		validator:   validator,
		rateLimiter: rateLimiter,
		logger:      logger,
	}, nil
}

// GetStore returns the underlying store (for testing and token management)
func (h *Handler) GetStore() *Store {
	return h.store
}

// GetConfig returns the OAuth configuration
func (h *Handler) GetConfig() *Config {
	return h.config
}

// SetMetrics enables recording of bearer authentication outcomes.
func (h *Handler) SetMetrics(metrics AuthMetrics) {
	h.metrics = metrics
}

// SetRevocationCallback registers a function invoked with the raw token of
// a revoked user so cached exchange results can be evicted.
func (h *Handler) SetRevocationCallback(fn func(assertion string)) {
	h.onRevoke = fn
}

// Close releases background resources held by the handler.
func (h *Handler) Close() {
	h.store.Close()
	if h.rateLimiter != nil {
		h.rateLimiter.Close()
	}
}

// ServeProtectedResourceMetadata serves the OAuth 2.0 Protected Resource Metadata (RFC 9728)
//
// The MCP client will:
//  1. Make an unauthenticated request to the MCP server
//  2. Receive a 401 with WWW-Authenticate header pointing to this endpoint
//  3. Fetch this metadata to discover the Entra ID authorization server
//  4. Run the authorization code flow against Entra ID to obtain an access token
//  5. Include the token in subsequent requests to the MCP server
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	metadata := ProtectedResourceMetadata{
		Resource: h.config.Resource,
		AuthorizationServers: []string{
			IssuerURL(h.config.TenantID),
		},
		BearerMethodsSupported: []string{
			"header", // Authorization: Bearer <token>
		},
		ScopesSupported: h.config.SupportedScopes,
	}

	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(metadata); err != nil {
		h.logger.Error("Failed to encode metadata", "error", err)
	}
}

// setSecurityHeaders sets security headers on HTTP responses
func (h *Handler) setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	// Only set HSTS when the resource itself is HTTPS
	if h.config.Resource != "" {
		parsedURL, err := url.Parse(h.config.Resource)
		if err == nil && parsedURL.Scheme == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
	}
}

// writeError is a helper to write OAuth error responses
func (h *Handler) writeError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	h.logger.Debug("OAuth error", "code", errorCode, "description", description, "status", statusCode)
	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}

// RevokeToken drops the tracked token for a user and notifies the eviction
// callback. Tokens are issued by Entra ID and cannot be invalidated here;
// revocation removes this server's cached state so the next request must
// present a fresh, still-valid token.
func (h *Handler) RevokeToken(user string) error {
	h.logger.Info("Revoking token", "user", user)

	assertion, err := h.store.DeleteUserToken(user)
	if err != nil {
		return err
	}

	if h.onRevoke != nil {
		h.onRevoke(assertion)
	}
	return nil
}

// ServeRevoke handles token revocation requests
// POST /oauth/revoke with {"user": "user@example.com"}
func (h *Handler) ServeRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		User string `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.User == "" {
		h.writeError(w, "invalid_request", "User is required", http.StatusBadRequest)
		return
	}

	if err := h.RevokeToken(req.User); err != nil {
		h.writeError(w, "server_error", fmt.Sprintf("Failed to revoke token: %v", err), http.StatusInternalServerError)
		return
	}

	h.setSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Token revoked for %s", req.User),
	})
}
