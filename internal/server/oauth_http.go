package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/graphmcp/internal/mcp/oauth"
)

// OAuthHTTPServer wraps an MCP server with OAuth 2.1 resource-server
// authentication. It implements RFC 9728 Protected Resource Metadata so
// MCP clients can discover Entra ID as the authorization server.
type OAuthHTTPServer struct {
	mcpServer     *mcpserver.MCPServer
	serverContext *ServerContext
	oauthHandler  *oauth.Handler
	healthChecker *HealthChecker
	httpServer    *http.Server
}

// NewOAuthHTTPServer creates a new OAuth-enabled HTTP server for MCP.
// The tenant, audience and scopes come from the server context's Entra
// configuration.
func NewOAuthHTTPServer(mcpServer *mcpserver.MCPServer, sc *ServerContext, baseURL string) (*OAuthHTTPServer, error) {
	azureConfig := sc.AzureConfig()

	oauthConfig := &oauth.Config{
		Resource:        baseURL,
		TenantID:        azureConfig.TenantID,
		Audience:        azureConfig.ClientID,
		SupportedScopes: azureConfig.UserScopes,
		RateLimit: oauth.RateLimitConfig{
			Rate:  oauth.DefaultRateLimitRate,
			Burst: oauth.DefaultRateLimitBurst,
		},
	}

	oauthHandler, err := oauth.NewHandler(oauthConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth handler: %w", err)
	}

	// Revoking a user drops their cached Graph client and OBO tokens
	oauthHandler.SetRevocationCallback(sc.EvictAssertion)

	if metrics := sc.Metrics(); metrics != nil {
		oauthHandler.SetMetrics(metrics)
	}

	return &OAuthHTTPServer{
		mcpServer:     mcpServer,
		serverContext: sc,
		oauthHandler:  oauthHandler,
		healthChecker: NewHealthChecker(sc),
	}, nil
}

// Start starts the OAuth-enabled HTTP server
func (s *OAuthHTTPServer) Start(addr string) error {
	// OAuth 2.1 requires HTTPS outside loopback development setups
	config := s.oauthHandler.GetConfig()
	if err := validateHTTPSRequirement(config.Resource); err != nil {
		return err
	}

	mux := http.NewServeMux()

	// Protected Resource Metadata endpoint (RFC 9728), rate limited but
	// unauthenticated so clients can discover the authorization server
	metadataHandler := http.HandlerFunc(s.oauthHandler.ServeProtectedResourceMetadata)
	mux.Handle("/.well-known/oauth-protected-resource", s.oauthHandler.RateLimitMiddleware(metadataHandler))

	// Token revocation endpoint
	revokeHandler := http.HandlerFunc(s.oauthHandler.ServeRevoke)
	mux.Handle("/oauth/revoke", s.oauthHandler.RateLimitMiddleware(revokeHandler))

	// Health endpoints stay unauthenticated for Kubernetes probes
	s.healthChecker.RegisterHealthEndpoints(mux)

	// The MCP endpoint requires a validated Entra ID bearer token
	streamableServer := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath("/mcp"),
	)
	mcpHandler := http.HandlerFunc(streamableServer.ServeHTTP)
	mux.Handle("/mcp", s.oauthHandler.RateLimitMiddleware(
		s.oauthHandler.ValidateBearerToken(
			s.instrumentationMiddleware(mcpHandler))))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	s.oauthHandler.Close()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// GetOAuthHandler returns the OAuth handler for testing or direct access
func (s *OAuthHTTPServer) GetOAuthHandler() *oauth.Handler {
	return s.oauthHandler
}

// HealthChecker returns the health checker serving the probe endpoints
func (s *OAuthHTTPServer) HealthChecker() *HealthChecker {
	return s.healthChecker
}

// responseWriter captures the status code written by downstream handlers
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrumentationMiddleware records HTTP request metrics for the MCP endpoint
func (s *OAuthHTTPServer) instrumentationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.serverContext == nil || s.serverContext.Metrics() == nil {
			next.ServeHTTP(w, r)
			return
		}
		metrics := s.serverContext.Metrics()

		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1)
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
