package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// contextKey is the type for context keys
type contextKey string

const (
	// userContextKey is the key for storing the user info in the request context
	userContextKey contextKey = "azure_user"

	// assertionContextKey is the key for storing the raw validated access
	// token, used as the assertion in the On-Behalf-Of exchange
	assertionContextKey contextKey = "azure_assertion"
)

// Bearer authentication outcomes recorded through AuthMetrics.
const (
	authResultSuccess = "success"
	authResultFailure = "failure"
	authResultExpired = "expired"
)

// ValidateBearerToken is middleware that validates Entra ID bearer tokens.
// On success the identity claims and the raw token are stored in the
// request context for tool handlers.
func (h *Handler) ValidateBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			// Return 401 with WWW-Authenticate header pointing to resource metadata
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource"`,
				h.config.Resource,
			))
			h.recordAuth(r.Context(), authResultFailure)
			h.writeUnauthorizedError(w, "missing_token", "Missing Authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource", error="invalid_token", error_description="Invalid Authorization header format"`,
				h.config.Resource,
			))
			h.recordAuth(r.Context(), authResultFailure)
			h.writeUnauthorizedError(w, "invalid_token", "Invalid Authorization header format")
			return
		}

		accessToken := parts[1]

		userInfo, err := h.validator.Validate(r.Context(), accessToken)
		if err != nil {
			errorDesc := actionableErrorMessage(err)
			w.Header().Set("WWW-Authenticate", fmt.Sprintf(
				`Bearer realm="%s", resource_metadata="/.well-known/oauth-protected-resource", error="invalid_token", error_description="%s"`,
				h.config.Resource,
				errorDesc,
			))
			h.recordAuth(r.Context(), authResultFor(err))
			h.writeUnauthorizedError(w, "invalid_token", errorDesc)
			return
		}

		h.recordAuth(r.Context(), authResultSuccess)

		ctx := context.WithValue(r.Context(), userContextKey, userInfo)
		ctx = context.WithValue(ctx, assertionContextKey, accessToken)

		// Track the caller's token so revocation can find and evict it
		if err := h.store.SaveUserToken(userInfo.Identifier(), accessToken); err != nil {
			h.logger.Warn("Failed to track user token", "user", userInfo.Identifier(), "error", err)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateBearerTokenFunc is a function-based variant of ValidateBearerToken
func (h *Handler) ValidateBearerTokenFunc(next http.HandlerFunc) http.HandlerFunc {
	return h.ValidateBearerToken(next).ServeHTTP
}

// GetUserFromContext retrieves the Azure user info from the request context
func GetUserFromContext(ctx context.Context) (*AzureUserInfo, bool) {
	userInfo, ok := ctx.Value(userContextKey).(*AzureUserInfo)
	return userInfo, ok
}

// GetAssertionFromContext retrieves the caller's raw access token from the
// request context
func GetAssertionFromContext(ctx context.Context) (string, bool) {
	assertion, ok := ctx.Value(assertionContextKey).(string)
	return assertion, ok
}

// ContextWithUser stores user info and assertion in a context. Test helper.
func ContextWithUser(ctx context.Context, userInfo *AzureUserInfo, assertion string) context.Context {
	ctx = context.WithValue(ctx, userContextKey, userInfo)
	return context.WithValue(ctx, assertionContextKey, assertion)
}

// recordAuth reports a bearer authentication outcome when metrics are wired
func (h *Handler) recordAuth(ctx context.Context, result string) {
	if h.metrics != nil {
		h.metrics.RecordOAuthAuth(ctx, result)
	}
}

// authResultFor classifies a validation failure for the auth metric
func authResultFor(err error) string {
	if strings.Contains(err.Error(), "expired") {
		return authResultExpired
	}
	return authResultFailure
}

// writeUnauthorizedError writes an OAuth error response with 401 status
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, errorCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            errorCode,
		ErrorDescription: description,
	})
}

// actionableErrorMessage converts validation errors into guidance the MCP
// client can show the user
func actionableErrorMessage(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "expired") {
		return "Access token has expired. Please re-authenticate through your MCP client to continue."
	}
	if strings.Contains(errStr, "audience") {
		return "Token was issued for a different application. Ensure your client requests a token for this server's app registration."
	}
	if strings.Contains(errStr, "issuer") || strings.Contains(errStr, "tenant") {
		return "Token was issued by a different tenant. Sign in with an account from the configured directory."
	}
	if strings.Contains(errStr, "JWKS") || strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") || strings.Contains(errStr, "dial") {
		return "Unable to verify token signature due to network issues. Please try again in a moment."
	}

	return fmt.Sprintf("Token validation failed: %v. Please re-authenticate through your MCP client.", err)
}
