package azure

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names for the Entra ID app registration.
const (
	EnvClientID     = "AZURE_CLIENT_ID"
	EnvClientSecret = "AZURE_CLIENT_SECRET"
	EnvTenantID     = "AZURE_TENANT_ID"
	EnvUserScopes   = "AZURE_GRAPH_USER_SCOPES"
)

// DefaultUserScopes are the Graph delegated scopes requested during the
// OBO exchange when AZURE_GRAPH_USER_SCOPES is not set.
var DefaultUserScopes = []string{"User.Read"}

// GraphDefaultScope is the resource-wide scope convention for app tokens.
const GraphDefaultScope = "https://graph.microsoft.com/.default"

// Config holds the Entra ID app registration used for token exchange.
type Config struct {
	// ClientID is the application (client) ID of the app registration.
	ClientID string

	// ClientSecret is the client secret used to authenticate the exchange.
	ClientSecret string

	// TenantID is the directory (tenant) ID tokens are issued from.
	TenantID string

	// UserScopes are the delegated Graph scopes requested on behalf of the user.
	UserScopes []string
}

// ConfigFromEnv builds a Config from the AZURE_* environment variables.
// A .env file in the working directory is loaded first when present,
// without overriding variables already set in the environment.
func ConfigFromEnv() Config {
	// Missing .env is the common case and not an error
	_ = godotenv.Load()

	scopes := ParseScopes(os.Getenv(EnvUserScopes))
	if len(scopes) == 0 {
		scopes = DefaultUserScopes
	}

	return Config{
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		TenantID:     os.Getenv(EnvTenantID),
		UserScopes:   scopes,
	}
}

// Validate checks that the required app registration fields are set.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("azure client ID is required (set %s)", EnvClientID)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("azure client secret is required (set %s)", EnvClientSecret)
	}
	if c.TenantID == "" {
		return fmt.Errorf("azure tenant ID is required (set %s)", EnvTenantID)
	}
	if len(c.UserScopes) == 0 {
		return fmt.Errorf("at least one Graph user scope is required (set %s)", EnvUserScopes)
	}
	return nil
}

// ScopeString returns the user scopes as a single space-separated string,
// the format the token endpoint expects.
func (c Config) ScopeString() string {
	return strings.Join(c.UserScopes, " ")
}

// ParseScopes splits a scope list that may be space or comma separated.
// Empty entries are dropped.
func ParseScopes(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})

	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			scopes = append(scopes, f)
		}
	}
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
