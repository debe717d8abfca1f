package oauth

// ProtectedResourceMetadata represents OAuth 2.0 Protected Resource Metadata (RFC 9728)
type ProtectedResourceMetadata struct {
	// Resource is the identifier for the protected resource
	Resource string `json:"resource"`

	// AuthorizationServers lists the authorization servers that can issue tokens for this resource
	AuthorizationServers []string `json:"authorization_servers"`

	// BearerMethodsSupported lists the ways Bearer tokens can be sent (RFC 6750)
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`

	// ScopesSupported lists the scopes understood by this resource
	ScopesSupported []string `json:"scopes_supported,omitempty"`
}

// AzureUserInfo holds the identity claims extracted from a validated
// Entra ID access token
type AzureUserInfo struct {
	// Sub is the subject claim, a stable pairwise user identifier
	Sub string `json:"sub"`

	// Email is the user's email address when the optional claim is configured
	Email string `json:"email"`

	// Name is the user's display name
	Name string `json:"name"`

	// PreferredUsername is the sign-in name, usually the UPN
	PreferredUsername string `json:"preferred_username"`

	// ObjectID is the user's directory object ID (oid claim)
	ObjectID string `json:"oid"`

	// TenantID is the issuing tenant (tid claim)
	TenantID string `json:"tid"`

	// JobTitle is the user's job title when the optional claim is configured
	JobTitle string `json:"job_title"`

	// OfficeLocation is the user's office location when the optional claim is configured
	OfficeLocation string `json:"office_location"`
}

// Identifier returns the best available user identifier for logging and
// token bookkeeping: email, then UPN, then the subject claim.
func (u *AzureUserInfo) Identifier() string {
	if u.Email != "" {
		return u.Email
	}
	if u.PreferredUsername != "" {
		return u.PreferredUsername
	}
	return u.Sub
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}
