// Package azure handles Microsoft Entra ID app configuration and the
// On-Behalf-Of (OBO) token exchange used to obtain Microsoft Graph access
// tokens from a caller's bearer assertion.
//
// The exchange itself is a single token-endpoint request; this package wraps
// it in an oauth2.TokenSource so Graph clients can reuse tokens until they
// approach expiry without persisting anything.
package azure
