// Package oauth implements the OAuth 2.0 resource-server side of the MCP
// HTTP transport: bearer token validation against Microsoft Entra ID,
// protected resource metadata (RFC 9728), and IP-based rate limiting.
//
// Incoming tokens are verified locally against the tenant's JWKS signing
// keys. The raw validated token is kept in the request context so tool
// handlers can use it as the assertion for the On-Behalf-Of exchange.
package oauth
