// Package graph provides a minimal Microsoft Graph REST client for the
// delegated operations the server exposes: reading the signed-in user's
// profile and listing their inbox.
//
// The client authenticates with an oauth2.TokenSource, typically the
// On-Behalf-Of source from the azure package, so every request carries a
// Graph token minted for the calling user.
package graph
