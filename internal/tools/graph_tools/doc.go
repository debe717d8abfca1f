// Package graph_tools provides MCP (Model Context Protocol) tools backed by
// Microsoft Entra ID and Microsoft Graph.
//
// Identity tools:
//   - graph_get_user_info: Return the caller's identity from bearer-token claims
//   - graph_greet_user: Greet the caller by their Graph display name
//   - graph_display_access_token: Return the On-Behalf-Of Graph access token
//
// All three tools need the caller's bearer token from the HTTP transport.
// Over stdio there is no caller token and the tools return an error result
// explaining that.
package graph_tools
