package graph_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/graphmcp/internal/mcp/oauth"
	"github.com/teemow/graphmcp/internal/server"
	"github.com/teemow/graphmcp/internal/tools/common"
)

const stdioNoTokenMsg = "no caller access token available. Identity tools require the HTTP transport with a valid bearer token"

// RegisterGraphTools registers the identity and Graph tools with the MCP server
func RegisterGraphTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	getUserInfoTool := mcp.NewTool("graph_get_user_info",
		mcp.WithDescription("Get information about the authenticated user from their token claims"),
	)
	s.AddTool(getUserInfoTool, common.InstrumentedToolHandlerWithService(
		"graph_get_user_info", "identity", "claims", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetUserInfo(ctx, request, sc)
		}))

	greetUserTool := mcp.NewTool("graph_greet_user",
		mcp.WithDescription("Greet the authenticated user by their display name from Microsoft Graph"),
	)
	s.AddTool(greetUserTool, common.InstrumentedToolHandlerWithService(
		"graph_greet_user", "graph", "me", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGreetUser(ctx, request, sc)
		}))

	displayTokenTool := mcp.NewTool("graph_display_access_token",
		mcp.WithDescription("Display the Microsoft Graph access token obtained via the On-Behalf-Of flow"),
	)
	s.AddTool(displayTokenTool, common.InstrumentedToolHandlerWithService(
		"graph_display_access_token", "identity", "exchange", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDisplayAccessToken(ctx, request, sc)
		}))

	return nil
}

func handleGetUserInfo(ctx context.Context, _ mcp.CallToolRequest, _ *server.ServerContext) (*mcp.CallToolResult, error) {
	user, ok := oauth.GetUserFromContext(ctx)
	if !ok || user == nil {
		return mcp.NewToolResultError(stdioNoTokenMsg), nil
	}

	info := map[string]any{
		"azure_id":        user.Sub,
		"email":           user.Email,
		"name":            user.Name,
		"job_title":       user.JobTitle,
		"office_location": user.OfficeLocation,
		"success":         true,
	}

	return jsonResult(info)
}

func handleGreetUser(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	assertion, ok := oauth.GetAssertionFromContext(ctx)
	if !ok || assertion == "" {
		return mcp.NewToolResultError(stdioNoTokenMsg), nil
	}

	client := sc.GraphClientFor(assertion)
	me, err := client.Me(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get user profile from Microsoft Graph: %v", err)), nil
	}

	displayName := me.DisplayName
	if displayName == "" {
		displayName = "User"
	}

	email := me.Mail
	if email == "" {
		email = me.UserPrincipalName
	}
	if email == "" {
		email = "No email found"
	}

	result := map[string]any{
		"greeting":     fmt.Sprintf("Hello, %s!", displayName),
		"display_name": displayName,
		"email":        email,
		"success":      true,
	}

	return jsonResult(result)
}

func handleDisplayAccessToken(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	assertion, ok := oauth.GetAssertionFromContext(ctx)
	if !ok || assertion == "" {
		return mcp.NewToolResultError(stdioNoTokenMsg), nil
	}

	token, err := sc.TokenProvider().ExchangeToken(ctx, assertion)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to obtain Graph access token: %v", err)), nil
	}

	result := map[string]any{
		"token":   token.AccessToken,
		"success": true,
	}

	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
