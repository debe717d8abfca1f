package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/graphmcp/internal/mcp/oauth"
	"github.com/teemow/graphmcp/internal/server"
)

// RegisterUserResources registers resources describing the authenticated user.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	profileResource := mcp.NewResource(
		"user://current/profile",
		"Current User Profile",
		mcp.WithResourceDescription("Identity of the currently authenticated user, taken from their bearer-token claims"),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(profileResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleUserProfile(ctx, request, sc)
	})

	return nil
}

// handleUserProfile returns the caller's claim-derived profile. It needs the
// HTTP transport; over stdio there is no authenticated caller.
func handleUserProfile(ctx context.Context, request mcp.ReadResourceRequest, _ *server.ServerContext) ([]mcp.ResourceContents, error) {
	user, ok := oauth.GetUserFromContext(ctx)
	if !ok || user == nil {
		return nil, fmt.Errorf("no authenticated user in this session")
	}

	profileData := map[string]interface{}{
		"azure_id":        user.Sub,
		"email":           user.Email,
		"name":            user.Name,
		"job_title":       user.JobTitle,
		"office_location": user.OfficeLocation,
		"tenant_id":       user.TenantID,
	}

	jsonData, err := json.MarshalIndent(profileData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile data: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
