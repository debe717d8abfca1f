package graph_tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"

	"github.com/teemow/graphmcp/internal/azure"
	"github.com/teemow/graphmcp/internal/graph"
	"github.com/teemow/graphmcp/internal/mcp/oauth"
	"github.com/teemow/graphmcp/internal/server"
)

func newTestServerContext(t *testing.T) *server.ServerContext {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), azure.Config{
		TenantID:     "test-tenant",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create server context: %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

// useFakeGraph points the server context's Graph clients at a fake /me endpoint.
func useFakeGraph(t *testing.T, sc *server.ServerContext, user graph.User) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/me") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(user)
	}))
	t.Cleanup(srv.Close)

	sc.SetGraphClientFactory(func(_ string) *graph.Client {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "graph-token"})
		return graph.NewClient(source, graph.WithBaseURL(srv.URL))
	})
}

func authenticatedContext() context.Context {
	return oauth.ContextWithUser(context.Background(), &oauth.AzureUserInfo{
		Sub:            "subject-123",
		Email:          "jane@contoso.com",
		Name:           "Jane Doe",
		JobTitle:       "Engineer",
		OfficeLocation: "18/2111",
	}, "caller-assertion")
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result == nil {
		t.Fatal("result is nil")
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result.Content)
	}
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want mcp.TextContent", result.Content[0])
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	return payload
}

func TestHandleGetUserInfo(t *testing.T) {
	sc := newTestServerContext(t)

	result, err := handleGetUserInfo(authenticatedContext(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleGetUserInfo() error = %v", err)
	}

	payload := resultJSON(t, result)
	want := map[string]string{
		"azure_id":        "subject-123",
		"email":           "jane@contoso.com",
		"name":            "Jane Doe",
		"job_title":       "Engineer",
		"office_location": "18/2111",
	}
	for key, value := range want {
		if payload[key] != value {
			t.Errorf("payload[%q] = %v, want %q", key, payload[key], value)
		}
	}
	if payload["success"] != true {
		t.Errorf("payload[success] = %v, want true", payload["success"])
	}
}

func TestHandleGetUserInfo_NoToken(t *testing.T) {
	sc := newTestServerContext(t)

	result, err := handleGetUserInfo(context.Background(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleGetUserInfo() error = %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected error result without a caller token")
	}
}

func TestHandleGreetUser(t *testing.T) {
	tests := []struct {
		name            string
		user            graph.User
		wantGreeting    string
		wantDisplayName string
		wantEmail       string
	}{
		{
			name: "full profile",
			user: graph.User{
				DisplayName:       "Jane Doe",
				Mail:              "jane@contoso.com",
				UserPrincipalName: "jane.doe@contoso.onmicrosoft.com",
			},
			wantGreeting:    "Hello, Jane Doe!",
			wantDisplayName: "Jane Doe",
			wantEmail:       "jane@contoso.com",
		},
		{
			name: "email falls back to user principal name",
			user: graph.User{
				DisplayName:       "Jane Doe",
				UserPrincipalName: "jane.doe@contoso.onmicrosoft.com",
			},
			wantGreeting:    "Hello, Jane Doe!",
			wantDisplayName: "Jane Doe",
			wantEmail:       "jane.doe@contoso.onmicrosoft.com",
		},
		{
			name:            "no email at all",
			user:            graph.User{DisplayName: "Jane Doe"},
			wantGreeting:    "Hello, Jane Doe!",
			wantDisplayName: "Jane Doe",
			wantEmail:       "No email found",
		},
		{
			name:            "no display name",
			user:            graph.User{Mail: "jane@contoso.com"},
			wantGreeting:    "Hello, User!",
			wantDisplayName: "User",
			wantEmail:       "jane@contoso.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := newTestServerContext(t)
			useFakeGraph(t, sc, tt.user)

			result, err := handleGreetUser(authenticatedContext(), mcp.CallToolRequest{}, sc)
			if err != nil {
				t.Fatalf("handleGreetUser() error = %v", err)
			}

			payload := resultJSON(t, result)
			if payload["greeting"] != tt.wantGreeting {
				t.Errorf("greeting = %v, want %q", payload["greeting"], tt.wantGreeting)
			}
			if payload["display_name"] != tt.wantDisplayName {
				t.Errorf("display_name = %v, want %q", payload["display_name"], tt.wantDisplayName)
			}
			if payload["email"] != tt.wantEmail {
				t.Errorf("email = %v, want %q", payload["email"], tt.wantEmail)
			}
			if payload["success"] != true {
				t.Errorf("success = %v, want true", payload["success"])
			}
		})
	}
}

func TestHandleGreetUser_NoToken(t *testing.T) {
	sc := newTestServerContext(t)

	result, err := handleGreetUser(context.Background(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleGreetUser() error = %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected error result without a caller token")
	}
}

func TestHandleGreetUser_GraphError(t *testing.T) {
	sc := newTestServerContext(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"InternalServerError","message":"boom"}}`))
	}))
	t.Cleanup(srv.Close)

	sc.SetGraphClientFactory(func(_ string) *graph.Client {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "graph-token"})
		return graph.NewClient(source, graph.WithBaseURL(srv.URL))
	})

	result, err := handleGreetUser(authenticatedContext(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleGreetUser() error = %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected error result for Graph failure")
	}
}

func TestHandleDisplayAccessToken(t *testing.T) {
	sc := newTestServerContext(t)
	sc.SetTokenProvider(&azure.StaticTokenProvider{
		Token: &oauth2.Token{AccessToken: "obo-graph-token"},
	})

	result, err := handleDisplayAccessToken(authenticatedContext(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleDisplayAccessToken() error = %v", err)
	}

	payload := resultJSON(t, result)
	if payload["token"] != "obo-graph-token" {
		t.Errorf("token = %v, want %q", payload["token"], "obo-graph-token")
	}
	if payload["success"] != true {
		t.Errorf("success = %v, want true", payload["success"])
	}
}

func TestHandleDisplayAccessToken_NoToken(t *testing.T) {
	sc := newTestServerContext(t)

	result, err := handleDisplayAccessToken(context.Background(), mcp.CallToolRequest{}, sc)
	if err != nil {
		t.Fatalf("handleDisplayAccessToken() error = %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected error result without a caller token")
	}
}

func TestRegisterGraphTools(t *testing.T) {
	sc := newTestServerContext(t)
	s := mcpserver.NewMCPServer("test", "1.0.0")

	if err := RegisterGraphTools(s, sc); err != nil {
		t.Fatalf("RegisterGraphTools() error = %v", err)
	}
}
