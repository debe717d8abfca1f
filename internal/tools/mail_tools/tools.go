package mail_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/graphmcp/internal/mailbox"
	"github.com/teemow/graphmcp/internal/server"
	"github.com/teemow/graphmcp/internal/tools/common"
)

// RegisterMailTools registers the fixture mailbox tools with the MCP server
func RegisterMailTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	listMessagesTool := mcp.NewTool("mail_list_messages",
		mcp.WithDescription("List email messages with id, subject, sender, read state, and body preview"),
	)
	s.AddTool(listMessagesTool, common.InstrumentedToolHandlerWithService(
		"mail_list_messages", "mailbox", "list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListMessages(ctx, request, sc)
		}))

	getMessageTool := mcp.NewTool("mail_get_message",
		mcp.WithDescription("Get the full content of an email message by its id"),
		mcp.WithString("message_id",
			mcp.Required(),
			mcp.Description("The id of the message to retrieve"),
		),
	)
	s.AddTool(getMessageTool, common.InstrumentedToolHandlerWithService(
		"mail_get_message", "mailbox", "get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetMessage(ctx, request, sc)
		}))

	return nil
}

func handleListMessages(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	store := sc.MailStore()
	if store == nil {
		return listErrorResult("mailbox is not configured")
	}

	messages, err := store.List()
	if err != nil {
		return listErrorResult(fmt.Sprintf("Failed to list messages: %v", err))
	}

	result := map[string]any{
		"value":         messages,
		"message_count": len(messages),
		"success":       true,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return listErrorResult(fmt.Sprintf("Failed to marshal messages: %v", err))
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleGetMessage(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	store := sc.MailStore()
	if store == nil {
		return mcp.NewToolResultError("mailbox is not configured"), nil
	}

	args := request.GetArguments()
	messageID, ok := args["message_id"].(string)
	if !ok || messageID == "" {
		return mcp.NewToolResultError("message_id is required"), nil
	}

	raw, err := store.Get(messageID)
	if err != nil {
		if errors.Is(err, mailbox.ErrMessageNotFound) {
			return errorResult(fmt.Sprintf("Message with ID '%s' not found", messageID))
		}
		return errorResult(fmt.Sprintf("Failed to read message: %v", err))
	}

	// Return the stored payload verbatim, with the success marker added
	var message map[string]any
	if err := json.Unmarshal(raw, &message); err != nil {
		return errorResult(fmt.Sprintf("Failed to decode message: %v", err))
	}
	message["success"] = true

	data, err := json.Marshal(message)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to marshal message: %v", err))
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports tool failures as a JSON payload carrying the error,
// marked as an error result so callers see both shapes consistently.
func errorResult(message string) (*mcp.CallToolResult, error) {
	return jsonErrorResult(message, map[string]any{
		"error":   message,
		"success": false,
	})
}

// listErrorResult is the listing failure shape: the error plus an empty
// value array, so list consumers always find the collection key.
func listErrorResult(message string) (*mcp.CallToolResult, error) {
	return jsonErrorResult(message, map[string]any{
		"error":   message,
		"success": false,
		"value":   []any{},
	})
}

func jsonErrorResult(message string, payload map[string]any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(message), nil
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = true
	return result, nil
}
