// Package mail_tools provides MCP (Model Context Protocol) tools for reading
// the fixture mailbox.
//
//   - mail_list_messages: List messages with a subject/sender/read-state projection
//   - mail_get_message: Return the full message payload for a message id
//
// The tools read static JSON files through internal/mailbox and work on every
// transport, including stdio where no caller token exists.
package mail_tools
