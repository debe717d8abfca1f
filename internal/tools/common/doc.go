// Package common provides shared utilities for MCP tool implementations.
// It contains the instrumentation wrapper used across all tool packages
// to record metrics and audit logs consistently.
package common
