// Package mailbox serves email messages from JSON fixture files on disk.
//
// The store reads a Graph-shaped listing from sample_emails.json and full
// message payloads from per-message files named {id}.json in the same
// directory. It backs the mail tools so they work without a live mailbox.
package mailbox
