package mailbox

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store, dir
}

func TestNewStore_MissingDir(t *testing.T) {
	if _, err := NewStore(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestStore_List(t *testing.T) {
	store, dir := newTestStore(t)
	writeFixture(t, dir, ListFileName, `{
		"value": [
			{
				"id": "AAMkAGI1",
				"subject": "Team sync notes",
				"from": {"emailAddress": {"name": "Alice", "address": "alice@contoso.com"}},
				"isRead": false,
				"bodyPreview": "Notes from today"
			},
			{
				"id": "AAMkAGI2",
				"subject": "Invoice",
				"from": {"emailAddress": {"name": "Billing", "address": "billing@fabrikam.com"}},
				"isRead": true,
				"bodyPreview": "Your invoice is attached"
			}
		]
	}`)

	messages, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if messages[0].ID != "AAMkAGI1" {
		t.Errorf("messages[0].ID = %q, want AAMkAGI1", messages[0].ID)
	}
	if messages[0].Subject != "Team sync notes" {
		t.Errorf("messages[0].Subject = %q, want %q", messages[0].Subject, "Team sync notes")
	}
	if messages[0].IsRead {
		t.Error("messages[0].IsRead = true, want false")
	}
	if messages[1].BodyPreview != "Your invoice is attached" {
		t.Errorf("messages[1].BodyPreview = %q", messages[1].BodyPreview)
	}

	// The sender object passes through untouched
	var from struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	}
	if err := json.Unmarshal(messages[0].From, &from); err != nil {
		t.Fatalf("failed to decode from field: %v", err)
	}
	if from.EmailAddress.Address != "alice@contoso.com" {
		t.Errorf("from address = %q, want alice@contoso.com", from.EmailAddress.Address)
	}
}

func TestStore_List_MissingSender(t *testing.T) {
	store, dir := newTestStore(t)
	writeFixture(t, dir, ListFileName, `{
		"value": [
			{
				"id": "AAMkAGI3",
				"subject": "No-reply notification",
				"isRead": true,
				"bodyPreview": "System generated"
			}
		]
	}`)

	messages, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}

	// A message without a sender still carries the from key as null
	data, err := json.Marshal(messages[0])
	if err != nil {
		t.Fatalf("failed to marshal summary: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	raw, present := fields["from"]
	if !present {
		t.Fatal("from key missing from marshaled summary")
	}
	if string(raw) != "null" {
		t.Errorf("from = %s, want null", raw)
	}
}

func TestStore_List_MissingFixture(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.List(); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("List() error = %v, want ErrMessageNotFound", err)
	}
}

func TestStore_List_InvalidJSON(t *testing.T) {
	store, dir := newTestStore(t)
	writeFixture(t, dir, ListFileName, `{not json`)

	if _, err := store.List(); err == nil {
		t.Fatal("expected error for invalid listing JSON")
	}
}

func TestStore_Get(t *testing.T) {
	store, dir := newTestStore(t)
	writeFixture(t, dir, "AAMkAGI1.json", `{"id": "AAMkAGI1", "subject": "Team sync notes", "body": {"contentType": "text", "content": "Full body"}}`)

	tests := []struct {
		name string
		id   string
	}{
		{"exact ID", "AAMkAGI1"},
		{"trailing padding stripped", "AAMkAGI1=="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := store.Get(tt.id)
			if err != nil {
				t.Fatalf("Get(%q) error = %v", tt.id, err)
			}

			var msg map[string]interface{}
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("payload is not valid JSON: %v", err)
			}
			if msg["subject"] != "Team sync notes" {
				t.Errorf("subject = %v, want Team sync notes", msg["subject"])
			}
		})
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get("missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Get() error = %v, want ErrMessageNotFound", err)
	}
}

func TestStore_Get_RejectsTraversal(t *testing.T) {
	store, dir := newTestStore(t)
	writeFixture(t, dir, "ok.json", `{}`)

	for _, id := range []string{"../secrets", "a/b", `a\b`, "..", "="} {
		if _, err := store.Get(id); err == nil {
			t.Errorf("Get(%q) should be rejected", id)
		}
	}
}

func TestStore_Get_InvalidJSON(t *testing.T) {
	store, dir := newTestStore(t)
	writeFixture(t, dir, "broken.json", `{oops`)

	if _, err := store.Get("broken"); err == nil {
		t.Fatal("expected error for invalid message JSON")
	}
}
