package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrMessageNotFound is returned when no fixture exists for a message ID.
var ErrMessageNotFound = errors.New("message not found")

// ListFileName is the fixture holding the mailbox listing.
const ListFileName = "sample_emails.json"

// MessageSummary is the projection of a message returned by listings.
// Every field stays present when marshaled; a message without a sender
// keeps its from key as null.
type MessageSummary struct {
	ID          string          `json:"id"`
	Subject     string          `json:"subject"`
	From        json.RawMessage `json:"from"`
	IsRead      bool            `json:"isRead"`
	BodyPreview string          `json:"bodyPreview"`
}

// listing mirrors the Graph collection envelope in the fixture file.
type listing struct {
	Value []MessageSummary `json:"value"`
}

// Store reads email fixtures from a directory.
type Store struct {
	dataDir string
}

// NewStore creates a store rooted at dataDir. The directory must exist.
func NewStore(dataDir string) (*Store, error) {
	info, err := os.Stat(dataDir)
	if err != nil {
		return nil, fmt.Errorf("mailbox data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mailbox data path %s is not a directory", dataDir)
	}
	return &Store{dataDir: dataDir}, nil
}

// DataDir returns the directory the store reads fixtures from.
func (s *Store) DataDir() string {
	return s.dataDir
}

// List returns summaries of all messages in the listing fixture.
func (s *Store) List() ([]MessageSummary, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, ListFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("mailbox listing %s: %w", ListFileName, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("failed to read mailbox listing: %w", err)
	}

	var l listing
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse mailbox listing: %w", err)
	}
	return l.Value, nil
}

// Get returns the full JSON payload of a single message. Trailing "="
// padding on the ID is stripped before lookup, matching how Graph message
// IDs are often pasted with base64 padding intact.
func (s *Store) Get(id string) (json.RawMessage, error) {
	clean := strings.TrimRight(id, "=")
	if clean == "" {
		return nil, fmt.Errorf("message ID is required")
	}
	if err := validateID(clean); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, clean+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("message %q: %w", id, ErrMessageNotFound)
		}
		return nil, fmt.Errorf("failed to read message %q: %w", id, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("message %q: fixture is not valid JSON", id)
	}
	return data, nil
}

// validateID rejects IDs that could escape the data directory.
func validateID(id string) error {
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid message ID %q", id)
	}
	return nil
}
