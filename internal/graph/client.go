package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// BaseURL is the Microsoft Graph v1.0 endpoint.
const BaseURL = "https://graph.microsoft.com/v1.0"

const (
	// DefaultMessageTop is the page size used when listing inbox messages.
	DefaultMessageTop = 25

	// maxMessagePages caps nextLink pagination so a huge mailbox cannot
	// turn a single tool call into an unbounded crawl.
	maxMessagePages = 10

	requestTimeout = 30 * time.Second
)

// messageSelect limits message listings to the fields the tools project.
const messageSelect = "id,subject,from,isRead,receivedDateTime,bodyPreview"

// userSelect limits the /me profile to the fields the greeting needs.
const userSelect = "displayName,mail,userPrincipalName"

// Client wraps the Graph REST API for a single authenticated user.
type Client struct {
	source  oauth2.TokenSource
	client  *http.Client
	baseURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the Graph endpoint. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the underlying HTTP client. The client is used as-is;
// authentication headers are still added per request from the token source.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a Graph client authenticating with tokens from source.
func NewClient(source oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		source:  source,
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: BaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Me retrieves the signed-in user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	u := c.baseURL + "/me?$select=" + userSelect

	var user User
	if err := c.getJSON(ctx, u, &user); err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return &user, nil
}

// InboxMessages lists messages from the user's inbox, newest first,
// following pagination links up to an internal page cap. A top of 0 uses
// DefaultMessageTop.
func (c *Client) InboxMessages(ctx context.Context, top int) ([]Message, error) {
	if top <= 0 {
		top = DefaultMessageTop
	}

	query := url.Values{
		"$select":  {messageSelect},
		"$top":     {strconv.Itoa(top)},
		"$orderby": {"receivedDateTime DESC"},
	}
	next := c.baseURL + "/me/mailFolders/inbox/messages?" + query.Encode()

	var messages []Message
	for page := 0; next != "" && page < maxMessagePages; page++ {
		var list MessageList
		if err := c.getJSON(ctx, next, &list); err != nil {
			return nil, fmt.Errorf("failed to list inbox messages: %w", err)
		}
		messages = append(messages, list.Value...)
		next = list.NextLink
	}

	return messages, nil
}

// AccessToken returns the raw Graph access token for the current user.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	token, err := c.source.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	return token.AccessToken, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) error {
	token, err := c.source.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Code != "" {
			return fmt.Errorf("graph API error %s: %s", ae.Error.Code, ae.Error.Message)
		}
		return fmt.Errorf("graph API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
