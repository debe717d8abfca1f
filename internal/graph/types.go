package graph

// User represents the signed-in user's profile as returned by /me.
type User struct {
	// DisplayName is the user's full display name
	DisplayName string `json:"displayName"`

	// Mail is the user's primary SMTP address; empty when no mailbox exists
	Mail string `json:"mail"`

	// UserPrincipalName is the sign-in name, usually resembling an email address
	UserPrincipalName string `json:"userPrincipalName"`
}

// EmailAddress is a name/address pair used in message sender fields.
type EmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Recipient wraps an email address the way Graph message payloads do.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// Message is an inbox message with the fields the mail tools project.
type Message struct {
	// ID is the Graph message identifier
	ID string `json:"id"`

	// Subject is the message subject line
	Subject string `json:"subject"`

	// From is the sender
	From *Recipient `json:"from,omitempty"`

	// IsRead indicates whether the message has been read
	IsRead bool `json:"isRead"`

	// ReceivedDateTime is the delivery timestamp in RFC 3339 format
	ReceivedDateTime string `json:"receivedDateTime"`

	// BodyPreview is the first part of the message body as plain text
	BodyPreview string `json:"bodyPreview"`
}

// MessageList is a page of messages from a mail folder listing.
type MessageList struct {
	Value []Message `json:"value"`

	// NextLink points to the next page when more messages exist
	NextLink string `json:"@odata.nextLink"`
}

// apiError is the error envelope Graph returns on non-2xx responses.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
