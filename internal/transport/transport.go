// Package transport defines the messaging port the rest of the system sends
// through. The concrete chat integration lives outside this repo; it speaks
// to us via Sender on the way out and the inbound webhook on the way in.
package transport

import "context"

type Outcome int

const (
	// Delivered means the transport accepted the message for the user.
	Delivered Outcome = iota
	// Blocked means the user can never be reached again (left the platform,
	// blocked the seller). Callers stop trying permanently.
	Blocked
	// TransientError means the send may succeed if retried.
	TransientError
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Blocked:
		return "blocked"
	default:
		return "transient_error"
	}
}

// Message is one outbound payload. Attachment carries artifact or payment
// code bytes when set.
type Message struct {
	Text       string
	Attachment []byte
}

type Sender interface {
	Send(ctx context.Context, userID int64, msg Message) (Outcome, error)
}

// Update is the inbound webhook body.
type Update struct {
	UserID        int64  `json:"user_id"`
	Username      string `json:"username"`
	FirstName     string `json:"first_name"`
	Payload       string `json:"payload"`
	AttachmentRef string `json:"attachment_ref"`
}
