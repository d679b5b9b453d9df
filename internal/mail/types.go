package mail

import (
	"context"
	"errors"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// Client defines the mailbox operations the jobs need from a provider.
type Client interface {
	// FindLatest returns the most recently received message matching the
	// provider-specific query, or nil when nothing matches.
	FindLatest(ctx context.Context, query string) (*Candidate, error)

	// RawContent returns the full RFC 5322 bytes of a message.
	RawContent(ctx context.Context, c *Candidate) ([]byte, error)

	// Send transmits a raw RFC 5322 message.
	Send(ctx context.Context, raw []byte) (*SentMessage, error)

	// Close cleans up resources
	Close() error
}

// Candidate is a message found by a search, not yet fetched.
type Candidate struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// SentMessage is what the provider reports after a successful send.
type SentMessage struct {
	ID  string `json:"id"`
	Raw []byte `json:"-"`
}

// Recipients are the addresses written into an outgoing message.
type Recipients struct {
	From *gomail.Address
	To   []*gomail.Address
	Bcc  []*gomail.Address
}

var (
	// ErrRawFetchFailed is returned when a message's content is unobtainable.
	ErrRawFetchFailed = errors.New("could not get raw message content")

	// ErrSendFailed is returned when the provider rejects a send.
	ErrSendFailed = errors.New("could not send email")
)

// Latest picks the most recently received candidate. Ties keep the earlier
// entry.
func Latest(candidates []Candidate) *Candidate {
	var latest *Candidate
	for i := range candidates {
		if latest == nil || candidates[i].ReceivedAt.After(latest.ReceivedAt) {
			latest = &candidates[i]
		}
	}
	return latest
}
