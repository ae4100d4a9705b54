package email

import (
	"context"
	"errors"
	"fmt"
)

// Message is one outbound email with a plain text and an HTML alternative.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
	ReplyTo string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
	// Verify checks that the transport accepts a connection and credentials.
	Verify(ctx context.Context) error
}

const (
	CodeAuth       = "EAUTH"
	CodeEnvelope   = "EENVELOPE"
	CodeMessage    = "EMESSAGE"
	CodeConnection = "ECONNECTION"
	CodeTLS        = "ETLS"
)

var ErrNoRecipients = errors.New("no_recipients")

// SendError carries the SMTP conversation state at the point of failure.
type SendError struct {
	Message      string
	Code         string
	Response     string
	ResponseCode int
	Command      string
	Err          error
}

func (e *SendError) Error() string {
	if e.Response != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Response)
	}
	return e.Message
}

func (e *SendError) Unwrap() error { return e.Err }

// AsSendError returns err as a *SendError, wrapping unknown errors.
func AsSendError(err error) *SendError {
	if err == nil {
		return nil
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr
	}
	return &SendError{Message: err.Error(), Err: err}
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}

func (p *NoOpProvider) Verify(ctx context.Context) error {
	return nil
}
