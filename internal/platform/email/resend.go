package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resend/resend-go/v2"
)

// Message describes a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender implements Sender on top of the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender constructs a sender using the given API key and from address.
func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("email: resend api key is required")
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("email: from address is required")
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}, nil
}

// Send delivers the message, returning an error when the recipient is missing
// or the API rejects the request.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("email: recipient is required")
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("email: send via resend: %w", err)
	}
	return nil
}
