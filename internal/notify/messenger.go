package notify

import (
	"context"
	"log/slog"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"courtbot/internal/logging"
)

// Messenger delivers one SMS. Errors are reported verbatim in the
// notification audit trail.
type Messenger interface {
	Send(ctx context.Context, to, from, body string) error
}

type Twilio struct {
	client *twilio.RestClient
}

func NewTwilio(accountSID, authToken string) *Twilio {
	return &Twilio{client: twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})}
}

// Send gives up waiting when ctx ends; the request itself is bounded by the
// Twilio client's own HTTP timeout.
func (t *Twilio) Send(ctx context.Context, to, from, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	done := make(chan error, 1)
	go func() {
		_, err := t.client.Api.CreateMessage(params)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogMessenger writes messages to the log instead of sending them. It is used
// when no Twilio account is configured.
type LogMessenger struct{}

func (LogMessenger) Send(ctx context.Context, to, from, body string) error {
	logging.Info(ctx, "sms not sent (no messaging account configured)",
		logging.Phone("to", to),
		slog.String("body", body),
	)
	return nil
}
