package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"courtbot/internal/errs"
	"courtbot/internal/logging"
	"courtbot/internal/message"
)

type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type Renderer interface {
	Render(key string, d message.Data) (string, error)
}

// Message is one notification to dispatch.
type Message struct {
	CaseID string
	// Phone is the stored ciphertext.
	Phone     string
	Kind      Kind
	Data      message.Data
	EventDate *time.Time
}

// Result is the outcome of a dispatch whose audit row was written. Err holds
// the delivery failure, if any; it is already recorded on Notification.
type Result struct {
	Notification Notification
	Err          error
}

type Dispatcher struct {
	DB          *gorm.DB
	Cipher      Decrypter
	Messenger   Messenger
	Renderer    Renderer
	From        string
	SendTimeout time.Duration
	Now         func() time.Time
}

// Notify decrypts the phone, renders and sends the message, then appends a
// notification row. Delivery failures come back in Result.Err and never as
// the returned error, which is reserved for failing to write the audit row.
func (d *Dispatcher) Notify(ctx context.Context, m Message) (Result, error) {
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "notify.dispatcher"),
		slog.String("case_id", m.CaseID),
		slog.String("type", string(m.Kind)),
	)

	sendErr := d.deliver(ctx, m)

	n := Notification{
		CaseID:    m.CaseID,
		Phone:     m.Phone,
		Type:      string(m.Kind),
		EventDate: m.EventDate,
		CreatedAt: d.now(),
	}
	if sendErr != nil {
		msg := sendErr.Error()
		n.Error = &msg
	}
	if err := d.DB.WithContext(ctx).Create(&n).Error; err != nil {
		return Result{Notification: n, Err: sendErr}, errs.Wrap(err, "record notification")
	}

	if sendErr != nil {
		logging.Warn(ctx, "notification failed", slog.Any("err", errs.Loggable(sendErr)))
	} else {
		logging.Info(ctx, "notification sent")
	}
	return Result{Notification: n, Err: sendErr}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) error {
	to, err := d.Cipher.Decrypt(m.Phone)
	if err != nil {
		return errs.Wrap(err, "decrypt phone")
	}
	body, err := d.Renderer.Render(string(m.Kind), m.Data)
	if err != nil {
		return err
	}

	if d.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.SendTimeout)
		defer cancel()
	}
	if err := d.Messenger.Send(ctx, to, d.From, body); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errs.Wrapf(err, "send timed out after %s", d.SendTimeout)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}
