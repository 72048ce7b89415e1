// Package conversation answers inbound texts. A person texts a case or
// citation number, is offered a reminder (case found) or a queued search
// (case not found yet), and confirms with YES or NO.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courtbot/internal/errs"
	"courtbot/internal/hearing"
	"courtbot/internal/logging"
	"courtbot/internal/message"
	"courtbot/internal/phone"
	"courtbot/internal/request"
)

var validID = regexp.MustCompile(`^[A-Z0-9]{4,25}$`)

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

type HearingLookup interface {
	Lookup(ctx context.Context, id string) (*hearing.Hearing, error)
}

type Renderer interface {
	Render(key string, d message.Data) (string, error)
}

type Controller struct {
	DB       *gorm.DB
	Cipher   Encrypter
	Hearings HearingLookup
	Requests *request.Store
	Renderer Renderer
	// LegacyQueue stores queue confirmations as QueuedItems.
	LegacyQueue bool
	// SessionTTL resets sessions idle for longer. Zero means 24h.
	SessionTTL time.Duration
	Now        func() time.Time
}

// Handle processes one inbound text and returns the reply. Errors are for
// the caller's log only; the reply is always safe to send.
func (c *Controller) Handle(ctx context.Context, from, text string) (string, error) {
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "conversation"),
		logging.Phone("from", from),
	)

	reply, err := c.handle(ctx, from, text)
	if err != nil {
		logging.Error(ctx, "inbound text failed", slog.Any("err", errs.Loggable(err)))
		if fallback, rerr := c.Renderer.Render(message.Clarify, message.Data{}); rerr == nil {
			return fallback, err
		}
		return "Sorry, something went wrong. Please try again later.", err
	}
	return reply, nil
}

func (c *Controller) handle(ctx context.Context, from, text string) (string, error) {
	// one subscriber per number however the carrier formats it
	number, err := phone.Normalize(from)
	if err != nil {
		return "", errs.Wrap(err, "normalize sender")
	}
	enc, err := c.Cipher.Encrypt(number)
	if err != nil {
		return "", errs.Wrap(err, "encrypt phone")
	}

	sess, err := c.load(ctx, enc)
	if err != nil {
		return "", err
	}

	if sess.State == Idle {
		return c.lookup(ctx, sess, text)
	}

	intent := Classify(text)
	tr, ok := transitions[sess.State][intent]
	if !ok {
		return "", errs.Wrapf(errors.New("no transition"), "state %s", sess.State)
	}

	var reply string
	switch tr.act {
	case actReprompt:
		return c.Renderer.Render(message.Clarify, message.Data{})
	case actConfirmReminder:
		if _, _, err := c.Requests.Create(ctx, enc, sess.CaseID, true); err != nil {
			return "", err
		}
		reply, err = c.Renderer.Render(message.ReminderConfirmed, message.Data{CaseID: sess.CaseID})
	case actConfirmQueue:
		if c.LegacyQueue {
			_, err = c.Requests.Queue(ctx, enc, sess.CitationID)
		} else {
			_, _, err = c.Requests.Create(ctx, enc, sess.CitationID, false)
		}
		if err != nil {
			return "", err
		}
		reply, err = c.Renderer.Render(message.QueueConfirmed, message.Data{CaseID: sess.CitationID})
	case actDecline:
		reply, err = c.Renderer.Render(message.Declined, message.Data{})
	}
	if err != nil {
		return "", err
	}

	logging.Info(ctx, "conversation transition",
		slog.String("from_state", string(sess.State)),
		slog.String("to_state", string(tr.next)))
	if err := c.save(ctx, Session{Phone: enc, State: tr.next}); err != nil {
		return "", err
	}
	return reply, nil
}

// lookup treats idle input as a case or citation number.
func (c *Controller) lookup(ctx context.Context, sess Session, text string) (string, error) {
	id := normalizeID(text)
	if !validID.MatchString(id) {
		return c.Renderer.Render(message.InvalidID, message.Data{})
	}

	h, err := c.Hearings.Lookup(ctx, id)
	switch {
	case err == nil:
		reply, err := c.Renderer.Render(message.ReminderPrompt, message.Data{
			CaseID: h.CaseID, CitationID: id, Defendant: h.Defendant, Room: h.Room, Date: h.Date,
		})
		if err != nil {
			return "", err
		}
		return reply, c.save(ctx, Session{Phone: sess.Phone, State: AwaitingReminderConfirmation, CaseID: h.CaseID})
	case errors.Is(err, hearing.ErrNotFound):
		reply, err := c.Renderer.Render(message.QueuePrompt, message.Data{CaseID: id, CitationID: id})
		if err != nil {
			return "", err
		}
		return reply, c.save(ctx, Session{Phone: sess.Phone, State: AwaitingQueueConfirmation, CitationID: id})
	default:
		return "", errs.Wrap(err, "lookup hearing")
	}
}

// Session returns the current state for an encrypted phone.
func (c *Controller) Session(ctx context.Context, enc string) (Session, error) {
	return c.load(ctx, enc)
}

func (c *Controller) load(ctx context.Context, enc string) (Session, error) {
	var s Session
	err := c.DB.WithContext(ctx).Where("phone = ?", enc).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{Phone: enc, State: Idle}, nil
	}
	if err != nil {
		return Session{}, errs.Wrap(err, "load session")
	}
	if c.now().Sub(s.UpdatedAt) > c.sessionTTL() {
		return Session{Phone: enc, State: Idle}, nil
	}
	return s, nil
}

func (c *Controller) save(ctx context.Context, s Session) error {
	s.UpdatedAt = c.now()
	err := c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "case_id", "citation_id", "updated_at"}),
	}).Create(&s).Error
	return errs.Wrap(err, "save session")
}

func (c *Controller) sessionTTL() time.Duration {
	if c.SessionTTL > 0 {
		return c.SessionTTL
	}
	return 24 * time.Hour
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

// normalizeID drops spaces, dashes and dots people type inside numbers.
func normalizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '\t', '\n', '\r':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

func normalizeWord(s string) string {
	return strings.ToUpper(strings.Trim(s, " \t\r\n.!?,"))
}
