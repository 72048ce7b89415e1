package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go/client"
	"github.com/twilio/twilio-go/twiml"

	"courtbot/internal/errs"
	"courtbot/internal/logging"
)

type Conversation interface {
	Handle(ctx context.Context, from, text string) (string, error)
}

// SMSHandler is the inbound-message webhook of the messaging provider.
type SMSHandler struct {
	Conversation Conversation
	// AuthToken enables X-Twilio-Signature validation when set.
	AuthToken string
	// PublicURL is the externally visible base URL the provider signs.
	PublicURL string
}

func (h *SMSHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if h.AuthToken != "" && !h.validSignature(r) {
		logging.Warn(r.Context(), "sms webhook signature rejected", slog.String("path", r.URL.Path))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	from, body := r.PostForm.Get("From"), r.PostForm.Get("Body")
	if from == "" {
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	}

	// the controller always returns a reply that is safe to send
	reply, err := h.Conversation.Handle(r.Context(), from, body)
	if err != nil {
		logging.Warn(r.Context(), "conversation error", slog.Any("err", errs.Loggable(err)))
	}

	xml, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: reply}})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xml))
}

func (h *SMSHandler) validSignature(r *http.Request) bool {
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := client.NewRequestValidator(h.AuthToken)
	return validator.Validate(h.requestURL(r), params, r.Header.Get("X-Twilio-Signature"))
}

func (h *SMSHandler) requestURL(r *http.Request) string {
	if h.PublicURL != "" {
		return h.PublicURL + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
