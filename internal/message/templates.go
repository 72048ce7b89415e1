// Package message renders the texts sent to subscribers. Wording is court
// specific and can be replaced from the court profile; templates use Liquid.
package message

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/osteele/liquid"
)

// Template keys.
const (
	Matched           = "matched"
	Expired           = "expired"
	Reminder          = "reminder"
	ReminderPrompt    = "reminder_prompt"
	QueuePrompt       = "queue_prompt"
	ReminderConfirmed = "reminder_confirmed"
	QueueConfirmed    = "queue_confirmed"
	Declined          = "declined"
	Clarify           = "clarify"
	InvalidID         = "invalid_id"
)

var defaultTemplates = map[string]string{
	Matched: "Hello from the {{ court }}. We found a case for {{ defendant | name }} scheduled on {{ date }}, " +
		"in courtroom {{ room }}. We will send you courtesy reminders before the hearing.",
	Expired: "We haven't been able to find your court case {{ case_id }}. You can go to {{ court_url }} " +
		"for more information. - {{ court }}",
	Reminder: "Courtesy reminder: {{ defendant | name }} has a court hearing on {{ date }}, in courtroom {{ room }}. " +
		"You should confirm your hearing date and time by going to {{ court_url }}. - {{ court }}",
	ReminderPrompt: "We found a case for {{ defendant | name }} scheduled on {{ date }}, in courtroom {{ room }}. " +
		"Would you like a courtesy reminder the day before? (reply YES or NO)",
	QueuePrompt: "Could not find a case with that number. It can take several days for a case to appear in our system. " +
		"Would you like us to keep checking for the next {{ ttl_days }} days and text you if we find it? (reply YES or NO)",
	ReminderConfirmed: "Sounds good. We will attempt to text you a courtesy reminder the day before your hearing date. " +
		"Court schedules change, so always confirm your hearing date and time at {{ court_url }}.",
	QueueConfirmed: "OK. We will keep checking for up to {{ ttl_days }} days. You can always go to {{ court_url }} " +
		"for more information about your case.",
	Declined: "You said no so we won't text you a reminder. You can always go to {{ court_url }} " +
		"for more information about your case.",
	Clarify:   "Sorry, I didn't understand that. Please reply YES or NO.",
	InvalidID: "Couldn't find your case. A case or citation number should be 4 to 25 letters and/or numbers long.",
}

// Data is the context a template can reference.
type Data struct {
	CaseID     string
	CitationID string
	Defendant  string
	Room       string
	Date       time.Time
}

type Config struct {
	Court     string
	CourtURL  string
	Location  *time.Location
	TTLDays   int
	Templates map[string]string
}

type Renderer struct {
	cfg       Config
	templates map[string]*liquid.Template
}

// NewRenderer parses every template up front so a broken court profile fails
// at start rather than on the first send.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	engine := liquid.NewEngine()
	engine.RegisterFilter("name", properName)

	sources := make(map[string]string, len(defaultTemplates))
	for k, v := range defaultTemplates {
		sources[k] = v
	}
	for k, v := range cfg.Templates {
		if _, ok := defaultTemplates[k]; !ok {
			return nil, fmt.Errorf("message: unknown template %q (known: %s)", k, strings.Join(Keys(), ", "))
		}
		if strings.TrimSpace(v) != "" {
			sources[k] = v
		}
	}

	r := &Renderer{cfg: cfg, templates: make(map[string]*liquid.Template, len(sources))}
	for k, src := range sources {
		tpl, err := engine.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("message: parse %s: %w", k, err)
		}
		r.templates[k] = tpl
	}
	return r, nil
}

func (r *Renderer) Render(key string, d Data) (string, error) {
	tpl, ok := r.templates[key]
	if !ok {
		return "", fmt.Errorf("message: unknown template %q", key)
	}

	bindings := liquid.Bindings{
		"case_id":     d.CaseID,
		"citation_id": d.CitationID,
		"defendant":   d.Defendant,
		"room":        d.Room,
		"date":        "",
		"court":       r.cfg.Court,
		"court_url":   r.cfg.CourtURL,
		"ttl_days":    r.cfg.TTLDays,
	}
	if !d.Date.IsZero() {
		bindings["date"] = d.Date.In(r.cfg.Location).Format("Mon, Jan 2 at 3:04 PM")
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("message: render %s: %w", key, err)
	}
	return strings.TrimSpace(out), nil
}

// Keys lists the template keys a court profile may override.
func Keys() []string {
	out := make([]string, 0, len(defaultTemplates))
	for k := range defaultTemplates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// properName turns export style "TURNER FREDERICK" into "Turner Frederick".
func properName(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
