package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"courtbot/internal/errs"
	"courtbot/internal/hearing"
	"courtbot/internal/jobs"
	"courtbot/internal/logging"
	"courtbot/internal/notify"
	"courtbot/internal/request"
)

type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// AdminHandler is the read-only operator API. Phone numbers leave it
// redacted to their last four digits.
type AdminHandler struct {
	DB           *gorm.DB
	Cipher       Decrypter
	Hearings     *hearing.Store
	RequestStore *request.Store
	RunRepo      *jobs.Repo
}

type notificationDTO struct {
	ID        uint64     `json:"id"`
	CaseID    string     `json:"case_id"`
	Phone     string     `json:"phone"`
	Type      string     `json:"type"`
	Error     *string    `json:"error"`
	EventDate *time.Time `json:"event_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type requestDTO struct {
	ID        uint64    `json:"id"`
	CaseID    string    `json:"case_id"`
	Phone     string    `json:"phone"`
	KnownCase bool      `json:"known_case"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type hearingDTO struct {
	CaseID    string        `json:"case_id"`
	Date      time.Time     `json:"date"`
	Defendant string        `json:"defendant"`
	Room      string        `json:"room"`
	Type      string        `json:"type"`
	Citations []citationDTO `json:"citations"`
}

type citationDTO struct {
	ID            string `json:"id"`
	ViolationCode string `json:"violation_code"`
	Description   string `json:"description"`
	Payable       bool   `json:"payable"`
}

// Notifications lists the audit trail, newest first.
// Query: type, case_id, failed=true, limit.
func (h *AdminHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	q := h.DB.WithContext(r.Context()).Model(&notify.Notification{})
	if v := strings.TrimSpace(r.URL.Query().Get("type")); v != "" {
		q = q.Where("type = ?", v)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("case_id")); v != "" {
		q = q.Where("case_id = ?", strings.ToUpper(v))
	}
	switch r.URL.Query().Get("failed") {
	case "true":
		q = q.Where("error is not null")
	case "false":
		q = q.Where("error is null")
	}

	var rows []notify.Notification
	if err := q.Order("created_at desc, id desc").Limit(limitParam(r, 50, 500)).Find(&rows).Error; err != nil {
		h.serverError(w, r, err)
		return
	}

	out := make([]notificationDTO, 0, len(rows))
	for _, n := range rows {
		out = append(out, notificationDTO{
			ID:        n.ID,
			CaseID:    n.CaseID,
			Phone:     h.redact(n.Phone),
			Type:      n.Type,
			Error:     n.Error,
			EventDate: n.EventDate,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Requests lists every request, active or not, for ?case_id=.
func (h *AdminHandler) Requests(w http.ResponseWriter, r *http.Request) {
	caseID := strings.TrimSpace(r.URL.Query().Get("case_id"))
	if caseID == "" {
		http.Error(w, "case_id is required", http.StatusBadRequest)
		return
	}
	rows, err := h.RequestStore.ListByCase(r.Context(), caseID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	out := make([]requestDTO, 0, len(rows))
	for _, q := range rows {
		out = append(out, requestDTO{
			ID:        q.ID,
			CaseID:    q.CaseID,
			Phone:     h.redact(q.Phone),
			KnownCase: q.KnownCase,
			Active:    q.Active,
			CreatedAt: q.CreatedAt,
			UpdatedAt: q.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Hearing looks up a case id or citation number.
func (h *AdminHandler) Hearing(w http.ResponseWriter, r *http.Request) {
	found, err := h.Hearings.Lookup(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, hearing.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	citations, err := h.Hearings.Citations(r.Context(), found.CaseID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	out := hearingDTO{
		CaseID:    found.CaseID,
		Date:      found.Date,
		Defendant: found.Defendant,
		Room:      found.Room,
		Type:      found.Type,
		Citations: make([]citationDTO, 0, len(citations)),
	}
	for _, c := range citations {
		out.Citations = append(out.Citations, citationDTO{
			ID:            c.CitationID,
			ViolationCode: c.ViolationCode,
			Description:   c.Description,
			Payable:       c.Payable,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Runs lists recent scheduled runs. Query: type, limit.
func (h *AdminHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.RunRepo.Recent(r.Context(), strings.ToUpper(r.URL.Query().Get("type")), limitParam(r, 50, 500))
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *AdminHandler) redact(enc string) string {
	plain, err := h.Cipher.Decrypt(enc)
	if err != nil {
		return "undecryptable"
	}
	return logging.RedactPhone(plain)
}

func (h *AdminHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Error(r.Context(), "admin api", slog.String("path", r.URL.Path), slog.Any("err", errs.Loggable(err)))
	http.Error(w, "server error", http.StatusInternalServerError)
}

func limitParam(r *http.Request, def, upper int) int {
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= upper {
			return n
		}
	}
	return def
}
