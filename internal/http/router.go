package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"courtbot/internal/auth"
	"courtbot/internal/config"
	"courtbot/internal/hearing"
	"courtbot/internal/http/handler"
	mw "courtbot/internal/http/middleware"
	"courtbot/internal/jobs"
	"courtbot/internal/request"
)

type Deps struct {
	DB           *gorm.DB
	Conversation handler.Conversation
	Cipher       handler.Decrypter
	// JWT is nil when no JWT_SECRET is configured; the admin API is then
	// not mounted.
	JWT *auth.JWT
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	sms := &handler.SMSHandler{
		Conversation: d.Conversation,
		AuthToken:    cfg.TwilioAuthToken,
		PublicURL:    cfg.PublicURL,
	}
	r.Post("/sms", sms.Receive)

	if d.JWT == nil {
		return r
	}

	r.Group(func(r chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
		}

		ah := &handler.AuthHandler{Users: &auth.Users{DB: d.DB}, JWT: d.JWT}
		r.Post("/auth/login", ah.Login)

		admin := &handler.AdminHandler{
			DB:           d.DB,
			Cipher:       d.Cipher,
			Hearings:     &hearing.Store{DB: d.DB},
			RequestStore: &request.Store{DB: d.DB},
			RunRepo:      &jobs.Repo{DB: d.DB},
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAuth(d.JWT))

			r.Get("/notifications", admin.Notifications)
			r.Get("/requests", admin.Requests)
			r.Get("/hearings/{id}", admin.Hearing)
			r.Get("/runs", admin.Runs)
		})
	})

	return r
}
