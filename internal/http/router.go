package http

import (
	"log/slog"
	"net/http"

	"inboxrelay/internal/auth"
	"inboxrelay/internal/config"
	"inboxrelay/internal/http/handler"
	mw "inboxrelay/internal/http/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Deps is everything the router wires into handlers.
type Deps struct {
	Logger   *slog.Logger
	JWT      *auth.JWT
	Health   *handler.HealthHandler
	Tenants  *handler.Tenants
	Actions  handler.ActionQueue
	Messages handler.Ingester
	Accounts interface {
		handler.LoginStore
		handler.AccountReader
		handler.SettingsStore
		handler.AccountLookup
	}
	ActionList  handler.ActionLister
	MessageList handler.MessageLister
}

func NewRouter(cfg config.Config, d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(mw.AuditContext)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", d.Health.Live)
	r.Get("/readyz", d.Health.Readyz)

	r.Route("/api", func(r chi.Router) {
		ah := &handler.AuthHandler{Accounts: d.Accounts, JWT: d.JWT, Logger: d.Logger}
		r.Post("/auth/login", ah.Login)

		// extension
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireExtensionKey(cfg.ExtensionAPIKey))

			acts := &handler.ActionHandler{Queue: d.Actions, Tenants: d.Tenants}
			r.Get("/actions/pending", acts.Pending)
			r.Post("/actions/{id}/complete", acts.Complete)

			msgs := &handler.MessageHandler{Messages: d.Messages, Tenants: d.Tenants}
			r.Post("/messages/incoming", msgs.Incoming)
		})

		// operator
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(d.JWT, d.Accounts))

			me := &handler.MeHandler{Accounts: d.Accounts}
			r.Get("/me", me.Me)

			op := &handler.OperatorHandler{
				Actions:  d.ActionList,
				Messages: d.MessageList,
				Settings: d.Accounts,
				Logger:   d.Logger,
			}
			r.Route("/operator", func(r chi.Router) {
				r.Get("/actions", op.ListActions)
				r.Get("/messages", op.ListMessages)
				r.Get("/settings", op.GetSettings)
				r.Put("/settings", op.PutSettings)
			})
		})
	})

	return r
}
