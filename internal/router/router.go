// Package router mounts every HTTP surface of the marketplace on one chi mux.
package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upmolt/backend/internal/admin"
	"github.com/upmolt/backend/internal/auth"
	"github.com/upmolt/backend/internal/handlers"
	"github.com/upmolt/backend/internal/middleware"
	"github.com/upmolt/backend/internal/models"
	"github.com/upmolt/backend/internal/registry"
)

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth          *auth.Handler
	Registry      *registry.Handler
	Admin         *admin.Handler
	Tasks         *handlers.TaskHandler
	Gigs          *handlers.GigHandler
	Payments      *handlers.PaymentHandler
	Subscriptions *handlers.SubscriptionHandler
	Notifications *handlers.NotificationHandler
	Agent         *handlers.AgentHandler

	Sessions middleware.Authenticator
	AgentKeys middleware.AgentKeyStore
	IsAdmin   func(context.Context, *models.User) bool
	DB        Pinger
	Logger    *slog.Logger
}

// New returns the API handler. Browser routes live under /api and resolve
// the session cookie or bearer token; /api/agent routes authenticate with
// an agent API key instead.
func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	requireUser := middleware.RequireUser(log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", health(d.DB, log))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Session(d.Sessions, log))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", d.Auth.Register)
			r.Post("/login", d.Auth.Login)
			r.Get("/session", d.Auth.Session)
			r.Post("/logout", d.Auth.Logout)
		})

		// marketplace
		r.Get("/agents", d.Registry.ListAgents)
		r.Get("/agents/featured", d.Registry.Featured)
		r.Get("/agents/{slug}", d.Registry.AgentBySlug)
		r.Get("/categories", d.Registry.Categories)
		r.Get("/stats", d.Registry.Stats)

		r.Route("/creator", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/agents", d.Registry.MyAgents)
			r.Post("/agents", d.Registry.CreateAgent)
			r.Post("/agents/test", d.Registry.TestConnection)
			r.Put("/agents/{id}", d.Registry.UpdateAgent)
			r.Delete("/agents/{id}", d.Registry.DeleteAgent)
			r.Get("/earnings", d.Registry.Earnings)
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/callback", d.Tasks.Callback)
			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/", d.Tasks.ListTasks)
				r.Post("/", d.Tasks.CreateTask)
				r.Post("/use-subscription", d.Tasks.UseSubscription)
				r.Get("/{id}", d.Tasks.GetTask)
				r.Post("/{id}/review", d.Tasks.SubmitReview)
			})
		})

		r.Route("/gigs", func(r chi.Router) {
			r.Get("/", d.Gigs.List)
			r.Get("/{id}", d.Gigs.Detail)
			r.Get("/{id}/comments", d.Gigs.ListComments)
			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", d.Gigs.Create)
				r.Get("/mine", d.Gigs.Mine)
				r.Post("/{id}/apply", d.Gigs.Apply)
				r.Post("/{id}/accept", d.Gigs.Accept)
				r.Post("/{id}/submit", d.Gigs.Submit)
				r.Post("/{id}/approve", d.Gigs.Approve)
				r.Post("/{id}/revise", d.Gigs.RequestRevision)
				r.Post("/{id}/comments", d.Gigs.Comment)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/sol-price", d.Payments.SOLPrice)
			r.With(requireUser).Post("/", d.Payments.Create)
			r.With(requireUser).Post("/verify", d.Payments.Verify)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", d.Subscriptions.List)
			r.Post("/", d.Subscriptions.Subscribe)
			r.Get("/check", d.Subscriptions.Check)
			r.Post("/{id}/cancel", d.Subscriptions.Cancel)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", d.Notifications.List)
			r.Put("/", d.Notifications.MarkRead)
			r.Get("/unread", d.Notifications.Unread)
		})

		r.Route("/agent", func(r chi.Router) {
			r.Post("/register", d.Registry.Register)
			r.Get("/claim/info", d.Registry.ClaimInfo)
			r.With(requireUser).Post("/claim", d.Registry.Claim)

			r.Group(func(r chi.Router) {
				r.Use(middleware.AgentKeyAuth(d.AgentKeys, log))
				r.Get("/me", d.Agent.Me)
				r.Get("/gigs", d.Agent.Feed)
				r.Get("/gigs/mine", d.Agent.Mine)
				r.Get("/gigs/{id}", d.Agent.Gig)
				r.Post("/gigs/{id}/apply", d.Agent.Apply)
				r.Post("/gigs/{id}/submit", d.Agent.Submit)
				r.Get("/gigs/{id}/comments", d.Agent.ListComments)
				r.Post("/gigs/{id}/comments", d.Agent.Comment)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/check", d.Admin.Check)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(d.IsAdmin, log))
				r.Get("/stats", d.Admin.Stats)
				r.Get("/users", d.Admin.Users)
				r.Get("/agents", d.Admin.Agents)
				r.Get("/tasks", d.Admin.Tasks)
				r.Put("/agents/{id}", d.Admin.ModerateAgent)
			})
		})
	})

	return r
}

func health(db Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				log.Warn("health check", "error", err)
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
