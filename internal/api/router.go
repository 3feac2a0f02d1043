package api

import (
	"errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/isdelr/rewear-be/internal/api/handlers"
	"github.com/isdelr/rewear-be/internal/auth"
	"github.com/isdelr/rewear-be/internal/config"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/metrics"
	"github.com/isdelr/rewear-be/internal/models"
	"github.com/isdelr/rewear-be/internal/services"
	"github.com/isdelr/rewear-be/internal/websocket"
)

var errPanic = errors.New("handler panicked")

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config  *config.Config
	Log     *logger.Logger
	Tokens  *auth.TokenManager
	Metrics *metrics.Metrics
	Hub     *websocket.Hub

	Users  services.UserServiceProvider
	Items  services.ItemServiceProvider
	Swaps  services.SwapServiceProvider
	Admin  services.AdminServiceProvider
	Events services.EventServiceProvider
}

// NewRouter creates and configures the Chi router. The route table is
// built once here and not modified afterwards.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	if d.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(d.Log)...)
	r.Use(d.Metrics.InstrumentHandler)
	r.Use(recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(d.Users, d.Tokens, d.Config.IsProduction())
	itemHandler := handlers.NewItemHandler(d.Items)
	swapHandler := handlers.NewSwapHandler(d.Swaps)
	adminHandler := handlers.NewAdminHandler(d.Admin)
	eventHandler := handlers.NewEventHandler(d.Events)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, d.Tokens, d.Config.AllowedOrigins)

	requireAuth := auth.Middleware(d.Tokens, handlers.WriteError)
	limiter := NewRateLimiter(d.Config.RateLimitRPS, d.Config.RateLimitBurst)

	r.Handle("/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		// WebSocket connection endpoint; validates its own credential
		r.Get("/ws", wsHandler.Serve)

		r.Route("/users", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limiter.Handler)
				r.Post("/register", userHandler.Register)
				r.Post("/login", userHandler.Login)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", userHandler.GetMe)
				r.Put("/me", userHandler.UpdateMe)
				r.Delete("/me", userHandler.DeleteMe)
				r.Put("/me/password", userHandler.ChangePassword)
				r.Get("/{id}", userHandler.Get)
			})
		})

		r.Route("/items", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", itemHandler.GetAll)
			r.Post("/", itemHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", itemHandler.Get)
				r.Put("/", itemHandler.Update)
				r.Delete("/", itemHandler.Delete)
			})
		})

		r.Route("/swaps", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", swapHandler.GetAll)
			r.Post("/", swapHandler.Propose)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", swapHandler.Get)
				r.Post("/accept", swapHandler.Accept)
				r.Post("/reject", swapHandler.Reject)
				r.Post("/cancel", swapHandler.Cancel)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(auth.RequireRole(models.RoleAdmin, handlers.WriteError))
			r.Get("/items/pending", adminHandler.PendingItems)
			r.Post("/items/{id}/approve", adminHandler.ApproveItem)
			r.Post("/items/{id}/reject", adminHandler.RejectItem)
			r.Get("/users", adminHandler.ListUsers)
			r.Post("/users/{id}/deactivate", adminHandler.DeactivateUser)
			r.Get("/events", eventHandler.GetRecent)
			r.Get("/stats", adminHandler.Stats)
		})
	})

	return r
}
