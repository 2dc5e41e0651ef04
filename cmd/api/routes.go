package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parley/internal/middleware"
)

// routes assembles the router: public auth endpoints behind the rate
// limiter, everything else behind the bearer-token perimeter.
func (s *Server) routes(authMW *middleware.AuthMiddleware, limiter *middleware.LimiterStore) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(s.log))
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter))
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)

			r.Post("/auth/logout", s.handleLogout)

			r.Get("/events", s.handleEvents)
			r.Get("/unread", s.handleUnreadGlobal)
			r.Get("/users", s.handleLookupUser)
			r.Get("/me", s.handleMe)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", s.handleListConversations)
				r.Post("/direct", s.handleCreateDirect)
				r.Post("/groups", s.handleCreateGroup)

				r.Route("/{id}", func(r chi.Router) {
					r.Patch("/", s.handlePatchGroup)
					r.Delete("/", s.handleDeleteGroup)
					r.Post("/participants", s.handleAddParticipants)
					r.Delete("/participants/{userId}", s.handleRemoveParticipant)
					r.Post("/mute", s.handleToggleMute)
					r.Post("/typing", s.handleTyping)

					r.Get("/messages", s.handleListMessages)
					r.Post("/messages", s.handleSendMessage)
					r.Patch("/messages/{messageId}", s.handleEditMessage)
					r.Delete("/messages/{messageId}", s.handleDeleteMessage)
					r.Put("/messages/{messageId}/reaction", s.handleReact)
				})
			})
		})
	})

	return r
}
