package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the HTTP routes. stream may be nil, in which case the
// websocket endpoint is not served.
func NewRouter(h *Handler, verifier TokenVerifier, stream *RateStream, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/trades", func(r chi.Router) {
		r.Get("/rates", h.GetRates)
		if stream != nil {
			r.Get("/rates/stream", stream.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate(verifier))
			r.Post("/", h.ExecuteTrade)
			r.Get("/history", h.GetHistory)
		})
	})

	return r
}
