package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studybuddy-backend/internal/handlers"
	"studybuddy-backend/internal/middleware"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	studyHandler *handlers.StudyHandler,
	playbackHandler *handlers.PlaybackHandler,
	materialsHandler *handlers.MaterialsHandler,
	jobsHandler *handlers.JobsHandler,
	wsHandler http.HandlerFunc,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(frontendURL))

	// 10 req/min per IP on auth, 20 req/min per user on AI calls
	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	aiLimiter := middleware.NewRateLimiter(20, time.Minute)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		// ──── AI Routes ────
		r.Route("/ai", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(aiLimiter.Middleware)
			r.Post("/process", studyHandler.Process)
			r.Post("/speech", studyHandler.Speech)
		})

		// ──── History ────
		r.Route("/history", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", studyHandler.History)
			r.Get("/{id}", studyHandler.GetSession)
		})

		// ──── Playback ────
		r.Route("/playback", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", playbackHandler.State)
			r.With(aiLimiter.Middleware).Post("/play", playbackHandler.Play)
			r.Post("/stop", playbackHandler.Stop)
		})

		// ──── Materials ────
		r.Route("/materials", func(r chi.Router) {
			r.Get("/supported-formats", materialsHandler.SupportedFormats) // Public

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/upload", materialsHandler.Upload)
				r.Post("/youtube", materialsHandler.YouTube)
			})
		})

		// ──── Jobs ────
		r.With(jwtAuth.Middleware).Get("/jobs/{id}", jobsHandler.Get)

		// ──── WebSocket (authenticates via ?token=) ────
		r.Get("/ws", wsHandler)
	})

	return r
}
