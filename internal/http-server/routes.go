package httpserver

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		// Public auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.HandleSignup)
			r.Post("/signin", s.HandleSignin)
			r.Post("/refresh", s.HandleRefreshToken)
			r.With(s.AuthMiddleware).Post("/signout", s.HandleSignout)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			r.Post("/", s.HandleCreateSession)
			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", s.HandleGetSession)
				r.Delete("/", s.HandleDeleteSession)
				r.Post("/reset", s.HandleResetSession)
				r.Post("/messages", s.HandleSendMessage)
				r.Post("/images", s.HandlePickImage)
				r.Post("/voice-notes", s.HandleVoiceNote)
				r.Post("/files", s.HandleUploadFile)
				r.Post("/files/{fileId}/actions", s.HandleFileAction)
				r.Post("/gestures", s.HandleGesture)
				r.Post("/speech", s.HandleSpeech)
				r.Get("/events", s.HandleEvents)
			})
		})
	})

	return r
}
