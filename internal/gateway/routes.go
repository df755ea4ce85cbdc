package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router builds the HTTP routing tree. Exported so tests can mount it on an
// httptest server without binding a real port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/ws/chat", s.relay.ServeHTTP)

	// Visitor widgets read their own transcript without auth; a session id
	// is an unguessable uuid and acts as the capability.
	r.Get("/api/chat/messages/session/{sessionId}", s.handleSessionTranscript)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/api/chat/messages", s.handleListMessages)
		r.Put("/api/chat/messages/{id}/read", s.handleMarkRead)
		r.Post("/api/chat/messages/{id}/reply", s.handleReply)
		r.Get("/api/chat/stats", s.handleStats)
		r.Delete("/api/chat/session/{sessionId}", s.handleDeleteSession)
	})

	r.NotFound(handleNotFound)
	return r
}

// requestLogger logs each HTTP request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("http request")
	})
}
