package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/amirk1998/stocktalk/internal/ratelimit"
	"github.com/amirk1998/stocktalk/internal/service"
)

// DefaultCORSOrigins are the front ends allowed to call the API
var DefaultCORSOrigins = []string{
	"https://stocktalk.pages.dev",
	"http://localhost:5000",
	"http://localhost:3000",
}

type Config struct {
	CORSOrigins []string
	// TrustProxy makes CF-Connecting-IP and X-Forwarded-For the client address
	TrustProxy bool
}

// Server holds the HTTP surface of the API
type Server struct {
	auth    *service.AuthService
	posts   *service.PostService
	chats   *service.ChatService
	limiter *ratelimit.WindowLimiter
	audit   service.AuditLogger
	log     zerolog.Logger
	cfg     Config
	handler http.Handler
}

// NewServer wires the routes and the middleware pipeline
func NewServer(
	cfg Config,
	auth *service.AuthService,
	posts *service.PostService,
	chats *service.ChatService,
	limiter *ratelimit.WindowLimiter,
	auditLogger service.AuditLogger,
	log zerolog.Logger,
) *Server {
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = DefaultCORSOrigins
	}

	s := &Server{
		auth:    auth,
		posts:   posts,
		chats:   chats,
		limiter: limiter,
		audit:   auditLogger,
		log:     log,
		cfg:     cfg,
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           3600,
	})

	// outermost first
	var h http.Handler = s.routes()
	h = s.rateLimit(h)
	h = corsHandler(h)
	h = securityHeaders(h)
	h = recoverer(h)
	h = s.requestLogger(h)
	s.handler = h

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	guard := func(h http.HandlerFunc) http.Handler { return s.requireAuth(h) }

	// all routes sit on the root router so a path known under another
	// method answers 405 rather than 404
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/signup", s.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.Handle("/api/auth/verify", guard(s.handleVerify)).Methods(http.MethodPost)
	r.Handle("/api/auth/account", guard(s.handleDeleteAccount)).Methods(http.MethodDelete)

	r.HandleFunc("/api/posts", s.handleListPosts).Methods(http.MethodGet)
	r.Handle("/api/posts", guard(s.handleCreatePost)).Methods(http.MethodPost)
	r.HandleFunc("/api/posts/{id:[0-9]+}", s.handleGetPost).Methods(http.MethodGet)
	r.Handle("/api/posts/{id:[0-9]+}", guard(s.handleUpdatePost)).Methods(http.MethodPut)
	r.Handle("/api/posts/{id:[0-9]+}", guard(s.handleDeletePost)).Methods(http.MethodDelete)
	r.Handle("/api/posts/{id:[0-9]+}/like", guard(s.handleToggleLike)).Methods(http.MethodPost)
	r.Handle("/api/posts/{id:[0-9]+}/like-status", guard(s.handleLikeStatus)).Methods(http.MethodGet)

	r.HandleFunc("/api/chats", s.handleListChats).Methods(http.MethodGet)
	r.Handle("/api/chats", guard(s.handleCreateChat)).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
