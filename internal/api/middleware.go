package api

import (
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amirk1998/stocktalk/internal/audit"
	"github.com/amirk1998/stocktalk/pkg/errors"
)

type ctxUserKey struct{}

// UserIDFromContext returns the id bound by the auth guard
func UserIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(ctxUserKey{}).(int)
	return id, ok
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// requestLogger tags the request with an id, puts a request-scoped logger in
// its context and writes one access line when it completes
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ip := s.clientIP(r)
		logger := s.log.With().Str("request_id", requestID).Logger()
		ctx := logger.WithContext(r.Context())
		ctx = audit.WithClientIP(ctx, ip)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		evt := logger.Info()
		if rec.status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Str("client", ip).
			Msg("request")
	})
}

// recoverer turns a panic into a 500
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				zerolog.Ctx(r.Context()).Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}

// rateLimit admits a bounded number of requests per client address
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r.Context())
		allowed, firstRejection := s.limiter.Attempt(ip)
		if !allowed {
			// one audit row per address per window, however hard it retries
			if firstRejection {
				s.audit.Log(&audit.Event{
					Level:     audit.LevelWarning,
					Action:    audit.ActionRateLimited,
					Resource:  r.Method + " " + r.URL.Path,
					IPAddress: ip,
					ErrorMsg:  errors.ErrRateLimitExceeded.Error(),
				})
			}
			writeError(w, r, errors.ErrRateLimitExceeded)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth rejects requests without a valid bearer token and binds the
// caller's id into the context
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserKey{}, userID)
		logger := zerolog.Ctx(ctx).With().Int("user_id", userID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header, or ""
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientIP is the peer address. Proxy headers are only believed when the
// deployment says a trusted proxy sits in front.
func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxy {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// notFound and methodNotAllowed keep router misses in the JSON error shape
func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, errors.NotFound("endpoint"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}
