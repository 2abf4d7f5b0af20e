package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"pharmasure/internal/app"
	"pharmasure/internal/ratelimit"
	"pharmasure/internal/util"
	"pharmasure/pkg/storage"
	"pharmasure/pkg/upload"
)

const (
	defaultSourceURLExpiry = 15 * time.Minute
	maxJSONBody            = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Limiter throttles generation per user. Nil disables throttling.
	Limiter         *ratelimit.FixedWindowLimiter
	Archive         storage.Archive
	SourceURLExpiry time.Duration
	MaxUploadBytes  int64
	SanitizeHTML    bool
	CORSOrigins     []string
	TrustedProxies  *util.TrustedProxies
}

// Server exposes the Pharma-Sure HTTP API.
type Server struct {
	app             *app.App
	limiter         *ratelimit.FixedWindowLimiter
	archive         storage.Archive
	sourceURLExpiry time.Duration
	maxUploadBytes  int64
	sanitizer       *bluemonday.Policy
	corsOrigins     []string
	trusted         *util.TrustedProxies
	mux             *http.ServeMux
}

func New(cfg Config) *Server {
	s := &Server{
		app:             cfg.App,
		limiter:         cfg.Limiter,
		archive:         cfg.Archive,
		sourceURLExpiry: cfg.SourceURLExpiry,
		maxUploadBytes:  cfg.MaxUploadBytes,
		corsOrigins:     cfg.CORSOrigins,
		trusted:         cfg.TrustedProxies,
		mux:             http.NewServeMux(),
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = upload.MaxSize
	}
	if s.sourceURLExpiry <= 0 {
		s.sourceURLExpiry = defaultSourceURLExpiry
	}
	if cfg.SanitizeHTML {
		s.sanitizer = bluemonday.UGCPolicy()
	}
	s.routes()
	return s
}

// Router returns the handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithSecurityHeaders(s.trusted, h)
	h = util.WithCORS(s.corsOrigins, h)
	h = util.WithRequestLog(h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/reset", s.handleReset)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))

	s.mux.Handle("/api/creations", s.authenticated(s.handleCreations))
	s.mux.Handle("/api/creations/{id}", s.authenticated(s.handleCreation))
	s.mux.Handle("/api/creations/{id}/html", s.authenticated(s.handleCreationHTML))
	s.mux.Handle("/api/creations/{id}/source", s.authenticated(s.handleCreationSource))

	s.mux.Handle("/api/chat", s.authenticated(s.handleChat))
	s.mux.Handle("/api/chat/active", s.authenticated(s.handleChatActive))
	s.mux.Handle("/api/chat/orders", s.authenticated(s.handleChatOrder))
	s.mux.Handle("/api/chat/ws", s.authenticated(s.handleChatStream))
	s.mux.Handle("/api/chat/{channel}/messages", s.authenticated(s.handleChatMessages))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionHandler func(http.ResponseWriter, *http.Request, *app.Session)

// authenticated resolves the bearer token, or the token query parameter for
// browser WebSocket clients, to a live session.
func (s *Server) authenticated(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			tok = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if tok == "" {
			s.audit(r, "session.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		sess, err := s.app.Session(tok)
		if err != nil {
			s.audit(r, "session.authorize", "fail", "reason", "invalid_or_ended_session")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, sess)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, tok, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
