package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"medexplain/internal/app"
	"medexplain/internal/util"
	"medexplain/pkg/domain"
	"medexplain/pkg/lang"
)

const (
	defaultMaxUploadBytes = 10 << 20
	maxJSONBytes          = 1 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Logger         *slog.Logger
	MaxUploadBytes int64
	CORSOrigins    []string
	TrustedProxies util.TrustedProxies
}

// Server exposes the HTTP API.
type Server struct {
	app            *app.App
	logger         *slog.Logger
	mux            *http.ServeMux
	maxUploadBytes int64
	corsOrigins    []string
	trusted        util.TrustedProxies
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	s := &Server{
		app:            cfg.App,
		logger:         logger,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUpload,
		corsOrigins:    cfg.CORSOrigins,
		trusted:        cfg.TrustedProxies,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.corsOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/verify", s.authenticated(s.handleVerify))
	s.mux.Handle("/api/auth/logout", s.authenticated(s.handleLogout))

	// users
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/users/stats", s.authenticated(s.handleStats))

	// reports
	s.mux.Handle("/api/reports", s.authenticated(s.handleReports))
	s.mux.Handle("/api/reports/upload", s.authenticated(s.handleUpload))
	s.mux.Handle("/api/reports/", s.authenticated(s.handleReportByID))

	// chat
	s.mux.Handle("/api/chat/message", s.authenticated(s.handleChatMessage))
	s.mux.Handle("/api/chat/history", s.authenticated(s.handleAllChatHistory))
	s.mux.Handle("/api/chat/history/", s.authenticated(s.handleChatHistory))
	s.mux.Handle("/api/chat/clear/", s.authenticated(s.handleClearChat))
	s.mux.Handle("/api/chat/messages/", s.authenticated(s.handleDeleteMessage))

	// ai utilities
	s.mux.HandleFunc("/api/ai/supported-languages", s.handleSupportedLanguages)
	s.mux.Handle("/api/ai/translate", s.authenticated(s.handleTranslate))
	s.mux.Handle("/api/ai/explain", s.authenticated(s.handleExplain))
	s.mux.Handle("/api/ai/health-tips", s.authenticated(s.handleHealthTips))
	s.mux.Handle("/api/ai/key-findings", s.authenticated(s.handleKeyFindings))
	s.mux.Handle("/api/ai/analyze", s.authenticated(s.handleAnalyze))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "access token required")
			return
		}
		user, err := s.app.Authenticate(token)
		if err != nil {
			if !errors.Is(err, app.ErrUnauthorized) {
				s.writeAppError(w, r, err)
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

type registerRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	PreferredLanguage string `json:"preferredLanguage"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
}

type updateMeRequest struct {
	FirstName         *string `json:"firstName"`
	LastName          *string `json:"lastName"`
	PreferredLanguage *string `json:"preferredLanguage"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Register(app.Registration{
		Email:             req.Email,
		Password:          req.Password,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		s.audit(r, slog.LevelWarn, "register_failed", "reason", err.Error())
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, slog.LevelInfo, "register", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Message: "User registered successfully", Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			s.audit(r, slog.LevelWarn, "login_failed", "email", strings.ToLower(strings.TrimSpace(req.Email)))
		}
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, slog.LevelInfo, "login", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Message: "Login successful", Token: token, User: user})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "user": user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(token); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, slog.LevelInfo, "logout", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	case http.MethodPut:
		var req updateMeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		updated, err := s.app.UpdateProfile(user, app.ProfileUpdate{
			FirstName:         req.FirstName,
			LastName:          req.LastName,
			PreferredLanguage: req.PreferredLanguage,
		})
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": updated})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Stats(user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *Server) handleSupportedLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supportedLanguages": lang.All()})
}

func (s *Server) audit(r *http.Request, level slog.Level, event string, attrs ...any) {
	logAttrs := []any{
		"path", r.URL.Path,
		"ip", util.ClientIP(r, s.trusted),
		"request_id", util.RequestIDFromContext(r.Context()),
	}
	util.SecurityEvent(s.logger, level, event, append(logAttrs, attrs...)...)
}

// writeAppError maps application errors to status codes. Unexpected errors
// are logged and hidden behind a generic message.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, app.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "unsupported file type; allowed: pdf, png, jpg, jpeg, txt")
	case errors.Is(err, app.ErrExtractionEmpty):
		writeError(w, http.StatusUnprocessableEntity, app.ErrExtractionEmpty.Error())
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, app.ErrInvalidCredentials.Error())
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrEmailExists):
		writeError(w, http.StatusConflict, app.ErrEmailExists.Error())
	case errors.Is(err, app.ErrNoContent):
		writeError(w, http.StatusConflict, app.ErrNoContent.Error())
	case errors.Is(err, app.ErrProcessingFailed):
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, app.ErrProcessingFailed.Error())
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a bounded JSON body into dst, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body required")
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		}
		return false
	}
	return true
}

// pathID returns the single path segment after prefix, with an optional
// trailing action segment.
func pathID(r *http.Request, prefix string) (id, action string) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	id, action, _ = strings.Cut(rest, "/")
	return id, action
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	return token, token != ""
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
