// Package api implements the Pulsechat REST API using the chi router. It
// registers every route under /api/v1, translating HTTP requests into calls
// against internal/service and mapping the result back to the standard
// {"data": ...} / {"error": {...}} envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/pulsechat/pulsechat/internal/auth"
	"github.com/pulsechat/pulsechat/internal/repository"
	"github.com/pulsechat/pulsechat/internal/service"
	"github.com/pulsechat/pulsechat/internal/snowflake"
)

// Server is the HTTP API server. It holds the chi router, the service layer,
// the token service for request authentication, and configuration for
// cross-cutting middleware.
type Server struct {
	Router         *chi.Mux
	Service        *service.Service
	Auth           *auth.Service
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *slog.Logger

	limiters   sync.Map // IP string -> *rate.Limiter
	httpServer *http.Server
}

// Config configures NewServer's cross-cutting middleware.
type Config struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer creates an API server with every route group and middleware
// registered.
func NewServer(svc *service.Service, authSvc *auth.Service, cfg Config, logger *slog.Logger) *Server {
	s := &Server{
		Router:         chi.NewRouter(),
		Service:        svc,
		Auth:           authSvc,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	}
	s.registerMiddleware()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddleware() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(s.requestLogMiddleware)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(s.corsMiddleware)
	s.Router.Use(middleware.Compress(5))
	s.Router.Use(middleware.Timeout(30 * time.Second))
	s.Router.Use(maxBodySize(1 << 20))
	s.Router.Use(s.rateLimitMiddleware)
}

func (s *Server) registerRoutes() {
	s.Router.Get("/health", s.handleHealth)

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.With(s.requireAuth).Post("/logout", s.handleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/users", func(r chi.Router) {
				r.Get("/@me", s.handleGetSelf)
				r.Patch("/@me", s.handleUpdateSelf)
				r.Get("/@me/guilds", s.handleGetSelfGuilds)
				r.Get("/@me/channels", s.handleGetSelfChannels)
				r.Get("/{userID}", s.handleGetUser)
				r.Post("/{userID}/dm", s.handleCreateDM)
			})

			r.Route("/guilds", func(r chi.Router) {
				r.Post("/", s.handleCreateGuild)
				r.Get("/{guildID}", s.handleGetGuild)
				r.Patch("/{guildID}", s.handleUpdateGuild)
				r.Delete("/{guildID}", s.handleDeleteGuild)
				r.Post("/{guildID}/leave", s.handleLeaveGuild)
				r.Post("/{guildID}/transfer", s.handleTransferGuild)

				r.Get("/{guildID}/channels", s.handleGetGuildChannels)
				r.Post("/{guildID}/channels", s.handleCreateChannel)

				r.Get("/{guildID}/members", s.handleGetGuildMembers)
				r.Get("/{guildID}/members/{userID}", s.handleGetGuildMember)
				r.Patch("/{guildID}/members/{userID}", s.handleUpdateGuildMember)
				r.Delete("/{guildID}/members/@me", s.handleLeaveGuild)
				r.Delete("/{guildID}/members/{userID}", s.handleRemoveGuildMember)
				r.Put("/{guildID}/members/{userID}/roles/{roleID}", s.handleAssignRole)
				r.Delete("/{guildID}/members/{userID}/roles/{roleID}", s.handleRemoveRole)

				r.Get("/{guildID}/bans", s.handleGetGuildBans)
				r.Put("/{guildID}/bans/{userID}", s.handleCreateGuildBan)
				r.Delete("/{guildID}/bans/{userID}", s.handleRemoveGuildBan)

				r.Get("/{guildID}/roles", s.handleGetGuildRoles)
				r.Post("/{guildID}/roles", s.handleCreateGuildRole)
				r.Patch("/{guildID}/roles/{roleID}", s.handleUpdateGuildRole)
				r.Delete("/{guildID}/roles/{roleID}", s.handleDeleteGuildRole)

				r.Get("/{guildID}/invites", s.handleGetGuildInvites)
			})

			r.Route("/channels/{channelID}", func(r chi.Router) {
				r.Get("/", s.handleGetChannel)
				r.Patch("/", s.handleUpdateChannel)
				r.Delete("/", s.handleDeleteChannel)

				r.Get("/messages", s.handleGetMessages)
				r.Post("/messages", s.handleCreateMessage)
				r.Post("/messages/bulk-delete", s.handleBulkDeleteMessages)
				r.Get("/messages/{messageID}", s.handleGetMessage)
				r.Patch("/messages/{messageID}", s.handleUpdateMessage)
				r.Delete("/messages/{messageID}", s.handleDeleteMessage)

				r.Get("/messages/{messageID}/reactions/{emoji}", s.handleGetReactions)
				r.Delete("/messages/{messageID}/reactions/{emoji}", s.handleDeleteAllReactionsForEmoji)
				r.Put("/messages/{messageID}/reactions/{emoji}/@me", s.handleAddReaction)
				r.Delete("/messages/{messageID}/reactions/{emoji}/@me", s.handleRemoveOwnReaction)
				r.Delete("/messages/{messageID}/reactions/{emoji}/{userID}", s.handleRemoveUserReaction)

				r.Post("/typing", s.handleTriggerTyping)

				r.Get("/invites", s.handleGetChannelInvites)
				r.Post("/invites", s.handleCreateChannelInvite)
			})

			r.Route("/invites/{code}", func(r chi.Router) {
				r.Get("/", s.handleGetInvite)
				r.Post("/", s.handleAcceptInvite)
				r.Delete("/", s.handleDeleteInvite)
			})
		})
	})
}

// Start begins listening for HTTP requests on addr.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.Logger.Info("http server starting", slog.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireAuth wraps internal/auth's bearer-token middleware so route
// registration can reference it as a plain chi middleware function.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return auth.RequireAuth(s.Auth)(next)
}

// userIDFromContext extracts the authenticated caller's id, set by
// requireAuth, as a snowflake.ID.
func userIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	raw := auth.UserIDFromContext(ctx)
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseID(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// --- response envelope ---

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type successResponse struct {
	Data interface{} `json:"data"`
}

// WriteJSON writes data wrapped in the standard success envelope.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(successResponse{Data: data})
}

// WriteNoContent writes a 204 response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteError writes the standard error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeServiceError maps the three error taxonomies the service layer can
// return (repository.Error, auth.AuthError, service.Error) to their status
// codes. Anything else is an infra failure: logged, never echoed to the
// client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var repoErr *repository.Error
	if errors.As(err, &repoErr) {
		status, code := repositoryErrorStatus(repoErr.Kind)
		WriteError(w, status, code, repoErr.Message)
		return
	}
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		WriteError(w, authErr.Status, authErr.Code, authErr.Message)
		return
	}
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		WriteError(w, svcErr.Status, svcErr.Code, svcErr.Message)
		return
	}

	s.Logger.Error("unhandled request error",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("error", err.Error()))
	WriteError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
}

func repositoryErrorStatus(kind repository.Kind) (int, string) {
	switch kind {
	case repository.KindNotFound:
		return http.StatusNotFound, "not_found"
	case repository.KindConflict:
		return http.StatusConflict, "conflict"
	case repository.KindValidation:
		return http.StatusBadRequest, "validation_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseID(chi.URLParam(r, param))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", param+" is not a valid id")
		return 0, false
	}
	return id, true
}

func parseSnowflake(s string) (snowflake.ID, error) {
	return snowflake.ParseID(s)
}

func cursorFromQuery(r *http.Request) repository.Cursor {
	q := r.URL.Query()
	var cur repository.Cursor
	if v := q.Get("before"); v != "" {
		if id, err := snowflake.ParseID(v); err == nil {
			cur.Before = &id
		}
	}
	if v := q.Get("after"); v != "" {
		if id, err := snowflake.ParseID(v); err == nil {
			cur.After = &id
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cur.Limit = n
		}
	}
	return cur
}

// --- middleware ---

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		}
		if uid, ok := userIDFromContext(r.Context()); ok {
			attrs = append(attrs, slog.String("user_id", uid.String()))
		}
		s.Logger.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			allowed := false
			for _, o := range s.CORSOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
				if !(len(s.CORSOrigins) == 1 && s.CORSOrigins[0] == "*") {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func maxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if r.Body != nil && !strings.HasPrefix(ct, "multipart/form-data") {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware enforces a single global token bucket per client IP,
// per spec §6.2 ("global token-bucket rate limiter ... excluding /health").
// Unlike the teacher's tiered per-endpoint Redis limiter, this is one bucket
// for every route: the spec calls for a single cross-cutting limit, not a
// per-category one.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiterFor(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiterFor(ip string) *rate.Limiter {
	if v, ok := s.limiters.Load(ip); ok {
		return v.(*rate.Limiter)
	}
	rps := s.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	burst := s.RateLimitBurst
	if burst <= 0 {
		burst = 50
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	actual, _ := s.limiters.LoadOrStore(ip, lim)
	return actual.(*rate.Limiter)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
