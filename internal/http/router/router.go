package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ramcharankhv-byte/taskhub/internal/domain"
	"github.com/ramcharankhv-byte/taskhub/internal/http/handler"
	"github.com/ramcharankhv-byte/taskhub/internal/http/middleware"
	"github.com/ramcharankhv-byte/taskhub/internal/http/response"
	"github.com/ramcharankhv-byte/taskhub/internal/repository"
	"github.com/ramcharankhv-byte/taskhub/internal/security"
)

// Dependencies carries everything the route tree needs. The DI layer fills it
// from providers so the router stays free of construction logic.
type Dependencies struct {
	Logger *slog.Logger

	AuthHandler    *handler.AuthHandler
	ProjectHandler *handler.ProjectHandler
	TaskHandler    *handler.TaskHandler

	JWTManager  *security.JWTManager
	Users       repository.UserRepository
	Memberships repository.MembershipRepository

	AuthLimiter      middleware.Limiter
	APILimiter       middleware.Limiter
	AuthRateLimitRPM int
	APIRateLimitRPM  int

	CORSOrigins []string

	// ReadyCheck reports whether downstream dependencies answer. Nil means
	// readiness always passes.
	ReadyCheck func(ctx context.Context) error
}

func New(dep Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(dep.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsMiddleware(dep.CORSOrigins))

	r.Get("/health/live", handleLive)
	r.Get("/health/ready", handleReady(dep.ReadyCheck))

	requireAuth := middleware.RequireAuth(dep.JWTManager, dep.Users)

	// Auth endpoints are keyed by client IP; everything behind RequireAuth is
	// keyed by token subject so one tenant cannot starve another from a NAT.
	authLimit := middleware.NewRateLimiterWith(
		dep.AuthLimiter, dep.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth", nil,
	).Middleware()
	apiLimit := middleware.NewRateLimiterWith(
		dep.APILimiter, dep.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api",
		middleware.SubjectOrIPKeyFunc(dep.JWTManager),
	).Middleware()

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimit)

			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Get("/verify-email/{token}", dep.AuthHandler.VerifyEmail)
			// GET is part of the published API contract for cookie-based
			// clients; POST is the canonical method for a mutating call.
			r.Get("/refresh-token", dep.AuthHandler.Refresh)
			r.Post("/refresh-token", dep.AuthHandler.Refresh)
			r.Post("/forgot-password", dep.AuthHandler.ForgotPassword)
			r.Post("/reset-password/{token}", dep.AuthHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", dep.AuthHandler.Logout)
				r.Post("/resend-verification", dep.AuthHandler.ResendVerification)
				r.Post("/change-password", dep.AuthHandler.ChangePassword)
				r.Get("/current-user", dep.AuthHandler.Me)
			})
		})

		r.Route("/projects", func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(apiLimit)

			r.Post("/", dep.ProjectHandler.Create)
			r.Get("/", dep.ProjectHandler.List)

			r.Route("/{projectId}", func(r chi.Router) {
				anyRole := middleware.RequireProjectRole(dep.Memberships,
					domain.RoleAdmin, domain.RoleProjectAdmin, domain.RoleMember)
				taskManagers := middleware.RequireProjectRole(dep.Memberships,
					domain.RoleAdmin, domain.RoleProjectAdmin)
				adminOnly := middleware.RequireProjectRole(dep.Memberships, domain.RoleAdmin)

				r.With(anyRole).Get("/", dep.ProjectHandler.Get)
				r.With(adminOnly).Put("/", dep.ProjectHandler.Update)
				r.With(adminOnly).Delete("/", dep.ProjectHandler.Delete)

				r.Route("/members", func(r chi.Router) {
					r.With(anyRole).Get("/", dep.ProjectHandler.ListMembers)
					r.With(adminOnly).Post("/", dep.ProjectHandler.AddMember)
					r.With(adminOnly).Put("/{userId}", dep.ProjectHandler.ChangeMemberRole)
					r.With(adminOnly).Delete("/{userId}", dep.ProjectHandler.RemoveMember)
				})

				r.Route("/tasks", func(r chi.Router) {
					r.With(anyRole).Get("/", dep.TaskHandler.List)
					r.With(taskManagers).Post("/", dep.TaskHandler.Create)

					r.Route("/{taskId}", func(r chi.Router) {
						r.With(anyRole).Get("/", dep.TaskHandler.Get)
						r.With(taskManagers).Put("/", dep.TaskHandler.Update)
						r.With(taskManagers).Delete("/", dep.TaskHandler.Delete)

						r.With(taskManagers).Post("/subtasks", dep.TaskHandler.CreateSubTask)
						r.With(taskManagers).Put("/subtasks/{subTaskId}", dep.TaskHandler.UpdateSubTask)
						r.With(taskManagers).Delete("/subtasks/{subTaskId}", dep.TaskHandler.DeleteSubTask)

						r.With(taskManagers).Post("/attachments", dep.TaskHandler.UploadAttachment)
					})
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, response.CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, response.CodeBadRequest, "method not allowed", nil)
	})

	return r
}

func handleLive(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]any{"status": "ok"})
}

func handleReady(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, response.CodeInternal, "dependencies unavailable", nil)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready"})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, ok := allowed[origin]
			if origin != "" && (ok || wildcard) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				h.Set("Access-Control-Max-Age", "3600")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
