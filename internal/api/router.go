package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ahmetcdevelopment/task-management-api/internal/access"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/account"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/hub"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/middleware"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/notifications"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/projects"
	"github.com/ahmetcdevelopment/task-management-api/internal/api/workitems"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	jwtAuth := middleware.JWTAuth(s.services.Auth, s.logger)
	perUser := middleware.RateLimitByUser(s.userLimiter)

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			h := account.NewHandler(s.services.Auth, s.services.Users)

			// Public routes with IP rate limiting
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(s.ipLimiter))
				r.Post("/login", h.Login)
				r.Post("/register", h.Register)
				r.Post("/refresh-token", h.Refresh)
				r.Post("/forgot-password", h.ForgotPassword)
				r.Post("/reset-password", h.ResetPassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(jwtAuth, perUser)
				r.Post("/logout", h.Logout)
				r.Get("/profile", h.Profile)
				r.Put("/profile", h.UpdateProfile)
				r.Post("/change-password", h.ChangePassword)
				r.Get("/validate-token", h.ValidateToken)

				r.With(middleware.Authorize(access.UserList)).Get("/users", h.ListUsers)
				r.With(middleware.Authorize(access.UserGet)).Get("/users/{id}", h.GetUser)
				r.With(middleware.Authorize(access.UserActivate)).Patch("/users/{id}/activate", h.ActivateUser)
				r.With(middleware.Authorize(access.UserDeactivate)).Patch("/users/{id}/deactivate", h.DeactivateUser)
			})
		})

		// Everything below requires a valid access token.
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth, perUser)

			r.Route("/projects", func(r chi.Router) {
				h := projects.NewHandler(s.services.Projects)

				r.Get("/", h.List)
				r.With(middleware.Authorize(access.ProjectCreate)).Post("/", h.Create)
				r.Get("/my-projects", h.Mine)
				r.Get("/managed-by-me", h.ManagedByMe)
				r.Get("/active", h.Active)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Put("/", h.Update)
					r.Delete("/", h.Delete)
					r.Patch("/status", h.UpdateStatus)
					r.Post("/team-members", h.AddTeamMember)
					r.Delete("/team-members/{userId}", h.RemoveTeamMember)
					r.Get("/check-access", h.CheckAccess)
				})
			})

			r.Route("/workitems", func(r chi.Router) {
				h := workitems.NewHandler(s.services.WorkItems)

				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Get("/project/{projectId}", h.ByProject)
				r.Get("/my", h.Mine)
				r.Get("/overdue", h.Overdue)
				r.Get("/due-soon", h.DueSoon)
				r.Get("/stats", h.Stats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Put("/", h.Update)
					r.Delete("/", h.Delete)
					r.Patch("/status", h.UpdateStatus)
					r.Patch("/assign", h.Assign)
					r.Get("/logs", h.Logs)
					r.Post("/comments", h.AddComment)
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				h := notifications.NewHandler(s.services.Notifications)

				r.Get("/", h.List)
				r.With(middleware.Authorize(access.NotificationCreate)).Post("/", h.Create)
				r.Get("/unread", h.Unread)
				r.Get("/unread-count", h.UnreadCount)
				r.Get("/summary", h.Summary)
				r.Post("/bulk-action", h.BulkAction)
				r.With(middleware.Authorize(access.NotificationTestSend)).Post("/test-send", h.TestSend)
				r.Patch("/mark-all-as-read", h.MarkAllAsRead)
				r.With(middleware.Authorize(access.NotificationCleanup)).Delete("/cleanup", h.Cleanup)
				r.Patch("/{id}/mark-as-read", h.MarkAsRead)
				r.Delete("/{id}", h.Delete)
			})
		})

		// The stream is long lived, so it skips the per-user limiter.
		r.Route("/hubs/notifications", func(r chi.Router) {
			r.Use(jwtAuth)
			h := hub.NewHandler(s.services.Hub, s.services.Notifications, s.services.Projects, s.logger, s.config.Heartbeat)

			r.Get("/", h.Stream)
			r.Route("/{connectionId}", func(r chi.Router) {
				r.Use(perUser)
				r.Post("/mark-read/{notificationId}", h.MarkRead)
				r.Post("/mark-all-read", h.MarkAllRead)
				r.Post("/unread-count", h.UnreadCount)
				r.Post("/join-project/{projectId}", h.JoinProject)
				r.Post("/leave-project/{projectId}", h.LeaveProject)
			})
		})
	})

	// Health checks (public, no rate limit)
	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	return r
}
