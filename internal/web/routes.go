package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/facefeed/facefeed/internal/web/handlers"
	"github.com/facefeed/facefeed/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	contentHandler := handlers.NewContentHandler(s.deps.Content, s.deps.Blobs, s.deps.Queue, s.deps.Reader, s.deps.Engine)
	feedHandler := handlers.NewFeedHandler(s.deps.Reader)
	friendshipHandler := handlers.NewFriendshipHandler(s.deps.Friendships, s.deps.Queue)
	facesHandler := handlers.NewFacesHandler(s.deps.Identities)
	enrollHandler := handlers.NewEnrollHandler(s.deps.Detector, s.deps.Enrollments, s.deps.Enrolled, s.deps.Blobs, s.deps.MaxImageSize)
	eventsHandler := handlers.NewEventsHandler(s.deps.Events, s.deps.Engine, contentHandler)
	adminHandler := handlers.NewAdminHandler(s.deps.Graph, s.deps.Content, s.deps.Feed)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser())

			// Content
			r.Post("/content", contentHandler.Upload)
			r.Get("/content/{id}", contentHandler.Get)
			r.Delete("/content/{id}", contentHandler.Delete)
			r.Post("/content/{id}/share", contentHandler.Share)

			// Feed
			r.Get("/feed", feedHandler.List)

			// Friendships
			r.Post("/friendships", friendshipHandler.Request)
			r.Post("/friendships/{id}/accept", friendshipHandler.Accept)

			// Enrollment and faces
			r.Post("/users/enroll", enrollHandler.Enroll)
			r.Get("/faces/unknown", facesHandler.ListUnknown)

			// Events
			r.Post("/events", eventsHandler.Create)
			r.Post("/events/{id}/invite", eventsHandler.Invite)
			r.Post("/events/{id}/accept", eventsHandler.Accept)
			r.Post("/events/{id}/content", eventsHandler.UploadContent)

			// Admin
			r.Post("/admin/feed/rebuild", adminHandler.RebuildFeed)
		})
	})
}
