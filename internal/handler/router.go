package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router with the global middleware stack and every
// API route.
func NewRouter(h *Handler, log *slog.Logger) http.Handler {
	if log == nil {
		log = h.log
	}
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Get("/{id}/classes", h.EventClasses)
		r.Get("/{id}/timeslots", h.EventTimeslots)
		r.Get("/{id}/clubs", h.EventClubs)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/{id}", h.GetUser)
		r.Get("/{id}/schedule", h.Schedule)
	})

	r.Route("/classes", func(r chi.Router) {
		r.Get("/{id}", h.GetClass)
		r.Get("/{id}/counts", h.Counts)
		r.Get("/{id}/roster", h.Roster)
		r.Get("/{id}/journal", h.Journal)
		r.Post("/{id}/register", h.Register)
		r.Post("/{id}/resolve", h.Resolve)
	})

	r.Delete("/registrations/{id}", h.Withdraw)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/events", h.CreateEvent)
		r.Patch("/events/{id}", h.UpdateEvent)
		r.Post("/events/{id}/clubs/{clubID}", h.AssignClub)
		r.Delete("/events/{id}/clubs/{clubID}", h.UnassignClub)

		r.Post("/clubs", h.CreateClub)

		r.Post("/users", h.CreateUser)
		r.Patch("/users/{id}", h.UpdateUser)
		r.Post("/users/{id}/checkin-number", h.AssignCheckInNumber)

		r.Post("/locations", h.CreateLocation)
		r.Delete("/locations/{id}", h.DeleteLocation)
		r.Post("/timeslots", h.CreateTimeslot)
		r.Post("/honors", h.CreateHonor)

		r.Post("/classes", h.CreateClass)
		r.Post("/session-groups", h.CreateSessionGroup)
		r.Post("/classes/{id}/registrations", h.AdminAdd)
		r.Post("/classes/{id}/resolve", h.AdminResolve)
		r.Post("/classes/{id}/activate", h.Activate)
		r.Post("/classes/{id}/deactivate", h.Deactivate)
		r.Patch("/classes/{id}/capacity", h.UpdateCapacity)

		r.Delete("/registrations/{id}", h.AdminRemove)
		r.Patch("/registrations/{id}/attendance", h.Attendance)
	})

	return r
}
