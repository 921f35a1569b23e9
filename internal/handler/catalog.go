package handler

import (
	"net/http"

	"github.com/thehansentribe/honorsfest/internal/model"
)

// ListEvents handles GET /events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.catalog.ListEvents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(events))
}

// CreateEvent handles POST /admin/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	event, err := h.catalog.CreateEvent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	event, err := h.catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PATCH /admin/events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	var req model.UpdateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	event, err := h.catalog.UpdateEvent(r.Context(), eventID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// EventClasses handles GET /events/{id}/classes
// Lists the active classes of an event with their counts.
func (h *Handler) EventClasses(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	listing, err := h.engine.EventClasses(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(listing))
}

// EventTimeslots handles GET /events/{id}/timeslots
func (h *Handler) EventTimeslots(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	slots, err := h.catalog.ListTimeslots(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(slots))
}

// EventClubs handles GET /events/{id}/clubs
func (h *Handler) EventClubs(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	clubs, err := h.catalog.ListEventClubs(r.Context(), eventID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(clubs))
}

// CreateClub handles POST /admin/clubs
func (h *Handler) CreateClub(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClubRequest
	if !h.decode(w, r, &req) {
		return
	}
	club, err := h.catalog.CreateClub(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, club)
}

// AssignClub handles POST /admin/events/{id}/clubs/{clubID}
func (h *Handler) AssignClub(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	clubID, ok := id[model.ClubID](h, w, r, "clubID")
	if !ok {
		return
	}
	if err := h.catalog.AssignClub(r.Context(), eventID, clubID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnassignClub handles DELETE /admin/events/{id}/clubs/{clubID}
func (h *Handler) UnassignClub(w http.ResponseWriter, r *http.Request) {
	eventID, ok := id[model.EventID](h, w, r, "id")
	if !ok {
		return
	}
	clubID, ok := id[model.ClubID](h, w, r, "clubID")
	if !ok {
		return
	}
	if err := h.catalog.UnassignClub(r.Context(), eventID, clubID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateUser handles POST /admin/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.catalog.CreateUser(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := id[model.UserID](h, w, r, "id")
	if !ok {
		return
	}
	user, err := h.catalog.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUser handles PATCH /admin/users/{id}
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := id[model.UserID](h, w, r, "id")
	if !ok {
		return
	}
	var req model.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.catalog.UpdateUser(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// AssignCheckInNumber handles POST /admin/users/{id}/checkin-number
func (h *Handler) AssignCheckInNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := id[model.UserID](h, w, r, "id")
	if !ok {
		return
	}
	user, err := h.catalog.AssignCheckInNumber(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Schedule handles GET /users/{id}/schedule
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := id[model.UserID](h, w, r, "id")
	if !ok {
		return
	}
	schedule, err := h.engine.Schedule(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(schedule))
}

// CreateLocation handles POST /admin/locations
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateLocationRequest
	if !h.decode(w, r, &req) {
		return
	}
	loc, err := h.catalog.CreateLocation(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

// DeleteLocation handles DELETE /admin/locations/{id}
// Classes in the location lose their seats.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	locID, ok := id[model.LocationID](h, w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteLocation(r.Context(), locID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTimeslot handles POST /admin/timeslots
func (h *Handler) CreateTimeslot(w http.ResponseWriter, r *http.Request) {
	var req model.CreateTimeslotRequest
	if !h.decode(w, r, &req) {
		return
	}
	ts, err := h.catalog.CreateTimeslot(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ts)
}

// CreateHonor handles POST /admin/honors
func (h *Handler) CreateHonor(w http.ResponseWriter, r *http.Request) {
	var req model.CreateHonorRequest
	if !h.decode(w, r, &req) {
		return
	}
	honor, err := h.catalog.CreateHonor(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, honor)
}

// CreateClass handles POST /admin/classes
func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClassRequest
	if !h.decode(w, r, &req) {
		return
	}
	class, err := h.catalog.CreateClass(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

// CreateSessionGroup handles POST /admin/session-groups
func (h *Handler) CreateSessionGroup(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	classes, err := h.catalog.CreateSessionGroup(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, classes)
}

// GetClass handles GET /classes/{id}
func (h *Handler) GetClass(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	class, err := h.catalog.GetClass(r.Context(), classID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}
