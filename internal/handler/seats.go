package handler

import (
	"net/http"
	"strconv"

	"github.com/thehansentribe/honorsfest/internal/journal"
	"github.com/thehansentribe/honorsfest/internal/model"
)

// WithdrawResponse lists the registrations a withdrawal removed. A session
// group withdrawal removes one per member class.
type WithdrawResponse struct {
	Withdrawn []model.Registration `json:"withdrawn"`
}

// Counts handles GET /classes/{id}/counts
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	counts, err := h.engine.Counts(r.Context(), classID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Roster handles GET /classes/{id}/roster
func (h *Handler) Roster(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	roster, err := h.engine.Roster(r.Context(), classID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// Journal handles GET /classes/{id}/journal?after=SEQ&limit=N
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	var after int64
	limit := 100
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			h.badRequest(w, r, errInvalidQuery("after", v))
			return
		}
		after = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			h.badRequest(w, r, errInvalidQuery("limit", v))
			return
		}
		limit = n
	}
	if _, err := h.catalog.GetClass(r.Context(), classID); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}
	entries, err := h.journal.ListByClass(r.Context(), classID, after, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(entries))
}

// Register handles POST /classes/{id}/register
// Self-service registration. A timeslot conflict answers 409 with the
// conflicting class so the caller can offer to resolve it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	h.admit(w, r, model.SelfService)
}

// AdminAdd handles POST /admin/classes/{id}/registrations
func (h *Handler) AdminAdd(w http.ResponseWriter, r *http.Request) {
	h.admit(w, r, model.Administrative)
}

func (h *Handler) admit(w http.ResponseWriter, r *http.Request, policy model.Policy) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	var req model.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Admit(r.Context(), policy, req.UserID, classID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, res)
}

// Resolve handles POST /classes/{id}/resolve
// Withdraws the conflicting registration, then registers for the class.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, model.SelfService)
}

// AdminResolve handles POST /admin/classes/{id}/resolve
func (h *Handler) AdminResolve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, model.Administrative)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, policy model.Policy) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	var req model.ResolveConflictRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResolveConflict(r.Context(), policy, req.UserID, classID, req.ConflictRegistrationID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, res)
}

// Withdraw handles DELETE /registrations/{id}
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	regID, ok := id[model.RegistrationID](h, w, r, "id")
	if !ok {
		return
	}
	released, err := h.engine.Withdraw(r.Context(), regID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{Withdrawn: released})
}

// AdminRemove handles DELETE /admin/registrations/{id}
func (h *Handler) AdminRemove(w http.ResponseWriter, r *http.Request) {
	regID, ok := id[model.RegistrationID](h, w, r, "id")
	if !ok {
		return
	}
	released, err := h.engine.AdminRemove(r.Context(), regID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{Withdrawn: released})
}

// Attendance handles PATCH /admin/registrations/{id}/attendance
func (h *Handler) Attendance(w http.ResponseWriter, r *http.Request) {
	regID, ok := id[model.RegistrationID](h, w, r, "id")
	if !ok {
		return
	}
	var req model.AttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	reg, err := h.engine.MarkAttendance(r.Context(), regID, req.Attended, req.Completed)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Activate handles POST /admin/classes/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	class, err := h.engine.Activate(r.Context(), classID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

// Deactivate handles POST /admin/classes/{id}/deactivate
// Every enrolled and waitlisted student is withdrawn.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	drained, err := h.engine.Deactivate(r.Context(), classID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{Withdrawn: emptyIfNil(drained)})
}

// UpdateCapacity handles PATCH /admin/classes/{id}/capacity
func (h *Handler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	classID, ok := id[model.ClassID](h, w, r, "id")
	if !ok {
		return
	}
	var req model.CapacityInputsRequest
	if !h.decode(w, r, &req) {
		return
	}
	class, err := h.engine.UpdateCapacityInputs(r.Context(), classID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, class)
}

type queryError struct{ name, value string }

func (e *queryError) Error() string {
	return "query parameter " + e.name + "=" + strconv.Quote(e.value) + " is invalid"
}

func errInvalidQuery(name, value string) error {
	return &queryError{name: name, value: value}
}
