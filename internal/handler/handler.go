// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/thehansentribe/honorsfest/internal/i18n"
	"github.com/thehansentribe/honorsfest/internal/journal"
	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/service"
)

// JournalReader is the read side of the seat journal.
type JournalReader interface {
	ListByClass(ctx context.Context, classID model.ClassID, after int64, limit int) ([]journal.Entry, error)
}

// Handler holds all HTTP handlers for the registration API.
type Handler struct {
	engine  *service.Engine
	catalog *service.CatalogService
	journal JournalReader
	tr      *i18n.Translator
	log     *slog.Logger
}

// New constructs a Handler. journal may be nil when no journal is kept.
func New(engine *service.Engine, catalog *service.CatalogService, journal JournalReader, tr *i18n.Translator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, catalog: catalog, journal: journal, tr: tr, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func pathID[T ~int64](r *http.Request, name string) (T, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s %q is not a valid id", name, raw)
	}
	return T(n), nil
}

func (h *Handler) msg(r *http.Request, key string, data map[string]any) string {
	return h.tr.T(r.Header.Get("Accept-Language"), key, data)
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
		Error: h.msg(r, "error_bad_request", map[string]any{"Detail": err.Error()}),
		Code:  "bad_request",
	})
}

// decode reads the body into dst and answers 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		h.badRequest(w, r, err)
		return false
	}
	return true
}

// id reads a path id and answers 400 on failure.
func id[T ~int64](h *Handler, w http.ResponseWriter, r *http.Request, name string) (T, bool) {
	v, err := pathID[T](r, name)
	if err != nil {
		h.badRequest(w, r, err)
		return 0, false
	}
	return v, true
}

// writeError maps engine errors to status codes and localized text.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pf   *service.PartialFailureError
		ve   *service.ValidationError
		nf   *service.NotFoundError
		race *service.CapacityRaceError
	)
	switch {
	case errors.As(err, &pf):
		resp := model.PartialFailureResponse{PartialFailure: true, Error: h.msg(r, "error_partial_failure", nil)}
		if len(pf.Withdrawn) > 0 {
			resp.WithdrawnRegistrationID = pf.Withdrawn[0].ID
		}
		h.log.Error("partial failure", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusConflict, resp)
	case errors.As(err, &ve):
		text := h.msg(r, "error_"+string(ve.Code), map[string]any{"Detail": ve.Message})
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: text, Code: string(ve.Code)})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{
			Error: h.msg(r, "error_not_found", map[string]any{"Kind": nf.Kind, "ID": nf.ID}),
			Code:  "not_found",
		})
	case errors.As(err, &race):
		h.log.Error("capacity race", "path", r.URL.Path, "class", race.ClassID, "err", err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Error: h.msg(r, "error_capacity_race", nil),
			Code:  "capacity_race",
		})
	default:
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Error: h.msg(r, "error_internal", nil),
			Code:  "internal",
		})
	}
}

// conflictResponse is the 409 body for a timeslot collision.
type conflictResponse struct {
	model.Conflict
	Message string `json:"message"`
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, res *model.RegisterResult) {
	if res.Conflict != nil {
		writeJSON(w, http.StatusConflict, conflictResponse{
			Conflict: *res.Conflict,
			Message:  h.msg(r, "conflict_message", map[string]any{"ClassName": res.Conflict.ConflictClassName}),
		})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// emptyIfNil keeps JSON arrays from encoding as null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
