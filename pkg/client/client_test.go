package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehansentribe/honorsfest/internal/handler"
	"github.com/thehansentribe/honorsfest/internal/i18n"
	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
	"github.com/thehansentribe/honorsfest/internal/service"
)

// newServer runs the real router over an in-memory store with one live
// event, two classes sharing a timeslot and two students.
func newServer(t *testing.T) (*httptest.Server, []*model.User) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemory()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := service.NewEngine(store, service.WithLogger(log))
	catalog := service.NewCatalogService(store, engine)

	event, err := catalog.CreateEvent(ctx, model.CreateEventRequest{
		Name: "Camporee", StartDate: "2026-04-10", EndDate: "2026-04-12", Active: true, Live: true,
	})
	require.NoError(t, err)
	club, err := catalog.CreateClub(ctx, model.CreateClubRequest{Name: "Pathfinders"})
	require.NoError(t, err)
	require.NoError(t, catalog.AssignClub(ctx, event.ID, club.ID))
	honor, err := catalog.CreateHonor(ctx, model.CreateHonorRequest{Category: "Nature", Name: "Birds"})
	require.NoError(t, err)
	loc, err := catalog.CreateLocation(ctx, model.CreateLocationRequest{EventID: event.ID, Name: "Pavilion", MaxCapacity: 1})
	require.NoError(t, err)
	slot, err := catalog.CreateTimeslot(ctx, model.CreateTimeslotRequest{EventID: event.ID, Date: "2026-04-11", StartTime: "09:00", EndTime: "09:50"})
	require.NoError(t, err)
	for _, name := range []string{"Birds I", "Birds II"} {
		_, err := catalog.CreateClass(ctx, model.CreateClassRequest{
			EventID: event.ID, HonorID: honor.ID, Name: name, LocationID: &loc.ID, TimeslotID: slot.ID, TeacherMaxStudents: 5,
		})
		require.NoError(t, err)
	}
	var users []*model.User
	for _, last := range []string{"Alvarez", "Brooks"} {
		u, err := catalog.CreateUser(ctx, model.CreateUserRequest{FirstName: "Sam", LastName: last, EventID: &event.ID, ClubID: &club.ID})
		require.NoError(t, err)
		users = append(users, u)
	}

	h := handler.New(engine, catalog, nil, i18n.NewTranslator("en"), log)
	srv := httptest.NewServer(handler.NewRouter(h, log))
	t.Cleanup(srv.Close)
	return srv, users
}

func TestRegisterWaitlistAndWithdraw(t *testing.T) {
	srv, users := newServer(t)
	c := New(srv.URL + "/")
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	res, err := c.Register(ctx, users[0].ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEnrolled, res.Status)

	res, err = c.Register(ctx, users[1].ID, 1, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitlisted, res.Status)

	counts, err := c.Counts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.Counts{ClassID: 1, Enrolled: 1, Waitlisted: 1, Capacity: 1}, *counts)

	withdrawn, err := c.Withdraw(ctx, res.Registrations[0].ID, true)
	require.NoError(t, err)
	require.Len(t, withdrawn, 1)
	assert.Equal(t, users[1].ID, withdrawn[0].UserID)

	roster, err := c.Roster(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, roster.Enrolled, 1)
	assert.Empty(t, roster.Waitlisted)

	listing, err := c.EventClasses(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, listing, 2)
}

func TestRegisterConflict(t *testing.T) {
	srv, users := newServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	first, err := c.Register(ctx, users[0].ID, 1, false)
	require.NoError(t, err)

	_, err = c.Register(ctx, users[0].ID, 2, false)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Birds I", conflict.ConflictClassName)
	assert.Equal(t, first.Registrations[0].ID, conflict.ConflictRegistrationID)
	assert.Contains(t, conflict.Message, "Birds I")

	moved, err := c.ResolveConflict(ctx, users[0].ID, 2, conflict.ConflictRegistrationID, false)
	require.NoError(t, err)
	assert.Equal(t, model.ClassID(2), moved.Registrations[0].ClassID)

	schedule, err := c.Schedule(ctx, users[0].ID)
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	assert.Equal(t, "Birds II", schedule[0].Class.Name)
}

func TestErrorCodes(t *testing.T) {
	srv, users := newServer(t)
	c := New(srv.URL, WithLanguage("es"))
	ctx := context.Background()

	_, err := c.Withdraw(ctx, 42, false)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.True(t, IsCode(err, "not_found"))

	_, err = c.Register(ctx, users[0].ID, 1, false)
	require.NoError(t, err)
	_, err = c.Register(ctx, users[0].ID, 1, false)
	assert.True(t, IsCode(err, "already_registered"))
	assert.False(t, IsStatus(err, http.StatusConflict))
}

func TestPartialFailureDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(model.PartialFailureResponse{ //nolint:errcheck
			PartialFailure: true, WithdrawnRegistrationID: 7, Error: "dropped",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).ResolveConflict(context.Background(), 1, 2, 7, false)
	var pf *PartialFailureError
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, model.RegistrationID(7), pf.WithdrawnRegistrationID)
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Counts(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway))
	assert.True(t, strings.Contains(err.Error(), "upstream down"))
}
