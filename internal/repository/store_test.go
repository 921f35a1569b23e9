package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehansentribe/honorsfest/internal/database"
	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// stores returns every Store implementation available in this environment.
// Postgres runs only when TEST_DATABASE_URL points at a disposable database.
func stores(t *testing.T) map[string]func(t *testing.T) repository.Store {
	out := map[string]func(t *testing.T) repository.Store{
		"memory": func(t *testing.T) repository.Store { return repository.NewMemory() },
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		out["postgres"] = func(t *testing.T) repository.Store {
			ctx := context.Background()
			require.NoError(t, database.RunMigrations(dsn))
			pool, err := database.NewPool(ctx, dsn, database.PoolOptions{MaxConns: 4, MinConns: 1, ConnectAttempts: 1})
			require.NoError(t, err)
			_, err = pool.Exec(ctx, `TRUNCATE registrations, classes, honors, timeslots, locations,
				event_clubs, clubs, users, events RESTART IDENTITY CASCADE`)
			require.NoError(t, err)
			store := repository.NewPostgres(pool)
			t.Cleanup(store.Close)
			return store
		}
	}
	return out
}

type catalog struct {
	event model.Event
	loc   model.Location
	slots []model.Timeslot
	honor model.Honor
	user  model.User
}

func seedCatalog(t *testing.T, s repository.Store) *catalog {
	t.Helper()
	ctx := context.Background()
	c := &catalog{}
	c.event = model.Event{Name: "Camporee", StartDate: "2026-04-10", EndDate: "2026-04-12", Active: true, Status: model.EventLive}
	require.NoError(t, s.CreateEvent(ctx, &c.event))
	c.loc = model.Location{EventID: c.event.ID, Name: "Hall", MaxCapacity: 20}
	require.NoError(t, s.CreateLocation(ctx, &c.loc))
	for _, start := range []string{"09:00", "10:00"} {
		ts := model.Timeslot{EventID: c.event.ID, Date: "2026-04-11", StartTime: start, EndTime: start[:2] + ":50"}
		require.NoError(t, s.CreateTimeslot(ctx, &ts))
		c.slots = append(c.slots, ts)
	}
	c.honor = model.Honor{Category: "Nature", Name: "Birds"}
	require.NoError(t, s.CreateHonor(ctx, &c.honor))
	c.user = model.User{FirstName: "Ana", LastName: "Alvarez", Email: "ana@example.org", Role: model.RoleStudent, Active: true}
	require.NoError(t, s.CreateUser(ctx, &c.user))
	return c
}

func (c *catalog) class(t *testing.T, s repository.Store) model.Class {
	t.Helper()
	class := model.Class{
		EventID: c.event.ID, HonorID: c.honor.ID, Name: "Birds", LocationID: &c.loc.ID,
		TimeslotID: c.slots[0].ID, TeacherMaxStudents: 10, ActualMaxCapacity: 10, Active: true,
	}
	require.NoError(t, s.CreateClass(context.Background(), &class))
	return class
}

func TestStoreCatalog(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			c := seedCatalog(t, s)

			got, err := s.GetEvent(ctx, c.event.ID)
			require.NoError(t, err)
			assert.Equal(t, "Camporee", got.Name)
			assert.Equal(t, model.EventLive, got.Status)

			got.SetActive(false)
			require.NoError(t, s.UpdateEvent(ctx, got))
			got, err = s.GetEvent(ctx, c.event.ID)
			require.NoError(t, err)
			assert.Equal(t, model.EventClosed, got.Status)

			_, err = s.GetEvent(ctx, 9999)
			assert.ErrorIs(t, err, repository.ErrNotFound)

			dup := model.Honor{Category: "Nature", Name: "Birds"}
			assert.ErrorIs(t, s.CreateHonor(ctx, &dup), repository.ErrDuplicate)

			slots, err := s.ListTimeslots(ctx, c.event.ID)
			require.NoError(t, err)
			require.Len(t, slots, 2)
			assert.Equal(t, "09:00", slots[0].StartTime)
		})
	}
}

func TestStoreClubsAndUsers(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			c := seedCatalog(t, s)

			club := model.Club{Name: "Trailblazers"}
			require.NoError(t, s.CreateClub(ctx, &club))
			require.NoError(t, s.AssignClub(ctx, c.event.ID, club.ID))
			clubs, err := s.ListEventClubs(ctx, c.event.ID)
			require.NoError(t, err)
			require.Len(t, clubs, 1)
			assert.Equal(t, club.ID, clubs[0].ID)

			require.NoError(t, s.UnassignClub(ctx, c.event.ID, club.ID))
			clubs, err = s.ListEventClubs(ctx, c.event.ID)
			require.NoError(t, err)
			assert.Empty(t, clubs)

			twin := model.User{FirstName: "Ana", LastName: "B", Email: "ana@example.org", Role: model.RoleStudent}
			assert.ErrorIs(t, s.CreateUser(ctx, &twin), repository.ErrDuplicate)

			first, err := s.AssignCheckInNumber(ctx, c.user.ID)
			require.NoError(t, err)
			again, err := s.AssignCheckInNumber(ctx, c.user.ID)
			require.NoError(t, err)
			assert.Equal(t, first, again)

			other := model.User{FirstName: "Ben", LastName: "Brooks", Role: model.RoleStudent, Active: true}
			require.NoError(t, s.CreateUser(ctx, &other))
			second, err := s.AssignCheckInNumber(ctx, other.ID)
			require.NoError(t, err)
			assert.Greater(t, second, first)

			u, err := s.GetUser(ctx, c.user.ID)
			require.NoError(t, err)
			u.Active = false
			u.CheckInNumber = nil
			require.NoError(t, s.UpdateUser(ctx, u))
			u, err = s.GetUser(ctx, c.user.ID)
			require.NoError(t, err)
			assert.False(t, u.Active)
			require.NotNil(t, u.CheckInNumber)
			assert.Equal(t, first, *u.CheckInNumber)

			_, err = s.AssignCheckInNumber(ctx, 9999)
			assert.ErrorIs(t, err, repository.ErrNotFound)
		})
	}
}

func TestStoreClasses(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			c := seedCatalog(t, s)
			single := c.class(t, s)

			members := []*model.Class{
				{EventID: c.event.ID, HonorID: c.honor.ID, Name: "Birds II", TimeslotID: c.slots[0].ID, SessionNumber: 1, TotalSessions: 2, Active: true},
				{EventID: c.event.ID, HonorID: c.honor.ID, Name: "Birds II", TimeslotID: c.slots[1].ID, SessionNumber: 2, TotalSessions: 2, Active: true},
			}
			group, err := s.CreateSessionGroup(ctx, members)
			require.NoError(t, err)
			require.NotNil(t, members[1].SessionGroupID)
			assert.Equal(t, group, *members[1].SessionGroupID)

			grouped, err := s.ListClasses(ctx, repository.ClassFilter{SessionGroupID: group})
			require.NoError(t, err)
			assert.Len(t, grouped, 2)

			single.Active = false
			require.NoError(t, s.UpdateClass(ctx, &single))
			active, err := s.ListClasses(ctx, repository.ClassFilter{EventID: c.event.ID, ActiveOnly: true})
			require.NoError(t, err)
			assert.Len(t, active, 2)

			inHall, err := s.ListClasses(ctx, repository.ClassFilter{LocationID: c.loc.ID})
			require.NoError(t, err)
			require.Len(t, inHall, 1)

			require.NoError(t, s.DeleteLocation(ctx, c.loc.ID))
			got, err := s.GetClass(ctx, single.ID)
			require.NoError(t, err)
			assert.Nil(t, got.LocationID)
			assert.ErrorIs(t, s.DeleteLocation(ctx, c.loc.ID), repository.ErrNotFound)
		})
	}
}

func TestStoreCommitSeats(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			c := seedCatalog(t, s)
			class := c.class(t, s)
			other := model.User{FirstName: "Ben", LastName: "Brooks", Role: model.RoleStudent, Active: true}
			require.NoError(t, s.CreateUser(ctx, &other))

			reg := func(u model.UserID, status model.RegistrationStatus, order int) model.Registration {
				id, err := s.NewRegistrationID(ctx)
				require.NoError(t, err)
				return model.Registration{
					ID: id, UserID: u, ClassID: class.ID, Status: status, WaitlistOrder: order,
					CreatedAt: time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC),
				}
			}
			enrolled := reg(c.user.ID, model.StatusEnrolled, 0)
			waiting := reg(other.ID, model.StatusWaitlisted, 1)

			require.NoError(t, s.CommitSeats(ctx, repository.SeatBatch{Changes: []model.SeatChange{
				{Op: model.SeatInsert, Reason: model.ReasonAdmit, Registration: enrolled},
				{Op: model.SeatInsert, Reason: model.ReasonAdmit, Registration: waiting},
			}}))
			regs, err := s.ListRegistrations(ctx, repository.RegistrationFilter{ClassID: class.ID})
			require.NoError(t, err)
			assert.Len(t, regs, 2)

			// A batch with one bad change writes nothing.
			class.ActualMaxCapacity = 1
			err = s.CommitSeats(ctx, repository.SeatBatch{
				Classes: []model.Class{class},
				Changes: []model.SeatChange{
					{Op: model.SeatDelete, Reason: model.ReasonRelease, Registration: enrolled},
					{Op: model.SeatInsert, Reason: model.ReasonAdmit, Registration: waiting},
				},
			})
			require.Error(t, err)
			got, err := s.GetClass(ctx, class.ID)
			require.NoError(t, err)
			assert.Equal(t, 10, got.ActualMaxCapacity)
			_, err = s.GetRegistration(ctx, enrolled.ID)
			require.NoError(t, err)

			promoted := waiting
			promoted.Status = model.StatusEnrolled
			promoted.WaitlistOrder = 0
			require.NoError(t, s.CommitSeats(ctx, repository.SeatBatch{
				Classes: []model.Class{class},
				Changes: []model.SeatChange{
					{Op: model.SeatDelete, Reason: model.ReasonRelease, Registration: enrolled},
					{Op: model.SeatUpdate, Reason: model.ReasonPromote, Registration: promoted},
				},
			}))
			_, err = s.GetRegistration(ctx, enrolled.ID)
			assert.ErrorIs(t, err, repository.ErrNotFound)
			r, err := s.GetRegistration(ctx, waiting.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusEnrolled, r.Status)
			got, err = s.GetClass(ctx, class.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, got.ActualMaxCapacity)

			require.NoError(t, s.SetAttendance(ctx, waiting.ID, true, false))
			r, err = s.GetRegistration(ctx, waiting.ID)
			require.NoError(t, err)
			assert.True(t, r.Attended)
			assert.False(t, r.Completed)
			assert.ErrorIs(t, s.SetAttendance(ctx, enrolled.ID, true, true), repository.ErrNotFound)

			mine, err := s.ListRegistrations(ctx, repository.RegistrationFilter{UserID: other.ID})
			require.NoError(t, err)
			assert.Len(t, mine, 1)
		})
	}
}
