// Package repository implements the catalog store: events, clubs, users,
// locations, timeslots, honors, classes and persisted registrations. It holds
// data only; seat policy lives in the ledger and service packages.
package repository

import (
	"context"
	"errors"

	"github.com/thehansentribe/honorsfest/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write would violate a uniqueness rule.
var ErrDuplicate = errors.New("already exists")

// ClassFilter narrows ListClasses. Zero fields do not filter.
type ClassFilter struct {
	EventID        model.EventID
	LocationID     model.LocationID
	SessionGroupID model.SessionGroupID
	ActiveOnly     bool
}

// RegistrationFilter narrows ListRegistrations. Zero fields do not filter.
type RegistrationFilter struct {
	ClassID model.ClassID
	UserID  model.UserID
}

// CatalogStore persists the reference data registrations point at.
type CatalogStore interface {
	CreateEvent(ctx context.Context, event *model.Event) error
	GetEvent(ctx context.Context, id model.EventID) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	UpdateEvent(ctx context.Context, event *model.Event) error

	CreateClub(ctx context.Context, club *model.Club) error
	GetClub(ctx context.Context, id model.ClubID) (*model.Club, error)
	AssignClub(ctx context.Context, eventID model.EventID, clubID model.ClubID) error
	UnassignClub(ctx context.Context, eventID model.EventID, clubID model.ClubID) error
	ListEventClubs(ctx context.Context, eventID model.EventID) ([]model.Club, error)

	CreateUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	// AssignCheckInNumber gives the user a number if it has none and returns
	// the user's number. Numbers are never reused.
	AssignCheckInNumber(ctx context.Context, id model.UserID) (int64, error)

	CreateLocation(ctx context.Context, loc *model.Location) error
	GetLocation(ctx context.Context, id model.LocationID) (*model.Location, error)
	DeleteLocation(ctx context.Context, id model.LocationID) error

	CreateTimeslot(ctx context.Context, ts *model.Timeslot) error
	GetTimeslot(ctx context.Context, id model.TimeslotID) (*model.Timeslot, error)
	ListTimeslots(ctx context.Context, eventID model.EventID) ([]model.Timeslot, error)

	CreateHonor(ctx context.Context, honor *model.Honor) error
	GetHonor(ctx context.Context, id model.HonorID) (*model.Honor, error)

	CreateClass(ctx context.Context, class *model.Class) error
	// CreateSessionGroup inserts the classes atomically under a fresh group id.
	CreateSessionGroup(ctx context.Context, classes []*model.Class) (model.SessionGroupID, error)
	GetClass(ctx context.Context, id model.ClassID) (*model.Class, error)
	UpdateClass(ctx context.Context, class *model.Class) error
	ListClasses(ctx context.Context, filter ClassFilter) ([]model.Class, error)
}

// SeatBatch is one committed seat transaction: registration row changes
// plus the class rows whose capacity or active flag changed with them.
type SeatBatch struct {
	Classes []model.Class
	Changes []model.SeatChange
}

// Empty reports whether the batch has nothing to write.
func (b SeatBatch) Empty() bool {
	return len(b.Classes) == 0 && len(b.Changes) == 0
}

// RegistrationStore persists registrations. Status and WaitlistOrder only
// change through CommitSeats.
type RegistrationStore interface {
	NewRegistrationID(ctx context.Context) (model.RegistrationID, error)
	GetRegistration(ctx context.Context, id model.RegistrationID) (*model.Registration, error)
	ListRegistrations(ctx context.Context, filter RegistrationFilter) ([]model.Registration, error)
	// CommitSeats writes the whole batch or nothing.
	CommitSeats(ctx context.Context, batch SeatBatch) error
	SetAttendance(ctx context.Context, id model.RegistrationID, attended, completed bool) error
}

// Store is the full catalog store.
type Store interface {
	CatalogStore
	RegistrationStore
	Close()
}
