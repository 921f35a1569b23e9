package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/thehansentribe/honorsfest/internal/ledger"
	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// drainAttempts bounds how often Deactivate re-snapshots a roster that keeps
// gaining new students while it waits for their locks.
const drainAttempts = 8

// Deactivate closes a class and withdraws every registration on it, enrolled
// and waitlisted alike. For a session group the drained students also lose
// their seats in the other sessions; the sibling classes stay active.
func (e *Engine) Deactivate(ctx context.Context, classID model.ClassID) ([]model.Registration, error) {
	class, err := e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	group, err := e.siblings(ctx, class)
	if err != nil {
		return nil, err
	}
	for i := range group {
		if _, err := e.track(ctx, &group[i]); err != nil {
			return nil, err
		}
	}

	for range drainAttempts {
		drained, retry, err := e.drain(ctx, classID, group)
		if err != nil {
			return nil, err
		}
		if !retry {
			e.log.Info("class deactivated", "class", classID, "withdrawn", len(drained))
			return drained, nil
		}
	}
	return nil, fmt.Errorf("deactivate class %d: roster did not settle after %d attempts", classID, drainAttempts)
}

// drain makes one attempt at deactivating a class. group is the class and its
// session siblings. retry is set when a user joined the class between the
// roster snapshot and taking the locks.
func (e *Engine) drain(ctx context.Context, classID model.ClassID, group []model.Class) (drained []model.Registration, retry bool, err error) {
	enrolled, waitlisted, err := e.ledger.Seats(classID)
	if err != nil {
		return nil, false, err
	}
	users := make([]model.UserID, 0, len(enrolled)+len(waitlisted))
	for _, r := range slices.Concat(enrolled, waitlisted) {
		users = append(users, r.UserID)
	}
	unlock := e.users.Lock(users...)
	defer unlock()

	txn, err := e.ledger.Begin(classIDs(group)...)
	if err != nil {
		return nil, false, err
	}
	defer txn.Rollback()

	current, err := txn.List(classID)
	if err != nil {
		return nil, false, err
	}
	for _, r := range current {
		if !slices.Contains(users, r.UserID) {
			return nil, true, nil
		}
	}

	class, err := e.class(ctx, classID)
	if err != nil {
		return nil, false, err
	}
	if drained, err = txn.Drain(classID); err != nil {
		return nil, false, err
	}
	timeslot := make(map[model.ClassID]model.TimeslotID, len(group))
	for _, m := range group {
		timeslot[m.ID] = m.TimeslotID
		if m.ID == classID {
			continue
		}
		for _, r := range current {
			held, ok, err := txn.Holds(m.ID, r.UserID)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			released, err := txn.Release(m.ID, held.ID)
			if err != nil {
				return nil, false, fmt.Errorf("deactivate: %w", err)
			}
			drained = append(drained, released)
		}
	}
	class.Active = false
	if _, err := e.commit(ctx, txn, "deactivate", *class); err != nil {
		return nil, false, err
	}
	for _, r := range drained {
		e.index.Remove(r.UserID, timeslot[r.ClassID], r.ID)
	}
	return drained, false, nil
}

// Activate reopens a class. Registrations removed by Deactivate are not
// restored; the class starts empty.
func (e *Engine) Activate(ctx context.Context, classID model.ClassID) (*model.Class, error) {
	class, err := e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	if _, err := e.track(ctx, class); err != nil {
		return nil, err
	}
	txn, err := e.ledger.Begin(classID)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	class, err = e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	if class.Active {
		return class, nil
	}
	class.Active = true
	if _, err := e.commit(ctx, txn, "activate", *class); err != nil {
		return nil, err
	}
	e.log.Info("class activated", "class", classID)
	return class, nil
}

// UpdateCapacityInputs changes the teacher limit and/or location of a class,
// recomputes ActualMaxCapacity and resizes its seats in one transaction.
func (e *Engine) UpdateCapacityInputs(ctx context.Context, classID model.ClassID, req model.CapacityInputsRequest) (*model.Class, error) {
	if req.TeacherMaxStudents != nil && *req.TeacherMaxStudents < 0 {
		return nil, invalid(CodeInvalidInput, "teacherMaxStudents must not be negative")
	}
	if req.ClearLocation && req.LocationID != nil {
		return nil, invalid(CodeInvalidInput, "locationId and clearLocation are mutually exclusive")
	}
	e.locMu.RLock()
	defer e.locMu.RUnlock()
	var loc *model.Location
	if req.LocationID != nil {
		l, err := e.store.GetLocation(ctx, *req.LocationID)
		if err != nil {
			return nil, notFound("location", *req.LocationID, err)
		}
		loc = l
	}
	return e.recompute(ctx, classID, "resize", func(c *model.Class) error {
		if loc != nil {
			if loc.EventID != c.EventID {
				return invalid(CodeInvalidInput, "location %d belongs to another event", loc.ID)
			}
			c.LocationID = &loc.ID
		}
		if req.ClearLocation {
			c.LocationID = nil
		}
		if req.TeacherMaxStudents != nil {
			c.TeacherMaxStudents = *req.TeacherMaxStudents
		}
		return nil
	})
}

// DeleteLocation removes a location. Classes held in it lose their location
// and with it every seat: their capacity drops to 0 and enrolled students
// move to the waitlist.
func (e *Engine) DeleteLocation(ctx context.Context, id model.LocationID) error {
	e.locMu.Lock()
	defer e.locMu.Unlock()
	if _, err := e.store.GetLocation(ctx, id); err != nil {
		return notFound("location", id, err)
	}
	dependents, err := e.store.ListClasses(ctx, repository.ClassFilter{LocationID: id})
	if err != nil {
		return fmt.Errorf("list classes in location %d: %w", id, err)
	}
	for _, dep := range dependents {
		_, err := e.recompute(ctx, dep.ID, "location-removed", func(c *model.Class) error {
			if c.LocationID != nil && *c.LocationID == id {
				c.LocationID = nil
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete location %d: %w", id, err)
		}
	}
	if err := e.store.DeleteLocation(ctx, id); err != nil {
		return notFound("location", id, err)
	}
	e.log.Info("location deleted", "location", id, "classes", len(dependents))
	return nil
}

// recompute applies mutate to the stored class under its lock, then derives
// the capacity from the result and resizes the book to match.
func (e *Engine) recompute(ctx context.Context, classID model.ClassID, action string, mutate func(*model.Class) error) (*model.Class, error) {
	class, err := e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	if _, err := e.track(ctx, class); err != nil {
		return nil, err
	}
	txn, err := e.ledger.Begin(classID)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	class, err = e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	if err := mutate(class); err != nil {
		return nil, err
	}
	var loc *model.Location
	if class.LocationID != nil {
		loc, err = e.store.GetLocation(ctx, *class.LocationID)
		if err != nil {
			return nil, notFound("location", *class.LocationID, err)
		}
	}
	class.ActualMaxCapacity = model.EffectiveCapacity(class.TeacherMaxStudents, loc)
	if err := txn.Resize(classID, class.ActualMaxCapacity); err != nil {
		return nil, err
	}
	changes, err := e.commit(ctx, txn, action, *class)
	if err != nil {
		return nil, err
	}
	e.log.Info("class capacity updated", "class", classID, "capacity", class.ActualMaxCapacity, "moved", len(changes))
	return class, nil
}

// MarkAttendance sets the teacher-reported flags on a registration. Seat
// state is not affected.
func (e *Engine) MarkAttendance(ctx context.Context, id model.RegistrationID, attended, completed bool) (*model.Registration, error) {
	reg, err := e.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	txn, err := e.ledger.Begin(reg.ClassID)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	if err := txn.Mark(reg.ClassID, id, attended, completed); err != nil {
		if errors.Is(err, ledger.ErrUnknownRegistration) {
			return nil, &NotFoundError{Kind: "registration", ID: int64(id)}
		}
		return nil, err
	}
	if err := e.store.SetAttendance(ctx, id, attended, completed); err != nil {
		return nil, notFound("registration", id, err)
	}
	updated, err := txn.Get(reg.ClassID, id)
	if err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, e.race(err)
	}
	return &updated, nil
}
