package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// Counts returns the (enrolled, waitlisted, capacity) triple of a class.
func (e *Engine) Counts(ctx context.Context, classID model.ClassID) (model.Counts, error) {
	class, err := e.class(ctx, classID)
	if err != nil {
		return model.Counts{}, err
	}
	if _, err := e.track(ctx, class); err != nil {
		return model.Counts{}, err
	}
	return e.ledger.Counts(classID)
}

// Roster lists a class's enrolled students by name and its waitlist by
// position.
func (e *Engine) Roster(ctx context.Context, classID model.ClassID) (*model.Roster, error) {
	class, err := e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	if _, err := e.track(ctx, class); err != nil {
		return nil, err
	}
	enrolled, waitlisted, err := e.ledger.Seats(classID)
	if err != nil {
		return nil, err
	}
	counts, err := e.ledger.Counts(classID)
	if err != nil {
		return nil, err
	}
	roster := &model.Roster{
		Class:      *class,
		Counts:     counts,
		Enrolled:   make([]model.RosterEntry, 0, len(enrolled)),
		Waitlisted: make([]model.RosterEntry, 0, len(waitlisted)),
	}
	for _, r := range enrolled {
		entry, err := e.rosterEntry(ctx, r)
		if err != nil {
			return nil, err
		}
		roster.Enrolled = append(roster.Enrolled, entry)
	}
	for _, r := range waitlisted {
		entry, err := e.rosterEntry(ctx, r)
		if err != nil {
			return nil, err
		}
		roster.Waitlisted = append(roster.Waitlisted, entry)
	}
	slices.SortStableFunc(roster.Enrolled, func(a, b model.RosterEntry) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return roster, nil
}

func (e *Engine) rosterEntry(ctx context.Context, r model.Registration) (model.RosterEntry, error) {
	user, err := e.store.GetUser(ctx, r.UserID)
	if err != nil {
		return model.RosterEntry{}, fmt.Errorf("roster user %d: %w", r.UserID, err)
	}
	return model.RosterEntry{Registration: r, Name: user.FullName(), CheckInNumber: user.CheckInNumber}, nil
}

// Schedule lists the user's registrations in timeslot order.
func (e *Engine) Schedule(ctx context.Context, userID model.UserID) ([]model.ScheduleEntry, error) {
	if _, err := e.user(ctx, userID); err != nil {
		return nil, err
	}
	entries := e.index.ForUser(userID)
	out := make([]model.ScheduleEntry, 0, len(entries))
	for tsID, entry := range entries {
		reg, ok := e.ledger.Find(entry.RegistrationID)
		if !ok {
			continue
		}
		class, err := e.store.GetClass(ctx, entry.ClassID)
		if err != nil {
			return nil, notFound("class", entry.ClassID, err)
		}
		ts, err := e.store.GetTimeslot(ctx, tsID)
		if err != nil {
			return nil, notFound("timeslot", tsID, err)
		}
		out = append(out, model.ScheduleEntry{Registration: reg, Class: *class, Timeslot: *ts})
	}
	slices.SortFunc(out, func(a, b model.ScheduleEntry) int {
		return cmp.Or(
			cmp.Compare(a.Timeslot.Date, b.Timeslot.Date),
			cmp.Compare(a.Timeslot.StartTime, b.Timeslot.StartTime),
			cmp.Compare(a.Timeslot.ID, b.Timeslot.ID),
		)
	})
	return out, nil
}

// EventClasses is the student-facing catalog of an event: active classes
// only, each with its counts.
func (e *Engine) EventClasses(ctx context.Context, eventID model.EventID) ([]model.ClassListing, error) {
	if _, err := e.store.GetEvent(ctx, eventID); err != nil {
		return nil, notFound("event", eventID, err)
	}
	classes, err := e.store.ListClasses(ctx, repository.ClassFilter{EventID: eventID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list classes of event %d: %w", eventID, err)
	}
	out := make([]model.ClassListing, 0, len(classes))
	for i := range classes {
		if _, err := e.track(ctx, &classes[i]); err != nil {
			return nil, err
		}
		counts, err := e.ledger.Counts(classes[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.ClassListing{Class: classes[i], Counts: counts})
	}
	return out, nil
}
