package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/thehansentribe/honorsfest/internal/conflict"
	"github.com/thehansentribe/honorsfest/internal/ledger"
	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// admission is a validated registration request ready to be locked.
type admission struct {
	policy  model.Policy
	user    *model.User
	class   *model.Class
	members []model.Class
}

// Register places a student in a class under the self-service policy. A
// timeslot collision is returned as RegisterResult.Conflict, not an error.
func (e *Engine) Register(ctx context.Context, userID model.UserID, classID model.ClassID) (*model.RegisterResult, error) {
	return e.Admit(ctx, model.SelfService, userID, classID)
}

// AdminAdd places a student in a class under the administrative policy,
// which skips the event status and club checks.
func (e *Engine) AdminAdd(ctx context.Context, userID model.UserID, classID model.ClassID) (*model.RegisterResult, error) {
	return e.Admit(ctx, model.Administrative, userID, classID)
}

// Admit runs a registration under the given policy. For a session group every
// member class is admitted or none is.
func (e *Engine) Admit(ctx context.Context, policy model.Policy, userID model.UserID, classID model.ClassID) (*model.RegisterResult, error) {
	adm, err := e.prepare(ctx, policy, userID, classID)
	if err != nil {
		return nil, err
	}
	return e.admit(ctx, adm, actionFor(policy, "register", "admin-add"))
}

func actionFor(policy model.Policy, self, admin string) string {
	if policy == model.Administrative {
		return admin
	}
	return self
}

// prepare checks everything that does not depend on seat state.
func (e *Engine) prepare(ctx context.Context, policy model.Policy, userID model.UserID, classID model.ClassID) (*admission, error) {
	user, err := e.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	class, err := e.class(ctx, classID)
	if err != nil {
		return nil, err
	}
	if policy == model.SelfService {
		event, err := e.store.GetEvent(ctx, class.EventID)
		if err != nil {
			return nil, notFound("event", class.EventID, err)
		}
		if event.Status != model.EventLive {
			return nil, invalid(CodeEventClosed, "registration for %q is closed", event.Name)
		}
		if user.ClubID == nil {
			return nil, invalid(CodeNoClub, "user %d has no club assigned", user.ID)
		}
	}
	if !user.Active {
		return nil, invalid(CodeUserInactive, "user %d is inactive", user.ID)
	}
	if err := eligible(user, class); err != nil {
		return nil, err
	}
	members, err := e.members(ctx, class)
	if err != nil {
		return nil, err
	}
	for i := range members {
		if _, err := e.track(ctx, &members[i]); err != nil {
			return nil, err
		}
	}
	return &admission{policy: policy, user: user, class: class, members: members}, nil
}

func eligible(user *model.User, class *model.Class) error {
	if !class.Active {
		return invalid(CodeClassInactive, "class %q is not accepting registrations", class.Name)
	}
	if class.MinimumLevel != nil && user.InvestitureLevel < *class.MinimumLevel {
		return invalid(CodeLevelTooLow, "class %q requires %s, user is %s", class.Name, *class.MinimumLevel, user.InvestitureLevel)
	}
	return nil
}

// members returns the classes a registration for class must cover: the class
// itself or every class of its session group.
func (e *Engine) members(ctx context.Context, class *model.Class) ([]model.Class, error) {
	if !class.MultiSession() {
		return []model.Class{*class}, nil
	}
	group, err := e.store.ListClasses(ctx, repository.ClassFilter{SessionGroupID: *class.SessionGroupID})
	if err != nil {
		return nil, fmt.Errorf("list session group %d: %w", *class.SessionGroupID, err)
	}
	if len(group) != class.TotalSessions {
		return nil, invalid(CodeIncompleteSessionGroup, "session group %d has %d of %d classes",
			*class.SessionGroupID, len(group), class.TotalSessions)
	}
	return group, nil
}

// siblings is members without the completeness check, for withdrawals.
func (e *Engine) siblings(ctx context.Context, class *model.Class) ([]model.Class, error) {
	if class.SessionGroupID == nil {
		return []model.Class{*class}, nil
	}
	group, err := e.store.ListClasses(ctx, repository.ClassFilter{SessionGroupID: *class.SessionGroupID})
	if err != nil {
		return nil, fmt.Errorf("list session group %d: %w", *class.SessionGroupID, err)
	}
	if len(group) == 0 {
		return []model.Class{*class}, nil
	}
	return group, nil
}

func classIDs(classes []model.Class) []model.ClassID {
	ids := make([]model.ClassID, len(classes))
	for i, c := range classes {
		ids[i] = c.ID
	}
	return ids
}

func (e *Engine) admit(ctx context.Context, adm *admission, action string) (*model.RegisterResult, error) {
	userID := adm.user.ID
	unlock := e.users.Lock(userID)
	defer unlock()

	txn, err := e.ledger.Begin(classIDs(adm.members)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer txn.Rollback()

	// Lifecycle writes happen under the same class locks, so this read is
	// the state the seats will be committed against.
	members := make([]model.Class, 0, len(adm.members))
	timeslots := make([]model.TimeslotID, 0, len(adm.members))
	for _, m := range adm.members {
		class, err := e.class(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if err := eligible(adm.user, class); err != nil {
			return nil, err
		}
		if _, held, err := txn.Holds(class.ID, userID); err != nil {
			return nil, err
		} else if held {
			return nil, invalid(CodeAlreadyRegistered, "user %d is already registered for %q", userID, class.Name)
		}
		members = append(members, *class)
		timeslots = append(timeslots, class.TimeslotID)
	}

	if hits := e.index.CheckAll(userID, timeslots); len(hits) > 0 {
		return &model.RegisterResult{Conflict: e.describe(ctx, hits[0])}, nil
	}

	now := e.now()
	admitted := make([]model.Registration, 0, len(members))
	for _, class := range members {
		id, err := e.store.NewRegistrationID(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: allocate registration id: %w", action, err)
		}
		reg, err := txn.Admit(model.Registration{ID: id, UserID: userID, ClassID: class.ID, CreatedAt: now})
		if err != nil {
			if errors.Is(err, ledger.ErrAlreadyHeld) {
				return nil, invalid(CodeAlreadyRegistered, "user %d is already registered for %q", userID, class.Name)
			}
			return nil, fmt.Errorf("%s: %w", action, err)
		}
		admitted = append(admitted, reg)
	}
	if err := txn.Verify(); err != nil {
		return nil, e.race(err)
	}

	inserted := make([]model.Class, 0, len(members))
	undo := func() {
		for i, class := range inserted {
			e.index.Remove(userID, class.TimeslotID, admitted[i].ID)
		}
	}
	for i, class := range members {
		if err := e.index.Insert(userID, class.TimeslotID, conflict.Entry{RegistrationID: admitted[i].ID, ClassID: class.ID}); err != nil {
			undo()
			return nil, &CapacityRaceError{ClassID: class.ID, Err: err}
		}
		inserted = append(inserted, class)
	}
	if _, err := e.commit(ctx, txn, action); err != nil {
		undo()
		return nil, err
	}

	res := &model.RegisterResult{Status: model.StatusEnrolled, Registrations: admitted}
	for _, r := range admitted {
		if r.Status == model.StatusWaitlisted {
			res.Status = model.StatusWaitlisted
		}
	}
	e.log.Info("registration admitted", "policy", adm.policy, "user", userID,
		"class", adm.class.ID, "sessions", len(admitted), "status", res.Status)
	return res, nil
}

func (e *Engine) describe(ctx context.Context, hit conflict.Hit) *model.Conflict {
	c := &model.Conflict{
		Conflict:               true,
		ConflictClassID:        hit.Entry.ClassID,
		ConflictRegistrationID: hit.Entry.RegistrationID,
		TimeslotID:             hit.TimeslotID,
	}
	if class, err := e.store.GetClass(ctx, hit.Entry.ClassID); err == nil {
		c.ConflictClassName = class.Name
	} else {
		e.log.Warn("conflicting class lookup failed", "class", hit.Entry.ClassID, "err", err)
	}
	return c
}

// Withdraw removes a registration. For a session group the user's
// registrations in every member class are removed together.
func (e *Engine) Withdraw(ctx context.Context, id model.RegistrationID) ([]model.Registration, error) {
	return e.release(ctx, id, "withdraw")
}

// AdminRemove is Withdraw on behalf of an administrator.
func (e *Engine) AdminRemove(ctx context.Context, id model.RegistrationID) ([]model.Registration, error) {
	return e.release(ctx, id, "admin-remove")
}

// locate finds a registration, loading its class into the ledger if needed.
func (e *Engine) locate(ctx context.Context, id model.RegistrationID) (model.Registration, error) {
	if reg, ok := e.ledger.Find(id); ok {
		return reg, nil
	}
	stored, err := e.store.GetRegistration(ctx, id)
	if err != nil {
		return model.Registration{}, notFound("registration", id, err)
	}
	class, err := e.class(ctx, stored.ClassID)
	if err != nil {
		return model.Registration{}, err
	}
	if _, err := e.track(ctx, class); err != nil {
		return model.Registration{}, err
	}
	if reg, ok := e.ledger.Find(id); ok {
		return reg, nil
	}
	return model.Registration{}, &NotFoundError{Kind: "registration", ID: int64(id)}
}

func (e *Engine) release(ctx context.Context, id model.RegistrationID, action string) ([]model.Registration, error) {
	reg, err := e.locate(ctx, id)
	if err != nil {
		return nil, err
	}
	class, err := e.class(ctx, reg.ClassID)
	if err != nil {
		return nil, err
	}
	members, err := e.siblings(ctx, class)
	if err != nil {
		return nil, err
	}
	timeslot := make(map[model.ClassID]model.TimeslotID, len(members))
	for i := range members {
		if _, err := e.track(ctx, &members[i]); err != nil {
			return nil, err
		}
		timeslot[members[i].ID] = members[i].TimeslotID
	}

	unlock := e.users.Lock(reg.UserID)
	defer unlock()
	txn, err := e.ledger.Begin(classIDs(members)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer txn.Rollback()

	if _, err := txn.Get(reg.ClassID, id); err != nil {
		if errors.Is(err, ledger.ErrUnknownRegistration) {
			return nil, &NotFoundError{Kind: "registration", ID: int64(id)}
		}
		return nil, err
	}
	var released []model.Registration
	for _, m := range members {
		held, ok, err := txn.Holds(m.ID, reg.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		r, err := txn.Release(m.ID, held.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", action, err)
		}
		released = append(released, r)
	}
	if _, err := e.commit(ctx, txn, action); err != nil {
		return nil, err
	}
	for _, r := range released {
		e.index.Remove(r.UserID, timeslot[r.ClassID], r.ID)
	}
	e.log.Info("registration released", "action", action, "user", reg.UserID,
		"class", reg.ClassID, "registrations", len(released))
	return released, nil
}

// ResolveConflict withdraws the user's conflicting registration and then
// registers the user for classID. A collision the withdrawal would not clear
// is returned as RegisterResult.Conflict and nothing is withdrawn. The two
// steps are not atomic: if the second fails the user is left without either
// registration and a *PartialFailureError is returned.
func (e *Engine) ResolveConflict(ctx context.Context, policy model.Policy, userID model.UserID, classID model.ClassID, conflictID model.RegistrationID) (*model.RegisterResult, error) {
	old, err := e.locate(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if old.UserID != userID {
		return nil, invalid(CodeInvalidInput, "registration %d does not belong to user %d", conflictID, userID)
	}
	adm, err := e.prepare(ctx, policy, userID, classID)
	if err != nil {
		return nil, err
	}
	if c, err := e.preflight(ctx, adm, old); err != nil {
		return nil, err
	} else if c != nil {
		return &model.RegisterResult{Conflict: c}, nil
	}

	withdrawn, err := e.release(ctx, conflictID, actionFor(policy, "resolve-withdraw", "admin-resolve-withdraw"))
	if err != nil {
		return nil, err
	}
	res, err := e.admit(ctx, adm, actionFor(policy, "resolve-register", "admin-resolve-register"))
	switch {
	case err != nil:
	case res.Conflict != nil:
		err = fmt.Errorf("class %d still conflicts with %q (registration %d)",
			classID, res.Conflict.ConflictClassName, res.Conflict.ConflictRegistrationID)
	default:
		return res, nil
	}
	e.log.Error("conflict resolution left user without registration",
		"user", userID, "class", classID, "withdrawn", conflictID, "err", err)
	return nil, &PartialFailureError{Withdrawn: withdrawn, Cause: err}
}

// preflight checks every timeslot of the target against the index before
// anything is withdrawn. Hits on old or its sibling sessions are cleared by
// the withdrawal; any other hit is returned as the conflict. old must be one
// of the hits.
func (e *Engine) preflight(ctx context.Context, adm *admission, old model.Registration) (*model.Conflict, error) {
	oldClass, err := e.class(ctx, old.ClassID)
	if err != nil {
		return nil, err
	}
	leaving, err := e.siblings(ctx, oldClass)
	if err != nil {
		return nil, err
	}
	cleared := make(map[model.ClassID]bool, len(leaving))
	for _, c := range leaving {
		cleared[c.ID] = true
	}
	target := make(map[model.ClassID]string, len(adm.members))
	timeslots := make([]model.TimeslotID, 0, len(adm.members))
	for _, m := range adm.members {
		if cleared[m.ID] {
			return nil, invalid(CodeAlreadyRegistered, "user %d is already registered for %q", adm.user.ID, m.Name)
		}
		target[m.ID] = m.Name
		timeslots = append(timeslots, m.TimeslotID)
	}

	unlock := e.users.Lock(adm.user.ID)
	defer unlock()
	resolves := false
	for _, hit := range e.index.CheckAll(adm.user.ID, timeslots) {
		if name, ok := target[hit.Entry.ClassID]; ok {
			return nil, invalid(CodeAlreadyRegistered, "user %d is already registered for %q", adm.user.ID, name)
		}
		if !cleared[hit.Entry.ClassID] {
			return e.describe(ctx, hit), nil
		}
		resolves = true
	}
	if !resolves {
		return nil, invalid(CodeInvalidInput, "registration %d does not conflict with class %d", old.ID, adm.class.ID)
	}
	return nil, nil
}
