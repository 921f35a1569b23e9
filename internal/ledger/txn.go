package ledger

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/thehansentribe/honorsfest/internal/model"
)

// Txn is a locked seat transaction over a fixed set of classes. A Txn is not
// safe for concurrent use. Every Txn must end with Commit or Rollback.
type Txn struct {
	ledger *Ledger
	ids    []model.ClassID
	books  map[model.ClassID]*book
	staged map[model.ClassID]*state
	done   bool
}

func (t *Txn) state(classID model.ClassID) (*state, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	if s, ok := t.staged[classID]; ok {
		return s, nil
	}
	b, ok := t.books[classID]
	if !ok {
		return nil, fmt.Errorf("class %d not locked by transaction: %w", classID, ErrUnknownClass)
	}
	s := b.state.clone()
	t.staged[classID] = s
	return s, nil
}

// Counts reports the staged counts of a locked class.
func (t *Txn) Counts(classID model.ClassID) (model.Counts, error) {
	s, err := t.state(classID)
	if err != nil {
		return model.Counts{}, err
	}
	return s.counts(classID), nil
}

// Holds returns the user's registration in the class, if any.
func (t *Txn) Holds(classID model.ClassID, user model.UserID) (model.Registration, bool, error) {
	s, err := t.state(classID)
	if err != nil {
		return model.Registration{}, false, err
	}
	for _, list := range [][]model.Registration{s.enrolled, s.waitlist} {
		for _, r := range list {
			if r.UserID == user {
				return r, true, nil
			}
		}
	}
	return model.Registration{}, false, nil
}

// Get returns a registration of a locked class.
func (t *Txn) Get(classID model.ClassID, id model.RegistrationID) (model.Registration, error) {
	s, err := t.state(classID)
	if err != nil {
		return model.Registration{}, err
	}
	if i := indexOf(s.enrolled, id); i >= 0 {
		return s.enrolled[i], nil
	}
	if i := indexOf(s.waitlist, id); i >= 0 {
		return s.waitlist[i], nil
	}
	return model.Registration{}, fmt.Errorf("registration %d in class %d: %w", id, classID, ErrUnknownRegistration)
}

// List returns every registration of a locked class, enrolled first.
func (t *Txn) List(classID model.ClassID) ([]model.Registration, error) {
	s, err := t.state(classID)
	if err != nil {
		return nil, err
	}
	return slices.Concat(s.enrolled, s.waitlist), nil
}

// Admit seats reg in its class: Enrolled while seats remain, otherwise
// Waitlisted at the tail. reg must carry ID, UserID, ClassID and CreatedAt;
// Status and WaitlistOrder are assigned here.
func (t *Txn) Admit(reg model.Registration) (model.Registration, error) {
	s, err := t.state(reg.ClassID)
	if err != nil {
		return model.Registration{}, err
	}
	if _, held, _ := t.Holds(reg.ClassID, reg.UserID); held {
		return model.Registration{}, fmt.Errorf("user %d class %d: %w", reg.UserID, reg.ClassID, ErrAlreadyHeld)
	}
	if len(s.enrolled) < s.capacity {
		reg.Status = model.StatusEnrolled
		reg.WaitlistOrder = 0
		s.enrolled = insertSorted(s.enrolled, reg)
	} else {
		reg.Status = model.StatusWaitlisted
		reg.WaitlistOrder = len(s.waitlist) + 1
		s.waitlist = append(s.waitlist, reg)
	}
	return reg, nil
}

// Release removes a registration. Releasing an enrolled seat promotes the
// head of the waitlist; the waitlist is compacted either way.
func (t *Txn) Release(classID model.ClassID, id model.RegistrationID) (model.Registration, error) {
	s, err := t.state(classID)
	if err != nil {
		return model.Registration{}, err
	}
	if i := indexOf(s.enrolled, id); i >= 0 {
		released := s.enrolled[i]
		s.enrolled = slices.Delete(s.enrolled, i, i+1)
		s.promote(s.capacity - len(s.enrolled))
		return released, nil
	}
	if i := indexOf(s.waitlist, id); i >= 0 {
		released := s.waitlist[i]
		s.waitlist = slices.Delete(s.waitlist, i, i+1)
		s.renumber()
		return released, nil
	}
	return model.Registration{}, fmt.Errorf("registration %d in class %d: %w", id, classID, ErrUnknownRegistration)
}

// Resize sets a new capacity. Shrinking demotes the most recently created
// enrolled registrations to the head of the waitlist; growing promotes from
// the head of the waitlist.
func (t *Txn) Resize(classID model.ClassID, capacity int) error {
	s, err := t.state(classID)
	if err != nil {
		return err
	}
	s.capacity = max(capacity, 0)
	if excess := len(s.enrolled) - s.capacity; excess > 0 {
		cut := len(s.enrolled) - excess
		demoted := slices.Clone(s.enrolled[cut:])
		s.enrolled = s.enrolled[:cut]
		for i := range demoted {
			demoted[i].Status = model.StatusWaitlisted
		}
		s.waitlist = append(demoted, s.waitlist...)
		s.renumber()
		return nil
	}
	s.promote(s.capacity - len(s.enrolled))
	return nil
}

// Mark sets the teacher flags of a registration. It does not touch seats.
func (t *Txn) Mark(classID model.ClassID, id model.RegistrationID, attended, completed bool) error {
	s, err := t.state(classID)
	if err != nil {
		return err
	}
	for _, list := range [][]model.Registration{s.enrolled, s.waitlist} {
		if i := indexOf(list, id); i >= 0 {
			list[i].Attended = attended
			list[i].Completed = completed
			return nil
		}
	}
	return fmt.Errorf("registration %d in class %d: %w", id, classID, ErrUnknownRegistration)
}

// Drain releases every registration of the class without promotion and
// returns them.
func (t *Txn) Drain(classID model.ClassID) ([]model.Registration, error) {
	s, err := t.state(classID)
	if err != nil {
		return nil, err
	}
	out := slices.Concat(s.enrolled, s.waitlist)
	s.enrolled = nil
	s.waitlist = nil
	return out, nil
}

// promote moves up to n registrations from the waitlist head into enrolled.
func (s *state) promote(n int) {
	n = min(n, len(s.waitlist))
	if n <= 0 {
		s.renumber()
		return
	}
	slices.SortStableFunc(s.waitlist, byWaitlist)
	for _, r := range s.waitlist[:n] {
		r.Status = model.StatusEnrolled
		r.WaitlistOrder = 0
		s.enrolled = insertSorted(s.enrolled, r)
	}
	s.waitlist = slices.Delete(s.waitlist, 0, n)
	s.renumber()
}

func (s *state) renumber() {
	for i := range s.waitlist {
		s.waitlist[i].WaitlistOrder = i + 1
	}
}

func (s *state) verify(classID model.ClassID) error {
	if len(s.enrolled) > s.capacity {
		return &InvariantError{ClassID: classID, Reason: fmt.Sprintf("%d enrolled exceeds capacity %d", len(s.enrolled), s.capacity)}
	}
	seen := make(map[model.UserID]bool, len(s.enrolled)+len(s.waitlist))
	for _, r := range s.enrolled {
		if r.Status != model.StatusEnrolled {
			return &InvariantError{ClassID: classID, Reason: fmt.Sprintf("registration %d in enrolled list has status %s", r.ID, r.Status)}
		}
		seen[r.UserID] = true
	}
	for i, r := range s.waitlist {
		if r.Status != model.StatusWaitlisted || r.WaitlistOrder != i+1 {
			return &InvariantError{ClassID: classID, Reason: fmt.Sprintf("waitlist position %d holds registration %d with order %d", i+1, r.ID, r.WaitlistOrder)}
		}
		if seen[r.UserID] {
			return &InvariantError{ClassID: classID, Reason: fmt.Sprintf("user %d registered twice", r.UserID)}
		}
		seen[r.UserID] = true
	}
	return nil
}

// Verify checks the invariants of every staged class.
func (t *Txn) Verify() error {
	if t.done {
		return ErrTxnDone
	}
	for _, id := range t.ids {
		if s, ok := t.staged[id]; ok {
			if err := s.verify(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Changes diffs the staged state against the books and returns the row
// changes to persist: deletes, then updates, then inserts, each by id.
func (t *Txn) Changes() []model.SeatChange {
	var deletes, updates, inserts []model.SeatChange
	for _, id := range t.ids {
		s, ok := t.staged[id]
		if !ok {
			continue
		}
		before := regsByID(&t.books[id].state)
		after := regsByID(s)
		for rid, old := range before {
			cur, still := after[rid]
			switch {
			case !still:
				deletes = append(deletes, model.SeatChange{Op: model.SeatDelete, Reason: model.ReasonRelease, Registration: old})
			case cur.Status != old.Status || cur.WaitlistOrder != old.WaitlistOrder:
				updates = append(updates, model.SeatChange{Op: model.SeatUpdate, Reason: updateReason(old, cur), Registration: cur})
			}
		}
		for rid, cur := range after {
			if _, existed := before[rid]; !existed {
				inserts = append(inserts, model.SeatChange{Op: model.SeatInsert, Reason: model.ReasonAdmit, Registration: cur})
			}
		}
	}
	byRegID := func(a, b model.SeatChange) int { return cmp.Compare(a.Registration.ID, b.Registration.ID) }
	slices.SortFunc(deletes, byRegID)
	slices.SortFunc(updates, byRegID)
	slices.SortFunc(inserts, byRegID)
	return slices.Concat(deletes, updates, inserts)
}

func updateReason(old, cur model.Registration) model.SeatReason {
	switch {
	case old.Status == model.StatusWaitlisted && cur.Status == model.StatusEnrolled:
		return model.ReasonPromote
	case old.Status == model.StatusEnrolled && cur.Status == model.StatusWaitlisted:
		return model.ReasonDemote
	default:
		return model.ReasonReorder
	}
}

// Commit applies the staged state to the books and unlocks them. It verifies
// the invariants first and rolls back if they fail.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	if err := t.Verify(); err != nil {
		t.Rollback()
		return err
	}
	changes := t.Changes()

	t.ledger.mu.Lock()
	for _, ch := range changes {
		switch ch.Op {
		case model.SeatInsert:
			t.ledger.owner[ch.Registration.ID] = ch.Registration.ClassID
		case model.SeatDelete:
			delete(t.ledger.owner, ch.Registration.ID)
		}
	}
	t.ledger.mu.Unlock()

	for id, s := range t.staged {
		t.books[id].state = *s
	}
	t.unlock()
	return nil
}

// Rollback discards staged changes and unlocks the books. It is safe to call
// after Commit.
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	t.unlock()
}

func (t *Txn) unlock() {
	t.done = true
	for i := len(t.ids) - 1; i >= 0; i-- {
		t.books[t.ids[i]].mu.Unlock()
	}
}

func regsByID(s *state) map[model.RegistrationID]model.Registration {
	out := make(map[model.RegistrationID]model.Registration, len(s.enrolled)+len(s.waitlist))
	for _, r := range s.enrolled {
		out[r.ID] = r
	}
	for _, r := range s.waitlist {
		out[r.ID] = r
	}
	return out
}

func indexOf(list []model.Registration, id model.RegistrationID) int {
	return slices.IndexFunc(list, func(r model.Registration) bool { return r.ID == id })
}

func insertSorted(list []model.Registration, r model.Registration) []model.Registration {
	i, _ := slices.BinarySearchFunc(list, r, byCreation)
	return slices.Insert(list, i, r)
}
