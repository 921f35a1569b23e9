// Package ledger keeps per-class seat accounting: who is enrolled, who is
// waitlisted and in what order, and how many seats the class has.
//
// The ledger is the only code that sets Registration.Status and
// Registration.WaitlistOrder. All mutation goes through a Txn, which locks
// the involved classes in ascending ClassID order, stages every change on a
// private copy and applies it on Commit. A Txn that is rolled back leaves the
// books untouched.
//
// Invariants held after every Commit:
//   - enrolled count never exceeds capacity
//   - waitlist orders form the dense sequence 1..N
package ledger

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/thehansentribe/honorsfest/internal/model"
)

var (
	// ErrUnknownClass is returned for a class the ledger does not track.
	ErrUnknownClass = errors.New("ledger: unknown class")

	// ErrUnknownRegistration is returned for a registration not in the class.
	ErrUnknownRegistration = errors.New("ledger: unknown registration")

	// ErrAlreadyHeld is returned when the user already holds a seat in the class.
	ErrAlreadyHeld = errors.New("ledger: user already registered in class")

	// ErrTxnDone is returned when a finished Txn is used again.
	ErrTxnDone = errors.New("ledger: transaction already finished")
)

// InvariantError reports a seat state that breaks the capacity or density
// invariants. It means the locking discipline was bypassed somewhere.
type InvariantError struct {
	ClassID model.ClassID
	Reason  string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for class %d: %s", e.ClassID, e.Reason)
}

type book struct {
	mu sync.Mutex
	state
}

type state struct {
	capacity int
	// enrolled is ordered by CreatedAt, then ID.
	enrolled []model.Registration
	// waitlist is ordered by WaitlistOrder (dense from 1).
	waitlist []model.Registration
}

func (s *state) clone() *state {
	return &state{
		capacity: s.capacity,
		enrolled: slices.Clone(s.enrolled),
		waitlist: slices.Clone(s.waitlist),
	}
}

func (s *state) counts(id model.ClassID) model.Counts {
	return model.Counts{
		ClassID:    id,
		Enrolled:   len(s.enrolled),
		Waitlisted: len(s.waitlist),
		Capacity:   s.capacity,
	}
}

func byCreation(a, b model.Registration) int {
	return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
}

func byWaitlist(a, b model.Registration) int {
	return cmp.Or(cmp.Compare(a.WaitlistOrder, b.WaitlistOrder), byCreation(a, b))
}

// Ledger tracks the books of every known class.
type Ledger struct {
	mu    sync.RWMutex
	books map[model.ClassID]*book
	owner map[model.RegistrationID]model.ClassID
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		books: make(map[model.ClassID]*book),
		owner: make(map[model.RegistrationID]model.ClassID),
	}
}

// Track installs a class's book from persisted registrations unless the class
// is already tracked. It reports whether the book was installed. Waitlist
// orders are renumbered densely; stored orders only decide relative position.
func (l *Ledger) Track(classID model.ClassID, capacity int, regs []model.Registration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.books[classID]; ok {
		return false
	}
	b := &book{state: state{capacity: max(capacity, 0)}}
	for _, r := range regs {
		r.ClassID = classID
		switch r.Status {
		case model.StatusEnrolled:
			r.WaitlistOrder = 0
			b.enrolled = append(b.enrolled, r)
		default:
			r.Status = model.StatusWaitlisted
			b.waitlist = append(b.waitlist, r)
		}
		l.owner[r.ID] = classID
	}
	slices.SortFunc(b.enrolled, byCreation)
	slices.SortFunc(b.waitlist, byWaitlist)
	for i := range b.waitlist {
		b.waitlist[i].WaitlistOrder = i + 1
	}
	l.books[classID] = b
	return true
}

// Tracked reports whether the class has a book.
func (l *Ledger) Tracked(classID model.ClassID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.books[classID]
	return ok
}

// Locate returns the class currently holding a registration.
func (l *Ledger) Locate(id model.RegistrationID) (model.ClassID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.owner[id]
	return c, ok
}

// Find returns a copy of a registration by id.
func (l *Ledger) Find(id model.RegistrationID) (model.Registration, bool) {
	classID, ok := l.Locate(id)
	if !ok {
		return model.Registration{}, false
	}
	b, err := l.book(classID)
	if err != nil {
		return model.Registration{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, list := range [][]model.Registration{b.enrolled, b.waitlist} {
		if i := indexOf(list, id); i >= 0 {
			return list[i], true
		}
	}
	return model.Registration{}, false
}

func (l *Ledger) book(classID model.ClassID) (*book, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.books[classID]
	if !ok {
		return nil, fmt.Errorf("class %d: %w", classID, ErrUnknownClass)
	}
	return b, nil
}

// Counts returns the (enrolled, waitlisted, capacity) snapshot of a class.
func (l *Ledger) Counts(classID model.ClassID) (model.Counts, error) {
	b, err := l.book(classID)
	if err != nil {
		return model.Counts{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts(classID), nil
}

// Seats returns copies of the enrolled (creation order) and waitlisted
// (waitlist order) registrations of a class.
func (l *Ledger) Seats(classID model.ClassID) (enrolled, waitlisted []model.Registration, err error) {
	b, err := l.book(classID)
	if err != nil {
		return nil, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.enrolled), slices.Clone(b.waitlist), nil
}

// Begin locks the books of the given classes in ascending order and returns
// a transaction over them. Duplicate ids are ignored.
func (l *Ledger) Begin(classIDs ...model.ClassID) (*Txn, error) {
	ids := slices.Clone(classIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	books := make(map[model.ClassID]*book, len(ids))
	for _, id := range ids {
		b, err := l.book(id)
		if err != nil {
			return nil, err
		}
		books[id] = b
	}
	for _, id := range ids {
		books[id].mu.Lock()
	}
	return &Txn{
		ledger: l,
		ids:    ids,
		books:  books,
		staged: make(map[model.ClassID]*state, len(ids)),
	}, nil
}
