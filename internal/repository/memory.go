package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/thehansentribe/honorsfest/internal/model"
)

var _ Store = (*Memory)(nil)

type eventClub struct {
	event model.EventID
	club  model.ClubID
}

// Memory is an in-process Store. It is the default when no database is
// configured and backs the engine tests.
type Memory struct {
	mu sync.RWMutex

	seq         map[string]int64
	events      map[model.EventID]model.Event
	clubs       map[model.ClubID]model.Club
	assignments map[eventClub]struct{}
	users       map[model.UserID]model.User
	locations   map[model.LocationID]model.Location
	timeslots   map[model.TimeslotID]model.Timeslot
	honors      map[model.HonorID]model.Honor
	classes     map[model.ClassID]model.Class
	regs        map[model.RegistrationID]model.Registration
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		seq:         make(map[string]int64),
		events:      make(map[model.EventID]model.Event),
		clubs:       make(map[model.ClubID]model.Club),
		assignments: make(map[eventClub]struct{}),
		users:       make(map[model.UserID]model.User),
		locations:   make(map[model.LocationID]model.Location),
		timeslots:   make(map[model.TimeslotID]model.Timeslot),
		honors:      make(map[model.HonorID]model.Honor),
		classes:     make(map[model.ClassID]model.Class),
		regs:        make(map[model.RegistrationID]model.Registration),
	}
}

// Close is a no-op.
func (m *Memory) Close() {}

// next must be called with mu held.
func (m *Memory) next(kind string) int64 {
	m.seq[kind]++
	return m.seq[kind]
}

func sortedValues[K cmp.Ordered, V any](src map[K]V, keep func(V) bool) []V {
	keys := make([]K, 0, len(src))
	for k, v := range src {
		if keep == nil || keep(v) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, src[k])
	}
	return out
}

func (m *Memory) CreateEvent(_ context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = model.EventID(m.next("event"))
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	m.events[event.ID] = *event
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id model.EventID) (*model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *Memory) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.events, nil), nil
}

func (m *Memory) UpdateEvent(_ context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; !ok {
		return ErrNotFound
	}
	m.events[event.ID] = *event
	return nil
}

func (m *Memory) CreateClub(_ context.Context, club *model.Club) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	club.ID = model.ClubID(m.next("club"))
	m.clubs[club.ID] = *club
	return nil
}

func (m *Memory) GetClub(_ context.Context, id model.ClubID) (*model.Club, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clubs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) AssignClub(_ context.Context, eventID model.EventID, clubID model.ClubID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[eventID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.clubs[clubID]; !ok {
		return ErrNotFound
	}
	key := eventClub{eventID, clubID}
	if _, ok := m.assignments[key]; ok {
		return ErrDuplicate
	}
	m.assignments[key] = struct{}{}
	return nil
}

func (m *Memory) UnassignClub(_ context.Context, eventID model.EventID, clubID model.ClubID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventClub{eventID, clubID}
	if _, ok := m.assignments[key]; !ok {
		return ErrNotFound
	}
	delete(m.assignments, key)
	return nil
}

func (m *Memory) ListEventClubs(_ context.Context, eventID model.EventID) ([]model.Club, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.clubs, func(c model.Club) bool {
		_, ok := m.assignments[eventClub{eventID, c.ID}]
		return ok
	}), nil
}

func (m *Memory) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.Email != "" {
		for _, u := range m.users {
			if u.Email == user.Email {
				return ErrDuplicate
			}
		}
	}
	user.ID = model.UserID(m.next("user"))
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) GetUser(_ context.Context, id model.UserID) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) UpdateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	// Check-in numbers are owned by AssignCheckInNumber.
	user.CheckInNumber = prev.CheckInNumber
	m.users[user.ID] = *user
	return nil
}

func (m *Memory) AssignCheckInNumber(_ context.Context, id model.UserID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, ErrNotFound
	}
	if u.CheckInNumber != nil {
		return *u.CheckInNumber, nil
	}
	n := m.next("checkin")
	u.CheckInNumber = &n
	m.users[id] = u
	return n, nil
}

func (m *Memory) CreateLocation(_ context.Context, loc *model.Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[loc.EventID]; !ok {
		return fmt.Errorf("event %d: %w", loc.EventID, ErrNotFound)
	}
	loc.ID = model.LocationID(m.next("location"))
	m.locations[loc.ID] = *loc
	return nil
}

func (m *Memory) GetLocation(_ context.Context, id model.LocationID) (*model.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (m *Memory) DeleteLocation(_ context.Context, id model.LocationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[id]; !ok {
		return ErrNotFound
	}
	delete(m.locations, id)
	for cid, c := range m.classes {
		if c.LocationID != nil && *c.LocationID == id {
			c.LocationID = nil
			m.classes[cid] = c
		}
	}
	return nil
}

func (m *Memory) CreateTimeslot(_ context.Context, ts *model.Timeslot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ts.EventID]; !ok {
		return fmt.Errorf("event %d: %w", ts.EventID, ErrNotFound)
	}
	ts.ID = model.TimeslotID(m.next("timeslot"))
	m.timeslots[ts.ID] = *ts
	return nil
}

func (m *Memory) GetTimeslot(_ context.Context, id model.TimeslotID) (*model.Timeslot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.timeslots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) ListTimeslots(_ context.Context, eventID model.EventID) ([]model.Timeslot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := sortedValues(m.timeslots, func(t model.Timeslot) bool { return t.EventID == eventID })
	slices.SortStableFunc(out, func(a, b model.Timeslot) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.StartTime, b.StartTime))
	})
	return out, nil
}

func (m *Memory) CreateHonor(_ context.Context, honor *model.Honor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.honors {
		if h.Category == honor.Category && h.Name == honor.Name {
			return ErrDuplicate
		}
	}
	honor.ID = model.HonorID(m.next("honor"))
	m.honors[honor.ID] = *honor
	return nil
}

func (m *Memory) GetHonor(_ context.Context, id model.HonorID) (*model.Honor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.honors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &h, nil
}

// insertClass must be called with mu held.
func (m *Memory) insertClass(class *model.Class) {
	class.ID = model.ClassID(m.next("class"))
	if class.CreatedAt.IsZero() {
		class.CreatedAt = time.Now().UTC()
	}
	m.classes[class.ID] = *class
}

func (m *Memory) CreateClass(_ context.Context, class *model.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertClass(class)
	return nil
}

func (m *Memory) CreateSessionGroup(_ context.Context, classes []*model.Class) (model.SessionGroupID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group := model.SessionGroupID(m.next("session_group"))
	for _, c := range classes {
		c.SessionGroupID = &group
		m.insertClass(c)
	}
	return group, nil
}

func (m *Memory) GetClass(_ context.Context, id model.ClassID) (*model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *Memory) UpdateClass(_ context.Context, class *model.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.classes[class.ID]; !ok {
		return ErrNotFound
	}
	m.classes[class.ID] = *class
	return nil
}

func (m *Memory) ListClasses(_ context.Context, f ClassFilter) ([]model.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.classes, func(c model.Class) bool {
		switch {
		case f.EventID != 0 && c.EventID != f.EventID:
			return false
		case f.LocationID != 0 && (c.LocationID == nil || *c.LocationID != f.LocationID):
			return false
		case f.SessionGroupID != 0 && (c.SessionGroupID == nil || *c.SessionGroupID != f.SessionGroupID):
			return false
		case f.ActiveOnly && !c.Active:
			return false
		}
		return true
	}), nil
}

func (m *Memory) NewRegistrationID(_ context.Context) (model.RegistrationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.RegistrationID(m.next("registration")), nil
}

func (m *Memory) GetRegistration(_ context.Context, id model.RegistrationID) (*model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListRegistrations(_ context.Context, f RegistrationFilter) ([]model.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.regs, func(r model.Registration) bool {
		return (f.ClassID == 0 || r.ClassID == f.ClassID) && (f.UserID == 0 || r.UserID == f.UserID)
	}), nil
}

func (m *Memory) CommitSeats(_ context.Context, batch SeatBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate everything first so a bad change leaves no partial writes.
	for _, c := range batch.Classes {
		if _, ok := m.classes[c.ID]; !ok {
			return fmt.Errorf("update class %d: %w", c.ID, ErrNotFound)
		}
	}
	for _, ch := range batch.Changes {
		_, exists := m.regs[ch.Registration.ID]
		switch ch.Op {
		case model.SeatInsert:
			if exists {
				return fmt.Errorf("insert registration %d: %w", ch.Registration.ID, ErrDuplicate)
			}
			if _, ok := m.classes[ch.Registration.ClassID]; !ok {
				return fmt.Errorf("insert registration %d: class %d: %w", ch.Registration.ID, ch.Registration.ClassID, ErrNotFound)
			}
		case model.SeatUpdate, model.SeatDelete:
			if !exists {
				return fmt.Errorf("%s registration %d: %w", ch.Op, ch.Registration.ID, ErrNotFound)
			}
		default:
			return fmt.Errorf("unknown seat op %q", ch.Op)
		}
	}

	for _, c := range batch.Classes {
		m.classes[c.ID] = c
	}
	for _, ch := range batch.Changes {
		switch ch.Op {
		case model.SeatInsert:
			m.regs[ch.Registration.ID] = ch.Registration
		case model.SeatUpdate:
			cur := m.regs[ch.Registration.ID]
			cur.Status = ch.Registration.Status
			cur.WaitlistOrder = ch.Registration.WaitlistOrder
			m.regs[ch.Registration.ID] = cur
		case model.SeatDelete:
			delete(m.regs, ch.Registration.ID)
		}
	}
	return nil
}

func (m *Memory) SetAttendance(_ context.Context, id model.RegistrationID, attended, completed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return ErrNotFound
	}
	r.Attended = attended
	r.Completed = completed
	m.regs[id] = r
	return nil
}
