// Package conflict answers "does this user already hold a seat in this
// timeslot?". The index is a view derived from active registrations and is
// never persisted; it is rebuilt from the catalog store on startup.
//
// Two registrations conflict when their classes share a TimeslotID. Partial
// overlap between distinct timeslots is not considered.
package conflict

import (
	"fmt"
	"slices"
	"sync"

	"github.com/thehansentribe/honorsfest/internal/model"
)

type key struct {
	user     model.UserID
	timeslot model.TimeslotID
}

// Entry is the registration occupying a (user, timeslot) pair.
type Entry struct {
	RegistrationID model.RegistrationID
	ClassID        model.ClassID
}

// Hit is a conflicting entry found by CheckAll.
type Hit struct {
	TimeslotID model.TimeslotID
	Entry
}

// Index maps (user, timeslot) to the one active registration there.
// It is safe for concurrent use; callers serialize check-then-insert per user.
type Index struct {
	mu      sync.RWMutex
	entries map[key]Entry
}

// New returns an empty index.
func New() *Index {
	return &Index{entries: make(map[key]Entry)}
}

// Check returns the registration the user holds in the timeslot, if any.
func (x *Index) Check(user model.UserID, timeslot model.TimeslotID) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	e, ok := x.entries[key{user, timeslot}]
	return e, ok
}

// CheckAll checks every timeslot at once, in ascending timeslot order, and
// returns all hits.
func (x *Index) CheckAll(user model.UserID, timeslots []model.TimeslotID) []Hit {
	sorted := slices.Clone(timeslots)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	x.mu.RLock()
	defer x.mu.RUnlock()
	var hits []Hit
	for _, ts := range sorted {
		if e, ok := x.entries[key{user, ts}]; ok {
			hits = append(hits, Hit{TimeslotID: ts, Entry: e})
		}
	}
	return hits
}

// Insert records a registration. It fails if the pair is already held by a
// different registration.
func (x *Index) Insert(user model.UserID, timeslot model.TimeslotID, e Entry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	k := key{user, timeslot}
	if cur, ok := x.entries[k]; ok && cur.RegistrationID != e.RegistrationID {
		return fmt.Errorf("user %d already holds registration %d in timeslot %d", user, cur.RegistrationID, timeslot)
	}
	x.entries[k] = e
	return nil
}

// Remove drops the pair if it is held by the given registration.
func (x *Index) Remove(user model.UserID, timeslot model.TimeslotID, id model.RegistrationID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	k := key{user, timeslot}
	if cur, ok := x.entries[k]; ok && cur.RegistrationID == id {
		delete(x.entries, k)
	}
}

// ForUser lists the user's entries keyed by timeslot.
func (x *Index) ForUser(user model.UserID) map[model.TimeslotID]Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[model.TimeslotID]Entry)
	for k, e := range x.entries {
		if k.user == user {
			out[k.timeslot] = e
		}
	}
	return out
}

// Len is the number of active pairs.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
