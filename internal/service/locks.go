package service

import (
	"slices"
	"sync"

	"github.com/thehansentribe/honorsfest/internal/model"
)

// userLocks serializes conflict check and commit per user. Entries are
// reference counted so idle users do not accumulate.
type userLocks struct {
	mu    sync.Mutex
	locks map[model.UserID]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[model.UserID]*userLock)}
}

// Lock acquires the locks of all users in ascending order and returns the
// function that releases them.
func (l *userLocks) Lock(users ...model.UserID) func() {
	ids := slices.Clone(users)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*userLock, len(ids))
	l.mu.Lock()
	for i, id := range ids {
		ul, ok := l.locks[id]
		if !ok {
			ul = &userLock{}
			l.locks[id] = ul
		}
		ul.refs++
		held[i] = ul
	}
	l.mu.Unlock()

	for _, ul := range held {
		ul.Lock()
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
		l.mu.Lock()
		for i, id := range ids {
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.locks, id)
			}
		}
		l.mu.Unlock()
	}
}
