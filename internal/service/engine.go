// Package service implements the registration engine, the class lifecycle
// manager and catalog validation between HTTP handlers and the store.
//
// Lock order is fixed: user locks (ascending UserID), then class books
// (ascending ClassID, taken by ledger.Begin). The conflict index is only read
// and written while the user's lock is held, which makes check-then-insert
// atomic per user across unrelated classes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thehansentribe/honorsfest/internal/conflict"
	"github.com/thehansentribe/honorsfest/internal/ledger"
	"github.com/thehansentribe/honorsfest/internal/model"
	"github.com/thehansentribe/honorsfest/internal/repository"
)

// SeatRecorder receives every committed seat change. Implementations must not
// block for long; failures are logged and otherwise ignored.
type SeatRecorder interface {
	Record(ctx context.Context, action string, changes []model.SeatChange) error
}

// Engine owns seat state for all classes.
type Engine struct {
	store    repository.Store
	ledger   *ledger.Ledger
	index    *conflict.Index
	users    *userLocks
	trackMu  sync.Mutex
	recorder SeatRecorder
	log      *slog.Logger
	now      func() time.Time

	// locMu is held exclusively while a location is deleted and shared by
	// every write that derives a capacity from a location.
	locMu sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder attaches an audit recorder.
func WithRecorder(r SeatRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine constructs an Engine over store. Call Rebuild before serving
// traffic against a store that already holds registrations.
func NewEngine(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		ledger: ledger.New(),
		index:  conflict.New(),
		users:  newUserLocks(),
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rebuild loads every class and its registrations into the ledger and the
// conflict index. Classes already tracked are left alone.
func (e *Engine) Rebuild(ctx context.Context) error {
	classes, err := e.store.ListClasses(ctx, repository.ClassFilter{})
	if err != nil {
		return fmt.Errorf("rebuild: list classes: %w", err)
	}
	seats := 0
	for i := range classes {
		n, err := e.track(ctx, &classes[i])
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		seats += n
	}
	e.log.Info("seat state rebuilt", "classes", len(classes), "registrations", seats)
	return nil
}

// TrackClass starts seat accounting for a newly created class.
func (e *Engine) TrackClass(ctx context.Context, class *model.Class) error {
	_, err := e.track(ctx, class)
	return err
}

// track installs the book of class from the store if it is not yet known and
// returns the number of registrations loaded.
func (e *Engine) track(ctx context.Context, class *model.Class) (int, error) {
	if e.ledger.Tracked(class.ID) {
		return 0, nil
	}
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	if e.ledger.Tracked(class.ID) {
		return 0, nil
	}
	regs, err := e.store.ListRegistrations(ctx, repository.RegistrationFilter{ClassID: class.ID})
	if err != nil {
		return 0, fmt.Errorf("list registrations of class %d: %w", class.ID, err)
	}
	// Index first: once the book exists other requests may see the class.
	for _, r := range regs {
		entry := conflict.Entry{RegistrationID: r.ID, ClassID: class.ID}
		if err := e.index.Insert(r.UserID, class.TimeslotID, entry); err != nil {
			e.log.Warn("stored registrations double-book a timeslot",
				"user", r.UserID, "timeslot", class.TimeslotID, "registration", r.ID, "err", err)
		}
	}
	e.ledger.Track(class.ID, class.ActualMaxCapacity, regs)
	return len(regs), nil
}

func (e *Engine) class(ctx context.Context, id model.ClassID) (*model.Class, error) {
	class, err := e.store.GetClass(ctx, id)
	if err != nil {
		return nil, notFound("class", id, err)
	}
	return class, nil
}

func (e *Engine) user(ctx context.Context, id model.UserID) (*model.User, error) {
	user, err := e.store.GetUser(ctx, id)
	if err != nil {
		return nil, notFound("user", id, err)
	}
	return user, nil
}

// commit persists the staged transaction, applies it to the ledger and
// notifies the recorder. classes are class rows to write in the same batch.
// On error the transaction is rolled back.
func (e *Engine) commit(ctx context.Context, txn *ledger.Txn, action string, classes ...model.Class) ([]model.SeatChange, error) {
	if err := txn.Verify(); err != nil {
		txn.Rollback()
		return nil, e.race(err)
	}
	changes := txn.Changes()
	batch := repository.SeatBatch{Classes: classes, Changes: changes}
	if !batch.Empty() {
		// Detached from the request: a client disconnect must not split a
		// multi-class commit between store and ledger.
		if err := e.store.CommitSeats(context.WithoutCancel(ctx), batch); err != nil {
			txn.Rollback()
			return nil, fmt.Errorf("%s: persist seats: %w", action, err)
		}
	}
	if err := txn.Commit(); err != nil {
		// The store already holds the batch; the ledger refused it. Only a
		// bypassed lock can get here.
		e.log.Error("ledger rejected a persisted batch", "action", action, "err", err)
		return nil, e.race(err)
	}
	for _, ch := range changes {
		e.log.Debug("seat change", "action", action, "op", ch.Op, "reason", ch.Reason,
			"registration", ch.Registration.ID, "class", ch.Registration.ClassID,
			"user", ch.Registration.UserID, "status", ch.Registration.Status,
			"waitlistOrder", ch.Registration.WaitlistOrder)
	}
	if e.recorder != nil && len(changes) > 0 {
		if err := e.recorder.Record(context.WithoutCancel(ctx), action, changes); err != nil {
			e.log.Warn("journal write failed", "action", action, "err", err)
		}
	}
	return changes, nil
}

func (e *Engine) race(err error) error {
	var ie *ledger.InvariantError
	classID := model.ClassID(0)
	if errors.As(err, &ie) {
		classID = ie.ClassID
	}
	e.log.Error("capacity invariant check failed", "class", classID, "err", err)
	return &CapacityRaceError{ClassID: classID, Err: err}
}
