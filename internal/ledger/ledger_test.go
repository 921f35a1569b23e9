package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehansentribe/honorsfest/internal/model"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func reg(id int64, user int64, class model.ClassID) model.Registration {
	return model.Registration{
		ID:        model.RegistrationID(id),
		UserID:    model.UserID(user),
		ClassID:   class,
		CreatedAt: epoch.Add(time.Duration(id) * time.Minute),
	}
}

func admit(t *testing.T, l *Ledger, r model.Registration) model.Registration {
	t.Helper()
	txn, err := l.Begin(r.ClassID)
	require.NoError(t, err)
	got, err := txn.Admit(r)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	return got
}

func release(t *testing.T, l *Ledger, class model.ClassID, id int64) []model.SeatChange {
	t.Helper()
	txn, err := l.Begin(class)
	require.NoError(t, err)
	_, err = txn.Release(class, model.RegistrationID(id))
	require.NoError(t, err)
	changes := txn.Changes()
	require.NoError(t, txn.Commit())
	return changes
}

func waitlistOrders(t *testing.T, l *Ledger, class model.ClassID) []int {
	t.Helper()
	_, wl, err := l.Seats(class)
	require.NoError(t, err)
	out := make([]int, len(wl))
	for i, r := range wl {
		out[i] = r.WaitlistOrder
	}
	return out
}

func TestAdmit_EnrollsUntilFullThenWaitlists(t *testing.T) {
	l := New()
	l.Track(1, 2, nil)

	assert.Equal(t, model.StatusEnrolled, admit(t, l, reg(1, 1, 1)).Status)
	assert.Equal(t, model.StatusEnrolled, admit(t, l, reg(2, 2, 1)).Status)

	third := admit(t, l, reg(3, 3, 1))
	assert.Equal(t, model.StatusWaitlisted, third.Status)
	assert.Equal(t, 1, third.WaitlistOrder)

	fourth := admit(t, l, reg(4, 4, 1))
	assert.Equal(t, 2, fourth.WaitlistOrder)

	c, err := l.Counts(1)
	require.NoError(t, err)
	assert.Equal(t, model.Counts{ClassID: 1, Enrolled: 2, Waitlisted: 2, Capacity: 2}, c)
}

func TestAdmit_ZeroCapacityWaitlistsEveryone(t *testing.T) {
	l := New()
	l.Track(1, 0, nil)
	for i := int64(1); i <= 3; i++ {
		got := admit(t, l, reg(i, i, 1))
		assert.Equal(t, model.StatusWaitlisted, got.Status)
		assert.Equal(t, int(i), got.WaitlistOrder)
	}
}

func TestAdmit_RejectsSecondSeatForSameUser(t *testing.T) {
	l := New()
	l.Track(1, 5, nil)
	admit(t, l, reg(1, 7, 1))

	txn, err := l.Begin(1)
	require.NoError(t, err)
	defer txn.Rollback()
	_, err = txn.Admit(reg(2, 7, 1))
	assert.ErrorIs(t, err, ErrAlreadyHeld)
}

func TestRelease_PromotesWaitlistHead(t *testing.T) {
	l := New()
	l.Track(1, 2, nil)
	admit(t, l, reg(1, 1, 1))
	admit(t, l, reg(2, 2, 1))
	admit(t, l, reg(3, 3, 1))
	admit(t, l, reg(4, 4, 1))

	changes := release(t, l, 1, 1)

	enrolled, waitlisted, err := l.Seats(1)
	require.NoError(t, err)
	require.Len(t, enrolled, 2)
	assert.EqualValues(t, 2, enrolled[0].ID)
	assert.EqualValues(t, 3, enrolled[1].ID)
	require.Len(t, waitlisted, 1)
	assert.EqualValues(t, 4, waitlisted[0].ID)
	assert.Equal(t, 1, waitlisted[0].WaitlistOrder)

	require.Len(t, changes, 3)
	assert.Equal(t, model.SeatDelete, changes[0].Op)
	assert.EqualValues(t, 1, changes[0].Registration.ID)
	assert.Equal(t, model.ReasonPromote, changes[1].Reason)
	assert.EqualValues(t, 3, changes[1].Registration.ID)
	assert.Equal(t, model.ReasonReorder, changes[2].Reason)
	assert.EqualValues(t, 4, changes[2].Registration.ID)
}

func TestRelease_WaitlistedOnlyCompacts(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	admit(t, l, reg(1, 1, 1))
	admit(t, l, reg(2, 2, 1))
	admit(t, l, reg(3, 3, 1))
	admit(t, l, reg(4, 4, 1))

	release(t, l, 1, 3)

	assert.Equal(t, []int{1, 2}, waitlistOrders(t, l, 1))
	c, _ := l.Counts(1)
	assert.Equal(t, 1, c.Enrolled)
}

func TestRelease_Unknown(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	txn, err := l.Begin(1)
	require.NoError(t, err)
	defer txn.Rollback()
	_, err = txn.Release(1, 42)
	assert.ErrorIs(t, err, ErrUnknownRegistration)
}

func TestScenarioA_WithdrawPromotes(t *testing.T) {
	l := New()
	l.Track(1, 2, nil)
	admit(t, l, reg(1, 1, 1))
	admit(t, l, reg(2, 2, 1))
	u3 := admit(t, l, reg(3, 3, 1))
	require.Equal(t, model.StatusWaitlisted, u3.Status)
	require.Equal(t, 1, u3.WaitlistOrder)

	release(t, l, 1, 1)

	enrolled, waitlisted, err := l.Seats(1)
	require.NoError(t, err)
	assert.Empty(t, waitlisted)
	ids := []model.RegistrationID{enrolled[0].ID, enrolled[1].ID}
	assert.Contains(t, ids, model.RegistrationID(3))
}

func TestScenarioE_ShrinkDemotesMostRecent(t *testing.T) {
	l := New()
	l.Track(1, 5, nil)
	admit(t, l, reg(1, 1, 1))
	admit(t, l, reg(2, 2, 1))
	admit(t, l, reg(3, 3, 1))

	txn, err := l.Begin(1)
	require.NoError(t, err)
	require.NoError(t, txn.Resize(1, 2))
	changes := txn.Changes()
	require.NoError(t, txn.Commit())

	enrolled, waitlisted, err := l.Seats(1)
	require.NoError(t, err)
	require.Len(t, enrolled, 2)
	assert.EqualValues(t, 1, enrolled[0].ID)
	assert.EqualValues(t, 2, enrolled[1].ID)
	require.Len(t, waitlisted, 1)
	assert.EqualValues(t, 3, waitlisted[0].ID)
	assert.Equal(t, 1, waitlisted[0].WaitlistOrder)

	require.Len(t, changes, 1)
	assert.Equal(t, model.ReasonDemote, changes[0].Reason)
}

func TestResize_DemotedGoAheadOfExistingWaitlist(t *testing.T) {
	l := New()
	l.Track(1, 3, nil)
	for i := int64(1); i <= 5; i++ {
		admit(t, l, reg(i, i, 1))
	}
	// enrolled 1,2,3 ; waitlist 4,5

	txn, err := l.Begin(1)
	require.NoError(t, err)
	require.NoError(t, txn.Resize(1, 1))
	require.NoError(t, txn.Commit())

	_, waitlisted, err := l.Seats(1)
	require.NoError(t, err)
	var ids []model.RegistrationID
	for _, r := range waitlisted {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []model.RegistrationID{2, 3, 4, 5}, ids)
	assert.Equal(t, []int{1, 2, 3, 4}, waitlistOrders(t, l, 1))
}

func TestResize_GrowPromotesOldestWaitlisted(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	for i := int64(1); i <= 4; i++ {
		admit(t, l, reg(i, i, 1))
	}

	txn, err := l.Begin(1)
	require.NoError(t, err)
	require.NoError(t, txn.Resize(1, 3))
	require.NoError(t, txn.Commit())

	enrolled, waitlisted, err := l.Seats(1)
	require.NoError(t, err)
	assert.Len(t, enrolled, 3)
	require.Len(t, waitlisted, 1)
	assert.EqualValues(t, 4, waitlisted[0].ID)
	assert.Equal(t, 1, waitlisted[0].WaitlistOrder)
}

func TestDrain_RemovesEverything(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	l.Track(2, 1, nil)
	admit(t, l, reg(1, 1, 1))
	admit(t, l, reg(2, 2, 1))
	admit(t, l, reg(3, 1, 2))

	txn, err := l.Begin(1)
	require.NoError(t, err)
	drained, err := txn.Drain(1)
	require.NoError(t, err)
	assert.Len(t, drained, 2)
	changes := txn.Changes()
	require.NoError(t, txn.Commit())

	assert.Len(t, changes, 2)
	for _, ch := range changes {
		assert.Equal(t, model.SeatDelete, ch.Op)
	}
	c, _ := l.Counts(1)
	assert.Equal(t, 0, c.Enrolled+c.Waitlisted)
	other, _ := l.Counts(2)
	assert.Equal(t, 1, other.Enrolled)

	_, ok := l.Locate(1)
	assert.False(t, ok)
	cls, ok := l.Locate(3)
	assert.True(t, ok)
	assert.EqualValues(t, 2, cls)
}

func TestRollback_LeavesBooksUntouched(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	admit(t, l, reg(1, 1, 1))

	txn, err := l.Begin(1)
	require.NoError(t, err)
	_, err = txn.Admit(reg(2, 2, 1))
	require.NoError(t, err)
	require.NoError(t, txn.Resize(1, 0))
	txn.Rollback()

	c, err := l.Counts(1)
	require.NoError(t, err)
	assert.Equal(t, model.Counts{ClassID: 1, Enrolled: 1, Waitlisted: 0, Capacity: 1}, c)
	assert.ErrorIs(t, txn.Commit(), ErrTxnDone)
}

func TestTrack_NormalizesStoredWaitlist(t *testing.T) {
	l := New()
	a := reg(1, 1, 1)
	a.Status = model.StatusWaitlisted
	a.WaitlistOrder = 7
	b := reg(2, 2, 1)
	b.Status = model.StatusWaitlisted
	b.WaitlistOrder = 3
	c := reg(3, 3, 1)
	c.Status = model.StatusWaitlisted
	c.WaitlistOrder = 3

	assert.True(t, l.Track(1, 0, []model.Registration{a, b, c}))
	assert.False(t, l.Track(1, 0, nil), "second Track must not replace the book")

	_, wl, err := l.Seats(1)
	require.NoError(t, err)
	// Equal orders fall back to creation time.
	assert.EqualValues(t, 2, wl[0].ID)
	assert.EqualValues(t, 3, wl[1].ID)
	assert.EqualValues(t, 1, wl[2].ID)
	assert.Equal(t, []int{1, 2, 3}, waitlistOrders(t, l, 1))
}

func TestBegin_UnknownClass(t *testing.T) {
	l := New()
	_, err := l.Begin(9)
	assert.ErrorIs(t, err, ErrUnknownClass)
}

func TestBegin_MultipleClassesInAnyOrder(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	l.Track(2, 1, nil)

	txn, err := l.Begin(2, 1, 2)
	require.NoError(t, err)
	_, err = txn.Admit(reg(1, 1, 1))
	require.NoError(t, err)
	_, err = txn.Admit(reg(2, 1, 2))
	require.NoError(t, err)
	require.Len(t, txn.Changes(), 2)
	require.NoError(t, txn.Commit())

	c1, _ := l.Counts(1)
	c2, _ := l.Counts(2)
	assert.Equal(t, 1, c1.Enrolled)
	assert.Equal(t, 1, c2.Enrolled)
}

func TestCommit_InvariantViolationRollsBack(t *testing.T) {
	l := New()
	l.Track(1, 1, nil)
	admit(t, l, reg(1, 1, 1))

	txn, err := l.Begin(1)
	require.NoError(t, err)
	s, err := txn.state(1)
	require.NoError(t, err)
	// Bypass Admit to force an over-capacity state.
	extra := reg(2, 2, 1)
	extra.Status = model.StatusEnrolled
	s.enrolled = append(s.enrolled, extra)

	err = txn.Commit()
	var inv *InvariantError
	require.ErrorAs(t, err, &inv)
	assert.EqualValues(t, 1, inv.ClassID)

	c, _ := l.Counts(1)
	assert.Equal(t, 1, c.Enrolled)
}

func TestConcurrentAdmitsNeverExceedCapacity(t *testing.T) {
	l := New()
	l.Track(1, 10, nil)

	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			txn, err := l.Begin(1)
			if err != nil {
				t.Error(err)
				return
			}
			if _, err := txn.Admit(reg(i, i, 1)); err != nil {
				txn.Rollback()
				t.Error(err)
				return
			}
			if err := txn.Commit(); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	c, err := l.Counts(1)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Enrolled)
	assert.Equal(t, 40, c.Waitlisted)

	orders := waitlistOrders(t, l, 1)
	for i, o := range orders {
		assert.Equal(t, i+1, o)
	}
}
