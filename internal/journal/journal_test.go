package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thehansentribe/honorsfest/internal/model"
)

func openTest(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func change(op model.SeatOp, reason model.SeatReason, id model.RegistrationID, class model.ClassID, status model.RegistrationStatus, order int) model.SeatChange {
	return model.SeatChange{Op: op, Reason: reason, Registration: model.Registration{
		ID: id, ClassID: class, UserID: model.UserID(id * 10), Status: status, WaitlistOrder: order,
	}}
}

func TestRecordAndListByClass(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	fixed := time.Date(2026, 4, 11, 9, 30, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Record(ctx, "register", []model.SeatChange{
		change(model.SeatInsert, model.ReasonAdmit, 1, 7, model.StatusEnrolled, 0),
	}))
	require.NoError(t, j.Record(ctx, "withdraw", []model.SeatChange{
		change(model.SeatDelete, model.ReasonRelease, 1, 7, model.StatusEnrolled, 0),
		change(model.SeatUpdate, model.ReasonPromote, 2, 7, model.StatusEnrolled, 0),
	}))
	require.NoError(t, j.Record(ctx, "register", []model.SeatChange{
		change(model.SeatInsert, model.ReasonAdmit, 3, 8, model.StatusWaitlisted, 1),
	}))

	entries, err := j.ListByClass(ctx, 7, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "register", entries[0].Action)
	assert.Equal(t, model.ReasonRelease, entries[1].Reason)
	assert.Equal(t, model.ReasonPromote, entries[2].Reason)
	assert.Equal(t, model.UserID(20), entries[2].UserID)
	assert.True(t, fixed.Equal(entries[0].RecordedAt))
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	for _, e := range entries {
		id, err := uuid.Parse(e.ID)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), id.Version())
	}

	page, err := j.ListByClass(ctx, 7, entries[0].Seq, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, entries[1].ID, page[0].ID)

	other, err := j.ListByClass(ctx, 8, 0, 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, model.StatusWaitlisted, other[0].Status)
	assert.Equal(t, 1, other[0].WaitlistOrder)
}

func TestListByRegistration(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, "register", []model.SeatChange{
		change(model.SeatInsert, model.ReasonAdmit, 5, 1, model.StatusWaitlisted, 1),
	}))
	require.NoError(t, j.Record(ctx, "resize", []model.SeatChange{
		change(model.SeatUpdate, model.ReasonPromote, 5, 1, model.StatusEnrolled, 0),
	}))

	history, err := j.ListByRegistration(ctx, 5)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.SeatInsert, history[0].Op)
	assert.Equal(t, "resize", history[1].Action)
}

func TestRecordEmptyIsNoop(t *testing.T) {
	j := openTest(t)
	require.NoError(t, j.Record(context.Background(), "noop", nil))
	entries, err := j.ListByClass(context.Background(), 1, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()
	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, "register", []model.SeatChange{
		change(model.SeatInsert, model.ReasonAdmit, 1, 3, model.StatusEnrolled, 0),
	}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.ListByClass(ctx, 3, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
