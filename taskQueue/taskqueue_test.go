package taskqueue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/lock"
	"safemigrator/models"
	"safemigrator/settings"
)

type fakeEngine struct {
	calls     []string
	overrides []*settings.Overrides
	runErr    error
}

func (f *fakeEngine) Run(_ context.Context, o *settings.Overrides) (*models.BatchReport, error) {
	f.calls = append(f.calls, OpBatch)
	f.overrides = append(f.overrides, o)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &models.BatchReport{RunID: "r"}, nil
}

func (f *fakeEngine) Reprocess(_ context.Context, ids []models.AssetID) ([]models.Outcome, error) {
	f.calls = append(f.calls, OpReprocess)
	return nil, nil
}

func (f *fakeEngine) Rollback(_ context.Context, id models.AssetID) (models.Outcome, error) {
	f.calls = append(f.calls, OpRollback)
	return models.Outcome{AssetID: id}, nil
}

func (f *fakeEngine) Commit(_ context.Context, id models.AssetID) (models.Outcome, error) {
	f.calls = append(f.calls, OpCommit)
	return models.Outcome{AssetID: id}, nil
}

func (f *fakeEngine) CommitAll(context.Context) ([]models.Outcome, error) {
	f.calls = append(f.calls, OpCommitAll)
	return nil, nil
}

func openQueue(t *testing.T) *DBQueue {
	t.Helper()
	q, err := OpenQueue(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, Request{Op: OpBatch}.Validate())
	assert.NoError(t, Request{Op: OpCommit, AssetIDs: []models.AssetID{1}}.Validate())
	assert.ErrorIs(t, Request{Op: OpCommit}.Validate(), ErrBadRequest)
	assert.ErrorIs(t, Request{Op: OpReprocess}.Validate(), ErrBadRequest)
	assert.ErrorIs(t, Request{Op: "explode"}.Validate(), ErrBadRequest)
}

func TestQueueOrder(t *testing.T) {
	q := openQueue(t)
	first, err := q.Enqueue(Request{Op: OpCommit, AssetIDs: []models.AssetID{1}})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	time.Sleep(time.Millisecond)
	_, err = q.Enqueue(Request{Op: OpCommitAll})
	require.NoError(t, err)
	_, err = q.Enqueue(Request{Op: "nope"})
	require.Error(t, err)

	reqs, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, OpCommit, reqs[0].Op)
	assert.Equal(t, OpCommitAll, reqs[1].Op)

	require.NoError(t, q.Delete(reqs[0]))
	reqs, err = q.Pending()
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestTickDrainsQueueThenRuns(t *testing.T) {
	q := openQueue(t)
	eng := &fakeEngine{}
	_, err := q.Enqueue(Request{Op: OpRollback, AssetIDs: []models.AssetID{4}})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = q.Enqueue(Request{Op: OpReprocess, AssetIDs: []models.AssetID{5, 6}})
	require.NoError(t, err)

	d := NewDriver(eng, q, time.Minute, 25*time.Second)
	report, err := d.Tick(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, []string{OpRollback, OpReprocess, OpBatch}, eng.calls)
	require.NotNil(t, eng.overrides[0].TimeBudget)

	reqs, err := q.Pending()
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestTickQueuedBatchReplacesAutoBatch(t *testing.T) {
	q := openQueue(t)
	eng := &fakeEngine{}
	size := 3
	_, err := q.Enqueue(Request{Op: OpBatch, Overrides: &settings.Overrides{BatchSize: &size}})
	require.NoError(t, err)

	d := NewDriver(eng, q, time.Minute, 0)
	_, err = d.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{OpBatch}, eng.calls)
	assert.Equal(t, 3, *eng.overrides[0].BatchSize)
}

func TestTickStopsWhenBudgetSpent(t *testing.T) {
	q := openQueue(t)
	eng := &fakeEngine{}
	_, err := q.Enqueue(Request{Op: OpCommitAll})
	require.NoError(t, err)

	d := NewDriver(eng, q, time.Minute, time.Second)
	start := time.Now()
	calls := 0
	d.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * time.Hour)
	}
	report, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Empty(t, eng.calls)

	reqs, err := q.Pending()
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestTickKeepsRequestWhenLocked(t *testing.T) {
	q := openQueue(t)
	eng := &fakeEngine{runErr: lock.ErrHeld}
	_, err := q.Enqueue(Request{Op: OpBatch})
	require.NoError(t, err)

	d := NewDriver(eng, q, time.Minute, 0)
	_, err = d.Tick(context.Background())
	assert.ErrorIs(t, err, lock.ErrHeld)

	reqs, err := q.Pending()
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestQueueCancel(t *testing.T) {
	q := openQueue(t)
	r, err := q.Enqueue(Request{Op: OpCommitAll})
	require.NoError(t, err)

	ok, err := q.Cancel("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.Cancel(r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	reqs, err := q.Pending()
	require.NoError(t, err)
	assert.Empty(t, reqs)
}
