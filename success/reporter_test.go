package success

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/cms"
	"safemigrator/failures"
	"safemigrator/models"
)

type memRecords struct {
	cms.Records
	reports map[models.AssetID]models.Report
	stats   models.Statistics
}

func (m *memRecords) GetReport(_ context.Context, id models.AssetID) (*models.Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memRecords) SetReport(_ context.Context, r models.Report) error {
	m.reports[r.AssetID] = r
	return nil
}

func (m *memRecords) DeleteReport(_ context.Context, id models.AssetID) error {
	delete(m.reports, id)
	return nil
}

func (m *memRecords) GetStatistics(context.Context) (models.Statistics, error) {
	return m.stats, nil
}

func (m *memRecords) SetStatistics(_ context.Context, s models.Statistics) error {
	m.stats = s
	return nil
}

func TestReporterCounters(t *testing.T) {
	ctx := context.Background()
	rec := &memRecords{reports: map[models.AssetID]models.Report{}}
	r := New(rec)

	require.NoError(t, r.Write(ctx, models.Report{AssetID: 1, MapSize: 4, BytesBefore: 1000, BytesAfter: 600}))
	require.NoError(t, r.Write(ctx, models.Report{AssetID: 2, MapSize: 2, BytesBefore: 500, BytesAfter: 400}))
	require.NoError(t, r.Failed(ctx, failures.KindInvalidSource))
	require.NoError(t, r.Failed(ctx, failures.KindInvalidSource))
	require.NoError(t, r.Skipped(ctx, 3))
	require.NoError(t, r.Committed(ctx))

	got, err := r.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.MapSize)
	assert.False(t, got.Timestamp.IsZero())

	s, err := r.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.Converted)
	assert.Equal(t, int64(500), s.BytesSaved)
	assert.Equal(t, int64(2), s.Failed)
	assert.Equal(t, int64(2), s.FailedBy["invalid_source"])
	assert.Equal(t, int64(3), s.Skipped)
	assert.Equal(t, int64(1), s.Committed)

	require.NoError(t, r.RolledBack(ctx, 1))
	got, err = r.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	s, err = r.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Converted)
	assert.Equal(t, int64(100), s.BytesSaved)
	assert.Equal(t, int64(1), s.RolledBack)
}
