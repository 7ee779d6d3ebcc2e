package dimensions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/cms"
	"safemigrator/models"
)

func TestDeclared(t *testing.T) {
	tests := []struct {
		file string
		w, h int
		ok   bool
	}{
		{"2024/07/a-50x50.jpg", 50, 50, true},
		{"banner-1920x1080.png", 1920, 1080, true},
		{"a-1x2-300x200.jpg", 300, 200, true},
		{"a.jpg", 0, 0, false},
		{"photo-0x10.jpg", 0, 10, false},
		{"dir-10x10/a.jpg", 0, 0, false},
		{"shot_300x200.jpg", 0, 0, false},
	}
	for _, tt := range tests {
		w, h, ok := Declared(tt.file)
		assert.Equal(t, tt.ok, ok, tt.file)
		if tt.ok {
			assert.Equal(t, tt.w, w, tt.file)
			assert.Equal(t, tt.h, h, tt.file)
		}
	}
}

type memRecords struct {
	cms.Records
	issues []models.DimensionIssue
	err    error
}

func (m *memRecords) AppendDimensionIssue(_ context.Context, i models.DimensionIssue) error {
	if m.err != nil {
		return m.err
	}
	m.issues = append(m.issues, i)
	return nil
}

func (m *memRecords) ListDimensionIssues(context.Context) ([]models.DimensionIssue, error) {
	return m.issues, nil
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	rec := &memRecords{}
	v := New(rec)

	assert.Nil(t, v.Check(ctx, 1, "a-100x100.jpg", 104, 96))
	assert.Nil(t, v.Check(ctx, 1, "a.jpg", 10, 10))

	issue := v.Check(ctx, 2, "b-300x200.jpg", 300, 150)
	require.NotNil(t, issue)
	assert.Equal(t, 200, issue.DeclaredHeight)
	assert.Equal(t, 150, issue.ActualHeight)

	list, err := v.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AssetID(2), list[0].AssetID)

	rec.err = errors.New("store down")
	assert.NotNil(t, v.Check(ctx, 3, "c-10x10.jpg", 100, 100))
}
