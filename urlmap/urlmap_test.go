package urlmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/failures"
	"safemigrator/layout"
	"safemigrator/models"
)

func oldSnapshot() models.Snapshot {
	return models.Snapshot{
		URL:      "/uploads/2024/07/a.jpg",
		MimeType: "image/jpeg",
		Meta: models.Metadata{
			File: "2024/07/a.jpg",
			Sizes: []models.Size{
				{Name: "thumbnail", File: "a-50x50.jpg"},
				{Name: "medium", File: "a-300x200.jpg"},
			},
		},
	}
}

func newMeta() models.Metadata {
	return models.Metadata{
		File: "2024/07/a.webp",
		Sizes: []models.Size{
			{Name: "medium", File: "a-300x200.webp"},
			{Name: "thumbnail", File: "a-50x50.webp"},
		},
	}
}

func TestBuildOrder(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	m, err := Build(l, oldSnapshot(), newMeta(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/uploads/2024/07/a.jpg",
		"/uploads/2024/07/a-300x200.jpg",
		"/uploads/2024/07/a-50x50.jpg",
		"2024/07/a.jpg",
		"2024/07/a-300x200.jpg",
		"2024/07/a-50x50.jpg",
		"a.jpg",
		"a-300x200.jpg",
		"a-50x50.jpg",
	}, m.Olds())

	v, ok := m.Lookup("a-50x50.jpg")
	require.True(t, ok)
	assert.Equal(t, "a-50x50.webp", v)
}

func TestBuildTieBreaksLexicographically(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	old := oldSnapshot()
	old.Meta.Sizes = []models.Size{{Name: "b", File: "a-20x20.jpg"}, {Name: "a", File: "a-10x10.jpg"}}
	nm := newMeta()
	nm.Sizes = []models.Size{{Name: "a", File: "a-10x10.webp"}, {Name: "b", File: "a-20x20.webp"}}

	m, err := Build(l, old, nm, "")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/2024/07/a-10x10.jpg", m.Olds()[1])
	assert.Equal(t, "/uploads/2024/07/a-20x20.jpg", m.Olds()[2])
}

func TestBuildDisplayURL(t *testing.T) {
	l := layout.New("/srv/uploads", "https://cdn.example.com/uploads", "backup")
	old := oldSnapshot()
	old.URL = "https://example.com/wp/a.jpg"

	m, err := Build(l, old, newMeta(), "https://example.com/wp/a.webp")
	require.NoError(t, err)
	v, ok := m.Lookup("https://example.com/wp/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/wp/a.webp", v)
}

func TestBuildMissingSize(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	nm := newMeta()
	nm.Sizes = nm.Sizes[:1]

	_, err := Build(l, oldSnapshot(), nm, "")
	assert.Equal(t, failures.KindMetadataRegenerateFailed, failures.KindOf(err))
}

func TestBuildAmbiguous(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	old := oldSnapshot()
	old.Meta.Sizes = []models.Size{{Name: "a", File: "same.jpg"}, {Name: "b", File: "same.jpg"}}
	nm := newMeta()
	nm.Sizes = []models.Size{{Name: "a", File: "one.webp"}, {Name: "b", File: "two.webp"}}

	_, err := Build(l, old, nm, "")
	assert.Equal(t, failures.KindMapAmbiguous, failures.KindOf(err))
}

func TestInverseAndExport(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	m, err := Build(l, oldSnapshot(), newMeta(), "")
	require.NoError(t, err)

	back, err := FromPairs(m.Export())
	require.NoError(t, err)
	assert.Equal(t, m.Pairs(), back.Pairs())

	inv, err := m.Inverse()
	require.NoError(t, err)
	out, changed := inv.Replacer().Replace(`<img src="/uploads/2024/07/a.webp" srcset="/uploads/2024/07/a-50x50.webp 50w">`)
	assert.True(t, changed)
	assert.Equal(t, `<img src="/uploads/2024/07/a.jpg" srcset="/uploads/2024/07/a-50x50.jpg 50w">`, out)

	dup := &Map{index: map[string]string{}}
	require.NoError(t, dup.add("x.jpg", "x.webp"))
	require.NoError(t, dup.add("x.png", "x.webp"))
	_, err = dup.Inverse()
	assert.Equal(t, failures.KindMapAmbiguous, failures.KindOf(err))
}

func TestReplacerNoStomping(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	m, err := Build(l, oldSnapshot(), newMeta(), "")
	require.NoError(t, err)

	r := m.Replacer()
	body := `<a href="/uploads/2024/07/a.jpg"><img src="/uploads/2024/07/a-300x200.jpg"></a> a.jpg`
	out, _ := r.Replace(body)
	assert.Equal(t, `<a href="/uploads/2024/07/a.webp"><img src="/uploads/2024/07/a-300x200.webp"></a> a.webp`, out)

	again, changed := r.Replace(out)
	assert.False(t, changed)
	assert.Equal(t, out, again)
}

func TestFileKeysMatchAtNameBoundary(t *testing.T) {
	l := layout.New("/srv/uploads", "/uploads", "backup")
	m, err := Build(l, oldSnapshot(), newMeta(), "")
	require.NoError(t, err)

	for _, p := range m.Pairs() {
		assert.Equal(t, p.Old[0] != '/', p.Boundary, p.Old)
	}

	body := `<img src="/uploads/2024/07/a.jpg"><img src="/uploads/2024/07/cache/banana.jpg"> banana.jpg xa-50x50.jpg`
	out, changed := m.Replacer().Replace(body)
	assert.True(t, changed)
	assert.Equal(t, `<img src="/uploads/2024/07/a.webp"><img src="/uploads/2024/07/cache/banana.jpg"> banana.jpg xa-50x50.jpg`, out)

	back, err := FromPairs(m.Export())
	require.NoError(t, err)
	out, _ = back.Replacer().Replace("banana.jpg")
	assert.Equal(t, "banana.jpg", out)
}
