package rewrite

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safemigrator/failures"
	"safemigrator/phpserialize"
	"safemigrator/value"
)

type metaRow struct {
	owner int64
	key   string
}

type memContent struct {
	docs    map[int64]string
	meta    map[metaRow][]byte
	options map[string][]byte

	failOption string
	encode     func(value.Value) ([]byte, error)
}

func newMemContent() *memContent {
	return &memContent{docs: map[int64]string{}, meta: map[metaRow][]byte{}, options: map[string][]byte{}}
}

func (m *memContent) IterateDocumentsWith(_ context.Context, substr string, fn func(int64, string) error) error {
	ids := make([]int64, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if strings.Contains(m.docs[id], substr) {
			if err := fn(id, m.docs[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *memContent) UpdateDocument(_ context.Context, id int64, body string) error {
	m.docs[id] = body
	return nil
}

func (m *memContent) IterateMetadataRows(_ context.Context, fn func(int64, string, []byte) error) error {
	rows := make([]metaRow, 0, len(m.meta))
	for r := range m.meta {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].owner != rows[j].owner {
			return rows[i].owner < rows[j].owner
		}
		return rows[i].key < rows[j].key
	})
	for _, r := range rows {
		if err := fn(r.owner, r.key, m.meta[r]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memContent) UpdateMetadata(_ context.Context, owner int64, key string, raw []byte) error {
	m.meta[metaRow{owner, key}] = raw
	return nil
}

func (m *memContent) IterateOptions(_ context.Context, fn func(string, []byte) error) error {
	names := make([]string, 0, len(m.options))
	for n := range m.options {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := fn(n, m.options[n]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memContent) UpdateOption(_ context.Context, name string, raw []byte) error {
	if name == m.failOption {
		return errors.New("disk full")
	}
	m.options[name] = raw
	return nil
}

func (m *memContent) DecodeValue(raw []byte) (value.Value, bool) {
	return phpserialize.Codec{}.Decode(raw)
}

func (m *memContent) EncodeValue(v value.Value) ([]byte, error) {
	if m.encode != nil {
		return m.encode(v)
	}
	return phpserialize.Encode(v)
}

func testReplacer() *value.Replacer {
	return value.NewReplacer([]value.Pair{
		{Old: "/uploads/2024/07/a.jpg", New: "/uploads/2024/07/a.webp"},
		{Old: "/uploads/2024/07/a-50x50.jpg", New: "/uploads/2024/07/a-50x50.webp"},
		{Old: "2024/07/a.jpg", New: "2024/07/a.webp"},
		{Old: "a.jpg", New: "a.webp"},
		{Old: "a-50x50.jpg", New: "a-50x50.webp"},
	})
}

func seed() *memContent {
	c := newMemContent()
	c.docs[1] = `<img src="/uploads/2024/07/a.jpg">`
	c.docs[2] = `<p>unrelated</p>`
	c.docs[3] = `<img src="/uploads/2024/07/a-50x50.jpg">`
	c.meta[metaRow{1, "_thumb"}] = []byte("/uploads/2024/07/a.jpg")
	c.meta[metaRow{1, "_gallery"}] = phpserialize.MustEncode(value.NewSeq(value.NewString("a-50x50.jpg"), value.NewInt(42)))
	c.meta[metaRow{2, "_other"}] = []byte("b.png")
	c.options["theme_mods"] = phpserialize.MustEncode(value.NewMap(value.KV("header_image", value.NewString("/uploads/2024/07/a.jpg"))))
	c.options["blogname"] = []byte("My site")
	return c
}

func TestNeedle(t *testing.T) {
	assert.Equal(t, "a", Needle([]string{"/uploads/2024/07/a.jpg", "a-50x50.jpg", "2024/07/a.jpg"}))
	assert.Equal(t, "photo-", Needle([]string{"photo-1.jpg", "x/photo-2.png"}))
	assert.Equal(t, "", Needle([]string{"a.jpg", "b.jpg"}))
	assert.Equal(t, "", Needle(nil))
}

func TestApply(t *testing.T) {
	c := seed()
	rw := New(c)

	counts, err := rw.Apply(context.Background(), testReplacer())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, counts.Documents)
	assert.Equal(t, 2, counts.MetaUpdated)
	assert.Equal(t, []string{"_gallery", "_thumb"}, counts.MetaKeys[1])
	assert.Equal(t, []string{"theme_mods"}, counts.Options)
	assert.Equal(t, 5, counts.Total())

	assert.Equal(t, `<img src="/uploads/2024/07/a.webp">`, c.docs[1])
	assert.Equal(t, `<img src="/uploads/2024/07/a-50x50.webp">`, c.docs[3])
	assert.Equal(t, "/uploads/2024/07/a.webp", string(c.meta[metaRow{1, "_thumb"}]))
	assert.Equal(t, `a:2:{i:0;s:12:"a-50x50.webp";i:1;i:42;}`, string(c.meta[metaRow{1, "_gallery"}]))
	assert.Equal(t, `a:1:{s:12:"header_image";s:23:"/uploads/2024/07/a.webp";}`, string(c.options["theme_mods"]))

	has, err := rw.HasAny(context.Background(), testReplacer())
	require.NoError(t, err)
	assert.False(t, has)
}

func TestApplyIdempotent(t *testing.T) {
	c := seed()
	rw := New(c)
	_, err := rw.Apply(context.Background(), testReplacer())
	require.NoError(t, err)

	docs := map[int64]string{}
	for k, v := range c.docs {
		docs[k] = v
	}
	counts, err := rw.Apply(context.Background(), testReplacer())
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
	assert.Equal(t, docs, c.docs)
}

func TestApplyRoundTripFailure(t *testing.T) {
	c := seed()
	c.encode = func(value.Value) ([]byte, error) { return []byte("broken"), nil }
	before := string(c.meta[metaRow{1, "_gallery"}])

	counts, err := New(c).Apply(context.Background(), testReplacer())
	assert.Equal(t, failures.KindRewriteFailed, failures.KindOf(err))
	assert.Equal(t, []int64{1, 3}, counts.Documents)
	assert.Equal(t, before, string(c.meta[metaRow{1, "_gallery"}]))
}

func TestApplyStoreFailure(t *testing.T) {
	c := seed()
	c.failOption = "theme_mods"

	_, err := New(c).Apply(context.Background(), testReplacer())
	fe := failures.As(err)
	require.NotNil(t, fe)
	assert.Equal(t, failures.KindRewriteFailed, fe.Kind)
	assert.Equal(t, failures.StepRewrite, fe.Step)
}

func TestInverseRestores(t *testing.T) {
	c := seed()
	orig := seed()
	rw := New(c)
	r := testReplacer()
	_, err := rw.Apply(context.Background(), r)
	require.NoError(t, err)

	var inv []value.Pair
	for _, p := range r.Pairs() {
		inv = append(inv, value.Pair{Old: p.New, New: p.Old})
	}
	_, err = rw.Apply(context.Background(), value.NewReplacer(inv))
	require.NoError(t, err)
	assert.Equal(t, orig.docs, c.docs)
	assert.Equal(t, orig.meta, c.meta)
	assert.Equal(t, orig.options, c.options)
}
