package value

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacerLongestFirst(t *testing.T) {
	r := NewReplacer([]Pair{
		{Old: "a.jpg", New: "a.webp"},
		{Old: "/uploads/2024/07/a.jpg", New: "/uploads/2024/07/a.webp"},
		{Old: "a-50x50.jpg", New: "a-50x50.webp"},
	})

	require.Equal(t, 3, r.Len())
	assert.Equal(t, "/uploads/2024/07/a.jpg", r.Pairs()[0].Old)
	assert.Equal(t, "a-50x50.jpg", r.Pairs()[1].Old)

	out, changed := r.Replace(`<img src="/uploads/2024/07/a.jpg"> <img src="a-50x50.jpg">`)
	assert.True(t, changed)
	assert.Equal(t, `<img src="/uploads/2024/07/a.webp"> <img src="a-50x50.webp">`, out)
}

func TestReplacerSkipsEmptyKeys(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "", New: "x"}, {Old: "b", New: "c"}})
	assert.Equal(t, 1, r.Len())

	out, changed := r.Replace("abc")
	assert.True(t, changed)
	assert.Equal(t, "acc", out)
}

func TestReplacerNoMatch(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "a.jpg", New: "a.webp"}})
	out, changed := r.Replace("nothing here")
	assert.False(t, changed)
	assert.Equal(t, "nothing here", out)
}

func TestReplacerBoundaryPairs(t *testing.T) {
	r := NewReplacer([]Pair{
		{Old: "a.jpg", New: "a.webp", Boundary: true},
		{Old: "b.png", New: "b.webp"},
	})

	in := `a.jpg banana.jpg "a.jpg" src='a.jpg' x=a.jpg /up/a.jpg cab.png`
	out, changed := r.Replace(in)
	assert.True(t, changed)
	assert.Equal(t, `a.webp banana.jpg "a.webp" src='a.webp' x=a.webp /up/a.webp cab.webp`, out)

	assert.False(t, r.Contains("banana.jpg"))
	assert.True(t, r.Contains("banana.jpg a.jpg"))
	_, changed = r.Replace("banana.jpg")
	assert.False(t, changed)
}

func TestRewriteKeepsShape(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "a.jpg", New: "a.webp"}})
	in := NewMap(
		KV("header_image", NewString("/uploads/2024/07/a.jpg")),
		KV("a.jpg", NewString("key untouched")),
		Entry{Key: "3", IntKey: true, Value: NewSeq(NewInt(7), NewFloatLiteral(1.5, "1.5"), NewString("a.jpg"), NewNull(), NewBool(true))},
	)

	out, changed := Rewrite(in, r)
	require.True(t, changed)
	assert.True(t, SameShape(in, out))

	v, ok := out.Get("header_image")
	require.True(t, ok)
	assert.Equal(t, "/uploads/2024/07/a.webp", v.Str())

	_, ok = out.Get("a.jpg")
	assert.True(t, ok, "map keys must not be rewritten")

	seq, _ := out.Get("3")
	assert.Equal(t, "a.webp", seq.Items()[2].Str())
	assert.Equal(t, "1.5", seq.Items()[1].FloatLiteral())

	// input is not mutated
	orig, _ := in.Get("header_image")
	assert.Equal(t, "/uploads/2024/07/a.jpg", orig.Str())
}

func TestRewriteIdempotent(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "a.jpg", New: "a.webp"}})
	in := NewSeq(NewString("a.jpg"), NewString("b.png"))

	once, changed := Rewrite(in, r)
	require.True(t, changed)
	twice, changed := Rewrite(once, r)
	assert.False(t, changed)
	assert.True(t, Equal(once, twice))
}

type fakeCodec struct {
	decoded  map[string]Value
	encodeFn func(Value) ([]byte, error)
}

func (f *fakeCodec) Decode(raw []byte) (Value, bool) {
	v, ok := f.decoded[string(raw)]
	return v, ok
}

func (f *fakeCodec) Encode(v Value) ([]byte, error) { return f.encodeFn(v) }

func TestRewriteRawFallsBackToString(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "a.jpg", New: "a.webp"}})
	c := &fakeCodec{decoded: map[string]Value{}}

	out, changed, err := RewriteRaw([]byte("see a.jpg"), c, r)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "see a.webp", string(out))
}

func TestRewriteRawRoundTripFailure(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "a.jpg", New: "a.webp"}})
	c := &fakeCodec{
		decoded:  map[string]Value{"blob": NewSeq(NewString("a.jpg"))},
		encodeFn: func(Value) ([]byte, error) { return []byte("garbage"), nil },
	}

	out, changed, err := RewriteRaw([]byte("blob"), c, r)
	assert.True(t, errors.Is(err, ErrRewriteFailed))
	assert.False(t, changed)
	assert.Equal(t, "blob", string(out))
}

func TestRewriteRawEncodeError(t *testing.T) {
	r := NewReplacer([]Pair{{Old: "a.jpg", New: "a.webp"}})
	c := &fakeCodec{
		decoded:  map[string]Value{"blob": NewString("a.jpg")},
		encodeFn: func(Value) ([]byte, error) { return nil, errors.New("boom") },
	}

	out, _, err := RewriteRaw([]byte("blob"), c, r)
	assert.ErrorIs(t, err, ErrRewriteFailed)
	assert.Equal(t, "blob", string(out))
}

func TestEqualAndSameShape(t *testing.T) {
	a := NewMap(KV("x", NewString("1")), KV("y", NewInt(2)))
	b := NewMap(KV("x", NewString("2")), KV("y", NewInt(2)))
	c := NewMap(KV("x", NewString("1")), KV("y", NewFloat(2)))

	assert.False(t, Equal(a, b))
	assert.True(t, SameShape(a, b))
	assert.False(t, SameShape(a, c))
	assert.True(t, Equal(a, a))
	assert.Equal(t, `{"x": "1", "y": 2}`, a.String())
}
