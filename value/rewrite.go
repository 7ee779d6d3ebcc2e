package value

import (
	"errors"
	"sort"
	"strings"
)

// ErrRewriteFailed is returned when a rewritten blob would not survive a
// decode of its own encoding.
var ErrRewriteFailed = errors.New("rewritten value does not round-trip")

// Pair is one old -> new substitution. A Boundary pair only matches where
// Old starts a file name: at the start of the input or after a path
// separator, quote, '=' or whitespace.
type Pair struct {
	Old      string
	New      string
	Boundary bool
}

// Replacer applies a set of substitutions longest key first, in one pass
// over the input, so a shorter key never stomps on part of a longer one.
type Replacer struct {
	pairs []Pair
}

// NewReplacer orders pairs by descending key length (stable on ties) and
// drops pairs with an empty key.
func NewReplacer(pairs []Pair) *Replacer {
	sorted := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Old == "" {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Old) > len(sorted[j].Old)
	})
	return &Replacer{pairs: sorted}
}

func atBoundary(s string, i int) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case '/', '"', '\'', '=', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// match returns the first pair, in application order, that matches s at i.
func (r *Replacer) match(s string, i int) (Pair, bool) {
	for _, p := range r.pairs {
		if !strings.HasPrefix(s[i:], p.Old) {
			continue
		}
		if p.Boundary && !atBoundary(s, i) {
			continue
		}
		return p, true
	}
	return Pair{}, false
}

// Pairs returns the substitutions in application order.
func (r *Replacer) Pairs() []Pair { return r.pairs }

// Len is the number of substitutions.
func (r *Replacer) Len() int { return len(r.pairs) }

// Contains reports whether s holds any old key.
func (r *Replacer) Contains(s string) bool {
	for _, p := range r.pairs {
		for off := 0; off < len(s); {
			j := strings.Index(s[off:], p.Old)
			if j < 0 {
				break
			}
			if !p.Boundary || atBoundary(s, off+j) {
				return true
			}
			off += j + 1
		}
	}
	return false
}

// Replace applies every substitution to s.
func (r *Replacer) Replace(s string) (string, bool) {
	if len(r.pairs) == 0 || !r.Contains(s) {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if p, ok := r.match(s, i); ok {
			b.WriteString(p.New)
			i += len(p.Old)
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	out := b.String()
	return out, out != s
}

// Rewrite returns v with the replacer applied to every string leaf. Map
// keys are left alone. The second result reports whether anything changed;
// when nothing did, v itself is returned.
func Rewrite(v Value, r *Replacer) (Value, bool) {
	switch v.kind {
	case String:
		out, changed := r.Replace(v.text)
		if !changed {
			return v, false
		}
		return NewString(out), true
	case Seq:
		var items []Value
		for i, it := range v.seq {
			nv, changed := Rewrite(it, r)
			if changed && items == nil {
				items = make([]Value, len(v.seq))
				copy(items, v.seq[:i])
			}
			if items != nil {
				items[i] = nv
			}
		}
		if items == nil {
			return v, false
		}
		return Value{kind: Seq, seq: items}, true
	case Map:
		var entries []Entry
		for i, e := range v.m {
			nv, changed := Rewrite(e.Value, r)
			if changed && entries == nil {
				entries = make([]Entry, len(v.m))
				copy(entries, v.m[:i])
			}
			if entries != nil {
				entries[i] = Entry{Key: e.Key, IntKey: e.IntKey, Value: nv}
			}
		}
		if entries == nil {
			return v, false
		}
		return Value{kind: Map, m: entries}, true
	}
	return v, false
}

// Codec is the host's nested blob encoding.
type Codec interface {
	Decode(raw []byte) (Value, bool)
	Encode(v Value) ([]byte, error)
}

// RewriteRaw rewrites a raw stored value. When the codec decodes it the
// structure is walked and re-encoded; otherwise raw is treated as a single
// string leaf. On ErrRewriteFailed raw is returned unchanged.
func RewriteRaw(raw []byte, c Codec, r *Replacer) ([]byte, bool, error) {
	if c != nil {
		if v, ok := c.Decode(raw); ok {
			return rewriteDecoded(raw, v, c, r)
		}
	}
	out, changed := r.Replace(string(raw))
	if !changed {
		return raw, false, nil
	}
	return []byte(out), true, nil
}

func rewriteDecoded(raw []byte, v Value, c Codec, r *Replacer) ([]byte, bool, error) {
	nv, changed := Rewrite(v, r)
	if !changed {
		return raw, false, nil
	}
	enc, err := c.Encode(nv)
	if err != nil {
		return raw, false, errors.Join(ErrRewriteFailed, err)
	}
	back, ok := c.Decode(enc)
	if !ok || !Equal(back, nv) || !SameShape(back, v) {
		return raw, false, ErrRewriteFailed
	}
	return enc, true, nil
}
