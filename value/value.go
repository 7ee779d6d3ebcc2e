// Package value is the source-agnostic tagged union used for structured
// blobs the host persists (nested maps and lists), and the rewriter that
// applies URL substitutions to every string leaf of such a blob.
package value

import (
	"fmt"
	"strconv"
)

// Kind tags the variant a Value holds.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
	Seq
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Seq:
		return "seq"
	case Map:
		return "map"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable tagged union. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	text string // string payload, or the original literal of a Float
	seq  []Value
	m    []Entry
}

// Entry is one key/value pair of a Map. Maps keep insertion order. IntKey
// marks keys the host stored as integers so an encoder can restore them.
type Entry struct {
	Key    string
	IntKey bool
	Value  Value
}

func NewNull() Value { return Value{} }

func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

func NewInt(i int64) Value { return Value{kind: Int, i: i} }

func NewFloat(f float64) Value { return Value{kind: Float, f: f} }

func NewString(s string) Value { return Value{kind: String, text: s} }

func NewSeq(items ...Value) Value { return Value{kind: Seq, seq: items} }

func NewMap(entries ...Entry) Value { return Value{kind: Map, m: entries} }

// NewFloatLiteral keeps the literal the float was decoded from so the
// encoder can write it back unchanged.
func NewFloatLiteral(f float64, literal string) Value {
	return Value{kind: Float, f: f, text: literal}
}

// KV is shorthand for a string-keyed Entry.
func KV(key string, v Value) Entry { return Entry{Key: key, Value: v} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Bool() bool { return v.b }

func (v Value) Int() int64 { return v.i }

func (v Value) Float() float64 { return v.f }

// FloatLiteral returns the decoded literal of a Float, or "" if the value
// was built in code.
func (v Value) FloatLiteral() string {
	if v.kind != Float {
		return ""
	}
	return v.text
}

// Str returns the payload of a String value and "" otherwise.
func (v Value) Str() string {
	if v.kind != String {
		return ""
	}
	return v.text
}

// Items returns the elements of a Seq. The slice must not be modified.
func (v Value) Items() []Value { return v.seq }

// Entries returns the entries of a Map. The slice must not be modified.
func (v Value) Entries() []Entry { return v.m }

// Len is the number of items or entries, or 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case Seq:
		return len(v.seq)
	case Map:
		return len(v.m)
	}
	return 0
}

// Get looks up a Map entry by key.
func (v Value) Get(key string) (Value, bool) {
	for _, e := range v.m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Equal reports deep structural equality, including map order, integer key
// flags and float literals.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f && a.text == b.text
	case String:
		return a.text == b.text
	case Seq:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(a.m) != len(b.m) {
			return false
		}
		for i := range a.m {
			if a.m[i].Key != b.m[i].Key || a.m[i].IntKey != b.m[i].IntKey {
				return false
			}
			if !Equal(a.m[i].Value, b.m[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// SameShape reports whether a and b have identical structure and identical
// non-string leaves. String leaves may differ.
func SameShape(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case String:
		return true
	case Seq:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !SameShape(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(a.m) != len(b.m) {
			return false
		}
		for i := range a.m {
			if a.m[i].Key != b.m[i].Key || a.m[i].IntKey != b.m[i].IntKey {
				return false
			}
			if !SameShape(a.m[i].Value, b.m[i].Value) {
				return false
			}
		}
		return true
	}
	return Equal(a, b)
}

func (v Value) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.b)
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		if v.text != "" {
			return v.text
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case String:
		return strconv.Quote(v.text)
	case Seq:
		s := "["
		for i, it := range v.seq {
			if i > 0 {
				s += ", "
			}
			s += it.String()
		}
		return s + "]"
	case Map:
		s := "{"
		for i, e := range v.m {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%q: %s", e.Key, e.Value.String())
		}
		return s + "}"
	}
	return "?"
}
