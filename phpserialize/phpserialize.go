// Package phpserialize reads and writes the PHP serialize() format the
// reference host stores nested metadata and option blobs in.
//
// Supported: N; b:; i:; d:; s:; a:. Arrays whose keys are 0..n-1 in order
// decode to a sequence, anything else to an ordered map. Float literals are
// kept so untouched values re-encode byte for byte.
package phpserialize

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"safemigrator/value"
)

var ErrSyntax = errors.New("phpserialize: syntax error")

// Codec adapts Decode/Encode to value.Codec.
type Codec struct{}

func (Codec) Decode(raw []byte) (value.Value, bool) {
	v, err := Decode(raw)
	if err != nil {
		return value.Value{}, false
	}
	return v, true
}

func (Codec) Encode(v value.Value) ([]byte, error) { return Encode(v) }

// Decode parses a complete serialized value. Trailing bytes are an error.
func Decode(raw []byte) (value.Value, error) {
	d := &decoder{data: raw}
	v, err := d.value(0)
	if err != nil {
		return value.Value{}, err
	}
	if d.pos != len(d.data) {
		return value.Value{}, fmt.Errorf("%w: %d trailing bytes", ErrSyntax, len(d.data)-d.pos)
	}
	return v, nil
}

const maxDepth = 512

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) fail(what string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrSyntax, what, d.pos)
}

func (d *decoder) expect(b byte) error {
	if d.pos >= len(d.data) || d.data[d.pos] != b {
		return d.fail(fmt.Sprintf("expected %q", b))
	}
	d.pos++
	return nil
}

// until returns the bytes up to (not including) the next b and skips b.
func (d *decoder) until(b byte) ([]byte, error) {
	i := bytes.IndexByte(d.data[d.pos:], b)
	if i < 0 {
		return nil, d.fail(fmt.Sprintf("missing %q", b))
	}
	out := d.data[d.pos : d.pos+i]
	d.pos += i + 1
	return out, nil
}

func (d *decoder) value(depth int) (value.Value, error) {
	if depth > maxDepth {
		return value.Value{}, d.fail("nesting too deep")
	}
	if d.pos >= len(d.data) {
		return value.Value{}, d.fail("unexpected end")
	}
	tag := d.data[d.pos]
	d.pos++
	if tag == 'N' {
		if err := d.expect(';'); err != nil {
			return value.Value{}, err
		}
		return value.NewNull(), nil
	}
	if err := d.expect(':'); err != nil {
		return value.Value{}, err
	}
	switch tag {
	case 'b':
		lit, err := d.until(';')
		if err != nil {
			return value.Value{}, err
		}
		switch string(lit) {
		case "0":
			return value.NewBool(false), nil
		case "1":
			return value.NewBool(true), nil
		}
		return value.Value{}, d.fail("bad bool")
	case 'i':
		lit, err := d.until(';')
		if err != nil {
			return value.Value{}, err
		}
		n, err := strconv.ParseInt(string(lit), 10, 64)
		if err != nil {
			return value.Value{}, d.fail("bad int")
		}
		return value.NewInt(n), nil
	case 'd':
		lit, err := d.until(';')
		if err != nil {
			return value.Value{}, err
		}
		f, err := parseFloat(string(lit))
		if err != nil {
			return value.Value{}, d.fail("bad float")
		}
		return value.NewFloatLiteral(f, string(lit)), nil
	case 's':
		s, err := d.str()
		if err != nil {
			return value.Value{}, err
		}
		if err := d.expect(';'); err != nil {
			return value.Value{}, err
		}
		return value.NewString(s), nil
	case 'a':
		return d.array(depth)
	}
	return value.Value{}, d.fail(fmt.Sprintf("unsupported type %q", tag))
}

// str reads `LEN:"bytes"` with the leading `s:` already consumed.
func (d *decoder) str() (string, error) {
	lit, err := d.until(':')
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(string(lit))
	if err != nil || n < 0 {
		return "", d.fail("bad string length")
	}
	if err := d.expect('"'); err != nil {
		return "", err
	}
	if d.pos+n > len(d.data) {
		return "", d.fail("string overruns input")
	}
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	if err := d.expect('"'); err != nil {
		return "", err
	}
	return s, nil
}

func (d *decoder) array(depth int) (value.Value, error) {
	lit, err := d.until(':')
	if err != nil {
		return value.Value{}, err
	}
	n, err := strconv.Atoi(string(lit))
	if err != nil || n < 0 || n > len(d.data) {
		return value.Value{}, d.fail("bad array length")
	}
	if err := d.expect('{'); err != nil {
		return value.Value{}, err
	}
	entries := make([]value.Entry, 0, n)
	list := true
	for i := 0; i < n; i++ {
		if d.pos+2 > len(d.data) {
			return value.Value{}, d.fail("unexpected end")
		}
		var e value.Entry
		switch d.data[d.pos] {
		case 'i':
			d.pos += 2
			if d.data[d.pos-1] != ':' {
				return value.Value{}, d.fail("bad key")
			}
			k, err := d.until(';')
			if err != nil {
				return value.Value{}, err
			}
			if _, err := strconv.ParseInt(string(k), 10, 64); err != nil {
				return value.Value{}, d.fail("bad int key")
			}
			e.Key, e.IntKey = string(k), true
			if e.Key != strconv.Itoa(i) {
				list = false
			}
		case 's':
			d.pos += 2
			if d.data[d.pos-1] != ':' {
				return value.Value{}, d.fail("bad key")
			}
			k, err := d.str()
			if err != nil {
				return value.Value{}, err
			}
			if err := d.expect(';'); err != nil {
				return value.Value{}, err
			}
			e.Key = k
			list = false
		default:
			return value.Value{}, d.fail("bad key type")
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return value.Value{}, err
		}
		e.Value = v
		entries = append(entries, e)
	}
	if err := d.expect('}'); err != nil {
		return value.Value{}, err
	}
	if list {
		items := make([]value.Value, len(entries))
		for i, e := range entries {
			items[i] = e.Value
		}
		return value.NewSeq(items...), nil
	}
	return value.NewMap(entries...), nil
}

func parseFloat(lit string) (float64, error) {
	switch lit {
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NAN":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(lit, 64)
}

// Encode writes v in serialize() format.
func Encode(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustEncode is Encode for values built in code, which cannot fail.
func MustEncode(v value.Value) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encode(buf *bytes.Buffer, v value.Value) error {
	switch v.Kind() {
	case value.Null:
		buf.WriteString("N;")
	case value.Bool:
		if v.Bool() {
			buf.WriteString("b:1;")
		} else {
			buf.WriteString("b:0;")
		}
	case value.Int:
		buf.WriteString("i:")
		buf.WriteString(strconv.FormatInt(v.Int(), 10))
		buf.WriteByte(';')
	case value.Float:
		buf.WriteString("d:")
		buf.WriteString(formatFloat(v))
		buf.WriteByte(';')
	case value.String:
		writeString(buf, v.Str())
		buf.WriteByte(';')
	case value.Seq:
		items := v.Items()
		fmt.Fprintf(buf, "a:%d:{", len(items))
		for i, it := range items {
			fmt.Fprintf(buf, "i:%d;", i)
			if err := encode(buf, it); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case value.Map:
		entries := v.Entries()
		fmt.Fprintf(buf, "a:%d:{", len(entries))
		for _, e := range entries {
			if e.IntKey {
				if _, err := strconv.ParseInt(e.Key, 10, 64); err != nil {
					return fmt.Errorf("phpserialize: integer key %q is not an integer", e.Key)
				}
				buf.WriteString("i:")
				buf.WriteString(e.Key)
				buf.WriteByte(';')
			} else {
				writeString(buf, e.Key)
				buf.WriteByte(';')
			}
			if err := encode(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("phpserialize: cannot encode %s", v.Kind())
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteString("s:")
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteString(`:"`)
	buf.WriteString(s)
	buf.WriteByte('"')
}

func formatFloat(v value.Value) string {
	if lit := v.FloatLiteral(); lit != "" {
		return lit
	}
	f := v.Float()
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NAN"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
