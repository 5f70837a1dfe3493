// Package resp implements the RESP request/reply framing used to talk to the
// cache store.
//
// Requests are always arrays of bulk strings. Replies are decoded into a
// tagged Reply value. Bulk string bodies are read by exact byte count, so
// values may contain arbitrary bytes including CR and LF.
package resp

import "fmt"

// Kind discriminates Reply variants.
type Kind byte

// Reply kinds, keyed by their wire prefix byte.
const (
	KindSimpleString Kind = '+'
	KindError        Kind = '-'
	KindInteger      Kind = ':'
	KindBulkString   Kind = '$'
	KindArray        Kind = '*'
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple_string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulkString:
		return "bulk_string"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%q)", byte(k))
	}
}

// Reply is one decoded RESP value.
//
// Only the field matching Kind is meaningful. Null is set for the null
// bulk string ($-1) and the null array (*-1), which are distinct from an
// empty bulk string and an empty array.
type Reply struct {
	Kind  Kind
	Str   string
	Int   int64
	Bulk  []byte
	Array []Reply
	Null  bool
}

// SimpleString returns a simple string reply.
func SimpleString(s string) Reply { return Reply{Kind: KindSimpleString, Str: s} }

// ErrorReply returns an error reply carrying msg.
func ErrorReply(msg string) Reply { return Reply{Kind: KindError, Str: msg} }

// Integer returns an integer reply.
func Integer(n int64) Reply { return Reply{Kind: KindInteger, Int: n} }

// Bulk returns a non-null bulk string reply. A nil b encodes as an empty string.
func Bulk(b []byte) Reply {
	if b == nil {
		b = []byte{}
	}
	return Reply{Kind: KindBulkString, Bulk: b}
}

// NullBulk returns the null bulk string reply.
func NullBulk() Reply { return Reply{Kind: KindBulkString, Null: true} }

// ArrayOf returns a non-null array reply.
func ArrayOf(elems ...Reply) Reply {
	if elems == nil {
		elems = []Reply{}
	}
	return Reply{Kind: KindArray, Array: elems}
}

// NullArray returns the null array reply.
func NullArray() Reply { return Reply{Kind: KindArray, Null: true} }

// IsNull reports whether r is a null bulk string or null array.
func (r Reply) IsNull() bool { return r.Null }

// Text returns the textual payload of simple strings, errors and bulk strings.
func (r Reply) Text() string {
	switch r.Kind {
	case KindSimpleString, KindError:
		return r.Str
	case KindBulkString:
		return string(r.Bulk)
	default:
		return ""
	}
}

// Equal reports whether r and o are the same RESP value.
func (r Reply) Equal(o Reply) bool {
	if r.Kind != o.Kind || r.Null != o.Null {
		return false
	}
	switch r.Kind {
	case KindSimpleString, KindError:
		return r.Str == o.Str
	case KindInteger:
		return r.Int == o.Int
	case KindBulkString:
		return string(r.Bulk) == string(o.Bulk)
	case KindArray:
		if len(r.Array) != len(o.Array) {
			return false
		}
		for i := range r.Array {
			if !r.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
