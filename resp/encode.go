package resp

import (
	"fmt"
	"strconv"
)

// Args converts command parts into byte-string arguments.
// Strings are sent as their UTF-8 bytes, integers in decimal.
func Args(parts ...any) [][]byte {
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case []byte:
			out = append(out, v)
		case string:
			out = append(out, []byte(v))
		case int:
			out = append(out, strconv.AppendInt(nil, int64(v), 10))
		case int64:
			out = append(out, strconv.AppendInt(nil, v, 10))
		default:
			out = append(out, []byte(fmt.Sprint(v)))
		}
	}
	return out
}

// EncodeCommand frames args as a RESP array of bulk strings.
func EncodeCommand(args [][]byte) []byte {
	size := 16
	for _, a := range args {
		size += len(a) + 16
	}
	return AppendCommand(make([]byte, 0, size), args)
}

// AppendCommand appends the framed command to dst.
func AppendCommand(dst []byte, args [][]byte) []byte {
	dst = appendHeader(dst, '*', int64(len(args)))
	for _, a := range args {
		dst = appendHeader(dst, '$', int64(len(a)))
		dst = append(dst, a...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// EncodeReply frames a reply the way a server would send it.
func EncodeReply(r Reply) []byte {
	return AppendReply(nil, r)
}

// AppendReply appends the framed reply to dst.
func AppendReply(dst []byte, r Reply) []byte {
	switch r.Kind {
	case KindSimpleString, KindError:
		dst = append(dst, byte(r.Kind))
		dst = append(dst, r.Str...)
		return append(dst, '\r', '\n')
	case KindInteger:
		return appendHeader(dst, ':', r.Int)
	case KindBulkString:
		if r.Null {
			return appendHeader(dst, '$', -1)
		}
		dst = appendHeader(dst, '$', int64(len(r.Bulk)))
		dst = append(dst, r.Bulk...)
		return append(dst, '\r', '\n')
	case KindArray:
		if r.Null {
			return appendHeader(dst, '*', -1)
		}
		dst = appendHeader(dst, '*', int64(len(r.Array)))
		for _, e := range r.Array {
			dst = AppendReply(dst, e)
		}
		return dst
	default:
		return dst
	}
}

func appendHeader(dst []byte, prefix byte, n int64) []byte {
	dst = append(dst, prefix)
	dst = strconv.AppendInt(dst, n, 10)
	return append(dst, '\r', '\n')
}
