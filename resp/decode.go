package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Decoder limits.
const (
	// MaxBulkLength is the largest bulk string accepted (512 MiB, the store's own cap).
	MaxBulkLength = 512 * 1024 * 1024
	// MaxArrayLength is the largest array element count accepted.
	MaxArrayLength = 1 << 24
	// MaxLineLength bounds simple string, error, integer and header lines.
	MaxLineLength = 64 * 1024
	// MaxDepth bounds array nesting.
	MaxDepth = 512
)

// Decoder reads RESP replies from a stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	if br, ok := r.(*bufio.Reader); ok {
		return &Decoder{r: br}
	}
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadReply decodes exactly one reply.
//
// Errors:
//   - *ProtocolError: malformed framing, unknown prefix or truncated stream
//   - *ServerError: the reply (or an element of it) is an error reply; the
//     fully decoded Reply is returned alongside so the stream stays in sync
func (d *Decoder) ReadReply() (Reply, error) {
	var serverErr *ServerError
	r, err := d.read(0, &serverErr)
	if err != nil {
		return Reply{}, err
	}
	if serverErr != nil {
		return r, serverErr
	}
	return r, nil
}

func (d *Decoder) read(depth int, serverErr **ServerError) (Reply, error) {
	if depth > MaxDepth {
		return Reply{}, &ProtocolError{Kind: ProtocolErrorTooLarge, Msg: fmt.Sprintf("array nesting exceeds %d", MaxDepth)}
	}

	prefix, err := d.r.ReadByte()
	if err != nil {
		return Reply{}, closedError("failed to read reply prefix", ignoreEOF(err))
	}

	switch Kind(prefix) {
	case KindSimpleString:
		line, err := d.readLine()
		if err != nil {
			return Reply{}, err
		}
		return SimpleString(string(line)), nil

	case KindError:
		line, err := d.readLine()
		if err != nil {
			return Reply{}, err
		}
		if *serverErr == nil {
			*serverErr = &ServerError{Message: string(line)}
		}
		return ErrorReply(string(line)), nil

	case KindInteger:
		line, err := d.readLine()
		if err != nil {
			return Reply{}, err
		}
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Reply{}, &ProtocolError{Kind: ProtocolErrorMalformed, Msg: fmt.Sprintf("invalid integer %q", line), Err: err}
		}
		return Integer(n), nil

	case KindBulkString:
		n, err := d.readLength(MaxBulkLength)
		if err != nil {
			return Reply{}, err
		}
		if n == -1 {
			return NullBulk(), nil
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(d.r, body); err != nil {
			return Reply{}, closedError(fmt.Sprintf("failed to read %d-byte bulk string", n), ignoreEOF(err))
		}
		var crlf [2]byte
		if _, err := io.ReadFull(d.r, crlf[:]); err != nil {
			return Reply{}, closedError("failed to read bulk string terminator", ignoreEOF(err))
		}
		if crlf[0] != '\r' || crlf[1] != '\n' {
			return Reply{}, malformed("bulk string of length %d not followed by CRLF", n)
		}
		return Bulk(body), nil

	case KindArray:
		n, err := d.readLength(MaxArrayLength)
		if err != nil {
			return Reply{}, err
		}
		if n == -1 {
			return NullArray(), nil
		}
		elems := make([]Reply, 0, n)
		for range n {
			e, err := d.read(depth+1, serverErr)
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, e)
		}
		return ArrayOf(elems...), nil

	default:
		return Reply{}, &ProtocolError{
			Kind: ProtocolErrorUnknownPrefix,
			Msg:  fmt.Sprintf("unknown reply prefix %q", prefix),
		}
	}
}

// readLength reads a bulk or array header. Returns -1 for null.
func (d *Decoder) readLength(limit int64) (int64, error) {
	line, err := d.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, &ProtocolError{Kind: ProtocolErrorMalformed, Msg: fmt.Sprintf("invalid length %q", line), Err: err}
	}
	if n < -1 {
		return 0, malformed("negative length %d", n)
	}
	if n > limit {
		return 0, &ProtocolError{
			Kind: ProtocolErrorTooLarge,
			Msg:  fmt.Sprintf("length %d exceeds maximum %d", n, limit),
		}
	}
	return n, nil
}

// readLine consumes bytes up to and including the next CRLF and returns the
// bytes before it. A bare LF is kept as data.
func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			if len(line) >= 2 && line[len(line)-2] == '\r' {
				if len(line)-2 > MaxLineLength {
					return nil, lineTooLong()
				}
				return line[:len(line)-2], nil
			}
		} else if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, closedError("failed to read line", ignoreEOF(err))
		}
		// One byte of slack for a CR whose LF is still unread.
		if len(line) > MaxLineLength+1 {
			return nil, lineTooLong()
		}
	}
}

func lineTooLong() error {
	return &ProtocolError{
		Kind: ProtocolErrorTooLarge,
		Msg:  fmt.Sprintf("line exceeds %d bytes", MaxLineLength),
	}
}

// ignoreEOF drops io.EOF and io.ErrUnexpectedEOF, which closedError already conveys.
func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}
