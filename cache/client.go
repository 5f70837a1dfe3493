package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pithecene-io/rulelens/iox"
	"github.com/pithecene-io/rulelens/resp"
)

// Client defaults.
const (
	DefaultAddr    = "127.0.0.1:6379"
	DefaultTimeout = 3 * time.Second
)

// Dialer opens connections to the store. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Addr is host:port of the store (default 127.0.0.1:6379).
	Addr string
	// Timeout bounds the dial and the whole request/reply exchange (default 3s).
	Timeout time.Duration
	// Dialer overrides the network dialer (tests).
	Dialer Dialer
}

// Client talks RESP to the store over a fresh TCP connection per command.
// The connection is closed on every path before the call returns.
// Safe for concurrent use; calls share no connection state.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  Dialer
}

// NewClient creates a Client, applying defaults for zero config fields.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}
	return &Client{addr: cfg.Addr, timeout: cfg.Timeout, dialer: cfg.Dialer}
}

// Addr returns the store address.
func (c *Client) Addr() string {
	return c.addr
}

// Do sends one command and returns its reply.
//
// Errors:
//   - *UnavailableError: dial, write or read failed, or the exchange timed out
//   - *resp.ProtocolError: the reply was malformed or truncated
//   - *resp.ServerError: the store answered with an error reply (the reply is also returned)
func (c *Client) Do(ctx context.Context, args ...any) (resp.Reply, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return resp.Reply{}, &UnavailableError{Op: "dial", Addr: c.addr, Err: err}
	}
	defer iox.DiscardClose(conn)

	if err := conn.SetDeadline(deadline); err != nil {
		return resp.Reply{}, &UnavailableError{Op: "set deadline", Addr: c.addr, Err: err}
	}

	if _, err := conn.Write(resp.EncodeCommand(resp.Args(args...))); err != nil {
		return resp.Reply{}, &UnavailableError{Op: "write", Addr: c.addr, Err: err}
	}

	reply, err := resp.NewDecoder(conn).ReadReply()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return resp.Reply{}, &UnavailableError{Op: "read", Addr: c.addr, Err: err}
		}
		return reply, err
	}
	return reply, nil
}

// Get returns the value stored at key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	reply, err := c.Do(ctx, "GET", key)
	if err != nil {
		return nil, false, err
	}
	if reply.Kind != resp.KindBulkString {
		return nil, false, unexpected("GET", reply)
	}
	if reply.IsNull() {
		return nil, false, nil
	}
	return reply.Bulk, true, nil
}

// Set stores value at key without expiry.
func (c *Client) Set(ctx context.Context, key string, value []byte) (string, error) {
	reply, err := c.Do(ctx, "SET", key, value)
	if err != nil {
		return "", err
	}
	return statusText("SET", reply)
}

// SetEx stores value at key with a TTL. A negative ttl fails before any I/O.
func (c *Client) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) (string, error) {
	secs, err := ttlSeconds(ttl)
	if err != nil {
		return "", err
	}
	reply, err := c.Do(ctx, "SETEX", key, secs, value)
	if err != nil {
		return "", err
	}
	return statusText("SETEX", reply)
}

// HSet sets field in the hash at key.
func (c *Client) HSet(ctx context.Context, key, field string, value []byte) (int64, error) {
	reply, err := c.Do(ctx, "HSET", key, field, value)
	if err != nil {
		return 0, err
	}
	if reply.Kind != resp.KindInteger {
		return 0, unexpected("HSET", reply)
	}
	return reply.Int, nil
}

// HGetAll returns every field of the hash at key.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	reply, err := c.Do(ctx, "HGETALL", key)
	if err != nil {
		return nil, err
	}
	if reply.Kind != resp.KindArray {
		return nil, unexpected("HGETALL", reply)
	}
	if len(reply.Array)%2 != 0 {
		return nil, &resp.ProtocolError{
			Kind: resp.ProtocolErrorMalformed,
			Msg:  fmt.Sprintf("HGETALL returned %d elements, want an even count", len(reply.Array)),
		}
	}
	out := make(map[string][]byte, len(reply.Array)/2)
	for i := 0; i < len(reply.Array); i += 2 {
		field, value := reply.Array[i], reply.Array[i+1]
		if field.Kind != resp.KindBulkString || value.Kind != resp.KindBulkString {
			return nil, unexpected("HGETALL element", field)
		}
		out[string(field.Bulk)] = value.Bulk
	}
	return out, nil
}

// Close is a no-op; Client holds no connections between commands.
func (c *Client) Close() error {
	return nil
}

func statusText(op string, reply resp.Reply) (string, error) {
	if reply.Kind != resp.KindSimpleString {
		return "", unexpected(op, reply)
	}
	return reply.Str, nil
}

func unexpected(op string, reply resp.Reply) error {
	return &resp.ProtocolError{
		Kind: resp.ProtocolErrorMalformed,
		Msg:  fmt.Sprintf("unexpected %s reply to %s", reply.Kind, op),
	}
}

var _ Store = (*Client)(nil)
