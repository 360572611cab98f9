package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jacentio/arbor/engine"
	"github.com/jacentio/arbor/item"
	"github.com/jacentio/arbor/packet"
)

// dialTimeout bounds the connect phase of Dial.
const dialTimeout = 5 * time.Second

// defaultResponseTimeout is how long a request waits for its response
// when the context carries no deadline.
const defaultResponseTimeout = 45 * time.Second

// ErrClosed is returned by calls on a closed Client.
var ErrClosed = errors.New("arbor: client closed")

// ResponseError is returned when the server answers with Status Error.
// Transport and decoding failures are returned as plain errors.
type ResponseError struct {
	Code   engine.Code
	Reason string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Reason)
}

// Config holds client settings.
type Config struct {
	Login    string
	Password string

	// Encoding compresses request bodies and asks the server to answer
	// in kind. Empty sends plain CBOR.
	Encoding string

	// Limits bounds the size of responses.
	Limits packet.Limits
}

// Client speaks the sync protocol over one connection. Requests from
// concurrent callers are serialized.
type Client struct {
	config Config
	conn   net.Conn
	reader *packet.Reader

	mu     sync.Mutex
	closed bool
}

// Dial connects to a server at addr.
func Dial(ctx context.Context, addr string, config Config) (*Client, error) {
	if !packet.ValidEncoding(config.Encoding) {
		return nil, fmt.Errorf("unsupported encoding %q", config.Encoding)
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return New(conn, config), nil
}

// New wraps an established connection.
func New(conn net.Conn, config Config) *Client {
	return &Client{
		config: config,
		conn:   conn,
		reader: packet.NewReader(conn, config.Limits),
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// Do sends one batch and returns the server's results.
func (c *Client) Do(ctx context.Context, batch []item.Operation) ([]item.Operation, error) {
	results, err := c.Pipeline(ctx, [][]item.Operation{batch})
	if err != nil {
		return nil, err
	}
	return results[0].Operations, results[0].Err
}

// Result is the answer to one pipelined batch.
type Result struct {
	Operations []item.Operation

	// Err is a *ResponseError when the server rejected the batch.
	Err error
}

// Pipeline sends every batch without waiting for responses and returns
// one Result per batch, in order. The returned error reports transport
// failures; server rejections are reported per Result.
func (c *Client) Pipeline(ctx context.Context, batches [][]item.Operation) ([]Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultResponseTimeout)
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	// Unblock reads and writes when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	var requests []byte
	for i, batch := range batches {
		raw, err := packet.Encode(c.requestFields(), batch)
		if err != nil {
			return nil, fmt.Errorf("encoding request %d: %w", i, err)
		}
		requests = append(requests, raw...)
	}

	// The server answers while requests are still arriving, so responses
	// are read concurrently with the write.
	written := make(chan error, 1)
	go func() {
		_, err := c.conn.Write(requests)
		if err != nil {
			// Unblock the reader.
			c.conn.SetReadDeadline(time.Unix(1, 0))
		}
		written <- err
	}()

	results := make([]Result, len(batches))
	var readErr error
	for i := range batches {
		raw, err := c.reader.Next()
		if err != nil {
			readErr = transportError(ctx, fmt.Sprintf("reading response %d", i), err)
			break
		}
		resp, err := packet.Decode(raw)
		if err != nil {
			readErr = fmt.Errorf("decoding response %d: %w", i, err)
			break
		}
		results[i] = toResult(resp)
	}
	if readErr != nil {
		// Unblock the writer.
		c.conn.SetWriteDeadline(time.Unix(1, 0))
	}
	if err := <-written; err != nil {
		return nil, transportError(ctx, "writing requests", err)
	}
	if readErr != nil {
		return nil, readErr
	}
	return results, nil
}

// List returns the children of parentID changed since seq.
func (c *Client) List(ctx context.Context, parentID string, since uint64) ([]item.Item, error) {
	ops, err := c.Do(ctx, []item.Operation{item.NewOperation(item.KindList, item.New("", parentID, since))})
	if err != nil {
		return nil, err
	}
	return itemsOf(ops, item.KindList), nil
}

// Fetch returns the full records of ids. Unknown and removed ids are
// left out.
func (c *Client) Fetch(ctx context.Context, ids ...string) ([]item.Item, error) {
	op := item.NewOperation(item.KindFetch)
	for _, id := range ids {
		op.Add(item.New(id, "", 0))
	}
	ops, err := c.Do(ctx, []item.Operation{op})
	if err != nil {
		return nil, err
	}
	return itemsOf(ops, item.KindFetch), nil
}

func (c *Client) requestFields() packet.Fields {
	fields := packet.NewFields(
		packet.FieldLogin, c.config.Login,
		packet.FieldPassword, c.config.Password,
	)
	if c.config.Encoding != packet.EncodingIdentity {
		fields.Set(packet.FieldEncoding, c.config.Encoding)
	}
	return fields
}

// transportError prefers the context error when ctx ended the call.
func transportError(ctx context.Context, action string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if d, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) && !time.Now().Before(d) {
		err = context.DeadlineExceeded
	}
	return fmt.Errorf("%s: %w", action, err)
}

func toResult(resp *packet.Packet) Result {
	if resp.Fields.Get(packet.FieldStatus) == packet.StatusSuccess {
		return Result{Operations: resp.Operations}
	}
	code, err := strconv.Atoi(resp.Fields.Get(packet.FieldErrorCode))
	if err != nil {
		code = int(engine.CodeUnknown)
	}
	return Result{Err: &ResponseError{
		Code:   engine.Code(code),
		Reason: resp.Fields.Get(packet.FieldReason),
	}}
}

func itemsOf(ops []item.Operation, kind item.Kind) []item.Item {
	var items []item.Item
	for _, op := range ops {
		if op.Kind == kind {
			items = append(items, op.Items...)
		}
	}
	return items
}
