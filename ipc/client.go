// Package ipc implements the synchronous, send-one/await-one request
// client above the wire codec. It owns the outbound and inbound byte
// streams to the backend and performs one call at a time: the driver
// host guarantees there is never more than one call in flight.
package ipc

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/bridgefs/bridgefs/internal/log"
	"github.com/bridgefs/bridgefs/internal/metrics"
	"github.com/bridgefs/bridgefs/wire"
	"github.com/sirupsen/logrus"
)

// State is the request client's trivial state machine: Ready -> InFlight
// -> Ready on a successful call, Ready -> Poisoned on any codec failure.
// Poisoned is terminal.
type State int32

const (
	Ready State = iota
	InFlight
	Poisoned
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case InFlight:
		return "in_flight"
	case Poisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// Client is the synchronous request client. It is not safe for
// concurrent use — the driver host is responsible for serialising calls;
// concurrent calls are undefined behaviour.
type Client struct {
	w *bufio.Writer
	r *bufio.Reader
	c io.Closer

	log     *logrus.Logger
	metrics *metrics.Collectors

	mu        sync.Mutex
	state     State
	poisonErr error
}

// New wraps a duplex byte stream pair (typically a spawned backend
// process's Stdin/Stdout) as a request client. log and m may be nil: a
// nil log disables logging, and a nil m is replaced by collectors on a
// private metrics registry.
func New(w io.Writer, r io.Reader, closer io.Closer, log *logrus.Logger, m *metrics.Collectors) *Client {
	if m == nil {
		m = metrics.Noop()
	}
	return &Client{
		w:       bufio.NewWriter(w),
		r:       bufio.NewReader(r),
		c:       closer,
		log:     log,
		metrics: m,
		state:   Ready,
	}
}

// State reports the client's current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// poisonLocked transitions the client to Poisoned. Caller must hold mu.
func (c *Client) poisonLocked(err error) error {
	c.state = Poisoned
	c.poisonErr = err
	c.metrics.Poisoned.Set(1)
	return err
}

// Call is shorthand for CallString(typ, path, 0, 0, "").
func (c *Client) Call(typ, path string) (string, error) {
	return c.CallString(typ, path, 0, 0, "")
}

// CallString issues a call whose payload is UTF-8 text and whose reply is
// returned as a string.
func (c *Client) CallString(typ, path string, x, y int32, text string) (string, error) {
	data, err := c.roundTrip(typ, path, x, y, []byte(text))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CallBinary issues a call whose payload is raw bytes (used for writes)
// and whose reply is returned as a string (used to report success).
func (c *Client) CallBinary(typ, path string, x, y int32, data []byte) (string, error) {
	out, err := c.roundTrip(typ, path, x, y, data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CallForBinary issues a call whose payload is UTF-8 text and whose reply
// is copied into out up to its capacity. It returns the number of bytes
// written, or a negative value on error. A reply exceeding len(out) is
// drained from the channel so framing is preserved, and the call fails.
func (c *Client) CallForBinary(typ, path string, x, y int32, text string, out []byte) int64 {
	data, err := c.roundTrip(typ, path, x, y, []byte(text))
	if err != nil {
		return -1
	}
	if len(data) > len(out) {
		// Already fully drained by roundTrip/DecodeResponse; the
		// buffer is simply too small for this reply.
		return -1
	}
	n := copy(out, data)
	return int64(n)
}

// roundTrip performs exactly one write-then-read, poisoning the client
// on any codec failure. It is the only place that touches the streams.
func (c *Client) roundTrip(typ, path string, x, y int32, data []byte) ([]byte, error) {
	c.mu.Lock()
	if c.state == Poisoned {
		err := c.poisonErr
		c.mu.Unlock()
		return nil, err
	}
	c.state = InFlight
	c.mu.Unlock()

	reqID := log.NewRequestID()

	start := time.Now()
	out, err := c.doRoundTrip(typ, path, x, y, data)
	c.metrics.CallLatency.WithLabelValues(typ).Observe(time.Since(start).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.metrics.CallErrors.WithLabelValues(typ, "protocol").Inc()
		if c.log != nil {
			c.log.WithFields(logrus.Fields{"request_id": reqID, "verb": typ, "path": path, "err": err}).Error("ipc call failed, poisoning client")
		}
		return nil, c.poisonLocked(err)
	}
	c.state = Ready
	if c.log != nil {
		c.log.WithFields(logrus.Fields{"request_id": reqID, "verb": typ, "path": path}).Debug("ipc call ok")
	}
	return out, nil
}

func (c *Client) doRoundTrip(typ, path string, x, y int32, data []byte) ([]byte, error) {
	if err := wire.EncodeRequest(c.w, typ, path, x, y, data); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}
	return wire.DecodeResponse(c.r)
}

// Close releases the underlying streams, if they support it.
func (c *Client) Close() error {
	if c.c == nil {
		return nil
	}
	return c.c.Close()
}
