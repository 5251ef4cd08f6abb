// Package bridgetest provides a scripted fake backend for exercising the
// driver without a real out-of-process peer.
package bridgetest

import (
	"bufio"
	"io"
	"sync"

	"github.com/bridgefs/bridgefs/ipc"
	"github.com/bridgefs/bridgefs/wire"
)

// Call records one request the fake backend observed.
type Call struct {
	Verb string
	Path string
	X, Y int32
	Data []byte
}

// Reply is a scripted response for one verb. If Fn is set it is invoked
// with the observed Call to compute the reply dynamically (e.g. echoing
// written bytes back on a read); otherwise Bytes is used verbatim.
type Reply struct {
	Bytes []byte
	Fn    func(Call) []byte
}

// Backend is an in-process fake standing in for the backend process. It
// replies to requests by verb+path, falling back to verb-only, falling
// back to "0".
type Backend struct {
	mu     sync.Mutex
	byPath map[string]map[string]Reply // path -> verb -> reply
	byVerb map[string]Reply
	calls  []Call
}

// NewBackend creates an empty fake backend.
func NewBackend() *Backend {
	return &Backend{
		byPath: make(map[string]map[string]Reply),
		byVerb: make(map[string]Reply),
	}
}

// OnVerb scripts a reply for every request of the given verb, regardless
// of path.
func (b *Backend) OnVerb(verb string, reply Reply) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byVerb[verb] = reply
	return b
}

// On scripts a reply for one (path, verb) pair, taking precedence over
// OnVerb.
func (b *Backend) On(path, verb string, reply Reply) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.byPath[path] == nil {
		b.byPath[path] = make(map[string]Reply)
	}
	b.byPath[path][verb] = reply
	return b
}

// Calls returns every request observed so far, in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallCount returns how many times verb was invoked, across all paths.
func (b *Backend) CallCount(verb string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Verb == verb {
			n++
		}
	}
	return n
}

func (b *Backend) resolve(call Call) []byte {
	b.mu.Lock()
	b.calls = append(b.calls, call)
	var reply Reply
	found := false
	if byVerb, ok := b.byPath[call.Path]; ok {
		if r, ok := byVerb[call.Verb]; ok {
			reply, found = r, true
		}
	}
	if !found {
		if r, ok := b.byVerb[call.Verb]; ok {
			reply, found = r, true
		}
	}
	b.mu.Unlock()

	if !found {
		return []byte("0")
	}
	if reply.Fn != nil {
		return reply.Fn(call)
	}
	return reply.Bytes
}

// serve runs the frame protocol against one end of a duplex stream until
// it's closed or a frame is malformed.
func (b *Backend) serve(r io.Reader, w io.Writer) {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		req, err := wire.DecodeRequest(br)
		if err != nil {
			return
		}
		call := Call{Verb: req.Verb, Path: req.Path, X: req.X, Y: req.Y, Data: req.Data}
		reply := b.resolve(call)
		if err := wire.EncodeResponse(bw, reply); err != nil {
			return
		}
		if err := bw.Flush(); err != nil {
			return
		}
	}
}

// NewClient spawns an in-memory duplex connection between a fresh
// ipc.Client and this backend and returns the client.
func (b *Backend) NewClient() *ipc.Client {
	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	go b.serve(serverR, serverW)
	return ipc.New(clientW, clientR, clientW, nil, nil)
}
