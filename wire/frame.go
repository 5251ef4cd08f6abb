// Package wire implements the length-prefixed binary frame protocol used
// between the driver and the out-of-process backend.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameLen is the sanity cap on any length declared in a frame. A
// declared length beyond this is treated as a protocol error rather than
// an attempt to allocate an unbounded buffer.
const MaxFrameLen = 64 << 20 // 64 MiB

// ProtocolError reports a malformed or truncated frame. It is fatal to
// the connection that produced it: callers must treat the client that
// surfaced it as poisoned.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protoErrf(op, format string, args ...any) error {
	return &ProtocolError{Op: op, Err: fmt.Errorf(format, args...)}
}

// EntityType is the backend's classification of a path. It is the only
// ground truth for existence; the driver never caches it.
type EntityType uint8

const (
	Absent EntityType = iota
	RegularFile
	Socket
	Directory
)

func (t EntityType) String() string {
	switch t {
	case Absent:
		return "absent"
	case RegularFile:
		return "file"
	case Socket:
		return "socket"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("EntityType(%d)", uint8(t))
	}
}

// ParseEntityType converts the backend's decimal reply into an
// EntityType. Any value outside 0..3 is reported as an error so callers
// can translate it to IoError per the "any other reply" rule.
func ParseEntityType(n int64) (EntityType, error) {
	if n < int64(Absent) || n > int64(Directory) {
		return Absent, fmt.Errorf("wire: entity_type out of range: %d", n)
	}
	return EntityType(n), nil
}

// EncodeRequest writes one RequestFrame to w: a little-endian total
// length, the verb name, the subject path, two verb-specific integer
// parameters, and a verb-specific payload. The frame is built entirely
// in a function-local buffer and never retained past this call.
func EncodeRequest(w io.Writer, typ, path string, x, y int32, data []byte) error {
	if len(typ) == 0 {
		return fmt.Errorf("wire: empty verb")
	}
	if uint64(len(data)) > uint64(1<<31-1) {
		return fmt.Errorf("wire: data_len exceeds limit: %d", len(data))
	}

	body := make([]byte, 0, 4+len(typ)+4+len(path)+4+4+4+len(data))
	body = appendLenPrefixed(body, []byte(typ))
	body = appendLenPrefixed(body, []byte(path))
	body = appendU32(body, uint32(int32(x)))
	body = appendU32(body, uint32(int32(y)))
	body = appendLenPrefixed(body, data)

	var totalLen [4]byte
	binary.LittleEndian.PutUint32(totalLen[:], uint32(len(body)))

	if _, err := w.Write(totalLen[:]); err != nil {
		return fmt.Errorf("wire: write total_length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendLenPrefixed(b, v []byte) []byte {
	b = appendU32(b, uint32(len(v)))
	return append(b, v...)
}

// DecodeResponse reads one ResponseFrame from r: a little-endian length
// followed by exactly that many bytes. It never partially consumes a
// frame — either the full payload is read or a *ProtocolError is
// returned.
func DecodeResponse(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, protoErrf("read response_len", "%w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameLen {
		return nil, protoErrf("read response body", "declared length %d exceeds sanity cap %d", n, MaxFrameLen)
	}
	if n == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, protoErrf("read response body", "%w", err)
	}
	return payload, nil
}

// Request is one decoded RequestFrame, as a backend-side implementation
// sees it.
type Request struct {
	Verb string
	Path string
	X, Y int32
	Data []byte
}

// DecodeRequest reads one RequestFrame from r, the mirror image of
// EncodeRequest. It is used by backend-side implementations (a real
// backend process, or a test double standing in for one); the driver
// itself never calls it.
func DecodeRequest(r *bufio.Reader) (Request, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, protoErrf("read total_length", "%w", err)
	}
	total := binary.LittleEndian.Uint32(lenBuf[:])
	if total > MaxFrameLen {
		return Request{}, protoErrf("read frame body", "declared length %d exceeds sanity cap %d", total, MaxFrameLen)
	}
	body := make([]byte, total)
	if _, err := io.ReadFull(r, body); err != nil {
		return Request{}, protoErrf("read frame body", "%w", err)
	}

	pos := 0
	readU32 := func() (uint32, error) {
		if pos+4 > len(body) {
			return 0, fmt.Errorf("truncated frame at offset %d", pos)
		}
		v := binary.LittleEndian.Uint32(body[pos : pos+4])
		pos += 4
		return v, nil
	}
	readBytes := func(n uint32) ([]byte, error) {
		if pos+int(n) > len(body) {
			return nil, fmt.Errorf("truncated frame at offset %d", pos)
		}
		v := body[pos : pos+int(n)]
		pos += int(n)
		return v, nil
	}

	typeLen, err := readU32()
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	typ, err := readBytes(typeLen)
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	pathLen, err := readU32()
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	path, err := readBytes(pathLen)
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	xu, err := readU32()
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	yu, err := readU32()
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	dataLen, err := readU32()
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}
	data, err := readBytes(dataLen)
	if err != nil {
		return Request{}, protoErrf("decode frame", "%w", err)
	}

	return Request{
		Verb: string(typ),
		Path: string(path),
		X:    int32(xu),
		Y:    int32(yu),
		Data: append([]byte(nil), data...),
	}, nil
}

// EncodeResponse writes one ResponseFrame to w, the mirror image of
// DecodeResponse: a little-endian length followed by payload.
func EncodeResponse(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write response_len: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write response body: %w", err)
	}
	return nil
}
