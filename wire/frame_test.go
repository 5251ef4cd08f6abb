package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequestFraming(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeRequest(&buf, "write_file", "/a/b", 10, 0, []byte{0x00, 0x01, 0x02, 0x03})
	require.NoError(t, err)

	data := buf.Bytes()
	totalLen := binary.LittleEndian.Uint32(data[0:4])
	assert.Equal(t, int(totalLen), len(data)-4, "total_length must equal every byte after it")

	r := bufio.NewReader(&buf)
	// total_length
	var lenBuf [4]byte
	_, err = r.Read(lenBuf[:])
	require.NoError(t, err)
	assert.EqualValues(t, len(data)-4, binary.LittleEndian.Uint32(lenBuf[:]))
}

func TestEncodeRequestRejectsEmptyVerb(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeRequest(&buf, "", "/a", 0, 0, nil)
	assert.Error(t, err)
}

func TestDecodeResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("1")
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)

	got, err := DecodeResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDecodeResponseEmpty(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 0)
	buf.Write(lenBuf[:])

	got, err := DecodeResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestDecodeResponseNeverPartiallyConsumes(t *testing.T) {
	// declares 10 bytes, but only 3 are available.
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 10)
	buf.Write(lenBuf[:])
	buf.Write([]byte{1, 2, 3})

	_, err := DecodeResponse(bufio.NewReader(&buf))
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeResponseSanityCap(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], MaxFrameLen+1)
	buf.Write(lenBuf[:])

	_, err := DecodeResponse(bufio.NewReader(&buf))
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeRequest(&buf, "write_file", "/a/b", 10, 0, []byte{0x00, 0x01, 0x02, 0x03}))

	req, err := DecodeRequest(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "write_file", req.Verb)
	assert.Equal(t, "/a/b", req.Path)
	assert.EqualValues(t, 10, req.X)
	assert.EqualValues(t, 0, req.Y)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03}, req.Data)
}

func TestDecodeRequestNeverPartiallyConsumes(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 10)
	buf.Write(lenBuf[:])
	buf.Write([]byte{1, 2, 3})

	_, err := DecodeRequest(bufio.NewReader(&buf))
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeResponse(&buf, []byte("1")))

	got, err := DecodeResponse(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)
}

func TestParseEntityType(t *testing.T) {
	for _, n := range []int64{0, 1, 2, 3} {
		et, err := ParseEntityType(n)
		require.NoError(t, err)
		assert.EqualValues(t, n, et)
	}
	_, err := ParseEntityType(4)
	assert.Error(t, err)
}

func TestAttributesMode(t *testing.T) {
	a := Attributes{Type: RegularFile, Writable: true, Size: 7}
	assert.Equal(t, uint32(1), a.Nlink())
	assert.Equal(t, os.FileMode(0755), a.Mode())
}
