package bridgetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendScriptedReply(t *testing.T) {
	b := NewBackend()
	b.On("/a", "exists", Reply{Bytes: []byte("1")})
	c := b.NewClient()

	got, err := c.Call("exists", "/a")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
	assert.Equal(t, 1, b.CallCount("exists"))
}

func TestBackendEchoesWrittenBytes(t *testing.T) {
	b := NewBackend()
	b.OnVerb("write_file", Reply{Bytes: []byte("1")})
	b.OnVerb("read_file", Reply{Fn: func(c Call) []byte {
		// echo back the payload of the most recent write_file
		calls := b.Calls()
		for i := len(calls) - 1; i >= 0; i-- {
			if calls[i].Verb == "write_file" {
				return calls[i].Data
			}
		}
		return nil
	}})
	c := b.NewClient()

	reply, err := c.CallBinary("write_file", "/f", 10, 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "1", reply)

	buf := make([]byte, 16)
	n := c.CallForBinary("read_file", "/f", 0, 16, "", buf)
	require.EqualValues(t, 5, n)
	assert.Equal(t, "hello", string(buf[:n]))

	calls := b.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, int32(10), calls[0].X)
	assert.Equal(t, []byte("hello"), calls[0].Data)
}
