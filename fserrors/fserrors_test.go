package fserrors

import (
	"errors"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
)

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want fuse.Status
	}{
		{nil, fuse.OK},
		{NotFound("exists", "/x"), fuse.ENOENT},
		{PermissionDenied("truncate", "/x"), fuse.EACCES},
		{AlreadyExists("rename", "/x"), fuse.Status(syscall.EEXIST)},
		{IO("read_file", "/x", errors.New("boom")), fuse.EIO},
		{Protocol(errors.New("short read")), fuse.EIO},
		{errors.New("unclassified"), fuse.EIO},
	}
	for _, c := range cases {
		got := ToStatus(c.err)
		assert.EqualValues(t, int32(c.want), int32(got), "err=%v", c.err)
	}
}

func TestErrorsIsThroughWrapping(t *testing.T) {
	err := NotFound("getattr", "/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrIO))
}
