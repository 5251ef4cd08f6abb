package bridge

import (
	"context"
	"syscall"

	"github.com/bridgefs/bridgefs/fserrors"
	"github.com/bridgefs/bridgefs/ipc"
	"github.com/bridgefs/bridgefs/wire"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// handle is the fs.FileHandle returned by Node.Open and Node.Create. It
// holds no state beyond the path and a borrowed *ipc.Client: every
// Read/Write round-trips to the backend independently.
type handle struct {
	client *ipc.Client
	path   string
}

var (
	_ fs.FileHandle = (*handle)(nil)
	_ fs.FileReader = (*handle)(nil)
	_ fs.FileWriter = (*handle)(nil)
)

func newHandle(client *ipc.Client, path string) fs.FileHandle {
	return &handle{client: client, path: path}
}

// Read answers a kernel read upcall. A handle outlives the Open call
// that produced it, so this rechecks the backend's classification of
// the path before issuing read_file — a file deleted after Open must
// still surface as ENOENT here rather than be treated as a short read.
// Short replies past that check are returned as-is rather than padded
// or retried.
func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	et, err := entityTypeAt(h.client, h.path)
	if err != nil {
		return nil, fserrors.ToErrno(err)
	}
	if et == wire.Absent {
		return nil, syscall.ENOENT
	}
	n := h.client.CallForBinary("read_file", h.path, int32(off), int32(len(dest)), "", dest)
	if n < 0 {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n]), 0
}

// Write answers a kernel write upcall: the kernel buffer is forwarded
// verbatim as the binary payload, after the same existence recheck Read
// performs. Partial writes are not modelled — "1" means the full
// requested size was written, anything else is an error.
func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	et, err := entityTypeAt(h.client, h.path)
	if err != nil {
		return 0, fserrors.ToErrno(err)
	}
	if et == wire.Absent {
		return 0, syscall.ENOENT
	}
	reply, err := h.client.CallBinary("write_file", h.path, int32(off), 0, data)
	if err != nil {
		return 0, fserrors.ToErrno(fserrors.IO("write_file", h.path, err))
	}
	if reply != "1" {
		return 0, syscall.EIO
	}
	return uint32(len(data)), 0
}
