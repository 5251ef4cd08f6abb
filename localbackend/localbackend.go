// Package localbackend is a reference backend: it answers the bridge
// wire protocol by operating on a real directory on local disk. It
// exists so bridgefs can be exercised end-to-end without a bespoke
// backend process.
//
// Writability and existence are determined reactively, from the error
// an actual syscall returns, rather than by inspecting mode bits up
// front.
package localbackend

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bridgefs/bridgefs/wire"
	"github.com/sirupsen/logrus"
)

// Backend serves the wire protocol against files rooted at Root.
type Backend struct {
	Root string
	Log  *logrus.Logger
}

// New returns a Backend rooted at root. root must be an existing
// directory.
func New(root string, log *logrus.Logger) *Backend {
	return &Backend{Root: root, Log: log}
}

// localPath joins the backend's root with the protocol path, cleaning it
// first so ".." components cannot climb above the root. It never
// returns an error.
func (b *Backend) localPath(reqPath string) (string, error) {
	clean := filepath.Clean("/" + reqPath)
	return filepath.Join(b.Root, clean), nil
}

// Serve runs the protocol loop over one duplex stream until r is
// exhausted or a frame is malformed. It returns nil on clean EOF.
func (b *Backend) Serve(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		req, err := wire.DecodeRequest(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		reply := b.dispatch(req)
		if err := wire.EncodeResponse(bw, reply); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
}

func (b *Backend) dispatch(req wire.Request) []byte {
	if b.Log != nil {
		b.Log.WithFields(logrus.Fields{"verb": req.Verb, "path": req.Path}).Debug("backend call")
	}
	path, err := b.localPath(req.Path)
	if err != nil {
		return []byte("0")
	}
	switch req.Verb {
	case "exists":
		return boolReply(b.exists(path))
	case "file_writable":
		return boolReply(b.writable(path))
	case "entity_type":
		return []byte(strconv.Itoa(int(b.entityType(path))))
	case "file_size":
		return []byte(strconv.FormatInt(b.fileSize(path), 10))
	case "read_dir":
		return []byte(b.readDir(path))
	case "read_file":
		return b.readFile(path, req.X, req.Y)
	case "write_file":
		return boolReply(b.writeFile(path, req.X, req.Data) == nil)
	case "create_file":
		return boolReply(b.createFile(path) == nil)
	case "mkdir":
		return boolReply(os.Mkdir(path, 0o755) == nil)
	case "unlink":
		return boolReply(os.Remove(path) == nil)
	case "rmdir":
		return boolReply(os.Remove(path) == nil)
	case "truncate":
		return boolReply(os.Truncate(path, int64(req.X)) == nil)
	case "rename":
		return boolReply(b.rename(path, string(req.Data)) == nil)
	case "rename_exchange":
		return boolReply(b.renameExchange(path, string(req.Data)) == nil)
	default:
		return []byte("0")
	}
}

func boolReply(ok bool) []byte {
	if ok {
		return []byte("1")
	}
	return []byte("0")
}

func (b *Backend) exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// writable probes by opening for writing, the cheapest operation that
// fails the same way a real write would on a read-only file or
// filesystem, instead of decoding permission bits ourselves.
func (b *Backend) writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func (b *Backend) entityType(path string) wire.EntityType {
	fi, err := os.Lstat(path)
	if err != nil {
		return wire.Absent
	}
	switch {
	case fi.IsDir():
		return wire.Directory
	case fi.Mode()&os.ModeSocket != 0:
		return wire.Socket
	default:
		return wire.RegularFile
	}
}

func (b *Backend) fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (b *Backend) readDir(path string) string {
	entries, err := os.ReadDir(path)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return strings.Join(names, "\n")
}

func (b *Backend) readFile(path string, offset, size int32) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, int64(offset))
	if err != nil && n == 0 && err != io.EOF {
		return nil
	}
	return buf[:n]
}

func (b *Backend) writeFile(path string, offset int32, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(data, int64(offset))
	return err
}

func (b *Backend) createFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (b *Backend) rename(oldPath, newReqPath string) error {
	newPath, err := b.localPath(newReqPath)
	if err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

// renameExchange swaps the two endpoints. Plain os.Rename silently
// replaces the destination rather than exchanging, so a true atomic
// swap needs a platform-specific syscall; this reference backend
// approximates it non-atomically via a temporary sibling path, which is
// sufficient for a backend whose atomicity the driver makes no
// assumption about (see DESIGN.md Open Questions).
func (b *Backend) renameExchange(aPath, bReqPath string) error {
	bPath, err := b.localPath(bReqPath)
	if err != nil {
		return err
	}
	tmp := aPath + ".bridgefs-exchange-tmp"
	if err := os.Rename(aPath, tmp); err != nil {
		return err
	}
	if err := os.Rename(bPath, aPath); err != nil {
		_ = os.Rename(tmp, aPath)
		return err
	}
	return os.Rename(tmp, bPath)
}
