// Package fswatch implements the file-modification watcher from spec §4.A:
// a process-wide registry mapping an absolute path to a callback, built on
// one shared inotify descriptor and registered with a hostctl.Controller's
// I/O-readiness scheduler.
//
// Grounded on original_source/sliceable_routing_switch/file_modification_watcher.c
// and the raw-inotify Go patterns in the retrieval pack
// (other_examples/9098d23d_..._inotify_linux.go.go,
// other_examples/2cf1fcfd_..._watcher_inotify.go.go): inotify is driven
// directly through the stdlib syscall package rather than through
// fsnotify, because the spec's coalescing rule needs the raw
// IN_MODIFY / IN_CLOSE_WRITE bits, which fsnotify's portable Op
// abstraction does not expose separately.
package fswatch

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/nec-oss/sliceengine/internal/hostctl"
	"github.com/nec-oss/sliceengine/internal/logx"
)

// watchMask and errorMask mirror the C core's watch_mask / error_mask
// exactly (spec §4.A).
const (
	watchMask = syscall.IN_MODIFY | syscall.IN_CLOSE_WRITE | syscall.IN_MOVE_SELF | syscall.IN_DELETE_SELF
	errorMask = syscall.IN_MOVE_SELF | syscall.IN_DELETE_SELF | syscall.IN_IGNORED | syscall.IN_Q_OVERFLOW | syscall.IN_UNMOUNT
)

// Callback is invoked once a tracked write-then-close sequence completes.
type Callback func(userData interface{})

type watchEntry struct {
	path       string
	callback   Callback
	userData   interface{}
	descriptor int
	modified   bool
}

// Registry is the process-wide watch registry described in spec §4.A. One
// Registry owns at most one inotify file descriptor, lazily created on the
// first Add.
type Registry struct {
	mu         sync.Mutex
	host       hostctl.Controller
	log        *logx.Logger
	fd         int
	byPath     map[string]*watchEntry
	byWD       map[int]*watchEntry
}

// New creates an empty registry. The inotify descriptor itself is not
// opened until the first successful Add, matching the lazy-init behavior
// of the original C core.
func New(host hostctl.Controller, log *logx.Logger) *Registry {
	if log == nil {
		log = logx.Default
	}
	return &Registry{
		host:   host,
		log:    log,
		fd:     -1,
		byPath: make(map[string]*watchEntry),
		byWD:   make(map[int]*watchEntry),
	}
}

// Add registers path for modification notification. Duplicate paths and a
// nil callback are rejected, matching spec §4.A.
func (r *Registry) Add(path string, cb Callback, userData interface{}) bool {
	if cb == nil {
		r.log.Errorf("fswatch: callback function must be specified (path=%s)", path)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fd < 0 {
		if !r.initLocked() {
			r.log.Errorf("fswatch: failed to initialize inotify")
			return false
		}
	}

	if _, exists := r.byPath[path]; exists {
		r.log.Warnf("fswatch: watch entry already exists (path=%s)", path)
		return false
	}

	wd, err := syscall.InotifyAddWatch(r.fd, path, watchMask)
	if err != nil {
		r.log.Errorf("fswatch: failed to add a watch (path=%s, err=%v)", path, err)
		return false
	}

	entry := &watchEntry{path: path, callback: cb, userData: userData, descriptor: wd}
	r.byPath[path] = entry
	r.byWD[wd] = entry

	return true
}

// Delete unregisters path. If this was the last watch, the shared
// descriptor is torn down and deregistered from the host controller.
func (r *Registry) Delete(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(path, true)
}

func (r *Registry) deleteLocked(path string, rmWatch bool) bool {
	entry, ok := r.byPath[path]
	if !ok {
		r.log.Errorf("fswatch: watch entry does NOT exist (path=%s)", path)
		return false
	}

	ok2 := true
	if rmWatch {
		if _, err := syscall.InotifyRmWatch(r.fd, uint32(entry.descriptor)); err != nil {
			r.log.Errorf("fswatch: failed to remove a watch (path=%s, fd=%d, wd=%d, err=%v)",
				path, r.fd, entry.descriptor, err)
			ok2 = false
		}
	}

	delete(r.byPath, path)
	delete(r.byWD, entry.descriptor)

	if len(r.byPath) == 0 {
		r.teardownLocked()
	}

	return ok2
}

func (r *Registry) initLocked() bool {
	fd, err := syscall.InotifyInit1(syscall.IN_CLOEXEC | syscall.IN_NONBLOCK)
	if err != nil {
		r.log.Errorf("fswatch: inotify_init failed (err=%v)", err)
		return false
	}
	r.fd = fd

	if err := r.host.RegisterFD(fd, r.onReadable, nil); err != nil {
		r.log.Errorf("fswatch: failed to register fd with host controller (err=%v)", err)
		syscall.Close(fd)
		r.fd = -1
		return false
	}
	r.host.SetReadable(fd, true)

	return true
}

func (r *Registry) teardownLocked() {
	r.log.Debugf("fswatch: finalizing file modification watcher")
	r.host.SetReadable(r.fd, false)
	r.host.UnregisterFD(r.fd)
	syscall.Close(r.fd)
	r.fd = -1
	r.byPath = make(map[string]*watchEntry)
	r.byWD = make(map[int]*watchEntry)
}

// onReadable drains every pending inotify event in one pass, exactly as
// spec §4.A describes.
func (r *Registry) onReadable() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fd < 0 {
		return
	}

	buf := make([]byte, syscall.SizeofInotifyEvent*128)
	n, err := syscall.Read(r.fd, buf)
	if err == syscall.EAGAIN {
		// No event pending on the non-blocking descriptor.
		return
	}
	if n <= 0 || err != nil {
		if err == syscall.EINVAL || err == syscall.EINTR {
			r.log.Errorf("fswatch: failed to read events (n=%d, err=%v)", n, err)
			r.teardownLocked()
		} else if err != nil {
			r.log.Warnf("fswatch: failed to read events (n=%d, err=%v)", n, err)
		}
		return
	}

	offset := 0
	for offset+syscall.SizeofInotifyEvent <= n {
		raw := (*syscall.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		wd := int(raw.Wd)
		mask := raw.Mask
		length := int(raw.Len)
		offset += syscall.SizeofInotifyEvent + length

		entry, ok := r.byWD[wd]
		if !ok {
			continue
		}

		if mask&errorMask != 0 {
			r.log.Warnf("fswatch: error event(s) detected (path=%s, mask=%#x)", entry.path, mask)
			r.deleteLocked(entry.path, false)
			continue
		}

		if mask&syscall.IN_MODIFY != 0 {
			r.log.Debugf("fswatch: file modified (path=%s, mask=%#x)", entry.path, mask)
			entry.modified = true
		}

		if entry.modified && mask&syscall.IN_CLOSE_WRITE != 0 {
			r.log.Debugf("fswatch: executing callback (path=%s)", entry.path)
			entry.modified = false
			cb, ud := entry.callback, entry.userData
			r.mu.Unlock()
			cb(ud)
			r.mu.Lock()
		}
	}
}

// String is a small diagnostic helper for tests/log lines.
func (r *Registry) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fmt.Sprintf("fswatch.Registry{fd=%d, watches=%d}", r.fd, len(r.byPath))
}
