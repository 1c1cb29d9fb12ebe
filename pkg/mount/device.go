package mount

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

// DefaultDevicePath is the FUSE driver device node
const DefaultDevicePath = "/dev/fuse"

// Device is an open descriptor on the FUSE driver device node.
//
// Close releases the descriptor exactly once; later calls are no-ops. A
// descriptor handed to a peer over SCM_RIGHTS is duplicated by the kernel,
// so closing the local copy never invalidates the peer's.
type Device struct {
	mu   sync.Mutex
	fd   int
	path string
}

// OpenDevice opens the device node read-write with close-on-exec set.
func OpenDevice(path string) (*Device, error) {
	klog.V(4).Infof("Opening FUSE device %s", path)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", utils.ErrDevice, path, err)
	}

	klog.V(4).Infof("Opened FUSE device %s as fd %d", path, fd)
	return NewDevice(fd, path), nil
}

// NewDevice adopts an already open descriptor.
func NewDevice(fd int, path string) *Device {
	return &Device{fd: fd, path: path}
}

// FD returns the descriptor number, or -1 once closed.
func (d *Device) FD() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fd
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// Closed reports whether the descriptor has been released.
func (d *Device) Closed() bool {
	return d.FD() < 0
}

// Close releases the local descriptor.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fd < 0 {
		return nil
	}
	fd := d.fd
	d.fd = -1

	klog.V(5).Infof("Closing FUSE device fd %d", fd)
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s (fd %d): %w", d.path, fd, err)
	}
	return nil
}
