package mount

import (
	"fmt"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

const (
	// DefaultSource is the mount source recorded in the mount table
	DefaultSource = "rclone"

	// DefaultFSType is the filesystem type passed to mount(2)
	DefaultFSType = "fuse"

	// StrictFlags disallow set-uid binaries and device nodes on the mount
	StrictFlags uintptr = unix.MS_NOSUID | unix.MS_NODEV
)

// Mounter wraps the mount(2) and umount2(2) primitives
type Mounter interface {
	// Mount attaches a filesystem of fsType at target
	Mount(source, target, fsType string, flags uintptr, data string) error

	// Unmount detaches the filesystem at target
	Unmount(target string, flags int) error
}

// mounter implements Mounter with direct system calls
type mounter struct {
	mountFn   func(source, target, fsType string, flags uintptr, data string) error
	unmountFn func(target string, flags int) error
}

// NewMounter creates a Mounter backed by the kernel
func NewMounter() Mounter {
	return &mounter{
		mountFn:   unix.Mount,
		unmountFn: unix.Unmount,
	}
}

// Mount calls mount(2). The returned error wraps the unix.Errno.
func (m *mounter) Mount(source, target, fsType string, flags uintptr, data string) error {
	klog.V(4).Infof("mount(%q, %q, %q, %#x, %q)", source, target, fsType, flags, data)

	if err := m.mountFn(source, target, fsType, flags, data); err != nil {
		return fmt.Errorf("mount %s: %w", target, err)
	}
	return nil
}

// Unmount calls umount2(2). The returned error wraps the unix.Errno.
func (m *mounter) Unmount(target string, flags int) error {
	klog.V(4).Infof("umount2(%q, %#x)", target, flags)

	if err := m.unmountFn(target, flags); err != nil {
		return fmt.Errorf("umount %s: %w", target, err)
	}
	return nil
}

// Detach lazily detaches target from the namespace. Used to roll back a
// mount whose descriptor never reached its server.
func Detach(m Mounter, target string) error {
	klog.V(2).Infof("Detaching %s", target)
	return m.Unmount(target, unix.MNT_DETACH)
}
