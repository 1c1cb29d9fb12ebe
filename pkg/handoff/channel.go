// Package handoff passes the FUSE device descriptor to the process that
// requested the mount.
//
// The requesting process creates a Unix socket pair before exec and names
// one end in the _FUSE_COMMFD environment variable. The descriptor travels
// as a single SCM_RIGHTS control message attached to a one-byte payload;
// the peer is expected to read exactly that shape.
package handoff

import (
	"fmt"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

// payload is the message body accompanying the rights block
var payload = []byte{0}

// Channel is the pre-established control socket to the peer
type Channel struct {
	fd int
}

// NewChannel wraps the control socket descriptor. The channel does not own
// the socket and never closes it.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// FD returns the control socket descriptor
func (c *Channel) FD() int {
	return c.fd
}

// Send moves the device descriptor into the channel. The kernel installs a
// duplicate in the peer; the caller keeps (and later closes) its own copy.
func (c *Channel) Send(dev *mount.Device) error {
	fd := dev.FD()
	if fd < 0 {
		return fmt.Errorf("%w: device %s already closed", utils.ErrHandoff, dev.Path())
	}
	return c.SendFD(fd)
}

// SendFD transmits fd as ancillary rights data
func (c *Channel) SendFD(fd int) error {
	if c.fd < 0 {
		return fmt.Errorf("%w: invalid channel descriptor %d", utils.ErrHandoff, c.fd)
	}

	klog.V(4).Infof("Sending fd %d over channel fd %d", fd, c.fd)

	rights := unix.UnixRights(fd)
	if err := unix.Sendmsg(c.fd, payload, rights, nil, 0); err != nil {
		return fmt.Errorf("%w: sendmsg on fd %d: %w", utils.ErrHandoff, c.fd, err)
	}

	klog.V(2).Infof("Handed off fd %d over channel fd %d", fd, c.fd)
	return nil
}

// Receive reads one handoff message from sock and returns the descriptor it
// carries. It is the peer side of SendFD.
func Receive(sock int) (int, error) {
	buf := make([]byte, len(payload))
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(sock, buf, oob, 0)
	if err != nil {
		return -1, fmt.Errorf("recvmsg on fd %d: %w", sock, err)
	}
	if n != len(payload) {
		return -1, fmt.Errorf("unexpected payload length %d", n)
	}

	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, fmt.Errorf("failed to parse control message: %w", err)
	}
	if len(msgs) != 1 {
		return -1, fmt.Errorf("expected 1 control message, got %d", len(msgs))
	}

	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil {
		return -1, fmt.Errorf("failed to parse rights: %w", err)
	}
	if len(fds) != 1 {
		for _, fd := range fds {
			_ = unix.Close(fd)
		}
		return -1, fmt.Errorf("expected 1 descriptor, got %d", len(fds))
	}
	return fds[0], nil
}
