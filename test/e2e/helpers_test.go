package e2e

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/config"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/handoff"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/helper"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/security"
	"git.srvlab.io/whiskey/fusermount-shim/test/mock"
)

// Socket types used for the control channel
const (
	unixStream = unix.SOCK_STREAM
	unixDgram  = unix.SOCK_DGRAM
)

// Kernel errors injected into the mock mounter
var (
	errEINVAL error = unix.EINVAL
	errEPERM  error = unix.EPERM
)

// peer is the requesting process's side of the control channel. helperFD is
// what _FUSE_COMMFD would name.
type peer struct {
	helperFD int
	peerFD   int
}

// newPeer creates a connected socket pair. Both ends are closed when the
// current test finishes.
func newPeer(sockType int) *peer {
	fds, err := unix.Socketpair(unix.AF_UNIX, sockType|unix.SOCK_CLOEXEC, 0)
	Expect(err).NotTo(HaveOccurred(), "socketpair")

	p := &peer{helperFD: fds[0], peerFD: fds[1]}
	DeferCleanup(func() {
		_ = unix.Close(p.helperFD)
		p.closePeer()
	})
	return p
}

// closePeer simulates the requesting process exiting before the handoff
func (p *peer) closePeer() {
	if p.peerFD >= 0 {
		_ = unix.Close(p.peerFD)
		p.peerFD = -1
	}
}

// receive reads the handed-off descriptor. The caller owns the result; it is
// closed when the current test finishes.
func (p *peer) receive() int {
	fd, err := handoff.Receive(p.peerFD)
	Expect(err).NotTo(HaveOccurred(), "peer should receive a descriptor")
	DeferCleanup(func() { _ = unix.Close(fd) })
	return fd
}

// harness wires a helper to mock kernel interfaces and the real handoff
// channel
type harness struct {
	mounter *mock.MockMounter
	opener  *mock.MockDeviceOpener
	cfg     *config.Config
	helper  *helper.Helper
}

func newHarness(commFD int) *harness {
	return buildHarness(mock.NewMockMounter(), &commFD)
}

// newUnmountHarness shares m with an earlier mount harness. Unmount needs no
// control channel, so _FUSE_COMMFD is left unset.
func newUnmountHarness(m *mock.MockMounter) *harness {
	return buildHarness(m, nil)
}

func buildHarness(m *mock.MockMounter, commFD *int) *harness {
	cfg := config.Default()
	cfg.CommFD = commFD

	h := &harness{
		mounter: m,
		opener:  mock.NewMockDeviceOpener(),
		cfg:     cfg,
	}
	DeferCleanup(h.opener.CloseAll)

	h.helper = helper.NewHelper(cfg,
		helper.WithMounter(h.mounter),
		helper.WithDeviceOpener(h.opener.Open),
		helper.WithMountChecker(h.mounter.IsMounted),
		helper.WithMetrics(metrics),
		helper.WithAuditLogger(security.NewLogger(true)),
	)
	return h
}

// testMountpoint creates a unique mountpoint name for the current test
func testMountpoint(name string) string {
	return fmt.Sprintf("/mnt/%s-%s", testRunID, name)
}

// parse builds a request the way the command line would
func parse(args ...string) *helper.MountRequest {
	req, err := helper.ParseArgs(args)
	Expect(err).NotTo(HaveOccurred())
	return req
}

// isBackingNode reports whether fd refers to the node the mock opener hands
// out
func isBackingNode(fd int, backing string) bool {
	var got, want unix.Stat_t
	if err := unix.Fstat(fd, &got); err != nil {
		return false
	}
	if err := unix.Stat(backing, &want); err != nil {
		return false
	}
	return got.Rdev == want.Rdev
}
