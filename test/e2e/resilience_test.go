package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
	"git.srvlab.io/whiskey/fusermount-shim/test/mock"
)

var _ = Describe("Failure Handling [E2E-02]", func() {
	Context("when the peer is gone before the handoff", func() {
		It("should detach the fresh mount and release the device", func() {
			target := testMountpoint("peer-gone")
			p := newPeer(unixDgram)
			p.closePeer()
			h := newHarness(p.helperFD)

			err := h.helper.Run(context.Background(), parse(target))
			Expect(err).To(MatchError(utils.ErrHandoff))
			Expect(utils.ExitCode(err)).To(Equal(utils.ExitFailure))

			Expect(h.mounter.GetMountCalls()).To(HaveLen(1))
			unmounts := h.mounter.GetUnmountCalls()
			Expect(unmounts).To(HaveLen(1))
			Expect(unmounts[0].Target).To(Equal(target))
			Expect(unmounts[0].Flags).To(Equal(unix.MNT_DETACH))

			mounted, _ := h.mounter.IsMounted(target)
			Expect(mounted).To(BeFalse(), "no orphaned mount")

			devs := h.opener.Devices()
			Expect(devs).To(HaveLen(1))
			Expect(devs[0].Closed()).To(BeTrue())
		})

		It("should report both failures when the detach also fails", func() {
			target := testMountpoint("detach-fails")
			p := newPeer(unixDgram)
			p.closePeer()
			h := newHarness(p.helperFD)
			h.mounter.SetUnmountError(errEINVAL)

			err := h.helper.Run(context.Background(), parse(target))
			Expect(err).To(MatchError(utils.ErrHandoff))
			Expect(err).To(MatchError(errEINVAL))
			Expect(h.opener.Devices()[0].Closed()).To(BeTrue())
		})
	})

	Context("when _FUSE_COMMFD does not name a socket", func() {
		It("should roll back after sendmsg fails", func() {
			target := testMountpoint("not-a-socket")
			fd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = unix.Close(fd) })

			h := newHarness(fd)
			err = h.helper.Run(context.Background(), parse(target))
			Expect(err).To(MatchError(utils.ErrHandoff))
			Expect(err).To(MatchError(unix.ENOTSOCK))
			Expect(h.mounter.GetUnmountCalls()).To(HaveLen(1))
		})
	})

	Context("when every mount tier is refused", func() {
		It("should fail without detaching or handing off", func() {
			target := testMountpoint("refused")
			p := newPeer(unixStream)
			h := newHarness(p.helperFD)
			h.mounter.SetMountErrors(errEINVAL, errEPERM, errEPERM)

			err := h.helper.Run(context.Background(), parse("-o", "allow_other", target))
			Expect(err).To(MatchError(utils.ErrMountExhausted))
			Expect(err).To(MatchError(errEPERM), "the last kernel error is reported")

			Expect(h.mounter.GetMountCalls()).To(HaveLen(3))
			Expect(h.mounter.GetUnmountCalls()).To(BeEmpty())
			Expect(h.opener.Devices()[0].Closed()).To(BeTrue())

			// Nothing may be waiting on the peer end
			Expect(unix.SetNonblock(p.peerFD, true)).To(Succeed())
			_, _, _, _, err = unix.Recvmsg(p.peerFD, make([]byte, 1), nil, 0)
			Expect(err).To(MatchError(unix.EAGAIN))
		})
	})

	Context("when the device node cannot be opened", func() {
		It("should fail before any mount attempt", func() {
			p := newPeer(unixStream)
			h := newHarness(p.helperFD)
			h.opener.Backing = "/nonexistent/fuse"

			err := h.helper.Run(context.Background(), parse(testMountpoint("no-device")))
			Expect(err).To(MatchError(utils.ErrDevice))
			Expect(err).To(MatchError(unix.ENOENT))
			Expect(h.mounter.GetMountCalls()).To(BeEmpty())
		})
	})

	Context("when _FUSE_COMMFD is missing", func() {
		It("should refuse to mount", func() {
			h := newUnmountHarness(mock.NewMockMounter())

			err := h.helper.Run(context.Background(), parse(testMountpoint("no-commfd")))
			Expect(err).To(MatchError(utils.ErrConfig))
			Expect(h.opener.OpenCalls()).To(BeEmpty())
			Expect(h.mounter.GetMountCalls()).To(BeEmpty())
		})
	})
})
