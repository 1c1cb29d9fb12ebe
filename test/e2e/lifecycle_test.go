package e2e

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
)

var _ = Describe("Mount Lifecycle [E2E-01]", func() {
	It("should mount, hand off the device and unmount", func() {
		target := testMountpoint("lifecycle")
		p := newPeer(unixStream)
		h := newHarness(p.helperFD)

		By("Step 1: Mounting with rclone-style options")
		err := h.helper.Run(context.Background(),
			parse("-o", "subtype=fuse.rclone,fsname=remote:,allow_other", "--", target))
		Expect(err).NotTo(HaveOccurred())

		calls := h.mounter.GetMountCalls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Source).To(Equal(mount.DefaultSource))
		Expect(calls[0].FSType).To(Equal(mount.DefaultFSType))
		Expect(calls[0].Flags).To(Equal(mount.StrictFlags))
		Expect(calls[0].Data).To(MatchRegexp(`^fd=\d+,rootmode=40000,user_id=0,group_id=0,allow_other$`))
		Expect(calls[0].Data).NotTo(ContainSubstring("subtype="))
		Expect(calls[0].Data).NotTo(ContainSubstring("fsname="))

		By("Step 2: Receiving the descriptor on the peer end")
		fd := p.receive()
		Expect(isBackingNode(fd, h.opener.Backing)).To(BeTrue(), "peer should hold the opened device")

		By("Step 3: Verifying the helper released its own copy")
		devs := h.opener.Devices()
		Expect(devs).To(HaveLen(1))
		Expect(devs[0].Closed()).To(BeTrue())
		Expect(isBackingNode(fd, h.opener.Backing)).To(BeTrue(), "peer copy survives the helper's close")

		mounted, err := h.mounter.IsMounted(target)
		Expect(err).NotTo(HaveOccurred())
		Expect(mounted).To(BeTrue())

		By("Step 4: Unmounting")
		u := newUnmountHarness(h.mounter)
		err = u.helper.Run(context.Background(), parse("-u", target))
		Expect(err).NotTo(HaveOccurred())
		Expect(u.opener.OpenCalls()).To(BeEmpty(), "unmount never opens the device")

		unmounts := h.mounter.GetUnmountCalls()
		Expect(unmounts).To(HaveLen(1))
		Expect(unmounts[0].Target).To(Equal(target))
		Expect(unmounts[0].Flags).To(Equal(0))

		mounted, _ = h.mounter.IsMounted(target)
		Expect(mounted).To(BeFalse())
		klog.Infof("Lifecycle complete for %s", target)
	})

	It("should fall back to the minimal option string", func() {
		target := testMountpoint("fallback")
		p := newPeer(unixStream)
		h := newHarness(p.helperFD)
		h.mounter.SetMountErrors(errEINVAL, errEINVAL, nil)

		Expect(h.helper.Run(context.Background(), parse("-o", "allow_other,default_permissions", target))).To(Succeed())

		calls := h.mounter.GetMountCalls()
		Expect(calls).To(HaveLen(3))
		Expect(calls[1].Flags).To(BeZero())
		Expect(calls[2].Data).To(MatchRegexp(`^fd=\d+,rootmode=40000,user_id=0,group_id=0$`))

		fd := p.receive()
		Expect(isBackingNode(fd, h.opener.Backing)).To(BeTrue())
	})
})
