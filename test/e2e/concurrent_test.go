package e2e

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/klog/v2"
)

var _ = Describe("Concurrent Invocations [E2E-03]", func() {
	const numConcurrentMounts = 5

	It("should keep each handoff on its own channel", func() {
		peers := make([]*peer, numConcurrentMounts)
		harnesses := make([]*harness, numConcurrentMounts)
		for i := range peers {
			peers[i] = newPeer(unixStream)
			harnesses[i] = newHarness(peers[i].helperFD)
		}

		var wg sync.WaitGroup
		errChan := make(chan error, numConcurrentMounts)

		By(fmt.Sprintf("Running %d mounts concurrently", numConcurrentMounts))
		for i := 0; i < numConcurrentMounts; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer GinkgoRecover()

				target := testMountpoint(fmt.Sprintf("concurrent-%d", idx))
				if err := harnesses[idx].helper.Run(context.Background(), parse(target)); err != nil {
					errChan <- fmt.Errorf("mount %d failed: %w", idx, err)
					return
				}
				klog.V(2).Infof("Mounted concurrent target %d: %s", idx, target)
				errChan <- nil
			}(i)
		}

		wg.Wait()
		close(errChan)

		var errors []error
		for err := range errChan {
			if err != nil {
				errors = append(errors, err)
			}
		}
		Expect(errors).To(BeEmpty(), "All concurrent mounts should succeed")

		By("Receiving exactly one descriptor per peer")
		for i, p := range peers {
			fd := p.receive()
			Expect(isBackingNode(fd, harnesses[i].opener.Backing)).To(BeTrue())
			Expect(harnesses[i].opener.Devices()).To(HaveLen(1))
			Expect(harnesses[i].opener.Devices()[0].Closed()).To(BeTrue())
		}
	})
})
