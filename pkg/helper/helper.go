package helper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/config"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/handoff"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/observability"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/security"
	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

// Sender moves a device descriptor to the peer process
type Sender interface {
	Send(dev *mount.Device) error
}

// Helper runs one mount or unmount invocation
type Helper struct {
	cfg *config.Config

	mounter    mount.Mounter
	openDevice func(path string) (*mount.Device, error)
	newSender  func(fd int) Sender
	isMounted  func(target string) (bool, error)

	metrics *observability.Metrics
	audit   *security.Logger
}

// Option customizes a Helper
type Option func(*Helper)

// WithMounter replaces the mount(2)/umount2(2) backend
func WithMounter(m mount.Mounter) Option {
	return func(h *Helper) { h.mounter = m }
}

// WithDeviceOpener replaces how the driver device node is opened
func WithDeviceOpener(open func(path string) (*mount.Device, error)) Option {
	return func(h *Helper) { h.openDevice = open }
}

// WithSenderFactory replaces how the control channel is wrapped
func WithSenderFactory(newSender func(fd int) Sender) Option {
	return func(h *Helper) { h.newSender = newSender }
}

// WithMountChecker replaces the mount table lookup used after a rollback
func WithMountChecker(isMounted func(target string) (bool, error)) Option {
	return func(h *Helper) { h.isMounted = isMounted }
}

// WithMetrics records operation metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Helper) { h.metrics = m }
}

// WithAuditLogger records security audit events
func WithAuditLogger(l *security.Logger) Option {
	return func(h *Helper) { h.audit = l }
}

// NewHelper creates a helper backed by the kernel unless overridden
func NewHelper(cfg *config.Config, opts ...Option) *Helper {
	if cfg == nil {
		cfg = config.Default()
	}
	h := &Helper{
		cfg:        cfg,
		mounter:    mount.NewMounter(),
		openDevice: mount.OpenDevice,
		newSender:  func(fd int) Sender { return handoff.NewChannel(fd) },
		isMounted:  mount.IsMounted,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes req. The returned error is nil on success; utils.ExitCode
// maps it to the process exit status.
func (h *Helper) Run(ctx context.Context, req *MountRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	var err error
	switch req.Mode {
	case ModeUnmount:
		err = h.unmount(req)
	default:
		err = h.mount(req)
	}

	if h.metrics != nil {
		h.metrics.RecordOperation(req.Mode.String(), err, time.Since(start))
	}
	return err
}

// unmount never touches the device node, the options or the channel.
func (h *Helper) unmount(req *MountRequest) error {
	start := time.Now()
	klog.V(2).Infof("Unmounting %s", req.Mountpoint)

	err := h.mounter.Unmount(req.Mountpoint, 0)
	if err != nil {
		err = fmt.Errorf("%w: %w", utils.ErrUnmount, err)
	} else {
		klog.V(2).Infof("Unmounted %s", req.Mountpoint)
	}

	h.audit.LogUnmount(req.Mountpoint, err, time.Since(start))
	return err
}

func (h *Helper) mount(req *MountRequest) error {
	commFD, err := h.cfg.RequireCommFD()
	if err != nil {
		h.audit.LogRejected(security.EventConfigError, err)
		return err
	}

	h.audit.LogMountRequest(h.cfg.DevicePath, req.Mountpoint)
	start := time.Now()

	dev, err := h.openDevice(h.cfg.DevicePath)
	if err != nil {
		h.audit.LogMount(h.cfg.DevicePath, req.Mountpoint, "", err, time.Since(start))
		return err
	}
	defer h.release(dev)

	cleaned := mount.CleanOptions(req.RawOptions)

	seq := mount.NewSequencer(h.mounter, h.cfg.Source, h.cfg.FSType)
	outcome, err := seq.Mount(req.Mountpoint, dev, cleaned)
	h.recordAttempts(outcome)
	h.audit.LogMount(h.cfg.DevicePath, req.Mountpoint, outcome.Tier.Name, err, time.Since(start))
	if err != nil {
		return err
	}

	if err := h.newSender(commFD).Send(dev); err != nil {
		klog.Errorf("Failed to hand off %s descriptor for %s: %s", dev.Path(), req.Mountpoint, utils.DescribeErrno(err))
		if h.metrics != nil {
			h.metrics.RecordHandoff(err)
		}
		h.audit.LogHandoff(req.Mountpoint, commFD, err)
		return h.rollback(req.Mountpoint, dev, err)
	}

	if h.metrics != nil {
		h.metrics.RecordHandoff(nil)
	}
	h.audit.LogHandoff(req.Mountpoint, commFD, nil)
	klog.V(2).Infof("Mounted %s and handed off fd %d", req.Mountpoint, dev.FD())
	return nil
}

// rollback detaches a mount whose descriptor never reached the peer, then
// releases the device. The handoff error is always returned.
func (h *Helper) rollback(target string, dev *mount.Device, cause error) error {
	detachErr := mount.Detach(h.mounter, target)
	if detachErr != nil {
		klog.Errorf("Rollback of %s failed: %s", target, utils.DescribeErrno(detachErr))
	} else {
		h.verifyDetached(target)
	}
	if h.metrics != nil {
		h.metrics.RecordRollback(detachErr)
	}
	h.audit.LogRollback(target, detachErr)

	h.release(dev)

	if detachErr != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", detachErr))
	}
	return cause
}

// verifyDetached warns when the mount table still lists target
func (h *Helper) verifyDetached(target string) {
	if h.isMounted == nil {
		return
	}
	mounted, err := h.isMounted(target)
	if err != nil {
		klog.V(4).Infof("Could not verify detach of %s: %v", target, err)
		return
	}
	if mounted {
		klog.Warningf("%s is still listed as mounted after detach", target)
	}
}

func (h *Helper) release(dev *mount.Device) {
	if err := dev.Close(); err != nil {
		klog.V(4).Infof("Failed to close device: %v", err)
	}
}

func (h *Helper) recordAttempts(outcome *mount.Outcome) {
	if h.metrics == nil || outcome == nil {
		return
	}
	for _, attempt := range outcome.Attempts {
		h.metrics.RecordMountAttempt(attempt.Tier, attempt.Err)
	}
}
