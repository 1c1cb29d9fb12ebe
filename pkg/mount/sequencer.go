package mount

import (
	"fmt"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

// Tier is one mount attempt configuration in the fallback sequence
type Tier struct {
	// Name identifies the tier in logs and metrics
	Name string

	// Minimal drops the caller options and sends only the base options
	Minimal bool

	// Flags are the mount(2) flags for this tier
	Flags uintptr
}

// DefaultTiers returns the fallback sequence, most specific first:
// full options with strict flags, full options without flags, then base
// options with strict flags.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "full-strict", Minimal: false, Flags: StrictFlags},
		{Name: "full-relaxed", Minimal: false, Flags: 0},
		{Name: "minimal-strict", Minimal: true, Flags: StrictFlags},
	}
}

// Attempt records one mount(2) call made by the sequencer
type Attempt struct {
	Tier    string
	Options string
	Flags   uintptr
	Err     error
}

// Outcome describes how a sequenced mount ended. Mounted is false when every
// tier failed; Err on the last attempt is then the final kernel error.
type Outcome struct {
	Mounted  bool
	Tier     Tier
	Attempts []Attempt
}

// Sequencer drives the tiered mount attempts for one device
type Sequencer struct {
	mounter Mounter
	source  string
	fsType  string
	tiers   []Tier
}

// NewSequencer creates a sequencer using DefaultTiers
func NewSequencer(mounter Mounter, source, fsType string) *Sequencer {
	if source == "" {
		source = DefaultSource
	}
	if fsType == "" {
		fsType = DefaultFSType
	}
	return &Sequencer{
		mounter: mounter,
		source:  source,
		fsType:  fsType,
		tiers:   DefaultTiers(),
	}
}

// Tiers returns the configured tier sequence
func (s *Sequencer) Tiers() []Tier {
	out := make([]Tier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Mount attempts each tier in order against target and stops at the first
// success. There is no delay between tiers and no tier is retried.
//
// The device is never closed here; the caller owns it on every path.
func (s *Sequencer) Mount(target string, dev *Device, cleaned string) (*Outcome, error) {
	outcome := &Outcome{}

	fd := dev.FD()
	if fd < 0 {
		return outcome, fmt.Errorf("%w: device %s already closed", utils.ErrDevice, dev.Path())
	}

	klog.V(2).Infof("Mount options for %s: [%s]", target, BuildOptionString(fd, cleaned))

	var lastErr error
	for i, tier := range s.tiers {
		opts := BuildOptionString(fd, cleaned)
		if tier.Minimal {
			opts = BaseOptionString(fd)
		}

		klog.V(4).Infof("Mount attempt %d/%d for %s (tier %s, flags %#x, options [%s])",
			i+1, len(s.tiers), target, tier.Name, tier.Flags, opts)

		err := s.mounter.Mount(s.source, target, s.fsType, tier.Flags, opts)
		outcome.Attempts = append(outcome.Attempts, Attempt{
			Tier:    tier.Name,
			Options: opts,
			Flags:   tier.Flags,
			Err:     err,
		})

		if err == nil {
			outcome.Mounted = true
			outcome.Tier = tier
			klog.V(2).Infof("Mounted %s with tier %s after %d attempt(s)", target, tier.Name, i+1)
			return outcome, nil
		}

		lastErr = err
		klog.Warningf("Mount attempt %d/%d (%s) for %s failed: %s",
			i+1, len(s.tiers), tier.Name, target, utils.DescribeErrno(err))
	}

	klog.Errorf("All %d mount attempts failed for %s", len(s.tiers), target)
	return outcome, fmt.Errorf("%w: %s after %d attempts: %w", utils.ErrMountExhausted, target, len(s.tiers), lastErr)
}
