package mount

import (
	"fmt"

	"github.com/moby/sys/mountinfo"
	"k8s.io/klog/v2"
)

// MountInfo represents a single mount table entry
type MountInfo struct {
	// Source is the mount source (e.g. "rclone")
	Source string

	// Target is the mount point path
	Target string

	// FSType is the filesystem type (e.g. "fuse")
	FSType string

	// Options are the per-mount options
	Options string

	// SuperOptions are the per-superblock options, where fd= and rootmode= appear
	SuperOptions string
}

// IsMounted reports whether target is currently a mount point
func IsMounted(target string) (bool, error) {
	mounted, err := mountinfo.Mounted(target)
	if err != nil {
		return false, fmt.Errorf("failed to check mount state of %s: %w", target, err)
	}
	klog.V(5).Infof("Mount state of %s: mounted=%v", target, mounted)
	return mounted, nil
}

// FindMount returns the topmost mount table entry for target
func FindMount(target string) (*MountInfo, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(target))
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}
	if len(mounts) == 0 {
		return nil, fmt.Errorf("mount point not found: %s", target)
	}

	info := ConvertMobyMount(mounts[len(mounts)-1])
	klog.V(4).Infof("Found mount info for %s: source=%s, fstype=%s, options=%s",
		target, info.Source, info.FSType, info.Options)
	return &info, nil
}

// ConvertMobyMount converts moby/sys/mountinfo.Info to our MountInfo type
func ConvertMobyMount(m *mountinfo.Info) MountInfo {
	return MountInfo{
		Source:       m.Source,
		Target:       m.Mountpoint,
		FSType:       m.FSType,
		Options:      m.Options,
		SuperOptions: m.VFSOptions,
	}
}
