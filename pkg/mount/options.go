package mount

import (
	"fmt"
	"strings"
)

const (
	// RootMode is the file mode of the mount root (S_IFDIR, octal)
	RootMode = "40000"

	// RootUserID and RootGroupID own the mount
	RootUserID  = 0
	RootGroupID = 0
)

// strippedOptionPrefixes are rejected by some older FUSE kernel builds.
var strippedOptionPrefixes = []string{
	"subtype=",
	"fsname=",
}

// CleanOptions removes the subtype and fsname options from a comma-separated
// option string. The relative order of all other options is preserved and
// options are never split internally. Empty segments are dropped.
func CleanOptions(raw string) string {
	if raw == "" {
		return ""
	}

	kept := make([]string, 0, strings.Count(raw, ",")+1)
	for _, opt := range strings.Split(raw, ",") {
		if opt == "" || isStrippedOption(opt) {
			continue
		}
		kept = append(kept, opt)
	}
	return strings.Join(kept, ",")
}

func isStrippedOption(opt string) bool {
	for _, prefix := range strippedOptionPrefixes {
		if strings.HasPrefix(opt, prefix) {
			return true
		}
	}
	return false
}

// BaseOptionString returns the options every mount carries: the device
// descriptor, the root mode and the owning user and group.
func BaseOptionString(fd int) string {
	return fmt.Sprintf("fd=%d,rootmode=%s,user_id=%d,group_id=%d", fd, RootMode, RootUserID, RootGroupID)
}

// BuildOptionString synthesizes the option string passed to the driver.
// The key set and ordering are fixed: fd, rootmode, user_id, group_id, then
// the cleaned caller options if any.
func BuildOptionString(fd int, cleaned string) string {
	base := BaseOptionString(fd)
	if cleaned == "" {
		return base
	}
	return base + "," + cleaned
}
