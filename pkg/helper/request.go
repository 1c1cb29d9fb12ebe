// Package helper interprets a fusermount-style invocation and sequences the
// mount, handoff and unmount steps.
package helper

import (
	"fmt"

	"k8s.io/klog/v2"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/utils"
)

// Mode selects the operation of an invocation
type Mode int

const (
	// ModeMount establishes a mount and hands off the device descriptor
	ModeMount Mode = iota

	// ModeUnmount removes an existing mount
	ModeUnmount
)

func (m Mode) String() string {
	switch m {
	case ModeMount:
		return "mount"
	case ModeUnmount:
		return "unmount"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MountRequest is the parsed intent of one invocation
type MountRequest struct {
	Mode       Mode
	Mountpoint string

	// RawOptions is the argument of -o; HasOptions tells an empty -o ""
	// apart from no -o at all
	RawOptions string
	HasOptions bool
}

// Usage is printed on a usage error
const Usage = "usage: fusermount3 [-u] [-o options] [--] mountpoint"

// ParseArgs interprets the arguments (without the program name), scanning
// left to right:
//
//   - "-u" selects unmount and scanning continues
//   - "-o X" captures X as the raw options and scanning continues
//   - "--" makes the following argument, if any, the mountpoint and stops
//   - any argument not starting with '-' is the mountpoint and stops
//   - any other argument starting with '-' is ignored
//
// A later -o silently replaces an earlier one.
func ParseArgs(args []string) (*MountRequest, error) {
	req := &MountRequest{Mode: ModeMount}
	resolved := false

scan:
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-u":
			req.Mode = ModeUnmount
		case arg == "-o" && i+1 < len(args):
			if req.HasOptions {
				klog.V(4).Infof("Option string %q replaced by %q", req.RawOptions, args[i+1])
			}
			i++
			req.RawOptions = args[i]
			req.HasOptions = true
		case arg == "--":
			if i+1 < len(args) {
				req.Mountpoint = args[i+1]
				resolved = true
			}
			break scan
		case len(arg) == 0 || arg[0] != '-':
			req.Mountpoint = arg
			resolved = true
			break scan
		default:
			klog.V(4).Infof("Ignoring unknown argument %q", arg)
		}
	}

	if !resolved || req.Mountpoint == "" {
		return nil, fmt.Errorf("%w: no mountpoint given", utils.ErrUsage)
	}
	return req, nil
}
