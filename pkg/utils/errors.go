package utils

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// Sentinel errors for the failure classes of a helper invocation.
// Use errors.Is() to check for these rather than string matching.
var (
	// ErrUsage indicates no mountpoint could be resolved from the arguments
	ErrUsage = errors.New("usage error")

	// ErrConfig indicates the control channel descriptor was not supplied
	ErrConfig = errors.New("configuration error")

	// ErrDevice indicates the FUSE device node could not be opened
	ErrDevice = errors.New("device open failed")

	// ErrMountExhausted indicates every mount tier was attempted and failed
	ErrMountExhausted = errors.New("all mount attempts failed")

	// ErrHandoff indicates the descriptor could not be sent to the peer
	ErrHandoff = errors.New("descriptor handoff failed")

	// ErrUnmount indicates the unmount primitive failed
	ErrUnmount = errors.New("unmount failed")
)

const (
	// ExitSuccess is returned when the requested operation completed
	ExitSuccess = 0

	// ExitFailure is returned for every fatal failure class
	ExitFailure = 1
)

// ExitCode maps an invocation result to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}

// Errno extracts the underlying system error number, if any.
func Errno(err error) (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

// DescribeErrno renders an error as "errno=N (text)" when it carries a
// system error number, falling back to the plain message otherwise.
func DescribeErrno(err error) string {
	if err == nil {
		return ""
	}
	if errno, ok := Errno(err); ok {
		return fmt.Sprintf("errno=%d (%s)", int(errno), errno.Error())
	}
	return err.Error()
}

// Classify returns the sentinel class of err, or nil if it is unclassified.
func Classify(err error) error {
	for _, class := range []error{ErrUsage, ErrConfig, ErrDevice, ErrMountExhausted, ErrHandoff, ErrUnmount} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

// LogFatal reports a terminal error on the diagnostic stream.
func LogFatal(err error) {
	if err == nil {
		return
	}
	class := Classify(err)
	if class == nil {
		klog.Errorf("[INTERNAL ERROR] %v", err)
		return
	}
	klog.Errorf("%v", err)
}
