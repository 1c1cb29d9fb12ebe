package mock

import (
	"sync"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
)

// MockMounter is a mock implementation of mount.Mounter for testing
type MockMounter struct {
	mu sync.RWMutex

	// Mounted filesystems: target path -> option string
	mounted map[string]string

	// Error injection: mountErrs are consumed one per Mount call, the last
	// entry repeating once exhausted
	mountErrs  []error
	unmountErr error

	// Call tracking
	mountCalls   []MountCall
	unmountCalls []UnmountCall
}

// MountCall tracks a Mount operation
type MountCall struct {
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
}

// UnmountCall tracks an Unmount operation
type UnmountCall struct {
	Target string
	Flags  int
}

// NewMockMounter creates a new mock mounter
func NewMockMounter() *MockMounter {
	return &MockMounter{
		mounted: make(map[string]string),
	}
}

// Mount implements mount.Mounter
func (m *MockMounter) Mount(source, target, fsType string, flags uintptr, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mountCalls = append(m.mountCalls, MountCall{
		Source: source,
		Target: target,
		FSType: fsType,
		Flags:  flags,
		Data:   data,
	})

	if err := m.nextMountErr(len(m.mountCalls) - 1); err != nil {
		return err
	}

	m.mounted[target] = data
	return nil
}

func (m *MockMounter) nextMountErr(idx int) error {
	if len(m.mountErrs) == 0 {
		return nil
	}
	if idx >= len(m.mountErrs) {
		idx = len(m.mountErrs) - 1
	}
	return m.mountErrs[idx]
}

// Unmount implements mount.Mounter
func (m *MockMounter) Unmount(target string, flags int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unmountCalls = append(m.unmountCalls, UnmountCall{Target: target, Flags: flags})

	if m.unmountErr != nil {
		return m.unmountErr
	}

	delete(m.mounted, target)
	return nil
}

// Test helper methods

// SetMountErrors scripts the result of successive Mount calls
func (m *MockMounter) SetMountErrors(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mountErrs = errs
}

// SetUnmountError sets an error to return on Unmount operations
func (m *MockMounter) SetUnmountError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmountErr = err
}

// GetMountCalls returns the history of Mount calls
func (m *MockMounter) GetMountCalls() []MountCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]MountCall, len(m.mountCalls))
	copy(calls, m.mountCalls)
	return calls
}

// GetUnmountCalls returns the history of Unmount calls
func (m *MockMounter) GetUnmountCalls() []UnmountCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]UnmountCall, len(m.unmountCalls))
	copy(calls, m.unmountCalls)
	return calls
}

// IsMounted checks if a path is currently mounted; matches the signature of
// mount.IsMounted so it can be injected as the mount table checker
func (m *MockMounter) IsMounted(path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, mounted := m.mounted[path]
	return mounted, nil
}

// Reset clears all state for test isolation
func (m *MockMounter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mounted = make(map[string]string)
	m.mountCalls = nil
	m.unmountCalls = nil
	m.mountErrs = nil
	m.unmountErr = nil
}

var _ mount.Mounter = (*MockMounter)(nil)
