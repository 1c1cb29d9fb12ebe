package mock

import (
	"sync"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
)

// MockDeviceOpener hands out real descriptors on a stand-in node (default
// /dev/null) so that close semantics can be observed without /dev/fuse
type MockDeviceOpener struct {
	mu sync.Mutex

	// Backing is the node actually opened
	Backing string

	openErr error
	opened  []*mount.Device
	paths   []string
}

// NewMockDeviceOpener creates an opener backed by /dev/null
func NewMockDeviceOpener() *MockDeviceOpener {
	return &MockDeviceOpener{Backing: "/dev/null"}
}

// Open matches the signature of mount.OpenDevice
func (o *MockDeviceOpener) Open(path string) (*mount.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paths = append(o.paths, path)
	if o.openErr != nil {
		return nil, o.openErr
	}

	dev, err := mount.OpenDevice(o.Backing)
	if err != nil {
		return nil, err
	}
	o.opened = append(o.opened, dev)
	return dev, nil
}

// SetOpenError sets an error to return on Open
func (o *MockDeviceOpener) SetOpenError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// OpenCalls returns the paths Open was called with
func (o *MockDeviceOpener) OpenCalls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	paths := make([]string, len(o.paths))
	copy(paths, o.paths)
	return paths
}

// Devices returns every device handed out
func (o *MockDeviceOpener) Devices() []*mount.Device {
	o.mu.Lock()
	defer o.mu.Unlock()
	devs := make([]*mount.Device, len(o.opened))
	copy(devs, o.opened)
	return devs
}

// CloseAll releases every device handed out; for test cleanup
func (o *MockDeviceOpener) CloseAll() {
	for _, dev := range o.Devices() {
		_ = dev.Close()
	}
}
