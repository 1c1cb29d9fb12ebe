package mock

import (
	"sync"

	"git.srvlab.io/whiskey/fusermount-shim/pkg/mount"
)

// MockChannel records descriptor handoffs instead of calling sendmsg(2)
type MockChannel struct {
	mu sync.Mutex

	// ChannelFD is the descriptor number the channel was created for
	ChannelFD int

	sendErr error
	sent    []int

	// OnSend runs before the result is returned; lets tests observe state
	// at the moment of handoff
	OnSend func(dev *mount.Device)
}

// NewMockChannel creates a channel that accepts every send
func NewMockChannel() *MockChannel {
	return &MockChannel{ChannelFD: -1}
}

// Send implements the helper's descriptor sender
func (c *MockChannel) Send(dev *mount.Device) error {
	c.mu.Lock()
	c.sent = append(c.sent, dev.FD())
	onSend, err := c.OnSend, c.sendErr
	c.mu.Unlock()

	if onSend != nil {
		onSend(dev)
	}
	return err
}

// SetSendError sets an error to return on Send
func (c *MockChannel) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Sent returns the descriptor numbers passed to Send
func (c *MockChannel) Sent() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent := make([]int, len(c.sent))
	copy(sent, c.sent)
	return sent
}

// Bind records the descriptor number the channel is being used for and
// returns c
func (c *MockChannel) Bind(fd int) *MockChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ChannelFD = fd
	return c
}

// BoundFD returns the descriptor number passed to Bind
func (c *MockChannel) BoundFD() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ChannelFD
}
