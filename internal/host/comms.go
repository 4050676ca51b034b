package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/moosbridge/pkg/moos"
)

// ErrNotConnected is returned when publishing or subscribing before Connect.
var ErrNotConnected = errors.New("not connected to community")

// DefaultInboxSize is the inbox capacity of the comms implementations.
const DefaultInboxSize = 1024

// Comms connects an application to its community.
type Comms interface {
	// Connect joins the community under the given client name.
	Connect(ctx context.Context, client string) error

	// Publish sends a message to every subscriber of its key.
	Publish(ctx context.Context, msg moos.Message) error

	// Subscribe adds variables to the subscription set.
	Subscribe(ctx context.Context, names ...string) error

	// Inbox delivers messages of subscribed variables.
	Inbox() <-chan moos.Message

	// Reconnects signals every re-established connection after the first.
	Reconnects() <-chan struct{}

	// Close leaves the community.
	Close() error
}

// Community is an in-process message bus shared by MemoryComms clients.
type Community struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	members map[*MemoryComms]struct{}
}

// NewCommunity creates an empty community.
func NewCommunity(name string, logger *slog.Logger) *Community {
	if logger == nil {
		logger = slog.Default()
	}
	return &Community{
		name:    name,
		logger:  logger,
		members: make(map[*MemoryComms]struct{}),
	}
}

// Name returns the community name.
func (c *Community) Name() string {
	return c.name
}

// Join creates a client of the community. The client is not connected
// until Connect is called.
func (c *Community) Join() *MemoryComms {
	return &MemoryComms{
		community:  c,
		subs:       make(map[string]bool),
		inbox:      make(chan moos.Message, DefaultInboxSize),
		reconnects: make(chan struct{}, 1),
	}
}

func (c *Community) add(m *MemoryComms) {
	c.mu.Lock()
	c.members[m] = struct{}{}
	c.mu.Unlock()
}

func (c *Community) remove(m *MemoryComms) {
	c.mu.Lock()
	delete(c.members, m)
	c.mu.Unlock()
}

func (c *Community) publish(msg moos.Message) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for member := range c.members {
		member.deliver(msg)
	}
}

// MemoryComms is a Comms client of an in-process Community.
type MemoryComms struct {
	community *Community

	mu         sync.Mutex
	client     string
	connected  bool
	subs       map[string]bool
	inbox      chan moos.Message
	reconnects chan struct{}
}

var _ Comms = (*MemoryComms)(nil)

func (m *MemoryComms) Connect(ctx context.Context, client string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.client = client
	m.connected = true
	m.mu.Unlock()

	m.community.add(m)
	m.community.logger.Debug("comms connected",
		"community", m.community.name,
		"client", client,
	)
	return nil
}

func (m *MemoryComms) Publish(ctx context.Context, msg moos.Message) error {
	m.mu.Lock()
	connected := m.connected
	if msg.Source == "" {
		msg.Source = m.client
	}
	m.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	m.community.publish(msg)
	return nil
}

func (m *MemoryComms) Subscribe(ctx context.Context, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	for _, name := range names {
		m.subs[name] = true
	}
	return nil
}

func (m *MemoryComms) Inbox() <-chan moos.Message {
	return m.inbox
}

func (m *MemoryComms) Reconnects() <-chan struct{} {
	return m.reconnects
}

func (m *MemoryComms) Close() error {
	m.community.remove(m)

	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// Subscribed reports whether name is in the subscription set.
func (m *MemoryComms) Subscribed(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[name]
}

// SimulateReconnect drops the subscription set and signals a reconnection,
// as a real transport does after losing its server.
func (m *MemoryComms) SimulateReconnect() {
	m.mu.Lock()
	m.subs = make(map[string]bool)
	m.mu.Unlock()

	select {
	case m.reconnects <- struct{}{}:
	default:
	}
}

func (m *MemoryComms) deliver(msg moos.Message) {
	m.mu.Lock()
	subscribed := m.subs[msg.Key]
	m.mu.Unlock()

	if !subscribed {
		return
	}

	select {
	case m.inbox <- msg:
	default:
		m.community.logger.Warn("inbox full, message dropped",
			"client", m.client,
			"key", msg.Key,
		)
	}
}
