// ABOUTME: Client-side lifecycle controller
// ABOUTME: Wraps clientsession.Client with the same start/stop idempotency guard as Server
package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/loopstream/loopstream-go/internal/clientsession"
	"github.com/loopstream/loopstream-go/internal/wire"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Addr is the server's "host:port".
	Addr string
	// MaxDatagram bounds the receive buffer for incoming audio segments.
	// Zero selects clientsession.DefaultMaxDatagram.
	MaxDatagram int
}

// Client is the lifecycle controller for the client side of the engine
// (C7). It mirrors Server's start/stop idempotency: Start only succeeds
// while stopped, and Stop is safe to call multiple times.
type Client struct {
	config ClientConfig
	sink   clientsession.Sink

	instanceID uuid.UUID

	mu      sync.Mutex
	running bool
	driver  *clientsession.Client
}

// NewClient creates a stopped Client. sink receives decoded audio once
// streaming begins.
func NewClient(cfg ClientConfig, sink clientsession.Sink) *Client {
	return &Client{config: cfg, sink: sink, instanceID: uuid.New()}
}

// Start performs the handshake (GetFormat, StartPlay, UDP hello) and
// begins streaming. Re-entry while running is a programming error.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("engine: client %s already running", c.instanceID)
	}

	driver, err := clientsession.Connect(clientsession.Config{
		Addr:        c.config.Addr,
		MaxDatagram: c.config.MaxDatagram,
	}, c.sink)
	if err != nil {
		return fmt.Errorf("engine: client %s connect: %w", c.instanceID, err)
	}

	c.driver = driver
	c.running = true
	return nil
}

// Stop tears down the session and releases the playback sink. Idempotent;
// safe to call even if Start never succeeded.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.driver.Stop()
	c.running = false
}

// ID returns the session id assigned by the server. Zero before Start
// succeeds.
func (c *Client) ID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return 0
	}
	return c.driver.ID()
}

// Format returns the negotiated audio format. Zero value before Start
// succeeds.
func (c *Client) Format() wire.AudioFormat {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.driver == nil {
		return wire.AudioFormat{}
	}
	return c.driver.Format()
}

// IsRunning reports whether the client is currently streaming.
func (c *Client) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.driver.IsRunning()
}
