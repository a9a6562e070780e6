// Package live talks to Ableton Live through the AbletonOSC remote script.
//
// A Client owns the outbound UDP socket, a listening socket served by a
// background goroutine, and an exact-address handler registry. Request/reply
// exchanges are built on top of it with Query and AwaitMessage, and the Song
// type maps cue-point and transport operations onto those primitives.
package live

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zenibako/cuebridge/messages"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultRemotePort is the port AbletonOSC listens on.
	DefaultRemotePort = 11000
	// DefaultLocalPort is the port AbletonOSC sends replies to.
	DefaultLocalPort = 11001
	// TickDuration is one Live tick (100ms) plus processing overhead.
	// It is the default reply timeout and polling interval.
	TickDuration = 150 * time.Millisecond

	maxPacketSize  = 65535
	readRetryDelay = 10 * time.Millisecond
)

// HandlerFunc receives every message arriving on the address it is registered for.
type HandlerFunc func(address string, args []any)

// Message is a single addressed OSC message, used to build bundles.
type Message struct {
	Address string
	Args    []any
}

// Config describes the remote AbletonOSC endpoint and the local listener.
type Config struct {
	Host       string        // Remote host running Live (default 127.0.0.1)
	Port       int           // Remote AbletonOSC port (default 11000)
	ListenHost string        // Local interface for replies (default 0.0.0.0)
	ListenPort int           // Local reply port (default 11001)
	Timeout    time.Duration // Default reply timeout (default one tick)
	Verbose    bool          // Log every incoming message
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = DefaultRemotePort
	}
	if c.ListenHost == "" {
		c.ListenHost = "0.0.0.0"
	}
	if c.ListenPort == 0 {
		c.ListenPort = DefaultLocalPort
	}
	if c.Timeout <= 0 {
		c.Timeout = TickDuration
	}
	return c
}

// DefaultConfig returns the stock AbletonOSC configuration for a local Live instance.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

type pendingReply struct {
	address string
	reply   chan []any
}

// Client sends OSC messages to AbletonOSC and dispatches its replies.
type Client struct {
	host           string
	port           int
	timeout        time.Duration
	client         *osc.Client
	conn           net.PacketConn
	dispatcher     *dispatcher
	addressBuilder *messages.OSCAddressBuilder
	handlers       *xsync.MapOf[string, HandlerFunc]   // exact address -> handler
	pending        *xsync.MapOf[string, *pendingReply] // request token -> waiter
	addressLocks   *xsync.MapOf[string, chan struct{}] // serialises waits per address
	verbose        atomic.Bool
	stopping       chan struct{}
	served         chan struct{}
	stopOnce       sync.Once
}

// NewClient binds the local reply socket and starts the receive loop.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	listenAddr := net.JoinHostPort(cfg.ListenHost, fmt.Sprintf("%d", cfg.ListenPort))
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind OSC listener on %s: %w", listenAddr, err)
	}

	c := &Client{
		host:           cfg.Host,
		port:           cfg.Port,
		timeout:        cfg.Timeout,
		client:         osc.NewClient(cfg.Host, cfg.Port),
		conn:           conn,
		addressBuilder: messages.NewOSCAddressBuilder(),
		handlers:       xsync.NewMapOf[string, HandlerFunc](),
		pending:        xsync.NewMapOf[string, *pendingReply](),
		addressLocks:   xsync.NewMapOf[string, chan struct{}](),
		stopping:       make(chan struct{}),
		served:         make(chan struct{}),
	}
	c.verbose.Store(cfg.Verbose)
	c.dispatcher = &dispatcher{client: c}

	go c.serve()

	log.Infof("OSC client sending to %s:%d, listening on %s", c.host, c.port, conn.LocalAddr())
	return c, nil
}

// serve reads packets until the listener is closed. Packets that do not
// parse are dropped so a stray datagram cannot end the loop. Packets are
// dispatched in arrival order on this goroutine.
func (c *Client) serve() {
	defer close(c.served)

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := c.conn.ReadFrom(buf)
		if err != nil {
			if c.isStopped() || errors.Is(err, net.ErrClosed) {
				log.Debugf("OSC listener on %s closed", c.conn.LocalAddr())
				return
			}
			log.Warnf("OSC listener read failed: %v", err)
			time.Sleep(readRetryDelay)
			continue
		}

		packet, err := parsePacket(buf[:n])
		if err != nil {
			malformedTotal.Inc()
			log.Warnf("Dropping malformed OSC packet from %s: %v", from, err)
			continue
		}
		c.dispatcher.Dispatch(packet)
	}
}

// parsePacket decodes one datagram. Anything that is not an OSC message or
// bundle is an error.
func parsePacket(data []byte) (packet osc.Packet, err error) {
	defer func() {
		if r := recover(); r != nil {
			packet, err = nil, fmt.Errorf("invalid OSC packet: %v", r)
		}
	}()
	packet, err = osc.ParsePacket(string(data))
	if err == nil && packet == nil {
		err = errors.New("not an OSC message or bundle")
	}
	return packet, err
}

// LocalAddr returns the address the reply listener is bound to.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// SetVerbose toggles logging of every incoming message.
func (c *Client) SetVerbose(verbose bool) {
	c.verbose.Store(verbose)
}

// Timeout returns the default reply timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

func (c *Client) isStopped() bool {
	select {
	case <-c.stopping:
		return true
	default:
		return false
	}
}

// SendMessage sends one message without waiting for any acknowledgment.
func (c *Client) SendMessage(address string, args ...any) error {
	if c.isStopped() {
		return ErrClientStopped
	}
	msg := newMessage(address, args)
	log.Debugf("Sending message: %s %v", address, msg.Arguments)
	if err := c.client.Send(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", address, err)
	}
	sentTotal.Inc()
	return nil
}

// SendBundle sends all messages as one OSC bundle timestamped with the
// current time, so the receiver treats them as simultaneous.
func (c *Client) SendBundle(msgs []Message) error {
	if c.isStopped() {
		return ErrClientStopped
	}
	bundle := osc.NewBundle(time.Now())
	for _, m := range msgs {
		if err := bundle.Append(newMessage(m.Address, m.Args)); err != nil {
			return fmt.Errorf("failed to add %s to bundle: %w", m.Address, err)
		}
	}
	log.Debugf("Sending bundle of %d messages", len(msgs))
	if err := c.client.Send(bundle); err != nil {
		return fmt.Errorf("failed to send bundle: %w", err)
	}
	sentTotal.Add(len(msgs))
	return nil
}

// SetHandler registers fn for messages arriving on address. A previous
// handler for the same address is replaced. Handlers run on the receive
// goroutine and must not wait for replies themselves.
func (c *Client) SetHandler(address string, fn HandlerFunc) {
	if fn == nil {
		c.handlers.Delete(address)
		return
	}
	c.handlers.Store(address, fn)
}

// RemoveHandler unregisters the handler for address. Removing an address
// without a handler is a no-op.
func (c *Client) RemoveHandler(address string) {
	c.handlers.Delete(address)
}

// Ping checks that AbletonOSC answers /live/test.
func (c *Client) Ping(ctx context.Context) error {
	address := c.addressBuilder.BuildAddress(messages.MsgTest, nil)
	if _, err := c.Query(ctx, address); err != nil {
		return fmt.Errorf("live is not responding: %w", err)
	}
	return nil
}

// Stop shuts down the receive loop and waits for it to exit. The client is
// unusable afterwards. Calling Stop more than once is safe.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopping)
		if err := c.conn.Close(); err != nil {
			log.Warnf("Failed to close OSC listener: %v", err)
		}
		<-c.served
		log.Debugf("OSC client for %s:%d stopped", c.host, c.port)
	})
}

// Close is Stop with an io.Closer signature.
func (c *Client) Close() error {
	c.Stop()
	return nil
}
