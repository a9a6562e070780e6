package live

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/zenibako/cuebridge/messages"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

// ReceivedMessage captures details about received OSC messages for testing
type ReceivedMessage struct {
	Address   string
	Arguments []any
	Timestamp time.Time
	Bundled   bool      // Arrived inside a bundle
	BundleID  int       // Sequence number of the enclosing bundle (0 if not bundled)
	Timetag   time.Time // Timetag of the enclosing bundle
}

// MockLiveServer simulates the AbletonOSC remote script for testing.
// It listens on a loopback UDP port and sends replies to a configurable
// reply port, the way AbletonOSC replies to port 11001 of the sender.
type MockLiveServer struct {
	host       string
	replyPort  int
	conn       net.PacketConn
	server     *osc.Server
	served     chan struct{}
	mu         sync.RWMutex
	isRunning  bool
	cuePoints  []CuePoint        // in the order Live reports them
	songTime   float64           // current playhead position
	songTimes  []float64         // scripted positions returned by successive polls
	playing    bool              // transport state
	listening  bool              // current_song_time listener active
	silent     map[string]bool   // addresses that never reply
	replyDelay time.Duration     // delay before each reply
	received   []ReceivedMessage // all received messages
	bundles    int               // number of bundles received
}

// NewMockLiveServer creates a new mock AbletonOSC server on host.
func NewMockLiveServer(host string) *MockLiveServer {
	if host == "" {
		host = "127.0.0.1"
	}
	return &MockLiveServer{
		host:     host,
		silent:   make(map[string]bool),
		received: make([]ReceivedMessage, 0),
	}
}

// Start binds an ephemeral UDP port and starts serving.
func (m *MockLiveServer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("mock server already running")
	}

	conn, err := net.ListenPacket("udp", net.JoinHostPort(m.host, "0"))
	if err != nil {
		return fmt.Errorf("mock server failed to bind: %w", err)
	}

	m.conn = conn
	m.server = &osc.Server{Dispatcher: &mockDispatcher{mock: m}}
	m.served = make(chan struct{})
	served := m.served

	go func() {
		defer close(served)
		if err := m.server.Serve(conn); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
			log.Errorf("Mock OSC server error: %v", err)
		}
	}()

	m.isRunning = true
	log.Infof("Mock AbletonOSC server started on %s", conn.LocalAddr())
	return nil
}

// Stop stops the mock server and waits for its listener to exit
func (m *MockLiveServer) Stop() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return nil
	}
	m.isRunning = false
	conn := m.conn
	served := m.served
	m.mu.Unlock()

	err := conn.Close()
	<-served
	log.Info("Mock AbletonOSC server stopped")
	return err
}

// Port returns the UDP port the mock listens on
func (m *MockLiveServer) Port() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return 0
	}
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

// Host returns the host the mock listens on
func (m *MockLiveServer) Host() string {
	return m.host
}

// SetReplyPort sets the port replies are sent to
func (m *MockLiveServer) SetReplyPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyPort = port
}

// SetReplyDelay delays every reply, simulating Live processing time
func (m *MockLiveServer) SetReplyDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyDelay = d
}

// SetCuePoints sets the cue points, in the order they are reported
func (m *MockLiveServer) SetCuePoints(cues ...CuePoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cuePoints = append([]CuePoint(nil), cues...)
}

// SetSongTimes scripts the positions returned by successive playhead polls.
// Once the script is exhausted the last position keeps being reported.
func (m *MockLiveServer) SetSongTimes(times ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.songTimes = append([]float64(nil), times...)
}

// AdvancePlayhead moves the simulated playhead and, like AbletonOSC, pushes
// the new position when a current_song_time listener is active.
func (m *MockLiveServer) AdvancePlayhead(position float64) {
	m.mu.Lock()
	m.songTime = position
	listening := m.listening
	m.mu.Unlock()

	if listening {
		m.sendReply(messages.AddrSongGetCurrentTime, []any{float32(position)})
	}
}

// IsListening reports whether a current_song_time listener is active
func (m *MockLiveServer) IsListening() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listening
}

// SetSilent makes address never reply
func (m *MockLiveServer) SetSilent(address string, silent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.silent[address] = silent
}

// IsPlaying reports the simulated transport state
func (m *MockLiveServer) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.playing
}

// SongTime reports the simulated playhead position
func (m *MockLiveServer) SongTime() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.songTime
}

// ReceivedMessages returns a copy of all received messages
func (m *MockLiveServer) ReceivedMessages() []ReceivedMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ReceivedMessage(nil), m.received...)
}

// CountReceived returns how many messages arrived on address
func (m *MockLiveServer) CountReceived(address string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, msg := range m.received {
		if msg.Address == address {
			count++
		}
	}
	return count
}

// Clear resets received messages and simulated state
func (m *MockLiveServer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = m.received[:0]
	m.bundles = 0
	m.songTimes = nil
	m.songTime = 0
	m.playing = false
	m.listening = false
}

// Emit sends an unsolicited message to the reply port
func (m *MockLiveServer) Emit(address string, args ...any) error {
	m.mu.RLock()
	port := m.replyPort
	m.mu.RUnlock()
	if port == 0 {
		return fmt.Errorf("mock server has no reply port")
	}
	return osc.NewClient(m.host, port).Send(newMessage(address, args))
}

// mockDispatcher records every message and answers it like AbletonOSC
type mockDispatcher struct {
	mock *MockLiveServer
}

func (d *mockDispatcher) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		d.mock.record(p, 0, time.Time{})
		d.mock.handle(p)
	case *osc.Bundle:
		d.mock.mu.Lock()
		d.mock.bundles++
		id := d.mock.bundles
		d.mock.mu.Unlock()

		timetag := p.Timetag.Time()
		for _, msg := range p.Messages {
			d.mock.record(msg, id, timetag)
		}
		for _, msg := range p.Messages {
			d.mock.handle(msg)
		}
	}
}

func (m *MockLiveServer) record(msg *osc.Message, bundleID int, timetag time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, ReceivedMessage{
		Address:   msg.Address,
		Arguments: msg.Arguments,
		Timestamp: time.Now(),
		Bundled:   bundleID != 0,
		BundleID:  bundleID,
		Timetag:   timetag,
	})
}

func (m *MockLiveServer) handle(msg *osc.Message) {
	m.mu.Lock()
	if m.silent[msg.Address] {
		m.mu.Unlock()
		log.Debugf("Mock server staying silent on %s", msg.Address)
		return
	}

	var reply []any
	var push bool
	switch msg.Address {
	case messages.AddrTest:
		reply = []any{"ok"}
	case messages.AddrSongGetCuePoints:
		reply = make([]any, 0, len(m.cuePoints)*2)
		for _, cue := range m.cuePoints {
			reply = append(reply, cue.Name, float32(cue.Time))
		}
	case messages.AddrSongCuePointJump:
		if len(msg.Arguments) > 0 {
			m.jumpLocked(msg.Arguments[0])
		}
	case messages.AddrSongStartPlaying, messages.AddrSongContinuePlaying:
		m.playing = true
	case messages.AddrSongStopPlaying:
		m.playing = false
	case messages.AddrSongGetCurrentTime:
		if len(m.songTimes) > 0 {
			m.songTime = m.songTimes[0]
			m.songTimes = m.songTimes[1:]
		}
		reply = []any{float32(m.songTime)}
	case messages.AddrSongSetCurrentTime:
		if len(msg.Arguments) > 0 {
			if t, ok := toFloat(msg.Arguments[0]); ok {
				m.songTime = t
			}
		}
	case messages.AddrSongIsPlaying:
		reply = []any{m.playing}
	case "/live/song/start_listen/" + messages.PropCurrentSongTime:
		m.listening = true
		push = true
	case "/live/song/stop_listen/" + messages.PropCurrentSongTime:
		m.listening = false
	default:
		log.Debugf("Mock server ignoring %s", msg.Address)
	}
	songTime := m.songTime
	m.mu.Unlock()

	if reply != nil {
		m.sendReply(msg.Address, reply)
	}
	if push {
		m.sendReply(messages.AddrSongGetCurrentTime, []any{float32(songTime)})
	}
}

// jumpLocked moves the playhead to the cue named (or indexed) by target
func (m *MockLiveServer) jumpLocked(target any) {
	switch v := target.(type) {
	case string:
		for _, cue := range m.cuePoints {
			if cue.Name == v {
				m.songTime = cue.Time
				return
			}
		}
		log.Warnf("Mock server has no cue named %q", v)
	case int32:
		if int(v) >= 0 && int(v) < len(m.cuePoints) {
			m.songTime = m.cuePoints[v].Time
		}
	}
}

// sendReply sends a reply on the same address, the way AbletonOSC does
func (m *MockLiveServer) sendReply(address string, args []any) {
	m.mu.RLock()
	port := m.replyPort
	delay := m.replyDelay
	m.mu.RUnlock()

	if port == 0 {
		log.Warnf("Mock server has no reply port, dropping reply to %s", address)
		return
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	client := osc.NewClient(m.host, port)
	if err := client.Send(newMessage(address, args)); err != nil {
		log.Errorf("Failed to send mock reply: %v", err)
		return
	}
	log.Debugf("Mock server replied on %s %v", address, args)
}
