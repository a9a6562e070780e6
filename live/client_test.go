package live

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/zenibako/cuebridge/messages"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

// getFreePort gets an available UDP port by asking the OS
func getFreePort() (int, error) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = conn.Close() // Ignore error - port is being freed
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port, nil
}

// setupClientWithCleanup starts a mock AbletonOSC server and a client wired to it
func setupClientWithCleanup(t *testing.T) (*Client, *MockLiveServer) {
	t.Helper()

	mockServer := NewMockLiveServer("127.0.0.1")
	if err := mockServer.Start(); err != nil {
		t.Fatalf("Failed to start mock server: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("Failed to get free port: %v", err)
	}

	client, err := NewClient(Config{
		Host:       "127.0.0.1",
		Port:       mockServer.Port(),
		ListenHost: "127.0.0.1",
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	mockServer.SetReplyPort(client.LocalAddr().(*net.UDPAddr).Port)

	t.Cleanup(func() {
		client.Stop()
		mockServer.Clear()
		if err := mockServer.Stop(); err != nil {
			t.Logf("Failed to stop mock server: %v", err)
		}
	})

	return client, mockServer
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestQueryReturnsReply(t *testing.T) {
	log.SetLevel(log.InfoLevel)
	client, _ := setupClientWithCleanup(t)

	reply, err := client.Query(context.Background(), messages.AddrTest)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(reply) != 1 || reply[0] != "ok" {
		t.Fatalf("Expected [ok], got %v", reply)
	}

	// The waiter is released after the reply, so the same query works again
	if client.pending.Size() != 0 {
		t.Errorf("Expected no pending waiters, got %d", client.pending.Size())
	}
	if _, err := client.Query(context.Background(), messages.AddrTest); err != nil {
		t.Fatalf("Second query failed: %v", err)
	}
}

func TestQueryTimeout(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)
	mockServer.SetSilent(messages.AddrSongGetCuePoints, true)

	start := time.Now()
	_, err := client.QueryTimeout(context.Background(), messages.AddrSongGetCuePoints, TickDuration)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("Expected ErrNoReply, got %v", err)
	}
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.Address != messages.AddrSongGetCuePoints {
		t.Errorf("Expected TimeoutError for %s, got %v", messages.AddrSongGetCuePoints, err)
	}
	if elapsed < TickDuration-10*time.Millisecond {
		t.Errorf("Timed out too early: %v", elapsed)
	}
	if elapsed > TickDuration+200*time.Millisecond {
		t.Errorf("Timed out too late: %v", elapsed)
	}
	if client.pending.Size() != 0 {
		t.Errorf("Waiter should be released after timeout, got %d pending", client.pending.Size())
	}
}

func TestQueryContextCancelled(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)
	mockServer.SetSilent(messages.AddrTest, true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.QueryTimeout(ctx, messages.AddrTest, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if client.pending.Size() != 0 {
		t.Errorf("Waiter should be released after cancellation")
	}
}

func TestConcurrentQueriesSameAddress(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)
	mockServer.SetCuePoints(CuePoint{Name: "Intro", Time: 0})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := client.QueryTimeout(context.Background(), messages.AddrSongGetCuePoints, time.Second)
			if err != nil {
				errs <- err
				return
			}
			if len(reply) != 2 {
				errs <- errors.New("unexpected reply length")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent query failed: %v", err)
	}
	if got := mockServer.CountReceived(messages.AddrSongGetCuePoints); got != 5 {
		t.Errorf("Expected 5 queries at the server, got %d", got)
	}
}

func TestAwaitMessage(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	go func() {
		time.Sleep(30 * time.Millisecond)
		if err := mockServer.Emit("/live/song/get/tempo", float32(120)); err != nil {
			t.Errorf("Emit failed: %v", err)
		}
	}()

	args, err := client.AwaitMessage(context.Background(), "/live/song/get/tempo", time.Second)
	if err != nil {
		t.Fatalf("AwaitMessage failed: %v", err)
	}
	if len(args) != 1 || args[0] != float32(120) {
		t.Errorf("Expected [120], got %v", args)
	}
	if got := len(mockServer.ReceivedMessages()); got != 0 {
		t.Errorf("AwaitMessage should not send anything, server received %d messages", got)
	}
}

func TestAwaitMessageTimeout(t *testing.T) {
	client, _ := setupClientWithCleanup(t)

	_, err := client.AwaitMessage(context.Background(), "/live/never", 50*time.Millisecond)
	if !errors.Is(err, ErrNoReply) {
		t.Fatalf("Expected ErrNoReply, got %v", err)
	}
}

func TestSetAndRemoveHandler(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	received := make(chan []any, 4)
	client.SetHandler("/live/song/get/tempo", func(address string, args []any) {
		received <- args
	})

	if err := mockServer.Emit("/live/song/get/tempo", float32(98)); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	select {
	case args := <-received:
		if args[0] != float32(98) {
			t.Errorf("Expected 98, got %v", args[0])
		}
	case <-time.After(time.Second):
		t.Fatal("Handler was not called")
	}

	// Removal is idempotent
	client.RemoveHandler("/live/song/get/tempo")
	client.RemoveHandler("/live/song/get/tempo")
	client.RemoveHandler("/live/never/registered")

	if err := mockServer.Emit("/live/song/get/tempo", float32(99)); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	select {
	case args := <-received:
		t.Errorf("Removed handler was called with %v", args)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandlerLastRegistrationWins(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	client.SetHandler("/live/song/get/tempo", func(string, []any) { first <- struct{}{} })
	client.SetHandler("/live/song/get/tempo", func(string, []any) { second <- struct{}{} })

	if err := mockServer.Emit("/live/song/get/tempo", float32(100)); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("Second handler was not called")
	}
	select {
	case <-first:
		t.Error("Replaced handler should not be called")
	default:
	}
}

func TestExactAddressMatching(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	called := make(chan string, 4)
	client.SetHandler("/live/song/get", func(address string, _ []any) { called <- address })
	client.SetHandler("/live/song/*", func(address string, _ []any) { called <- address })

	if err := mockServer.Emit("/live/song/get/tempo", float32(100)); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	select {
	case addr := <-called:
		t.Errorf("Handler matched %s without an exact address match", addr)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendBundle(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)
	mockServer.SetCuePoints(CuePoint{Name: "Verse", Time: 0}, CuePoint{Name: "Chorus", Time: 16})

	before := time.Now().Add(-time.Second)
	err := client.SendBundle([]Message{
		{Address: messages.AddrSongCuePointJump, Args: []any{"Chorus"}},
		{Address: messages.AddrSongStartPlaying},
		{Address: messages.AddrSongSetCurrentTime, Args: []any{16.0}},
	})
	if err != nil {
		t.Fatalf("SendBundle failed: %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(mockServer.ReceivedMessages()) == 3 }) {
		t.Fatalf("Expected 3 messages, got %d", len(mockServer.ReceivedMessages()))
	}

	received := mockServer.ReceivedMessages()
	for i, msg := range received {
		if !msg.Bundled {
			t.Errorf("Message %d (%s) did not arrive in a bundle", i, msg.Address)
		}
		if msg.BundleID != received[0].BundleID {
			t.Errorf("Message %d arrived in bundle %d, want %d", i, msg.BundleID, received[0].BundleID)
		}
		if !msg.Timetag.Equal(received[0].Timetag) {
			t.Errorf("Message %d has timetag %v, want %v", i, msg.Timetag, received[0].Timetag)
		}
	}
	if received[0].Timetag.Before(before) {
		t.Errorf("Bundle timetag %v should be the send time", received[0].Timetag)
	}
	if received[0].Address != messages.AddrSongCuePointJump || received[1].Address != messages.AddrSongStartPlaying {
		t.Errorf("Bundle order not preserved: %s, %s", received[0].Address, received[1].Address)
	}
	if !waitFor(t, time.Second, mockServer.IsPlaying) {
		t.Error("Mock should be playing after bundle")
	}
}

func TestSendMessageNormalizesArguments(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	if err := client.SendMessage(messages.AddrSongSetCurrentTime, 12.5); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := client.SendMessage(messages.AddrSongCuePointJump, 2); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return len(mockServer.ReceivedMessages()) == 2 }) {
		t.Fatalf("Expected 2 messages, got %d", len(mockServer.ReceivedMessages()))
	}
	for _, msg := range mockServer.ReceivedMessages() {
		switch msg.Address {
		case messages.AddrSongSetCurrentTime:
			if _, ok := msg.Arguments[0].(float32); !ok {
				t.Errorf("float64 argument should arrive as float32, got %T", msg.Arguments[0])
			}
		case messages.AddrSongCuePointJump:
			if _, ok := msg.Arguments[0].(int32); !ok {
				t.Errorf("int argument should arrive as int32, got %T", msg.Arguments[0])
			}
		}
	}
}

func TestStopIsIdempotent(t *testing.T) {
	client, _ := setupClientWithCleanup(t)

	client.Stop()
	client.Stop()

	if _, err := client.Query(context.Background(), messages.AddrTest); !errors.Is(err, ErrClientStopped) {
		t.Errorf("Expected ErrClientStopped from Query, got %v", err)
	}
	if err := client.SendMessage(messages.AddrSongStopPlaying); !errors.Is(err, ErrClientStopped) {
		t.Errorf("Expected ErrClientStopped from SendMessage, got %v", err)
	}
	if err := client.SendBundle(nil); !errors.Is(err, ErrClientStopped) {
		t.Errorf("Expected ErrClientStopped from SendBundle, got %v", err)
	}
}

func TestPing(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	mockServer.SetSilent(messages.AddrTest, true)
	if err := client.Ping(context.Background()); !errors.Is(err, ErrNoReply) {
		t.Errorf("Expected ErrNoReply from silent server, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Host != "127.0.0.1" || cfg.Port != DefaultRemotePort {
		t.Errorf("Unexpected remote endpoint %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.ListenPort != DefaultLocalPort {
		t.Errorf("Expected listen port %d, got %d", DefaultLocalPort, cfg.ListenPort)
	}
	if cfg.Timeout != TickDuration {
		t.Errorf("Expected timeout %v, got %v", TickDuration, cfg.Timeout)
	}
}

func TestMalformedPacketDoesNotStopListener(t *testing.T) {
	client, _ := setupClientWithCleanup(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed before stray packets: %v", err)
	}

	conn, err := net.Dial("udp", client.LocalAddr().String())
	if err != nil {
		t.Fatalf("Failed to dial client listener: %v", err)
	}
	defer conn.Close()

	// an address without padding or type tags, then plain garbage
	for _, raw := range [][]byte{[]byte("/live/test"), {0xff, 0x00, 0x13}, []byte("#bundle")} {
		if _, err := conn.Write(raw); err != nil {
			t.Fatalf("Failed to write stray packet: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		if err := client.Ping(context.Background()); err != nil {
			t.Fatalf("Ping %d failed after stray packets: %v", i, err)
		}
	}
}

func TestHandlerSeesMessagesInArrivalOrder(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)

	const updates = 200
	var mu sync.Mutex
	var got []float64
	client.SetHandler(messages.AddrSongGetCurrentTime, func(address string, args []any) {
		pos, _ := toFloat(args[0])
		mu.Lock()
		got = append(got, pos)
		mu.Unlock()
	})

	for i := 0; i < updates; i++ {
		if err := mockServer.Emit(messages.AddrSongGetCurrentTime, float32(i)); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}

	if !waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == updates
	}) {
		t.Fatalf("Expected %d updates, got %d", updates, len(got))
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(got); i++ {
		if got[i] < got[i-1] {
			t.Fatalf("Update %d arrived out of order: %v after %v", i, got[i], got[i-1])
		}
	}
}

func TestQueuedQueryHonorsContext(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)
	mockServer.SetSilent(messages.AddrSongGetCuePoints, true)

	// the first query holds the address for a full second
	first := make(chan error, 1)
	go func() {
		_, err := client.QueryTimeout(context.Background(), messages.AddrSongGetCuePoints, time.Second)
		first <- err
	}()
	if !waitFor(t, time.Second, func() bool { return client.pending.Size() == 1 }) {
		t.Fatal("First query never started waiting")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.QueryTimeout(ctx, messages.AddrSongGetCuePoints, time.Second)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Queued query ignored its context, returned after %v", elapsed)
	}
	if got := mockServer.CountReceived(messages.AddrSongGetCuePoints); got != 1 {
		t.Errorf("A query that never got the address must not be sent, server saw %d", got)
	}

	if err := <-first; !errors.Is(err, ErrNoReply) {
		t.Errorf("Expected the first query to time out, got %v", err)
	}
}

func TestQueuedQueryReleasedByStop(t *testing.T) {
	client, mockServer := setupClientWithCleanup(t)
	mockServer.SetSilent(messages.AddrTest, true)

	go func() {
		_, _ = client.QueryTimeout(context.Background(), messages.AddrTest, 2*time.Second)
	}()
	if !waitFor(t, time.Second, func() bool { return client.pending.Size() == 1 }) {
		t.Fatal("First query never started waiting")
	}

	queued := make(chan error, 1)
	go func() {
		_, err := client.QueryTimeout(context.Background(), messages.AddrTest, 2*time.Second)
		queued <- err
	}()
	time.Sleep(20 * time.Millisecond)
	client.Stop()

	select {
	case err := <-queued:
		if !errors.Is(err, ErrClientStopped) {
			t.Errorf("Expected ErrClientStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Queued query was not released by Stop")
	}
}

func TestParsePacketRejectsGarbage(t *testing.T) {
	for name, raw := range map[string][]byte{
		"unpadded address": []byte("/live/test"),
		"binary":           {0xff, 0x00, 0x13},
		"bare bundle tag":  []byte("#bundle"),
		"empty":            {},
	} {
		if _, err := parsePacket(raw); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}

	data, err := newMessage("/live/test", []any{"ok"}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	packet, err := parsePacket(data)
	if err != nil {
		t.Fatalf("parsePacket failed on a valid message: %v", err)
	}
	if msg, ok := packet.(*osc.Message); !ok || msg.Address != "/live/test" {
		t.Errorf("Unexpected packet %#v", packet)
	}
}
