package live

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/zenibako/cuebridge/messages"

	"github.com/charmbracelet/log"
)

// Transport is the subset of Client used by Song.
type Transport interface {
	SendMessage(address string, args ...any) error
	SendBundle(msgs []Message) error
	Query(ctx context.Context, address string, args ...any) ([]any, error)
	SetHandler(address string, fn HandlerFunc)
	RemoveHandler(address string)
}

// PositionTolerance is how close, in beats, the playhead must come to a stop
// position for monitored playback to stop.
const PositionTolerance = 1.0

// PlayResult is the outcome of starting playback from a cue.
type PlayResult struct {
	StartPos float64  `json:"start_pos"`
	StopPos  *float64 `json:"stop_pos"`
}

// Song drives the Live song transport and its cue points.
type Song struct {
	transport      Transport
	addressBuilder *messages.OSCAddressBuilder
	pollInterval   time.Duration
	bundlePlay     bool
}

// SongOption configures a Song.
type SongOption func(*Song)

// WithPollInterval sets how often the playhead is polled while monitoring.
func WithPollInterval(d time.Duration) SongOption {
	return func(s *Song) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithBundledPlay sends the jump and start commands as one OSC bundle.
func WithBundledPlay(bundled bool) SongOption {
	return func(s *Song) {
		s.bundlePlay = bundled
	}
}

// NewSong creates a Song on top of t.
func NewSong(t Transport, opts ...SongOption) *Song {
	s := &Song{
		transport:      t,
		addressBuilder: messages.NewOSCAddressBuilder(),
		pollInterval:   TickDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PollInterval returns the playhead polling interval.
func (s *Song) PollInterval() time.Duration {
	return s.pollInterval
}

// CuePoints fetches all cue points, sorted by time.
func (s *Song) CuePoints(ctx context.Context) ([]CuePoint, error) {
	address := s.addressBuilder.BuildAddress(messages.MsgSongGetCuePoints, nil)
	reply, err := s.transport.Query(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get cue points: %w", err)
	}
	cues, err := ParseCuePoints(reply)
	if err != nil {
		return nil, err
	}
	log.Debugf("Fetched %d cue points", len(cues))
	return cues, nil
}

// Play jumps to the cue at index and starts playback. The stop position is
// taken from cues without asking Live again.
func (s *Song) Play(cues []CuePoint, index int) (PlayResult, error) {
	if index < 0 || index >= len(cues) {
		return PlayResult{}, fmt.Errorf("%w: %d (have %d cues)", ErrCueIndexOutOfRange, index, len(cues))
	}
	selected := cues[index]

	jump := Message{
		Address: s.addressBuilder.BuildAddress(messages.MsgSongCuePointJump, nil),
		Args:    []any{selected.Name},
	}
	start := Message{
		Address: s.addressBuilder.BuildAddress(messages.MsgSongStartPlaying, nil),
	}

	if s.bundlePlay {
		if err := s.transport.SendBundle([]Message{jump, start}); err != nil {
			return PlayResult{}, err
		}
	} else {
		if err := s.transport.SendMessage(jump.Address, jump.Args...); err != nil {
			return PlayResult{}, err
		}
		if err := s.transport.SendMessage(start.Address); err != nil {
			return PlayResult{}, err
		}
	}

	result := PlayResult{StartPos: selected.Time}
	var stopLog any = "none"
	if stop, ok := FindStopPosition(cues, index); ok {
		result.StopPos = &stop
		stopLog = stop
	}
	log.Info("Playing from cue", "cue", selected.Name, "start", result.StartPos, "stop", stopLog)
	return result, nil
}

// Stop stops playback. Live does not confirm the command.
func (s *Song) Stop() error {
	address := s.addressBuilder.BuildAddress(messages.MsgSongStopPlaying, nil)
	if err := s.transport.SendMessage(address); err != nil {
		return err
	}
	log.Info("Playback stopped")
	return nil
}

// CurrentTime returns the playhead position in beats.
func (s *Song) CurrentTime(ctx context.Context) (float64, error) {
	address := s.addressBuilder.BuildAddress(messages.MsgSongGetCurrentTime, nil)
	reply, err := s.transport.Query(ctx, address)
	if err != nil {
		return 0, err
	}
	return floatArg(address, reply, 0)
}

// WaitForPosition polls the playhead every poll interval until it is within
// PositionTolerance of stopPos, then stops playback. It blocks the caller
// for the whole time; a query timeout ends the wait with an error.
func (s *Song) WaitForPosition(ctx context.Context, stopPos float64) error {
	for polls := 1; ; polls++ {
		pos, err := s.CurrentTime(ctx)
		if err != nil {
			return err
		}
		if math.Abs(pos-stopPos) < PositionTolerance {
			log.Debugf("Playhead reached %.2f (stop at %.2f) after %d polls", pos, stopPos, polls)
			return s.Stop()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}
