package messages

import (
	"fmt"
	"strings"
)

// OSC message types and addresses understood by the AbletonOSC remote script

// Message types
type MessageType string

const (
	// Application messages
	MsgTest  MessageType = "test"
	MsgError MessageType = "error"

	// Song transport messages
	MsgSongStartPlaying    MessageType = "song_start_playing"
	MsgSongStopPlaying     MessageType = "song_stop_playing"
	MsgSongContinuePlaying MessageType = "song_continue_playing"
	MsgSongIsPlaying       MessageType = "song_is_playing"

	// Song position messages
	MsgSongGetCurrentTime MessageType = "song_get_current_time"
	MsgSongSetCurrentTime MessageType = "song_set_current_time"

	// Cue point messages
	MsgSongGetCuePoints MessageType = "song_get_cue_points"
	MsgSongCuePointJump MessageType = "song_cue_point_jump"
)

// OSC Address patterns
const (
	// Application level
	AddrTest  = "/live/test"
	AddrError = "/live/error"

	// Song transport
	AddrSongStartPlaying    = "/live/song/start_playing"
	AddrSongStopPlaying     = "/live/song/stop_playing"
	AddrSongContinuePlaying = "/live/song/continue_playing"
	AddrSongIsPlaying       = "/live/song/get/is_playing"

	// Song position
	AddrSongGetCurrentTime = "/live/song/get/current_song_time"
	AddrSongSetCurrentTime = "/live/song/set/current_song_time"

	// Cue points
	AddrSongGetCuePoints = "/live/song/get/cue_points"
	AddrSongCuePointJump = "/live/song/cue_point/jump"

	// Property listeners
	AddrSongStartListen = "/live/song/start_listen/{property}"
	AddrSongStopListen  = "/live/song/stop_listen/{property}"
)

// Song properties that support listeners
const (
	PropCurrentSongTime = "current_song_time"
	PropIsPlaying       = "is_playing"
	PropTempo           = "tempo"
)

var addressByType = map[MessageType]string{
	MsgTest:                AddrTest,
	MsgError:               AddrError,
	MsgSongStartPlaying:    AddrSongStartPlaying,
	MsgSongStopPlaying:     AddrSongStopPlaying,
	MsgSongContinuePlaying: AddrSongContinuePlaying,
	MsgSongIsPlaying:       AddrSongIsPlaying,
	MsgSongGetCurrentTime:  AddrSongGetCurrentTime,
	MsgSongSetCurrentTime:  AddrSongSetCurrentTime,
	MsgSongGetCuePoints:    AddrSongGetCuePoints,
	MsgSongCuePointJump:    AddrSongCuePointJump,
}

// OSCAddressBuilder builds OSC addresses from message types and parameters
type OSCAddressBuilder struct{}

// NewOSCAddressBuilder creates a new address builder
func NewOSCAddressBuilder() *OSCAddressBuilder {
	return &OSCAddressBuilder{}
}

// BuildAddress builds an OSC address from a message type and parameters.
// Unknown message types yield an empty string.
func (b *OSCAddressBuilder) BuildAddress(msgType MessageType, params map[string]string) string {
	address, ok := addressByType[msgType]
	if !ok {
		return ""
	}

	for key, value := range params {
		placeholder := fmt.Sprintf("{%s}", key)
		address = strings.ReplaceAll(address, placeholder, value)
	}

	return address
}

// BuildStartListenAddress builds the address that subscribes to pushed updates of a song property
func (b *OSCAddressBuilder) BuildStartListenAddress(property string) string {
	return strings.ReplaceAll(AddrSongStartListen, "{property}", property)
}

// BuildStopListenAddress builds the address that cancels a song property subscription
func (b *OSCAddressBuilder) BuildStopListenAddress(property string) string {
	return strings.ReplaceAll(AddrSongStopListen, "{property}", property)
}

// BuildListenerAddress returns the address on which pushed updates for a
// song property arrive. AbletonOSC pushes them on the getter address, the
// same address it answers queries on.
func (b *OSCAddressBuilder) BuildListenerAddress(property string) string {
	return "/live/song/get/" + property
}
