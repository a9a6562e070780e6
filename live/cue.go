package live

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// StopCueName marks the cue at which monitored playback should stop.
// Matching is case-insensitive.
const StopCueName = "stop"

// ErrCueIndexOutOfRange is returned when a cue index does not address the cue list.
var ErrCueIndexOutOfRange = errors.New("cue index out of range")

// CuePoint is a named locator in the Live arrangement. Time is in beats.
// Its JSON form is the two-element array [name, time].
type CuePoint struct {
	Name string
	Time float64
}

// IsStop reports whether the cue is a stop marker.
func (c CuePoint) IsStop() bool {
	return strings.EqualFold(c.Name, StopCueName)
}

func (c CuePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.Name, c.Time})
}

func (c *CuePoint) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("cue point must be a [name, time] array: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("cue point must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &c.Name); err != nil {
		return fmt.Errorf("cue point name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &c.Time); err != nil {
		return fmt.Errorf("cue point time: %w", err)
	}
	return nil
}

// ParseCuePoints regroups the interleaved name, time, name, time... reply of
// /live/song/get/cue_points into cue points sorted by time.
func ParseCuePoints(args []any) ([]CuePoint, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("%w: cue point reply has odd length %d", ErrMalformedReply, len(args))
	}

	cues := make([]CuePoint, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		name, ok := args[i].(string)
		if !ok {
			return nil, fmt.Errorf("%w: cue point name at %d is %T", ErrMalformedReply, i, args[i])
		}
		t, ok := toFloat(args[i+1])
		if !ok {
			return nil, fmt.Errorf("%w: cue point time at %d is %T", ErrMalformedReply, i+1, args[i+1])
		}
		cues = append(cues, CuePoint{Name: name, Time: t})
	}

	SortCuePoints(cues)
	return cues, nil
}

// SortCuePoints orders cues by time, keeping the reported order on ties.
func SortCuePoints(cues []CuePoint) {
	sort.SliceStable(cues, func(i, j int) bool {
		return cues[i].Time < cues[j].Time
	})
}

// FindStopPosition returns the time of the first stop cue at or after index.
func FindStopPosition(cues []CuePoint, index int) (float64, bool) {
	if index < 0 {
		index = 0
	}
	for i := index; i < len(cues); i++ {
		if cues[i].IsStop() {
			return cues[i].Time, true
		}
	}
	return 0, false
}
