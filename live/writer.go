package live

import (
	"encoding/json"
	"fmt"
)

// ToJSON converts cue points to the [[name, time], ...] form served to the
// browser. The caller can write this to a file if needed.
func ToJSON(cues []CuePoint, indent bool) (string, error) {
	if cues == nil {
		cues = []CuePoint{}
	}

	var result []byte
	var err error

	if indent {
		result, err = json.MarshalIndent(cues, "", "  ")
	} else {
		result, err = json.Marshal(cues)
	}

	if err != nil {
		return "", fmt.Errorf("failed to marshal cue points: %w", err)
	}

	return string(result), nil
}
