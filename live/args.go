package live

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"
)

// newMessage builds an OSC message, narrowing Go numeric types to the OSC
// int32/float32 tags AbletonOSC expects.
func newMessage(address string, args []any) *osc.Message {
	msg := osc.NewMessage(address)
	for _, arg := range args {
		msg.Append(normalizeArg(arg))
	}
	return msg
}

func normalizeArg(arg any) any {
	switch v := arg.(type) {
	case int:
		return int32(v)
	case int8:
		return int32(v)
	case int16:
		return int32(v)
	case uint8:
		return int32(v)
	case uint16:
		return int32(v)
	case float64:
		return float32(v)
	default:
		return arg
	}
}

// toFloat converts a numeric OSC argument to float64.
func toFloat(arg any) (float64, bool) {
	switch v := arg.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// floatArg extracts the numeric argument at index i of a reply.
func floatArg(address string, args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: %s returned %d arguments, want at least %d", ErrMalformedReply, address, len(args), i+1)
	}
	f, ok := toFloat(args[i])
	if !ok {
		return 0, fmt.Errorf("%w: %s argument %d is %T, want a number", ErrMalformedReply, address, i, args[i])
	}
	return f, nil
}
