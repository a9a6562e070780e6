package live

import (
	"github.com/zenibako/cuebridge/messages"

	"github.com/charmbracelet/log"
	"github.com/hypebeast/go-osc/osc"
)

// dispatcher routes packets from the listener to the client. It matches
// addresses exactly; OSC address patterns are not expanded.
type dispatcher struct {
	client *Client
}

func (d *dispatcher) Dispatch(packet osc.Packet) {
	switch p := packet.(type) {
	case *osc.Message:
		d.client.handleMessage(p.Address, p.Arguments)
	case *osc.Bundle:
		for _, msg := range p.Messages {
			d.client.handleMessage(msg.Address, msg.Arguments)
		}
		for _, b := range p.Bundles {
			d.Dispatch(b)
		}
	}
}

func (c *Client) handleMessage(address string, args []any) {
	receivedTotal.Inc()

	if c.verbose.Load() {
		log.Info("Received OSC message", "address", address, "args", args)
	}
	if address == messages.AddrError {
		log.Warn("AbletonOSC reported an error", "args", args)
	}

	if handler, ok := c.handlers.Load(address); ok {
		handler(address, args)
	}

	// Deliver to the waiter for this address, if any. Waits are serialised
	// per address, so at most one matches.
	var foundKey string
	c.pending.Range(func(key string, p *pendingReply) bool {
		if p.address == address {
			foundKey = key
			return false
		}
		return true
	})
	if foundKey == "" {
		return
	}
	if p, ok := c.pending.LoadAndDelete(foundKey); ok {
		log.Debugf("Routing reply to waiter: %s", foundKey)
		select {
		case p.reply <- args:
		default:
		}
	}
}

// requestKey builds the pending-table key for one wait on address.
func requestKey(address, token string) string {
	return address + "#" + token
}
