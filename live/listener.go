package live

import (
	"context"

	"github.com/zenibako/cuebridge/messages"

	"github.com/charmbracelet/log"
)

// FollowSongTime subscribes to pushed playhead updates and calls fn with
// each position until ctx is done. fn runs on the receive goroutine, one
// update at a time in the order the datagrams arrived; UDP itself does not
// promise that order across the network. The handler is registered before the
// subscription is sent so the initial update AbletonOSC pushes is not lost.
// On return the handler is removed and the subscription cancelled.
func (s *Song) FollowSongTime(ctx context.Context, fn func(position float64)) error {
	startAddr := s.addressBuilder.BuildStartListenAddress(messages.PropCurrentSongTime)
	stopAddr := s.addressBuilder.BuildStopListenAddress(messages.PropCurrentSongTime)
	updateAddr := s.addressBuilder.BuildListenerAddress(messages.PropCurrentSongTime)

	s.transport.SetHandler(updateAddr, func(address string, args []any) {
		pos, err := floatArg(address, args, 0)
		if err != nil {
			log.Debugf("Ignoring playhead update: %v", err)
			return
		}
		fn(pos)
	})
	defer s.transport.RemoveHandler(updateAddr)

	if err := s.transport.SendMessage(startAddr); err != nil {
		return err
	}
	log.Debugf("Subscribed to %s", messages.PropCurrentSongTime)

	<-ctx.Done()

	if err := s.transport.SendMessage(stopAddr); err != nil {
		log.Warnf("Failed to unsubscribe from %s: %v", messages.PropCurrentSongTime, err)
	}
	return nil
}
