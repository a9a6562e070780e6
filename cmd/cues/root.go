package cues

import (
	"context"

	"github.com/zenibako/cuebridge/cmd/util"
	"github.com/zenibako/cuebridge/live"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// CueCommands represents the cue command group
	CueCommands = &cobra.Command{
		Use:   "cues",
		Short: "List, play and stop cue points",
	}
)

func init() {
	// Add subcommands
	CueCommands.AddCommand(listCmd)
	CueCommands.AddCommand(playCmd)
	CueCommands.AddCommand(stopCmd)
	CueCommands.AddCommand(followCmd)

	CueCommands.PersistentFlags().Duration("poll-interval", live.TickDuration, util.WrapString("How often the playhead is polled by play --wait"))
}

// withSong runs fn with a song bound to a fresh OSC client
func withSong(cmd *cobra.Command, fn func(ctx context.Context, song *live.Song) error) error {
	client, err := util.NewLiveClient()
	if err != nil {
		return err
	}
	defer client.Stop()

	song := live.NewSong(client, live.WithPollInterval(viper.GetDuration("poll-interval")))
	return fn(cmd.Context(), song)
}
