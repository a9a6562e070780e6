package cues

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zenibako/cuebridge/cmd/util"
	"github.com/zenibako/cuebridge/live"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errNoSelection is returned when no cue is given and none can be prompted for
var errNoSelection = errors.New("no cue selected: pass --index or run in a terminal")

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List cue points sorted by position",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSong(cmd, func(ctx context.Context, song *live.Song) error {
				cues, err := song.CuePoints(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out, err := live.ToJSON(cues, true)
					if err != nil {
						return err
					}
					util.WriteLine(cmd.OutOrStdout(), "%s", out)
					return nil
				}
				if len(cues) == 0 {
					util.WriteLine(cmd.OutOrStdout(), "No cue points in the current set")
					return nil
				}
				util.WriteLine(cmd.OutOrStdout(), "%s", util.RenderCueTable(cues))
				return nil
			})
		},
	}

	playCmd = &cobra.Command{
		Use:   "play",
		Short: "Play from a cue point",
		Long:  `Jump to a cue point and start playback. Without --index an interactive picker is shown. With --wait the command blocks until the next stop cue is reached and playback is stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSong(cmd, func(ctx context.Context, song *live.Song) error {
				cues, err := song.CuePoints(ctx)
				if err != nil {
					return err
				}

				index := viper.GetInt("index")
				if !cmd.Flags().Changed("index") {
					if !util.IsTerminal(os.Stdin) {
						return errNoSelection
					}
					if index, err = pickCue(cues); err != nil {
						return err
					}
				}

				result, err := song.Play(cues, index)
				if err != nil {
					return err
				}
				util.WriteLine(cmd.OutOrStdout(), "Playing %s from %.2f", cues[index].Name, result.StartPos)

				if !viper.GetBool("wait") {
					return nil
				}
				if result.StopPos == nil {
					log.Warn("No stop cue after this cue, not waiting")
					return nil
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				if err := song.WaitForPosition(ctx, *result.StopPos); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				util.WriteLine(cmd.OutOrStdout(), "Stopped at %.2f", *result.StopPos)
				return nil
			})
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop playback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSong(cmd, func(_ context.Context, song *live.Song) error {
				return song.Stop()
			})
		},
	}

	followCmd = &cobra.Command{
		Use:   "follow",
		Short: "Print playhead updates until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSong(cmd, func(ctx context.Context, song *live.Song) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				out := cmd.OutOrStdout()
				return song.FollowSongTime(ctx, func(position float64) {
					util.WriteLine(out, "%.2f", position)
				})
			})
		},
	}
)

func init() {
	listCmd.Flags().Bool("json", false, util.WrapString("Print cue points as JSON pairs"))

	playCmd.Flags().Int("index", 0, util.WrapString("Index of the cue point to play, as shown by cues list"))
	playCmd.Flags().Bool("wait", false, util.WrapString("Block until the next stop cue is reached, then stop playback"))
}

// pickCue prompts for a cue to play. Stop cues are not offered.
func pickCue(cues []live.CuePoint) (int, error) {
	options := make([]huh.Option[int], 0, len(cues))
	for i, cue := range cues {
		if cue.IsStop() {
			continue
		}
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%.2f)", cue.Name, cue.Time), i))
	}
	if len(options) == 0 {
		return 0, errNoSelection
	}

	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which cue would you like to play?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		return 0, fmt.Errorf("failed to get cue selection: %w", err)
	}
	return choice, nil
}
