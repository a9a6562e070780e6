package serve

import (
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/zenibako/cuebridge/cmd/util"
	"github.com/zenibako/cuebridge/live"
	"github.com/zenibako/cuebridge/web"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP bridge",
		Long:  `Start the HTTP bridge and the setlist page. The configuration can be set via command line flags or environment variables. The format of the environment variables is CUEBRIDGE_<flag> (e.g. CUEBRIDGE_POLL_INTERVAL=200ms)`,
		RunE:  run,
	}
)

func init() {
	key := "listen"
	ServeCmd.Flags().String(key, web.DefaultListenAddr, cmdUtil.WrapString("The address on which the HTTP bridge will listen"))

	key = "poll-interval"
	ServeCmd.Flags().Duration(key, live.TickDuration, cmdUtil.WrapString("How often the playhead is polled while waiting for a stop cue"))

	key = "bundle-play"
	ServeCmd.Flags().Bool(key, false, cmdUtil.WrapString("Send the cue jump and start commands as a single OSC bundle"))

	key = "title"
	ServeCmd.Flags().String(key, "Setlist", cmdUtil.WrapString("Heading shown on the setlist page"))
}

// run starts the bridge and blocks until interrupted
func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := cmdUtil.NewLiveClient()
	if err != nil {
		return err
	}
	defer client.Stop()

	song := live.NewSong(client,
		live.WithPollInterval(viper.GetDuration("poll-interval")),
		live.WithBundledPlay(viper.GetBool("bundle-play")),
	)
	monitor := live.NewMonitor(song)
	defer monitor.Close()

	if err := client.Ping(ctx); err != nil {
		log.Warnf("Live is not answering yet: %v", err)
	}

	server := web.NewServer(song, monitor,
		web.WithHealthCheck(client),
		web.WithTitle(viper.GetString("title")),
		web.WithPollInterval(song.PollInterval()),
	)
	return server.ListenAndServe(ctx, viper.GetString("listen"))
}
