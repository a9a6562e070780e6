package cmd

import (
	"fmt"
	"os"

	"github.com/zenibako/cuebridge/cmd/cues"
	"github.com/zenibako/cuebridge/cmd/serve"
	"github.com/zenibako/cuebridge/cmd/util"
	"github.com/zenibako/cuebridge/live"

	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "cuebridge",
		Short: "HTTP to OSC bridge for Ableton Live cue points",
		Long: fmt.Sprintf(`cuebridge (v%s)

Trigger and monitor Ableton Live playback from a browser or the terminal.
Requests are translated into OSC messages for the AbletonOSC remote script,
and its replies are translated back.`, Version),
		PersistentPreRunE: util.SetupCommand,
		SilenceUsage:      true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cuebridge",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cuebridge v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(cues.CueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "hostname"
	RootCmd.PersistentFlags().String(key, "127.0.0.1", util.WrapString("Host running Ableton Live with AbletonOSC"))

	key = "port"
	RootCmd.PersistentFlags().Int(key, live.DefaultRemotePort, util.WrapString("UDP port AbletonOSC listens on"))

	key = "client-port"
	RootCmd.PersistentFlags().Int(key, live.DefaultLocalPort, util.WrapString("Local UDP port AbletonOSC replies to"))

	key = "timeout"
	RootCmd.PersistentFlags().Duration(key, live.TickDuration, util.WrapString("How long to wait for a reply from Live"))

	key = "verbose"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("Log every OSC message received from Live"))

	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
