package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zenibako/cuebridge/live"

	"github.com/charmbracelet/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix prefixes every environment variable read by viper
	EnvPrefix = "cuebridge"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and maps CUEBRIDGE_* variables onto flags
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupCommand binds the command flags to viper and applies the log level
func SetupCommand(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return SetupLogging(viper.GetString("log-level"))
}

// SetupLogging sets the global log level
func SetupLogging(level string) error {
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

// GetLiveConfig reads the OSC client configuration from viper
func GetLiveConfig() live.Config {
	return live.Config{
		Host:       viper.GetString("hostname"),
		Port:       viper.GetInt("port"),
		ListenPort: viper.GetInt("client-port"),
		Timeout:    viper.GetDuration("timeout"),
		Verbose:    viper.GetBool("verbose"),
	}
}

// NewLiveClient creates an OSC client from the current configuration
func NewLiveClient() (*live.Client, error) {
	return live.NewClient(GetLiveConfig())
}

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w any) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RenderCueTable renders cue points as a table, marking stop cues
func RenderCueTable(cues []live.CuePoint) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(table.Row{"#", "Cue", "Position", "Stop"})

	for i, cue := range cues {
		stop := ""
		if cue.IsStop() {
			stop = "yes"
		}
		tw.AppendRow(table.Row{i, cue.Name, fmt.Sprintf("%.2f", cue.Time), stop})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// WriteLine writes one line to w, ignoring write errors on closed pipes
func WriteLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
