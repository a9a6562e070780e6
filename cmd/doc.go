// Package cmd implements the command-line interface for cuebridge, the HTTP
// to OSC bridge for Ableton Live.
//
// The package is organized into several subpackages:
//
//   - serve: Runs the HTTP bridge and the setlist page
//   - cues: Lists, plays, stops and follows cue points from the terminal
//   - util: Shared utilities for flags, configuration and output (internal use)
//
// Every flag can also be set through the environment as CUEBRIDGE_<FLAG>
// (e.g. CUEBRIDGE_CLIENT_PORT=11001), or in a .env / .env.local file.
//
// See cuebridge -help for a list of all commands.
package cmd
