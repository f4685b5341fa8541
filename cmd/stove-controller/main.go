// Command stove-controller runs the pellet-stove combustion controller: it
// sequences ignition, regulates the auger feed and enforces the safety
// interlocks, publishing its state to MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
	Console    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "stove-controller",
		Short:         "Pellet stove combustion controller",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file (defaults are used when empty)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.Console, "console", false, "human-readable log output")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newPrintStateCommand(opts))

	return cmd
}
