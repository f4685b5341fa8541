package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/stove-controller/internal/config"
	"github.com/sweeney/stove-controller/internal/log"
	"github.com/sweeney/stove-controller/internal/logic"
	"github.com/sweeney/stove-controller/internal/loop"
	"github.com/sweeney/stove-controller/internal/mqtt"
)

const connectWait = 10 * time.Second

var errBrokerUnreachable = errors.New("broker not reachable")

func newPrintStateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "print-state",
		Short:         "Print the current switch inputs and exit",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printState(cmd.Context(), root, cmd.OutOrStdout())
		},
	}
}

func printState(parent context.Context, root *rootOptions, w io.Writer) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	l := loop.New()
	go func() { _ = l.Run(ctx) }()

	var transport mqtt.Transport
	if cfg.Backend == config.BackendShelly {
		pub := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topics:   mqtt.TopicsFor(cfg.MQTT.Prefix),
			Logger:   log.WithComponent("mqtt"),
		})
		defer pub.Close()
		if err := waitConnected(ctx, pub, connectWait); err != nil {
			return err
		}
		transport = pub
	}

	hw, closeHW, err := newHardware(cfg, l, transport, func(logic.Input, bool) {})
	defer closeHW()
	if err != nil {
		return err
	}

	values, err := hw.ReadAll()
	if err != nil {
		return fmt.Errorf("read inputs: %w", err)
	}
	fmt.Fprintln(w, formatInputs(values))
	return nil
}

// waitConnected polls until the broker connection is up.
func waitConnected(ctx context.Context, c mqtt.ConnectionStatus, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for !c.IsConnected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errBrokerUnreachable
		case <-tick.C:
		}
	}
	return nil
}

// formatInputs renders inputs in wiring order, e.g.
// "vacuum: ON, flame_proof: OFF, start_button: OFF, stop_button: OFF".
func formatInputs(values map[logic.Input]bool) string {
	parts := make([]string, 0, len(logic.Inputs))
	for _, in := range logic.Inputs {
		parts = append(parts, fmt.Sprintf("%s: %s", in, stateString(values[in])))
	}
	return strings.Join(parts, ", ")
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
