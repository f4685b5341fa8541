package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/stove-controller/internal/config"
	"github.com/sweeney/stove-controller/internal/gpio"
	"github.com/sweeney/stove-controller/internal/log"
	"github.com/sweeney/stove-controller/internal/logic"
	"github.com/sweeney/stove-controller/internal/loop"
	"github.com/sweeney/stove-controller/internal/mqtt"
	"github.com/sweeney/stove-controller/internal/status"
	"github.com/sweeney/stove-controller/internal/web"
)

const closeTimeout = 2 * time.Second

type runOptions struct {
	HTTP     string
	WSBroker string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Run the controller daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HTTP, "http", "", `HTTP status address, overrides http.listen ("off" disables)`)
	cmd.Flags().StringVar(&opts.WSBroker, "ws-broker", "", `MQTT websocket URL for the live page, overrides http.ws_broker ("=broker" derives from mqtt.broker, "off" disables)`)

	return cmd
}

// loadConfig reads the config file, or the defaults when no path is given,
// and configures logging from it and the root flags.
func loadConfig(root *rootOptions) (config.Config, error) {
	cfg := config.Defaults()
	if root.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(root.ConfigPath); err != nil {
			return config.Config{}, err
		}
	} else if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	level := cfg.Logging.Level
	if root.LogLevel != "" {
		level = root.LogLevel
	}
	log.Configure(log.Config{
		Level:   level,
		Console: cfg.Logging.Console || root.Console,
	})
	return cfg, nil
}

// applyRunFlags lets the run flags override the file.
func applyRunFlags(cfg *config.Config, opts *runOptions) {
	switch opts.HTTP {
	case "":
	case "off":
		cfg.HTTP.Listen = ""
	default:
		cfg.HTTP.Listen = opts.HTTP
	}
	if opts.WSBroker != "" {
		cfg.HTTP.WSBroker = opts.WSBroker
	}
}

// newHardware opens the configured relay backend. The returned close func
// is never nil.
func newHardware(cfg config.Config, l *loop.Loop, t mqtt.Transport, onEdge func(logic.Input, bool)) (hardware, func(), error) {
	switch cfg.Backend {
	case config.BackendShelly:
		p, err := mqtt.NewShellyPort(t, l, shellyConfig(cfg), onEdge, log.WithComponent("shelly"))
		if err != nil {
			return nil, func() {}, fmt.Errorf("init shelly: %w", err)
		}
		return p, func() {}, nil
	default:
		b, err := gpio.NewRealBoard(gpioConfig(cfg), l, onEdge, log.WithComponent("gpio"))
		if err != nil {
			return nil, func() {}, fmt.Errorf("init gpio: %w", err)
		}
		return b, func() { _ = b.Close() }, nil
	}
}

func runDaemon(parent context.Context, root *rootOptions, opts *runOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	applyRunFlags(&cfg, opts)
	logger := log.WithComponent("daemon")
	wsBroker := resolveWSBroker(cfg.HTTP.WSBroker, cfg.MQTT.Broker, logger)

	holder := config.NewHolder(cfg, root.ConfigPath, log.WithComponent("config"))
	topics := mqtt.TopicsFor(cfg.MQTT.Prefix)

	pub := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topics:   topics,
		Logger:   log.WithComponent("mqtt"),
	})
	defer pub.Close()

	l := loop.New()
	router := &edgeRouter{}
	hw, closeHW, err := newHardware(cfg, l, pub, router.handle)
	defer closeHW()
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg, wsBroker))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	holder.OnReload(func(c config.Config) {
		tracker.SetConfig(statusConfig(c, wsBroker))
	})

	reg := newRegistry()
	st := newStove(stoveDeps{
		Scheduler: l.Scheduler(),
		Poster:    l,
		Hardware:  hw,
		Config:    holder,
		Publisher: pub,
		Tracker:   tracker,
		Registry:  reg,
		Logger:    log.Base(),
	})
	router.ctrl = st.ctrl
	if err := st.inbound.Subscribe(pub, cfg.MQTT.TemperatureTopic, cfg.MQTT.CallTopic, topics.Command); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := l.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		st.events.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return holder.Watch(gctx)
	})

	var srv *web.Server
	if cfg.HTTP.Listen != "" {
		srv = web.New(cfg.HTTP.Listen, tracker, web.Options{
			Command: func(c logic.Command) bool {
				return l.Post(func() { st.ctrl.Dispatch(c) })
			},
			Gatherer:    reg,
			EventsTopic: topics.Events,
			Logger:      log.WithComponent("http"),
		})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		logger.Info().Str("addr", cfg.HTTP.Listen).Msg("http status server listening")
	}

	l.Post(st.ctrl.Start)

	d := &daemon{pub: pub, conn: pub, tracker: tracker, log: logger, now: time.Now}
	d.publishStatus(mqtt.EventStartup, "")
	logEffective(logger, cfg)

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	_, loopErr := d.runLoop(sigCh, heartbeat, gctx.Done())

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	defer closeCancel()
	if err := l.Call(closeCtx, st.ctrl.Close); err != nil {
		logger.Warn().Err(err).Msg("controller close")
	}
	if srv != nil {
		if err := srv.Shutdown(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
	}
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	return loopErr
}

func logEffective(logger zerolog.Logger, cfg config.Config) {
	logger.Info().
		Str("backend", cfg.Backend).
		Str("mode", string(cfg.Mode)).
		Str("broker", cfg.MQTT.Broker).
		Str("prefix", cfg.MQTT.Prefix).
		Dur("heartbeat", cfg.MQTT.Heartbeat).
		Msg("started")
}
