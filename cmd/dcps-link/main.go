// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/OpenDDS/OpenDDS-sub024/lib/access"
	"github.com/OpenDDS/OpenDDS-sub024/lib/config"
	"github.com/OpenDDS/OpenDDS-sub024/lib/version"
	"github.com/OpenDDS/OpenDDS-sub024/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds everything the publish and subscribe modes need.
type options struct {
	config    *config.Config
	transport transport.Config
	access    *access.Table
	registry  *prometheus.Registry
	logger    *slog.Logger

	peers     []string
	topic     string
	partition string
	sensor    string
	count     int
	interval  time.Duration
}

func run() error {
	var (
		configPath     string
		role           string
		listenAddress  string
		metricsAddress string
		opts           options
		verbose        bool
	)

	flagSet := pflag.NewFlagSet("dcps-link", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a link config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&role, "role", "subscribe", "link role: publish or subscribe")
	flagSet.StringVar(&listenAddress, "listen", "", "address to accept links on and announce to peers (overrides link.listen_address)")
	flagSet.StringVar(&metricsAddress, "metrics-address", "", "serve Prometheus metrics on this address (overrides metrics.address)")
	flagSet.StringSliceVar(&opts.peers, "peer", nil, "peer address; publish connects to it, subscribe accepts from it (repeatable)")
	flagSet.StringVar(&opts.topic, "topic", "sensors/temperature", "topic to publish or subscribe")
	flagSet.StringVar(&opts.partition, "partition", "", "partition to publish in, or partition pattern to subscribe to")
	flagSet.StringVar(&opts.sensor, "sensor", "", "sensor name to publish as (default: host name)")
	flagSet.IntVar(&opts.count, "count", 0, "readings to publish before exiting; 0 publishes until interrupted")
	flagSet.DurationVar(&opts.interval, "interval", time.Second, "time between published readings")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("dcps-link %s\n", version.Info())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logLevel := slog.LevelInfo
	if verbose || os.Getenv("DCPS_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	opts.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(opts.logger)

	loaded, restricted, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	opts.config = loaded
	if listenAddress != "" {
		if opts.config.Link.LocalAddress == opts.config.Link.ListenAddress {
			opts.config.Link.LocalAddress = listenAddress
		}
		opts.config.Link.ListenAddress = listenAddress
	}
	if metricsAddress != "" {
		opts.config.Metrics.Address = metricsAddress
	}
	if err := opts.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if opts.transport, err = transport.ConfigFromLink(opts.config.Link); err != nil {
		return err
	}
	opts.access = access.AllowAll()
	if restricted {
		if opts.access, err = access.FromConfig(opts.config.Access); err != nil {
			return err
		}
	}

	if len(opts.peers) == 0 {
		return errors.New("at least one --peer is required")
	}
	if opts.count < 0 {
		return fmt.Errorf("--count must not be negative, got %d", opts.count)
	}
	if opts.interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %v", opts.interval)
	}
	if opts.sensor == "" {
		if opts.sensor, err = os.Hostname(); err != nil {
			return fmt.Errorf("naming sensor: %w", err)
		}
	}

	opts.registry = prometheus.NewRegistry()
	opts.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	if address := opts.config.Metrics.Address; address != "" {
		group.Go(func() error { return serveMetrics(ctx, address, opts.registry, opts.logger) })
	}
	switch role {
	case "publish":
		group.Go(func() error {
			defer stop()
			return runPublisher(ctx, &opts)
		})
	case "subscribe":
		group.Go(func() error { return runSubscriber(ctx, &opts) })
	default:
		stop()
		return fmt.Errorf("--role must be publish or subscribe, got %q", role)
	}

	opts.logger.Info("dcps-link starting", "role", role, "version", version.Info(), "peers", opts.peers)
	return group.Wait()
}

// loadConfig loads the config file at path, or the one named by the
// environment when path is empty. restricted reports whether a file was
// loaded, in which case its access rules apply.
func loadConfig(path string) (loaded *config.Config, restricted bool, err error) {
	if path != "" {
		loaded, err = config.LoadFile(path)
		return loaded, err == nil, err
	}
	loaded, err = config.Load()
	if errors.Is(err, config.ErrNoConfig) {
		loaded = config.Default()
		loaded.Link.LocalAddress = loaded.Link.ListenAddress
		return loaded, false, nil
	}
	return loaded, err == nil, err
}

// serveMetrics serves the Prometheus registry until ctx ends.
func serveMetrics(ctx context.Context, address string, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "address", address)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// logLinkEvents logs every event of link.
func logLinkEvents(logger *slog.Logger) transport.LinkListener {
	return transport.LinkListenerFunc(func(link *transport.DataLink, event transport.Event) {
		level := slog.LevelInfo
		if event == transport.EventLost {
			level = slog.LevelWarn
		}
		logger.Log(context.Background(), level, "link event", "remote", link.RemoteAddress(), "event", event)
	})
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `dcps-link - exchange sensor readings over a reliable TCP link

Usage:
  dcps-link --role publish --peer <address> [flags]
  dcps-link --role subscribe --peer <address> [--peer <address>...] [flags]

Flags:
%s
Examples:
  # Subscriber listening on the configured address, accepting one publisher
  dcps-link --role subscribe --peer 10.0.0.7:7400

  # Publisher announcing itself as 10.0.0.7:7400
  DCPS_CONFIG=publisher.yaml dcps-link --role publish --peer 10.0.0.5:7400 --interval 500ms
`, flagSet.FlagUsages())
}
