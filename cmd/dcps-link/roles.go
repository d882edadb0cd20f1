// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/bridge"
	"github.com/OpenDDS/OpenDDS-sub024/lib/dcps"
	"github.com/OpenDDS/OpenDDS-sub024/lib/jobqueue"
	"github.com/OpenDDS/OpenDDS-sub024/transport"
)

// runPublisher connects to every peer and publishes readings until
// count is reached or ctx ends, then unregisters its instance.
func runPublisher(ctx context.Context, opts *options) error {
	linkTransport, err := transport.New(opts.transport, transport.Options{
		Logger:  opts.logger,
		Metrics: transport.NewMetrics(opts.registry),
	})
	if err != nil {
		return err
	}
	defer linkTransport.Close()

	publisher, err := bridge.NewPublisher[Reading](opts.topic,
		bridge.WithDomain(opts.config.Domain),
		bridge.WithPartition(opts.partition),
		bridge.WithAccess(opts.access),
		bridge.WithLogger(opts.logger),
	)
	if err != nil {
		return err
	}

	for _, peer := range opts.peers {
		link, err := linkTransport.Connect(ctx, peer)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", peer, err)
		}
		link.AddListener(logLinkEvents(opts.logger))
		publisher.AddLink(link)
	}

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	reading := Reading{Sensor: opts.sensor, Celsius: 20}
	if err := publisher.RegisterInstance(reading, time.Now()); err != nil {
		opts.logger.Warn("registering instance", "error", err)
	}
	for opts.count == 0 || reading.Sequence < uint64(opts.count) {
		select {
		case <-ctx.Done():
			return unregister(publisher, reading, opts.logger)
		case <-ticker.C:
		}
		reading.Sequence++
		reading.Celsius += rand.Float64() - 0.5
		if err := publisher.Write(reading, time.Now()); err != nil {
			opts.logger.Warn("publishing reading", "sequence", reading.Sequence, "error", err)
			continue
		}
		opts.logger.Debug("published reading", "sequence", reading.Sequence, "celsius", reading.Celsius)
	}
	return unregister(publisher, reading, opts.logger)
}

func unregister(publisher *bridge.Publisher[Reading], reading Reading, logger *slog.Logger) error {
	if err := publisher.UnregisterInstance(reading, time.Now()); err != nil {
		logger.Warn("unregistering instance", "error", err)
	}
	return nil
}

// runSubscriber accepts links from every peer and logs the samples
// they deliver until ctx ends.
func runSubscriber(ctx context.Context, opts *options) error {
	bridgeOptions := []bridge.Option{
		bridge.WithDomain(opts.config.Domain),
		bridge.WithPartition(opts.partition),
		bridge.WithAccess(opts.access),
		bridge.WithLogger(opts.logger),
	}
	router := bridge.NewRouter(bridgeOptions...)

	linkTransport, err := transport.New(opts.transport, transport.Options{
		Logger:    opts.logger,
		Metrics:   transport.NewMetrics(opts.registry),
		Deliverer: router,
	})
	if err != nil {
		return err
	}
	defer linkTransport.Close()

	sink := dcps.NewSink(readingSensor,
		dcps.WithDepth(opts.config.Cache.HistoryDepth),
		dcps.WithMetrics(dcps.NewMetrics(opts.registry), opts.topic),
	)
	queue := jobqueue.New(opts.logger)
	defer queue.Close()
	dcps.NewQueueObserver(queue, sink, func(sink *dcps.Sink[Reading, string]) {
		logSamples(opts.logger, sink.Take(dcps.LengthUnlimited, dcps.AnySampleState, dcps.AnyViewState, dcps.AnyInstanceState))
	})

	subscriber, err := bridge.NewSubscriber(opts.topic, readingSensor,
		append(bridgeOptions, bridge.WithDurabilityDepth(opts.config.Cache.DurabilityDepth))...)
	if err != nil {
		return err
	}
	subscriber.Connect(sink)
	if err := bridge.Subscribe(router, subscriber); err != nil {
		return err
	}

	listener, err := transport.ListenTCP(opts.config.Link.ListenAddress)
	if err != nil {
		return err
	}
	serveErrors := make(chan error, 1)
	go func() { serveErrors <- linkTransport.Serve(ctx, listener) }()

	for _, peer := range opts.peers {
		go acceptPeer(ctx, linkTransport, router, peer, opts.logger)
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErrors:
		return err
	}
}

// acceptPeer waits for peer's link and attaches the router to it. A
// peer that misses the passive connect window is retried until ctx
// ends.
func acceptPeer(ctx context.Context, linkTransport *transport.Transport, router *bridge.Router, peer string, logger *slog.Logger) {
	for ctx.Err() == nil {
		link, err := linkTransport.Accept(ctx, peer)
		if errors.Is(err, transport.ErrTransportClosed) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("accepting link", "peer", peer, "error", err)
			}
			continue
		}
		link.AddListener(logLinkEvents(logger))
		link.AddListener(router)
		logger.Info("link accepted", "peer", peer)
		return
	}
}

func logSamples(logger *slog.Logger, taken dcps.Collection[Reading]) {
	for i, sample := range taken.Samples {
		info := taken.Infos[i]
		if !info.ValidData {
			logger.Info("instance state changed", "sensor", sample.Sensor, "state", info.InstanceState)
			continue
		}
		logger.Info("reading",
			"sensor", sample.Sensor,
			"sequence", sample.Sequence,
			"celsius", fmt.Sprintf("%.2f", sample.Celsius),
			"source_time", info.SourceTimestamp,
		)
	}
}
