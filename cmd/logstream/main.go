package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/SteelMorgan/logstream/internal/config"
	"github.com/SteelMorgan/logstream/internal/engine"
	"github.com/SteelMorgan/logstream/internal/host"
	"github.com/SteelMorgan/logstream/internal/observability"
)

const version = "0.1.0"

var errStdinClosed = errors.New("stdin closed")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logCloser := observability.InitLogger(cfg.LogLevel, cfg.LogFile)
	defer logCloser.Close()

	log.Info().
		Str("version", version).
		Msg("Starting log stream engine")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Protocol:       cfg.TracingProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proto := host.NewProtocol(os.Stdin, os.Stdout)

	eng, err := engine.New(ctx, cfg, proto)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create engine")
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := proto.Serve(gctx, eng); err != nil {
			return err
		}
		return errStdinClosed
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")
		return eng.Close()
	})

	log.Info().Msg("Engine ready, serving requests on stdin")

	err = g.Wait()
	switch {
	case err == nil, errors.Is(err, errStdinClosed):
		log.Info().Msg("Host closed the request stream")
	case errors.Is(err, context.Canceled):
		log.Info().Msg("Received shutdown signal")
	default:
		log.Error().Err(err).Msg("Engine stopped with error")
		return err
	}

	log.Info().Msg("Log stream engine stopped")
	return nil
}
