package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/flowgraph/agentgraph/internal/adapters/lock"
	"github.com/flowgraph/agentgraph/internal/adapters/repository/memory"
	"github.com/flowgraph/agentgraph/internal/adapters/repository/postgres"
	"github.com/flowgraph/agentgraph/internal/adapters/repository/sqlite"
	"github.com/flowgraph/agentgraph/internal/app/usecases"
	"github.com/flowgraph/agentgraph/internal/core/checkpoint"
	"github.com/flowgraph/agentgraph/internal/infrastructure/config"
	"github.com/flowgraph/agentgraph/internal/infrastructure/logging"
	"github.com/flowgraph/agentgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/agentgraph/pkg/agentgraph"
	"github.com/flowgraph/agentgraph/pkg/prebuilt"
	"github.com/flowgraph/agentgraph/pkg/prebuilt/echo"
)

// app holds the process-wide collaborators built from configuration.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Recorder
	saver    checkpoint.Saver
	registry *prebuilt.Registry
	closers  []func() error
}

// newRegistry lists every graph the CLI can run.
func newRegistry() *prebuilt.Registry {
	r := prebuilt.NewRegistry()
	r.MustRegister(echo.Builder())
	return r
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{
		cfg:      cfg,
		logger:   logging.New(level, cfg.Log.Format),
		metrics:  metrics.New(reg),
		registry: newRegistry(),
	}
	if err := a.openSaver(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openSaver(ctx context.Context) error {
	c := a.cfg.Checkpoint
	serializer, err := c.Serializer()
	if err != nil {
		return err
	}

	switch c.Driver {
	case "sqlite":
		s, err := sqlite.Open(ctx, c.DSN, serializer)
		if err != nil {
			return err
		}
		a.saver = s
		a.closers = append(a.closers, s.Close)
	case "postgres":
		s, err := postgres.Connect(ctx, c.DSN, serializer)
		if err != nil {
			return err
		}
		a.saver = s
		a.closers = append(a.closers, func() error { s.Close(); return nil })
	default:
		s := memory.NewInMemorySaver(memory.InMemoryConfig{
			DefaultTTL:  c.TTL,
			MaxMemoryMB: c.MaxMemoryMB,
			Serializer:  serializer,
		})
		a.saver = s
		a.closers = append(a.closers, s.Close)
	}
	a.logger.Debug("checkpoint saver ready", "driver", c.Driver, "codec", c.Codec, "compression", c.Compression)
	return nil
}

// openLocker returns the thread locker for the configured driver.
func (a *app) openLocker(ctx context.Context) (usecases.ThreadLocker, error) {
	c := a.cfg.Lock
	if c.Driver != "redis" {
		return lock.NewMemoryLocker(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", c.RedisAddr, err)
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client, c.Prefix), nil
}

// build compiles the named graph, or every registered graph when name is
// empty, against the shared saver.
func (a *app) build(ctx context.Context, name string) ([]agentgraph.Runnable, error) {
	opts := []agentgraph.CompileOption{
		agentgraph.WithCheckpointer(a.saver),
		agentgraph.WithLogger(a.logger),
		agentgraph.WithMetrics(a.metrics),
	}
	if name == "" {
		return a.registry.BuildAll(ctx, opts...)
	}
	g, err := a.registry.Build(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return []agentgraph.Runnable{g}, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
