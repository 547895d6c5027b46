package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/goclaw/actiond/config"
	"github.com/goclaw/actiond/pkg/action"
	"github.com/goclaw/actiond/pkg/api"
	"github.com/goclaw/actiond/pkg/api/events"
	"github.com/goclaw/actiond/pkg/api/handlers"
	"github.com/goclaw/actiond/pkg/app"
	"github.com/goclaw/actiond/pkg/editor"
	"github.com/goclaw/actiond/pkg/eventbus"
	"github.com/goclaw/actiond/pkg/logger"
	"github.com/goclaw/actiond/pkg/metrics"
	"github.com/goclaw/actiond/pkg/notification"
	"github.com/goclaw/actiond/pkg/saga"
	"github.com/goclaw/actiond/pkg/storage"
	"github.com/goclaw/actiond/pkg/storage/badger"
	"github.com/goclaw/actiond/pkg/storage/memory"
	"github.com/goclaw/actiond/pkg/telemetry/tracing"
	"github.com/goclaw/actiond/pkg/toast"
)

// daemon is one run of the whole service. A reload ends the run; the
// supervisor builds a fresh daemon from reloaded configuration.
type daemon struct {
	cfg     *config.Config
	log     logger.Logger
	limiter *rate.Limiter
	reload  chan struct{}
}

func newDaemon(cfg *config.Config, log logger.Logger, limiter *rate.Limiter) *daemon {
	return &daemon{cfg: cfg, log: log, limiter: limiter, reload: make(chan struct{}, 1)}
}

// requestReload is the app.Reloader of the daemon. It returns at once; the
// run winds down after the reload task has finished.
func (d *daemon) requestReload(context.Context) error {
	select {
	case d.reload <- struct{}{}:
	default:
	}
	return nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "badger":
		return badger.NewBadgerStorage(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
	case "memory", "":
		return memory.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// components are the pieces a run wires together.
type components struct {
	metrics   *metrics.Manager
	store     storage.Store
	program   *editor.Store
	stack     *toast.Stack
	scheduler *saga.Scheduler
	bridge    *eventbus.Bridge
	transport *eventbus.RedisTransport
	redis     redis.UniversalClient
	events    *events.Broadcaster
	stream    *handlers.WebSocketHandler
	watcher   *editor.ChangeWatcher
	http      *api.HTTPServer

	cleanups []func()
}

func (c *components) close() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
}

// build wires every component of one run. On error the partially built set
// is released.
func (d *daemon) build(ctx context.Context) (c *components, err error) {
	cfg := d.cfg
	c = &components{}
	defer func() {
		if err != nil {
			c.close()
		}
	}()

	c.metrics = metrics.NewManager(metrics.Config{
		Enabled:             cfg.Metrics.Enabled,
		Port:                cfg.Metrics.Port,
		Path:                cfg.Metrics.Path,
		TaskDurationBuckets: metrics.DefaultConfig().TaskDurationBuckets,
		HTTPDurationBuckets: metrics.DefaultConfig().HTTPDurationBuckets,
	})
	if c.metrics.Enabled() {
		saga.SetMetricsRecorder(c.metrics)
		c.cleanups = append(c.cleanups, func() { saga.SetMetricsRecorder(nil) })
	}

	c.store, err = openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	c.cleanups = append(c.cleanups, func() {
		if err := c.store.Close(); err != nil {
			d.log.Error("Error closing storage", "error", err)
		}
	})
	d.log.Info("Initialized storage", "type", cfg.Storage.Type)

	c.program, err = editor.NewStore(cfg.Editor.ProgramPath)
	if err != nil {
		return nil, err
	}
	if _, err := c.program.Load(ctx); err != nil {
		return nil, err
	}

	c.stack = toast.NewStack(toast.WithMaxToasts(cfg.Toast.MaxToasts))
	c.cleanups = append(c.cleanups, c.metrics.ObserveToasts(c.stack))

	c.scheduler = saga.New(
		saga.WithLogger(d.log),
		saga.WithHistorySize(cfg.Scheduler.HistorySize),
	)
	if err := d.registerWatchers(c); err != nil {
		return nil, err
	}

	if cfg.Bridge.Enabled {
		if err := d.buildBridge(c); err != nil {
			return nil, err
		}
	}

	c.events = events.NewBroadcaster()
	c.cleanups = append(c.cleanups, c.events.Attach(c.stack), c.events.Close)
	c.stream = handlers.NewWebSocketHandler(d.log, c.stack, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		MaxConnections: cfg.Server.MaxWebSocketConnections,
	})

	if cfg.Editor.Watch {
		if err := os.MkdirAll(filepath.Dir(c.program.Path()), 0o755); err != nil {
			return nil, fmt.Errorf("create program dir: %w", err)
		}
		c.watcher, err = editor.NewChangeWatcher(c.program, c.scheduler,
			editor.WithDebounce(cfg.Editor.Debounce),
			editor.WithLogger(d.log),
		)
		if err != nil {
			return nil, err
		}
	}

	h := &api.Handlers{
		Actions:     handlers.NewActionHandler(c.scheduler, action.DefaultCodec()),
		Toasts:      handlers.NewToastHandler(c.stack),
		Tasks:       handlers.NewTaskHandler(c.scheduler),
		Health:      d.healthHandler(c),
		Stream:      c.stream,
		RateLimiter: d.limiter,
	}
	if c.metrics.Enabled() {
		h.Metrics = c.metrics
		if cfg.Metrics.Port == 0 || cfg.Metrics.Port == cfg.Server.Port {
			h.MetricsHandler = c.metrics.Handler()
		}
	}
	c.http = api.NewHTTPServer(cfg, d.log, h)
	return c, nil
}

func (d *daemon) registerWatchers(c *components) error {
	n, err := notification.New(c.stack)
	if err != nil {
		return err
	}
	if err := n.Register(c.scheduler); err != nil {
		return err
	}

	reload, err := app.NewReload(storage.Registry(c.store), app.ReloaderFunc(d.requestReload),
		app.WithTransitionHook(func(from, to app.ReloadState) {
			d.log.Info("reload progressing", "from", from.String(), "to", to.String())
		}),
	)
	if err != nil {
		return err
	}
	if err := reload.Register(c.scheduler); err != nil {
		return err
	}
	return editor.RegisterReload(c.scheduler, c.program)
}

func (d *daemon) buildBridge(c *components) error {
	cfg := d.cfg.Bridge
	c.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Address},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.cleanups = append(c.cleanups, func() { _ = c.redis.Close() })
	c.transport = eventbus.NewRedisTransport(c.redis)
	c.cleanups = append(c.cleanups, func() { _ = c.transport.Close() })

	bridge, err := eventbus.NewBridge(c.transport, c.scheduler, eventbus.BridgeConfig{
		NodeID:      cfg.NodeID,
		Prefix:      cfg.Prefix,
		Outbound:    cfg.Outbound,
		QueueSize:   cfg.QueueSize,
		DedupWindow: cfg.DedupWindow,
		Telemetry:   c.metrics,
		Codec:       action.DefaultCodec(),
		Logger:      d.log,
	})
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	c.bridge = bridge

	return c.scheduler.TakeEvery("bridge.forward", bridge.Matcher(), func(t *saga.Task, a action.Action) error {
		if !bridge.Forward(a) {
			t.Logger().Warn("action not forwarded", "action", a.Type())
		}
		return nil
	})
}

func (d *daemon) healthHandler(c *components) *handlers.HealthHandler {
	opts := []handlers.HealthOption{
		handlers.WithLiveness(handlers.CheckerFunc(func(context.Context) error {
			select {
			case <-c.scheduler.Done():
				return saga.ErrStopped
			default:
				return nil
			}
		})),
		handlers.WithReadiness("storage", handlers.CheckerFunc(func(ctx context.Context) error {
			_, err := c.store.List(ctx)
			return err
		})),
		handlers.WithStatus(func(ctx context.Context) map[string]any {
			live, _ := c.scheduler.Tasks(ctx)
			doc := map[string]any{
				"toasts_visible": len(c.stack.Keys()),
				"tasks_live":     len(live),
				"watchers":       len(c.scheduler.Watchers()),
				"program": map[string]any{
					"path":      c.program.Path(),
					"bytes":     len(c.program.Content()),
					"loaded_at": c.program.LoadedAt(),
				},
			}
			if c.bridge != nil {
				doc["bridge_degraded"] = c.bridge.Degraded()
			}
			return doc
		}),
	}
	if c.transport != nil {
		opts = append(opts, handlers.WithReadiness("bridge", handlers.CheckerFunc(func(ctx context.Context) error {
			if !c.transport.Healthy(ctx) {
				return errors.New("redis unreachable")
			}
			return nil
		})))
	}
	return handlers.NewHealthHandler(opts...)
}

// run builds the components, serves until ctx is done or a reload is
// requested, then shuts everything down. It reports whether a reload ended
// the run.
func (d *daemon) run(ctx context.Context) (reloaded bool, err error) {
	shutdownTracing, err := tracing.Init(ctx, d.cfg.Tracing, tracing.WithLogger(d.log))
	if err != nil {
		return false, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			d.log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	c, err := d.build(ctx)
	if err != nil {
		return false, err
	}
	defer c.close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return c.scheduler.Run(gctx) })
	g.Go(func() error {
		if err := c.scheduler.Dispatch(gctx, action.AppDidStart{}); err != nil && gctx.Err() == nil {
			return fmt.Errorf("dispatch start: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		c.stream.Relay(gctx, c.events)
		return nil
	})
	g.Go(c.http.Start)

	if c.watcher != nil {
		g.Go(func() error { return c.watcher.Watch(gctx) })
	}
	if c.bridge != nil {
		g.Go(func() error { return c.bridge.Run(gctx) })
	}
	if c.metrics.Enabled() && d.cfg.Metrics.Port != 0 && d.cfg.Metrics.Port != d.cfg.Server.Port {
		g.Go(func() error {
			d.log.Info("Starting metrics server", "port", d.cfg.Metrics.Port, "path", d.cfg.Metrics.Path)
			if err := c.metrics.StartServer(gctx, d.cfg.Metrics.Port, d.cfg.Metrics.Path); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-d.reload:
			reloaded = true
			d.log.Info("reload requested, stopping current run")
		}
		cancel()

		sctx, scancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
		defer scancel()
		c.stream.Close()
		return c.http.Shutdown(sctx)
	})

	d.log.Info("actiond is running",
		"http_addr", c.http.Addr(),
		"metrics_port", d.cfg.Metrics.Port,
		"storage", d.cfg.Storage.Type,
		"bridge", d.cfg.Bridge.Enabled,
	)

	err = g.Wait()
	return reloaded, err
}
