// Package app assembles the tracker: config, logging, the Telegram
// adapter, the GitHub client, the task registry, and the delivery
// pipeline, with ordered startup and bounded shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ghtrack/internal/config"
	"ghtrack/internal/eventbus"
	"ghtrack/internal/github"
	"ghtrack/internal/history"
	"ghtrack/internal/notifier"
	"ghtrack/internal/preview"
	rtsup "ghtrack/internal/runtime/supervisor"
	"ghtrack/internal/store"
	"ghtrack/internal/tracker"
	kit "ghtrack/internal/transport"
	"ghtrack/internal/transport/telegram/adapter"
	logx "ghtrack/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter  kit.Adapter
	client   *github.Client
	limiter  *github.RateLimiter
	registry *tracker.Registry
	taskDB   *store.FileStore
	hist     *history.Store
	notif    *notifier.Service
	digest   *digestService
	renderer preview.Renderer

	owners  []int64
	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	// Logging service first so everything else logs through it.
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	// Tokens may live in the environment instead of the config file.
	tgToken := strings.TrimSpace(cfg.Telegram.Token)
	if tgToken == "" {
		tgToken = strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN"))
	}
	if tgToken == "" {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram token missing: set telegram.token or TELEGRAM_TOKEN")
	}
	ghToken := strings.TrimSpace(cfg.GitHub.APIToken)
	if ghToken == "" {
		ghToken = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}

	pollTimeout, err := config.DurationOr("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adapter.Config{Token: tgToken, PollTimeout: pollTimeout},
		log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	reqTimeout, err := config.DurationOr("github.request_timeout", cfg.GitHub.RequestTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	limiter := github.NewRateLimiter(log.With(logx.String("comp", "github.ratelimit")))
	client := github.NewClient(github.ClientConfig{
		BaseURL:        cfg.GitHub.APIBaseURL,
		Token:          ghToken,
		RequestTimeout: reqTimeout,
	}, limiter, log.With(logx.String("comp", "github")))

	storePath := strings.TrimSpace(cfg.Tracker.StorePath)
	if storePath == "" {
		storePath = "./ghtrack_tasks.json"
	}
	taskDB, err := store.NewFileStore(storePath, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	notifCfg := notifier.Config{Prefix: cfg.Tracker.NotifyPrefix}
	if n := cfg.Notifier; n != nil {
		notifCfg.Workers = n.Workers
		notifCfg.QueueSize = n.QueueSize
		notifCfg.RatePerSec = n.RatePerSec
	}
	notif := notifier.New(notifCfg, ad, log.With(logx.String("comp", "notifier")))

	pollInterval, err := config.DurationOr("github.poll_interval", cfg.GitHub.PollInterval, 60*time.Second)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		adapter: ad,
		client:  client,
		limiter: limiter,
		taskDB:  taskDB,
		notif:   notif,
		owners:  cfg.Telegram.OwnerUserIDs,
		updates: make(chan kit.Update, 128),
	}

	a.registry = tracker.NewRegistry(
		tracker.LoopConfig{Interval: pollInterval, HideErrors: cfg.Tracker.HideErrorNotifications},
		client, taskDB, &chatSink{app: a},
		log.With(logx.String("comp", "tracker")),
	)

	// Optional pieces.
	if h := cfg.History; h != nil && strings.TrimSpace(h.Path) != "" {
		busy, err := config.ParseDuration("history.busy_timeout", h.BusyTimeout)
		if err != nil {
			return nil, err
		}
		hs, err := history.Open(history.Config{Path: h.Path, BusyTimeout: busy},
			log.With(logx.String("comp", "history")))
		if err != nil {
			return nil, err
		}
		a.hist = hs
		a.registry.SetRecorder(hs)
		log.Info("event history enabled", logx.String("path", h.Path))
	}
	if p := cfg.Preview; p != nil && strings.TrimSpace(p.RenderURL) != "" {
		timeout, err := config.DurationOr("preview.request_timeout", p.RequestTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		a.renderer = preview.NewHTTPRenderer(p.RenderURL, timeout)
		log.Info("preview renderer enabled")
	}
	if d := cfg.Digest; d != nil && strings.TrimSpace(d.Schedule) != "" {
		ds, err := newDigestService(a, *d)
		if err != nil {
			return nil, err
		}
		a.digest = ds
	}

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("adapter start: %w", err)
	}
	a.notif.Start(a.sup.Context())

	if err := a.registry.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("tracker start: %w", err)
	}
	if a.digest != nil {
		a.digest.Start()
	}

	a.sup.Go0("commands.dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up := <-a.updates:
				if up.Message != nil {
					a.handleMessage(c, up.Message)
				}
			}
		}
	})

	// Debug trace of internal events (task lifecycle, emissions).
	busCh, unsub := a.bus.Subscribe(64)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-busCh:
				if !ok {
					return
				}
				a.log.Debug("bus event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	})

	// Config hot reload: logging and notifier knobs apply live; polling and
	// transport settings need a restart.
	cfgCh := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(cfgCh)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-cfgCh:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Publish the command menu; best-effort.
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, commandMenu()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	a.log.Info("started",
		logx.Int("tasks", a.registry.Count()),
		logx.Bool("history", a.hist != nil),
		logx.Bool("digest", a.digest != nil))
	return nil
}

func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	ncfg := notifier.Config{Prefix: cfg.Tracker.NotifyPrefix}
	if n := cfg.Notifier; n != nil {
		ncfg.Workers = n.Workers
		ncfg.QueueSize = n.QueueSize
		ncfg.RatePerSec = n.RatePerSec
	}
	a.notif.Apply(ncfg)

	a.log.Info("config reload applied (logging, notifier); other sections need a restart")
}

// Stop shuts components down in reverse dependency order. Every step gets
// an upper bound so one stuck component cannot stall the whole stop.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem > 0 && rem < max {
				max = rem
			}
		}
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step failed", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step timed out", logx.String("name", name))
		}
	}

	if a.digest != nil {
		step("digest", 2*time.Second, func(c context.Context) error { a.digest.Stop(c); return nil })
	}
	step("tracker", 5*time.Second, func(c context.Context) error { return a.registry.Stop(c) })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("history", 1*time.Second, func(context.Context) error { return a.hist.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
