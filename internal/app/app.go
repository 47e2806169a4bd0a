// Package app wires configuration, storage, the GitHub source, the Slack
// notifier and the announcer into one runnable unit. All dependencies are
// built here and passed down explicitly; nothing reaches for globals.
package app

import (
	"context"
	"fmt"
	"time"

	"repowatch/internal/announce"
	"repowatch/internal/config"
	"repowatch/internal/dedup"
	"repowatch/internal/describe"
	"repowatch/internal/eventbus"
	"repowatch/internal/github"
	"repowatch/internal/observability/metrics"
	"repowatch/internal/runtime/supervisor"
	"repowatch/internal/slack"
	"repowatch/internal/storage"
	logx "repowatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus      eventbus.Bus
	store    storage.Store
	guard    *dedup.Guard
	dedupTTL time.Duration

	announcer *announce.Service
	metrics   *metrics.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		if store != nil {
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	acfg, err := mapAnnounceConfig(cfg)
	if err != nil {
		return nil, err
	}
	dedupTTL, err := config.ParseDurationOrDefault("announce.dedup_window", cfg.Announce.DedupWindow, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	// The guard must remember an ID at least as long as the event stays
	// announceable, or an evicted entry could be re-dispatched.
	if dedupTTL < acfg.RecencyWindow {
		dedupTTL = acfg.RecencyWindow
	}
	guard := dedup.New(cfg.Announce.DedupMaxEntries, dedupTTL)

	// Warm the guard from persisted announced IDs so a restart inside the
	// recency window does not re-announce.
	if store != nil {
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		known, err := store.LoadAnnounced(wctx)
		cancel()
		if err != nil {
			log.Warn("warm start from storage failed", logx.Err(err))
		} else {
			for id, until := range known {
				guard.Warm(id, until)
			}
			log.Info("announced set warmed", logx.Int("entries", guard.Len()))
		}
	}

	source, err := github.New(github.Config{
		Token:    cfg.GitHub.Token,
		Login:    cfg.GitHub.Login,
		Password: cfg.GitHub.Password,
		BaseURL:  cfg.GitHub.BaseURL,
		PerPage:  cfg.GitHub.PerPage,
	}, log.With(logx.String("comp", "github")))
	if err != nil {
		return nil, err
	}

	notifier, err := slack.New(slack.Config{
		Token:          cfg.Slack.Token,
		AsUser:         cfg.Slack.AsUser,
		UnfurlLinks:    cfg.Slack.UnfurlLinks,
		AttachmentMode: cfg.Slack.AttachmentMode,
		RatePerSec:     cfg.Slack.RatePerSec,
	}, log.With(logx.String("comp", "slack")))
	if err != nil {
		return nil, err
	}

	// Describer construction validates every template against the link rule
	// registry, so a bad rule set fails here and not mid-cycle.
	var descOpts []describe.Option
	if cfg.GitHub.BaseURL != "" {
		descOpts = append(descOpts, describe.WithBaseURL(cfg.GitHub.BaseURL))
	}
	describer, err := describe.New(descOpts...)
	if err != nil {
		return nil, err
	}

	announcer, err := announce.New(acfg, source, notifier, describer, guard, store, bus,
		log.With(logx.String("comp", "announce")))
	if err != nil {
		return nil, err
	}

	metricsSvc := metrics.New(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
	}, bus, log.With(logx.String("comp", "metrics")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		guard:     guard,
		dedupTTL:  dedupTTL,
		announcer: announcer,
		metrics:   metricsSvc,
	}, nil
}

func mapAnnounceConfig(cfg *config.Config) (announce.Config, error) {
	window, err := config.ParseDurationOrDefault("announce.recency_window", cfg.Announce.RecencyWindow, 10*time.Minute)
	if err != nil {
		return announce.Config{}, err
	}
	return announce.Config{
		Repositories:  cfg.Repositories,
		Channel:       cfg.Slack.Channel,
		RecencyWindow: window,
		Schedule:      cfg.Announce.Schedule,
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce executes a single poll cycle and returns. Used by the -once flag.
func (a *App) RunOnce(ctx context.Context) {
	a.announcer.RunOnce(ctx)
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		// Beyond Config.Validate: reject schedules the announcer cannot parse.
		acfg, err := mapAnnounceConfig(cfg)
		if err != nil {
			return err
		}
		if acfg.Schedule != "" {
			if _, err := announce.ParseSchedule(acfg.Schedule); err != nil {
				return err
			}
		}
		if _, err := config.ParseDurationField("announce.dedup_window", cfg.Announce.DedupWindow); err != nil {
			return err
		}
		return nil
	})

	a.sup.GoRestart("announce.poll", a.announcer.Run)
	a.sup.GoRestart("metrics", a.metrics.Run)
	a.sup.Go("config.watch", a.cfgm.Watch)

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyReload(newCfg)
			}
		}
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes a validated config into the running components.
// Logging and announce policy apply live; storage and credentials need a
// restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	acfg, err := mapAnnounceConfig(cfg)
	switch {
	case err != nil:
		a.log.Warn("invalid announce config; keeping previous", logx.Err(err))
	case acfg.RecencyWindow > a.dedupTTL:
		// The guard's memory is sized at startup; a wider window would
		// outlive it and allow re-announcement of evicted IDs.
		a.log.Warn("recency window exceeds dedup memory; restart required for the wider window",
			logx.Duration("window", acfg.RecencyWindow), logx.Duration("dedup", a.dedupTTL))
	default:
		if err := a.announcer.Apply(acfg); err != nil {
			a.log.Warn("announce config rejected; keeping previous", logx.Err(err))
		}
	}

	if cfg.Storage != nil && a.store == nil || cfg.Storage == nil && a.store != nil {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	if a.sup != nil {
		a.sup.Cancel()
	}

	// Run each shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	if a.sup != nil {
		step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
