// Package announce runs the polling loop: fetch recent repository events,
// render them to chat messages, and dispatch each at most once.
package announce

import (
	"context"
	"sync"
	"time"

	"repowatch/internal/dedup"
	"repowatch/internal/event"
	"repowatch/internal/eventbus"
	"repowatch/internal/storage"
	logx "repowatch/pkg/logx"
)

// Source fetches the recent event feed for one repository, newest first.
type Source interface {
	FetchRecent(ctx context.Context, repo string) ([]event.Event, error)
}

// Notifier delivers one rendered message to a chat channel.
type Notifier interface {
	Post(ctx context.Context, channel, message, attachment string) error
}

// Describer renders an event to (message, attachment). An empty message
// with a nil error means the event is intentionally not announced.
type Describer interface {
	Describe(ev event.Event) (message, attachment string, err error)
}

type Config struct {
	Repositories  []string
	Channel       string
	RecencyWindow time.Duration // default 10m
	Schedule      string        // duration or cron line, default "60s"
}

func (c Config) withDefaults() Config {
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = 10 * time.Minute
	}
	if c.Schedule == "" {
		c.Schedule = "60s"
	}
	return c
}

// Service is the announcer. One instance polls all configured repositories
// sequentially; repositories are isolated, so one failing fetch never
// blocks the others in the same cycle.
type Service struct {
	mu    sync.Mutex
	cfg   Config
	spec  Spec
	src   Source
	notif Notifier
	desc  Describer
	guard *dedup.Guard
	store storage.Store
	bus   eventbus.Bus
	log   logx.Logger
	now   func() time.Time
}

func New(cfg Config, src Source, notif Notifier, desc Describer, guard *dedup.Guard, store storage.Store, bus eventbus.Bus, log logx.Logger) (*Service, error) {
	cfg = cfg.withDefaults()
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:   cfg,
		spec:  spec,
		src:   src,
		notif: notif,
		desc:  desc,
		guard: guard,
		store: store,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}, nil
}

// Apply swaps the announce policy (repositories, channel, window, schedule)
// without restarting the loop. A new schedule takes effect after the next
// fire.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.spec = spec
	s.mu.Unlock()
	s.log.Info("announce policy applied",
		logx.Int("repos", len(cfg.Repositories)),
		logx.String("schedule", cfg.Schedule),
		logx.Duration("window", cfg.RecencyWindow))
	return nil
}

func (s *Service) snapshot() (Config, Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.spec
}

// Run polls until ctx is cancelled. The first cycle runs immediately; later
// cycles follow the configured schedule.
func (s *Service) Run(ctx context.Context) error {
	s.RunOnce(ctx)
	for {
		_, spec := s.snapshot()
		next := spec.NextAfter(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.RunOnce(ctx)
	}
}

// RunOnce performs a single poll cycle over all configured repositories.
func (s *Service) RunOnce(ctx context.Context) {
	cfg, _ := s.snapshot()
	cutoff := s.now().Add(-cfg.RecencyWindow)

	for _, repo := range cfg.Repositories {
		if ctx.Err() != nil {
			return
		}
		evs, err := s.src.FetchRecent(ctx, repo)
		if err != nil {
			s.log.Warn("fetch failed", logx.String("repo", repo), logx.Err(err))
			s.publish(eventbus.TypeFetchFailed, eventbus.AnnounceEvent{Repo: repo, Error: err.Error()})
			continue
		}
		s.announceRepo(ctx, cfg, repo, evs, cutoff)
	}
}

func (s *Service) announceRepo(ctx context.Context, cfg Config, repo string, evs []event.Event, cutoff time.Time) {
	for _, ev := range evs {
		if ctx.Err() != nil {
			return
		}
		if ev.CreatedAt.Before(cutoff) {
			continue
		}

		msg, att, err := s.desc.Describe(ev)
		if err != nil {
			// A malformed event fails loudly and is never dispatched.
			s.log.Error("describe failed",
				logx.String("repo", repo), logx.String("event", ev.ID), logx.Err(err))
			continue
		}
		if msg == "" {
			s.publish(eventbus.TypeSuppressed, s.lifecycle(repo, ev))
			continue
		}

		// Dedup check sits immediately before dispatch so a reloaded repo
		// list or widened window cannot re-announce.
		if s.guard.Seen(ev.ID) {
			s.publish(eventbus.TypeDeduped, s.lifecycle(repo, ev))
			continue
		}

		if err := s.notif.Post(ctx, cfg.Channel, msg, att); err != nil {
			// Not marked: the event stays eligible for the next cycle while
			// it remains inside the window.
			s.log.Warn("post failed",
				logx.String("repo", repo), logx.String("event", ev.ID), logx.Err(err))
			ae := s.lifecycle(repo, ev)
			ae.Error = err.Error()
			s.publish(eventbus.TypeSendFailed, ae)
			continue
		}

		s.guard.Mark(ev.ID)
		if s.store != nil {
			until := s.now().Add(cfg.RecencyWindow)
			if err := s.store.PutAnnounced(ctx, ev.ID, until); err != nil {
				s.log.Warn("persist announced id failed", logx.String("event", ev.ID), logx.Err(err))
			}
		}
		s.log.Info("announced",
			logx.String("repo", repo), logx.String("event", ev.ID), logx.String("kind", string(ev.Kind)))
		s.publish(eventbus.TypeSent, s.lifecycle(repo, ev))
	}
}

func (s *Service) lifecycle(repo string, ev event.Event) eventbus.AnnounceEvent {
	return eventbus.AnnounceEvent{Repo: repo, EventID: ev.ID, Kind: string(ev.Kind), At: ev.CreatedAt}
}

func (s *Service) publish(typ string, data eventbus.AnnounceEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
