// Package metrics exposes announcer counters over a Prometheus endpoint.
//
// The collector feeds entirely off the event bus, so the announcer itself
// has no metrics dependency.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repowatch/internal/eventbus"
	logx "repowatch/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string // default "127.0.0.1:9180"
}

type Service struct {
	cfg Config
	bus eventbus.Bus
	log logx.Logger

	reg        *prometheus.Registry
	sent       *prometheus.CounterVec
	deduped    *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	sendFailed *prometheus.CounterVec
	fetchFail  *prometheus.CounterVec

	srv *http.Server
}

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:9180"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Service{cfg: cfg, bus: bus, log: log, reg: prometheus.NewRegistry()}

	s.sent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowatch",
		Name:      "announced_total",
		Help:      "Events announced to chat",
	}, []string{"repo", "kind"})
	s.deduped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowatch",
		Name:      "deduped_total",
		Help:      "Events skipped because they were already announced",
	}, []string{"repo"})
	s.suppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowatch",
		Name:      "suppressed_total",
		Help:      "Events with no announcement template",
	}, []string{"repo"})
	s.sendFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowatch",
		Name:      "send_failures_total",
		Help:      "Chat dispatch failures",
	}, []string{"repo"})
	s.fetchFail = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repowatch",
		Name:      "fetch_failures_total",
		Help:      "Repository feed fetch failures",
	}, []string{"repo"})

	s.reg.MustRegister(s.sent, s.deduped, s.suppressed, s.sendFailed, s.fetchFail)
	return s
}

// Run consumes bus events until ctx is cancelled. When the HTTP endpoint is
// enabled it is served alongside.
func (s *Service) Run(ctx context.Context) error {
	ch, unsub := s.bus.Subscribe(64)
	defer unsub()

	if s.cfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		s.srv = &http.Server{
			Addr:        s.cfg.Addr,
			Handler:     mux,
			ReadTimeout: 5 * time.Second,
		}
		go func() {
			s.log.Info("metrics endpoint listening", logx.String("addr", s.cfg.Addr))
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Warn("metrics endpoint failed", logx.Err(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = s.srv.Shutdown(sctx)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			s.observe(e)
		}
	}
}

func (s *Service) observe(e eventbus.Event) {
	ae, ok := e.Data.(eventbus.AnnounceEvent)
	if !ok {
		return
	}
	switch e.Type {
	case eventbus.TypeSent:
		s.sent.WithLabelValues(ae.Repo, ae.Kind).Inc()
	case eventbus.TypeDeduped:
		s.deduped.WithLabelValues(ae.Repo).Inc()
	case eventbus.TypeSuppressed:
		s.suppressed.WithLabelValues(ae.Repo).Inc()
	case eventbus.TypeSendFailed:
		s.sendFailed.WithLabelValues(ae.Repo).Inc()
	case eventbus.TypeFetchFailed:
		s.fetchFail.WithLabelValues(ae.Repo).Inc()
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (s *Service) Registry() *prometheus.Registry { return s.reg }
