package announce

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecInterval SpecKind = iota
	SpecCron
)

// Spec is a parsed polling schedule: either a fixed interval or a cron
// expression.
type Spec struct {
	Kind   SpecKind
	Every  time.Duration
	Cron   cron.Schedule
	Source string // "duration" or "cron", for logging
}

// ParseSchedule accepts:
//   - a Go duration ("60s", "2m"), optionally prefixed "interval:"
//   - a standard 5-field cron line ("*/5 * * * *"), optionally prefixed "cron:"
func ParseSchedule(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("empty schedule")
	}

	if rest, ok := strings.CutPrefix(s, "cron:"); ok {
		sched, err := cron.ParseStandard(strings.TrimSpace(rest))
		if err != nil {
			return Spec{}, fmt.Errorf("invalid cron schedule %q: %w", raw, err)
		}
		return Spec{Kind: SpecCron, Cron: sched, Source: "cron"}, nil
	}
	if rest, ok := strings.CutPrefix(s, "interval:"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return Spec{}, fmt.Errorf("invalid interval schedule %q", raw)
		}
		return Spec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
	}

	// Bare value: durations have no spaces, cron lines do.
	if !strings.ContainsAny(s, " \t") {
		d, err := time.ParseDuration(s)
		if err == nil {
			if d <= 0 {
				return Spec{}, fmt.Errorf("schedule interval must be > 0: %q", raw)
			}
			return Spec{Kind: SpecInterval, Every: d, Source: "duration"}, nil
		}
	}
	sched, err := cron.ParseStandard(s)
	if err != nil {
		return Spec{}, fmt.Errorf("schedule %q is neither a duration nor a cron line: %w", raw, err)
	}
	return Spec{Kind: SpecCron, Cron: sched, Source: "cron"}, nil
}

// NextAfter returns the next fire time strictly after t.
func (s Spec) NextAfter(t time.Time) time.Time {
	if s.Kind == SpecCron && s.Cron != nil {
		return s.Cron.Next(t)
	}
	return t.Add(s.Every)
}
