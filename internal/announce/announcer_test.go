package announce

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"repowatch/internal/dedup"
	"repowatch/internal/describe"
	"repowatch/internal/event"
	"repowatch/internal/eventbus"
	logx "repowatch/pkg/logx"
)

type fakeSource struct {
	events map[string][]event.Event
	errs   map[string]error
	calls  int
}

func (f *fakeSource) FetchRecent(_ context.Context, repo string) ([]event.Event, error) {
	f.calls++
	if err := f.errs[repo]; err != nil {
		return nil, err
	}
	return f.events[repo], nil
}

type post struct {
	channel, message, attachment string
}

type fakeNotifier struct {
	posts    []post
	failNext int
}

func (f *fakeNotifier) Post(_ context.Context, channel, message, attachment string) error {
	if f.failNext > 0 {
		f.failNext--
		return errors.New("chat backend unavailable")
	}
	f.posts = append(f.posts, post{channel, message, attachment})
	return nil
}

func pushEvent(id string, at time.Time) event.Event {
	return event.Event{
		ID:        id,
		Kind:      event.KindPush,
		Actor:     "alice",
		Repo:      "org/repo",
		CreatedAt: at,
		Push: &event.PushPayload{
			Ref:     "refs/heads/main",
			Commits: []event.Commit{{SHA: "abcdef1234567890", Message: "fix bug"}},
		},
	}
}

func newService(t *testing.T, src Source, notif Notifier, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	desc, err := describe.New()
	if err != nil {
		t.Fatalf("describe.New: %v", err)
	}
	svc, err := New(cfg, src, notif, desc, dedup.New(100, time.Hour), nil, bus, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func collectTypes(ch <-chan eventbus.Event) map[string]int {
	got := map[string]int{}
	for {
		select {
		case e := <-ch:
			got[e.Type]++
		default:
			return got
		}
	}
}

func TestRunOnceAnnounces(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/repo": {pushEvent("e1", now)},
	}}
	notif := &fakeNotifier{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	svc := newService(t, src, notif, Config{Repositories: []string{"org/repo"}, Channel: "#dev"}, bus)
	svc.RunOnce(context.Background())

	if len(notif.posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(notif.posts))
	}
	if notif.posts[0].channel != "#dev" {
		t.Fatalf("channel = %q", notif.posts[0].channel)
	}
	if notif.posts[0].message == "" || notif.posts[0].attachment == "" {
		t.Fatalf("empty render: %+v", notif.posts[0])
	}
	if got := collectTypes(ch); got[eventbus.TypeSent] != 1 {
		t.Fatalf("bus events = %v, want one sent", got)
	}
}

func TestRunOnceDedupsAcrossCycles(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/repo": {pushEvent("e1", now)},
	}}
	notif := &fakeNotifier{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	svc := newService(t, src, notif, Config{Repositories: []string{"org/repo"}, Channel: "#dev"}, bus)
	svc.RunOnce(context.Background())
	svc.RunOnce(context.Background())
	svc.RunOnce(context.Background())

	if len(notif.posts) != 1 {
		t.Fatalf("posts = %d, want exactly 1 across cycles", len(notif.posts))
	}
	got := collectTypes(ch)
	if got[eventbus.TypeSent] != 1 || got[eventbus.TypeDeduped] != 2 {
		t.Fatalf("bus events = %v, want 1 sent and 2 deduped", got)
	}
}

func TestSuppressedNeverDispatched(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/repo": {
			{ID: "e1", Kind: event.KindOther, Actor: "alice", Repo: "org/repo", CreatedAt: now},
			{ID: "e2", Kind: event.KindIssues, Actor: "alice", Repo: "org/repo", CreatedAt: now,
				Issue: &event.IssuePayload{Action: "closed", Number: 7}},
		},
	}}
	notif := &fakeNotifier{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	svc := newService(t, src, notif, Config{Repositories: []string{"org/repo"}, Channel: "#dev"}, bus)
	svc.RunOnce(context.Background())

	if len(notif.posts) != 0 {
		t.Fatalf("posts = %d, want 0", len(notif.posts))
	}
	if got := collectTypes(ch); got[eventbus.TypeSuppressed] != 2 {
		t.Fatalf("bus events = %v, want 2 suppressed", got)
	}
}

func TestRecencyWindowSkipsOldEvents(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/repo": {
			pushEvent("old", now.Add(-time.Hour)),
			pushEvent("new", now.Add(-time.Minute)),
		},
	}}
	notif := &fakeNotifier{}

	svc := newService(t, src, notif, Config{
		Repositories:  []string{"org/repo"},
		Channel:       "#dev",
		RecencyWindow: 10 * time.Minute,
	}, nil)
	svc.RunOnce(context.Background())

	if len(notif.posts) != 1 {
		t.Fatalf("posts = %d, want 1 (only the recent event)", len(notif.posts))
	}
}

func TestPerRepoIsolation(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{
		events: map[string][]event.Event{
			"org/healthy": {pushEvent("e1", now)},
		},
		errs: map[string]error{"org/broken": errors.New("api error")},
	}
	notif := &fakeNotifier{}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	svc := newService(t, src, notif, Config{
		Repositories: []string{"org/broken", "org/healthy"},
		Channel:      "#dev",
	}, bus)
	svc.RunOnce(context.Background())

	if len(notif.posts) != 1 {
		t.Fatalf("posts = %d, want 1 despite broken repo", len(notif.posts))
	}
	if got := collectTypes(ch); got[eventbus.TypeFetchFailed] != 1 {
		t.Fatalf("bus events = %v, want one fetch.failed", got)
	}
}

func TestFailedPostRetriesNextCycle(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/repo": {pushEvent("e1", now)},
	}}
	notif := &fakeNotifier{failNext: 1}

	svc := newService(t, src, notif, Config{Repositories: []string{"org/repo"}, Channel: "#dev"}, nil)
	svc.RunOnce(context.Background())
	if len(notif.posts) != 0 {
		t.Fatalf("posts = %d after failed cycle, want 0", len(notif.posts))
	}

	// A failed dispatch must not mark the event, so the next cycle retries.
	svc.RunOnce(context.Background())
	if len(notif.posts) != 1 {
		t.Fatalf("posts = %d after retry cycle, want 1", len(notif.posts))
	}
}

func TestMalformedEventNotDispatched(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/repo": {
			{ID: "bad", Kind: event.KindPush, Actor: "alice", Repo: "org/repo", CreatedAt: now}, // no payload
			pushEvent("good", now),
		},
	}}
	notif := &fakeNotifier{}

	svc := newService(t, src, notif, Config{Repositories: []string{"org/repo"}, Channel: "#dev"}, nil)
	svc.RunOnce(context.Background())

	if len(notif.posts) != 1 {
		t.Fatalf("posts = %d, want 1 (malformed event skipped)", len(notif.posts))
	}
}

func TestApplySwapsPolicy(t *testing.T) {
	t.Parallel()
	now := time.Now()
	src := &fakeSource{events: map[string][]event.Event{
		"org/a": {pushEvent("a1", now)},
		"org/b": {pushEvent("b1", now)},
	}}
	notif := &fakeNotifier{}

	svc := newService(t, src, notif, Config{Repositories: []string{"org/a"}, Channel: "#dev"}, nil)
	svc.RunOnce(context.Background())

	if err := svc.Apply(Config{Repositories: []string{"org/b"}, Channel: "#ops"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	svc.RunOnce(context.Background())

	if len(notif.posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(notif.posts))
	}
	if notif.posts[1].channel != "#ops" {
		t.Fatalf("second post channel = %q, want #ops", notif.posts[1].channel)
	}

	if err := svc.Apply(Config{Schedule: "not-a-schedule"}); err == nil {
		t.Fatal("Apply with bad schedule should fail")
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		kind    SpecKind
		every   time.Duration
		wantErr bool
	}{
		{raw: "60s", kind: SpecInterval, every: time.Minute},
		{raw: "interval:2m", kind: SpecInterval, every: 2 * time.Minute},
		{raw: "*/5 * * * *", kind: SpecCron},
		{raw: "cron:0 9 * * 1-5", kind: SpecCron},
		{raw: "", wantErr: true},
		{raw: "-10s", wantErr: true},
		{raw: "interval:bogus", wantErr: true},
		{raw: "not-a-schedule", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			t.Parallel()
			spec, err := ParseSchedule(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q): expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tt.raw, err)
			}
			if spec.Kind != tt.kind {
				t.Fatalf("Kind = %d, want %d", spec.Kind, tt.kind)
			}
			if tt.kind == SpecInterval && spec.Every != tt.every {
				t.Fatalf("Every = %v, want %v", spec.Every, tt.every)
			}
			if tt.kind == SpecCron {
				now := time.Now()
				if !spec.NextAfter(now).After(now) {
					t.Fatal("NextAfter should advance")
				}
			}
		})
	}
}
