package describe

import (
	"strings"
	"testing"

	"repowatch/internal/event"
)

func mustNew(t *testing.T) *Describer {
	t.Helper()
	d, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestDescribePushExample(t *testing.T) {
	t.Parallel()
	d := mustNew(t)

	ev := event.Event{
		ID:    "1",
		Kind:  event.KindPush,
		Actor: "alice",
		Repo:  "org/repo",
		Push: &event.PushPayload{
			Ref:     "refs/heads/main",
			Commits: []event.Commit{{SHA: "abcdef1234567890", Message: "fix bug"}},
		},
	}

	msg, att, err := d.Describe(ev)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	wantMsg := "<https://github.com/alice|alice> pushed to <https://github.com/org/repo/tree/main|main> at <https://github.com/org/repo|org/repo>"
	if msg != wantMsg {
		t.Fatalf("message = %q, want %q", msg, wantMsg)
	}
	wantAtt := "<https://github.com/org/repo/commit/abcdef1234567890|abcdef12> fix bug"
	if att != wantAtt {
		t.Fatalf("attachment = %q, want %q", att, wantAtt)
	}
}

func TestDescribeCommitLines(t *testing.T) {
	t.Parallel()
	d := mustNew(t)

	commits := []event.Commit{
		{SHA: "aaaaaaaaaaaaaaaaaaaa", Message: "first"},
		{SHA: "bbbbbbbbbbbbbbbbbbbb", Message: "second"},
		{SHA: "cccccccccccccccccccc", Message: "third"},
	}
	ev := event.Event{
		ID: "2", Kind: event.KindPush, Actor: "bob", Repo: "org/repo",
		Push: &event.PushPayload{Ref: "refs/heads/dev", Commits: commits},
	}

	_, att, err := d.Describe(ev)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	lines := strings.Split(att, "\n")
	if len(lines) != len(commits) {
		t.Fatalf("attachment has %d lines, want %d", len(lines), len(commits))
	}
	for i, line := range lines {
		short := commits[i].SHA[:8]
		if !strings.Contains(line, short) {
			t.Errorf("line %d missing short hash %q: %q", i, short, line)
		}
		if !strings.HasSuffix(line, " "+commits[i].Message) {
			t.Errorf("line %d missing message %q: %q", i, commits[i].Message, line)
		}
	}
}

func TestDescribeTable(t *testing.T) {
	t.Parallel()
	d := mustNew(t)

	tests := []struct {
		name    string
		ev      event.Event
		wantMsg string
		wantAtt string
	}{
		{
			name: "pr opened",
			ev: event.Event{ID: "10", Kind: event.KindPullRequest, Actor: "alice", Repo: "org/repo",
				PullRequest: &event.PullRequestPayload{Action: "opened", Number: 42}},
			wantMsg: "<https://github.com/alice|alice> opened pull request <https://github.com/org/repo/pull/42|org/repo#42>",
		},
		{
			name: "pr closed",
			ev: event.Event{ID: "11", Kind: event.KindPullRequest, Actor: "alice", Repo: "org/repo",
				PullRequest: &event.PullRequestPayload{Action: "closed", Number: 42}},
			wantMsg: "<https://github.com/alice|alice> closed pull request <https://github.com/org/repo/pull/42|org/repo#42>",
		},
		{
			name: "pr synchronize suppressed",
			ev: event.Event{ID: "12", Kind: event.KindPullRequest, Actor: "alice", Repo: "org/repo",
				PullRequest: &event.PullRequestPayload{Action: "synchronize", Number: 42}},
		},
		{
			name: "issue opened",
			ev: event.Event{ID: "13", Kind: event.KindIssues, Actor: "carol", Repo: "org/repo",
				Issue: &event.IssuePayload{Action: "opened", Number: 7}},
			wantMsg: "<https://github.com/carol|carol> opened issue <https://github.com/org/repo/issues/7|org/repo#7>",
		},
		{
			name: "issue closed suppressed",
			ev: event.Event{ID: "14", Kind: event.KindIssues, Actor: "carol", Repo: "org/repo",
				Issue: &event.IssuePayload{Action: "closed", Number: 7}},
		},
		{
			name: "fork",
			ev: event.Event{ID: "15", Kind: event.KindFork, Actor: "dave", Repo: "org/repo",
				Fork: &event.ForkPayload{ForkRepo: "dave/repo"}},
			wantMsg: "<https://github.com/dave|dave> forked <https://github.com/org/repo|org/repo> to <https://github.com/dave/repo|dave/repo>",
		},
		{
			name:    "star",
			ev:      event.Event{ID: "16", Kind: event.KindWatch, Actor: "erin", Repo: "org/repo"},
			wantMsg: "<https://github.com/erin|erin> starred <https://github.com/org/repo|org/repo>",
		},
		{
			name: "branch create",
			ev: event.Event{ID: "17", Kind: event.KindCreate, Actor: "frank", Repo: "org/repo",
				Create: &event.CreatePayload{RefType: "branch", Ref: "feature-x"}},
			wantMsg: "<https://github.com/frank|frank> created branch <https://github.com/org/repo/tree/feature-x|feature-x> at <https://github.com/org/repo|org/repo>",
		},
		{
			name: "tag create suppressed",
			ev: event.Event{ID: "18", Kind: event.KindCreate, Actor: "frank", Repo: "org/repo",
				Create: &event.CreatePayload{RefType: "tag", Ref: "v1.0.0"}},
		},
		{
			name: "release",
			ev: event.Event{ID: "19", Kind: event.KindRelease, Actor: "grace", Repo: "org/repo",
				Release: &event.ReleasePayload{Name: "v2.0", HTMLURL: "https://github.com/org/repo/releases/tag/v2.0", Body: "notes here"}},
			wantMsg: "<https://github.com/grace|grace> created a release of <https://github.com/org/repo|org/repo> at <https://github.com/org/repo/releases/tag/v2.0|org/repo#v2.0>",
			wantAtt: "notes here",
		},
		{
			name: "delete suppressed",
			ev:   event.Event{ID: "20", Kind: event.KindOther, Actor: "alice", Repo: "org/repo"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, att, err := d.Describe(tt.ev)
			if err != nil {
				t.Fatalf("Describe: %v", err)
			}
			if msg != tt.wantMsg {
				t.Fatalf("message = %q, want %q", msg, tt.wantMsg)
			}
			if att != tt.wantAtt {
				t.Fatalf("attachment = %q, want %q", att, tt.wantAtt)
			}
		})
	}
}

func TestDescribeIssueCommentRawBody(t *testing.T) {
	t.Parallel()
	d := mustNew(t)

	body := "line one\n<b>not escaped</b> & {braces} stay"
	ev := event.Event{
		ID: "30", Kind: event.KindIssueComment, Actor: "alice", Repo: "org/repo",
		Comment: &event.CommentPayload{IssueNumber: 9, Body: body},
	}
	msg, att, err := d.Describe(ev)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !strings.HasSuffix(msg, "<https://github.com/org/repo/issues/9|org/repo#9>") {
		t.Fatalf("message does not end with issue reference: %q", msg)
	}
	if att != body {
		t.Fatalf("attachment = %q, want raw body %q", att, body)
	}
}

func TestDescribeMalformedPayload(t *testing.T) {
	t.Parallel()
	d := mustNew(t)

	tests := []struct {
		name string
		ev   event.Event
	}{
		{"pr without payload", event.Event{ID: "40", Kind: event.KindPullRequest, Actor: "a", Repo: "o/r"}},
		{"issues without payload", event.Event{ID: "41", Kind: event.KindIssues, Actor: "a", Repo: "o/r"}},
		{"create without payload", event.Event{ID: "42", Kind: event.KindCreate, Actor: "a", Repo: "o/r"}},
		{"push without payload", event.Event{ID: "43", Kind: event.KindPush, Actor: "a", Repo: "o/r"}},
		{"comment without payload", event.Event{ID: "44", Kind: event.KindIssueComment, Actor: "a", Repo: "o/r"}},
		{"release without payload", event.Event{ID: "45", Kind: event.KindRelease, Actor: "a", Repo: "o/r"}},
		{"fork without payload", event.Event{ID: "46", Kind: event.KindFork, Actor: "a", Repo: "o/r"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := d.Describe(tt.ev); err == nil {
				t.Fatal("expected error for malformed payload")
			}
		})
	}
}

func TestRenderMemoizesRules(t *testing.T) {
	t.Parallel()

	calls := 0
	d := &Describer{baseURL: defaultBaseURL}
	d.rules = map[string]rule{
		"user": func(ev event.Event) (string, error) {
			calls++
			return "U", nil
		},
	}

	out, err := d.render("{user} met {user} and {user}", event.Event{}, map[string]string{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "U met U and U" {
		t.Fatalf("render = %q", out)
	}
	if calls != 1 {
		t.Fatalf("rule evaluated %d times, want 1", calls)
	}
}

func TestRenderUnknownPlaceholder(t *testing.T) {
	t.Parallel()
	d := mustNew(t)
	if _, err := d.render("{no_such_rule}", event.Event{}, map[string]string{}); err == nil {
		t.Fatal("expected error for unregistered placeholder")
	}
}

func TestNewValidatesTemplates(t *testing.T) {
	t.Parallel()
	if _, err := New(); err != nil {
		t.Fatalf("New should validate cleanly: %v", err)
	}
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()
	d, err := New(WithBaseURL("https://git.example.com/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg, _, err := d.Describe(event.Event{ID: "50", Kind: event.KindWatch, Actor: "x", Repo: "o/r"})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !strings.Contains(msg, "<https://git.example.com/x|x>") {
		t.Fatalf("base URL not applied: %q", msg)
	}
}
