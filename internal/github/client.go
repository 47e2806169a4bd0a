// Package github adapts the GitHub REST API to the announcer's event model.
package github

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"repowatch/internal/event"
	logx "repowatch/pkg/logx"
)

// Config configures the hosting API client.
//
// Auth is either a token or a login/password pair; token wins when both are
// set. BaseURL switches the client to a GitHub Enterprise instance.
type Config struct {
	Token    string
	Login    string
	Password string
	BaseURL  string
	PerPage  int // events fetched per repository per cycle
}

type Client struct {
	gh      *gh.Client
	perPage int
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 10
	}

	var client *gh.Client
	switch {
	case strings.TrimSpace(cfg.Token) != "":
		client = gh.NewClient(nil).WithAuthToken(cfg.Token)
	case cfg.Login != "":
		tp := &gh.BasicAuthTransport{Username: cfg.Login, Password: cfg.Password}
		client = gh.NewClient(tp.Client())
	default:
		// Unauthenticated works for public repos, with a tighter rate limit.
		client = gh.NewClient(nil)
	}

	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		ec, err := client.WithEnterpriseURLs(base, base)
		if err != nil {
			return nil, fmt.Errorf("github: enterprise base url: %w", err)
		}
		client = ec
	}

	return &Client{gh: client, perPage: perPage, log: log}, nil
}

// FetchRecent returns the most recent public events for a repository,
// newest first, truncated to the configured per-page cap. Transport and
// auth failures propagate; there is no retry here.
func (c *Client) FetchRecent(ctx context.Context, repo string) ([]event.Event, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	apiEvents, _, err := c.gh.Activity.ListRepositoryEvents(ctx, owner, name, &gh.ListOptions{PerPage: c.perPage})
	if err != nil {
		return nil, fmt.Errorf("github: list events for %s: %w", repo, err)
	}
	if len(apiEvents) > c.perPage {
		apiEvents = apiEvents[:c.perPage]
	}

	out := make([]event.Event, 0, len(apiEvents))
	for _, ae := range apiEvents {
		ev, err := fromAPIEvent(ae)
		if err != nil {
			return nil, fmt.Errorf("github: %s: %w", repo, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func splitRepo(full string) (owner, name string, err error) {
	parts := strings.Split(strings.TrimSpace(full), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("github: repository %q is not owner/name", full)
	}
	return parts[0], parts[1], nil
}

// fromAPIEvent converts one API event into the domain model. Event types
// the announcer does not care about map to KindOther with no payload; a
// known type whose payload does not parse is an error attributable to that
// event.
func fromAPIEvent(ae *gh.Event) (event.Event, error) {
	if ae == nil {
		return event.Event{}, errors.New("nil event")
	}
	ev := event.Event{
		ID:        ae.GetID(),
		Kind:      event.KindOther,
		Actor:     ae.GetActor().GetLogin(),
		Repo:      ae.GetRepo().GetName(), // events API populates this with "owner/name"
		CreatedAt: ae.GetCreatedAt().Time,
	}

	switch ae.GetType() {
	case "PushEvent", "PullRequestEvent", "IssuesEvent", "IssueCommentEvent",
		"ForkEvent", "WatchEvent", "CreateEvent", "ReleaseEvent":
	default:
		return ev, nil
	}

	payload, err := ae.ParsePayload()
	if err != nil {
		return event.Event{}, fmt.Errorf("event %s (%s): parse payload: %w", ae.GetID(), ae.GetType(), err)
	}

	switch p := payload.(type) {
	case *gh.PushEvent:
		commits := make([]event.Commit, 0, len(p.Commits))
		for _, c := range p.Commits {
			commits = append(commits, event.Commit{SHA: c.GetSHA(), Message: c.GetMessage()})
		}
		ev.Kind = event.KindPush
		ev.Push = &event.PushPayload{Ref: p.GetRef(), Commits: commits}

	case *gh.PullRequestEvent:
		ev.Kind = event.KindPullRequest
		ev.PullRequest = &event.PullRequestPayload{Action: p.GetAction(), Number: p.GetNumber()}

	case *gh.IssuesEvent:
		ev.Kind = event.KindIssues
		ev.Issue = &event.IssuePayload{Action: p.GetAction(), Number: p.GetIssue().GetNumber()}

	case *gh.IssueCommentEvent:
		ev.Kind = event.KindIssueComment
		ev.Comment = &event.CommentPayload{
			IssueNumber: p.GetIssue().GetNumber(),
			Body:        p.GetComment().GetBody(),
		}

	case *gh.ForkEvent:
		ev.Kind = event.KindFork
		ev.Fork = &event.ForkPayload{ForkRepo: p.GetForkee().GetFullName()}

	case *gh.WatchEvent:
		ev.Kind = event.KindWatch

	case *gh.CreateEvent:
		ev.Kind = event.KindCreate
		ev.Create = &event.CreatePayload{RefType: p.GetRefType(), Ref: p.GetRef()}

	case *gh.ReleaseEvent:
		rel := p.GetRelease()
		name := rel.GetName()
		if name == "" {
			name = rel.GetTagName()
		}
		ev.Kind = event.KindRelease
		ev.Release = &event.ReleasePayload{Name: name, HTMLURL: rel.GetHTMLURL(), Body: rel.GetBody()}

	default:
		return event.Event{}, fmt.Errorf("event %s: unexpected payload type %T", ae.GetID(), payload)
	}

	return ev, nil
}
