// Package event holds the activity-event model shared by the fetcher,
// describer and announcer.
//
// Event is a tagged union: Kind says which payload pointer is set. Keeping
// the variants as an explicit enum (instead of a string-keyed lookup) makes
// unmatched cases a checkable enumeration in the describer's switch.
package event

import (
	"strings"
	"time"
)

type Kind string

const (
	KindPush         Kind = "push"
	KindPullRequest  Kind = "pull_request"
	KindIssues       Kind = "issues"
	KindIssueComment Kind = "issue_comment"
	KindFork         Kind = "fork"
	KindWatch        Kind = "watch"
	KindCreate       Kind = "create"
	KindRelease      Kind = "release"

	// KindOther covers everything the announcer deliberately ignores
	// (deleted branches/tags, PR review comments, commit comments, ...).
	KindOther Kind = "other"
)

// Event is one recorded action on a watched repository.
//
// ID is the hosting API's unique event token and is what the dedup guard
// keys on. Repo is the full "owner/name". Exactly one payload pointer is
// non-nil for kinds that carry one; KindWatch and KindOther carry none.
type Event struct {
	ID        string
	Kind      Kind
	Actor     string // login of the acting user
	Repo      string // full name, "owner/name"
	CreatedAt time.Time

	Push        *PushPayload
	PullRequest *PullRequestPayload
	Issue       *IssuePayload
	Comment     *CommentPayload
	Fork        *ForkPayload
	Create      *CreatePayload
	Release     *ReleasePayload
}

type Commit struct {
	SHA     string
	Message string
}

type PushPayload struct {
	Ref     string // e.g. "refs/heads/main"
	Commits []Commit
}

// Branch returns the last path segment of the push ref.
func (p *PushPayload) Branch() string {
	if p == nil {
		return ""
	}
	parts := strings.Split(p.Ref, "/")
	return parts[len(parts)-1]
}

type PullRequestPayload struct {
	Action string // "opened", "closed", ...
	Number int
}

type IssuePayload struct {
	Action string
	Number int
}

type CommentPayload struct {
	IssueNumber int
	Body        string
}

type ForkPayload struct {
	ForkRepo string // full name of the new fork
}

type CreatePayload struct {
	RefType string // "branch", "tag", "repository"
	Ref     string // plain name, no refs/ prefix
}

type ReleasePayload struct {
	Name    string
	HTMLURL string
	Body    string
}
