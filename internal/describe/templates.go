package describe

import (
	"fmt"

	"repowatch/internal/event"
)

// templatesFor selects the message and attachment templates for an event.
// Empty message = suppress (not an error). An error means the payload is
// missing for a kind that requires one to make the selection.
func templatesFor(ev event.Event) (msg, attachment string, err error) {
	switch ev.Kind {
	case event.KindPullRequest:
		if ev.PullRequest == nil {
			return "", "", fmt.Errorf("event %s: pull_request event without payload", ev.ID)
		}
		switch ev.PullRequest.Action {
		case "opened":
			return "{user} opened pull request {pr_number}", "", nil
		case "closed":
			return "{user} closed pull request {pr_number}", "", nil
		}
		return "", "", nil

	case event.KindPush:
		return "{user} pushed to {branch} at {repo}", "{commits}", nil

	case event.KindIssues:
		if ev.Issue == nil {
			return "", "", fmt.Errorf("event %s: issues event without payload", ev.ID)
		}
		if ev.Issue.Action == "opened" {
			return "{user} opened issue {issue_number}", "", nil
		}
		return "", "", nil

	case event.KindFork:
		return "{user} forked {repo} to {fork_repo}", "", nil

	case event.KindWatch:
		return "{user} starred {repo}", "", nil

	case event.KindIssueComment:
		return "{user} commented on issue {issue_number}", "{comment}", nil

	case event.KindCreate:
		if ev.Create == nil {
			return "", "", fmt.Errorf("event %s: create event without payload", ev.ID)
		}
		if ev.Create.RefType == "branch" {
			return "{user} created branch {branch} at {repo}", "", nil
		}
		return "", "", nil

	case event.KindRelease:
		return "{user} created a release of {repo} at {release}", "{release_description}", nil
	}

	// Deleted branches/tags, review comments, commit comments, anything new
	// the hosting API grows: stay silent.
	return "", "", nil
}

// allTemplates enumerates every template in the dispatch table so New can
// validate placeholder/rule consistency up front.
func allTemplates() []string {
	return []string{
		"{user} opened pull request {pr_number}",
		"{user} closed pull request {pr_number}",
		"{user} pushed to {branch} at {repo}",
		"{commits}",
		"{user} opened issue {issue_number}",
		"{user} forked {repo} to {fork_repo}",
		"{user} starred {repo}",
		"{user} commented on issue {issue_number}",
		"{comment}",
		"{user} created branch {branch} at {repo}",
		"{user} created a release of {repo} at {release}",
		"{release_description}",
	}
}
