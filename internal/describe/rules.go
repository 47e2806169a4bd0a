package describe

import (
	"fmt"
	"strings"

	"repowatch/internal/event"
)

// rule renders the display string for one placeholder. Rules must not
// fabricate values: a payload field the rule needs but the event lacks is
// an error attributable to that rule.
type rule func(ev event.Event) (string, error)

func (d *Describer) linkRules() map[string]rule {
	return map[string]rule{
		"user":                d.ruleUser,
		"branch":              d.ruleBranch,
		"repo":                d.ruleRepo,
		"pr_number":           d.rulePRNumber,
		"issue_number":        d.ruleIssueNumber,
		"commits":             d.ruleCommits,
		"fork_repo":           d.ruleForkRepo,
		"comment":             d.ruleComment,
		"release":             d.ruleRelease,
		"release_description": d.ruleReleaseDescription,
	}
}

// link renders Slack mrkdwn hyperlink markup.
func link(url, text string) string {
	return "<" + url + "|" + text + ">"
}

func (d *Describer) ruleUser(ev event.Event) (string, error) {
	if ev.Actor == "" {
		return "", fmt.Errorf("event %s has no actor login", ev.ID)
	}
	return link(d.baseURL+"/"+ev.Actor, ev.Actor), nil
}

func (d *Describer) ruleRepo(ev event.Event) (string, error) {
	if ev.Repo == "" {
		return "", fmt.Errorf("event %s has no repository name", ev.ID)
	}
	return link(d.baseURL+"/"+ev.Repo, ev.Repo), nil
}

func (d *Describer) ruleBranch(ev event.Event) (string, error) {
	var branch string
	switch {
	case ev.Push != nil:
		branch = ev.Push.Branch()
	case ev.Create != nil:
		branch = ev.Create.Ref
	default:
		return "", fmt.Errorf("event %s has no ref-carrying payload", ev.ID)
	}
	if branch == "" {
		return "", fmt.Errorf("event %s has an empty ref", ev.ID)
	}
	return link(d.baseURL+"/"+ev.Repo+"/tree/"+branch, branch), nil
}

func (d *Describer) rulePRNumber(ev event.Event) (string, error) {
	if ev.PullRequest == nil {
		return "", fmt.Errorf("event %s has no pull request payload", ev.ID)
	}
	n := ev.PullRequest.Number
	return link(
		fmt.Sprintf("%s/%s/pull/%d", d.baseURL, ev.Repo, n),
		fmt.Sprintf("%s#%d", ev.Repo, n),
	), nil
}

func (d *Describer) ruleIssueNumber(ev event.Event) (string, error) {
	var n int
	switch {
	case ev.Issue != nil:
		n = ev.Issue.Number
	case ev.Comment != nil:
		n = ev.Comment.IssueNumber
	default:
		return "", fmt.Errorf("event %s has no issue payload", ev.ID)
	}
	return link(
		fmt.Sprintf("%s/%s/issues/%d", d.baseURL, ev.Repo, n),
		fmt.Sprintf("%s#%d", ev.Repo, n),
	), nil
}

// ruleCommits renders one line per commit: linked short hash, then the
// commit message, in payload order.
func (d *Describer) ruleCommits(ev event.Event) (string, error) {
	if ev.Push == nil {
		return "", fmt.Errorf("event %s has no push payload", ev.ID)
	}
	lines := make([]string, 0, len(ev.Push.Commits))
	for _, c := range ev.Push.Commits {
		if c.SHA == "" {
			return "", fmt.Errorf("event %s has a commit without a sha", ev.ID)
		}
		lines = append(lines, link(d.baseURL+"/"+ev.Repo+"/commit/"+c.SHA, shortSHA(c.SHA))+" "+c.Message)
	}
	return strings.Join(lines, "\n"), nil
}

func shortSHA(sha string) string {
	if len(sha) <= 8 {
		return sha
	}
	return sha[:8]
}

func (d *Describer) ruleForkRepo(ev event.Event) (string, error) {
	if ev.Fork == nil || ev.Fork.ForkRepo == "" {
		return "", fmt.Errorf("event %s has no forkee full name", ev.ID)
	}
	return link(d.baseURL+"/"+ev.Fork.ForkRepo, ev.Fork.ForkRepo), nil
}

func (d *Describer) ruleComment(ev event.Event) (string, error) {
	if ev.Comment == nil {
		return "", fmt.Errorf("event %s has no comment payload", ev.ID)
	}
	// Raw body, no escaping.
	return ev.Comment.Body, nil
}

func (d *Describer) ruleRelease(ev event.Event) (string, error) {
	if ev.Release == nil {
		return "", fmt.Errorf("event %s has no release payload", ev.ID)
	}
	if ev.Release.HTMLURL == "" {
		return "", fmt.Errorf("event %s release has no html url", ev.ID)
	}
	return link(ev.Release.HTMLURL, ev.Repo+"#"+ev.Release.Name), nil
}

func (d *Describer) ruleReleaseDescription(ev event.Event) (string, error) {
	if ev.Release == nil {
		return "", fmt.Errorf("event %s has no release payload", ev.ID)
	}
	return ev.Release.Body, nil
}
