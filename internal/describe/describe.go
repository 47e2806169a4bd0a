// Package describe turns a single activity event into the message and
// attachment text posted to chat.
//
// Describe is pure: no clock, no network, no state. Templates carry {name}
// placeholders; each name resolves through a fixed link-rule registry that
// renders Slack mrkdwn links (<url|text>). The registry and the dispatch
// table are cross-checked once at construction, so a template referencing
// an unregistered rule fails at startup instead of per event.
package describe

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"repowatch/internal/event"
)

const defaultBaseURL = "https://github.com"

var placeholderRE = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

// Describer renders events using a fixed template table and link-rule set.
type Describer struct {
	baseURL string
	rules   map[string]rule
}

type Option func(*Describer)

// WithBaseURL overrides the hosting site base URL (GitHub Enterprise).
func WithBaseURL(u string) Option {
	return func(d *Describer) { d.baseURL = strings.TrimRight(u, "/") }
}

// New builds a Describer and verifies that every placeholder used by the
// template table has a registered link rule.
func New(opts ...Option) (*Describer, error) {
	d := &Describer{baseURL: defaultBaseURL}
	for _, o := range opts {
		o(d)
	}
	d.rules = d.linkRules()

	for _, tmpl := range allTemplates() {
		for _, name := range placeholderNames(tmpl) {
			if _, ok := d.rules[name]; !ok {
				return nil, fmt.Errorf("template %q references unregistered link rule %q", tmpl, name)
			}
		}
	}
	return d, nil
}

// Describe maps one event to (message, attachment). An empty message means
// the event is deliberately not announced. Errors indicate a payload that
// does not match the event's kind; callers must not dispatch on error.
func (d *Describer) Describe(ev event.Event) (msg, attachment string, err error) {
	msgTmpl, attTmpl, err := templatesFor(ev)
	if err != nil {
		return "", "", err
	}
	if msgTmpl == "" {
		return "", "", nil
	}

	// One memo per call: each distinct rule runs at most once even if its
	// placeholder repeats or appears in both templates.
	memo := map[string]string{}

	msg, err = d.render(msgTmpl, ev, memo)
	if err != nil {
		return "", "", err
	}
	attachment, err = d.render(attTmpl, ev, memo)
	if err != nil {
		return "", "", err
	}
	return msg, attachment, nil
}

func (d *Describer) render(tmpl string, ev event.Event, memo map[string]string) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	out := tmpl
	for _, name := range placeholderNames(tmpl) {
		val, ok := memo[name]
		if !ok {
			r, exists := d.rules[name]
			if !exists {
				return "", fmt.Errorf("no link rule registered for placeholder %q", name)
			}
			var err error
			val, err = r(ev)
			if err != nil {
				return "", fmt.Errorf("link rule %q: %w", name, err)
			}
			memo[name] = val
		}
		out = strings.ReplaceAll(out, "{"+name+"}", val)
	}
	return out, nil
}

// placeholderNames returns the distinct placeholder names in a template,
// in order of first appearance.
func placeholderNames(tmpl string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRE.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// RuleNames lists the registered link rules (sorted, for diagnostics).
func (d *Describer) RuleNames() []string {
	names := make([]string, 0, len(d.rules))
	for n := range d.rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
