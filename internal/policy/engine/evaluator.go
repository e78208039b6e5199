// Package engine evaluates app-usage policy rules against foreground samples.
package engine

import (
	"regexp"
	"strings"
)

// Violation is a transient policy match derived from one sample. It is never
// persisted; Cooldowns throttles the actions it triggers per key.
type Violation struct {
	Key     string // "keyword:<kw>" or "app:<normalized app>"; scopes cooldowns per rule
	Reason  string // "blocked_keyword:<kw>" or "disallowed_app"
	AppName string // the raw app name as sampled
}

// Evaluator decides whether a foreground sample violates usage policy.
type Evaluator interface {
	// Evaluate returns the first matching violation for the sample, or nil
	// when the sample passes. Keyword rules take precedence over the
	// allow-list.
	Evaluate(appName, windowTitle string) *Violation
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lower-cases, strips a trailing ".exe", and collapses runs of
// non-alphanumeric characters to single spaces.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimSuffix(s, ".exe")
	s = nonAlnum.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// RuleEvaluator matches blocked window-title keywords and an app allow-list.
// An empty allow-list lets every app pass; an "unknown" app always passes.
type RuleEvaluator struct {
	allowed  []string
	keywords []string
}

// NewRuleEvaluator normalizes and deduplicates the configured lists,
// dropping entries that normalize to nothing.
func NewRuleEvaluator(allowedApps, blockedKeywords []string) *RuleEvaluator {
	return &RuleEvaluator{
		allowed:  normalizeList(allowedApps),
		keywords: normalizeList(blockedKeywords),
	}
}

func normalizeList(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, entry := range raw {
		n := Normalize(entry)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Evaluate implements Evaluator. Only the first matching rule fires per
// sample: a keyword hit on the window title wins over an allow-list miss.
func (e *RuleEvaluator) Evaluate(appName, windowTitle string) *Violation {
	if title := Normalize(windowTitle); title != "" {
		for _, kw := range e.keywords {
			if strings.Contains(title, kw) {
				return &Violation{
					Key:     "keyword:" + kw,
					Reason:  "blocked_keyword:" + kw,
					AppName: appName,
				}
			}
		}
	}

	app := Normalize(appName)
	if e.appAllowed(app) {
		return nil
	}
	key := app
	if key == "" {
		key = "unknown"
	}
	return &Violation{
		Key:     "app:" + key,
		Reason:  "disallowed_app",
		AppName: appName,
	}
}

func (e *RuleEvaluator) appAllowed(normalized string) bool {
	if len(e.allowed) == 0 {
		return true
	}
	if normalized == "" || normalized == "unknown" {
		return true
	}
	for _, allowed := range e.allowed {
		if normalized == allowed || strings.Contains(normalized, allowed) {
			return true
		}
	}
	return false
}
