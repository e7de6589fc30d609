// Package filter decides which created paths are worth mirroring.
package filter

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobPrefix marks a rule as a doublestar glob instead of a regular expression
const GlobPrefix = "glob:"

type rule struct {
	pattern string
	re      *regexp.Regexp
	glob    string
}

func (r rule) match(name string) bool {
	if r.re != nil {
		return r.re.MatchString(name)
	}
	ok, _ := doublestar.Match(r.glob, name)
	return ok
}

// Filter is a compiled rule list. A name passes when the list is empty or
// when any rule matches it. Regular expressions match anywhere in the name.
type Filter struct {
	rules      []rule
	configured int
}

// New compiles patterns. Malformed patterns are logged and never match.
func New(patterns []string) *Filter {
	f := &Filter{configured: len(patterns)}
	for _, p := range patterns {
		r, ok := compile(p)
		if !ok {
			slog.Warn("filter rule skipped", "rule", p)
			continue
		}
		f.rules = append(f.rules, r)
	}
	return f
}

func (f *Filter) Passes(name string) bool {
	if f.configured == 0 {
		return true
	}
	for _, r := range f.rules {
		if r.match(name) {
			return true
		}
	}
	return false
}

// Len is the number of usable rules
func (f *Filter) Len() int {
	return len(f.rules)
}

// Passes is the one-shot form of New(rules).Passes(name)
func Passes(name string, rules []string) bool {
	if len(rules) == 0 {
		return true
	}
	for _, p := range rules {
		if r, ok := compile(p); ok && r.match(name) {
			return true
		}
	}
	return false
}

func compile(pattern string) (rule, bool) {
	if glob, ok := strings.CutPrefix(pattern, GlobPrefix); ok {
		if !doublestar.ValidatePattern(glob) {
			return rule{}, false
		}
		return rule{pattern: pattern, glob: glob}, true
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return rule{}, false
	}
	return rule{pattern: pattern, re: re}, true
}
