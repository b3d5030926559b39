package dispatch

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Wildcard is the matcher value that matches every target, including an
// absent one. An empty matcher behaves identically.
const Wildcard = "*"

// Matcher evaluates the glob-like patterns hook rules use to select
// tool names. A pattern is anchored; "*" expands to any sequence and
// every other character matches literally.
type Matcher struct {
	cache sync.Map // pattern -> *regexp.Regexp
}

// NewMatcher creates a new pattern matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match reports whether pattern selects the given target. hasTarget is
// false for events that carry no target field (session-level events):
// the wildcard and the empty pattern still match, any other pattern
// never does. This asymmetry is load-bearing for session-level hooks.
func (m *Matcher) Match(pattern, target string, hasTarget bool) (bool, error) {
	if pattern == "" || pattern == Wildcard {
		return true, nil
	}
	if !hasTarget {
		return false, nil
	}

	re, err := m.getOrCompile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid matcher %q: %w", pattern, err)
	}
	return re.MatchString(target), nil
}

// getOrCompile retrieves a compiled pattern from cache or compiles it.
func (m *Matcher) getOrCompile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := m.cache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	parts := strings.Split(pattern, Wildcard)
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}

	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, err
	}

	m.cache.Store(pattern, re)
	return re, nil
}
