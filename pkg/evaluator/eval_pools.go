package evaluator

import (
	"regexp"
	"strings"
	"sync"
)

type matcherKey struct {
	pattern string
	regex   bool
}

// matchers caches compiled like patterns for the whole process. Rules
// run the same few patterns inside loops and across sessions.
var matchers sync.Map // map[matcherKey]*regexp.Regexp

// compileMatcher returns the anchored regular expression for a like
// pattern. With regex unset, * in the pattern matches any run of
// characters and everything else is literal.
func compileMatcher(pattern string, regex bool) (*regexp.Regexp, error) {
	key := matcherKey{pattern, regex}
	if v, ok := matchers.Load(key); ok {
		return v.(*regexp.Regexp), nil
	}
	expr := "^(?:" + pattern + ")$"
	if !regex {
		expr = wildcardPattern(pattern)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v, _ := matchers.LoadOrStore(key, re)
	return v.(*regexp.Regexp), nil
}

// wildcardPattern converts a like pattern to an anchored regular
// expression.
func wildcardPattern(p string) string {
	parts := strings.Split(p, "*")
	for i, s := range parts {
		parts[i] = regexp.QuoteMeta(s)
	}
	return "^(?s:" + strings.Join(parts, ".*") + ")$"
}

var builders = sync.Pool{
	New: func() any { return new(strings.Builder) },
}

func acquireBuilder() *strings.Builder {
	b := builders.Get().(*strings.Builder)
	b.Reset()
	return b
}

// releaseBuilder drops builders that grew past 64 KiB.
func releaseBuilder(b *strings.Builder) {
	if b.Cap() <= 64<<10 {
		builders.Put(b)
	}
}
