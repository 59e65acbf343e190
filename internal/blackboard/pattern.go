package blackboard

import (
	"regexp"
	"strings"
	"sync"
)

// patternCache compiles glob-style subscription patterns ("threat.*",
// "competitor.*.pricing") into anchored regexes once and reuses them, mirroring
// the original's _compiled_patterns cache — compiling a regex per publish
// would dominate cost once a run has more than a handful of subscribers.
type patternCache struct {
	mu     sync.Mutex
	byGlob map[string]*regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{byGlob: make(map[string]*regexp.Regexp)}
}

func (c *patternCache) matches(glob, key string) bool {
	re := c.compiled(glob)
	return re.MatchString(key)
}

func (c *patternCache) compiled(glob string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.byGlob[glob]; ok {
		return re
	}
	re := regexp.MustCompile(globToRegex(glob))
	c.byGlob[glob] = re
	return re
}

// globToRegex turns a dotted glob pattern into an anchored regex. "*" matches
// one dot-delimited segment's worth of non-dot characters; everything else is
// escaped literally.
func globToRegex(glob string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString("[^.]*")
		case '.', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteString(regexp.QuoteMeta(string(r)))
		default:
			b.WriteRune(r)
		}
	}
	b.WriteString("$")
	return b.String()
}
