// Package pattern compiles the wildcard patterns used by directory rules and
// host attribute lookups into anchored regular expressions.
//
// Directory patterns know three operators:
//
//	/***  any depth below the prefix, including the prefix itself (trailing only)
//	**    any run of characters, path separators included
//	*     any run of characters within one path segment
//
// Host key patterns only know '*', matching a non-empty run of any characters.
package pattern

import (
	"errors"
	"regexp"
	"strings"
)

var ErrEmptyPattern = errors.New("empty pattern")

// Specificity orders directory patterns. Every operator occurrence decrements
// its component, so a literal pattern has the zero vector and compares greater
// than any wildcard pattern. Component 0 is reserved.
type Specificity [4]int

// Less compares lexicographically.
func (s Specificity) Less(o Specificity) bool {
	for i := range s {
		if s[i] != o[i] {
			return s[i] < o[i]
		}
	}
	return false
}

type dirOperator struct {
	token    string
	trailing bool
	expr     string
	slot     int
}

// Longest operators first so "**" is not read as two "*".
var dirOperators = []dirOperator{
	{token: "/***", trailing: true, expr: `(?:/.+)?`, slot: 1},
	{token: "**", expr: `.*`, slot: 2},
	{token: "*", expr: `[^/]*`, slot: 3},
}

// DirMatcher matches relative slash-separated paths.
type DirMatcher struct {
	path        string
	re          *regexp.Regexp
	specificity Specificity
}

// NormalizeDir strips leading and trailing separators. Rule patterns and
// entry paths are both relative to the target root.
func NormalizeDir(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

func CompileDir(raw string) (*DirMatcher, error) {
	p := NormalizeDir(raw)
	if p == "" {
		return nil, ErrEmptyPattern
	}
	if p == "***" {
		// "/***" with the leading separator stripped: the whole tree.
		return &DirMatcher{
			path:        p,
			re:          regexp.MustCompile(`^.+$`),
			specificity: Specificity{0, -1, 0, 0},
		}, nil
	}

	var (
		sb   strings.Builder
		spec Specificity
		lit  int
	)
	sb.WriteString("^")

	for i := 0; i < len(p); {
		var op *dirOperator
		for j := range dirOperators {
			cand := &dirOperators[j]
			if !strings.HasPrefix(p[i:], cand.token) {
				continue
			}
			if cand.trailing && i+len(cand.token) != len(p) {
				continue
			}
			op = cand
			break
		}
		if op == nil {
			i++
			continue
		}
		sb.WriteString(regexp.QuoteMeta(p[lit:i]))
		sb.WriteString(op.expr)
		spec[op.slot]--
		i += len(op.token)
		lit = i
	}
	sb.WriteString(regexp.QuoteMeta(p[lit:]))
	sb.WriteString("$")

	return &DirMatcher{
		path:        p,
		re:          regexp.MustCompile(sb.String()),
		specificity: spec,
	}, nil
}

// Path returns the normalized pattern text.
func (m *DirMatcher) Path() string { return m.path }

func (m *DirMatcher) Specificity() Specificity { return m.specificity }

// Literal reports whether the pattern contains no operator.
func (m *DirMatcher) Literal() bool { return m.specificity == Specificity{} }

func (m *DirMatcher) Match(path string) bool {
	return m.re.MatchString(path)
}

// KeyMatcher matches host attribute keys.
type KeyMatcher struct {
	pattern string
	re      *regexp.Regexp
}

func CompileKey(p string) (*KeyMatcher, error) {
	if p == "" {
		return nil, ErrEmptyPattern
	}

	var sb strings.Builder
	sb.WriteString("^")
	parts := strings.Split(p, "*")
	for i, part := range parts {
		if i > 0 {
			sb.WriteString("(.+)")
		}
		sb.WriteString(regexp.QuoteMeta(part))
	}
	sb.WriteString("$")

	return &KeyMatcher{pattern: p, re: regexp.MustCompile(sb.String())}, nil
}

// Match returns the text captured by the first wildcard, empty when the
// pattern has none.
func (m *KeyMatcher) Match(key string) (string, bool) {
	sub := m.re.FindStringSubmatch(key)
	if sub == nil {
		return "", false
	}
	if len(sub) > 1 {
		return sub[1], true
	}
	return "", true
}

func (m *KeyMatcher) String() string { return m.pattern }
