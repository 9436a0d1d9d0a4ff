// Package inireader parses the multi-valued INI dialect used by hosts.ini and
// dirs.ini.
//
// Keys may repeat; every occurrence appends to the key's value list. A bare
// key is a boolean and reads as "true". The META section is not returned but
// serves as the interpolation source for all other sections:
//
//	${name}   replaced inline by the single value of META's name
//	@{name}   as a complete value, appends every value of META's name
//	!{clear}  as a complete value, drops the values accumulated so far
//
// Only "#" starts a comment, at the beginning of a line or after whitespace
// within one. ";" is an ordinary character in values, so shell snippets like
// "a ; b" survive.
package inireader

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"
)

// MetaSection is the interpolation source section.
const MetaSection = "META"

const clearDirective = "!{clear}"

var (
	listRef       = regexp.MustCompile(`^@\{([^}]+)\}$`)
	scalarRef     = regexp.MustCompile(`\$\{([^}]+)\}`)
	inlineComment = regexp.MustCompile(`[ \t]#`)
)

// Item is a single key/value pair. Keys with several values produce several
// items, in value order.
type Item struct {
	Key   string
	Value string
}

// Section is an ordered list of items.
type Section struct {
	Name  string
	Items []Item
}

// Values returns all values of key in order.
func (s *Section) Values(key string) []string {
	var vals []string
	for _, it := range s.Items {
		if it.Key == key {
			vals = append(vals, it.Value)
		}
	}
	return vals
}

// Keys returns the distinct keys in order of first appearance.
func (s *Section) Keys() []string {
	seen := make(map[string]struct{}, len(s.Items))
	var keys []string
	for _, it := range s.Items {
		if _, ok := seen[it.Key]; ok {
			continue
		}
		seen[it.Key] = struct{}{}
		keys = append(keys, it.Key)
	}
	return keys
}

// File is the parsed content, sections in order of first appearance.
type File struct {
	Name     string
	Sections []*Section
}

// Section returns the named section or nil.
func (f *File) Section(name string) *Section {
	for _, s := range f.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// InterpolationError reports a reference that cannot be resolved.
type InterpolationError struct {
	File    string
	Section string
	Key     string
	Ref     string
	Reason  string
}

func (e *InterpolationError) Error() string {
	return fmt.Sprintf("%s: [%s] %s: cannot interpolate %q: %s", e.File, e.Section, e.Key, e.Ref, e.Reason)
}

var loadOptions = ini.LoadOptions{
	AllowShadows:               true,
	AllowDuplicateShadowValues: true,
	AllowBooleanKeys:           true,
	AllowPythonMultilineValues: true,
	InsensitiveKeys:            true,
	PreserveSurroundedQuote:    true,
	IgnoreInlineComment:        true,
}

// Read parses data. name is only used in error messages.
func Read(name string, data []byte) (*File, error) {
	cfg, err := ini.LoadSources(loadOptions, stripComments(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	meta := map[string][]string{}
	if sec, err := cfg.GetSection(MetaSection); err == nil {
		for _, key := range sec.Keys() {
			meta[key.Name()] = rawValues(key)
		}
	}

	out := &File{Name: name}
	for _, sec := range cfg.Sections() {
		secName := strings.TrimSpace(sec.Name())
		if secName == ini.DefaultSection || secName == MetaSection {
			continue
		}

		section := out.Section(secName)
		if section == nil {
			section = &Section{Name: secName}
			out.Sections = append(out.Sections, section)
		}

		for _, key := range sec.Keys() {
			vals, err := interpolate(meta, rawValues(key))
			if err != nil {
				if ie, ok := err.(*InterpolationError); ok {
					ie.File = name
					ie.Section = secName
					ie.Key = key.Name()
				}
				return nil, err
			}
			for _, v := range vals {
				section.Items = append(section.Items, Item{Key: key.Name(), Value: v})
			}
		}
	}
	return out, nil
}

// stripComments cuts inline comments, leaving whole-line comments to ini.
func stripComments(data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data))
	for _, line := range bytes.SplitAfter(data, []byte("\n")) {
		body := bytes.TrimRight(line, "\r\n")
		trimmed := bytes.TrimLeft(body, " \t")
		if len(trimmed) > 0 && trimmed[0] != '#' && trimmed[0] != ';' {
			if loc := inlineComment.FindIndex(body); loc != nil {
				buf.Write(bytes.TrimRight(body[:loc[0]], " \t"))
				buf.Write(line[len(body):])
				continue
			}
		}
		buf.Write(line)
	}
	return buf.Bytes()
}

func rawValues(key *ini.Key) []string {
	vals := key.ValueWithShadows()
	if len(vals) == 0 {
		return []string{""}
	}
	return vals
}

func interpolate(meta map[string][]string, raw []string) ([]string, error) {
	var res []string
	for _, val := range raw {
		if val == clearDirective {
			res = res[:0]
			continue
		}

		if m := listRef.FindStringSubmatch(val); m != nil {
			repl, ok := meta[strings.ToLower(m[1])]
			if !ok {
				return nil, &InterpolationError{Ref: m[1], Reason: "no such key in " + MetaSection}
			}
			res = append(res, repl...)
			continue
		}

		s, err := interpolateString(meta, val)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, nil
}

func interpolateString(meta map[string][]string, val string) (string, error) {
	var (
		sb  strings.Builder
		idx int
	)
	for _, loc := range scalarRef.FindAllStringSubmatchIndex(val, -1) {
		ref := val[loc[2]:loc[3]]
		repl, ok := meta[strings.ToLower(ref)]
		if !ok {
			return "", &InterpolationError{Ref: ref, Reason: "no such key in " + MetaSection}
		}
		if len(repl) != 1 {
			return "", &InterpolationError{Ref: ref, Reason: fmt.Sprintf("expected a single value, got %d", len(repl))}
		}
		sb.WriteString(val[idx:loc[0]])
		sb.WriteString(repl[0])
		idx = loc[1]
	}
	sb.WriteString(val[idx:])
	return sb.String(), nil
}
