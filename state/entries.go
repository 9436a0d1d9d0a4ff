package state

import (
	"sort"
	"strings"
)

// DefaultOwner is used for user and group unless configured.
const DefaultOwner = "0"

// Modes of entries without explicit configuration.
const (
	DefaultFileMode    uint32 = 0o644
	DefaultSymlinkMode uint32 = 0o755
	DefaultDirMode     uint32 = 0o755
)

// Env is the client environment sent with a script request. Its methods are
// callable from templates.
type Env map[string][]string

// Get returns the first value of key or the empty string.
func (e Env) Get(key string) string {
	if vals := e[strings.ToLower(key)]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (e Env) GetAll(key string) []string {
	return e[strings.ToLower(key)]
}

func (e Env) Has(key string) bool {
	_, ok := e[strings.ToLower(key)]
	return ok
}

// Invocation references an action with a tuple of arguments.
type Invocation struct {
	Name string
	Args []string
}

func compareArgs(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareInvocations(a, b Invocation) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return compareArgs(a.Args, b.Args)
}

// normalizeInvocations sorts and deduplicates.
func normalizeInvocations(invs []Invocation) []Invocation {
	sorted := append([]Invocation(nil), invs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareInvocations(sorted[i], sorted[j]) < 0
	})
	res := sorted[:0]
	for i, inv := range sorted {
		if i > 0 && compareInvocations(inv, res[len(res)-1]) == 0 {
			continue
		}
		res = append(res, inv)
	}
	return res
}

// Trigger locates an invocation in the result's action table. Both indices
// start at 1.
type Trigger struct {
	Action   int
	Argument int
}

// Attributes are shared by all entry kinds.
type Attributes struct {
	Path        string
	User        string
	Group       string
	Mode        uint32
	Invocations []Invocation
	Triggers    []Trigger
}

// Entry is a filesystem object of a compiled result: *FileEntry,
// *SymlinkEntry or *DirEntry.
type Entry interface {
	Attrs() *Attributes
	sealed()
}

type FileEntry struct {
	Attributes
	Content string
}

type SymlinkEntry struct {
	Attributes
	Target string
}

type DirEntry struct {
	Attributes
}

func (e *FileEntry) Attrs() *Attributes    { return &e.Attributes }
func (e *SymlinkEntry) Attrs() *Attributes { return &e.Attributes }
func (e *DirEntry) Attrs() *Attributes     { return &e.Attributes }

func (*FileEntry) sealed()    {}
func (*SymlinkEntry) sealed() {}
func (*DirEntry) sealed()     {}

// KindOf names the entry kind.
func KindOf(e Entry) string {
	switch e.(type) {
	case *FileEntry:
		return "file"
	case *SymlinkEntry:
		return "symlink"
	case *DirEntry:
		return "directory"
	default:
		panic("unknown entry type")
	}
}

// Action is a named shell snippet referenced by at least one entry.
type Action struct {
	Name  string
	Body  string
	Index int

	// Arguments holds the distinct argument tuples in ascending order;
	// tuple i has argument index i+1.
	Arguments [][]string

	definedIn string
}
