package templating

// ContextKey is the template context variable holding the *RenderContext of
// the running render.
const ContextKey = "thincf_render"

// Directive families with per-render state.
const (
	familySnippets = "snippets"
	familyMetadata = "metadata"
)

// RenderContext carries the mutable state of exactly one render. Every
// directive family gets its own slot, created on first use.
type RenderContext struct {
	slots map[string]any
}

func NewRenderContext() *RenderContext {
	return &RenderContext{slots: map[string]any{}}
}

func slot[T any](rc *RenderContext, family string) *T {
	if v, ok := rc.slots[family]; ok {
		return v.(*T)
	}
	v := new(T)
	rc.slots[family] = v
	return v
}

type snippets struct {
	declared map[string]string
	emitted  map[string]bool
}

func (rc *RenderContext) snippets() *snippets {
	s := slot[snippets](rc, familySnippets)
	if s.declared == nil {
		s.declared = map[string]string{}
		s.emitted = map[string]bool{}
	}
	return s
}

// Metadata returns what the render declared about its output.
func (rc *RenderContext) Metadata() *Metadata {
	return slot[Metadata](rc, familyMetadata)
}

// Kind classifies the output of a template.
type Kind int

const (
	KindNone Kind = iota
	KindFile
	KindSymlink
	KindDirectory
	KindAction
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindDirectory:
		return "directory"
	case KindAction:
		return "action"
	default:
		return "none"
	}
}

// Invocation is one reference to a named action with its arguments.
type Invocation struct {
	Name string
	Args []string
}

// Metadata is filled by the deploy, define and action directives.
type Metadata struct {
	Kind Kind

	// Name of the action defined by the template, KindAction only.
	Name string

	// Options holds the deploy keywords. A present mode is valid octal.
	Options map[string]string

	Invocations []Invocation
}

// Option returns a deploy keyword.
func (m *Metadata) Option(key string) (string, bool) {
	v, ok := m.Options[key]
	return v, ok
}
