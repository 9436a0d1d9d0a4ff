package script

import (
	"fmt"
	"strings"

	"github.com/wagnerflo/thincf/state"
	"github.com/wagnerflo/thincf/templating"
)

// View is the compiled result as seen by the main template.
type View struct {
	Bundle      string
	Fingerprint string
	Entries     []EntryView
	Actions     []ActionView
}

// EntryView is one entry. Content is set for files, Target for symlinks.
type EntryView struct {
	Kind     string
	Path     string
	User     string
	Group    string
	Mode     string
	Content  string
	Target   string
	Triggers []TriggerView
}

type TriggerView struct {
	Action   int
	Argument int
}

// ActionView is an action with its distinct invocations. Body always ends
// with a newline.
type ActionView struct {
	Name        string
	Index       int
	Body        string
	Invocations []InvocationView
}

// InvocationView is one argument tuple; Quoted holds the arguments as shell
// words.
type InvocationView struct {
	Index  int
	Args   []string
	Quoted string
}

// NewView converts a result. A nil result gives a nil view.
func NewView(res *state.Result) *View {
	if res == nil {
		return nil
	}

	v := &View{Bundle: res.Bundle, Fingerprint: res.Fingerprint}
	for _, e := range res.Entries {
		v.Entries = append(v.Entries, newEntryView(e))
	}

	for _, a := range res.Actions {
		av := ActionView{Name: a.Name, Index: a.Index, Body: a.Body}
		if !strings.HasSuffix(av.Body, "\n") {
			av.Body += "\n"
		}
		for i, args := range a.Arguments {
			av.Invocations = append(av.Invocations, InvocationView{
				Index:  i + 1,
				Args:   args,
				Quoted: templating.ShquoteAll(args...),
			})
		}
		v.Actions = append(v.Actions, av)
	}
	return v
}

func newEntryView(e state.Entry) EntryView {
	attrs := e.Attrs()
	ev := EntryView{
		Kind:  state.KindOf(e),
		Path:  attrs.Path,
		User:  attrs.User,
		Group: attrs.Group,
		Mode:  fmt.Sprintf("%04o", attrs.Mode),
	}
	for _, t := range attrs.Triggers {
		ev.Triggers = append(ev.Triggers, TriggerView{Action: t.Action, Argument: t.Argument})
	}

	switch e := e.(type) {
	case *state.FileEntry:
		ev.Content = e.Content
	case *state.SymlinkEntry:
		ev.Target = e.Target
	case *state.DirEntry:
	default:
		panic(fmt.Sprintf("unhandled entry type %T", e))
	}
	return ev
}
