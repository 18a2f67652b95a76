package script

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/BDNK1/stepflow/runtime"
)

// ContextName is the only global a step sees besides the sandbox builtins.
const ContextName = "context"

// Engine runs script steps. The execution context is bound as a Risor map;
// whatever the script leaves in that map is written back, even when the
// script fails partway through.
type Engine struct {
	l      *slog.Logger
	interp *Interpreter
}

func NewEngine(l *slog.Logger) *Engine {
	return &Engine{l: l, interp: NewInterpreter()}
}

// ExecuteStep returns the interpreter's error unchanged so the dispatcher
// can classify it.
func (e *Engine) ExecuteStep(ctx context.Context, exec *runtime.Execution, step runtime.Step) error {
	e.l.DebugContext(ctx, fmt.Sprintf("Running script step: %s", step.Name),
		"step", step.Name,
		"execution_id", exec.ID)

	b := bindContext(exec.Values())
	_, err := e.interp.Eval(ctx, step.Source, map[string]object.Object{ContextName: b.m})
	b.syncBack(exec)
	return err
}

type binding struct {
	m      *object.Map
	tracks map[string]*track
}

// track remembers the Go value behind a bound object and, for maps and
// lists, the objects it held at bind time.
type track struct {
	value any
	obj   object.Object
	keys  map[string]*track
	elems []*track
}

// bindContext builds the top-level context map by hand: the context itself
// always stays a mutable map even when it holds callables.
func bindContext(values map[string]any) *binding {
	items := make(map[string]object.Object, len(values))
	tracks := make(map[string]*track, len(values))
	for k, v := range values {
		t := bindValue(k, v)
		items[k] = t.obj
		tracks[k] = t
	}
	return &binding{m: object.NewMap(items), tracks: tracks}
}

func bindValue(name string, v any) *track {
	switch val := v.(type) {
	case map[string]any:
		if hasFuncs(val) {
			break
		}
		t := &track{value: v, keys: make(map[string]*track, len(val))}
		items := make(map[string]object.Object, len(val))
		for k, item := range val {
			child := bindValue(k, item)
			t.keys[k] = child
			items[k] = child.obj
		}
		t.obj = object.NewMap(items)
		return t
	case []any:
		t := &track{value: v, elems: make([]*track, len(val))}
		items := make([]object.Object, len(val))
		for i, item := range val {
			child := bindValue(name, item)
			t.elems[i] = child
			items[i] = child.obj
		}
		t.obj = object.NewList(items)
		return t
	}
	return snapshot(toObject(name, v), v)
}

// snapshot tracks an object converted wholesale, such as a []string that
// became a list. Its children have no Go value of their own, so a changed
// container is rebuilt from the script's view.
func snapshot(obj object.Object, value any) *track {
	t := &track{value: value, obj: obj}
	switch o := obj.(type) {
	case *object.Map:
		t.keys = make(map[string]*track, len(o.Value()))
		for k, item := range o.Value() {
			t.keys[k] = snapshot(item, objectToGo(item))
		}
	case *object.List:
		t.elems = make([]*track, len(o.Value()))
		for i, item := range o.Value() {
			t.elems[i] = snapshot(item, objectToGo(item))
		}
	}
	return t
}

// restore converts obj back to Go. Values the script left untouched come
// back as the original Go value, including maps and lists whose contents
// are unchanged; changed containers are rebuilt around untouched children.
func restore(t *track, obj object.Object) (any, bool) {
	if t == nil || t.obj != obj {
		return objectToGo(obj), true
	}
	switch o := obj.(type) {
	case *object.Map:
		items := o.Value()
		changed := len(items) != len(t.keys)
		out := make(map[string]any, len(items))
		for k, item := range items {
			v, c := restore(t.keys[k], item)
			out[k] = v
			changed = changed || c
		}
		if changed {
			return out, true
		}
	case *object.List:
		items := o.Value()
		changed := len(items) != len(t.elems)
		out := make([]any, len(items))
		for i, item := range items {
			var prev *track
			if i < len(t.elems) {
				prev = t.elems[i]
			}
			v, c := restore(prev, item)
			out[i] = v
			changed = changed || c
		}
		if changed {
			return out, true
		}
	}
	return t.value, false
}

// syncBack copies the script's changes into exec. Entries the script did
// not touch are left alone, so callables, handles and typed values
// survive the step.
func (b *binding) syncBack(exec *runtime.Execution) {
	current := b.m.Value()
	for k, obj := range current {
		if v, changed := restore(b.tracks[k], obj); changed {
			exec.Set(k, v)
		}
	}
	for k := range b.tracks {
		if _, ok := current[k]; !ok {
			exec.Delete(k)
		}
	}
}
