package script

import (
	"context"
	"fmt"
	"reflect"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/builtins"
	"github.com/risor-io/risor/modules/json"
	"github.com/risor-io/risor/modules/math"
	"github.com/risor-io/risor/modules/strings"
	"github.com/risor-io/risor/modules/time"
	"github.com/risor-io/risor/object"
)

// Interpreter wraps Risor's Eval with sandboxing.
// WithoutDefaultGlobals removes os/exec/file builtins; scripts see the
// pure builtins, a handful of data modules and whatever the caller binds.
type Interpreter struct {
	globals map[string]any
}

func NewInterpreter() *Interpreter {
	globals := make(map[string]any)
	for name, fn := range builtins.Builtins() {
		globals[name] = fn
	}
	globals["json"] = json.Module()
	globals["math"] = math.Module()
	globals["strings"] = strings.Module()
	globals["time"] = time.Module()
	return &Interpreter{globals: globals}
}

// Eval runs code with bound added on top of the sandbox globals. Values in
// bound must already be Risor objects; use toObject for Go values.
func (i *Interpreter) Eval(ctx context.Context, code string, bound map[string]object.Object) (object.Object, error) {
	globals := make(map[string]any, len(i.globals)+len(bound))
	for k, v := range i.globals {
		globals[k] = v
	}
	for k, v := range bound {
		globals[k] = v
	}

	return risor.Eval(ctx, code,
		risor.WithoutDefaultGlobals(),
		risor.WithGlobals(globals),
	)
}

// toObject converts a Go value to a Risor object. Funcs become builtins,
// maps holding funcs become modules so `context.http.get(...)` works, and values
// Risor cannot represent become an opaque description string.
func toObject(name string, v any) object.Object {
	if v == nil {
		return object.Nil
	}
	if obj, ok := v.(object.Object); ok {
		return obj
	}

	switch val := v.(type) {
	case map[string]any:
		if hasFuncs(val) {
			return mapToModule(name, val)
		}
		items := make(map[string]object.Object, len(val))
		for k, item := range val {
			items[k] = toObject(k, item)
		}
		return object.NewMap(items)
	case []any:
		items := make([]object.Object, len(val))
		for i, item := range val {
			items[i] = toObject(name, item)
		}
		return object.NewList(items)
	}

	if reflect.TypeOf(v).Kind() == reflect.Func {
		return wrapGoFunc(name, v)
	}

	obj := object.FromGoType(v)
	if obj == nil {
		return opaque(v)
	}
	if _, isErr := obj.(*object.Error); isErr {
		return opaque(v)
	}
	return obj
}

func opaque(v any) object.Object {
	return object.NewString(fmt.Sprintf("<%T>", v))
}

func hasFuncs(m map[string]any) bool {
	for _, val := range m {
		if val != nil && reflect.TypeOf(val).Kind() == reflect.Func {
			return true
		}
	}
	return false
}

func mapToModule(name string, m map[string]any) *object.Module {
	contents := make(map[string]object.Object, len(m))
	for k, v := range m {
		contents[k] = toObject(fmt.Sprintf("%s.%s", name, k), v)
	}
	return object.NewBuiltinsModule(name, contents)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// wrapGoFunc exposes fn as a Risor builtin. Arguments are converted to the
// parameter types where possible; a trailing error result is raised.
func wrapGoFunc(name string, fn any) *object.Builtin {
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()

	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) (result object.Object) {
		defer func() {
			if r := recover(); r != nil {
				result = object.Errorf("%s: %v", name, r)
			}
		}()

		if err := checkArity(fnType, len(args)); err != nil {
			return object.Errorf("%s: %v", name, err)
		}

		goArgs := make([]reflect.Value, len(args))
		for i, arg := range args {
			goArgs[i] = convertToExpectedType(objectToGo(arg), paramType(fnType, i))
		}

		results := fnValue.Call(goArgs)
		if len(results) == 0 {
			return object.Nil
		}

		last := results[len(results)-1]
		if fnType.Out(len(results)-1) == errorType {
			if !last.IsNil() {
				return object.NewError(last.Interface().(error))
			}
			if len(results) == 1 {
				return object.Nil
			}
		}
		return toObject(name, results[0].Interface())
	})
}

func checkArity(fnType reflect.Type, got int) error {
	want := fnType.NumIn()
	if fnType.IsVariadic() {
		if got < want-1 {
			return fmt.Errorf("expected at least %d arguments, got %d", want-1, got)
		}
		return nil
	}
	if got != want {
		return fmt.Errorf("expected %d arguments, got %d", want, got)
	}
	return nil
}

func paramType(fnType reflect.Type, i int) reflect.Type {
	if fnType.IsVariadic() && i >= fnType.NumIn()-1 {
		return fnType.In(fnType.NumIn() - 1).Elem()
	}
	return fnType.In(i)
}

func convertToExpectedType(val any, expected reflect.Type) reflect.Value {
	if val == nil {
		return reflect.Zero(expected)
	}
	actual := reflect.ValueOf(val)
	if actual.Type().AssignableTo(expected) {
		return actual
	}
	if actual.Type().ConvertibleTo(expected) {
		return actual.Convert(expected)
	}
	return actual
}

// objectToGo recursively converts a Risor object to a native Go value.
func objectToGo(obj object.Object) any {
	if obj == nil {
		return nil
	}

	switch o := obj.(type) {
	case *object.Map:
		goMap := make(map[string]any)
		for k, v := range o.Value() {
			goMap[k] = objectToGo(v)
		}
		return goMap
	case *object.List:
		items := o.Value()
		goSlice := make([]any, len(items))
		for i, v := range items {
			goSlice[i] = objectToGo(v)
		}
		return goSlice
	case *object.NilType:
		return nil
	default:
		return obj.Interface()
	}
}
