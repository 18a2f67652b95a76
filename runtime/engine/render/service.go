package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/singleflight"

	"github.com/BDNK1/stepflow/runtime"
)

const (
	// ContextName and PropsName are the only variables a render program sees.
	ContextName = "context"
	PropsName   = "props"

	// ComponentName is the builtin that nests library components and factories.
	ComponentName = "component"

	// MaxComponentDepth bounds component nesting so self-referencing
	// components fail instead of exhausting the stack.
	MaxComponentDepth = 64

	initKey = "toolchain"
)

var (
	ErrInit             = errors.New("render toolchain failed to initialize")
	ErrCompile          = errors.New("render compile error")
	ErrInvoke           = errors.New("render invocation error")
	ErrUnknownComponent = errors.New("unknown library component")
	ErrComponentDepth   = errors.New("component nesting too deep")
)

// LibraryLoader returns named component sources that render programs can
// reach through component(name, props).
type LibraryLoader func(ctx context.Context) (map[string]string, error)

// Service compiles render step source into component factories. It is
// created once by the host and shared by every dispatcher; the toolchain
// behind it loads on first use.
type Service struct {
	l       *slog.Logger
	library LibraryLoader

	group    singleflight.Group
	tc       atomic.Pointer[toolchain]
	programs sync.Map
}

type toolchain struct {
	library map[string]*vm.Program
	options []expr.Option
}

type Option func(*Service)

func WithLibrary(loader LibraryLoader) Option {
	return func(s *Service) {
		s.library = loader
	}
}

func NewService(l *slog.Logger, opts ...Option) *Service {
	s := &Service{l: l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureInitialized loads the toolchain at most once. Callers that arrive
// while a load is in flight wait for that load instead of starting another.
// A failed load is retried by the next caller. The load itself ignores ctx
// cancellation; ctx only bounds how long this caller waits.
func (s *Service) EnsureInitialized(ctx context.Context) error {
	if s.tc.Load() != nil {
		return nil
	}

	ch := s.group.DoChan(initKey, func() (any, error) {
		if tc := s.tc.Load(); tc != nil {
			return tc, nil
		}
		tc, err := s.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		s.tc.Store(tc)
		return tc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("%w: %w", ErrInit, res.Err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) load(ctx context.Context) (*toolchain, error) {
	sources := map[string]string{}
	if s.library != nil {
		loaded, err := s.library(ctx)
		if err != nil {
			return nil, fmt.Errorf("error loading component library: %w", err)
		}
		sources = loaded
	}

	tc := &toolchain{library: make(map[string]*vm.Program, len(sources))}
	tc.options = []expr.Option{
		expr.Function("el", buildElement),
		expr.Function("text", buildText),
		expr.Function("fragment", buildFragment),
		expr.Function("classes", buildClasses),
	}

	for _, name := range slices.Sorted(maps.Keys(sources)) {
		program, err := tc.compile(sources[name], libraryEnv())
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", name, err)
		}
		tc.library[name] = program
	}

	s.l.InfoContext(ctx, fmt.Sprintf("Render toolchain ready with %d library components", len(tc.library)))
	return tc, nil
}

// Compile turns source into a factory bound to exec's live context. The
// program is invoked once with the context as props, so a factory is only
// returned for source that actually renders.
func (s *Service) Compile(ctx context.Context, source string, exec *runtime.Execution) (runtime.ComponentFactory, error) {
	if err := s.EnsureInitialized(ctx); err != nil {
		return nil, err
	}
	tc := s.tc.Load()

	program, err := s.program(tc, source)
	if err != nil {
		return nil, err
	}

	values := exec.Values()
	// A factory can reach itself through the context, so re-entry is
	// counted per factory on top of the per-call nesting depth.
	var active atomic.Int32
	factory := runtime.ComponentFactory(func(props map[string]any) (runtime.Renderable, error) {
		defer active.Add(-1)
		if active.Add(1) > MaxComponentDepth {
			return nil, depthError()
		}
		el, err := tc.run(program, map[string]any{
			ContextName: values,
			PropsName:   props,
		}, 0)
		if err != nil {
			return nil, err
		}
		return el, nil
	})

	if _, err := factory(values); err != nil {
		return nil, err
	}
	return factory, nil
}

// CompileAndInvoke is Compile with failures logged instead of returned.
func (s *Service) CompileAndInvoke(ctx context.Context, source string, exec *runtime.Execution) (factory runtime.ComponentFactory) {
	defer func() {
		if r := recover(); r != nil {
			s.l.ErrorContext(ctx, "Render step panicked",
				"execution_id", exec.ID,
				"error", fmt.Sprintf("%v", r))
			factory = nil
		}
	}()

	factory, err := s.Compile(ctx, source, exec)
	if err != nil {
		s.l.ErrorContext(ctx, "Render step produced no component",
			"execution_id", exec.ID,
			"error", err)
		return nil
	}
	return factory
}

// Ready reports whether the toolchain has loaded.
func (s *Service) Ready() bool {
	return s.tc.Load() != nil
}

func (s *Service) program(tc *toolchain, source string) (*vm.Program, error) {
	key := programCacheKey(source)
	if val, ok := s.programs.Load(key); ok {
		return val.(*vm.Program), nil
	}

	program, err := tc.compile(source, renderEnv())
	if err != nil {
		return nil, err
	}
	s.programs.Store(key, program)
	return program, nil
}

func (tc *toolchain) compile(source string, env map[string]any) (*vm.Program, error) {
	opts := append([]expr.Option{expr.Env(env)}, tc.options...)
	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return program, nil
}

// run invokes program with a component builtin that knows its nesting depth.
func (tc *toolchain) run(program *vm.Program, env map[string]any, depth int) (*Element, error) {
	if depth > MaxComponentDepth {
		return nil, depthError()
	}
	env[ComponentName] = func(params ...any) (any, error) {
		return tc.component(depth+1, params...)
	}
	return invoke(program, env)
}

// component implements component(ref, [props]). ref is a library component
// name or a factory produced by an earlier render step.
func (tc *toolchain) component(depth int, params ...any) (any, error) {
	if len(params) == 0 || len(params) > 2 {
		return nil, fmt.Errorf("%w: component expects a name and optional props", ErrInvalidArgument)
	}
	props := map[string]any{}
	if len(params) == 2 && params[1] != nil {
		p, ok := params[1].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: component props must be a map, got %T", ErrInvalidArgument, params[1])
		}
		props = p
	}

	switch ref := params[0].(type) {
	case string:
		program, ok := tc.library[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownComponent, ref)
		}
		return tc.run(program, map[string]any{PropsName: props}, depth)
	case runtime.ComponentFactory:
		r, err := ref(props)
		if err != nil {
			return nil, err
		}
		el, ok := r.(*Element)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrNotRenderable, r)
		}
		return el, nil
	default:
		return nil, fmt.Errorf("%w: component reference must be a name or a component, got %T", ErrInvalidArgument, params[0])
	}
}

func invoke(program *vm.Program, env map[string]any) (*Element, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvoke, err)
	}
	el, err := toElement(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvoke, err)
	}
	return el, nil
}

func depthError() error {
	return fmt.Errorf("%w: %w (limit %d)", ErrInvoke, ErrComponentDepth, MaxComponentDepth)
}

// componentType only gives the checker the builtin's signature; run binds
// the real one.
func componentType(params ...any) (any, error) {
	return nil, ErrComponentDepth
}

func renderEnv() map[string]any {
	return map[string]any{
		ContextName:   map[string]any{},
		PropsName:     map[string]any{},
		ComponentName: componentType,
	}
}

func libraryEnv() map[string]any {
	return map[string]any{
		PropsName:     map[string]any{},
		ComponentName: componentType,
	}
}

func programCacheKey(source string) string {
	hash := sha256.Sum256([]byte(source))
	return hex.EncodeToString(hash[:])
}
