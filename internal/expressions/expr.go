package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rendis/wireflow/pkg/schema"
)

// ExprEngine evaluates unlock previews with expr-lang/expr. Programs are
// type-checked against the game state:
//   - actions: map[string]int64 first emission time per "itemId:action"
//   - now:     int64            current game time in milliseconds
//   - never:   int64            the Never sentinel
//
// Unknown names are compile errors. Compiled programs are cached and shared
// across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate runs expression against the game state in data. Missing variables
// default to an empty actions map and now = 0.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	env, err := previewEnv(data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation, "expr state for %q: %s", expression, err.Error()).
			WithCause(err)
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out, nil
}

func (e *ExprEngine) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.Env(emptyPreviewEnv()))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

func emptyPreviewEnv() map[string]any {
	return map[string]any{
		"actions": map[string]int64{},
		"now":     int64(0),
		"never":   Never,
	}
}

// previewEnv normalizes data to the compile-time types. Other keys are ignored.
func previewEnv(data map[string]any) (map[string]any, error) {
	env := emptyPreviewEnv()
	if v, ok := data["now"]; ok && v != nil {
		now, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		env["now"] = now
	}
	switch actions := data["actions"].(type) {
	case nil:
	case map[string]int64:
		env["actions"] = actions
	case map[string]any:
		converted := make(map[string]int64, len(actions))
		for k, v := range actions {
			at, err := toInt64(v)
			if err != nil {
				return nil, err
			}
			converted[k] = at
		}
		env["actions"] = converted
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "actions has type %T", actions)
	}
	return env, nil
}

var _ Engine = (*ExprEngine)(nil)
