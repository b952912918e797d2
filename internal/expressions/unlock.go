package expressions

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rendis/wireflow/pkg/schema"
)

// Never is the satisfaction time of a condition that cannot be met with the
// current game state. It stays exact in float64 so jq and JSON round trips
// keep it intact.
const Never int64 = 1 << 53

// GameState is what a player has done so far.
type GameState struct {
	// Actions maps ActionKey(item, action) to the first time (ms) it was emitted.
	Actions map[string]int64 `json:"actions"`
	Now     int64            `json:"now"`
}

// ActionKey identifies an output in GameState.Actions.
func ActionKey(itemID int64, action string) string {
	return schema.ItemKey(itemID) + ":" + action
}

// Data returns the variables seen by compiled expressions.
func (s GameState) Data() map[string]any {
	actions := s.Actions
	if actions == nil {
		actions = map[string]int64{}
	}
	return map[string]any{"actions": actions, "now": s.Now}
}

// Dialect spells n-ary max and min for one engine.
type Dialect struct {
	Greatest func(args []string) string
	Least    func(args []string) string
}

// CELDialect relies on the CEL math extension.
var CELDialect = Dialect{
	Greatest: func(args []string) string { return "math.greatest([" + strings.Join(args, ", ") + "])" },
	Least:    func(args []string) string { return "math.least([" + strings.Join(args, ", ") + "])" },
}

// ExprDialect uses the expr builtins.
var ExprDialect = Dialect{
	Greatest: func(args []string) string { return "max(" + strings.Join(args, ", ") + ")" },
	Least:    func(args []string) string { return "min(" + strings.Join(args, ", ") + ")" },
}

// CompileAt turns dep into an expression yielding the time (ms) at which it
// became satisfied, or Never:
//   - a terminal is the first emission of its output
//   - And waits for its last child, Or for its first
//   - Time adds its delta to its offset
//
// An empty And is satisfied from the start; an empty Or, an empty Time offset
// and a stub never are.
func CompileAt(dep *schema.Dependency, d Dialect) (string, error) {
	never := strconv.FormatInt(Never, 10)
	switch dep.Kind() {
	case schema.KindEmpty:
		return "0", nil
	case schema.KindStub:
		return never, nil
	case schema.KindAction, schema.KindProximity:
		key := strconv.Quote(ActionKey(dep.GeneralItemID, dep.ActionName()))
		return fmt.Sprintf("(%s in actions ? actions[%s] : %s)", key, key, never), nil
	case schema.KindAnd, schema.KindOr:
		if len(dep.Dependencies) == 0 {
			if dep.Kind() == schema.KindAnd {
				return "0", nil
			}
			return never, nil
		}
		args := make([]string, 0, len(dep.Dependencies))
		for _, child := range dep.Dependencies {
			s, err := CompileAt(child, d)
			if err != nil {
				return "", err
			}
			args = append(args, s)
		}
		if len(args) == 1 {
			return args[0], nil
		}
		if dep.Kind() == schema.KindAnd {
			return d.Greatest(args), nil
		}
		return d.Least(args), nil
	case schema.KindTime:
		if dep.Offset.Kind() == schema.KindEmpty {
			return never, nil
		}
		inner, err := CompileAt(dep.Offset, d)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s + %d)", inner, dep.TimeDelta), nil
	default:
		return "", schema.NewErrorf(schema.ErrCodeEvaluation, "cannot compile dependency of type %q", dep.Type)
	}
}

// CompileCondition wraps CompileAt into a boolean expression over now.
func CompileCondition(dep *schema.Dependency, d Dialect) (string, error) {
	at, err := CompileAt(dep, d)
	if err != nil {
		return "", err
	}
	return conditionOf(at), nil
}

func conditionOf(at string) string {
	return "(" + at + ") <= now"
}

// Preview is the outcome of evaluating one condition.
type Preview struct {
	Satisfied  bool   `json:"satisfied"`
	At         int64  `json:"at"` // Never when not satisfiable yet
	Expression string `json:"expression"`
}

// Evaluator previews unlock conditions with a CEL or Expr engine.
type Evaluator struct {
	engine  Engine
	dialect Dialect
}

// NewEvaluator picks the dialect matching engine.
func NewEvaluator(engine Engine) (*Evaluator, error) {
	switch engine.Name() {
	case "cel":
		return &Evaluator{engine: engine, dialect: CELDialect}, nil
	case "expr":
		return &Evaluator{engine: engine, dialect: ExprDialect}, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "engine %q cannot evaluate unlock conditions", engine.Name())
	}
}

// NewEvaluatorFor builds an evaluator on the named engine ("cel" or "expr").
func NewEvaluatorFor(name string) (*Evaluator, error) {
	switch name {
	case "cel":
		cel, err := NewCELEngine()
		if err != nil {
			return nil, err
		}
		return NewEvaluator(cel)
	case "expr":
		return NewEvaluator(NewExprEngine())
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown engine %q", name)
	}
}

// Evaluate previews dep against state. A nil dependency is always satisfied.
func (e *Evaluator) Evaluate(ctx context.Context, dep *schema.Dependency, state GameState) (*Preview, error) {
	if dep == nil {
		return &Preview{Satisfied: true, Expression: "0"}, nil
	}

	at, err := CompileAt(dep, e.dialect)
	if err != nil {
		return nil, err
	}
	data := state.Data()

	out, err := e.engine.Evaluate(ctx, at, data)
	if err != nil {
		return nil, err
	}
	atValue, err := toInt64(out)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation, "expression %q: %s", at, err.Error())
	}

	cond := conditionOf(at)
	out, err = e.engine.Evaluate(ctx, cond, data)
	if err != nil {
		return nil, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation, "condition %q returned %T, want bool", cond, out)
	}

	if atValue >= Never {
		atValue = Never
	}
	return &Preview{Satisfied: ok, At: atValue, Expression: cond}, nil
}

// EvaluateItems previews the sel condition of every item.
func (e *Evaluator) EvaluateItems(ctx context.Context, items []*schema.Item, sel schema.Selector, state GameState) (map[int64]*Preview, error) {
	out := make(map[int64]*Preview, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		p, err := e.Evaluate(ctx, it.Condition(sel), state)
		if err != nil {
			sErr, ok := err.(*schema.Error)
			if !ok {
				sErr = schema.NewError(schema.ErrCodeEvaluation, err.Error()).WithCause(err)
			}
			return nil, sErr.WithItem(it.Key())
		}
		out[it.ID] = p
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("result %v (%T) is not a number", v, v)
	}
}
