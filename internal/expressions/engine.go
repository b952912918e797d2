package expressions

import "context"

// Engine evaluates expressions over plain data maps.
// Three implementations: CEL (unlock preview), Expr (unlock preview), GoJQ (item queries).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
