package validation

import (
	"fmt"

	"github.com/rendis/wireflow/pkg/schema"
)

// CodeEmptyCombinator and friends classify warnings that never block a load.
const (
	CodeEmptyCombinator = "EMPTY_COMBINATOR"
	CodeEmptyOffset     = "EMPTY_OFFSET"
	CodeStub            = "STUB_REFERENCE"
	CodeNoLocation      = "PRODUCER_WITHOUT_LOCATION"
)

// validateSemantic checks every condition of every item: references, self
// references, time deltas and degenerate combinators.
func validateSemantic(items []*schema.Item) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	known := make(map[int64]*schema.Item, len(items))
	for i, it := range items {
		path := fmt.Sprintf("items[%d]", i)
		if it == nil {
			result.AddError(path, schema.ErrCodeValidation, "item is null")
			continue
		}
		if _, dup := known[it.ID]; dup {
			result.AddItemError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate item id %d", it.ID), it.Key())
			continue
		}
		known[it.ID] = it
	}

	for i, it := range items {
		if it == nil {
			continue
		}
		for _, sel := range []schema.Selector{schema.SelectorDependsOn, schema.SelectorDisappearOn} {
			dep := it.Condition(sel)
			if dep == nil {
				continue
			}
			path := fmt.Sprintf("items[%d].%s", i, sel)
			checkDependency(dep, path, it, known, result)
		}
	}

	return result
}

// checkDependency walks one condition tree depth-first.
func checkDependency(dep *schema.Dependency, path string, owner *schema.Item, known map[int64]*schema.Item, result *schema.ValidationResult) {
	switch dep.Kind() {
	case schema.KindEmpty:
	case schema.KindStub:
		result.AddItemWarning(path, CodeStub,
			fmt.Sprintf("reference to item %d carries no type and is kept as is", dep.GeneralItemID), owner.Key())
	case schema.KindAction, schema.KindProximity:
		checkTerminal(dep, path, owner, known, result)
	case schema.KindAnd, schema.KindOr:
		if len(dep.Dependencies) == 0 {
			result.AddItemWarning(path, CodeEmptyCombinator,
				fmt.Sprintf("%s dependency has no children", dep.Kind()), owner.Key())
		}
		for j, child := range dep.Dependencies {
			checkDependency(child, fmt.Sprintf("%s.dependencies[%d]", path, j), owner, known, result)
		}
	case schema.KindTime:
		if dep.TimeDelta < 0 {
			result.AddItemError(path+".timeDelta", schema.ErrCodeValidation,
				fmt.Sprintf("timeDelta must not be negative, got %d", dep.TimeDelta), owner.Key())
		}
		if dep.Offset.Kind() == schema.KindEmpty {
			result.AddItemWarning(path+".offset", CodeEmptyOffset, "time dependency has no offset", owner.Key())
			return
		}
		checkDependency(dep.Offset, path+".offset", owner, known, result)
	case schema.KindUnknown:
		result.AddItemError(path+".type", schema.ErrCodeValidation,
			fmt.Sprintf("unknown dependency type %q", dep.Type), owner.Key())
	}
}

func checkTerminal(dep *schema.Dependency, path string, owner *schema.Item, known map[int64]*schema.Item, result *schema.ValidationResult) {
	if dep.GeneralItemID == owner.ID {
		result.AddItemError(path+".generalItemId", schema.ErrCodeValidation,
			fmt.Sprintf("item %d depends on itself", owner.ID), owner.Key())
	}

	producer, ok := known[dep.GeneralItemID]
	if !ok {
		result.AddItemWarning(path+".generalItemId", schema.ErrCodeUnresolvedReference,
			fmt.Sprintf("item %d is not part of the batch", dep.GeneralItemID), owner.Key())
	}

	switch dep.Kind() {
	case schema.KindAction:
		if dep.Action == "" {
			result.AddItemError(path+".action", schema.ErrCodeValidation, "action must not be empty", owner.Key())
		}
	case schema.KindProximity:
		if dep.Radius <= 0 {
			result.AddItemError(path+".radius", schema.ErrCodeValidation,
				fmt.Sprintf("radius must be positive, got %g", dep.Radius), owner.Key())
		}
		if ok && !producer.ProximityCapable() {
			result.AddItemWarning(path, CodeNoLocation,
				fmt.Sprintf("item %d has no location but is used as a proximity source", producer.ID), owner.Key())
		}
	default:
	}
}
