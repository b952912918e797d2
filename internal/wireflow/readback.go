package wireflow

import (
	"fmt"
	"slices"

	"github.com/rendis/wireflow/pkg/schema"
)

// GetOutputDependency reads the item's condition back from the diagram:
// the root middle point's tree, else a terminal synthesized from the single
// connector, else a bare stub of the last referenced producer. Any failure
// keeps the item's current value and is only logged at debug level.
func (m *Manager) GetOutputDependency(item *schema.Item) (dep *schema.Dependency) {
	prev := item.Condition(m.selector)
	key := item.Key()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Debug("read-back failed, keeping previous value", "item_id", key, "panic", fmt.Sprint(r))
			dep = prev
		}
	}()

	if root := m.diagram.GetMainMiddlePoint(key); root != nil {
		return root.Dependency
	}
	if c := m.diagram.GetSingleConnector(key); c != nil {
		term, err := c.Terminal()
		if err != nil {
			m.logger.Debug("read-back inconsistent, keeping previous value", "item_id", key, "error", err)
			return prev
		}
		return term
	}
	if ref, ok := m.referenced[key]; ok {
		id, err := schema.ParseItemKey(ref)
		if err != nil {
			m.logger.Debug("read-back inconsistent, keeping previous value", "item_id", key, "error", err)
			return prev
		}
		return &schema.Dependency{GeneralItemID: id}
	}
	return nil
}

// PopulateOutputMessages computes the condition of every item in changedIDs.
// With shouldPopulate the results are written to the items' selector field;
// otherwise the items are left alone and only the preview is returned.
func (m *Manager) PopulateOutputMessages(items []*schema.Item, changedIDs []int64, shouldPopulate bool) map[int64]*schema.Dependency {
	out := make(map[int64]*schema.Dependency, len(changedIDs))
	for _, it := range items {
		if it == nil || !slices.Contains(changedIDs, it.ID) {
			continue
		}
		dep := m.GetOutputDependency(it)
		out[it.ID] = dep
		if shouldPopulate {
			it.SetCondition(m.selector, dep)
		}
	}
	return out
}
