package schema

import "strconv"

// Selector names the item field holding the condition being edited.
type Selector string

const (
	SelectorDependsOn   Selector = "dependsOn"
	SelectorDisappearOn Selector = "disappearOn"
)

// Item is a content element of a game that can carry unlock conditions.
// The host application owns it; the editor only touches positions and the
// selected condition field.
type Item struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name,omitempty"`
	Type        string      `json:"type,omitempty"`
	AuthoringX  float64     `json:"authoringX"`
	AuthoringY  float64     `json:"authoringY"`
	Lat         *float64    `json:"lat,omitempty"`
	Lng         *float64    `json:"lng,omitempty"`
	Actions     []string    `json:"actions,omitempty"` // custom output actions exposed by the item
	DependsOn   *Dependency `json:"dependsOn,omitempty"`
	DisappearOn *Dependency `json:"disappearOn,omitempty"`
}

// Condition returns the dependency stored under sel.
func (it *Item) Condition(sel Selector) *Dependency {
	if sel == SelectorDisappearOn {
		return it.DisappearOn
	}
	return it.DependsOn
}

// SetCondition replaces the dependency stored under sel.
func (it *Item) SetCondition(sel Selector, dep *Dependency) {
	if sel == SelectorDisappearOn {
		it.DisappearOn = dep
		return
	}
	it.DependsOn = dep
}

// ProximityCapable reports whether the item has a location and therefore
// exposes the "in range" output.
func (it *Item) ProximityCapable() bool {
	return it.Lat != nil && it.Lng != nil
}

// Key returns the string form of the item id used by diagram shapes and ports.
func (it *Item) Key() string {
	return ItemKey(it.ID)
}

// ItemKey formats an item id the way shapes and ports store it.
func ItemKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseItemKey is the inverse of ItemKey.
func ParseItemKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, NewErrorf(ErrCodeValidation, "invalid item key %q", key).WithCause(err)
	}
	return id, nil
}

// FindItem returns the item with id, or nil.
func FindItem(items []*Item, id int64) *Item {
	for _, it := range items {
		if it != nil && it.ID == id {
			return it
		}
	}
	return nil
}
