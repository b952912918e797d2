package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// DependencyType is the fully-qualified discriminator carried in the "type" field.
type DependencyType string

const (
	DependencyTypeAction    DependencyType = "org.celstec.arlearn2.beans.dependencies.ActionDependency"
	DependencyTypeProximity DependencyType = "org.celstec.arlearn2.beans.dependencies.ProximityDependency"
	DependencyTypeAnd       DependencyType = "org.celstec.arlearn2.beans.dependencies.AndDependency"
	DependencyTypeOr        DependencyType = "org.celstec.arlearn2.beans.dependencies.OrDependency"
	DependencyTypeTime      DependencyType = "org.celstec.arlearn2.beans.dependencies.TimeDependency"
)

// ActionInRange is the reserved action name of proximity outputs.
const ActionInRange = "in range"

// Kind classifies a Dependency node. Every traversal switches on it.
type Kind int

const (
	KindEmpty Kind = iota // {}
	KindStub              // {generalItemId} only
	KindAction
	KindProximity
	KindAnd
	KindOr
	KindTime
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindStub:
		return "stub"
	case KindAction:
		return "action"
	case KindProximity:
		return "proximity"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Dependency is one node of an item's unlock condition.
// Action and Proximity are terminals; And and Or own a dynamic child list;
// Time owns exactly one child under Offset.
type Dependency struct {
	Type          DependencyType
	GeneralItemID int64
	Action        string
	Lat           float64
	Lng           float64
	Radius        float64
	Dependencies  []*Dependency
	Offset        *Dependency
	TimeDelta     int64 // milliseconds
}

// NewAction returns an Action terminal.
func NewAction(generalItemID int64, action string) *Dependency {
	return &Dependency{Type: DependencyTypeAction, GeneralItemID: generalItemID, Action: action}
}

// NewProximity returns a Proximity terminal.
func NewProximity(generalItemID int64, lat, lng, radius float64) *Dependency {
	return &Dependency{Type: DependencyTypeProximity, GeneralItemID: generalItemID, Lat: lat, Lng: lng, Radius: radius}
}

// NewAnd returns an And combinator over children.
func NewAnd(children ...*Dependency) *Dependency {
	return &Dependency{Type: DependencyTypeAnd, Dependencies: nonNil(children)}
}

// NewOr returns an Or combinator over children.
func NewOr(children ...*Dependency) *Dependency {
	return &Dependency{Type: DependencyTypeOr, Dependencies: nonNil(children)}
}

// NewTime returns a Time combinator delaying offset by delta milliseconds.
func NewTime(offset *Dependency, delta int64) *Dependency {
	if offset == nil {
		offset = &Dependency{}
	}
	return &Dependency{Type: DependencyTypeTime, Offset: offset, TimeDelta: delta}
}

// NewCombinator builds an empty combinator of the given type.
func NewCombinator(t DependencyType, delta int64) (*Dependency, error) {
	switch t {
	case DependencyTypeAnd:
		return NewAnd(), nil
	case DependencyTypeOr:
		return NewOr(), nil
	case DependencyTypeTime:
		return NewTime(nil, delta), nil
	default:
		return nil, NewErrorf(ErrCodeValidation, "%s is not a combinator type", t)
	}
}

func nonNil(children []*Dependency) []*Dependency {
	if children == nil {
		return []*Dependency{}
	}
	return children
}

// Kind reports the union member this node represents.
func (d *Dependency) Kind() Kind {
	if d == nil {
		return KindEmpty
	}
	switch d.Type {
	case DependencyTypeAction:
		return KindAction
	case DependencyTypeProximity:
		return KindProximity
	case DependencyTypeAnd:
		return KindAnd
	case DependencyTypeOr:
		return KindOr
	case DependencyTypeTime:
		return KindTime
	case "":
		if d.GeneralItemID != 0 {
			return KindStub
		}
		return KindEmpty
	default:
		return KindUnknown
	}
}

// IsTerminal reports whether d references a single (item, action) output.
func (d *Dependency) IsTerminal() bool {
	switch d.Kind() {
	case KindAction, KindProximity:
		return true
	default:
		return false
	}
}

// IsCombinator reports whether d is And, Or or Time.
func (d *Dependency) IsCombinator() bool {
	switch d.Kind() {
	case KindAnd, KindOr, KindTime:
		return true
	default:
		return false
	}
}

// IsCombinatorType reports whether t names a combinator.
func IsCombinatorType(t DependencyType) bool {
	return t == DependencyTypeAnd || t == DependencyTypeOr || t == DependencyTypeTime
}

// ActionName returns the output action a terminal references.
func (d *Dependency) ActionName() string {
	switch d.Kind() {
	case KindAction:
		return d.Action
	case KindProximity:
		return ActionInRange
	default:
		return ""
	}
}

// Children returns the child nodes of a combinator. Time yields its offset
// unless the offset has been cleared.
func (d *Dependency) Children() []*Dependency {
	switch d.Kind() {
	case KindAnd, KindOr:
		return d.Dependencies
	case KindTime:
		if d.Offset == nil || d.Offset.Kind() == KindEmpty {
			return nil
		}
		return []*Dependency{d.Offset}
	default:
		return nil
	}
}

// IndexOf locates candidate among the children of d: by identity first,
// then by structural equality. Returns -1 when absent.
func (d *Dependency) IndexOf(candidate *Dependency) int {
	children := d.Children()
	for i, c := range children {
		if c == candidate {
			return i
		}
	}
	for i, c := range children {
		if Equal(c, candidate) {
			return i
		}
	}
	return -1
}

// AppendChild adds child to a combinator. Time replaces its offset.
func (d *Dependency) AppendChild(child *Dependency) error {
	switch d.Kind() {
	case KindAnd, KindOr:
		d.Dependencies = append(d.Dependencies, child)
		return nil
	case KindTime:
		d.Offset = child
		return nil
	default:
		return NewErrorf(ErrCodeStructuralMismatch, "cannot add a child to a %s dependency", d.Kind())
	}
}

// ReplaceChild swaps old for replacement in place, keeping sibling order.
func (d *Dependency) ReplaceChild(old, replacement *Dependency) bool {
	switch d.Kind() {
	case KindAnd, KindOr:
		idx := d.IndexOf(old)
		if idx < 0 {
			return false
		}
		d.Dependencies[idx] = replacement
		return true
	case KindTime:
		if d.Offset == old || Equal(d.Offset, old) {
			d.Offset = replacement
			return true
		}
		return false
	default:
		return false
	}
}

// RemoveChild detaches child. Time clears its offset to {}; And/Or splice
// the matching index out. A missing child is not an error.
func (d *Dependency) RemoveChild(child *Dependency) bool {
	switch d.Kind() {
	case KindAnd, KindOr:
		return d.RemoveChildAt(d.IndexOf(child))
	case KindTime:
		d.Offset = &Dependency{}
		return true
	default:
		return false
	}
}

// RemoveChildAt splices the child at idx out of an And/Or.
func (d *Dependency) RemoveChildAt(idx int) bool {
	if (d.Kind() != KindAnd && d.Kind() != KindOr) || idx < 0 || idx >= len(d.Dependencies) {
		return false
	}
	d.Dependencies = slices.Delete(d.Dependencies, idx, idx+1)
	return true
}

// Terminals returns every terminal below (and including) d in depth-first order.
func (d *Dependency) Terminals() []*Dependency {
	var out []*Dependency
	var walk func(n *Dependency)
	walk = func(n *Dependency) {
		switch n.Kind() {
		case KindAction, KindProximity:
			out = append(out, n)
		case KindAnd, KindOr, KindTime:
			for _, c := range n.Children() {
				walk(c)
			}
		case KindEmpty, KindStub, KindUnknown:
		}
	}
	walk(d)
	return out
}

// Clone deep-copies d, preserving sibling order.
func (d *Dependency) Clone() *Dependency {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Dependencies != nil {
		cp.Dependencies = make([]*Dependency, len(d.Dependencies))
		for i, c := range d.Dependencies {
			cp.Dependencies[i] = c.Clone()
		}
	}
	cp.Offset = d.Offset.Clone()
	return &cp
}

func (d *Dependency) String() string {
	if d == nil {
		return "<nil>"
	}
	switch d.Kind() {
	case KindAction:
		return fmt.Sprintf("action(%d,%q)", d.GeneralItemID, d.Action)
	case KindProximity:
		return fmt.Sprintf("proximity(%d,%g,%g,%g)", d.GeneralItemID, d.Lat, d.Lng, d.Radius)
	case KindAnd, KindOr:
		s := d.Kind().String() + "("
		for i, c := range d.Dependencies {
			if i > 0 {
				s += ","
			}
			s += c.String()
		}
		return s + ")"
	case KindTime:
		return fmt.Sprintf("time(%s,%d)", d.Offset.String(), d.TimeDelta)
	case KindStub:
		return fmt.Sprintf("stub(%d)", d.GeneralItemID)
	case KindEmpty:
		return "{}"
	default:
		return fmt.Sprintf("unknown(%s)", d.Type)
	}
}

// Equal reports structural equality of two dependency trees.
func Equal(a, b *Dependency) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.GeneralItemID != b.GeneralItemID || a.Action != b.Action ||
		a.Lat != b.Lat || a.Lng != b.Lng || a.Radius != b.Radius || a.TimeDelta != b.TimeDelta {
		return false
	}
	if len(a.Dependencies) != len(b.Dependencies) {
		return false
	}
	for i := range a.Dependencies {
		if !Equal(a.Dependencies[i], b.Dependencies[i]) {
			return false
		}
	}
	return Equal(a.Offset, b.Offset)
}

// --- JSON ---

// flexID decodes a numeric id given either as a JSON number or a numeric string.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("generalItemId %q: %w", s, err)
		}
		*f = flexID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n)
	return nil
}

// dependencyJSON fixes the field order of the wire form.
type dependencyJSON struct {
	Type          DependencyType  `json:"type,omitempty"`
	GeneralItemID *flexID         `json:"generalItemId,omitempty"`
	Action        *string         `json:"action,omitempty"`
	Lat           *float64        `json:"lat,omitempty"`
	Lng           *float64        `json:"lng,omitempty"`
	Radius        *float64        `json:"radius,omitempty"`
	Dependencies  *[]*Dependency  `json:"dependencies,omitempty"`
	Offset        *Dependency     `json:"offset,omitempty"`
	TimeDelta     *int64          `json:"timeDelta,omitempty"`
}

// MarshalJSON emits only the fields that belong to the node's kind.
func (d Dependency) MarshalJSON() ([]byte, error) {
	w := dependencyJSON{Type: d.Type}
	id := flexID(d.GeneralItemID)
	switch d.Kind() {
	case KindAction:
		w.GeneralItemID = &id
		w.Action = &d.Action
	case KindProximity:
		w.GeneralItemID = &id
		w.Lat, w.Lng, w.Radius = &d.Lat, &d.Lng, &d.Radius
	case KindAnd, KindOr:
		children := nonNil(d.Dependencies)
		w.Dependencies = &children
	case KindTime:
		w.Offset = d.Offset
		if w.Offset == nil {
			w.Offset = &Dependency{}
		}
		w.TimeDelta = &d.TimeDelta
	case KindStub:
		w.GeneralItemID = &id
	case KindEmpty:
	case KindUnknown:
		if d.GeneralItemID != 0 {
			w.GeneralItemID = &id
		}
		if d.Action != "" {
			w.Action = &d.Action
		}
		if d.Dependencies != nil {
			w.Dependencies = &d.Dependencies
		}
		w.Offset = d.Offset
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes any member of the union.
func (d *Dependency) UnmarshalJSON(data []byte) error {
	var w dependencyJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Dependency{Type: w.Type, Offset: w.Offset}
	if w.GeneralItemID != nil {
		d.GeneralItemID = int64(*w.GeneralItemID)
	}
	if w.Action != nil {
		d.Action = *w.Action
	}
	if w.Lat != nil {
		d.Lat = *w.Lat
	}
	if w.Lng != nil {
		d.Lng = *w.Lng
	}
	if w.Radius != nil {
		d.Radius = *w.Radius
	}
	if w.Dependencies != nil {
		d.Dependencies = *w.Dependencies
	}
	if w.TimeDelta != nil {
		d.TimeDelta = *w.TimeDelta
	}
	switch d.Kind() {
	case KindAnd, KindOr:
		d.Dependencies = nonNil(d.Dependencies)
	case KindTime:
		if d.Offset == nil {
			d.Offset = &Dependency{}
		}
	case KindEmpty, KindStub, KindAction, KindProximity, KindUnknown:
	}
	return nil
}
