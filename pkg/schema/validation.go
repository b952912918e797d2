package schema

import (
	"fmt"
	"slices"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation problem located by a JSON-pointer-like path
// such as "items[3].dependsOn.dependencies[1]". Items lists the keys of the
// items whose conditions the issue concerns; it is empty for batch-level
// problems such as an unparsable document.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
	Items    []string           `json:"items,omitempty"`
}

// ValidationResult aggregates the issues found in an item batch.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors (warnings are acceptable).
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends a batch-level error.
func (r *ValidationResult) AddError(path, code, message string) {
	r.AddItemError(path, code, message)
}

// AddWarning appends a batch-level warning.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.AddItemWarning(path, code, message)
}

// AddItemError appends an error against the conditions of items.
func (r *ValidationResult) AddItemError(path, code, message string, items ...string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError, Items: items,
	})
}

// AddItemWarning appends a warning against the conditions of items.
func (r *ValidationResult) AddItemWarning(path, code, message string, items ...string) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityWarning, Items: items,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ForItem returns the errors then the warnings concerning one item, the way
// an editor lists them next to its node.
func (r *ValidationResult) ForItem(itemKey string) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range r.Issues() {
		if slices.Contains(issue.Items, itemKey) {
			out = append(out, issue)
		}
	}
	return out
}

// BlockedItems returns the sorted keys of the items whose conditions carry an
// error and so cannot be drawn as loaded.
func (r *ValidationResult) BlockedItems() []string {
	var out []string
	for _, issue := range r.Errors {
		out = append(out, issue.Items...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ToError converts the result to an *Error if invalid, nil if valid. An
// error confined to a single item is attributed to it.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}

	blocked := r.BlockedItems()
	err := NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
			"blocked_items": blocked,
		})
	if len(blocked) == 1 {
		err = err.WithItem(blocked[0])
	}
	return err
}

// Issues returns errors followed by warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	out := make([]ValidationIssue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}
