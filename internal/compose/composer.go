// Package compose folds ordered child results into a parent-level result.
// Composition is pure and deterministic: identical ordered inputs always
// yield identical output, and child ordering is preserved exactly. Later
// results may semantically depend on earlier ones having occurred, so
// composing out of order is a correctness defect, not a style issue.
package compose

import "strings"

// Separator joins ordered child results in the default composition.
const Separator = ";"

// Func composes ordered child results for a parent task. Implementations
// must be pure and must preserve the given child order.
type Func func(parentDescription string, orderedChildResults []string) string

// Join is the default composition: ordered child results joined with the
// separator. A leaf (no children) composes to itself and never reaches here.
func Join(_ string, orderedChildResults []string) string {
	return strings.Join(orderedChildResults, Separator)
}
