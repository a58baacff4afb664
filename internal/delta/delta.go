// Package delta loads per-scenario configuration deltas, folds ancestor
// chains into concrete per-scenario configurations, and applies the
// resulting XML edits to input documents.
package delta

import "fmt"

// Op is an edit operation applied to the text of the selected elements.
type Op string

const (
	// OpSet replaces the element text or attribute value outright. The default.
	OpSet Op = "set"
	// OpMultiply multiplies the current numeric element text by the value.
	OpMultiply Op = "multiply"
	// OpAdd adds the value to the current numeric element text.
	OpAdd Op = "add"
)

// ParseOp maps a delta-file op attribute to an Op. An empty string selects
// OpSet.
func ParseOp(s string) (Op, error) {
	switch Op(s) {
	case "":
		return OpSet, nil
	case OpSet, OpMultiply, OpAdd:
		return Op(s), nil
	default:
		return "", fmt.Errorf("unknown edit op %q (want set, multiply, or add)", s)
	}
}

// Edit addresses elements of one input file by path and rewrites their text,
// or an attribute when the path ends in /@attr. Identity for
// override-by-key folding is (File, Path).
type Edit struct {
	File  string `json:"file"`
	Path  string `json:"path"`
	Op    Op     `json:"op"`
	Value string `json:"value"`
}

// Key returns the override identity of the edit.
func (e Edit) Key() string { return e.File + "|" + e.Path }

// Insert appends a payload element under the elements selected by Path.
// Payload holds the serialized XML of the element to insert. Identity for
// override-by-key folding is (File, Path).
type Insert struct {
	File    string `json:"file"`
	Path    string `json:"path"`
	Payload string `json:"payload"`
}

// Key returns the override identity of the insert.
func (i Insert) Key() string { return i.File + "|" + i.Path }

// Var is a substitution variable made available to step-action argument
// interpolation. Identity for folding is Name.
type Var struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Set is the raw delta collection declared by a single scenario, in
// document order, before any ancestor folding.
type Set struct {
	Scenario string
	Edits    []Edit
	Inserts  []Insert
	Vars     []Var
}
