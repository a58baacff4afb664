package delta

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// attrPattern splits a path of the form elements/@attr into the element
// selector and the attribute name.
var attrPattern = regexp.MustCompile(`^(.*)/@([-\w]+)$`)

func isAttributePath(path string) bool {
	return attrPattern.MatchString(path)
}

// ApplyResult reports what an edit application touched.
type ApplyResult struct {
	Changed   int    // elements or attributes rewritten
	Unmatched []Edit // edits whose path selected nothing
}

// ApplyToFile reads the XML document at path, applies the edits and inserts
// addressed to it, and writes it back in place when anything changed.
func ApplyToFile(path string, edits []Edit, inserts []Insert) (*ApplyResult, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, configErrorf("read %s: %v", path, err)
	}

	res, err := ApplyEdits(doc, edits, inserts)
	if err != nil {
		return nil, err
	}
	if res.Changed > 0 {
		if err := doc.WriteToFile(path); err != nil {
			return nil, configErrorf("write %s: %v", path, err)
		}
	}
	return res, nil
}

// ApplyEdits applies edits then inserts to one parsed document. An edit
// whose path matches nothing is recorded in the result, not an error; an
// insert whose path matches nothing is an error, since the payload would
// be silently lost.
func ApplyEdits(doc *etree.Document, edits []Edit, inserts []Insert) (*ApplyResult, error) {
	res := &ApplyResult{}

	for _, e := range edits {
		n, err := applyEdit(doc, e)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			res.Unmatched = append(res.Unmatched, e)
			continue
		}
		res.Changed += n
	}

	for _, ins := range inserts {
		payloadDoc := etree.NewDocument()
		if err := payloadDoc.ReadFromString(ins.Payload); err != nil {
			return nil, configErrorf("insert %s %s: parse payload: %v", ins.File, ins.Path, err)
		}
		payload := payloadDoc.Root()
		if payload == nil {
			return nil, configErrorf("insert %s %s: empty payload", ins.File, ins.Path)
		}

		parents := findTargets(doc, ins.Path)
		if len(parents) == 0 {
			return nil, configErrorf("insert %s %s: no element matches path", ins.File, ins.Path)
		}
		for _, parent := range parents {
			parent.AddChild(payload.Copy())
			res.Changed++
		}
	}

	return res, nil
}

func applyEdit(doc *etree.Document, e Edit) (int, error) {
	path := e.Path
	attr := ""
	if m := attrPattern.FindStringSubmatch(path); m != nil {
		path, attr = m[1], m[2]
	}

	targets := findTargets(doc, path)
	if len(targets) == 0 {
		return 0, nil
	}

	if attr != "" {
		if e.Op != OpSet {
			return 0, configErrorf("edit %s %s: op %s cannot target an attribute", e.File, e.Path, e.Op)
		}
		for _, el := range targets {
			el.CreateAttr(attr, e.Value)
		}
		return len(targets), nil
	}

	switch e.Op {
	case OpSet, "":
		for _, el := range targets {
			el.SetText(e.Value)
		}
	case OpMultiply, OpAdd:
		operand, err := strconv.ParseFloat(e.Value, 64)
		if err != nil {
			return 0, configErrorf("edit %s %s: op %s needs a numeric value, got %q", e.File, e.Path, e.Op, e.Value)
		}
		for _, el := range targets {
			cur, err := strconv.ParseFloat(strings.TrimSpace(el.Text()), 64)
			if err != nil {
				return 0, configErrorf("edit %s %s: element text %q is not numeric", e.File, e.Path, el.Text())
			}
			if e.Op == OpMultiply {
				cur *= operand
			} else {
				cur += operand
			}
			el.SetText(strconv.FormatFloat(cur, 'g', -1, 64))
		}
	default:
		return 0, configErrorf("edit %s %s: unknown op %q", e.File, e.Path, e.Op)
	}
	return len(targets), nil
}

// findTargets evaluates a path against the document. Absolute paths (and
// the // descendant form) run from the document, relative paths from the
// root element, matching how delta files address their targets.
func findTargets(doc *etree.Document, path string) []*etree.Element {
	if strings.HasPrefix(path, "/") {
		return doc.FindElements(path)
	}
	root := doc.Root()
	if root == nil {
		return nil
	}
	return root.FindElements(path)
}
