package delta

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/beevik/etree"
)

// Source supplies the raw delta set declared by a scenario. Load returns
// ErrNotFound when the scenario declares none.
type Source interface {
	Load(ctx context.Context, scenarioName string) (*Set, error)
}

// FileSource reads delta sets from <Dir>/<scenario>.xml files.
type FileSource struct {
	Dir string
}

// Load implements Source.
func (s *FileSource) Load(_ context.Context, scenarioName string) (*Set, error) {
	path := filepath.Join(s.Dir, scenarioName+".xml")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("scenario %q: %w", scenarioName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open delta file: %w", err)
	}
	defer f.Close()

	set, err := ParseSet(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	set.Scenario = scenarioName
	return set, nil
}

// ParseSet reads one scenario's delta document:
//
//	<deltas>
//	  <edit file="config.xml" path="./Strings/Value[@name='scenarioName']" value="corn-20"/>
//	  <edit file="energy.xml" path="//share-weight" op="multiply" value="1.2"/>
//	  <insert file="config.xml" path="./ScenarioComponents">
//	    <Value name="corn-policy">../local-xml/corn-policy.xml</Value>
//	  </insert>
//	  <var name="policyYear" value="2030"/>
//	</deltas>
func ParseSet(r io.Reader) (*Set, error) {
	tree := etree.NewDocument()
	if _, err := tree.ReadFrom(r); err != nil {
		return nil, configErrorf("read delta document: %v", err)
	}
	root := tree.Root()
	if root == nil {
		return nil, configErrorf("delta document has no root element")
	}
	if root.Tag != "deltas" {
		return nil, configErrorf("delta document root is <%s>, want <deltas>", root.Tag)
	}

	set := &Set{}
	for _, el := range root.ChildElements() {
		switch el.Tag {
		case "edit":
			edit, err := parseEditElement(el)
			if err != nil {
				return nil, err
			}
			set.Edits = append(set.Edits, edit)
		case "insert":
			ins, err := parseInsertElement(el)
			if err != nil {
				return nil, err
			}
			set.Inserts = append(set.Inserts, ins)
		case "var":
			name := el.SelectAttrValue("name", "")
			if name == "" {
				return nil, configErrorf("var element missing required name attribute")
			}
			set.Vars = append(set.Vars, Var{Name: name, Value: el.SelectAttrValue("value", "")})
		default:
			return nil, configErrorf("unknown delta element <%s>", el.Tag)
		}
	}
	return set, nil
}

func parseEditElement(el *etree.Element) (Edit, error) {
	file := el.SelectAttrValue("file", "")
	path := el.SelectAttrValue("path", "")
	if file == "" || path == "" {
		return Edit{}, configErrorf("edit element missing required file or path attribute")
	}

	op, err := ParseOp(el.SelectAttrValue("op", ""))
	if err != nil {
		return Edit{}, configErrorf("edit %s %s: %v", file, path, err)
	}

	value := el.SelectAttrValue("value", "")
	if op != OpSet {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return Edit{}, configErrorf("edit %s %s: op %s needs a numeric value, got %q", file, path, op, value)
		}
		if isAttributePath(path) {
			return Edit{}, configErrorf("edit %s %s: op %s cannot target an attribute", file, path, op)
		}
	}

	return Edit{File: file, Path: path, Op: op, Value: value}, nil
}

func parseInsertElement(el *etree.Element) (Insert, error) {
	file := el.SelectAttrValue("file", "")
	path := el.SelectAttrValue("path", "")
	if file == "" || path == "" {
		return Insert{}, configErrorf("insert element missing required file or path attribute")
	}

	children := el.ChildElements()
	if len(children) != 1 {
		return Insert{}, configErrorf("insert %s %s: want exactly one payload element, got %d", file, path, len(children))
	}

	payloadDoc := etree.NewDocument()
	payloadDoc.SetRoot(children[0].Copy())
	payload, err := payloadDoc.WriteToString()
	if err != nil {
		return Insert{}, configErrorf("insert %s %s: serialize payload: %v", file, path, err)
	}

	return Insert{File: file, Path: path, Payload: payload}, nil
}
