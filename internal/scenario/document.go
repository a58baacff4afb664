package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Definition is one raw <scenario> declaration as it appears in the
// document, before graph resolution.
type Definition struct {
	Name        string
	Parent      string
	Subdir      string
	Type        Type
	Active      bool
	Generator   string
	Description string
}

// Document is a parsed scenario declaration file. It retains the full XML
// tree, so WriteTo reproduces the input including attributes and elements
// this package does not interpret.
type Document struct {
	defs []Definition
	tree *etree.Document
}

// Parse reads a scenario declaration document of the form
//
//	<scenarios>
//	  <scenario name="ref" type="reference"/>
//	  <scenario name="base" parent="ref" type="baseline"/>
//	</scenarios>
//
// Unknown attributes and child elements are preserved for round-trips but
// otherwise ignored.
func Parse(r io.Reader) (*Document, error) {
	tree := etree.NewDocument()
	if _, err := tree.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read scenario document: %w", err)
	}
	root := tree.Root()
	if root == nil {
		return nil, errors.New("scenario document has no root element")
	}
	if root.Tag != "scenarios" {
		return nil, fmt.Errorf("scenario document root is <%s>, want <scenarios>", root.Tag)
	}

	var defs []Definition
	for _, el := range root.SelectElements("scenario") {
		def, err := parseScenarioElement(el)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return &Document{defs: defs, tree: tree}, nil
}

// ParseFile parses the scenario declaration document at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario document: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func parseScenarioElement(el *etree.Element) (Definition, error) {
	name := el.SelectAttrValue("name", "")
	if name == "" {
		return Definition{}, errors.New("scenario element missing required name attribute")
	}

	typ, err := ParseType(el.SelectAttrValue("type", string(TypeDerived)))
	if err != nil {
		return Definition{}, fmt.Errorf("scenario %q: %w", name, err)
	}

	active := true
	if raw := el.SelectAttrValue("active", ""); raw != "" {
		active, err = strconv.ParseBool(raw)
		if err != nil {
			return Definition{}, fmt.Errorf("scenario %q: invalid active attribute %q", name, raw)
		}
	}

	def := Definition{
		Name:   name,
		Parent: el.SelectAttrValue("parent", ""),
		Subdir: el.SelectAttrValue("subdir", ""),
		Type:   typ,
		Active: active,
	}
	if gen := el.SelectElement("generator"); gen != nil {
		def.Generator = strings.TrimSpace(gen.Text())
	}
	if desc := el.SelectElement("description"); desc != nil {
		def.Description = strings.TrimSpace(desc.Text())
	}
	return def, nil
}

// Definitions returns the declarations in document order.
func (d *Document) Definitions() []Definition {
	out := make([]Definition, len(d.defs))
	copy(out, d.defs)
	return out
}

// WriteTo writes the document back out, preserving content this package
// does not interpret.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	return d.tree.WriteTo(w)
}
