package knowledge

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("knowledge document not found")

// Standard section names.
const (
	SectionUniversity    = "university"
	SectionContacts      = "contacts"
	SectionAdmission     = "admission"
	SectionDocuments     = "documents"
	SectionFaculties     = "faculties"
	SectionTuition       = "tuition"
	SectionFields        = "fields"
	SectionAchievements  = "achievements"
	SectionInternational = "international"
	SectionSummary       = "summary"
)

// Document is a read-only set of named top-level sections.
type Document struct {
	sections map[string]Value
	order    []string
}

// NewDocument builds a document from decoded data. Section order follows the
// order of names; sections missing from names are appended in sorted order.
func NewDocument(sections map[string]interface{}, names ...string) *Document {
	doc := &Document{sections: make(map[string]Value, len(sections))}
	for _, name := range names {
		if v, ok := sections[name]; ok {
			doc.add(name, FromAny(v))
		}
	}
	rest := Map(nil)
	for name, v := range sections {
		if _, ok := doc.sections[name]; !ok {
			rest.Fields[name] = FromAny(v)
		}
	}
	for _, name := range rest.Keys() {
		doc.add(name, rest.Fields[name])
	}
	return doc
}

func (d *Document) add(name string, v Value) {
	if _, exists := d.sections[name]; !exists {
		d.order = append(d.order, name)
	}
	d.sections[name] = v
}

// Parse reads a YAML (or JSON) mapping of sections.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge document: %w", err)
	}

	node := &root
	if node.Kind == 0 {
		return &Document{sections: map[string]Value{}}, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return &Document{sections: map[string]Value{}}, nil
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("knowledge document must be a mapping, got %s", nodeKind(node))
	}

	doc := &Document{sections: make(map[string]Value, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		v, err := fromNode(node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("failed to decode section %q: %w", node.Content[i].Value, err)
		}
		doc.add(node.Content[i].Value, v)
	}
	return doc, nil
}

func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read knowledge file: %w", err)
	}
	return Parse(data)
}

func fromNode(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return fromNode(node.Alias)
	case yaml.MappingNode:
		fields := make(map[string]Value, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			v, err := fromNode(node.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			fields[node.Content[i].Value] = v
		}
		return Map(fields), nil
	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := fromNode(child)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	default:
		var out interface{}
		if err := node.Decode(&out); err != nil {
			return Value{}, err
		}
		return FromAny(out), nil
	}
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	default:
		return "node"
	}
}

func (d *Document) Section(name string) (Value, bool) {
	if d == nil {
		return Value{}, false
	}
	v, ok := d.sections[name]
	return v, ok
}

func (d *Document) Has(name string) bool {
	_, ok := d.Section(name)
	return ok
}

// Names returns section names in document order.
func (d *Document) Names() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.order...)
}

func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// Summary returns the prose overview section, if the document has one.
func (d *Document) Summary() string {
	v, ok := d.Section(SectionSummary)
	if !ok || v.Kind != KindString {
		return ""
	}
	return v.Str
}

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{7,}[0-9]$`)
	phoneKeys    = []string{"phone", "телефон", "tel"}
)

// ContactPhones collects phone numbers from the contacts section.
func (d *Document) ContactPhones() []string {
	contacts, ok := d.Section(SectionContacts)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	var phones []string
	contacts.Walk(func(path []string, leaf Value) {
		if leaf.Kind != KindString {
			return
		}
		value := strings.TrimSpace(leaf.Str)
		if !phonePattern.MatchString(value) && !underPhoneKey(path) {
			return
		}
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		phones = append(phones, value)
	})
	return phones
}

func underPhoneKey(path []string) bool {
	for _, key := range path {
		lower := strings.ToLower(key)
		for _, candidate := range phoneKeys {
			if strings.Contains(lower, candidate) {
				return true
			}
		}
	}
	return false
}
