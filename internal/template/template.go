package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Direction determines the sign the normalizer applies to the captured amount.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Fixed-value extraction rules use this prefix instead of a regex, e.g.
// "fixed:Direct Deposit" for deposit templates with no merchant in the body.
const fixedPrefix = "fixed:"

// Template is the ordered rule set for recognizing and extracting fields from
// one email format. Templates are immutable once referenced by a persisted
// transaction: behavior changes ship as a new version with a new declaration.
type Template struct {
	ID        string    `yaml:"id"`
	Version   int       `yaml:"version"`
	Direction Direction `yaml:"direction"`
	Currency  string    `yaml:"currency"`

	// Match rules. Empty rules always pass; a non-empty rule that fails
	// moves the matcher to the next template.
	SenderContains string `yaml:"sender_contains"`
	SenderDomain   string `yaml:"sender_domain"`
	SubjectPattern string `yaml:"subject_pattern"`

	// Field extraction rules: field name -> regex with a capture group, or a
	// "fixed:" literal. Required capture set: amount plus account or vendor.
	Fields map[string]string `yaml:"fields"`

	// SubjectVendor extracts the vendor from the subject line when the body
	// pattern finds nothing.
	SubjectVendor string `yaml:"subject_vendor"`

	subjectRe       *regexp.Regexp
	subjectVendorRe *regexp.Regexp
	fieldRes        map[string]*regexp.Regexp
	fixedFields     map[string]string
}

// compile builds the case-insensitive, dot-matches-newline matchers the
// original alert formats require.
func (t *Template) compile() error {
	if t.ID == "" {
		return fmt.Errorf("template has no id")
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if t.Direction == "" {
		t.Direction = DirectionDebit
	}
	if t.Direction != DirectionDebit && t.Direction != DirectionCredit {
		return fmt.Errorf("template %s: unknown direction %q", t.ID, t.Direction)
	}

	compileOne := func(expr string) (*regexp.Regexp, error) {
		return regexp.Compile("(?is)" + expr)
	}

	var err error
	if t.SubjectPattern != "" {
		if t.subjectRe, err = compileOne(t.SubjectPattern); err != nil {
			return fmt.Errorf("template %s: subject_pattern: %w", t.ID, err)
		}
	}
	if t.SubjectVendor != "" {
		if t.subjectVendorRe, err = compileOne(t.SubjectVendor); err != nil {
			return fmt.Errorf("template %s: subject_vendor: %w", t.ID, err)
		}
	}

	t.fieldRes = make(map[string]*regexp.Regexp, len(t.Fields))
	t.fixedFields = make(map[string]string)
	for name, expr := range t.Fields {
		if expr == "" {
			continue
		}
		if strings.HasPrefix(expr, fixedPrefix) {
			t.fixedFields[name] = strings.TrimPrefix(expr, fixedPrefix)
			continue
		}
		re, err := compileOne(expr)
		if err != nil {
			return fmt.Errorf("template %s: field %s: %w", t.ID, name, err)
		}
		t.fieldRes[name] = re
	}
	return nil
}

// Store holds the compiled templates in priority order. Declaration order is
// the tie-break: when two templates could match, the earlier one wins, so the
// more specific template must precede the more general one.
type Store struct {
	templates []*Template
	byID      map[string]*Template
}

// NewStore compiles an ordered template list.
func NewStore(templates []*Template) (*Store, error) {
	s := &Store{byID: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if err := t.compile(); err != nil {
			return nil, fmt.Errorf("NewStore: %w", err)
		}
		if _, dup := s.byID[t.ID]; dup {
			return nil, fmt.Errorf("NewStore: duplicate template id %q", t.ID)
		}
		s.templates = append(s.templates, t)
		s.byID[t.ID] = t
	}
	return s, nil
}

// LoadStore builds the store from the built-in templates plus, when path is
// non-empty, templates appended from a YAML file.
func LoadStore(path string) (*Store, error) {
	templates := Builtin()
	if path != "" {
		extra, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		templates = append(templates, extra...)
	}
	return NewStore(templates)
}

// All returns the templates in priority order.
func (s *Store) All() []*Template { return s.templates }

// Get looks up a template by id.
func (s *Store) Get(id string) (*Template, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// Len returns the number of templates.
func (s *Store) Len() int { return len(s.templates) }

func loadFile(path string) ([]*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loadFile: reading %s: %w", path, err)
	}
	var doc struct {
		Templates []*Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("loadFile: decoding %s: %w", path, err)
	}
	return doc.Templates, nil
}
