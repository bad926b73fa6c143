package content

import (
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/contentsync/internal/foundation/errors"
)

// OperationType tags an edit operation.
type OperationType string

const (
	OpSetField           OperationType = "set-field"
	OpAddSection         OperationType = "add-section"
	OpRemoveSection      OperationType = "remove-section"
	OpReorderSections    OperationType = "reorder-sections"
	OpReplaceAllSections OperationType = "replace-all-sections"
)

// Operation is one edit. Only the fields relevant to Type are set.
//
//	set-field            SectionIndex, Field (dot path, numeric segments index lists), Value
//	add-section          Section, optional Index (insert position; append when nil)
//	remove-section       SectionIndex
//	reorder-sections     From, To
//	replace-all-sections Sections
type Operation struct {
	Type         OperationType `json:"type" yaml:"type"`
	SectionIndex int           `json:"sectionIndex,omitempty" yaml:"sectionIndex,omitempty"`
	Field        string        `json:"field,omitempty" yaml:"field,omitempty"`
	Value        any           `json:"value,omitempty" yaml:"value,omitempty"`
	Index        *int          `json:"index,omitempty" yaml:"index,omitempty"`
	Section      Section       `json:"section,omitempty" yaml:"section,omitempty"`
	From         int           `json:"from,omitempty" yaml:"from,omitempty"`
	To           int           `json:"to,omitempty" yaml:"to,omitempty"`
	Sections     []Section     `json:"sections,omitempty" yaml:"sections,omitempty"`
}

// ReplaceAll builds a replace-all-sections operation carrying a copy of sections.
func ReplaceAll(sections []Section) Operation {
	s := CloneSections(sections)
	if s == nil {
		s = []Section{}
	}
	return Operation{Type: OpReplaceAllSections, Sections: s}
}

// SetField builds a set-field operation.
func SetField(sectionIndex int, field string, value any) Operation {
	return Operation{Type: OpSetField, SectionIndex: sectionIndex, Field: field, Value: value}
}

// AddSection builds an add-section operation appending s.
func AddSection(s Section) Operation {
	return Operation{Type: OpAddSection, Section: CloneSection(s)}
}

// InsertSection builds an add-section operation inserting s at index.
func InsertSection(index int, s Section) Operation {
	return Operation{Type: OpAddSection, Section: CloneSection(s), Index: &index}
}

// RemoveSection builds a remove-section operation.
func RemoveSection(index int) Operation {
	return Operation{Type: OpRemoveSection, SectionIndex: index}
}

// MoveSection builds a reorder-sections operation.
func MoveSection(from, to int) Operation {
	return Operation{Type: OpReorderSections, From: from, To: to}
}

// Structural reports whether the operation changes the shape of the section
// list rather than a single field.
func (op Operation) Structural() bool {
	switch op.Type {
	case OpRemoveSection, OpReorderSections, OpReplaceAllSections, OpAddSection:
		return true
	default:
		return false
	}
}

// Apply returns a new section list with ops applied in order. The input is not modified.
func Apply(sections []Section, ops ...Operation) ([]Section, error) {
	out := CloneSections(sections)
	if out == nil {
		out = []Section{}
	}
	for i, op := range ops {
		var err error
		out, err = applyOne(out, op)
		if err != nil {
			return nil, errors.ValidationError("invalid edit operation").
				WithCause(err).
				WithContext("operation", i).
				WithContext("type", string(op.Type)).
				Build()
		}
	}
	return out, nil
}

func applyOne(sections []Section, op Operation) ([]Section, error) {
	switch op.Type {
	case OpSetField:
		if err := checkIndex(op.SectionIndex, len(sections)); err != nil {
			return nil, err
		}
		if op.Field == "" {
			return nil, fmt.Errorf("set-field requires a field path")
		}
		if sections[op.SectionIndex] == nil {
			sections[op.SectionIndex] = Section{}
		}
		if err := setPath(map[string]any(sections[op.SectionIndex]), strings.Split(op.Field, "."), cloneValue(op.Value)); err != nil {
			return nil, err
		}
		return sections, nil

	case OpAddSection:
		if op.Section == nil {
			return nil, fmt.Errorf("add-section requires a section")
		}
		at := len(sections)
		if op.Index != nil {
			at = *op.Index
			if at < 0 || at > len(sections) {
				return nil, fmt.Errorf("insert index %d out of range [0,%d]", at, len(sections))
			}
		}
		sections = append(sections, nil)
		copy(sections[at+1:], sections[at:])
		sections[at] = CloneSection(op.Section)
		return sections, nil

	case OpRemoveSection:
		if err := checkIndex(op.SectionIndex, len(sections)); err != nil {
			return nil, err
		}
		return append(sections[:op.SectionIndex], sections[op.SectionIndex+1:]...), nil

	case OpReorderSections:
		if err := checkIndex(op.From, len(sections)); err != nil {
			return nil, err
		}
		if err := checkIndex(op.To, len(sections)); err != nil {
			return nil, err
		}
		moved := sections[op.From]
		sections = append(sections[:op.From], sections[op.From+1:]...)
		sections = append(sections[:op.To], append([]Section{moved}, sections[op.To:]...)...)
		return sections, nil

	case OpReplaceAllSections:
		if op.Sections == nil {
			return []Section{}, nil
		}
		return CloneSections(op.Sections), nil

	default:
		return nil, fmt.Errorf("unknown operation type %q", op.Type)
	}
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("section index %d out of range [0,%d)", i, n)
	}
	return nil
}

// setPath assigns value at a dot path, creating intermediate maps as needed.
func setPath(m map[string]any, parts []string, value any) error {
	head := parts[0]
	if head == "" {
		return fmt.Errorf("empty path segment")
	}
	if len(parts) == 1 {
		m[head] = value
		return nil
	}
	next, ok := m[head]
	if !ok || next == nil {
		child := map[string]any{}
		m[head] = child
		return setPath(child, parts[1:], value)
	}
	return setIn(next, parts[1:], value, func(v any) { m[head] = v })
}

func setIn(container any, parts []string, value any, replace func(any)) error {
	switch c := container.(type) {
	case map[string]any:
		return setPath(c, parts, value)
	case Section:
		return setPath(map[string]any(c), parts, value)
	case []any:
		idx, err := strconv.Atoi(parts[0])
		if err != nil {
			return fmt.Errorf("list index %q is not a number", parts[0])
		}
		if idx < 0 || idx > len(c) {
			return fmt.Errorf("list index %d out of range", idx)
		}
		if idx == len(c) {
			c = append(c, nil)
			replace(c)
		}
		if len(parts) == 1 {
			c[idx] = value
			return nil
		}
		if c[idx] == nil {
			c[idx] = map[string]any{}
		}
		return setIn(c[idx], parts[1:], value, func(v any) { c[idx] = v })
	default:
		return fmt.Errorf("cannot descend into %T", container)
	}
}
