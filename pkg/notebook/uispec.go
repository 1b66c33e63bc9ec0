package notebook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// hridPrefix marks fields that hold a record's human-readable identifier.
const hridPrefix = "hrid"

// UISpec is the declarative form layout of a notebook: viewsets (forms) are
// made of views, views list fields, fields carry their semantic type.
type UISpec struct {
	Fields       map[string]FieldSpec   `json:"fields"`
	FViews       map[string]ViewSpec    `json:"fviews"`
	Viewsets     map[string]ViewsetSpec `json:"viewsets"`
	VisibleTypes []string               `json:"visible_types,omitempty"`
}

// FieldSpec is one field definition.
type FieldSpec struct {
	ComponentNamespace string         `json:"component-namespace,omitempty"`
	ComponentName      string         `json:"component-name,omitempty"`
	TypeReturned       string         `json:"type-returned"`
	ComponentParams    map[string]any `json:"component-parameters,omitempty"`
}

// ViewSpec is one page (section) of a form.
type ViewSpec struct {
	Label  string   `json:"label,omitempty"`
	Fields []string `json:"fields"`
}

// ViewsetSpec is one form.
type ViewsetSpec struct {
	Label     string   `json:"label,omitempty"`
	Views     []string `json:"views"`
	HRIDField string   `json:"hridField,omitempty"`
}

// ParseUISpec decodes a UI spec document.
func ParseUISpec(data []byte) (*UISpec, error) {
	var spec UISpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse UI specification: %w", err)
	}
	return &spec, nil
}

// FieldsForForm returns the form's fields in view order, then field order
// within each view. Fields listed by a view but missing from the field
// table are returned with an empty type.
func (s *UISpec) FieldsForForm(form string) ([]FieldDescriptor, error) {
	viewset, ok := s.Viewsets[form]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, form)
	}

	var fields []FieldDescriptor
	seen := make(map[string]bool)
	for _, viewID := range viewset.Views {
		for _, fieldID := range s.FViews[viewID].Fields {
			if seen[fieldID] {
				continue
			}
			seen[fieldID] = true
			spec := s.Fields[fieldID]
			fields = append(fields, FieldDescriptor{
				ID:     fieldID,
				Type:   SemanticType(spec.TypeReturned),
				Widget: spec.ComponentName,
				View:   viewID,
			})
		}
	}
	return fields, nil
}

// HRIDField returns the field holding the form's HRID: the viewset's
// configured hridField, else the first field whose name starts with "hrid",
// else the first templated string field, else "".
func (s *UISpec) HRIDField(form string) string {
	viewset, ok := s.Viewsets[form]
	if !ok {
		return ""
	}
	if viewset.HRIDField != "" {
		return viewset.HRIDField
	}
	fields, _ := s.FieldsForForm(form)
	for _, f := range fields {
		if strings.HasPrefix(f.ID, hridPrefix) {
			return f.ID
		}
	}
	for _, f := range fields {
		if f.Widget == WidgetTemplatedString {
			return f.ID
		}
	}
	return ""
}

// Forms returns the form names. Visible types come first in their declared
// order, the rest follow sorted.
func (s *UISpec) Forms() []string {
	var forms []string
	seen := make(map[string]bool)
	for _, form := range s.VisibleTypes {
		if _, ok := s.Viewsets[form]; ok && !seen[form] {
			forms = append(forms, form)
			seen[form] = true
		}
	}
	var rest []string
	for form := range s.Viewsets {
		if !seen[form] {
			rest = append(rest, form)
		}
	}
	sort.Strings(rest)
	return append(forms, rest...)
}

// ResolveHRID returns the record's human-readable identifier: the value of
// hridField if set and non-empty, else the first non-empty data value
// whose key starts with "hrid" (keys compared in sorted order), else the
// record id.
func ResolveHRID(rec *Record, hridField string) string {
	if hridField != "" {
		if v := hridString(rec.Data[hridField]); v != "" {
			return v
		}
	}

	keys := make([]string, 0, len(rec.Data))
	for k := range rec.Data {
		if strings.HasPrefix(k, hridPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := hridString(rec.Data[k]); v != "" {
			return v
		}
	}
	return rec.RecordID
}

func hridString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
