package entity

// FieldSpec describes one piece of information to pull out of search text.
// Pattern, when set, is a regular expression the value must match.
type FieldSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// ExtractionSpec is the ordered set of fields a run extracts.
type ExtractionSpec struct {
	Fields []FieldSpec `json:"fields" yaml:"fields"`
}

// Names returns the field names in declaration order.
func (s ExtractionSpec) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// ExtractedFields maps a field name to its value. A nil value means the
// field could not be located.
type ExtractedFields map[string]*string

// NullFields returns an ExtractedFields with every field of spec set to nil.
func NullFields(spec ExtractionSpec) ExtractedFields {
	out := make(ExtractedFields, len(spec.Fields))
	for _, f := range spec.Fields {
		out[f.Name] = nil
	}
	return out
}

// StringPtr is a small helper for building ExtractedFields.
func StringPtr(s string) *string {
	return &s
}
