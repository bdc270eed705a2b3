package domain

// StreamKey addresses one version of a stream schema.
type StreamKey struct {
	Domain   string   `json:"domain" validate:"required"`
	Username Username `json:"username" validate:"required"`
	Name     string   `json:"name" validate:"required"`
	Version  string   `json:"version" validate:"required"`
}

func (k StreamKey) String() string {
	return k.Domain + "/" + k.Username + "/" + k.Name + "/" + k.Version
}

type FieldType string

const (
	FieldTextbox  FieldType = "textbox"
	FieldLink     FieldType = "link"
	FieldCheckbox FieldType = "checkbox"
	FieldList     FieldType = "list"
	FieldOpenList FieldType = "openlist"
	FieldValue    FieldType = "value"
)

type ValueType string

const (
	ValueUpDown      ValueType = "updown"
	ValueTextbox     ValueType = "textbox"
	ValueButton      ValueType = "button"
	ValueLinear      ValueType = "linear"
	ValueLogarithmic ValueType = "logarithmic"
	ValueStars       ValueType = "stars"
	ValueList        ValueType = "list"
)

// Who may see a value field.
type Visibility string

const (
	VisibleEveryone Visibility = "everyone"
	VisibleOwner    Visibility = "owner"
)

type SelectQty struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// FieldDefinition describes one field of a stream. Index matches Field.Index.
type FieldDefinition struct {
	Index           int        `json:"display_order"`
	Type            FieldType  `json:"type"`
	Label           string     `json:"label"`
	Required        bool       `json:"required"`
	MaxSize         int        `json:"max_size,omitempty"`
	Regex           string     `json:"regex,omitempty"`
	RegexError      string     `json:"regex_error,omitempty"`
	ValueType       ValueType  `json:"value_type,omitempty"`
	ValueMin        *float64   `json:"value_min,omitempty"`
	ValueMax        *float64   `json:"value_max,omitempty"`
	Who             Visibility `json:"who_can_take,omitempty"`
	SelectQty       SelectQty  `json:"select_qty"`
	ListItems       []string   `json:"list,omitempty"`
	CheckboxDefault bool       `json:"checkbox_default,omitempty"`
}

type Stream struct {
	Key    StreamKey         `json:"key"`
	Kind   string            `json:"kind,omitempty"`
	Fields []FieldDefinition `json:"fields"`
}

// Definition returns the field definition for a display index.
func (s *Stream) Definition(index int) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Index == index {
			return f, true
		}
	}
	return FieldDefinition{}, false
}
