// Package messages defines the translatable message model and the reactive
// in-memory store that owns the authoritative message list of a project.
package messages

import (
	"maps"
	"slices"
	"strings"
)

type ElementType string

const (
	ElementText              ElementType = "Text"
	ElementVariableReference ElementType = "VariableReference"
)

// Element is one span of a pattern: literal text or a placeholder.
type Element struct {
	Type  ElementType `json:"type"`
	Value string      `json:"value,omitempty"`
	Name  string      `json:"name,omitempty"`
}

func Text(value string) Element {
	return Element{Type: ElementText, Value: value}
}

func VariableReference(name string) Element {
	return Element{Type: ElementVariableReference, Name: name}
}

// Pattern is the ordered content of a variant.
type Pattern []Element

// String renders p with placeholders as {name}.
func (p Pattern) String() string {
	var b strings.Builder
	for _, el := range p {
		switch el.Type {
		case ElementVariableReference:
			b.WriteString("{" + el.Name + "}")
		default:
			b.WriteString(el.Value)
		}
	}
	return b.String()
}

// IsEmpty reports whether p renders to nothing but whitespace.
func (p Pattern) IsEmpty() bool {
	return strings.TrimSpace(p.String()) == ""
}

// ParsePattern splits s into text and {name} placeholder elements.
// Unbalanced braces are kept as text.
func ParsePattern(s string) Pattern {
	var out Pattern
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			out = append(out, Text(text.String()))
			text.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			end := strings.IndexByte(s[i+1:], '}')
			if end > 0 {
				name := strings.TrimSpace(s[i+1 : i+1+end])
				if name != "" && !strings.ContainsAny(name, "{ ") {
					flush()
					out = append(out, VariableReference(name))
					i += end + 1
					continue
				}
			}
		}
		text.WriteByte(s[i])
	}
	flush()
	if out == nil {
		out = Pattern{}
	}
	return out
}

// Expression describes a selector the variants of a message match on.
type Expression struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Variant is the pattern of a message for one language tag and match.
type Variant struct {
	LanguageTag string            `json:"languageTag"`
	Match       map[string]string `json:"match"`
	Pattern     Pattern           `json:"pattern"`
}

// Message is identified by ID and holds one variant per language/match.
type Message struct {
	ID        string       `json:"id"`
	Selectors []Expression `json:"selectors"`
	Variants  []Variant    `json:"variants"`
}

// Clone deep-copies m, preserving nil versus empty slices and maps.
func (m Message) Clone() Message {
	out := Message{
		ID:        m.ID,
		Selectors: slices.Clone(m.Selectors),
	}
	if m.Variants != nil {
		out.Variants = make([]Variant, len(m.Variants))
		for i, v := range m.Variants {
			out.Variants[i] = Variant{
				LanguageTag: v.LanguageTag,
				Match:       maps.Clone(v.Match),
				Pattern:     slices.Clone(v.Pattern),
			}
		}
	}
	return out
}

// Variant returns the variant for languageTag with an empty match.
func (m Message) Variant(languageTag string) (Variant, bool) {
	for _, v := range m.Variants {
		if v.LanguageTag == languageTag && len(v.Match) == 0 {
			return v, true
		}
	}
	return Variant{}, false
}

// HasLanguage reports whether any variant targets languageTag.
func (m Message) HasLanguage(languageTag string) bool {
	for _, v := range m.Variants {
		if v.LanguageTag == languageTag {
			return true
		}
	}
	return false
}

// CloneAll deep-copies a message list.
func CloneAll(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
