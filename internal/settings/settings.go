// Package settings loads, validates and renders the project settings file:
// source language, language tags, module identifiers, validation rule levels
// and the per-module settings map.
package settings

import (
	"encoding/json"
	"maps"
	"slices"
)

// DefaultPath is the conventional location of the settings file.
const DefaultPath = "project.polyglot.json"

// Level is the severity assigned to a validation rule.
type Level string

const (
	LevelOff     Level = "off"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelOff, LevelWarning, LevelError:
		return true
	}
	return false
}

// Rank orders levels for threshold comparisons (off < warning < error).
func (l Level) Rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelError:
		return 2
	}
	return 0
}

// Settings is the project configuration.
type Settings struct {
	Schema               string                    `json:"$schema,omitempty"`
	SourceLanguageTag    string                    `json:"sourceLanguageTag"`
	LanguageTags         []string                  `json:"languageTags"`
	Modules              []string                  `json:"modules"`
	ValidationRuleLevels map[string]Level          `json:"validationRuleLevels,omitempty"`
	ModuleSettings       map[string]map[string]any `json:"settings,omitempty"`
}

// ForModule returns the settings slice of the module with the given id.
func (s Settings) ForModule(id string) map[string]any {
	if s.ModuleSettings == nil {
		return nil
	}
	return s.ModuleSettings[id]
}

// LevelFor returns the configured level of ruleID, or fallback when unset.
func (s Settings) LevelFor(ruleID string, fallback Level) Level {
	if lvl, ok := s.ValidationRuleLevels[ruleID]; ok {
		return lvl
	}
	return fallback
}

// Clone copies the slices and maps of s so the copy can be mutated freely.
// Values inside a module's settings object are shared.
func (s Settings) Clone() Settings {
	out := s
	out.LanguageTags = slices.Clone(s.LanguageTags)
	out.Modules = slices.Clone(s.Modules)
	out.ValidationRuleLevels = maps.Clone(s.ValidationRuleLevels)
	if s.ModuleSettings != nil {
		out.ModuleSettings = make(map[string]map[string]any, len(s.ModuleSettings))
		for id, v := range s.ModuleSettings {
			out.ModuleSettings[id] = maps.Clone(v)
		}
	}
	return out
}

// Marshal renders s in the canonical on-disk form. Nil lists are written
// as empty arrays so the output always loads again.
func Marshal(s Settings) ([]byte, error) {
	if s.LanguageTags == nil {
		s.LanguageTags = []string{}
	}
	if s.Modules == nil {
		s.Modules = []string{}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
