package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"polyglot/internal/ctxlog"
	"polyglot/internal/storage"
)

// Load reads and validates the settings file at path. It never writes.
func Load(ctx context.Context, fs storage.Storage, path string) (Settings, error) {
	logger := ctxlog.FromContext(ctx)

	data, err := fs.ReadFile(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return Settings{}, &Error{Kind: KindNotFound, Path: path, Err: err}
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings %s: read: %w", path, err)
	}

	s, err := Parse(data)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.Path = path
		}
		return Settings{}, err
	}
	logger.Debug("settings loaded", "path", path, "languageTags", s.LanguageTags, "modules", len(s.Modules))
	return s, nil
}

type rawSettings struct {
	Schema               *string                   `json:"$schema"`
	SourceLanguageTag    *string                   `json:"sourceLanguageTag"`
	LanguageTags         *[]string                 `json:"languageTags"`
	Modules              *[]string                 `json:"modules"`
	ValidationRuleLevels map[string]Level          `json:"validationRuleLevels"`
	ModuleSettings       map[string]map[string]any `json:"settings"`
}

// Parse decodes and validates settings file content. Malformed JSON always
// yields KindSyntax; well-formed content that does not fit the schema
// yields KindInvalid.
func Parse(data []byte) (Settings, error) {
	if !json.Valid(data) {
		return Settings{}, &Error{Kind: KindSyntax, Err: syntaxCause(data)}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var raw rawSettings
	if err := dec.Decode(&raw); err != nil {
		return Settings{}, &Error{Kind: KindInvalid, Issues: []string{err.Error()}}
	}

	var issues []string
	var s Settings
	if raw.Schema != nil {
		s.Schema = *raw.Schema
	}
	if raw.SourceLanguageTag == nil {
		issues = append(issues, "sourceLanguageTag is required")
	} else {
		s.SourceLanguageTag = *raw.SourceLanguageTag
	}
	if raw.LanguageTags == nil {
		issues = append(issues, "languageTags is required")
	} else {
		s.LanguageTags = *raw.LanguageTags
	}
	if raw.Modules == nil {
		issues = append(issues, "modules is required")
	} else {
		s.Modules = *raw.Modules
	}
	s.ValidationRuleLevels = raw.ValidationRuleLevels
	s.ModuleSettings = raw.ModuleSettings

	if len(issues) > 0 {
		return Settings{}, &Error{Kind: KindInvalid, Issues: issues}
	}
	if err := Validate(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func syntaxCause(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return errors.New("invalid JSON")
}

// Validate checks s against the settings schema.
func Validate(s Settings) error {
	var issues []string

	source := strings.TrimSpace(s.SourceLanguageTag)
	if source == "" {
		issues = append(issues, "sourceLanguageTag must not be empty")
	} else if _, err := language.Parse(source); err != nil {
		issues = append(issues, fmt.Sprintf("sourceLanguageTag %q is not a valid BCP 47 tag", s.SourceLanguageTag))
	}

	if len(s.LanguageTags) == 0 {
		issues = append(issues, "languageTags must not be empty")
	}
	seenTags := make(map[string]bool, len(s.LanguageTags))
	for _, tag := range s.LanguageTags {
		if _, err := language.Parse(tag); err != nil || strings.TrimSpace(tag) != tag {
			issues = append(issues, fmt.Sprintf("languageTags: %q is not a valid BCP 47 tag", tag))
			continue
		}
		if seenTags[tag] {
			issues = append(issues, fmt.Sprintf("languageTags: %q is listed twice", tag))
		}
		seenTags[tag] = true
	}
	if source != "" && len(s.LanguageTags) > 0 && !seenTags[s.SourceLanguageTag] {
		issues = append(issues, fmt.Sprintf("languageTags must include the source language tag %q", s.SourceLanguageTag))
	}

	seenModules := make(map[string]bool, len(s.Modules))
	for _, m := range s.Modules {
		if strings.TrimSpace(m) == "" {
			issues = append(issues, "modules: identifiers must not be empty")
			continue
		}
		if seenModules[m] {
			issues = append(issues, fmt.Sprintf("modules: %q is listed twice", m))
		}
		seenModules[m] = true
	}

	for id, lvl := range s.ValidationRuleLevels {
		if strings.TrimSpace(id) == "" {
			issues = append(issues, "validationRuleLevels: rule ids must not be empty")
		}
		if !lvl.Valid() {
			issues = append(issues, fmt.Sprintf("validationRuleLevels: %q has unknown level %q", id, lvl))
		}
	}

	for id, v := range s.ModuleSettings {
		if strings.TrimSpace(id) == "" {
			issues = append(issues, "settings: module ids must not be empty")
		}
		if v == nil {
			issues = append(issues, fmt.Sprintf("settings: %q must be an object", id))
		}
	}

	if len(issues) > 0 {
		sort.Strings(issues)
		return &Error{Kind: KindInvalid, Issues: issues}
	}
	return nil
}
