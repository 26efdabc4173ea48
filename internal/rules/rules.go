// Package rules holds the standard validation rules shipped with polyglot.
package rules

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"polyglot/internal/module"
)

const (
	MissingTranslationID   = "messageLintRule.polyglot.missingTranslation"
	MessageWithoutSourceID = "messageLintRule.polyglot.messageWithoutSource"
	EmptyPatternID         = "messageLintRule.polyglot.emptyPattern"
	IdenticalPatternID     = "messageLintRule.polyglot.identicalPattern"
)

// All returns a fresh instance of every standard rule.
func All() []module.Rule {
	return []module.Rule{
		MissingTranslation{},
		MessageWithoutSource{},
		EmptyPattern{},
		IdenticalPattern{},
	}
}

func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return fmt.Sprintf("%s (%s)", name, tag)
	}
	return tag
}

func meta(id, name, description string) module.Meta {
	return module.Meta{ID: id, DisplayName: name, Description: description, UsedAPIs: []module.API{module.APIRun}}
}

// MissingTranslation reports every target language a message has no
// variant for.
type MissingTranslation struct{}

func (MissingTranslation) Meta() module.Meta {
	return meta(MissingTranslationID, "Missing translation", "Reports languages a message is not translated to.")
}

func (MissingTranslation) Run(_ context.Context, args module.RunArgs) error {
	for _, tag := range args.LanguageTags {
		if tag == args.SourceLanguageTag || args.Message.HasLanguage(tag) {
			continue
		}
		args.Report(module.Finding{
			LanguageTag: tag,
			Body:        map[string]string{"en": fmt.Sprintf("Message %q is missing a %s translation.", args.Message.ID, languageName(tag))},
		})
	}
	return nil
}

// MessageWithoutSource reports messages that have no source variant.
type MessageWithoutSource struct{}

func (MessageWithoutSource) Meta() module.Meta {
	return meta(MessageWithoutSourceID, "Message without source", "Reports messages missing in the source language.")
}

func (MessageWithoutSource) Run(_ context.Context, args module.RunArgs) error {
	if args.Message.HasLanguage(args.SourceLanguageTag) {
		return nil
	}
	args.Report(module.Finding{
		LanguageTag: args.SourceLanguageTag,
		Body:        map[string]string{"en": fmt.Sprintf("Message with id %q is specified, but missing in the source.", args.Message.ID)},
	})
	return nil
}

// EmptyPattern reports variants whose pattern renders to nothing.
type EmptyPattern struct{}

func (EmptyPattern) Meta() module.Meta {
	return meta(EmptyPatternID, "Empty pattern", "Reports variants without content.")
}

func (EmptyPattern) Run(_ context.Context, args module.RunArgs) error {
	for _, v := range args.Message.Variants {
		if !slices.Contains(args.LanguageTags, v.LanguageTag) || !v.Pattern.IsEmpty() {
			continue
		}
		args.Report(module.Finding{
			LanguageTag: v.LanguageTag,
			Body:        map[string]string{"en": fmt.Sprintf("The %s pattern of message %q is empty.", languageName(v.LanguageTag), args.Message.ID)},
		})
	}
	return nil
}

// IdenticalPattern reports translations equal to the source text. Texts
// listed in the rule's "ignore" setting are exempt.
type IdenticalPattern struct{}

func (IdenticalPattern) Meta() module.Meta {
	return meta(IdenticalPatternID, "Identical pattern", "Reports translations identical to the source.")
}

func (IdenticalPattern) Run(_ context.Context, args module.RunArgs) error {
	source, ok := args.Message.Variant(args.SourceLanguageTag)
	if !ok || source.Pattern.IsEmpty() {
		return nil
	}
	text := source.Pattern.String()
	if slices.Contains(ignoreList(args.Settings), text) {
		return nil
	}
	for _, v := range args.Message.Variants {
		if v.LanguageTag == args.SourceLanguageTag || len(v.Match) != 0 || !slices.Contains(args.LanguageTags, v.LanguageTag) {
			continue
		}
		if v.Pattern.String() == text {
			args.Report(module.Finding{
				LanguageTag: v.LanguageTag,
				Body:        map[string]string{"en": fmt.Sprintf("The %s translation of %q is identical to the source.", languageName(v.LanguageTag), args.Message.ID)},
			})
		}
	}
	return nil
}

func ignoreList(settings map[string]any) []string {
	switch raw := settings["ignore"].(type) {
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
