package translate

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"

	"polyglot/internal/ctxlog"
	"polyglot/internal/messages"
)

// Store is the part of the message store FillMissing needs.
type Store interface {
	GetAll() []messages.Message
	Get(f messages.Filter) (messages.Message, bool)
	Upsert(where messages.Filter, data messages.Message) error
}

type FillOptions struct {
	SourceLanguageTag  string
	TargetLanguageTags []string
	// BatchSize bounds the texts sent per request. Zero means 50.
	BatchSize int
}

type FillStats struct {
	Translated int
	// Rejected counts translations dropped for not keeping the source
	// placeholders.
	Rejected int
}

// FillMissing translates the source variant of every message that lacks a
// target language and upserts the result.
func FillMissing(ctx context.Context, store Store, tr Translator, opts FillOptions) (FillStats, error) {
	var stats FillStats
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 50
	}
	logger := ctxlog.FromContext(ctx)

	for _, target := range opts.TargetLanguageTags {
		if target == opts.SourceLanguageTag {
			continue
		}
		pending := map[string]string{}
		for _, m := range store.GetAll() {
			src, ok := m.Variant(opts.SourceLanguageTag)
			if !ok || m.HasLanguage(target) || src.Pattern.IsEmpty() {
				continue
			}
			pending[m.ID] = src.Pattern.String()
		}
		ids := slices.Collect(maps.Keys(pending))
		sort.Strings(ids)

		for start := 0; start < len(ids); start += batch {
			chunk := ids[start:min(start+batch, len(ids))]
			texts := make(map[string]string, len(chunk))
			for _, id := range chunk {
				texts[id] = pending[id]
			}
			out, err := tr.Translate(ctx, Request{
				SourceLanguageTag: opts.SourceLanguageTag,
				TargetLanguageTag: target,
				Texts:             texts,
			})
			if err != nil {
				return stats, fmt.Errorf("translate to %s: %w", target, err)
			}
			for _, id := range chunk {
				translated, ok := out[id]
				if !ok {
					continue
				}
				pattern := messages.ParsePattern(translated)
				if !samePlaceholders(messages.ParsePattern(texts[id]), pattern) {
					stats.Rejected++
					logger.Warn("translation dropped placeholders", "message", id, "languageTag", target)
					continue
				}
				applied, err := addVariant(store, id, target, pattern)
				if err != nil {
					return stats, err
				}
				if applied {
					stats.Translated++
				}
			}
		}
		logger.Info("machine translation finished", "languageTag", target, "requested", len(ids), "translator", tr.Name())
	}
	return stats, nil
}

// addVariant re-reads the message so edits made while a request was in
// flight are kept.
func addVariant(store Store, id, tag string, pattern messages.Pattern) (bool, error) {
	current, found := store.Get(messages.Filter{ID: id})
	if !found || current.HasLanguage(tag) {
		return false, nil
	}
	current.Variants = append(current.Variants, messages.Variant{
		LanguageTag: tag,
		Match:       map[string]string{},
		Pattern:     pattern,
	})
	if err := store.Upsert(messages.Filter{ID: id}, current); err != nil {
		return false, fmt.Errorf("store translation of %q: %w", id, err)
	}
	return true, nil
}

func samePlaceholders(a, b messages.Pattern) bool {
	return slices.Equal(placeholders(a), placeholders(b))
}

func placeholders(p messages.Pattern) []string {
	var names []string
	for _, el := range p {
		if el.Type == messages.ElementVariableReference {
			names = append(names, el.Name)
		}
	}
	sort.Strings(names)
	return names
}
