// Package jsonfile is the built-in extension that keeps messages in one
// flat JSON object per language, mapping message ids to patterns.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"polyglot/internal/ctxlog"
	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/storage"
	"polyglot/internal/util/jsonutil"
)

const (
	ID = "plugin.polyglot.json"

	// CapabilityNamespace is registered for editor integrations.
	CapabilityNamespace = "app.polyglot.ideExtension"

	languageTagPlaceholder = "{languageTag}"
)

var ErrPathPattern = errors.New("jsonfile: settings.pathPattern must be a string containing " + languageTagPlaceholder)

type Plugin struct{}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Meta() module.Meta {
	return module.Meta{
		ID:          ID,
		DisplayName: "JSON translation files",
		Description: "Reads and writes one JSON file per language.",
		UsedAPIs:    []module.API{module.APILoadMessages, module.APISaveMessages, module.APICapabilities},
	}
}

// Capabilities describes how editors find message references in code.
func (p *Plugin) Capabilities(context.Context) (map[string]any, error) {
	return map[string]any{
		CapabilityNamespace: map[string]any{
			"messageReferenceMatchers": []string{`t\(\s*["']([^"']+)["']`},
			"extractMessageOptions":    []string{`{t("%s")}`, `t("%s")`},
		},
	}, nil
}

func pathFor(settings map[string]any, languageTag string) (string, error) {
	pattern, _ := settings["pathPattern"].(string)
	if !strings.Contains(pattern, languageTagPlaceholder) {
		return "", ErrPathPattern
	}
	return strings.ReplaceAll(pattern, languageTagPlaceholder, languageTag), nil
}

// LoadMessages reads every configured language. Missing files mean the
// language has no messages yet.
func (p *Plugin) LoadMessages(ctx context.Context, args module.LoadArgs) ([]messages.Message, error) {
	tags := orderedTags(args.SourceLanguageTag, args.LanguageTags)
	var order []string
	byID := map[string]*messages.Message{}

	for _, tag := range tags {
		path, err := pathFor(args.Settings, tag)
		if err != nil {
			return nil, err
		}
		data, err := args.Storage.ReadFile(ctx, path)
		if errors.Is(err, storage.ErrNotFound) {
			ctxlog.FromContext(ctx).Debug("no message file for language", "languageTag", tag, "path", path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		entries, err := decodeFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			m, ok := byID[id]
			if !ok {
				m = &messages.Message{ID: id, Selectors: []messages.Expression{}}
				byID[id] = m
				order = append(order, id)
			}
			m.Variants = append(m.Variants, messages.Variant{
				LanguageTag: tag,
				Match:       map[string]string{},
				Pattern:     messages.ParsePattern(entries[id]),
			})
		}
	}

	out := make([]messages.Message, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// SaveMessages writes one file per configured language. Only variants
// without a selector match are stored.
func (p *Plugin) SaveMessages(ctx context.Context, args module.SaveArgs) error {
	for _, tag := range orderedTags(args.SourceLanguageTag, args.LanguageTags) {
		path, err := pathFor(args.Settings, tag)
		if err != nil {
			return err
		}
		entries := map[string]string{}
		for _, m := range args.Messages {
			if v, ok := m.Variant(tag); ok {
				entries[m.ID] = v.Pattern.String()
			}
		}
		data, err := encodeFile(entries)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if err := args.Storage.WriteFile(ctx, path, data); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// decodeFile accepts flat objects and flattens nested ones with dots.
func decodeFile(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := map[string]string{}
	var walk func(prefix string, v map[string]any) error
	walk = func(prefix string, v map[string]any) error {
		for k, item := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			switch x := item.(type) {
			case string:
				out[key] = x
			case map[string]any:
				if err := walk(key, x); err != nil {
					return err
				}
			default:
				return fmt.Errorf("message %q must be a string, got %T", key, item)
			}
		}
		return nil
	}
	if err := walk("", raw); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeFile(entries map[string]string) ([]byte, error) {
	return jsonutil.MarshalIndent(entries)
}

func orderedTags(source string, tags []string) []string {
	out := make([]string, 0, len(tags)+1)
	if source != "" {
		out = append(out, source)
	}
	for _, t := range tags {
		if t != source {
			out = append(out, t)
		}
	}
	return out
}
