package rules

import (
	"context"
	"strings"
	"testing"

	"polyglot/internal/messages"
	"polyglot/internal/module"
)

func run(t *testing.T, rule module.Rule, msg messages.Message, settings map[string]any) []module.Finding {
	t.Helper()
	var out []module.Finding
	err := rule.Run(context.Background(), module.RunArgs{
		Message:           msg,
		Report:            func(f module.Finding) { out = append(out, f) },
		SourceLanguageTag: "en",
		LanguageTags:      []string{"en", "de", "fr"},
		Settings:          settings,
	})
	if err != nil {
		t.Fatalf("%s: %v", rule.Meta().ID, err)
	}
	return out
}

func v(tag, text string) messages.Variant {
	return messages.Variant{LanguageTag: tag, Pattern: messages.ParsePattern(text)}
}

func tags(fs []module.Finding) string {
	var out []string
	for _, f := range fs {
		out = append(out, f.LanguageTag)
	}
	return strings.Join(out, ",")
}

func TestMissingTranslation(t *testing.T) {
	got := run(t, MissingTranslation{}, messages.Message{ID: "a", Variants: []messages.Variant{v("en", "A"), v("de", "A-de")}}, nil)
	if tags(got) != "fr" {
		t.Fatalf("findings = %+v", got)
	}
	if !strings.Contains(got[0].Body["en"], "French (fr)") {
		t.Fatalf("body = %q", got[0].Body["en"])
	}
}

func TestMessageWithoutSource(t *testing.T) {
	if got := run(t, MessageWithoutSource{}, messages.Message{ID: "a", Variants: []messages.Variant{v("en", "A")}}, nil); len(got) != 0 {
		t.Fatalf("findings = %+v", got)
	}
	got := run(t, MessageWithoutSource{}, messages.Message{ID: "test2", Variants: []messages.Variant{v("fr", "2")}}, nil)
	if tags(got) != "en" || !strings.Contains(got[0].Body["en"], `"test2"`) {
		t.Fatalf("findings = %+v", got)
	}
}

func TestEmptyPattern(t *testing.T) {
	msg := messages.Message{ID: "a", Variants: []messages.Variant{v("en", "A"), v("de", "  "), {LanguageTag: "fr"}, v("it", "")}}
	if got := run(t, EmptyPattern{}, msg, nil); tags(got) != "de,fr" {
		t.Fatalf("findings = %+v", got)
	}
}

func TestIdenticalPattern(t *testing.T) {
	msg := messages.Message{ID: "a", Variants: []messages.Variant{v("en", "OK"), v("de", "OK"), v("fr", "D'accord")}}
	if got := run(t, IdenticalPattern{}, msg, nil); tags(got) != "de" {
		t.Fatalf("findings = %+v", got)
	}
	if got := run(t, IdenticalPattern{}, msg, map[string]any{"ignore": []any{"OK"}}); len(got) != 0 {
		t.Fatalf("ignored text reported: %+v", got)
	}
}

func TestAllRulesPassResolution(t *testing.T) {
	resolver := module.MapResolver{}
	var ids []string
	for _, r := range All() {
		resolver[r.Meta().ID] = r
		ids = append(ids, r.Meta().ID)
	}
	res := module.Resolve(context.Background(), module.ResolveArgs{Modules: ids, Resolver: resolver})
	if err := res.Err(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(res.Rules) != 4 {
		t.Fatalf("rules = %d", len(res.Rules))
	}
}
