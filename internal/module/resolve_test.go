package module

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
)

func kinds(errs []*Error) []Kind {
	out := make([]Kind, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Kind)
	}
	return out
}

func extensionIDs(r Result) []string {
	var ids []string
	for _, e := range r.Extensions {
		ids = append(ids, e.Meta.ID)
	}
	return ids
}

func TestResolveClassifiesModules(t *testing.T) {
	resolver := MapResolver{
		"json":    fullExtension{metaOnly: meta("plugin.polyglot.json", APILoadMessages, APISaveMessages, APICapabilities), caps: map[string]any{"app.polyglot.ide": "x"}},
		"missing": ruleModule{metaOnly: meta("messageLintRule.polyglot.missingTranslation", APIRun)},
	}
	res := Resolve(context.Background(), ResolveArgs{Modules: []string{"json", "missing"}, Resolver: resolver})

	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Err())
	}
	if got := extensionIDs(res); !reflect.DeepEqual(got, []string{"plugin.polyglot.json"}) {
		t.Fatalf("extensions = %v", got)
	}
	if len(res.Rules) != 1 || res.Rules[0].Meta.ID != "messageLintRule.polyglot.missingTranslation" {
		t.Fatalf("rules = %+v", res.Rules)
	}
	if res.Capabilities["app.polyglot.ide"] != "x" {
		t.Fatalf("capabilities = %v", res.Capabilities)
	}
	if l, ok := res.Loader(); !ok || l.Source != "json" {
		t.Fatalf("loader = %+v, %v", l, ok)
	}
	if s, ok := res.Saver(); !ok || s.Meta.ID != "plugin.polyglot.json" {
		t.Fatalf("saver = %+v, %v", s, ok)
	}
}

func TestResolveIsolatesImportFailures(t *testing.T) {
	resolver := ResolverFunc(func(ctx context.Context, id string) (Module, error) {
		switch id {
		case "broken":
			return nil, errors.New("syntax error in module")
		case "panics":
			panic("import exploded")
		case "nil":
			return nil, nil
		}
		return MapResolver{"good": saverModule{meta("plugin.a.save")}}.Resolve(ctx, id)
	})
	res := Resolve(context.Background(), ResolveArgs{
		Modules:  []string{"broken", "good", "panics", "unknown", "nil"},
		Resolver: resolver,
	})
	if got := kinds(res.Errors); !reflect.DeepEqual(got, []Kind{KindImport, KindImport, KindImport, KindImport}) {
		t.Fatalf("kinds = %v", got)
	}
	if res.Errors[2].Module != "unknown" || !errors.Is(res.Errors[2], ErrNotFound) {
		t.Fatalf("unknown import error = %v", res.Errors[2])
	}
	if got := extensionIDs(res); !reflect.DeepEqual(got, []string{"plugin.a.save"}) {
		t.Fatalf("extensions = %v", got)
	}
}

func TestResolveRejectsInvalidMetadata(t *testing.T) {
	cases := []struct {
		name string
		mod  Module
		kind Kind
	}{
		{"neither", metaOnly{meta: Meta{ID: "plugin.a.b"}}, KindSchema},
		{"both", hybridModule{meta("plugin.a.b")}, KindSchema},
		{"panicking meta", panickyMeta{}, KindSchema},
		{"empty id", saverModule{meta("")}, KindInvalidID},
		{"malformed id", saverModule{meta("plugin-a")}, KindInvalidID},
		{"extension outside namespace", saverModule{meta("thirdParty.a.save")}, KindReservedNamespace},
		{"rule outside namespace", ruleModule{meta("plugin.a.rule")}, KindReservedNamespace},
		{"used api mismatch", saverModule{meta("plugin.a.save", APISaveMessages, APILoadMessages)}, KindUsedAPIMismatch},
		{"bad capability", capModule{metaOnly: meta("plugin.a.caps"), caps: map[string]any{"editor.x": 1}}, KindInvalidCapability},
		{"capability error", capModule{metaOnly: meta("plugin.a.caps"), err: errors.New("boom")}, KindInvalidCapability},
		{"capability panic", panickyCaps{meta("plugin.a.caps")}, KindInvalidCapability},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(context.Background(), ResolveArgs{
				Modules:  []string{"m"},
				Resolver: MapResolver{"m": tc.mod},
			})
			if len(res.Extensions)+len(res.Rules) != 0 {
				t.Fatalf("invalid module was installed")
			}
			if len(res.Errors) != 1 || res.Errors[0].Kind != tc.kind {
				t.Fatalf("errors = %v, want one %s", res.Err(), tc.kind)
			}
			if !IsKind(res.Err(), tc.kind) {
				t.Fatalf("IsKind(%s) = false", tc.kind)
			}
		})
	}
}

func TestResolveSkipsCapabilitiesOfRejectedModules(t *testing.T) {
	var calls atomic.Int32
	resolver := MapResolver{
		"outside":  countingCaps{metaOnly: meta("thirdParty.a.caps"), calls: &calls},
		"mismatch": countingCaps{metaOnly: meta("plugin.a.caps", APISaveMessages), calls: &calls},
		"badid":    countingCaps{metaOnly: meta("plugin-caps"), calls: &calls},
		"loader":   fullExtension{metaOnly: meta("plugin.a.full")},
		"loader2":  fullExtension{metaOnly: meta("plugin.b.full"), caps: map[string]any{"app.never": 1}},
	}
	res := Resolve(context.Background(), ResolveArgs{
		Modules:  []string{"outside", "mismatch", "badid", "loader", "loader2"},
		Resolver: resolver,
	})
	want := []Kind{KindReservedNamespace, KindUsedAPIMismatch, KindInvalidID, KindLoadAlreadyDefined}
	if got := kinds(res.Errors); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("capability hook ran %d times for rejected modules", n)
	}
	if _, ok := res.Capabilities["app.never"]; ok {
		t.Fatalf("rejected module leaked capabilities: %v", res.Capabilities)
	}

	res = Resolve(context.Background(), ResolveArgs{
		Modules:  []string{"ok"},
		Resolver: MapResolver{"ok": countingCaps{metaOnly: meta("plugin.b.caps"), calls: &calls}},
	})
	if calls.Load() != 1 || res.Capabilities["app.counted"] != true {
		t.Fatalf("calls = %d, capabilities = %v", calls.Load(), res.Capabilities)
	}
}

func TestResolveEnforcesUniqueness(t *testing.T) {
	resolver := MapResolver{
		"load1": loaderModule{meta("plugin.a.load")},
		"load2": loaderModule{meta("plugin.b.load")},
		"save1": saverModule{meta("plugin.a.save")},
		"save2": saverModule{meta("plugin.b.save")},
		"cap1":  capModule{metaOnly: meta("plugin.a.caps"), caps: map[string]any{"app.editor": 1}},
		"cap2":  capModule{metaOnly: meta("plugin.b.caps"), caps: map[string]any{"app.editor": 2, "app.other": 3}},
		"dup":   saverModule{meta("plugin.a.caps")},
	}
	res := Resolve(context.Background(), ResolveArgs{
		Modules:  []string{"load1", "load2", "save1", "save2", "cap1", "cap2", "dup"},
		Resolver: resolver,
	})
	want := []Kind{KindLoadAlreadyDefined, KindSaveAlreadyDefined, KindCapabilityAlreadyDefined, KindDuplicateID}
	if got := kinds(res.Errors); !reflect.DeepEqual(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	if got := extensionIDs(res); !reflect.DeepEqual(got, []string{"plugin.a.load", "plugin.a.save", "plugin.a.caps"}) {
		t.Fatalf("extensions = %v", got)
	}
	if !reflect.DeepEqual(res.Capabilities, map[string]any{"app.editor": 1}) {
		t.Fatalf("rejected module leaked capabilities: %v", res.Capabilities)
	}
}

func TestResolveHonorsCustomPrefixes(t *testing.T) {
	res := Resolve(context.Background(), ResolveArgs{
		Modules:  []string{"m"},
		Resolver: MapResolver{"m": saverModule{meta("acme.storage.save")}},
		Options:  Options{ExtensionPrefixes: []string{"acme."}},
	})
	if len(res.Errors) != 0 || len(res.Extensions) != 1 {
		t.Fatalf("custom prefix not honored: %v", res.Err())
	}
}

func TestResolveBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	resolver := ResolverFunc(func(ctx context.Context, id string) (Module, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return ruleModule{meta("messageLintRule.x." + id)}, nil
	})
	ids := []string{"a", "b", "c", "d", "e", "f"}
	done := make(chan Result)
	go func() {
		done <- Resolve(context.Background(), ResolveArgs{Modules: ids, Resolver: resolver, Options: Options{Concurrency: 2}})
	}()
	close(release)
	res := <-done
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak.Load())
	}
	if len(res.Rules) != len(ids) {
		t.Fatalf("rules = %d, errors = %v", len(res.Rules), res.Err())
	}
	for i, r := range res.Rules {
		if r.Source != ids[i] {
			t.Fatalf("rule %d came from %q, want %q", i, r.Source, ids[i])
		}
	}
}

func TestChainResolver(t *testing.T) {
	first := MapResolver{"a": saverModule{meta("plugin.a.save")}}
	failing := ResolverFunc(func(context.Context, string) (Module, error) { return nil, errors.New("disk error") })
	second := MapResolver{"b": loaderModule{meta("plugin.b.load")}}

	if m, err := (ChainResolver{first, second}).Resolve(context.Background(), "b"); err != nil || m.Meta().ID != "plugin.b.load" {
		t.Fatalf("chain fallthrough = %v, %v", m, err)
	}
	if _, err := (ChainResolver{first, second}).Resolve(context.Background(), "z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := (ChainResolver{failing, second}).Resolve(context.Background(), "b"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("hard failure should stop the chain, got %v", err)
	}
}
