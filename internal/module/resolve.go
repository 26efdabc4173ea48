package module

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"runtime"
	"slices"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"polyglot/internal/ctxlog"
	"polyglot/internal/tracing"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*\.[a-z][a-zA-Z0-9]*\.[a-z][a-zA-Z0-9]*$`)

// Options controls the namespace checks applied to resolved modules.
type Options struct {
	ExtensionPrefixes []string
	RulePrefixes      []string
	CapabilityPrefix  string
	// Concurrency bounds parallel imports. Zero means GOMAXPROCS.
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		ExtensionPrefixes: []string{"plugin."},
		RulePrefixes:      []string{"messageLintRule."},
		CapabilityPrefix:  "app.",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.ExtensionPrefixes) == 0 {
		o.ExtensionPrefixes = d.ExtensionPrefixes
	}
	if len(o.RulePrefixes) == 0 {
		o.RulePrefixes = d.RulePrefixes
	}
	if o.CapabilityPrefix == "" {
		o.CapabilityPrefix = d.CapabilityPrefix
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	return o
}

type ResolveArgs struct {
	Modules  []string
	Resolver Resolver
	Options  Options
}

// Extension is an installed extension module. Source is the configured
// identifier it was resolved from.
type Extension struct {
	Source       string
	Meta         Meta
	Module       Module
	Capabilities map[string]any
}

func (e Extension) Loader() (MessageLoader, bool) {
	l, ok := e.Module.(MessageLoader)
	return l, ok
}

func (e Extension) Saver() (MessageSaver, bool) {
	s, ok := e.Module.(MessageSaver)
	return s, ok
}

// InstalledRule is an installed validation rule module.
type InstalledRule struct {
	Source string
	Meta   Meta
	Rule   Rule
}

// Result is the outcome of Resolve. Errors never prevent the other modules
// from being installed.
type Result struct {
	Extensions   []Extension
	Rules        []InstalledRule
	Capabilities map[string]any
	Errors       []*Error
}

// Loader returns the single extension that loads messages.
func (r Result) Loader() (Extension, bool) {
	for _, e := range r.Extensions {
		if _, ok := e.Loader(); ok {
			return e, true
		}
	}
	return Extension{}, false
}

// Saver returns the single extension that saves messages.
func (r Result) Saver() (Extension, bool) {
	for _, e := range r.Extensions {
		if _, ok := e.Saver(); ok {
			return e, true
		}
	}
	return Extension{}, false
}

// Err joins all collected errors, or returns nil.
func (r Result) Err() error {
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

type imported struct {
	mod Module
	err *Error
}

// Resolve imports every configured identifier, classifies and validates the
// results, and enforces loader, saver and capability uniqueness. A module
// failing any check is excluded entirely and reported in Result.Errors.
func Resolve(ctx context.Context, args ResolveArgs) Result {
	ctx, span := tracing.Start(ctx, "module.Resolve", attribute.Int("modules", len(args.Modules)))
	defer span.End()
	logger := ctxlog.FromContext(ctx)
	opts := args.Options.withDefaults()

	imports := importAll(ctx, args.Resolver, args.Modules, opts.Concurrency)

	res := Result{Capabilities: map[string]any{}}
	seenIDs := map[string]string{}
	var loaderID, saverID string
	capOwner := map[string]string{}

	for i, source := range args.Modules {
		imp := imports[i]
		if imp.err != nil {
			res.Errors = append(res.Errors, imp.err)
			continue
		}
		meta, err := validate(source, imp.mod, opts)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if owner, dup := seenIDs[meta.ID]; dup {
			res.Errors = append(res.Errors, &Error{
				Kind: KindDuplicateID, Module: source, ID: meta.ID,
				Err: fmt.Errorf("already installed from %q", owner),
			})
			continue
		}

		if rule, ok := imp.mod.(Rule); ok {
			seenIDs[meta.ID] = source
			res.Rules = append(res.Rules, InstalledRule{Source: source, Meta: meta, Rule: rule})
			continue
		}

		if err := checkHooks(source, meta, imp.mod, loaderID, saverID); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		caps, cerr := capabilitiesOf(ctx, source, meta, imp.mod)
		if cerr == nil {
			cerr = checkCapabilities(source, meta, caps, opts, capOwner)
		}
		if cerr != nil {
			res.Errors = append(res.Errors, cerr)
			continue
		}
		seenIDs[meta.ID] = source
		if _, ok := imp.mod.(MessageLoader); ok {
			loaderID = meta.ID
		}
		if _, ok := imp.mod.(MessageSaver); ok {
			saverID = meta.ID
		}
		for ns, v := range caps {
			capOwner[ns] = meta.ID
			res.Capabilities[ns] = v
		}
		res.Extensions = append(res.Extensions, Extension{
			Source:       source,
			Meta:         meta,
			Module:       imp.mod,
			Capabilities: caps,
		})
	}

	for _, e := range res.Errors {
		logger.Warn("module rejected", "module", e.Module, "kind", string(e.Kind), "error", e.Err)
	}
	logger.Debug("modules resolved",
		"extensions", len(res.Extensions),
		"rules", len(res.Rules),
		"errors", len(res.Errors))
	span.SetAttributes(
		attribute.Int("extensions", len(res.Extensions)),
		attribute.Int("rules", len(res.Rules)),
		attribute.Int("errors", len(res.Errors)))
	return res
}

// importAll resolves identifiers concurrently. Results keep input order.
func importAll(ctx context.Context, r Resolver, ids []string, limit int) []imported {
	results := make([]imported, len(ids))
	if len(ids) == 0 {
		return results
	}
	var g errgroup.Group
	g.SetLimit(min(limit, len(ids)))
	for i, id := range ids {
		g.Go(func() error {
			results[i] = importOne(ctx, r, id)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func importOne(ctx context.Context, r Resolver, id string) (out imported) {
	defer func() {
		if p := recover(); p != nil {
			out = imported{err: &Error{Kind: KindImport, Module: id, Err: fmt.Errorf("panic: %v", p)}}
		}
	}()
	if r == nil {
		return imported{err: &Error{Kind: KindImport, Module: id, Err: errors.New("no resolver configured")}}
	}
	if err := ctx.Err(); err != nil {
		return imported{err: &Error{Kind: KindImport, Module: id, Err: err}}
	}
	m, err := r.Resolve(ctx, id)
	if err != nil {
		return imported{err: &Error{Kind: KindImport, Module: id, Err: err}}
	}
	if m == nil {
		return imported{err: &Error{Kind: KindImport, Module: id, Err: errors.New("resolver returned no module")}}
	}
	return imported{mod: m}
}

// capabilitiesOf runs the capability hook of a module that passed every
// other check.
func capabilitiesOf(ctx context.Context, source string, meta Meta, m Module) (caps map[string]any, merr *Error) {
	cp, ok := m.(CapabilityProvider)
	if !ok {
		return nil, nil
	}
	defer func() {
		if p := recover(); p != nil {
			caps, merr = nil, &Error{Kind: KindInvalidCapability, Module: source, ID: meta.ID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	caps, err := cp.Capabilities(ctx)
	if err != nil {
		return nil, &Error{Kind: KindInvalidCapability, Module: source, ID: meta.ID, Err: err}
	}
	return maps.Clone(caps), nil
}

func validate(source string, m Module, opts Options) (meta Meta, merr *Error) {
	defer func() {
		if p := recover(); p != nil {
			merr = &Error{Kind: KindSchema, Module: source, Err: fmt.Errorf("panic reading metadata: %v", p)}
		}
	}()
	meta = m.Meta()

	_, isRule := m.(Rule)
	isExt := IsExtension(m)
	switch {
	case isRule && isExt:
		return meta, &Error{Kind: KindSchema, Module: source, ID: meta.ID, Err: errors.New("module exposes both extension and rule hooks")}
	case !isRule && !isExt:
		return meta, &Error{Kind: KindSchema, Module: source, ID: meta.ID, Err: errors.New("module exposes neither extension nor rule hooks")}
	}

	if strings.TrimSpace(meta.ID) == "" {
		return meta, &Error{Kind: KindInvalidID, Module: source, Err: errors.New("empty id")}
	}
	if !idPattern.MatchString(meta.ID) {
		return meta, &Error{Kind: KindInvalidID, Module: source, ID: meta.ID, Err: errors.New("id must look like <kind>.<namespace>.<name>")}
	}

	prefixes := opts.ExtensionPrefixes
	if isRule {
		prefixes = opts.RulePrefixes
	}
	if !hasAnyPrefix(meta.ID, prefixes) {
		return meta, &Error{Kind: KindReservedNamespace, Module: source, ID: meta.ID, Err: fmt.Errorf("id must start with one of %v", prefixes)}
	}

	implemented := Implements(m)
	var missing []string
	for _, api := range meta.UsedAPIs {
		if !slices.Contains(implemented, api) {
			missing = append(missing, string(api))
		}
	}
	if len(missing) > 0 {
		return meta, &Error{Kind: KindUsedAPIMismatch, Module: source, ID: meta.ID, Err: fmt.Errorf("declared but not implemented: %s", strings.Join(missing, ", "))}
	}
	return meta, nil
}

func checkHooks(source string, meta Meta, m Module, loaderID, saverID string) *Error {
	if _, ok := m.(MessageLoader); ok && loaderID != "" {
		return &Error{Kind: KindLoadAlreadyDefined, Module: source, ID: meta.ID, Err: fmt.Errorf("messages are already loaded by %s", loaderID)}
	}
	if _, ok := m.(MessageSaver); ok && saverID != "" {
		return &Error{Kind: KindSaveAlreadyDefined, Module: source, ID: meta.ID, Err: fmt.Errorf("messages are already saved by %s", saverID)}
	}
	return nil
}

func checkCapabilities(source string, meta Meta, caps map[string]any, opts Options, capOwner map[string]string) *Error {
	namespaces := make([]string, 0, len(caps))
	for ns := range caps {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		if !strings.HasPrefix(ns, opts.CapabilityPrefix) || len(ns) == len(opts.CapabilityPrefix) {
			return &Error{Kind: KindInvalidCapability, Module: source, ID: meta.ID, Err: fmt.Errorf("capability namespace %q must start with %q", ns, opts.CapabilityPrefix)}
		}
		if owner, ok := capOwner[ns]; ok {
			return &Error{Kind: KindCapabilityAlreadyDefined, Module: source, ID: meta.ID, Err: fmt.Errorf("capability %q is already defined by %s", ns, owner)}
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
