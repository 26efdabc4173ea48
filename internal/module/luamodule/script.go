// Package luamodule loads extension and validation-rule modules written in
// Lua. A script returns a table with a meta record and any of the hooks
// run, load_messages, save_messages and capabilities.
package luamodule

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"

	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/storage"
)

const (
	hookRun          = "run"
	hookLoadMessages = "load_messages"
	hookSaveMessages = "save_messages"
	hookCapabilities = "capabilities"

	moduleGlobal = "__polyglot_module"
)

// Script is a compiled Lua module. Its state is not safe for concurrent
// use, so every call holds mu.
type Script struct {
	name  string
	mu    sync.Mutex
	state *lua.State
	meta  module.Meta
	hooks map[string]bool
}

type metaTable struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	UsedAPIs    []string `json:"usedApis"`
}

// Compile executes source and captures the module table it returns.
func Compile(name string, source []byte) (*Script, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadBuffer(state, string(source), name, ""); err != nil {
		return nil, fmt.Errorf("load lua %s: %w", name, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua %s: %w", name, err)
	}
	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		return nil, fmt.Errorf("lua %s must return a module table", name)
	}
	state.SetGlobal(moduleGlobal)

	s := &Script{name: name, state: state, hooks: map[string]bool{}}
	state.Global(moduleGlobal)
	for _, hook := range []string{hookRun, hookLoadMessages, hookSaveMessages, hookCapabilities} {
		state.Field(-1, hook)
		s.hooks[hook] = state.IsFunction(-1)
		state.Pop(1)
	}

	state.Field(-1, "meta")
	var mt metaTable
	err := decodeValue(state, -1, &mt)
	state.Pop(2)
	if err != nil {
		return nil, fmt.Errorf("lua %s: decode meta: %w", name, err)
	}
	s.meta = module.Meta{ID: mt.ID, DisplayName: mt.DisplayName, Description: mt.Description}
	for _, api := range mt.UsedAPIs {
		s.meta.UsedAPIs = append(s.meta.UsedAPIs, module.API(api))
	}
	return s, nil
}

func (s *Script) Name() string { return s.name }

// Module exposes the script through exactly the module interfaces whose
// hooks it defines.
func (s *Script) Module() module.Module {
	m := metaHook{s}
	if s.hooks[hookRun] {
		if s.hooks[hookLoadMessages] || s.hooks[hookSaveMessages] || s.hooks[hookCapabilities] {
			return struct {
				metaHook
				runHook
				loadHook
				saveHook
				capHook
			}{m, runHook{s}, loadHook{s}, saveHook{s}, capHook{s}}
		}
		return struct {
			metaHook
			runHook
		}{m, runHook{s}}
	}

	l, sv, c := loadHook{s}, saveHook{s}, capHook{s}
	switch [3]bool{s.hooks[hookLoadMessages], s.hooks[hookSaveMessages], s.hooks[hookCapabilities]} {
	case [3]bool{true, false, false}:
		return struct {
			metaHook
			loadHook
		}{m, l}
	case [3]bool{false, true, false}:
		return struct {
			metaHook
			saveHook
		}{m, sv}
	case [3]bool{true, true, false}:
		return struct {
			metaHook
			loadHook
			saveHook
		}{m, l, sv}
	case [3]bool{false, false, true}:
		return struct {
			metaHook
			capHook
		}{m, c}
	case [3]bool{true, false, true}:
		return struct {
			metaHook
			loadHook
			capHook
		}{m, l, c}
	case [3]bool{false, true, true}:
		return struct {
			metaHook
			saveHook
			capHook
		}{m, sv, c}
	case [3]bool{true, true, true}:
		return struct {
			metaHook
			loadHook
			saveHook
			capHook
		}{m, l, sv, c}
	}
	return m
}

// call invokes hook with arg as its single argument. decorate may add
// fields to the argument table before the call.
func (s *Script) call(ctx context.Context, hook string, arg any, decorate func(*lua.State), out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	state := s.state
	top := state.Top()
	defer state.SetTop(top)

	state.Global(moduleGlobal)
	state.Field(-1, hook)
	if !state.IsFunction(-1) {
		return fmt.Errorf("lua %s: %s is not a function", s.name, hook)
	}
	if err := pushValue(state, arg); err != nil {
		return err
	}
	if decorate != nil {
		if state.TypeOf(-1) != lua.TypeTable {
			state.Pop(1)
			state.NewTable()
		}
		decorate(state)
	}
	if err := state.ProtectedCall(1, 1, 0); err != nil {
		return fmt.Errorf("lua %s: %s: %w", s.name, hook, err)
	}
	if out == nil || state.TypeOf(-1) == lua.TypeNil {
		return nil
	}
	if err := decodeValue(state, -1, out); err != nil {
		return fmt.Errorf("lua %s: %s returned unexpected value: %w", s.name, hook, err)
	}
	return nil
}

func bindStorage(ctx context.Context, fs storage.Storage) func(*lua.State) {
	return func(state *lua.State) {
		if fs == nil {
			return
		}
		state.PushGoFunction(func(l *lua.State) int {
			data, err := fs.ReadFile(ctx, lua.CheckString(l, 1))
			if err != nil {
				l.PushNil()
				if errors.Is(err, storage.ErrNotFound) {
					l.PushString("not found")
				} else {
					l.PushString(err.Error())
				}
				return 2
			}
			l.PushString(string(data))
			return 1
		})
		state.SetField(-2, "read_file")
		state.PushGoFunction(func(l *lua.State) int {
			if err := fs.WriteFile(ctx, lua.CheckString(l, 1), []byte(lua.CheckString(l, 2))); err != nil {
				l.PushNil()
				l.PushString(err.Error())
				return 2
			}
			l.PushBoolean(true)
			return 1
		})
		state.SetField(-2, "write_file")
	}
}

type metaHook struct{ s *Script }

func (h metaHook) Meta() module.Meta { return h.s.meta }

type runHook struct{ s *Script }

type findingTable struct {
	MessageID   string            `json:"messageId"`
	LanguageTag string            `json:"languageTag"`
	Body        map[string]string `json:"body"`
}

func (h runHook) Run(ctx context.Context, args module.RunArgs) error {
	arg := map[string]any{
		"message":           args.Message,
		"sourceLanguageTag": args.SourceLanguageTag,
		"languageTags":      toAnySlice(args.LanguageTags),
		"settings":          args.Settings,
	}
	var reportErr error
	err := h.s.call(ctx, hookRun, arg, func(state *lua.State) {
		state.PushGoFunction(func(l *lua.State) int {
			var f findingTable
			if err := decodeValue(l, 1, &f); err != nil {
				reportErr = fmt.Errorf("lua %s: invalid report: %w", h.s.name, err)
				return 0
			}
			if args.Report != nil {
				args.Report(module.Finding{MessageID: f.MessageID, LanguageTag: f.LanguageTag, Body: f.Body})
			}
			return 0
		})
		state.SetField(-2, "report")
	}, nil)
	return errors.Join(err, reportErr)
}

type loadHook struct{ s *Script }

func (h loadHook) LoadMessages(ctx context.Context, args module.LoadArgs) ([]messages.Message, error) {
	arg := map[string]any{
		"sourceLanguageTag": args.SourceLanguageTag,
		"languageTags":      toAnySlice(args.LanguageTags),
		"settings":          args.Settings,
	}
	var out []messages.Message
	if err := h.s.call(ctx, hookLoadMessages, arg, bindStorage(ctx, args.Storage), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type saveHook struct{ s *Script }

func (h saveHook) SaveMessages(ctx context.Context, args module.SaveArgs) error {
	arg := map[string]any{
		"messages":          args.Messages,
		"sourceLanguageTag": args.SourceLanguageTag,
		"languageTags":      toAnySlice(args.LanguageTags),
		"settings":          args.Settings,
	}
	return h.s.call(ctx, hookSaveMessages, arg, bindStorage(ctx, args.Storage), nil)
}

type capHook struct{ s *Script }

func (h capHook) Capabilities(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := h.s.call(ctx, hookCapabilities, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
