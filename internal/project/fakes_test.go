package project

import (
	"context"
	"errors"
	"sync"

	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/storage"
)

// countingStorage records writes on top of an in-memory storage.
type countingStorage struct {
	*storage.MemoryStorage
	mu       sync.Mutex
	writes   map[string]int
	failNext error
}

func newCountingStorage() *countingStorage {
	return &countingStorage{MemoryStorage: storage.NewMemoryStorage(), writes: map[string]int{}}
}

func (s *countingStorage) WriteFile(ctx context.Context, p string, data []byte) error {
	s.mu.Lock()
	fail := s.failNext
	s.failNext = nil
	s.writes[p]++
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStorage.WriteFile(ctx, p, data)
}

func (s *countingStorage) writesTo(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[p]
}

// memoryExtension loads a fixed list and records every save.
type memoryExtension struct {
	id       string
	initial  []messages.Message
	loadErr  error
	caps     map[string]any
	mu       sync.Mutex
	saves    []module.SaveArgs
}

func (m *memoryExtension) Meta() module.Meta {
	return module.Meta{ID: m.id, UsedAPIs: []module.API{module.APILoadMessages, module.APISaveMessages}}
}

func (m *memoryExtension) LoadMessages(context.Context, module.LoadArgs) ([]messages.Message, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return messages.CloneAll(m.initial), nil
}

func (m *memoryExtension) SaveMessages(_ context.Context, args module.SaveArgs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, args)
	return nil
}

func (m *memoryExtension) Capabilities(context.Context) (map[string]any, error) {
	return m.caps, nil
}

func (m *memoryExtension) saveCalls() []module.SaveArgs {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]module.SaveArgs(nil), m.saves...)
}

type capabilityOnly struct {
	id   string
	caps map[string]any
}

func (c capabilityOnly) Meta() module.Meta { return module.Meta{ID: c.id} }

func (c capabilityOnly) Capabilities(context.Context) (map[string]any, error) { return c.caps, nil }

type funcRule struct {
	id  string
	run func(args module.RunArgs) error
}

func (r funcRule) Meta() module.Meta { return module.Meta{ID: r.id} }

func (r funcRule) Run(_ context.Context, args module.RunArgs) error { return r.run(args) }

func missingTranslationRule() funcRule {
	return funcRule{id: "messageLintRule.test.missingTranslation", run: func(args module.RunArgs) error {
		for _, tag := range args.LanguageTags {
			if !args.Message.HasLanguage(tag) {
				args.Report(module.Finding{LanguageTag: tag, Body: map[string]string{"en": "missing " + tag}})
			}
		}
		return nil
	}}
}

var errLoadFailed = errors.New("cannot read message files")
