package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"polyglot/internal/messages"
	"polyglot/internal/module"
	"polyglot/internal/settings"
	"polyglot/internal/taskqueue"
)

const testWindow = 40 * time.Millisecond

type recordingSaver struct {
	mu       sync.Mutex
	calls    []module.SaveArgs
	fail     error
	inFlight int
	overlap  bool
	delay    time.Duration
}

func (s *recordingSaver) SaveMessages(_ context.Context, args module.SaveArgs) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	fail, delay := s.fail, s.delay
	s.mu.Unlock()

	time.Sleep(delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	s.calls = append(s.calls, args)
	return fail
}

func (s *recordingSaver) snapshot() []module.SaveArgs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]module.SaveArgs(nil), s.calls...)
}

var projectSettings = settings.Settings{
	SourceLanguageTag: "en",
	LanguageTags:      []string{"en", "de"},
	ModuleSettings:    map[string]map[string]any{"plugin.test.saver": {"pathPattern": "{languageTag}.json"}},
}

func newCoordinator(t *testing.T, store *messages.Store, saver module.MessageSaver, onError func(error)) *Coordinator {
	t.Helper()
	c := New(context.Background(), Config{
		Store:    store,
		Saver:    saver,
		SaverID:  "plugin.test.saver",
		Settings: func() settings.Settings { return projectSettings },
		Debounce: testWindow,
		OnError:  onError,
	})
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func newStore(t *testing.T) *messages.Store {
	t.Helper()
	q := taskqueue.New(nil)
	t.Cleanup(q.Close)
	return messages.NewStore(nil, q)
}

func TestBurstSavesOnceWithFinalList(t *testing.T) {
	store := newStore(t)
	saver := &recordingSaver{}
	newCoordinator(t, store, saver, nil)

	for i := 0; i < 25; i++ {
		require.NoError(t, store.Upsert(messages.Filter{ID: "a"}, messages.Message{
			Variants: []messages.Variant{{LanguageTag: "en", Pattern: messages.Pattern{messages.Text(string(rune('a' + i)))}}},
		}))
	}
	require.NoError(t, store.Create(messages.Message{ID: "b"}))

	require.Eventually(t, func() bool { return len(saver.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testWindow)
	calls := saver.snapshot()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 2)
	require.Equal(t, "y", calls[0].Messages[0].Variants[0].Pattern.String())
	require.Equal(t, "{languageTag}.json", calls[0].Settings["pathPattern"])
	require.Equal(t, []string{"en", "de"}, calls[0].LanguageTags)
}

func TestSavesNeverOverlap(t *testing.T) {
	store := newStore(t)
	saver := &recordingSaver{delay: 3 * testWindow}
	newCoordinator(t, store, saver, nil)

	require.NoError(t, store.Create(messages.Message{ID: "a"}))
	require.Eventually(t, func() bool {
		saver.mu.Lock()
		defer saver.mu.Unlock()
		return saver.inFlight == 1
	}, time.Second, 2*time.Millisecond)
	require.NoError(t, store.Create(messages.Message{ID: "b"}))

	require.Eventually(t, func() bool { return len(saver.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	saver.mu.Lock()
	require.False(t, saver.overlap)
	saver.mu.Unlock()
	require.Len(t, saver.snapshot()[1].Messages, 2)
}

func TestSaveFailureIsReportedAndRetried(t *testing.T) {
	store := newStore(t)
	saver := &recordingSaver{fail: errors.New("disk full")}
	var mu sync.Mutex
	var reported []error
	c := newCoordinator(t, store, saver, func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})

	require.NoError(t, store.Create(messages.Message{ID: "a"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	var perr *Error
	require.ErrorAs(t, reported[0], &perr)
	require.Equal(t, OpSaveMessages, perr.Op)
	require.Equal(t, "plugin.test.saver", perr.Module)
	mu.Unlock()
	require.True(t, c.Dirty())
	require.Equal(t, 1, store.Len())

	saver.mu.Lock()
	saver.fail = nil
	saver.mu.Unlock()
	require.NoError(t, store.Create(messages.Message{ID: "b"}))
	require.Eventually(t, func() bool { return !c.Dirty() }, time.Second, 5*time.Millisecond)
	calls := saver.snapshot()
	require.Len(t, calls[len(calls)-1].Messages, 2)
}

func TestFlushSavesImmediately(t *testing.T) {
	store := newStore(t)
	saver := &recordingSaver{}
	c := New(context.Background(), Config{
		Store:    store,
		Saver:    saver,
		SaverID:  "plugin.test.saver",
		Debounce: time.Hour,
	})
	defer c.Close(context.Background())

	require.NoError(t, store.Create(messages.Message{ID: "a"}))
	require.Eventually(t, c.Pending, time.Second, time.Millisecond)
	require.NoError(t, c.Flush(context.Background()))
	require.Len(t, saver.snapshot(), 1)
	require.False(t, c.Dirty())
	require.NoError(t, c.Flush(context.Background()))
	require.Len(t, saver.snapshot(), 1)
}

func TestFlushRetriesFailedSave(t *testing.T) {
	store := newStore(t)
	saver := &recordingSaver{fail: errors.New("offline")}
	c := New(context.Background(), Config{Store: store, Saver: saver, SaverID: "plugin.test.saver", Debounce: time.Hour})
	defer c.Close(context.Background())

	require.NoError(t, store.Create(messages.Message{ID: "a"}))
	require.Eventually(t, c.Pending, time.Second, time.Millisecond)
	require.Error(t, c.Flush(context.Background()))

	saver.mu.Lock()
	saver.fail = nil
	saver.mu.Unlock()
	require.NoError(t, c.Flush(context.Background()))
	require.False(t, c.Dirty())
	require.EqualValues(t, 2, c.Saves())
}

func TestNoSaverKeepsChangesInMemory(t *testing.T) {
	store := newStore(t)
	c := newCoordinator(t, store, nil, nil)
	require.False(t, c.Active())
	require.NoError(t, store.Create(messages.Message{ID: "a"}))
	time.Sleep(2 * testWindow)
	require.False(t, c.Pending())
	require.True(t, c.Dirty())
	require.NoError(t, c.Flush(context.Background()))
	require.Equal(t, 1, store.Len())
}

type panickingSaver struct{}

func (panickingSaver) SaveMessages(context.Context, module.SaveArgs) error { panic("saver bug") }

func TestSaverPanicBecomesError(t *testing.T) {
	store := newStore(t)
	c := New(context.Background(), Config{Store: store, Saver: panickingSaver{}, SaverID: "plugin.test.saver", Debounce: time.Hour})
	defer c.Close(context.Background())
	require.NoError(t, store.Create(messages.Message{ID: "a"}))
	require.Eventually(t, c.Pending, time.Second, time.Millisecond)
	err := c.Flush(context.Background())
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Error(), "saver bug")
}
