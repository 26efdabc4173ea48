package project

import (
	"context"
	"sync"

	"polyglot/internal/ctxlog"
	"polyglot/internal/observable"
	"polyglot/internal/persist"
	"polyglot/internal/settings"
	"polyglot/internal/storage"
	"polyglot/internal/taskqueue"
)

// SettingsHandle exposes the project settings. Set validates before it
// applies anything and writes the file back asynchronously.
type SettingsHandle struct {
	ctx     context.Context
	path    string
	fs      storage.Storage
	queue   *taskqueue.Queue
	onError func(error)

	mu    sync.Mutex
	value *observable.Observable[settings.Settings]
}

func newSettingsHandle(ctx context.Context, initial settings.Settings, path string, fs storage.Storage, q *taskqueue.Queue, onError func(error)) *SettingsHandle {
	return &SettingsHandle{
		ctx:     ctx,
		path:    path,
		fs:      fs,
		queue:   q,
		onError: onError,
		value:   observable.New(initial.Clone(), q),
	}
}

// Get returns a copy of the current settings.
func (h *SettingsHandle) Get() settings.Settings {
	return h.value.Get().Clone()
}

// Set replaces the settings. An invalid value returns a *settings.Error
// and changes nothing. Changes to the module list apply on the next load.
func (h *SettingsHandle) Set(next settings.Settings) error {
	if err := settings.Validate(next); err != nil {
		return err
	}
	applied := next.Clone()
	data, err := settings.Marshal(applied)
	if err != nil {
		return &settings.Error{Kind: settings.KindInvalid, Path: h.path, Err: err}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.queue.Submit(func() { h.writeBack(data) }) {
		return ErrClosed
	}
	h.value.Set(applied)
	return nil
}

// Subscribe registers fn for future settings changes.
func (h *SettingsHandle) Subscribe(fn func(settings.Settings)) func() {
	return h.value.Subscribe(fn)
}

func (h *SettingsHandle) observable() *observable.Observable[settings.Settings] { return h.value }

func (h *SettingsHandle) writeBack(data []byte) {
	if err := h.fs.WriteFile(h.ctx, h.path, data); err != nil {
		ctxlog.FromContext(h.ctx).Error("settings write-back failed", "path", h.path, "error", err)
		h.onError(&persist.Error{Op: persist.OpWriteSettings, Err: err})
		return
	}
	ctxlog.FromContext(h.ctx).Debug("settings written", "path", h.path)
}
