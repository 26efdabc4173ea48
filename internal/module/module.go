// Package module defines the surfaces extension and validation-rule modules
// expose to the runtime, and resolves configured module identifiers into
// validated, classified module sets.
package module

import (
	"context"

	"polyglot/internal/messages"
	"polyglot/internal/storage"
)

// API names a hook a module can declare in Meta.UsedAPIs.
type API string

const (
	APILoadMessages API = "loadMessages"
	APISaveMessages API = "saveMessages"
	APICapabilities API = "capabilities"
	APIRun          API = "run"
)

// Meta describes a module. ID has the form <kind>.<namespace>.<name>.
type Meta struct {
	ID          string
	DisplayName string
	Description string
	UsedAPIs    []API
}

// Module is the minimal surface every resolved object must expose.
type Module interface {
	Meta() Meta
}

type LoadArgs struct {
	SourceLanguageTag string
	LanguageTags      []string
	// Settings is the module's slice of the project settings.
	Settings map[string]any
	Storage  storage.Storage
}

// MessageLoader produces the initial message list of a project.
type MessageLoader interface {
	LoadMessages(ctx context.Context, args LoadArgs) ([]messages.Message, error)
}

type SaveArgs struct {
	Messages          []messages.Message
	SourceLanguageTag string
	LanguageTags      []string
	Settings          map[string]any
	Storage           storage.Storage
}

// MessageSaver persists the full message list.
type MessageSaver interface {
	SaveMessages(ctx context.Context, args SaveArgs) error
}

// CapabilityProvider exposes namespaced objects to external integrations.
type CapabilityProvider interface {
	Capabilities(ctx context.Context) (map[string]any, error)
}

// Finding is what a rule reports about the message it was run on.
// An empty MessageID means the message under validation.
type Finding struct {
	MessageID   string
	LanguageTag string
	Body        map[string]string
}

type RunArgs struct {
	Message           messages.Message
	Report            func(Finding)
	SourceLanguageTag string
	LanguageTags      []string
	Settings          map[string]any
}

// Rule is a validation rule module. Run is invoked once per message.
type Rule interface {
	Module
	Run(ctx context.Context, args RunArgs) error
}

// Implements lists the hooks m actually provides.
func Implements(m Module) []API {
	var apis []API
	if _, ok := m.(MessageLoader); ok {
		apis = append(apis, APILoadMessages)
	}
	if _, ok := m.(MessageSaver); ok {
		apis = append(apis, APISaveMessages)
	}
	if _, ok := m.(CapabilityProvider); ok {
		apis = append(apis, APICapabilities)
	}
	if _, ok := m.(Rule); ok {
		apis = append(apis, APIRun)
	}
	return apis
}

// IsExtension reports whether m exposes any extension hook.
func IsExtension(m Module) bool {
	switch m.(type) {
	case MessageLoader, MessageSaver, CapabilityProvider:
		return true
	}
	return false
}
