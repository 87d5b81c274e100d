// Package provider supplies agent invoker implementations: the deterministic
// echo invoker used in tests and examples, adapters over hosted model APIs in
// the subpackages, and a small factory registry so invokers can be built from
// configuration by name.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/tidewell/agenthub/core"
)

// Func adapts an ordinary function to the core.Invoker interface.
type Func func(ctx context.Context, payload any) (any, error)

// Invoke implements core.Invoker.
func (f Func) Invoke(ctx context.Context, payload any) (any, error) { return f(ctx, payload) }

var _ core.Invoker = (Func)(nil)

// Echo returns an invoker that replies with the textual form of its payload.
// Deterministic and side-effect free.
func Echo() core.Invoker {
	return Func(func(_ context.Context, payload any) (any, error) {
		return PayloadText(payload), nil
	})
}

// PayloadText extracts a prompt string from an arbitrary task payload. Plain
// strings pass through, map payloads contribute their "message" field, and
// everything else is JSON-encoded.
func PayloadText(payload any) string {
	switch v := payload.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	if b, err := json.Marshal(payload); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", payload)
}

// Factory builds an invoker from provider-specific configuration.
type Factory func(cfg map[string]any) (core.Invoker, error)

// Registry maps provider names to invoker factories. The zero value is not
// usable; construct with NewRegistry, which seeds the builtin echo provider.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs a Registry with the builtin "echo" provider.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("echo", func(map[string]any) (core.Invoker, error) { return Echo(), nil })
	return r
}

// Register adds or replaces the factory for a provider name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Build constructs an invoker for the named provider.
func (r *Registry) Build(name string, cfg map[string]any) (core.Invoker, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, core.NewError(core.CodeNotFound, "unknown provider %q", name)
	}
	return factory(cfg)
}

// Names lists the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
