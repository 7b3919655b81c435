package schema

import (
	"context"
	"sync"

	"github.com/goliatone/go-device-auth/pkg/types"
	"github.com/google/uuid"
)

// RefreshFunc receives a schema refresh signal: the actor that triggered it
// and free-form event metadata such as the changed resource names.
type RefreshFunc func(ctx context.Context, actorID uuid.UUID, metadata map[string]any)

// Notifier fans schema refresh events out to named subscribers. It satisfies
// ChangePublisher, so the registry publishes through it, and the validation
// listener uses the same surface to nudge admin consumers after
// authenticated requests.
type Notifier struct {
	mu     sync.RWMutex
	logger types.Logger
	order  []string
	subs   map[string]RefreshFunc
}

// NotifierOption customizes the notifier.
type NotifierOption func(*Notifier)

// WithNotifierLogger wires a logger for subscriber failures.
func WithNotifierLogger(logger types.Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs a schema notifier.
func NewNotifier(opts ...NotifierOption) *Notifier {
	n := &Notifier{
		logger: types.NopLogger{},
		subs:   make(map[string]RefreshFunc),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Subscribe registers a named subscriber. Re-subscribing under the same name
// replaces the previous function, so hot-reloading hosts do not accumulate
// stale listeners. Empty names and nil functions are ignored.
func (n *Notifier) Subscribe(name string, fn RefreshFunc) {
	if name == "" || fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.subs[name]; !exists {
		n.order = append(n.order, name)
	}
	n.subs[name] = fn
}

// Unsubscribe drops the named subscriber, if present.
func (n *Notifier) Unsubscribe(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.subs[name]; !exists {
		return
	}
	delete(n.subs, name)
	for i, existing := range n.order {
		if existing == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Notify emits a refresh event to every subscriber in registration order. A
// panicking subscriber is isolated and logged so it cannot take down the
// request that triggered the refresh.
func (n *Notifier) Notify(ctx context.Context, actorID uuid.UUID, metadata map[string]any) {
	n.mu.RLock()
	names := append([]string(nil), n.order...)
	subs := make([]RefreshFunc, 0, len(names))
	for _, name := range names {
		subs = append(subs, n.subs[name])
	}
	n.mu.RUnlock()

	for i, fn := range subs {
		n.dispatch(ctx, names[i], fn, actorID, metadata)
	}
}

func (n *Notifier) dispatch(ctx context.Context, name string, fn RefreshFunc, actorID uuid.UUID, metadata map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			n.logger.Error("schema notifier subscriber panicked", nil, "subscriber", name, "panic", rec)
		}
	}()
	fn(ctx, actorID, metadata)
}
