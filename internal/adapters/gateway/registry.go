// Package gateway contains the settlement provider adapters, their webhook
// parsers and the registry that routes payments to them.
package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/DanielPopoola/payment-orchestrator/internal/core/ports"
)

// Registry resolves adapters by name and payment method, and webhook parsers by provider.
type Registry struct {
	mu             sync.RWMutex
	adapters       map[string]ports.GatewayAdapter
	parsers        map[string]ports.WebhookParser
	routes         map[domain.PaymentMethod]string
	defaultAdapter string
}

var _ ports.GatewayRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]ports.GatewayAdapter),
		parsers:  make(map[string]ports.WebhookParser),
		routes:   make(map[domain.PaymentMethod]string),
	}
}

// Register adds an adapter and, when parser is non-nil, its webhook parser.
// The first adapter registered becomes the default route.
func (r *Registry) Register(adapter ports.GatewayAdapter, parser ports.WebhookParser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	r.adapters[name] = adapter
	if parser != nil {
		r.parsers[parser.Provider()] = parser
	}
	if r.defaultAdapter == "" {
		r.defaultAdapter = name
	}
}

// Route sends payments of the given method to the named adapter.
func (r *Registry) Route(method domain.PaymentMethod, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !method.IsValid() {
		return fmt.Errorf("unknown payment method %q", method)
	}
	if _, ok := r.adapters[name]; !ok {
		return fmt.Errorf("route %s: adapter %q not registered", method, name)
	}
	r.routes[method] = name
	return nil
}

func (r *Registry) Adapter(name string) (ports.GatewayAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, domain.NewNotFoundError("gateway", name)
	}
	return adapter, nil
}

func (r *Registry) ForMethod(method domain.PaymentMethod) (ports.GatewayAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.routes[method]
	if !ok {
		name = r.defaultAdapter
	}
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("no gateway available for payment method %s", method))
	}
	return adapter, nil
}

func (r *Registry) WebhookParser(provider string) (ports.WebhookParser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.parsers[provider]
	if !ok {
		return nil, domain.NewNotFoundError("webhook provider", provider)
	}
	return parser, nil
}

// Names lists the registered adapters.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
