package llm

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultProvider is the provider selected when none is named.
const DefaultProvider = "llama.cpp"

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Provider)
)

// Register makes p available under p.Name(). Registering the same name twice
// replaces the earlier provider.
func Register(p Provider) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Name()] = p
}

// Lookup returns the provider registered under name. An empty name selects
// DefaultProvider.
func Lookup(name string) (Provider, error) {
	if name == "" {
		name = DefaultProvider
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not compiled in (available: %v)", ErrProviderUnavailable, name, namesLocked())
	}
	return p, nil
}

// Providers lists registered provider names in sorted order.
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
