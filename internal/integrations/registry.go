// internal/integrations/registry.go
package integrations

import (
	"fmt"
	"sort"
	"sync"
)

var (
	regMu    sync.RWMutex
	registry = map[string]Factory{}
)

// Register wołane z init() pakietu integracji. Podwójna nazwa to błąd programisty.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if f == nil {
		panic(fmt.Sprintf("integrations: pusta fabryka %q", name))
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("integrations: %q zarejestrowana dwa razy", name))
	}
	registry[name] = f
}

func Get(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Names – posortowane nazwy zarejestrowanych integracji.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
