package backend

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Auto picks the backend registered as the default.
const Auto = "auto"

// Factory loads a backend for opts.
type Factory func(ctx context.Context, opts Options) (*Loaded, error)

var (
	registryMu  sync.RWMutex
	registry    = map[string]Factory{}
	defaultName string
)

// Register makes a factory available under name. The first registration
// becomes the Auto default. Registering the same name twice panics.
func Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	registry[name] = f
	if defaultName == "" {
		defaultName = name
	}
}

// Names lists registered backends in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

// Normalize resolves a user supplied backend name to a registered one.
func Normalize(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	defer registryMu.RUnlock()
	if n == "" || n == Auto {
		if defaultName == "" {
			return "", fmt.Errorf("%w: none registered", ErrUnknown)
		}
		return defaultName, nil
	}
	if _, ok := registry[n]; !ok {
		return "", fmt.Errorf("%w %q (expected auto or one of %s)", ErrUnknown, n, strings.Join(namesLocked(), ", "))
	}
	return n, nil
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Open loads the named backend.
func Open(ctx context.Context, name string, opts Options) (*Loaded, error) {
	resolved, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	f := registry[resolved]
	registryMu.RUnlock()

	loaded, err := f(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", resolved, err)
	}
	if loaded == nil || loaded.Backend == nil || loaded.Tokenizer == nil {
		return nil, fmt.Errorf("open %s backend: factory returned an incomplete result", resolved)
	}
	return loaded, nil
}
