package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Schema)
	registryMu sync.RWMutex
)

// Register adds a schema to the registry.
// Panics if the schema is invalid or its domain is already registered.
func Register(s Schema) {
	if err := s.Validate(); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[s.Domain]; exists {
		panic(fmt.Sprintf("schema already registered: %s", s.Domain))
	}

	// Copy fields so later mutation of the caller's slice can't leak in
	s.Fields = append([]Field(nil), s.Fields...)
	registry[s.Domain] = s
}

// Describe returns the schema for a domain.
func Describe(domain string) (Schema, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	s, ok := registry[domain]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	s.Fields = append([]Field(nil), s.Fields...)
	return s, nil
}

// All returns all registered schemas sorted by domain.
func All() []Schema {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Schema, 0, len(registry))
	for _, s := range registry {
		s.Fields = append([]Field(nil), s.Fields...)
		result = append(result, s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Domain < result[j].Domain
	})

	return result
}

// Domains returns all registered domain names, sorted.
func Domains() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	domains := make([]string, 0, len(registry))
	for d := range registry {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// SchemaCount returns the number of registered schemas.
func SchemaCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered schemas.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Schema)
}
