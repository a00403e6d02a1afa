package strategy

import (
	"sort"
	"sync"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// Registry manages all available strategies and their enabled state.
type Registry interface {
	Register(strategy Strategy) error
	Get(id string) (Strategy, error)
	// List returns descriptors in registration order. The slice is a
	// snapshot; concurrent enable/disable cannot corrupt an enumeration.
	List() []types.StrategyDescriptor
	SetEnabled(id string, enabled bool) error
	IsEnabled(id string) bool
	// Enabled returns the enabled strategies in registration order.
	Enabled() []Strategy
	// RegistrationIndex returns the position at which the strategy was
	// registered, or -1 if unknown. Later registrations win confidence ties.
	RegistrationIndex(id string) int
}

type registryEntry struct {
	strategy Strategy
	enabled  bool
	order    int
}

// RegistryV1 manages all available strategies. A single mutex guards both
// the map and the enabled flags because operator toggles and the poll loop
// touch them concurrently.
type RegistryV1 struct {
	entries map[string]*registryEntry
	next    int
	mu      sync.RWMutex
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *RegistryV1 {
	return &RegistryV1{
		entries: make(map[string]*registryEntry),
	}
}

// Register adds a strategy to the registry. Strategies start disabled.
func (r *RegistryV1) Register(strategy Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := strategy.ID()
	if _, exists := r.entries[id]; exists {
		return errors.Newf(errors.ErrCodeDuplicateStrategy, "strategy with id %s already registered", id)
	}

	r.entries[id] = &registryEntry{
		strategy: strategy,
		enabled:  false,
		order:    r.next,
	}
	r.next++

	return nil
}

// Get retrieves a strategy by id.
func (r *RegistryV1) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy with id %s not found", id)
	}

	return entry.strategy, nil
}

// List implements Registry.
func (r *RegistryV1) List() []types.StrategyDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]types.StrategyDescriptor, 0, len(r.entries))
	for _, entry := range r.sortedLocked() {
		descriptors = append(descriptors, types.StrategyDescriptor{
			ID:          entry.strategy.ID(),
			Name:        entry.strategy.Name(),
			Description: entry.strategy.Description(),
			Enabled:     entry.enabled,
		})
	}

	return descriptors
}

// SetEnabled toggles a strategy's enabled flag.
func (r *RegistryV1) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[id]
	if !exists {
		return errors.Newf(errors.ErrCodeStrategyNotFound, "strategy with id %s not found", id)
	}

	entry.enabled = enabled

	return nil
}

// IsEnabled reports whether the strategy exists and is enabled.
func (r *RegistryV1) IsEnabled(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]

	return exists && entry.enabled
}

// Enabled implements Registry.
func (r *RegistryV1) Enabled() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []Strategy

	for _, entry := range r.sortedLocked() {
		if entry.enabled {
			enabled = append(enabled, entry.strategy)
		}
	}

	return enabled
}

// RegistrationIndex implements Registry.
func (r *RegistryV1) RegistrationIndex(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[id]
	if !exists {
		return -1
	}

	return entry.order
}

// sortedLocked returns entries in registration order. Callers must hold
// at least a read lock.
func (r *RegistryV1) sortedLocked() []*registryEntry {
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	return entries
}

// Verify RegistryV1 implements the Registry interface.
var _ Registry = (*RegistryV1)(nil)
