package enterprise

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MockDirectory is an in-memory Directory and Browser used by tests and
// by the development server when no LDAP endpoint is reachable.
type MockDirectory struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewMockDirectory seeds an in-memory directory
func NewMockDirectory(agents ...Agent) *MockDirectory {
	d := &MockDirectory{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		d.agents[a.UserID] = a
	}
	return d
}

// Add inserts or replaces an agent record
func (d *MockDirectory) Add(a Agent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[a.UserID] = a
}

// Remove deletes an agent record, simulating a directory purge
func (d *MockDirectory) Remove(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, userID)
}

// Lookup implements Directory
func (d *MockDirectory) Lookup(_ context.Context, name string) (Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	agent, ok := d.agents[name]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return agent, nil
}

// Search implements Browser with prefix matching on surname and given name
func (d *MockDirectory) Search(_ context.Context, filter SearchFilter) ([]Agent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	max := filter.Max
	if max <= 0 {
		max = 25
	}

	var out []Agent
	for _, a := range d.agents {
		if filter.Surname != "" && !strings.HasPrefix(strings.ToLower(a.Surname), strings.ToLower(filter.Surname)) {
			continue
		}
		if filter.GivenName != "" && !strings.HasPrefix(strings.ToLower(a.GivenName), strings.ToLower(filter.GivenName)) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}
