// Package store keeps composed and uploaded circuits in memory, each
// with a scratch directory for simulator artifacts.
package store

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MaxCircuits bounds the number of circuits kept at once. When the
// limit is reached the oldest circuit is evicted.
const MaxCircuits = 100

// Circuit is one stored netlist plus everything produced from it.
type Circuit struct {
	ID        string
	Name      string
	Netlist   string
	Ports     map[string]string
	Results   map[string]any
	WorkDir   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a bounded in-memory circuit registry. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	circuits map[string]*Circuit
	order    []string // insertion order, oldest first
	logger   *slog.Logger
}

// New returns an empty store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		circuits: make(map[string]*Circuit),
		logger:   logger,
	}
}

// Create registers a new circuit and allocates its scratch directory.
func (s *Store) Create(name, netlist string) (*Circuit, error) {
	id := uuid.NewString()[:8]

	dir, err := os.MkdirTemp("", "spicebridge-"+id+"-")
	if err != nil {
		return nil, errors.Wrap(err, "creating circuit work dir")
	}

	now := time.Now()
	c := &Circuit{
		ID:        id,
		Name:      name,
		Netlist:   netlist,
		Ports:     make(map[string]string),
		Results:   make(map[string]any),
		WorkDir:   dir,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) >= MaxCircuits {
		oldest := s.order[0]
		s.order = s.order[1:]
		if victim, ok := s.circuits[oldest]; ok {
			delete(s.circuits, oldest)
			os.RemoveAll(victim.WorkDir)
			s.logger.Warn("circuit store full, evicted oldest",
				"evicted", oldest, "limit", MaxCircuits)
		}
	}

	s.circuits[id] = c
	s.order = append(s.order, id)
	return c, nil
}

// Get returns the circuit with the given ID.
func (s *Store) Get(id string) (*Circuit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[id]
	if !ok {
		return nil, errors.Errorf("circuit %s not found", id)
	}
	return c, nil
}

// UpdateNetlist replaces a circuit's netlist text.
func (s *Store) UpdateNetlist(id, netlist string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[id]
	if !ok {
		return errors.Errorf("circuit %s not found", id)
	}
	c.Netlist = netlist
	c.UpdatedAt = time.Now()
	return nil
}

// UpdateResults merges simulation results into a circuit.
func (s *Store) UpdateResults(id string, results map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[id]
	if !ok {
		return errors.Errorf("circuit %s not found", id)
	}
	for k, v := range results {
		c.Results[k] = v
	}
	c.UpdatedAt = time.Now()
	return nil
}

// SetPorts replaces a circuit's role-to-node port map.
func (s *Store) SetPorts(id string, ports map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[id]
	if !ok {
		return errors.Errorf("circuit %s not found", id)
	}
	c.Ports = make(map[string]string, len(ports))
	for k, v := range ports {
		c.Ports[k] = v
	}
	c.UpdatedAt = time.Now()
	return nil
}

// GetPorts returns a copy of a circuit's port map.
func (s *Store) GetPorts(id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[id]
	if !ok {
		return nil, errors.Errorf("circuit %s not found", id)
	}
	out := make(map[string]string, len(c.Ports))
	for k, v := range c.Ports {
		out[k] = v
	}
	return out, nil
}

// ListAll returns all stored circuits, oldest first.
func (s *Store) ListAll() []*Circuit {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Circuit, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.circuits[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Delete removes a circuit and its scratch directory.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.circuits[id]
	if !ok {
		return errors.Errorf("circuit %s not found", id)
	}
	delete(s.circuits, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return os.RemoveAll(c.WorkDir)
}

// CleanupAll removes every circuit and scratch directory.
func (s *Store) CleanupAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.circuits {
		os.RemoveAll(c.WorkDir)
	}
	s.circuits = make(map[string]*Circuit)
	s.order = nil
}
