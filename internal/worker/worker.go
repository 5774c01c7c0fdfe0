// Package worker defines the data-source worker contract, the registry that
// resolves workers for dispatch, and the executor that fans assignments out
// concurrently under circuit-breaker and timeout control.
package worker

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/roamline/trip-cli/internal/model"
)

// Worker is the contract every data source implements. Plan is pure: it reads
// the intent and returns an assignment without side effects. Execute performs
// the external calls and never returns an error — all failure modes are
// encoded in the returned output's Status and Error fields.
type Worker interface {
	ID() string
	Provider() string
	Plan(intent model.SessionIntent) model.WorkerAssignment
	Execute(ctx context.Context, assignment model.WorkerAssignment) model.WorkerOutput
}

// Factory lazily constructs a worker on first resolution.
type Factory func() (Worker, error)

// Registry maps worker identifiers to instances or lazily invoked factories.
// Factories are instantiated once and memoized.
type Registry struct {
	mu        sync.Mutex
	workers   map[string]Worker
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers:   make(map[string]Worker),
		factories: make(map[string]Factory),
	}
}

// Register adds a worker instance. Registering an identifier twice is an
// error.
func (r *Registry) Register(w Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := w.ID()
	if r.registered(id) {
		return eris.Errorf("worker: duplicate registration for %q", id)
	}
	r.workers[id] = w
	return nil
}

// RegisterFactory adds a lazy worker constructor under id. The factory runs
// on first Get and its result is memoized.
func (r *Registry) RegisterFactory(id string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered(id) {
		return eris.Errorf("worker: duplicate registration for %q", id)
	}
	r.factories[id] = factory
	return nil
}

func (r *Registry) registered(id string) bool {
	if _, ok := r.workers[id]; ok {
		return true
	}
	_, ok := r.factories[id]
	return ok
}

// Get resolves a worker by identifier, invoking and memoizing its factory if
// needed. Unknown identifiers return nil; the executor converts that into an
// error output rather than failing the run.
func (r *Registry) Get(id string) (Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[id]; ok {
		return w, nil
	}
	factory, ok := r.factories[id]
	if !ok {
		return nil, nil
	}

	w, err := factory()
	if err != nil {
		return nil, eris.Wrapf(err, "worker: construct %q", id)
	}
	r.workers[id] = w
	delete(r.factories, id)
	return w, nil
}

// IDs returns all registered identifiers, resolved or not.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.workers)+len(r.factories))
	for id := range r.workers {
		ids = append(ids, id)
	}
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}
