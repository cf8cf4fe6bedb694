package server

import (
	"context"
	"sync"

	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/store"
)

// planRegistry keeps proposed reassignment plans for the lifetime of the
// process so confirmations can refer to them by id.
type planRegistry struct {
	mu    sync.Mutex
	plans map[string]*engine.Plan
}

func newPlanRegistry() *planRegistry {
	return &planRegistry{plans: map[string]*engine.Plan{}}
}

func (r *planRegistry) put(p engine.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = &p
}

func (r *planRegistry) get(id string) (engine.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return engine.Plan{}, store.NotFound("plan", id)
	}
	return *p, nil
}

// confirm runs the choice against the stored plan. Confirmations of one
// registry are serialized so a plan's executions never race.
func (r *planRegistry) confirm(ctx context.Context, e engine.Engine, id string, c engine.Choice) (engine.AssignResult, engine.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return engine.AssignResult{}, engine.Plan{}, store.NotFound("plan", id)
	}
	res, err := e.ConfirmReplacement(ctx, p, c)
	return res, *p, err
}
