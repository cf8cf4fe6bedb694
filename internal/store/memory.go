package store

import (
	"context"
	"sync"

	"github.com/stackDawg/skylark2/internal/domain"
)

// Memory is a mutex guarded in-process store. Records are copied on the way in
// and out so callers never share slices with the store.
type Memory struct {
	mu       sync.RWMutex
	pilots   map[string]domain.Pilot
	drones   map[string]domain.Drone
	missions map[string]domain.Mission
	order    struct{ pilots, drones, missions []string }
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		pilots:   make(map[string]domain.Pilot),
		drones:   make(map[string]domain.Drone),
		missions: make(map[string]domain.Mission),
	}
}

func (m *Memory) CreatePilot(_ context.Context, p domain.Pilot) (domain.Pilot, error) {
	if err := ValidatePilot(p); err != nil {
		return domain.Pilot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pilots[p.ID]; ok {
		return domain.Pilot{}, duplicate("pilot", p.ID)
	}
	p = clonePilot(p)
	p.Version = 1
	m.pilots[p.ID] = p
	m.order.pilots = append(m.order.pilots, p.ID)
	return clonePilot(p), nil
}

func (m *Memory) CreateDrone(_ context.Context, d domain.Drone) (domain.Drone, error) {
	if err := ValidateDrone(d); err != nil {
		return domain.Drone{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drones[d.ID]; ok {
		return domain.Drone{}, duplicate("drone", d.ID)
	}
	d = cloneDrone(d)
	d.Version = 1
	m.drones[d.ID] = d
	m.order.drones = append(m.order.drones, d.ID)
	return cloneDrone(d), nil
}

func (m *Memory) CreateMission(_ context.Context, ms domain.Mission) (domain.Mission, error) {
	if err := ValidateMission(ms); err != nil {
		return domain.Mission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.missions[ms.ID]; ok {
		return domain.Mission{}, duplicate("mission", ms.ID)
	}
	ms = cloneMission(ms)
	ms.Version = 1
	m.missions[ms.ID] = ms
	m.order.missions = append(m.order.missions, ms.ID)
	return cloneMission(ms), nil
}

func (m *Memory) ListPilots(ctx context.Context, f PilotFilter) ([]domain.Pilot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Pilot, 0, len(m.order.pilots))
	for _, id := range m.order.pilots {
		if p := m.pilots[id]; f.Match(p) {
			res = append(res, clonePilot(p))
		}
	}
	return res, nil
}

func (m *Memory) ListDrones(ctx context.Context, f DroneFilter) ([]domain.Drone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Drone, 0, len(m.order.drones))
	for _, id := range m.order.drones {
		if d := m.drones[id]; f.Match(d) {
			res = append(res, cloneDrone(d))
		}
	}
	return res, nil
}

func (m *Memory) ListMissions(ctx context.Context, f MissionFilter) ([]domain.Mission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Mission, 0, len(m.order.missions))
	for _, id := range m.order.missions {
		if ms := m.missions[id]; f.Match(ms) {
			res = append(res, cloneMission(ms))
		}
	}
	return res, nil
}

func (m *Memory) GetPilot(_ context.Context, id string) (domain.Pilot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pilots[id]
	if !ok {
		return domain.Pilot{}, notFound("pilot", id)
	}
	return clonePilot(p), nil
}

func (m *Memory) GetDrone(_ context.Context, id string) (domain.Drone, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drones[id]
	if !ok {
		return domain.Drone{}, notFound("drone", id)
	}
	return cloneDrone(d), nil
}

func (m *Memory) GetMission(_ context.Context, id string) (domain.Mission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.missions[id]
	if !ok {
		return domain.Mission{}, notFound("mission", id)
	}
	return cloneMission(ms), nil
}

func (m *Memory) UpdatePilot(_ context.Context, id string, patch PilotPatch) (domain.Pilot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pilots[id]
	if !ok {
		return domain.Pilot{}, notFound("pilot", id)
	}
	next, err := patch.Apply(clonePilot(cur))
	if err != nil {
		return domain.Pilot{}, err
	}
	m.pilots[id] = next
	return clonePilot(next), nil
}

func (m *Memory) UpdateDrone(_ context.Context, id string, patch DronePatch) (domain.Drone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.drones[id]
	if !ok {
		return domain.Drone{}, notFound("drone", id)
	}
	next, err := patch.Apply(cloneDrone(cur))
	if err != nil {
		return domain.Drone{}, err
	}
	m.drones[id] = next
	return cloneDrone(next), nil
}

func (m *Memory) UpdateMission(_ context.Context, id string, patch MissionPatch) (domain.Mission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.missions[id]
	if !ok {
		return domain.Mission{}, notFound("mission", id)
	}
	next, err := patch.Apply(cloneMission(cur))
	if err != nil {
		return domain.Mission{}, err
	}
	m.missions[id] = next
	return cloneMission(next), nil
}

func duplicate(entity, id string) error {
	return &duplicateError{entity: entity, id: id}
}

type duplicateError struct{ entity, id string }

func (e *duplicateError) Error() string        { return e.entity + " " + e.id + " already exists" }
func (e *duplicateError) Is(target error) bool { return target == ErrDuplicate }

// Duplicate builds the error backends return for an id collision.
func Duplicate(entity, id string) error { return duplicate(entity, id) }

func clonePilot(p domain.Pilot) domain.Pilot {
	p.Skills = append([]string(nil), p.Skills...)
	p.Certifications = append([]string(nil), p.Certifications...)
	p.CurrentMission = cloneRef(p.CurrentMission)
	return p
}

func cloneDrone(d domain.Drone) domain.Drone {
	d.Capabilities = append([]string(nil), d.Capabilities...)
	d.CurrentMission = cloneRef(d.CurrentMission)
	return d
}

func cloneMission(m domain.Mission) domain.Mission {
	m.RequiredSkills = append([]string(nil), m.RequiredSkills...)
	m.RequiredCertifications = append([]string(nil), m.RequiredCertifications...)
	m.AssignedPilot = cloneRef(m.AssignedPilot)
	m.AssignedDrone = cloneRef(m.AssignedDrone)
	return m
}

func cloneRef(r *string) *string {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}
