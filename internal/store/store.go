// Package store defines the record store the engine reads fleet state from and
// writes confirmed changes to, plus an in-memory implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stackDawg/skylark2/internal/domain"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrDuplicate       = errors.New("duplicate id")
	ErrInvalid         = errors.New("invalid record")
)

// NotFoundError names the missing record. It matches ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NotFound builds the error backends return for a missing record.
func NotFound(entity, id string) error { return notFound(entity, id) }

// Store is the read/update surface the engine needs. Listings return records
// in insertion order so scans are reproducible.
type Store interface {
	ListPilots(ctx context.Context, f PilotFilter) ([]domain.Pilot, error)
	ListDrones(ctx context.Context, f DroneFilter) ([]domain.Drone, error)
	ListMissions(ctx context.Context, f MissionFilter) ([]domain.Mission, error)
	GetPilot(ctx context.Context, id string) (domain.Pilot, error)
	GetDrone(ctx context.Context, id string) (domain.Drone, error)
	GetMission(ctx context.Context, id string) (domain.Mission, error)
	UpdatePilot(ctx context.Context, id string, p PilotPatch) (domain.Pilot, error)
	UpdateDrone(ctx context.Context, id string, p DronePatch) (domain.Drone, error)
	UpdateMission(ctx context.Context, id string, p MissionPatch) (domain.Mission, error)
}

// Seeder creates records at store initialization.
type Seeder interface {
	CreatePilot(ctx context.Context, p domain.Pilot) (domain.Pilot, error)
	CreateDrone(ctx context.Context, d domain.Drone) (domain.Drone, error)
	CreateMission(ctx context.Context, m domain.Mission) (domain.Mission, error)
}

// Backend is a store that can also be seeded.
type Backend interface {
	Store
	Seeder
}

type PilotFilter struct {
	Skill         string
	Certification string
	Location      string
	Status        domain.PilotStatus
}

func (f PilotFilter) Match(p domain.Pilot) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Location != "" && !strings.EqualFold(strings.TrimSpace(f.Location), strings.TrimSpace(p.Location)) {
		return false
	}
	if f.Skill != "" && !hasToken(p.Skills, f.Skill) {
		return false
	}
	if f.Certification != "" && !hasToken(p.Certifications, f.Certification) {
		return false
	}
	return true
}

type DroneFilter struct {
	Capability string
	Location   string
	Status     domain.DroneStatus
}

func (f DroneFilter) Match(d domain.Drone) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Location != "" && !strings.EqualFold(strings.TrimSpace(f.Location), strings.TrimSpace(d.Location)) {
		return false
	}
	if f.Capability != "" && !hasToken(d.Capabilities, f.Capability) {
		return false
	}
	return true
}

type MissionFilter struct {
	Status   domain.MissionStatus
	Priority domain.Priority
	PilotID  string
	DroneID  string
	// ActiveOnly keeps Planned and Active missions.
	ActiveOnly bool
}

func (f MissionFilter) Match(m domain.Mission) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.Priority != "" && m.Priority != f.Priority {
		return false
	}
	if f.PilotID != "" && !domain.RefEquals(m.AssignedPilot, f.PilotID) {
		return false
	}
	if f.DroneID != "" && !domain.RefEquals(m.AssignedDrone, f.DroneID) {
		return false
	}
	if f.ActiveOnly && !m.Participating() {
		return false
	}
	return true
}

func hasToken(tokens []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, t := range tokens {
		if strings.EqualFold(strings.TrimSpace(t), want) {
			return true
		}
	}
	return false
}
