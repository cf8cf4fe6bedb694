package store

import (
	"fmt"

	"github.com/stackDawg/skylark2/internal/domain"
)

// PilotPatch is a partial update. Nil fields are left untouched; set
// ClearCurrentMission to drop the reference. ExpectVersion, when set, makes
// the update fail with ErrVersionConflict if the stored record moved on.
type PilotPatch struct {
	Status              *domain.PilotStatus
	Location            *string
	CurrentMission      *string
	ClearCurrentMission bool
	AvailableFrom       *domain.Date
	ExpectVersion       *int64
}

func (p PilotPatch) Apply(rec domain.Pilot) (domain.Pilot, error) {
	if err := checkVersion("pilot", rec.ID, rec.Version, p.ExpectVersion); err != nil {
		return rec, err
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Location != nil {
		rec.Location = *p.Location
	}
	if p.ClearCurrentMission {
		rec.CurrentMission = nil
	} else if p.CurrentMission != nil {
		rec.CurrentMission = domain.RefOf(*p.CurrentMission)
	}
	if p.AvailableFrom != nil {
		rec.AvailableFrom = *p.AvailableFrom
	}
	rec.Version++
	return rec, nil
}

type DronePatch struct {
	Status              *domain.DroneStatus
	Location            *string
	CurrentMission      *string
	ClearCurrentMission bool
	MaintenanceDue      *domain.Date
	ExpectVersion       *int64
}

func (p DronePatch) Apply(rec domain.Drone) (domain.Drone, error) {
	if err := checkVersion("drone", rec.ID, rec.Version, p.ExpectVersion); err != nil {
		return rec, err
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Location != nil {
		rec.Location = *p.Location
	}
	if p.ClearCurrentMission {
		rec.CurrentMission = nil
	} else if p.CurrentMission != nil {
		rec.CurrentMission = domain.RefOf(*p.CurrentMission)
	}
	if p.MaintenanceDue != nil {
		rec.MaintenanceDue = *p.MaintenanceDue
	}
	rec.Version++
	return rec, nil
}

type MissionPatch struct {
	Status             *domain.MissionStatus
	Priority           *domain.Priority
	AssignedPilot      *string
	ClearAssignedPilot bool
	AssignedDrone      *string
	ClearAssignedDrone bool
	ExpectVersion      *int64
}

func (p MissionPatch) Apply(rec domain.Mission) (domain.Mission, error) {
	if err := checkVersion("mission", rec.ID, rec.Version, p.ExpectVersion); err != nil {
		return rec, err
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Priority != nil {
		rec.Priority = *p.Priority
	}
	if p.ClearAssignedPilot {
		rec.AssignedPilot = nil
	} else if p.AssignedPilot != nil {
		rec.AssignedPilot = domain.RefOf(*p.AssignedPilot)
	}
	if p.ClearAssignedDrone {
		rec.AssignedDrone = nil
	} else if p.AssignedDrone != nil {
		rec.AssignedDrone = domain.RefOf(*p.AssignedDrone)
	}
	rec.Version++
	return rec, nil
}

func checkVersion(entity, id string, have int64, want *int64) error {
	if want != nil && *want != have {
		return fmt.Errorf("%s %s at version %d, expected %d: %w", entity, id, have, *want, ErrVersionConflict)
	}
	return nil
}

// Version returns a pointer for ExpectVersion fields.
func Version(v int64) *int64 { return &v }

// ValidatePilot, ValidateDrone and ValidateMission run at the create boundary.
func ValidatePilot(p domain.Pilot) error {
	if p.ID == "" {
		return fmt.Errorf("pilot id is required: %w", ErrInvalid)
	}
	if _, err := domain.ParsePilotStatus(string(p.Status)); err != nil {
		return fmt.Errorf("pilot %s: %v: %w", p.ID, err, ErrInvalid)
	}
	return nil
}

func ValidateDrone(d domain.Drone) error {
	if d.ID == "" {
		return fmt.Errorf("drone id is required: %w", ErrInvalid)
	}
	if _, err := domain.ParseDroneStatus(string(d.Status)); err != nil {
		return fmt.Errorf("drone %s: %v: %w", d.ID, err, ErrInvalid)
	}
	return nil
}

func ValidateMission(m domain.Mission) error {
	if m.ID == "" {
		return fmt.Errorf("mission id is required: %w", ErrInvalid)
	}
	if m.Start.IsZero() || m.End.IsZero() {
		return fmt.Errorf("mission %s: start and end dates are required: %w", m.ID, ErrInvalid)
	}
	if m.End.Compare(m.Start) < 0 {
		return fmt.Errorf("mission %s: end %s before start %s: %w", m.ID, m.End, m.Start, ErrInvalid)
	}
	if _, err := domain.ParsePriority(string(m.Priority)); err != nil {
		return fmt.Errorf("mission %s: %v: %w", m.ID, err, ErrInvalid)
	}
	if _, err := domain.ParseMissionStatus(string(m.Status)); err != nil {
		return fmt.Errorf("mission %s: %v: %w", m.ID, err, ErrInvalid)
	}
	return nil
}
