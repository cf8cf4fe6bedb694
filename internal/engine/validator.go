package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/store"
)

// Validation is the outcome of a pre-commit assignment check. Valid is false
// iff an error-severity conflict was found; warnings are advisory.
type Validation struct {
	Kind       domain.ResourceKind `json:"kind"`
	ResourceID string              `json:"resource_id"`
	MissionID  string              `json:"mission_id"`
	Valid      bool                `json:"valid"`
	Conflicts  []domain.Conflict   `json:"conflicts"`
}

// Warnings returns the warning-severity conflicts.
func (v Validation) Warnings() []domain.Conflict {
	var out []domain.Conflict
	for _, c := range v.Conflicts {
		if c.Severity == domain.SeverityWarning {
			out = append(out, c)
		}
	}
	return out
}

// NotFound reports whether the check stopped on a missing pilot, drone or mission.
func (v Validation) NotFound() bool {
	for _, c := range v.Conflicts {
		if c.Kind == domain.ConflictNotFound {
			return true
		}
	}
	return false
}

func newValidation(kind domain.ResourceKind, resourceID, missionID string, conflicts []domain.Conflict) Validation {
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}
	valid := true
	for _, c := range conflicts {
		if c.Severity == domain.SeverityError {
			valid = false
			break
		}
	}
	return Validation{Kind: kind, ResourceID: resourceID, MissionID: missionID, Valid: valid, Conflicts: conflicts}
}

// ValidateAssignment decides whether assigning the resource to the mission is
// permitted now. Missing records come back as an invalid result carrying one
// not_found conflict; only store failures are returned as errors.
func (e Engine) ValidateAssignment(ctx context.Context, kind domain.ResourceKind, resourceID, missionID string) (Validation, error) {
	v, _, err := e.validate(ctx, kind, resourceID, missionID)
	return v, err
}

// readSet holds the records a validation was computed from. Assign commits
// against their versions.
type readSet struct {
	pilot   domain.Pilot
	drone   domain.Drone
	mission domain.Mission
}

func (e Engine) validate(ctx context.Context, kind domain.ResourceKind, resourceID, missionID string) (Validation, readSet, error) {
	var (
		v   Validation
		rs  readSet
		err error
	)
	switch kind {
	case domain.ResourcePilot:
		v, rs, err = e.validatePilot(ctx, resourceID, missionID)
	case domain.ResourceDrone:
		v, rs, err = e.validateDrone(ctx, resourceID, missionID)
	default:
		return Validation{}, rs, fmt.Errorf("resource kind %q: %w", kind, ErrInvalidRequest)
	}
	if err != nil {
		return Validation{}, rs, err
	}
	e.metrics().ValidationDone(string(kind), v.Valid)
	e.log().Debug("assignment validated",
		zap.String("kind", string(kind)), zap.String("resource_id", resourceID),
		zap.String("mission_id", missionID), zap.Bool("valid", v.Valid), zap.Int("conflicts", len(v.Conflicts)))
	return v, rs, nil
}

func (e Engine) validatePilot(ctx context.Context, pilotID, missionID string) (Validation, readSet, error) {
	var rs readSet
	p, err := e.Store.GetPilot(ctx, pilotID)
	if IsNotFound(err) {
		return newValidation(domain.ResourcePilot, pilotID, missionID, []domain.Conflict{notFoundConflict("pilot", pilotID, nil)}), rs, nil
	}
	if err != nil {
		return Validation{}, rs, storeErr("get pilot", err)
	}
	m, err := e.Store.GetMission(ctx, missionID)
	if IsNotFound(err) {
		return newValidation(domain.ResourcePilot, pilotID, missionID, []domain.Conflict{notFoundConflict("mission", missionID, domain.RefOf(missionID))}), rs, nil
	}
	if err != nil {
		return Validation{}, rs, storeErr("get mission", err)
	}
	others, err := e.Store.ListMissions(ctx, store.MissionFilter{PilotID: pilotID, ActiveOnly: true})
	if err != nil {
		return Validation{}, rs, storeErr("list missions", err)
	}
	if others, err = e.withCurrent(ctx, others, p.CurrentMission, m.ID); err != nil {
		return Validation{}, rs, err
	}
	rs.pilot, rs.mission = p, m
	return newValidation(domain.ResourcePilot, pilotID, missionID, CheckPilot(p, m, others)), rs, nil
}

func (e Engine) validateDrone(ctx context.Context, droneID, missionID string) (Validation, readSet, error) {
	var rs readSet
	d, err := e.Store.GetDrone(ctx, droneID)
	if IsNotFound(err) {
		return newValidation(domain.ResourceDrone, droneID, missionID, []domain.Conflict{notFoundConflict("drone", droneID, nil)}), rs, nil
	}
	if err != nil {
		return Validation{}, rs, storeErr("get drone", err)
	}
	m, err := e.Store.GetMission(ctx, missionID)
	if IsNotFound(err) {
		return newValidation(domain.ResourceDrone, droneID, missionID, []domain.Conflict{notFoundConflict("mission", missionID, domain.RefOf(missionID))}), rs, nil
	}
	if err != nil {
		return Validation{}, rs, storeErr("get mission", err)
	}
	others, err := e.Store.ListMissions(ctx, store.MissionFilter{DroneID: droneID, ActiveOnly: true})
	if err != nil {
		return Validation{}, rs, storeErr("list missions", err)
	}
	if others, err = e.withCurrent(ctx, others, d.CurrentMission, m.ID); err != nil {
		return Validation{}, rs, err
	}
	rs.drone, rs.mission = d, m
	return newValidation(domain.ResourceDrone, droneID, missionID, CheckDrone(d, m, others)), rs, nil
}

// withCurrent adds the mission a resource points at when the listing lacks
// it. An assignment in flight claims the resource before the mission points
// back, so the claim alone must count as holding that mission.
func (e Engine) withCurrent(ctx context.Context, missions []domain.Mission, current *string, targetID string) ([]domain.Mission, error) {
	id := domain.RefValue(current)
	if id == "" || id == targetID {
		return missions, nil
	}
	for _, m := range missions {
		if m.ID == id {
			return missions, nil
		}
	}
	cm, err := e.Store.GetMission(ctx, id)
	if IsNotFound(err) {
		return missions, nil
	}
	if err != nil {
		return nil, storeErr("get mission", err)
	}
	return append(missions, cm), nil
}

// CheckPilot runs the pilot rules in order: status, skills, certifications,
// location, then double booking against each other participating mission the
// pilot holds, either as its assigned pilot or as its current mission.
func CheckPilot(p domain.Pilot, m domain.Mission, missions []domain.Mission) []domain.Conflict {
	var out []domain.Conflict
	if pilotUnavailable(p.Status) {
		out = append(out, unavailablePilot(p, m))
	}
	if missing := Missing(p.Skills, m.RequiredSkills); len(missing) > 0 {
		out = append(out, skillMismatch(p, m, missing))
	}
	if missing := Missing(p.Certifications, m.RequiredCertifications); len(missing) > 0 {
		out = append(out, certificationMismatch(p, m, missing))
	}
	if !SameLocation(p.Location, m.Location) {
		out = append(out, locationMismatch(domain.ResourcePilot, p.ID, p.Location, m))
	}
	for _, other := range missions {
		if other.ID == m.ID || !other.Participating() || !holds(other.AssignedPilot, p.CurrentMission, p.ID, other.ID) {
			continue
		}
		if missionsOverlap(m, other) {
			out = append(out, doubleBooking(domain.ResourcePilot, p.ID, m, other))
		}
	}
	return out
}

// CheckDrone mirrors CheckPilot: maintenance, location, double booking.
func CheckDrone(d domain.Drone, m domain.Mission, missions []domain.Mission) []domain.Conflict {
	var out []domain.Conflict
	if d.Status == domain.DroneMaintenance {
		out = append(out, maintenanceIssue(d, m))
	}
	if !SameLocation(d.Location, m.Location) {
		out = append(out, locationMismatch(domain.ResourceDrone, d.ID, d.Location, m))
	}
	for _, other := range missions {
		if other.ID == m.ID || !other.Participating() || !holds(other.AssignedDrone, d.CurrentMission, d.ID, other.ID) {
			continue
		}
		if missionsOverlap(m, other) {
			out = append(out, doubleBooking(domain.ResourceDrone, d.ID, m, other))
		}
	}
	return out
}

// holds reports whether a resource is on a mission: the mission names it, or
// it names the mission.
func holds(assigned, current *string, resourceID, missionID string) bool {
	return domain.RefEquals(assigned, resourceID) || domain.RefEquals(current, missionID)
}
