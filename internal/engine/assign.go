package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/store"
)

// ErrInvalidRequest marks malformed engine calls (unknown kind, missing ids).
var ErrInvalidRequest = errors.New("invalid request")

type AssignRequest struct {
	Kind       domain.ResourceKind
	ResourceID string
	MissionID  string
	// Force commits despite error-severity conflicts. A missing record can
	// never be forced.
	Force   bool
	ActorID string
}

// AssignResult reports what Assign did. Committed is false when validation
// blocked the change; the caller branches on Validation.
type AssignResult struct {
	Validation Validation     `json:"validation"`
	Committed  bool           `json:"committed"`
	Forced     bool           `json:"forced"`
	Mission    domain.Mission `json:"mission"`
	Released   *string        `json:"released,omitempty"`
}

// Assign validates and commits one assignment.
//
// The resource is claimed first, conditional on the version validation read,
// so a concurrent assignment from any process either fails that claim or sees
// it as a double booking. The mission update is conditional the same way. A
// failed step rolls back the steps before it.
func (e Engine) Assign(ctx context.Context, req AssignRequest) (AssignResult, error) {
	if req.Kind != domain.ResourcePilot && req.Kind != domain.ResourceDrone {
		return AssignResult{}, fmt.Errorf("resource kind %q: %w", req.Kind, ErrInvalidRequest)
	}
	if req.ResourceID == "" || req.MissionID == "" {
		return AssignResult{}, fmt.Errorf("resource and mission ids are required: %w", ErrInvalidRequest)
	}
	unlock := e.lock()
	defer unlock()

	v, rs, err := e.validate(ctx, req.Kind, req.ResourceID, req.MissionID)
	if err != nil {
		return AssignResult{}, err
	}
	res := AssignResult{Validation: v}
	if v.NotFound() || (!v.Valid && !req.Force) {
		e.log().Info("assignment blocked",
			zap.String("kind", string(req.Kind)), zap.String("resource_id", req.ResourceID),
			zap.String("mission_id", req.MissionID), zap.Int("conflicts", len(v.Conflicts)))
		return res, nil
	}
	res.Forced = !v.Valid
	m := rs.mission

	var u undo
	restore, err := e.occupy(ctx, req.Kind, rs, m.ID)
	if err != nil {
		return AssignResult{}, err
	}
	u.push(restore)

	patch := store.MissionPatch{ExpectVersion: store.Version(m.Version)}
	if req.Kind == domain.ResourcePilot {
		patch.AssignedPilot = domain.RefOf(req.ResourceID)
	} else {
		patch.AssignedDrone = domain.RefOf(req.ResourceID)
	}
	if res.Mission, err = e.Store.UpdateMission(ctx, m.ID, patch); err != nil {
		return AssignResult{}, e.rollback(ctx, u, storeErr("update mission", err))
	}
	u.push(e.restoreAssignment(m, res.Mission, req.Kind))

	if prev := domain.RefValue(m.AssignedTo(req.Kind)); prev != "" && prev != req.ResourceID {
		restore, err := e.release(ctx, req.Kind, prev, m.ID)
		if err != nil {
			return AssignResult{}, e.rollback(ctx, u, err)
		}
		if restore != nil {
			res.Released = domain.RefOf(prev)
		}
	}
	res.Committed = true

	if res.Released != nil {
		e.publishReleased(ctx, req.Kind, *res.Released, m.ID, req.ActorID)
	}
	e.metrics().AssignmentCommitted(string(req.Kind), res.Forced)
	e.log().Info("assignment committed",
		zap.String("kind", string(req.Kind)), zap.String("resource_id", req.ResourceID),
		zap.String("mission_id", m.ID), zap.Bool("forced", res.Forced))
	e.publish(ctx, events.AssignmentCommitted, "mission", m.ID, req.ActorID, events.EventPayload{
		"kind":        string(req.Kind),
		"resource_id": req.ResourceID,
		"forced":      res.Forced,
		"released":    domain.RefValue(res.Released),
	})
	return res, nil
}

// Unassign clears the mission's pilot or drone and releases the resource. A
// mission with nothing assigned is returned unchanged.
func (e Engine) Unassign(ctx context.Context, kind domain.ResourceKind, missionID, actorID string) (domain.Mission, error) {
	if kind != domain.ResourcePilot && kind != domain.ResourceDrone {
		return domain.Mission{}, fmt.Errorf("resource kind %q: %w", kind, ErrInvalidRequest)
	}
	unlock := e.lock()
	defer unlock()

	m, err := e.Store.GetMission(ctx, missionID)
	if err != nil {
		return domain.Mission{}, storeErr("get mission", err)
	}
	prev := domain.RefValue(m.AssignedTo(kind))
	if prev == "" {
		return m, nil
	}
	patch := store.MissionPatch{ExpectVersion: store.Version(m.Version)}
	if kind == domain.ResourcePilot {
		patch.ClearAssignedPilot = true
	} else {
		patch.ClearAssignedDrone = true
	}
	updated, err := e.Store.UpdateMission(ctx, m.ID, patch)
	if err != nil {
		return domain.Mission{}, storeErr("update mission", err)
	}
	var u undo
	u.push(e.restoreAssignment(m, updated, kind))
	restore, err := e.release(ctx, kind, prev, m.ID)
	if err != nil {
		return domain.Mission{}, e.rollback(ctx, u, err)
	}
	if restore != nil {
		e.publishReleased(ctx, kind, prev, m.ID, actorID)
	}
	return updated, nil
}

// release frees a resource from a mission: status back to Available and the
// current mission cleared, but only while it still points at that mission and
// is in the working status. Dangling references are ignored. The returned
// step undoes the release; it is nil when nothing was released.
func (e Engine) release(ctx context.Context, kind domain.ResourceKind, resourceID, missionID string) (func(context.Context) error, error) {
	switch kind {
	case domain.ResourcePilot:
		p, err := e.Store.GetPilot(ctx, resourceID)
		if IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, storeErr("get pilot", err)
		}
		if !domain.RefEquals(p.CurrentMission, missionID) || p.Status != domain.PilotAssigned {
			return nil, nil
		}
		status := domain.PilotAvailable
		after, err := e.Store.UpdatePilot(ctx, p.ID, store.PilotPatch{
			Status:              &status,
			ClearCurrentMission: true,
			ExpectVersion:       store.Version(p.Version),
		})
		if err != nil {
			return nil, storeErr("update pilot", err)
		}
		return e.restorePilot(p, after), nil
	case domain.ResourceDrone:
		d, err := e.Store.GetDrone(ctx, resourceID)
		if IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, storeErr("get drone", err)
		}
		if !domain.RefEquals(d.CurrentMission, missionID) || d.Status != domain.DroneDeployed {
			return nil, nil
		}
		status := domain.DroneAvailable
		after, err := e.Store.UpdateDrone(ctx, d.ID, store.DronePatch{
			Status:              &status,
			ClearCurrentMission: true,
			ExpectVersion:       store.Version(d.Version),
		})
		if err != nil {
			return nil, storeErr("update drone", err)
		}
		return e.restoreDrone(d, after), nil
	}
	return nil, nil
}

func (e Engine) publishReleased(ctx context.Context, kind domain.ResourceKind, resourceID, missionID, actorID string) {
	e.publish(ctx, events.AssignmentReleased, "mission", missionID, actorID, events.EventPayload{
		"kind":        string(kind),
		"resource_id": resourceID,
	})
}

// occupy claims the resource for the mission at the version validation read.
// Available and working resources move to Assigned/Deployed; a forced
// assignment of an unavailable pilot or a drone in maintenance keeps that
// status so the scanner keeps reporting it.
func (e Engine) occupy(ctx context.Context, kind domain.ResourceKind, rs readSet, missionID string) (func(context.Context) error, error) {
	if kind == domain.ResourcePilot {
		p := rs.pilot
		patch := store.PilotPatch{CurrentMission: domain.RefOf(missionID), ExpectVersion: store.Version(p.Version)}
		if p.Status == domain.PilotAvailable || p.Status == domain.PilotAssigned {
			status := domain.PilotAssigned
			patch.Status = &status
		}
		after, err := e.Store.UpdatePilot(ctx, p.ID, patch)
		if err != nil {
			return nil, storeErr("update pilot", err)
		}
		return e.restorePilot(p, after), nil
	}
	d := rs.drone
	patch := store.DronePatch{CurrentMission: domain.RefOf(missionID), ExpectVersion: store.Version(d.Version)}
	if d.Status == domain.DroneAvailable || d.Status == domain.DroneDeployed {
		status := domain.DroneDeployed
		patch.Status = &status
	}
	after, err := e.Store.UpdateDrone(ctx, d.ID, patch)
	if err != nil {
		return nil, storeErr("update drone", err)
	}
	return e.restoreDrone(d, after), nil
}
