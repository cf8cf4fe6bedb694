package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/store"
)

// UpdatePilotStatus sets a pilot's status. Taking a pilot off duty keeps the
// current mission so the scanner reports it as unavailable_pilot.
func (e Engine) UpdatePilotStatus(ctx context.Context, id string, status domain.PilotStatus, actorID string) (domain.Pilot, error) {
	unlock := e.lock()
	defer unlock()
	p, err := e.Store.GetPilot(ctx, id)
	if err != nil {
		return domain.Pilot{}, storeErr("get pilot", err)
	}
	prev := p.Status
	patch := store.PilotPatch{Status: &status, ExpectVersion: store.Version(p.Version)}
	if status == domain.PilotAvailable {
		patch.ClearCurrentMission = true
	}
	if p, err = e.Store.UpdatePilot(ctx, id, patch); err != nil {
		return domain.Pilot{}, storeErr("update pilot", err)
	}
	e.log().Info("pilot status updated", zap.String("pilot_id", id), zap.String("from", string(prev)), zap.String("to", string(status)))
	e.publish(ctx, events.PilotStatusChanged, "pilot", id, actorID, events.EventPayload{"from": string(prev), "to": string(status)})
	return p, nil
}

// UpdateDroneStatus sets a drone's status; Available clears its current mission.
func (e Engine) UpdateDroneStatus(ctx context.Context, id string, status domain.DroneStatus, actorID string) (domain.Drone, error) {
	unlock := e.lock()
	defer unlock()
	d, err := e.Store.GetDrone(ctx, id)
	if err != nil {
		return domain.Drone{}, storeErr("get drone", err)
	}
	prev := d.Status
	patch := store.DronePatch{Status: &status, ExpectVersion: store.Version(d.Version)}
	if status == domain.DroneAvailable {
		patch.ClearCurrentMission = true
	}
	if d, err = e.Store.UpdateDrone(ctx, id, patch); err != nil {
		return domain.Drone{}, storeErr("update drone", err)
	}
	e.log().Info("drone status updated", zap.String("drone_id", id), zap.String("from", string(prev)), zap.String("to", string(status)))
	e.publish(ctx, events.DroneStatusChanged, "drone", id, actorID, events.EventPayload{"from": string(prev), "to": string(status)})
	return d, nil
}

// UpdateMissionStatus moves a mission through its lifecycle. Completing or
// cancelling it releases the pilot and drone still working it; the assignment
// fields stay as a record of who flew it. A failed release rolls the status
// change back.
func (e Engine) UpdateMissionStatus(ctx context.Context, id string, status domain.MissionStatus, actorID string) (domain.Mission, error) {
	unlock := e.lock()
	defer unlock()
	before, err := e.Store.GetMission(ctx, id)
	if err != nil {
		return domain.Mission{}, storeErr("get mission", err)
	}
	m, err := e.Store.UpdateMission(ctx, id, store.MissionPatch{Status: &status, ExpectVersion: store.Version(before.Version)})
	if err != nil {
		return domain.Mission{}, storeErr("update mission", err)
	}
	var (
		u        undo
		released []domain.ResourceKind
	)
	u.push(e.restoreMissionStatus(before, m))
	if !m.Participating() {
		for _, kind := range []domain.ResourceKind{domain.ResourcePilot, domain.ResourceDrone} {
			rid := domain.RefValue(m.AssignedTo(kind))
			if rid == "" {
				continue
			}
			restore, err := e.release(ctx, kind, rid, m.ID)
			if err != nil {
				return domain.Mission{}, e.rollback(ctx, u, err)
			}
			if restore != nil {
				u.push(restore)
				released = append(released, kind)
			}
		}
	}
	for _, kind := range released {
		e.publishReleased(ctx, kind, domain.RefValue(m.AssignedTo(kind)), m.ID, actorID)
	}
	e.log().Info("mission status updated", zap.String("mission_id", id), zap.String("from", string(before.Status)), zap.String("to", string(status)))
	e.publish(ctx, events.MissionStatusChanged, "mission", id, actorID, events.EventPayload{"from": string(before.Status), "to": string(status)})
	return m, nil
}
