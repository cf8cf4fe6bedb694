package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/store"
)

// undo collects compensating writes for a change spanning several records.
// Every step is version-checked against the record it wrote, so a record
// changed by someone else in the meantime is left alone.
type undo []func(context.Context) error

func (u *undo) push(step func(context.Context) error) {
	if step != nil {
		*u = append(*u, step)
	}
}

// rollback runs the steps newest first and returns cause. Steps that fail are
// logged; the scanner reports whatever they leave behind.
func (e Engine) rollback(ctx context.Context, u undo, cause error) error {
	ctx = context.WithoutCancel(ctx)
	for i := len(u) - 1; i >= 0; i-- {
		if err := u[i](ctx); err != nil {
			e.log().Error("rollback step failed", zap.Error(err), zap.NamedError("cause", cause))
		}
	}
	return cause
}

func (e Engine) restorePilot(before, after domain.Pilot) func(context.Context) error {
	return func(ctx context.Context) error {
		patch := store.PilotPatch{Status: &before.Status, ExpectVersion: store.Version(after.Version)}
		if before.CurrentMission == nil {
			patch.ClearCurrentMission = true
		} else {
			patch.CurrentMission = domain.RefOf(*before.CurrentMission)
		}
		_, err := e.Store.UpdatePilot(ctx, before.ID, patch)
		return err
	}
}

func (e Engine) restoreDrone(before, after domain.Drone) func(context.Context) error {
	return func(ctx context.Context) error {
		patch := store.DronePatch{Status: &before.Status, ExpectVersion: store.Version(after.Version)}
		if before.CurrentMission == nil {
			patch.ClearCurrentMission = true
		} else {
			patch.CurrentMission = domain.RefOf(*before.CurrentMission)
		}
		_, err := e.Store.UpdateDrone(ctx, before.ID, patch)
		return err
	}
}

// restoreAssignment puts back the mission's pilot or drone field.
func (e Engine) restoreAssignment(before, after domain.Mission, kind domain.ResourceKind) func(context.Context) error {
	return func(ctx context.Context) error {
		patch := store.MissionPatch{ExpectVersion: store.Version(after.Version)}
		prev := before.AssignedTo(kind)
		switch {
		case kind == domain.ResourcePilot && prev == nil:
			patch.ClearAssignedPilot = true
		case kind == domain.ResourcePilot:
			patch.AssignedPilot = domain.RefOf(*prev)
		case prev == nil:
			patch.ClearAssignedDrone = true
		default:
			patch.AssignedDrone = domain.RefOf(*prev)
		}
		_, err := e.Store.UpdateMission(ctx, before.ID, patch)
		return err
	}
}

func (e Engine) restoreMissionStatus(before, after domain.Mission) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := e.Store.UpdateMission(ctx, before.ID, store.MissionPatch{Status: &before.Status, ExpectVersion: store.Version(after.Version)})
		return err
	}
}
