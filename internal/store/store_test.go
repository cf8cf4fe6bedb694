package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/store"
)

func seedMemory(t *testing.T) (*store.Memory, context.Context) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()
	_, err := s.CreatePilot(ctx, domain.Pilot{ID: "P1", Location: "Pune", Status: domain.PilotAvailable, Skills: []string{"Mapping"}, Certifications: []string{"DGCA"}})
	require.NoError(t, err)
	_, err = s.CreatePilot(ctx, domain.Pilot{ID: "P2", Location: "Mumbai", Status: domain.PilotOnLeave, Skills: []string{"Thermal"}})
	require.NoError(t, err)
	_, err = s.CreateDrone(ctx, domain.Drone{ID: "D1", Location: "Pune", Status: domain.DroneAvailable, Capabilities: []string{"LiDAR", "RGB"}})
	require.NoError(t, err)
	_, err = s.CreateMission(ctx, domain.Mission{
		ID: "M1", Location: "Pune", Start: domain.MustDate("2026-02-07"), End: domain.MustDate("2026-02-09"),
		Priority: domain.PriorityHigh, Status: domain.MissionPlanned, AssignedPilot: domain.RefOf("P1"),
	})
	require.NoError(t, err)
	_, err = s.CreateMission(ctx, domain.Mission{
		ID: "M2", Location: "Pune", Start: domain.MustDate("2026-01-07"), End: domain.MustDate("2026-01-09"),
		Priority: domain.PriorityStandard, Status: domain.MissionCompleted, AssignedPilot: domain.RefOf("P1"),
	})
	require.NoError(t, err)
	return s, ctx
}

func TestMemoryCreateAndGet(t *testing.T) {
	s, ctx := seedMemory(t)
	p, err := s.GetPilot(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, int64(1), p.Version)

	_, err = s.CreatePilot(ctx, domain.Pilot{ID: "P1", Status: domain.PilotAvailable})
	require.ErrorIs(t, err, store.ErrDuplicate)

	_, err = s.GetDrone(ctx, "D9")
	require.ErrorIs(t, err, store.ErrNotFound)
	var nf *store.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "drone", nf.Entity)

	// callers cannot mutate stored slices
	p.Skills[0] = "changed"
	again, err := s.GetPilot(ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, []string{"Mapping"}, again.Skills)
}

func TestMemoryCreateValidates(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	_, err := s.CreatePilot(ctx, domain.Pilot{ID: "P1", Status: "Sleeping"})
	require.ErrorIs(t, err, store.ErrInvalid)
	_, err = s.CreateMission(ctx, domain.Mission{
		ID: "M1", Start: domain.MustDate("2026-02-09"), End: domain.MustDate("2026-02-07"),
		Priority: domain.PriorityHigh, Status: domain.MissionPlanned,
	})
	require.ErrorIs(t, err, store.ErrInvalid)
	_, err = s.CreateDrone(ctx, domain.Drone{Status: domain.DroneAvailable})
	require.ErrorIs(t, err, store.ErrInvalid)
}

func TestMemoryFilters(t *testing.T) {
	s, ctx := seedMemory(t)

	pilots, err := s.ListPilots(ctx, store.PilotFilter{Skill: "mapping"})
	require.NoError(t, err)
	require.Len(t, pilots, 1)
	require.Equal(t, "P1", pilots[0].ID)

	pilots, err = s.ListPilots(ctx, store.PilotFilter{Status: domain.PilotOnLeave, Location: "mumbai"})
	require.NoError(t, err)
	require.Len(t, pilots, 1)

	drones, err := s.ListDrones(ctx, store.DroneFilter{Capability: "rgb"})
	require.NoError(t, err)
	require.Len(t, drones, 1)

	missions, err := s.ListMissions(ctx, store.MissionFilter{PilotID: "P1"})
	require.NoError(t, err)
	require.Len(t, missions, 2)
	missions, err = s.ListMissions(ctx, store.MissionFilter{PilotID: "P1", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, missions, 1)
	require.Equal(t, "M1", missions[0].ID)
}

func TestMemoryUpdateVersions(t *testing.T) {
	s, ctx := seedMemory(t)
	status := domain.PilotAssigned
	p, err := s.UpdatePilot(ctx, "P1", store.PilotPatch{Status: &status, CurrentMission: domain.RefOf("M1"), ExpectVersion: store.Version(1)})
	require.NoError(t, err)
	require.Equal(t, int64(2), p.Version)
	require.Equal(t, "M1", domain.RefValue(p.CurrentMission))

	_, err = s.UpdatePilot(ctx, "P1", store.PilotPatch{ClearCurrentMission: true, ExpectVersion: store.Version(1)})
	require.ErrorIs(t, err, store.ErrVersionConflict)

	p, err = s.UpdatePilot(ctx, "P1", store.PilotPatch{ClearCurrentMission: true})
	require.NoError(t, err)
	require.Nil(t, p.CurrentMission)
	require.Equal(t, int64(3), p.Version)

	_, err = s.UpdateMission(ctx, "NOPE", store.MissionPatch{})
	require.ErrorIs(t, err, store.ErrNotFound)

	m, err := s.UpdateMission(ctx, "M1", store.MissionPatch{ClearAssignedPilot: true, AssignedDrone: domain.RefOf("D1")})
	require.NoError(t, err)
	require.Nil(t, m.AssignedPilot)
	require.Equal(t, "D1", domain.RefValue(m.AssignedDrone))
}
