package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/store"
)

// scriptedStore runs a hook before each write reaches the memory store. A
// hook error fails the write.
type scriptedStore struct {
	*store.Memory
	beforePilot   func(id string) error
	beforeDrone   func(id string) error
	beforeMission func(id string) error
}

func (s *scriptedStore) UpdatePilot(ctx context.Context, id string, p store.PilotPatch) (domain.Pilot, error) {
	if s.beforePilot != nil {
		if err := s.beforePilot(id); err != nil {
			return domain.Pilot{}, err
		}
	}
	return s.Memory.UpdatePilot(ctx, id, p)
}

func (s *scriptedStore) UpdateDrone(ctx context.Context, id string, p store.DronePatch) (domain.Drone, error) {
	if s.beforeDrone != nil {
		if err := s.beforeDrone(id); err != nil {
			return domain.Drone{}, err
		}
	}
	return s.Memory.UpdateDrone(ctx, id, p)
}

func (s *scriptedStore) UpdateMission(ctx context.Context, id string, p store.MissionPatch) (domain.Mission, error) {
	if s.beforeMission != nil {
		if err := s.beforeMission(id); err != nil {
			return domain.Mission{}, err
		}
	}
	return s.Memory.UpdateMission(ctx, id, p)
}

func failOn(target string, err error) func(string) error {
	return func(id string) error {
		if id == target {
			return err
		}
		return nil
	}
}

func TestAssignAcrossEnginesCannotDoubleBook(t *testing.T) {
	tests := []struct {
		name         string
		duringPilot  bool
		firstCommits bool
	}{
		{name: "second engine runs after the pilot is claimed", duringPilot: false, firstCommits: true},
		{name: "second engine runs before the pilot is claimed", duringPilot: true, firstCommits: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, engine.Options{})
			env.seed(t, []domain.Pilot{pilot("P1", "Pune", domain.PilotAvailable, nil, nil)}, nil, []domain.Mission{
				mission("A", "Pune", "2026-02-07", "2026-02-09"),
				mission("B", "Pune", "2026-02-08", "2026-02-10"),
			})

			// Separate engines share no lock, like two processes on one database.
			second := engine.New(env.Store, engine.Options{})
			var (
				once      sync.Once
				secondRes engine.AssignResult
				secondErr error
			)
			interleave := func(string) error {
				once.Do(func() {
					secondRes, secondErr = second.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P1", MissionID: "B"})
				})
				return nil
			}
			ss := &scriptedStore{Memory: env.Store}
			if tc.duringPilot {
				ss.beforePilot = interleave
			} else {
				ss.beforeMission = interleave
			}
			first := engine.New(ss, engine.Options{})

			res, err := first.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P1", MissionID: "A"})
			require.NoError(t, secondErr)
			if tc.firstCommits {
				require.NoError(t, err)
				require.True(t, res.Committed)
				require.False(t, secondRes.Committed)
				require.Equal(t, []domain.ConflictKind{domain.ConflictDoubleBookingPilot}, kinds(secondRes.Validation.Conflicts))
			} else {
				require.ErrorIs(t, err, store.ErrVersionConflict)
				require.True(t, secondRes.Committed)
				a, err := env.Store.GetMission(env.Ctx, "A")
				require.NoError(t, err)
				require.Nil(t, a.AssignedPilot)
			}

			conflicts, err := env.Engine.ScanConflicts(env.Ctx)
			require.NoError(t, err)
			require.Empty(t, conflicts)
		})
	}
}

func TestValidateCountsClaimedMission(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	p := pilot("P1", "Pune", domain.PilotAssigned, nil, nil)
	p.CurrentMission = domain.RefOf("A")
	env.seed(t, []domain.Pilot{p}, nil, []domain.Mission{
		mission("A", "Pune", "2026-02-07", "2026-02-09"),
		mission("B", "Pune", "2026-02-08", "2026-02-10"),
		mission("C", "Pune", "2026-03-01", "2026-03-02"),
	})

	v, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "B")
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, []domain.ConflictKind{domain.ConflictDoubleBookingPilot}, kinds(v.Conflicts))

	v, err = env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "C")
	require.NoError(t, err)
	require.True(t, v.Valid)
}

func writeFailureFleet(t *testing.T) (testEnv, *scriptedStore, engine.Engine) {
	t.Helper()
	env := newTestEnv(t, engine.Options{})
	p := pilot("P1", "Pune", domain.PilotAssigned, nil, nil)
	p.CurrentMission = domain.RefOf("M1")
	d := drone("D1", "Pune", domain.DroneDeployed, nil)
	d.CurrentMission = domain.RefOf("M1")
	m := mission("M1", "Pune", "2026-02-07", "2026-02-09")
	m.AssignedPilot = domain.RefOf("P1")
	m.AssignedDrone = domain.RefOf("D1")
	env.seed(t, []domain.Pilot{p, pilot("P2", "Pune", domain.PilotAvailable, nil, nil)}, []domain.Drone{d}, []domain.Mission{m})
	ss := &scriptedStore{Memory: env.Store}
	eng := engine.New(ss, engine.Options{})
	eng.Events = env.Events
	return env, ss, eng
}

// requireUntouched checks the fleet is back to what writeFailureFleet seeded.
func requireUntouched(t *testing.T, env testEnv) {
	t.Helper()
	m, err := env.Store.GetMission(env.Ctx, "M1")
	require.NoError(t, err)
	require.Equal(t, domain.MissionPlanned, m.Status)
	require.Equal(t, "P1", domain.RefValue(m.AssignedPilot))
	require.Equal(t, "D1", domain.RefValue(m.AssignedDrone))

	p1, err := env.Store.GetPilot(env.Ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAssigned, p1.Status)
	require.Equal(t, "M1", domain.RefValue(p1.CurrentMission))

	p2, err := env.Store.GetPilot(env.Ctx, "P2")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAvailable, p2.Status)
	require.Nil(t, p2.CurrentMission)

	d1, err := env.Store.GetDrone(env.Ctx, "D1")
	require.NoError(t, err)
	require.Equal(t, domain.DroneDeployed, d1.Status)
	require.Equal(t, "M1", domain.RefValue(d1.CurrentMission))

	require.Empty(t, env.Events.Types())
}

func TestFailedWritesRollBack(t *testing.T) {
	unreachable := errors.New("backend unreachable")

	t.Run("assign when the mission update fails", func(t *testing.T) {
		env, ss, eng := writeFailureFleet(t)
		ss.beforeMission = failOn("M1", unreachable)
		res, err := eng.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P2", MissionID: "M1"})
		require.ErrorIs(t, err, unreachable)
		var se *engine.StoreError
		require.ErrorAs(t, err, &se)
		require.False(t, res.Committed)
		requireUntouched(t, env)
	})

	t.Run("assign when releasing the previous pilot fails", func(t *testing.T) {
		env, ss, eng := writeFailureFleet(t)
		ss.beforePilot = failOn("P1", unreachable)
		_, err := eng.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P2", MissionID: "M1"})
		require.ErrorIs(t, err, unreachable)
		requireUntouched(t, env)
	})

	t.Run("unassign when the release fails", func(t *testing.T) {
		env, ss, eng := writeFailureFleet(t)
		ss.beforePilot = failOn("P1", unreachable)
		_, err := eng.Unassign(env.Ctx, domain.ResourcePilot, "M1", "ops")
		require.ErrorIs(t, err, unreachable)
		requireUntouched(t, env)
	})

	t.Run("completing a mission when the drone release fails", func(t *testing.T) {
		env, ss, eng := writeFailureFleet(t)
		ss.beforeDrone = failOn("D1", unreachable)
		_, err := eng.UpdateMissionStatus(env.Ctx, "M1", domain.MissionCompleted, "ops")
		require.ErrorIs(t, err, unreachable)
		requireUntouched(t, env)
	})
}

func TestInvalidKindIsInvalidRequest(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.seed(t, nil, nil, []domain.Mission{mission("M1", "Pune", "2026-02-07", "2026-02-09")})

	_, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourceKind("boat"), "X", "M1")
	require.ErrorIs(t, err, engine.ErrInvalidRequest)
	_, err = env.Engine.RankCandidates(env.Ctx, "M1", domain.ResourceKind("boat"))
	require.ErrorIs(t, err, engine.ErrInvalidRequest)
}

func TestScoreDroneTable(t *testing.T) {
	overlapping := mission("BUSY", "Pune", "2026-02-09", "2026-02-12")
	later := mission("LATER", "Pune", "2026-03-01", "2026-03-02")
	dueSoon := drone("D", "Pune", domain.DroneAvailable, nil)
	dueSoon.MaintenanceDue = domain.MustDate("2026-02-09")

	tests := []struct {
		name    string
		drone   domain.Drone
		skills  []string
		current *domain.Mission
		score   int
		issues  []string
	}{
		{name: "available on site", drone: drone("D", "Pune", domain.DroneAvailable, nil), score: 30 + 30, issues: []string{}},
		{name: "deployed without a current mission", drone: drone("D", "Pune", domain.DroneDeployed, nil), score: 15 + 30, issues: []string{}},
		{name: "deployed on a later mission", drone: drone("D", "Pune", domain.DroneDeployed, nil), current: &later, score: 15 + 30, issues: []string{}},
		{
			name: "deployed on an overlapping mission", drone: drone("D", "Pune", domain.DroneDeployed, nil), current: &overlapping,
			score: -50 + 30, issues: []string{"deployed on overlapping mission"},
		},
		{
			name: "maintenance", drone: drone("D", "Pune", domain.DroneMaintenance, nil),
			score: -100 + 30, issues: []string{"status is Maintenance"},
		},
		{
			name: "elsewhere", drone: drone("D", "Delhi", domain.DroneAvailable, nil),
			score: 30 - 15, issues: []string{"located in Delhi, mission in Pune"},
		},
		{
			name: "thermal required and present", drone: drone("D", "Pune", domain.DroneAvailable, []string{"Thermal camera"}),
			skills: []string{"Thermal Inspection"}, score: 30 + 30 + 20, issues: []string{},
		},
		{
			name: "thermal required and missing", drone: drone("D", "Pune", domain.DroneAvailable, []string{"RGB"}),
			skills: []string{"Thermal Inspection"}, score: 30 + 30 - 15, issues: []string{"no thermal capability"},
		},
		{
			name: "mapping with lidar", drone: drone("D", "Pune", domain.DroneAvailable, []string{"LiDAR", "RGB"}),
			skills: []string{"Mapping"}, score: 30 + 30 + 20, issues: []string{},
		},
		{
			name: "survey with rgb only", drone: drone("D", "Pune", domain.DroneAvailable, []string{"RGB"}),
			skills: []string{"Survey"}, score: 30 + 30 + 10, issues: []string{},
		},
		{
			name: "maintenance due before the mission ends", drone: dueSoon,
			score: 30 + 30 - 10, issues: []string{"maintenance due 2026-02-09, before mission ends 2026-02-10"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := mission("M1", "Pune", "2026-02-07", "2026-02-10")
			m.RequiredSkills = tc.skills
			c := engine.ScoreDrone(tc.drone, m, tc.current)
			require.Equal(t, tc.score, c.Score)
			require.Equal(t, tc.issues, c.Issues)
		})
	}
}
