package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Store  *store.Memory
	Events *events.Recorder
	Ctx    context.Context
}

func newTestEnv(t *testing.T, opts engine.Options) testEnv {
	t.Helper()
	s := store.NewMemory()
	rec := &events.Recorder{}
	eng := engine.New(s, opts)
	eng.Events = rec
	eng.Now = func() time.Time { return time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Store: s, Events: rec, Ctx: context.Background()}
}

func (env testEnv) seed(t *testing.T, pilots []domain.Pilot, drones []domain.Drone, missions []domain.Mission) {
	t.Helper()
	for _, p := range pilots {
		_, err := env.Store.CreatePilot(env.Ctx, p)
		require.NoError(t, err)
	}
	for _, d := range drones {
		_, err := env.Store.CreateDrone(env.Ctx, d)
		require.NoError(t, err)
	}
	for _, m := range missions {
		_, err := env.Store.CreateMission(env.Ctx, m)
		require.NoError(t, err)
	}
}

func pilot(id, location string, status domain.PilotStatus, skills, certs []string) domain.Pilot {
	return domain.Pilot{ID: id, Name: "Pilot " + id, Location: location, Status: status, Skills: skills, Certifications: certs}
}

func drone(id, location string, status domain.DroneStatus, caps []string) domain.Drone {
	return domain.Drone{ID: id, Model: "Model " + id, Location: location, Status: status, Capabilities: caps}
}

func mission(id, location, start, end string) domain.Mission {
	return domain.Mission{
		ID:       id,
		Client:   "Client " + id,
		Location: location,
		Start:    domain.MustDate(start),
		End:      domain.MustDate(end),
		Priority: domain.PriorityStandard,
		Status:   domain.MissionPlanned,
	}
}

func kinds(conflicts []domain.Conflict) []domain.ConflictKind {
	out := make([]domain.ConflictKind, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, c.Kind)
	}
	return out
}

func ids(cands []engine.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.ID)
	}
	return out
}

func TestDatesOverlap(t *testing.T) {
	d := domain.MustDate
	cases := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd string
		want                       bool
	}{
		{"identical", "2026-02-07", "2026-02-09", "2026-02-07", "2026-02-09", true},
		{"partial", "2026-02-07", "2026-02-09", "2026-02-08", "2026-02-10", true},
		{"touching", "2026-02-07", "2026-02-09", "2026-02-09", "2026-02-12", true},
		{"contained", "2026-02-01", "2026-02-28", "2026-02-10", "2026-02-11", true},
		{"disjoint", "2026-02-07", "2026-02-09", "2026-02-10", "2026-02-12", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.DatesOverlap(d(tc.aStart), d(tc.aEnd), d(tc.bStart), d(tc.bEnd))
			require.Equal(t, tc.want, got)
			swapped := engine.DatesOverlap(d(tc.bStart), d(tc.bEnd), d(tc.aStart), d(tc.aEnd))
			require.Equal(t, got, swapped, "overlap must be symmetric")
		})
	}
}

func TestCoversAll(t *testing.T) {
	require.True(t, engine.CoversAll([]string{"DGCA", "Night Ops"}, nil))
	require.True(t, engine.CoversAll([]string{"DGCA", "Night Ops"}, []string{"night ops", "dgca"}))
	require.False(t, engine.CoversAll([]string{"DGCA"}, []string{"DGCA", "Night Ops"}))
	require.Equal(t, []string{"Night Ops"}, engine.Missing([]string{"dgca"}, []string{"DGCA", "Night Ops"}))
	p := pilot("P1", "Pune", domain.PilotAvailable, []string{"Mapping"}, []string{"DGCA"})
	require.True(t, engine.CoversAllSkills(p, []string{"mapping"}))
	require.False(t, engine.CoversAllCertifications(p, []string{"Night Ops"}))
}

func TestScanConflictsEmptyWithoutLiveMissions(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	done := mission("M1", "Pune", "2026-02-01", "2026-02-03")
	done.Status = domain.MissionCompleted
	done.AssignedPilot = domain.RefOf("GHOST")
	cancelled := mission("M2", "Pune", "2026-02-01", "2026-02-03")
	cancelled.Status = domain.MissionCancelled
	cancelled.AssignedPilot = domain.RefOf("GHOST")
	env.seed(t, nil, nil, []domain.Mission{done, cancelled})

	conflicts, err := env.Engine.ScanConflicts(env.Ctx)
	require.NoError(t, err)
	require.NotNil(t, conflicts)
	require.Empty(t, conflicts)
}

func TestScanConflictsOrderAndIdempotence(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	p1 := pilot("P1", "Mumbai", domain.PilotOnLeave, []string{"Mapping"}, []string{"DGCA"})
	d1 := drone("D1", "Bangalore", domain.DroneMaintenance, []string{"LiDAR"})
	m1 := mission("M1", "Bangalore", "2026-02-01", "2026-02-05")
	m1.RequiredSkills = []string{"Mapping", "Thermal"}
	m1.RequiredCertifications = []string{"DGCA", "Night Ops"}
	m1.AssignedPilot = domain.RefOf("P1")
	m1.AssignedDrone = domain.RefOf("D1")
	m2 := mission("M2", "Bangalore", "2026-02-05", "2026-02-06")
	m2.Status = domain.MissionActive
	m2.AssignedPilot = domain.RefOf("P1")
	m3 := mission("M3", "Bangalore", "2026-02-01", "2026-02-10")
	m3.Status = domain.MissionCompleted
	m3.AssignedPilot = domain.RefOf("P1")
	m4 := mission("M4", "Bangalore", "2026-03-01", "2026-03-02")
	m4.AssignedPilot = domain.RefOf("GHOST")
	env.seed(t, []domain.Pilot{p1}, []domain.Drone{d1}, []domain.Mission{m1, m2, m3, m4})

	first, err := env.Engine.ScanConflicts(env.Ctx)
	require.NoError(t, err)
	want := []domain.ConflictKind{
		domain.ConflictDoubleBookingPilot,
		domain.ConflictCertificationMismatch,
		domain.ConflictSkillMismatch,
		domain.ConflictMaintenanceIssue,
		domain.ConflictLocationMismatch,
		domain.ConflictUnavailablePilot,
		domain.ConflictLocationMismatch,
		domain.ConflictUnavailablePilot,
		domain.ConflictUnknownResource,
	}
	if diff := cmp.Diff(want, kinds(first)); diff != "" {
		t.Fatalf("conflict kinds mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"P1", "M1", "M2"}, first[0].Entities)
	require.Equal(t, domain.SeverityWarning, first[2].Severity)

	second, err := env.Engine.ScanConflicts(env.Ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("scan not idempotent (-first +second):\n%s", diff)
	}
}

func TestValidateAssignmentDoubleBooking(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	p := pilot("P1", "Pune", domain.PilotAssigned, nil, nil)
	p.CurrentMission = domain.RefOf("A")
	a := mission("A", "Pune", "2026-02-07", "2026-02-09")
	a.AssignedPilot = domain.RefOf("P1")
	b := mission("B", "Pune", "2026-02-08", "2026-02-10")
	env.seed(t, []domain.Pilot{p}, nil, []domain.Mission{a, b})

	v, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "B")
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, []domain.ConflictKind{domain.ConflictDoubleBookingPilot}, kinds(v.Conflicts))
	require.Equal(t, []string{"P1", "B", "A"}, v.Conflicts[0].Entities)

	// the target mission itself never counts
	v, err = env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "A")
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Empty(t, v.Conflicts)
}

func TestValidateAssignmentCertificationMismatch(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	p := pilot("P1", "Pune", domain.PilotAvailable, []string{"Mapping", "Survey"}, []string{"DGCA"})
	m := mission("M1", "Pune", "2026-02-07", "2026-02-09")
	m.RequiredSkills = []string{"mapping"}
	m.RequiredCertifications = []string{"DGCA", "Night Ops"}
	env.seed(t, []domain.Pilot{p}, nil, []domain.Mission{m})

	v, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "M1")
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, []domain.ConflictKind{domain.ConflictCertificationMismatch}, kinds(v.Conflicts))
	require.Contains(t, v.Conflicts[0].Message, "Night Ops")
}

func TestValidateAssignmentLocationIsWarning(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	p := pilot("P1", "Mumbai", domain.PilotAvailable, []string{"Mapping"}, []string{"DGCA"})
	m := mission("M1", "Bangalore", "2026-02-07", "2026-02-09")
	m.RequiredSkills = []string{"Mapping"}
	m.RequiredCertifications = []string{"DGCA"}
	env.seed(t, []domain.Pilot{p}, nil, []domain.Mission{m})

	v, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "M1")
	require.NoError(t, err)
	require.True(t, v.Valid)
	require.Equal(t, []domain.ConflictKind{domain.ConflictLocationMismatch}, kinds(v.Conflicts))
	require.Len(t, v.Warnings(), 1)
}

func TestValidateAssignmentDrone(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	d := drone("D1", "Mumbai", domain.DroneMaintenance, []string{"RGB"})
	m := mission("M1", "Pune", "2026-02-07", "2026-02-09")
	env.seed(t, nil, []domain.Drone{d}, []domain.Mission{m})

	v, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourceDrone, "D1", "M1")
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.Equal(t, []domain.ConflictKind{domain.ConflictMaintenanceIssue, domain.ConflictLocationMismatch}, kinds(v.Conflicts))
}

func TestValidateAssignmentNotFound(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.seed(t, []domain.Pilot{pilot("P1", "Pune", domain.PilotAvailable, nil, nil)}, nil, nil)

	v, err := env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "NOPE", "M1")
	require.NoError(t, err)
	require.False(t, v.Valid)
	require.True(t, v.NotFound())
	require.Len(t, v.Conflicts, 1)
	require.Contains(t, v.Conflicts[0].Message, "pilot NOPE")

	v, err = env.Engine.ValidateAssignment(env.Ctx, domain.ResourcePilot, "P1", "M1")
	require.NoError(t, err)
	require.True(t, v.NotFound())
	require.Contains(t, v.Conflicts[0].Message, "mission M1")
}

func TestRankCandidatesDrones(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	d4 := drone("D4", "Mumbai", domain.DroneAvailable, []string{"RGB"})
	d4.MaintenanceDue = domain.MustDate("2026-02-01")
	env.seed(t, nil, []domain.Drone{
		drone("D1", "Bangalore", domain.DroneAvailable, []string{"LiDAR"}),
		drone("D2", "Bangalore", domain.DroneMaintenance, []string{"LiDAR"}),
		drone("D3", "Bangalore", domain.DroneAvailable, []string{"RGB"}),
		d4,
		drone("D5", "bangalore", domain.DroneAvailable, []string{"rgb camera"}),
	}, []domain.Mission{func() domain.Mission {
		m := mission("M1", "Bangalore", "2026-02-07", "2026-02-10")
		m.RequiredSkills = []string{"Mapping"}
		return m
	}()})

	ranked, err := env.Engine.RankCandidates(env.Ctx, "M1", domain.ResourceDrone)
	require.NoError(t, err)
	require.Equal(t, []string{"D1", "D3", "D5", "D4", "D2"}, ids(ranked))
	scores := make([]int, 0, len(ranked))
	for _, c := range ranked {
		scores = append(scores, c.Score)
	}
	require.Equal(t, []int{80, 70, 70, 15, -50}, scores)
	require.Len(t, ranked[3].Issues, 2)
}

func TestMaintenanceNeverOutscoresAvailable(t *testing.T) {
	m := mission("M1", "Pune", "2026-02-07", "2026-02-10")
	m.RequiredSkills = []string{"Thermal Inspection", "Survey"}
	for _, caps := range [][]string{nil, {"RGB"}, {"LiDAR", "Thermal"}} {
		for _, loc := range []string{"Pune", "Delhi"} {
			avail := engine.ScoreDrone(drone("A", loc, domain.DroneAvailable, caps), m, nil)
			maint := engine.ScoreDrone(drone("B", loc, domain.DroneMaintenance, caps), m, nil)
			require.LessOrEqual(t, maint.Score, avail.Score)
		}
	}
}

func TestRankCandidatesPilots(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	busy := pilot("P2", "Pune", domain.PilotAssigned, []string{"Mapping"}, []string{"DGCA"})
	busy.CurrentMission = domain.RefOf("OTHER")
	free := pilot("P3", "Pune", domain.PilotAssigned, []string{"Mapping"}, []string{"DGCA"})
	free.CurrentMission = domain.RefOf("LATER")
	target := mission("M1", "Pune", "2026-02-07", "2026-02-10")
	target.RequiredSkills = []string{"Mapping"}
	target.RequiredCertifications = []string{"DGCA"}
	other := mission("OTHER", "Pune", "2026-02-09", "2026-02-12")
	other.AssignedPilot = domain.RefOf("P2")
	later := mission("LATER", "Pune", "2026-03-01", "2026-03-02")
	later.AssignedPilot = domain.RefOf("P3")
	env.seed(t, []domain.Pilot{
		pilot("P1", "Pune", domain.PilotAvailable, []string{"mapping"}, []string{"dgca"}),
		busy,
		free,
		pilot("P4", "Delhi", domain.PilotOnLeave, nil, nil),
	}, nil, []domain.Mission{target, other, later})

	ranked, err := env.Engine.RankCandidates(env.Ctx, "M1", domain.ResourcePilot)
	require.NoError(t, err)
	require.Equal(t, []string{"P1", "P3", "P2", "P4"}, ids(ranked))
	require.Equal(t, 100, ranked[0].Score)
	require.Equal(t, 90, ranked[1].Score)
	require.Equal(t, 20, ranked[2].Score)
	require.Contains(t, ranked[2].Issues, "has overlapping assignment")
	require.Equal(t, -100-20-30-10, ranked[3].Score)

	_, err = env.Engine.RankCandidates(env.Ctx, "NOPE", domain.ResourcePilot)
	require.True(t, engine.IsNotFound(err))
}

func TestAssignCommitsAndReleasesPrevious(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	old := pilot("P1", "Pune", domain.PilotAssigned, nil, nil)
	old.CurrentMission = domain.RefOf("M1")
	m := mission("M1", "Pune", "2026-02-07", "2026-02-09")
	m.AssignedPilot = domain.RefOf("P1")
	env.seed(t, []domain.Pilot{old, pilot("P2", "Pune", domain.PilotAvailable, nil, nil)}, nil, []domain.Mission{m})

	res, err := env.Engine.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P2", MissionID: "M1", ActorID: "ops"})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.False(t, res.Forced)
	require.Equal(t, "P1", domain.RefValue(res.Released))
	require.Equal(t, "P2", domain.RefValue(res.Mission.AssignedPilot))

	p1, err := env.Store.GetPilot(env.Ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAvailable, p1.Status)
	require.Nil(t, p1.CurrentMission)
	p2, err := env.Store.GetPilot(env.Ctx, "P2")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAssigned, p2.Status)
	require.Equal(t, "M1", domain.RefValue(p2.CurrentMission))
	require.Equal(t, []string{events.AssignmentReleased, events.AssignmentCommitted}, env.Events.Types())

	m1, err := env.Engine.Unassign(env.Ctx, domain.ResourcePilot, "M1", "ops")
	require.NoError(t, err)
	require.Nil(t, m1.AssignedPilot)
	p2, err = env.Store.GetPilot(env.Ctx, "P2")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAvailable, p2.Status)
}

func TestAssignBlockedUnlessForced(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	m := mission("M1", "Pune", "2026-02-07", "2026-02-09")
	m.RequiredCertifications = []string{"Night Ops"}
	env.seed(t, []domain.Pilot{pilot("P1", "Pune", domain.PilotAvailable, nil, nil)}, nil, []domain.Mission{m})

	req := engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P1", MissionID: "M1"}
	res, err := env.Engine.Assign(env.Ctx, req)
	require.NoError(t, err)
	require.False(t, res.Committed)
	require.False(t, res.Validation.Valid)
	got, err := env.Store.GetMission(env.Ctx, "M1")
	require.NoError(t, err)
	require.Nil(t, got.AssignedPilot)

	req.Force = true
	res, err = env.Engine.Assign(env.Ctx, req)
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.True(t, res.Forced)

	conflicts, err := env.Engine.ScanConflicts(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.ConflictKind{domain.ConflictCertificationMismatch}, kinds(conflicts))

	res, err = env.Engine.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "NOPE", MissionID: "M1", Force: true})
	require.NoError(t, err)
	require.False(t, res.Committed)
	require.True(t, res.Validation.NotFound())
}

func TestConcurrentAssignmentsCannotDoubleBook(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.seed(t, []domain.Pilot{pilot("P1", "Pune", domain.PilotAvailable, nil, nil)}, nil, []domain.Mission{
		mission("A", "Pune", "2026-02-01", "2026-02-05"),
		mission("B", "Pune", "2026-02-03", "2026-02-07"),
	})

	results := make([]engine.AssignResult, 2)
	var g errgroup.Group
	for i, id := range []string{"A", "B"} {
		g.Go(func() error {
			res, err := env.Engine.Assign(env.Ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P1", MissionID: id})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.NotEqual(t, results[0].Committed, results[1].Committed, "exactly one assignment should commit")

	conflicts, err := env.Engine.ScanConflicts(env.Ctx)
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestUpdateMissionStatusReleasesResources(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	p := pilot("P1", "Pune", domain.PilotAssigned, nil, nil)
	p.CurrentMission = domain.RefOf("M1")
	d := drone("D1", "Pune", domain.DroneDeployed, nil)
	d.CurrentMission = domain.RefOf("M1")
	m := mission("M1", "Pune", "2026-02-07", "2026-02-09")
	m.AssignedPilot = domain.RefOf("P1")
	m.AssignedDrone = domain.RefOf("D1")
	env.seed(t, []domain.Pilot{p}, []domain.Drone{d}, []domain.Mission{m})

	got, err := env.Engine.UpdateMissionStatus(env.Ctx, "M1", domain.MissionCompleted, "ops")
	require.NoError(t, err)
	require.Equal(t, domain.MissionCompleted, got.Status)
	require.Equal(t, "P1", domain.RefValue(got.AssignedPilot))

	p, err = env.Store.GetPilot(env.Ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAvailable, p.Status)
	d, err = env.Store.GetDrone(env.Ctx, "D1")
	require.NoError(t, err)
	require.Equal(t, domain.DroneAvailable, d.Status)
	require.Nil(t, d.CurrentMission)

	_, err = env.Engine.UpdatePilotStatus(env.Ctx, "NOPE", domain.PilotOnLeave, "ops")
	require.True(t, engine.IsNotFound(err))
}

func urgentFleet(t *testing.T, env testEnv) {
	t.Helper()
	trigger := pilot("P1", "Pune", domain.PilotAssigned, []string{"Mapping"}, []string{"DGCA"})
	trigger.CurrentMission = domain.RefOf("STD")
	std := mission("STD", "Pune", "2026-02-10", "2026-02-12")
	std.AssignedPilot = domain.RefOf("P1")
	urg := mission("URG", "Pune", "2026-02-01", "2026-02-03")
	urg.Priority = domain.PriorityUrgent
	urg.AssignedPilot = domain.RefOf("P1")
	done := mission("OLD", "Pune", "2026-01-01", "2026-01-03")
	done.Status = domain.MissionCompleted
	done.AssignedPilot = domain.RefOf("P1")
	env.seed(t, []domain.Pilot{
		trigger,
		pilot("P2", "Pune", domain.PilotAvailable, []string{"Mapping"}, []string{"DGCA"}),
		pilot("P3", "Pune", domain.PilotOnLeave, []string{"Mapping"}, []string{"DGCA"}),
	}, nil, []domain.Mission{std, urg, done})
}

func TestPlanUrgentReassignmentOrdersUrgentFirst(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	urgentFleet(t, env)

	plan, err := env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{PilotID: "P1", Reason: "sick", MarkUnavailable: true, ActorID: "ops"})
	require.NoError(t, err)
	require.NotEmpty(t, plan.ID)
	require.Equal(t, engine.StagePlanProposed, plan.Stage)
	require.Equal(t, []engine.Stage{
		engine.StageTriggered, engine.StageMarkedUnavailable, engine.StageImpactAssessed, engine.StagePlanProposed,
	}, plan.History)
	require.Len(t, plan.AffectedMissions, 2)
	require.Equal(t, "URG", plan.AffectedMissions[0].ID)
	require.Equal(t, "STD", plan.AffectedMissions[1].ID)

	require.Len(t, plan.Options, 2)
	for _, opt := range plan.Options {
		require.Equal(t, domain.ResourcePilot, opt.Kind)
		require.Equal(t, []string{"P2"}, ids(opt.Candidates))
		require.False(t, opt.NoViableCandidates)
	}

	p1, err := env.Store.GetPilot(env.Ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, domain.PilotUnavailable, p1.Status)
	require.Nil(t, p1.CurrentMission)
	urg, err := env.Store.GetMission(env.Ctx, "URG")
	require.NoError(t, err)
	require.Equal(t, "P1", domain.RefValue(urg.AssignedPilot), "planning must not reassign")
	require.Equal(t, []string{events.PilotStatusChanged, events.ReassignmentPlanned}, env.Events.Types())
}

func TestPlanUrgentReassignmentWithoutMarking(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	urgentFleet(t, env)

	plan, err := env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{PilotID: "P1", Reason: "late"})
	require.NoError(t, err)
	require.False(t, plan.MarkedUnavailable)
	require.NotContains(t, plan.History, engine.StageMarkedUnavailable)
	require.Len(t, plan.AffectedMissions, 2)
	p1, err := env.Store.GetPilot(env.Ctx, "P1")
	require.NoError(t, err)
	require.Equal(t, domain.PilotAssigned, p1.Status)

	_, err = env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{Reason: "?"})
	require.ErrorIs(t, err, engine.ErrInvalidRequest)
	_, err = env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{DroneID: "NOPE"})
	require.True(t, engine.IsNotFound(err))
}

func TestConfirmReplacement(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	urgentFleet(t, env)
	plan, err := env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{PilotID: "P1", Reason: "sick", MarkUnavailable: true})
	require.NoError(t, err)

	_, err = env.Engine.ConfirmReplacement(env.Ctx, &plan, engine.Choice{MissionID: "URG", Kind: domain.ResourcePilot, CandidateID: "P3"})
	require.ErrorIs(t, err, engine.ErrNotInPlan)

	res, err := env.Engine.ConfirmReplacement(env.Ctx, &plan, engine.Choice{MissionID: "URG", Kind: domain.ResourcePilot, CandidateID: "P2"})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.Equal(t, engine.StageExecuted, plan.Stage)

	_, err = env.Engine.ConfirmReplacement(env.Ctx, &plan, engine.Choice{MissionID: "URG", Kind: domain.ResourcePilot, CandidateID: "P2"})
	require.ErrorIs(t, err, engine.ErrAlreadyExecuted)

	res, err = env.Engine.ConfirmReplacement(env.Ctx, &plan, engine.Choice{MissionID: "STD", Kind: domain.ResourcePilot, CandidateID: "P2"})
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.Len(t, plan.Executions, 2)
	require.Equal(t, engine.StageExecuted, plan.History[len(plan.History)-1])

	urg, err := env.Store.GetMission(env.Ctx, "URG")
	require.NoError(t, err)
	require.Equal(t, "P2", domain.RefValue(urg.AssignedPilot))
	require.Contains(t, env.Events.Types(), events.ReassignmentExecuted)
}

func TestProtectUrgentAssignments(t *testing.T) {
	seed := func(env testEnv) {
		trigger := pilot("P1", "Pune", domain.PilotAssigned, nil, nil)
		trigger.CurrentMission = domain.RefOf("M")
		guard := pilot("P2", "Pune", domain.PilotAssigned, nil, nil)
		guard.CurrentMission = domain.RefOf("U")
		m := mission("M", "Pune", "2026-02-10", "2026-02-12")
		m.AssignedPilot = domain.RefOf("P1")
		u := mission("U", "Pune", "2026-02-01", "2026-02-03")
		u.Priority = domain.PriorityUrgent
		u.AssignedPilot = domain.RefOf("P2")
		env.seed(t, []domain.Pilot{trigger, guard, pilot("P3", "Pune", domain.PilotAvailable, nil, nil)}, nil, []domain.Mission{m, u})
	}

	env := newTestEnv(t, engine.Options{})
	seed(env)
	plan, err := env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{PilotID: "P1"})
	require.NoError(t, err)
	opt, ok := plan.OptionsFor("M", domain.ResourcePilot)
	require.True(t, ok)
	require.Equal(t, []string{"P3", "P2"}, ids(opt.Candidates))

	env = newTestEnv(t, engine.Options{ProtectUrgentAssignments: true})
	seed(env)
	plan, err = env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{PilotID: "P1"})
	require.NoError(t, err)
	opt, ok = plan.OptionsFor("M", domain.ResourcePilot)
	require.True(t, ok)
	require.Equal(t, []string{"P3"}, ids(opt.Candidates))
}

func TestReplacementOptionsCappedAndNoViable(t *testing.T) {
	env := newTestEnv(t, engine.Options{MaxReplacementOptions: 2})
	d := drone("D1", "Pune", domain.DroneDeployed, nil)
	d.CurrentMission = domain.RefOf("M")
	m := mission("M", "Pune", "2026-02-10", "2026-02-12")
	m.AssignedDrone = domain.RefOf("D1")
	m.AssignedPilot = domain.RefOf("P1")
	env.seed(t,
		[]domain.Pilot{pilot("P1", "Pune", domain.PilotAssigned, nil, nil), pilot("P9", "Delhi", domain.PilotOnLeave, nil, nil)},
		[]domain.Drone{d, drone("D2", "Pune", domain.DroneAvailable, nil), drone("D3", "Pune", domain.DroneAvailable, nil), drone("D4", "Pune", domain.DroneAvailable, nil)},
		[]domain.Mission{m})

	plan, err := env.Engine.PlanUrgentReassignment(env.Ctx, engine.UrgentRequest{PilotID: "P1", DroneID: "D1", MarkUnavailable: true})
	require.NoError(t, err)
	require.Len(t, plan.AffectedMissions, 1)
	require.Len(t, plan.Options, 2)

	pilots, ok := plan.OptionsFor("M", domain.ResourcePilot)
	require.True(t, ok)
	require.True(t, pilots.NoViableCandidates)
	require.Empty(t, pilots.Candidates)

	drones, ok := plan.OptionsFor("M", domain.ResourceDrone)
	require.True(t, ok)
	require.Equal(t, []string{"D2", "D3"}, ids(drones.Candidates))

	got, err := env.Store.GetDrone(env.Ctx, "D1")
	require.NoError(t, err)
	require.Equal(t, domain.DroneMaintenance, got.Status)
}
