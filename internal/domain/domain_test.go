package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	ps, err := ParsePilotStatus("on_leave")
	require.NoError(t, err)
	require.Equal(t, PilotOnLeave, ps)
	ds, err := ParseDroneStatus(" MAINTENANCE ")
	require.NoError(t, err)
	require.Equal(t, DroneMaintenance, ds)
	ms, err := ParseMissionStatus("canceled")
	require.NoError(t, err)
	require.Equal(t, MissionCancelled, ms)
	k, err := ParseResourceKind("Drones")
	require.NoError(t, err)
	require.Equal(t, ResourceDrone, k)
	_, err = ParsePriority("critical")
	require.Error(t, err)
}

func TestPriorityRank(t *testing.T) {
	require.Less(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	require.Less(t, PriorityHigh.Rank(), PriorityStandard.Rank())
	require.Less(t, PriorityStandard.Rank(), Priority("").Rank())
}

func TestRefs(t *testing.T) {
	require.Nil(t, RefOf("  "))
	require.Equal(t, "P1", RefValue(RefOf(" P1 ")))
	require.False(t, RefEquals(nil, ""))
	require.True(t, RefEquals(RefOf("P1"), "P1"))
	require.Equal(t, []string{"Mapping", "Thermal"}, SplitTokens("Mapping, thermal ,mapping,,Thermal"))
}

func TestDateJSON(t *testing.T) {
	m := Mission{ID: "M1", Start: MustDate("2026-02-07"), End: MustDate("2026-02-09T15:04:05Z")}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.Contains(t, string(data), `"start_date":"2026-02-07"`)
	require.Contains(t, string(data), `"end_date":"2026-02-09"`)

	var back Mission
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 0, back.End.Compare(m.End))

	_, err = ParseDate("07/02/2026")
	require.Error(t, err)
	zero, err := ParseDate("")
	require.NoError(t, err)
	require.True(t, zero.IsZero())
}

func TestMissionHelpers(t *testing.T) {
	m := Mission{Status: MissionActive, AssignedDrone: RefOf("D1")}
	require.True(t, m.Participating())
	require.Equal(t, "D1", RefValue(m.AssignedTo(ResourceDrone)))
	require.Nil(t, m.AssignedTo(ResourcePilot))
	m.Status = MissionCompleted
	require.False(t, m.Participating())
}
