package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stackDawg/skylark2/internal/config"
	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/store"
)

func TestOpenSQLiteJournalsEvents(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Store.SeedSample = true
	rt, err := Open(ctx, t.TempDir(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	require.NotNil(t, rt.Journal)

	rec := &events.Recorder{}
	rt.AddSink(rec)
	res, err := rt.Engine.Assign(ctx, engine.AssignRequest{Kind: domain.ResourcePilot, ResourceID: "P003", MissionID: "PRJ003", ActorID: "ops"})
	require.NoError(t, err)
	require.True(t, res.Committed, "location mismatch is only a warning")

	latest, err := rt.Journal.Latest(ctx, 5, events.AssignmentCommitted, "", "")
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, "ops", latest[0].ActorID)
	require.Equal(t, []string{events.AssignmentCommitted}, rec.Types())
}

func TestOpenMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.DriverMemory
	rt, err := Open(context.Background(), "", cfg, nil)
	require.NoError(t, err)
	require.Nil(t, rt.Journal)
	pilots, err := rt.Store.ListPilots(context.Background(), store.PilotFilter{})
	require.NoError(t, err)
	require.Empty(t, pilots)
	require.NoError(t, rt.Close())
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "mongo"
	_, err := Open(context.Background(), t.TempDir(), cfg, nil)
	require.Error(t, err)
}
