package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/logging"
	"github.com/stackDawg/skylark2/internal/metrics"
	"github.com/stackDawg/skylark2/internal/store"
)

// DefaultMaxReplacementOptions is how many viable candidates a reassignment plan keeps per slot.
const DefaultMaxReplacementOptions = 3

// Options tune replacement planning.
type Options struct {
	MaxReplacementOptions int
	// ProtectUrgentAssignments drops replacement candidates currently serving
	// a different Urgent mission.
	ProtectUrgentAssignments bool
}

// Engine evaluates and commits fleet assignments against a record store.
// Copies share the write lock, so every copy of one Engine serializes its
// read-validate-write sequences.
type Engine struct {
	Store   store.Store
	Events  events.Sink
	Metrics metrics.Recorder
	Logger  *zap.Logger
	Options Options
	Now     func() time.Time

	writeMu *sync.Mutex
}

// New returns an Engine over s with nop metrics and logging.
func New(s store.Store, opts Options) Engine {
	if opts.MaxReplacementOptions <= 0 {
		opts.MaxReplacementOptions = DefaultMaxReplacementOptions
	}
	return Engine{
		Store:   s,
		Metrics: metrics.Nop{},
		Logger:  zap.NewNop(),
		Options: opts,
		Now:     time.Now,
		writeMu: &sync.Mutex{},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger { return logging.OrNop(e.Logger) }

func (e Engine) metrics() metrics.Recorder {
	if e.Metrics == nil {
		return metrics.Nop{}
	}
	return e.Metrics
}

func (e Engine) lock() func() {
	if e.writeMu == nil {
		return func() {}
	}
	e.writeMu.Lock()
	return e.writeMu.Unlock
}

// publish delivers a committed change. The change already happened, so a sink
// failure is logged rather than returned.
func (e Engine) publish(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) {
	if e.Events == nil {
		return
	}
	evt := events.New(e.now(), evtType, entityKind, entityID, actorID, payload)
	if err := e.Events.Publish(ctx, evt); err != nil {
		e.log().Warn("publish event failed", zap.String("type", evtType), zap.String("entity_id", entityID), zap.Error(err))
	}
}

// StoreError marks a failure of the record store itself (unreachable backend,
// version conflict) as opposed to a missing record or a policy violation.
// Callers may retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }
func (e *StoreError) Unwrap() error { return e.Err }

// storeErr passes not-found through untouched and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsNotFound reports whether err names a missing pilot, drone or mission.
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

// snapshot is one consistent read of the fleet.
type snapshot struct {
	pilots   []domain.Pilot
	drones   []domain.Drone
	missions []domain.Mission
}

func (e Engine) snapshot(ctx context.Context) (snapshot, error) {
	var s snapshot
	var err error
	if s.pilots, err = e.Store.ListPilots(ctx, store.PilotFilter{}); err != nil {
		return s, storeErr("list pilots", err)
	}
	if s.drones, err = e.Store.ListDrones(ctx, store.DroneFilter{}); err != nil {
		return s, storeErr("list drones", err)
	}
	if s.missions, err = e.Store.ListMissions(ctx, store.MissionFilter{}); err != nil {
		return s, storeErr("list missions", err)
	}
	return s, nil
}

func (s snapshot) missionByID() map[string]domain.Mission {
	out := make(map[string]domain.Mission, len(s.missions))
	for _, m := range s.missions {
		out[m.ID] = m
	}
	return out
}
