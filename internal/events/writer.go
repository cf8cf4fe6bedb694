package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackDawg/skylark2/internal/db"
)

// Event types emitted by the engine.
const (
	AssignmentCommitted  = "assignment.committed"
	AssignmentReleased   = "assignment.released"
	PilotStatusChanged   = "pilot.status"
	DroneStatusChanged   = "drone.status"
	MissionStatusChanged = "mission.status"
	ReassignmentPlanned  = "reassignment.planned"
	ReassignmentExecuted = "reassignment.executed"
)

type EventPayload map[string]any

type Event struct {
	ID         string       `json:"id"`
	TS         string       `json:"ts" format:"date-time"`
	Type       string       `json:"type"`
	EntityKind string       `json:"entity_kind"`
	EntityID   string       `json:"entity_id,omitempty"`
	ActorID    string       `json:"actor_id"`
	Payload    EventPayload `json:"payload"`
}

// New stamps an event with an id and timestamp.
func New(now time.Time, evtType, entityKind, entityID, actorID string, payload EventPayload) Event {
	if payload == nil {
		payload = EventPayload{}
	}
	if actorID == "" {
		actorID = "system"
	}
	return Event{
		ID:         uuid.NewString(),
		TS:         now.UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
}

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// Writer appends events to the SQL journal.
type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func (w Writer) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, db.Rebind(w.Dialect, `INSERT INTO events(id,ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		evt.ID, evt.TS, evt.Type, evt.EntityKind, nullable(evt.EntityID), evt.ActorID, string(data))
	return err
}

// Latest returns the newest n events, newest first.
func (w Writer) Latest(ctx context.Context, n int, evtType, entityKind, entityID string) ([]Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE 1=1`
	var args []any
	if evtType != "" {
		query += " AND type=?"
		args = append(args, evtType)
	}
	if entityKind != "" {
		query += " AND entity_kind=?"
		args = append(args, entityKind)
	}
	if entityID != "" {
		query += " AND entity_id=?"
		args = append(args, entityID)
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ?"
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, db.Rebind(w.Dialect, query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, fmt.Errorf("decode event %s payload: %w", e.ID, err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Fanout delivers each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps events in memory. Used by tests and the memory store backend.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
