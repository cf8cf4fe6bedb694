package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stackDawg/skylark2/internal/db"
	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/store"
)

// Repo is the SQL record store. It works against sqlite and postgres.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var _ store.Backend = Repo{}

// ErrNotFound is kept as the package level sentinel callers already match on.
var ErrNotFound = store.ErrNotFound

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) q(query string) string { return db.Rebind(r.Dialect, query) }

const (
	pilotCols   = `id,name,skills_json,certifications_json,location,status,current_mission,available_from,version`
	droneCols   = `id,model,capabilities_json,status,location,current_mission,maintenance_due,version`
	missionCols = `id,client,location,required_skills_json,required_certifications_json,start_date,end_date,priority,assigned_pilot,assigned_drone,status,version`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPilot(row rowScanner) (domain.Pilot, error) {
	var p domain.Pilot
	var skills, certs, status string
	var current, availableFrom sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &skills, &certs, &p.Location, &status, &current, &availableFrom, &p.Version); err != nil {
		return p, err
	}
	var err error
	if p.Skills, err = unmarshalTokens(skills); err != nil {
		return p, fmt.Errorf("pilot %s skills: %w", p.ID, err)
	}
	if p.Certifications, err = unmarshalTokens(certs); err != nil {
		return p, fmt.Errorf("pilot %s certifications: %w", p.ID, err)
	}
	if p.Status, err = domain.ParsePilotStatus(status); err != nil {
		return p, fmt.Errorf("pilot %s: %w", p.ID, err)
	}
	p.CurrentMission = nullRef(current)
	if p.AvailableFrom, err = domain.ParseDate(availableFrom.String); err != nil {
		return p, fmt.Errorf("pilot %s: %w", p.ID, err)
	}
	return p, nil
}

func scanDrone(row rowScanner) (domain.Drone, error) {
	var d domain.Drone
	var caps, status string
	var current, due sql.NullString
	if err := row.Scan(&d.ID, &d.Model, &caps, &status, &d.Location, &current, &due, &d.Version); err != nil {
		return d, err
	}
	var err error
	if d.Capabilities, err = unmarshalTokens(caps); err != nil {
		return d, fmt.Errorf("drone %s capabilities: %w", d.ID, err)
	}
	if d.Status, err = domain.ParseDroneStatus(status); err != nil {
		return d, fmt.Errorf("drone %s: %w", d.ID, err)
	}
	d.CurrentMission = nullRef(current)
	if d.MaintenanceDue, err = domain.ParseDate(due.String); err != nil {
		return d, fmt.Errorf("drone %s: %w", d.ID, err)
	}
	return d, nil
}

func scanMission(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var skills, certs, start, end, priority, status string
	var pilot, drone sql.NullString
	if err := row.Scan(&m.ID, &m.Client, &m.Location, &skills, &certs, &start, &end, &priority, &pilot, &drone, &status, &m.Version); err != nil {
		return m, err
	}
	var err error
	if m.RequiredSkills, err = unmarshalTokens(skills); err != nil {
		return m, fmt.Errorf("mission %s skills: %w", m.ID, err)
	}
	if m.RequiredCertifications, err = unmarshalTokens(certs); err != nil {
		return m, fmt.Errorf("mission %s certifications: %w", m.ID, err)
	}
	if m.Start, err = domain.ParseDate(start); err != nil {
		return m, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	if m.End, err = domain.ParseDate(end); err != nil {
		return m, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	if m.Priority, err = domain.ParsePriority(priority); err != nil {
		return m, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	if m.Status, err = domain.ParseMissionStatus(status); err != nil {
		return m, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	m.AssignedPilot = nullRef(pilot)
	m.AssignedDrone = nullRef(drone)
	return m, nil
}

func (r Repo) CreatePilot(ctx context.Context, p domain.Pilot) (domain.Pilot, error) {
	if err := store.ValidatePilot(p); err != nil {
		return domain.Pilot{}, err
	}
	skills, certs := marshalTokens(p.Skills), marshalTokens(p.Certifications)
	p.Version = 1
	err := r.insert(ctx, "pilots", "pilot", p.ID,
		`INSERT INTO pilots(id,seq,name,skills_json,certifications_json,location,status,current_mission,available_from,version)
VALUES (?,(SELECT COALESCE(MAX(seq),0)+1 FROM pilots),?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, skills, certs, p.Location, string(p.Status), nullableRef(p.CurrentMission), nullableDate(p.AvailableFrom), p.Version)
	if err != nil {
		return domain.Pilot{}, err
	}
	return r.GetPilot(ctx, p.ID)
}

func (r Repo) CreateDrone(ctx context.Context, d domain.Drone) (domain.Drone, error) {
	if err := store.ValidateDrone(d); err != nil {
		return domain.Drone{}, err
	}
	d.Version = 1
	err := r.insert(ctx, "drones", "drone", d.ID,
		`INSERT INTO drones(id,seq,model,capabilities_json,status,location,current_mission,maintenance_due,version)
VALUES (?,(SELECT COALESCE(MAX(seq),0)+1 FROM drones),?,?,?,?,?,?,?)`,
		d.ID, d.Model, marshalTokens(d.Capabilities), string(d.Status), d.Location, nullableRef(d.CurrentMission), nullableDate(d.MaintenanceDue), d.Version)
	if err != nil {
		return domain.Drone{}, err
	}
	return r.GetDrone(ctx, d.ID)
}

func (r Repo) CreateMission(ctx context.Context, m domain.Mission) (domain.Mission, error) {
	if err := store.ValidateMission(m); err != nil {
		return domain.Mission{}, err
	}
	m.Version = 1
	err := r.insert(ctx, "missions", "mission", m.ID,
		`INSERT INTO missions(id,seq,client,location,required_skills_json,required_certifications_json,start_date,end_date,priority,assigned_pilot,assigned_drone,status,version)
VALUES (?,(SELECT COALESCE(MAX(seq),0)+1 FROM missions),?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Client, m.Location, marshalTokens(m.RequiredSkills), marshalTokens(m.RequiredCertifications),
		m.Start.String(), m.End.String(), string(m.Priority), nullableRef(m.AssignedPilot), nullableRef(m.AssignedDrone), string(m.Status), m.Version)
	if err != nil {
		return domain.Mission{}, err
	}
	return r.GetMission(ctx, m.ID)
}

func (r Repo) insert(ctx context.Context, table, entity, id, query string, args ...any) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var n int
	if err := tx.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM `+table+` WHERE id=?`), id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return store.Duplicate(entity, id)
	}
	if _, err := tx.ExecContext(ctx, r.q(query), args...); err != nil {
		return fmt.Errorf("insert %s: %w", entity, err)
	}
	return tx.Commit()
}

func (r Repo) GetPilot(ctx context.Context, id string) (domain.Pilot, error) {
	return getPilot(ctx, r.DB, r.Dialect, id)
}

func getPilot(ctx context.Context, q querier, d db.Dialect, id string) (domain.Pilot, error) {
	p, err := scanPilot(q.QueryRowContext(ctx, db.Rebind(d, `SELECT `+pilotCols+` FROM pilots WHERE id=?`), id))
	if err == sql.ErrNoRows {
		return p, store.NotFound("pilot", id)
	}
	return p, err
}

func (r Repo) GetDrone(ctx context.Context, id string) (domain.Drone, error) {
	return getDrone(ctx, r.DB, r.Dialect, id)
}

func getDrone(ctx context.Context, q querier, d db.Dialect, id string) (domain.Drone, error) {
	dr, err := scanDrone(q.QueryRowContext(ctx, db.Rebind(d, `SELECT `+droneCols+` FROM drones WHERE id=?`), id))
	if err == sql.ErrNoRows {
		return dr, store.NotFound("drone", id)
	}
	return dr, err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return getMission(ctx, r.DB, r.Dialect, id)
}

func getMission(ctx context.Context, q querier, d db.Dialect, id string) (domain.Mission, error) {
	m, err := scanMission(q.QueryRowContext(ctx, db.Rebind(d, `SELECT `+missionCols+` FROM missions WHERE id=?`), id))
	if err == sql.ErrNoRows {
		return m, store.NotFound("mission", id)
	}
	return m, err
}

// ListPilots filters in SQL where a column maps directly and in Go for token sets.
func (r Repo) ListPilots(ctx context.Context, f store.PilotFilter) ([]domain.Pilot, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+pilotCols+` FROM pilots`+where(clauses)+` ORDER BY seq`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Pilot{}
	for rows.Next() {
		p, err := scanPilot(rows)
		if err != nil {
			return nil, err
		}
		if f.Match(p) {
			res = append(res, p)
		}
	}
	return res, rows.Err()
}

func (r Repo) ListDrones(ctx context.Context, f store.DroneFilter) ([]domain.Drone, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+droneCols+` FROM drones`+where(clauses)+` ORDER BY seq`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Drone{}
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		if f.Match(d) {
			res = append(res, d)
		}
	}
	return res, rows.Err()
}

func (r Repo) ListMissions(ctx context.Context, f store.MissionFilter) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, string(f.Priority))
	}
	if f.PilotID != "" {
		clauses = append(clauses, "assigned_pilot=?")
		args = append(args, f.PilotID)
	}
	if f.DroneID != "" {
		clauses = append(clauses, "assigned_drone=?")
		args = append(args, f.DroneID)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+missionCols+` FROM missions`+where(clauses)+` ORDER BY seq`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Mission{}
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		if f.Match(m) {
			res = append(res, m)
		}
	}
	return res, rows.Err()
}

// UpdatePilot reads, patches and writes back inside one transaction. The write
// is conditional on the version read, so a concurrent writer surfaces as
// store.ErrVersionConflict instead of a lost update.
func (r Repo) UpdatePilot(ctx context.Context, id string, patch store.PilotPatch) (domain.Pilot, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Pilot{}, err
	}
	defer tx.Rollback()
	cur, err := getPilot(ctx, tx, r.Dialect, id)
	if err != nil {
		return domain.Pilot{}, err
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return domain.Pilot{}, err
	}
	res, err := tx.ExecContext(ctx, r.q(`UPDATE pilots SET status=?, location=?, current_mission=?, available_from=?, version=? WHERE id=? AND version=?`),
		string(next.Status), next.Location, nullableRef(next.CurrentMission), nullableDate(next.AvailableFrom), next.Version, id, cur.Version)
	if err != nil {
		return domain.Pilot{}, fmt.Errorf("update pilot: %w", err)
	}
	if err := expectOneRow(res, "pilot", id); err != nil {
		return domain.Pilot{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Pilot{}, err
	}
	return next, nil
}

func (r Repo) UpdateDrone(ctx context.Context, id string, patch store.DronePatch) (domain.Drone, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Drone{}, err
	}
	defer tx.Rollback()
	cur, err := getDrone(ctx, tx, r.Dialect, id)
	if err != nil {
		return domain.Drone{}, err
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return domain.Drone{}, err
	}
	res, err := tx.ExecContext(ctx, r.q(`UPDATE drones SET status=?, location=?, current_mission=?, maintenance_due=?, version=? WHERE id=? AND version=?`),
		string(next.Status), next.Location, nullableRef(next.CurrentMission), nullableDate(next.MaintenanceDue), next.Version, id, cur.Version)
	if err != nil {
		return domain.Drone{}, fmt.Errorf("update drone: %w", err)
	}
	if err := expectOneRow(res, "drone", id); err != nil {
		return domain.Drone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Drone{}, err
	}
	return next, nil
}

func (r Repo) UpdateMission(ctx context.Context, id string, patch store.MissionPatch) (domain.Mission, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()
	cur, err := getMission(ctx, tx, r.Dialect, id)
	if err != nil {
		return domain.Mission{}, err
	}
	next, err := patch.Apply(cur)
	if err != nil {
		return domain.Mission{}, err
	}
	res, err := tx.ExecContext(ctx, r.q(`UPDATE missions SET status=?, priority=?, assigned_pilot=?, assigned_drone=?, version=? WHERE id=? AND version=?`),
		string(next.Status), string(next.Priority), nullableRef(next.AssignedPilot), nullableRef(next.AssignedDrone), next.Version, id, cur.Version)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("update mission: %w", err)
	}
	if err := expectOneRow(res, "mission", id); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return next, nil
}

func expectOneRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s changed concurrently: %w", entity, id, store.ErrVersionConflict)
	}
	return nil
}

func where(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

func marshalTokens(in []string) string {
	b, _ := json.Marshal(domain.NormalizeTokens(in))
	return string(b)
}

func unmarshalTokens(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableRef(ref *string) any {
	if ref == nil || *ref == "" {
		return nil
	}
	return *ref
}

func nullableDate(d domain.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullRef(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return domain.RefOf(v.String)
}
