package server

import (
	"strings"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/seed"
)

// Request payloads

type CreatePilotRequest struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	Location       string   `json:"location,omitempty"`
	Status         string   `json:"status,omitempty" example:"Available"`
	CurrentMission string   `json:"current_mission,omitempty"`
	AvailableFrom  string   `json:"available_from,omitempty" example:"2026-02-05"`
}

type CreateDroneRequest struct {
	ID             string   `json:"id"`
	Model          string   `json:"model,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
	Status         string   `json:"status,omitempty" example:"Available"`
	Location       string   `json:"location,omitempty"`
	CurrentMission string   `json:"current_mission,omitempty"`
	MaintenanceDue string   `json:"maintenance_due,omitempty" example:"2026-03-01"`
}

type CreateMissionRequest struct {
	ID                     string   `json:"id"`
	Client                 string   `json:"client,omitempty"`
	Location               string   `json:"location,omitempty"`
	RequiredSkills         []string `json:"required_skills,omitempty"`
	RequiredCertifications []string `json:"required_certifications,omitempty"`
	StartDate              string   `json:"start_date" example:"2026-02-06"`
	EndDate                string   `json:"end_date" example:"2026-02-08"`
	Priority               string   `json:"priority,omitempty" example:"Standard"`
	AssignedPilot          string   `json:"assigned_pilot,omitempty"`
	AssignedDrone          string   `json:"assigned_drone,omitempty"`
	Status                 string   `json:"status,omitempty" example:"Planned"`
}

type StatusRequest struct {
	Status string `json:"status" example:"On Leave"`
}

type ResourceRequest struct {
	Kind       string `json:"kind" example:"pilot"`
	ResourceID string `json:"resource_id"`
}

type AssignRequest struct {
	Kind       string `json:"kind" example:"pilot"`
	ResourceID string `json:"resource_id"`
	Force      bool   `json:"force,omitempty"`
}

type UnassignRequest struct {
	Kind string `json:"kind" example:"drone"`
}

type ReassignmentRequest struct {
	PilotID         string `json:"pilot_id,omitempty"`
	DroneID         string `json:"drone_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	MarkUnavailable bool   `json:"mark_unavailable,omitempty"`
}

type ConfirmRequest struct {
	PlanID      string `json:"plan_id"`
	MissionID   string `json:"mission_id"`
	Kind        string `json:"kind" example:"pilot"`
	CandidateID string `json:"candidate_id"`
	Force       bool   `json:"force,omitempty"`
}

// Response payloads

type PilotResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Skills         []string `json:"skills"`
	Certifications []string `json:"certifications"`
	Location       string   `json:"location"`
	Status         string   `json:"status" enum:"Available,Assigned,On Leave,Unavailable"`
	CurrentMission *string  `json:"current_mission,omitempty"`
	AvailableFrom  string   `json:"available_from,omitempty" format:"date"`
	Version        int64    `json:"version"`
}

type DroneResponse struct {
	ID             string   `json:"id"`
	Model          string   `json:"model"`
	Capabilities   []string `json:"capabilities"`
	Status         string   `json:"status" enum:"Available,Maintenance,Deployed"`
	Location       string   `json:"location"`
	CurrentMission *string  `json:"current_mission,omitempty"`
	MaintenanceDue string   `json:"maintenance_due,omitempty" format:"date"`
	Version        int64    `json:"version"`
}

type MissionResponse struct {
	ID                     string   `json:"id"`
	Client                 string   `json:"client"`
	Location               string   `json:"location"`
	RequiredSkills         []string `json:"required_skills"`
	RequiredCertifications []string `json:"required_certifications"`
	StartDate              string   `json:"start_date" format:"date"`
	EndDate                string   `json:"end_date" format:"date"`
	Priority               string   `json:"priority" enum:"Urgent,High,Standard"`
	AssignedPilot          *string  `json:"assigned_pilot,omitempty"`
	AssignedDrone          *string  `json:"assigned_drone,omitempty"`
	Status                 string   `json:"status" enum:"Planned,Active,Completed,Cancelled"`
	Version                int64    `json:"version"`
}

type ConflictReport struct {
	Conflicts []domain.Conflict `json:"conflicts"`
	Errors    int               `json:"errors"`
	Warnings  int               `json:"warnings"`
}

type AssignResponse struct {
	Validation engine.Validation `json:"validation"`
	Committed  bool              `json:"committed"`
	Forced     bool              `json:"forced"`
	Mission    MissionResponse   `json:"mission"`
	Released   *string           `json:"released,omitempty"`
}

type PlanResponse struct {
	ID                string                      `json:"id"`
	Reason            string                      `json:"reason"`
	PilotID           string                      `json:"pilot_id,omitempty"`
	DroneID           string                      `json:"drone_id,omitempty"`
	Stage             string                      `json:"stage" enum:"triggered,marked_unavailable,impact_assessed,plan_proposed,executed"`
	History           []string                    `json:"history"`
	MarkedUnavailable bool                        `json:"marked_unavailable"`
	AffectedMissions  []MissionResponse           `json:"affected_missions"`
	Options           []engine.ReplacementOptions `json:"options"`
	Executions        []engine.Execution          `json:"executions"`
}

type ConfirmResponse struct {
	Result AssignResponse `json:"result"`
	Plan   PlanResponse   `json:"plan"`
}

type CandidateList struct {
	MissionID  string             `json:"mission_id"`
	Kind       string             `json:"kind"`
	Candidates []engine.Candidate `json:"candidates"`
}

// Conversions

func (r CreatePilotRequest) record() seed.PilotRecord {
	return seed.PilotRecord{
		ID:             r.ID,
		Name:           r.Name,
		Skills:         domain.NormalizeTokens(r.Skills),
		Certifications: domain.NormalizeTokens(r.Certifications),
		Location:       r.Location,
		Status:         r.Status,
		CurrentMission: r.CurrentMission,
		AvailableFrom:  r.AvailableFrom,
	}
}

func (r CreateDroneRequest) record() seed.DroneRecord {
	return seed.DroneRecord{
		ID:             r.ID,
		Model:          r.Model,
		Capabilities:   domain.NormalizeTokens(r.Capabilities),
		Status:         r.Status,
		Location:       r.Location,
		CurrentMission: r.CurrentMission,
		MaintenanceDue: r.MaintenanceDue,
	}
}

func (r CreateMissionRequest) record() seed.MissionRecord {
	return seed.MissionRecord{
		ID:                     r.ID,
		Client:                 r.Client,
		Location:               r.Location,
		RequiredSkills:         domain.NormalizeTokens(r.RequiredSkills),
		RequiredCertifications: domain.NormalizeTokens(r.RequiredCertifications),
		StartDate:              r.StartDate,
		EndDate:                r.EndDate,
		Priority:               r.Priority,
		AssignedPilot:          r.AssignedPilot,
		AssignedDrone:          r.AssignedDrone,
		Status:                 r.Status,
	}
}

func pilotResponse(p domain.Pilot) PilotResponse {
	return PilotResponse{
		ID:             p.ID,
		Name:           p.Name,
		Skills:         nonNilSlice(p.Skills),
		Certifications: nonNilSlice(p.Certifications),
		Location:       p.Location,
		Status:         string(p.Status),
		CurrentMission: p.CurrentMission,
		AvailableFrom:  p.AvailableFrom.String(),
		Version:        p.Version,
	}
}

func droneResponse(d domain.Drone) DroneResponse {
	return DroneResponse{
		ID:             d.ID,
		Model:          d.Model,
		Capabilities:   nonNilSlice(d.Capabilities),
		Status:         string(d.Status),
		Location:       d.Location,
		CurrentMission: d.CurrentMission,
		MaintenanceDue: d.MaintenanceDue.String(),
		Version:        d.Version,
	}
}

func missionResponse(m domain.Mission) MissionResponse {
	return MissionResponse{
		ID:                     m.ID,
		Client:                 m.Client,
		Location:               m.Location,
		RequiredSkills:         nonNilSlice(m.RequiredSkills),
		RequiredCertifications: nonNilSlice(m.RequiredCertifications),
		StartDate:              m.Start.String(),
		EndDate:                m.End.String(),
		Priority:               string(m.Priority),
		AssignedPilot:          m.AssignedPilot,
		AssignedDrone:          m.AssignedDrone,
		Status:                 string(m.Status),
		Version:                m.Version,
	}
}

func mapPilots(items []domain.Pilot) []PilotResponse {
	out := make([]PilotResponse, 0, len(items))
	for _, p := range items {
		out = append(out, pilotResponse(p))
	}
	return out
}

func mapDrones(items []domain.Drone) []DroneResponse {
	out := make([]DroneResponse, 0, len(items))
	for _, d := range items {
		out = append(out, droneResponse(d))
	}
	return out
}

func mapMissions(items []domain.Mission) []MissionResponse {
	out := make([]MissionResponse, 0, len(items))
	for _, m := range items {
		out = append(out, missionResponse(m))
	}
	return out
}

func conflictReport(conflicts []domain.Conflict) ConflictReport {
	rep := ConflictReport{Conflicts: nonNilSlice(conflicts)}
	for _, c := range conflicts {
		if c.Severity == domain.SeverityError {
			rep.Errors++
		} else {
			rep.Warnings++
		}
	}
	return rep
}

func validationResponse(v engine.Validation) engine.Validation {
	v.Conflicts = nonNilSlice(v.Conflicts)
	return v
}

func assignResponse(res engine.AssignResult) AssignResponse {
	return AssignResponse{
		Validation: validationResponse(res.Validation),
		Committed:  res.Committed,
		Forced:     res.Forced,
		Mission:    missionResponse(res.Mission),
		Released:   res.Released,
	}
}

func planResponse(p engine.Plan) PlanResponse {
	history := make([]string, 0, len(p.History))
	for _, s := range p.History {
		history = append(history, string(s))
	}
	opts := make([]engine.ReplacementOptions, 0, len(p.Options))
	for _, o := range p.Options {
		o.Candidates = nonNilSlice(o.Candidates)
		opts = append(opts, o)
	}
	return PlanResponse{
		ID:                p.ID,
		Reason:            p.Reason,
		PilotID:           p.PilotID,
		DroneID:           p.DroneID,
		Stage:             string(p.Stage),
		History:           history,
		MarkedUnavailable: p.MarkedUnavailable,
		AffectedMissions:  mapMissions(p.AffectedMissions),
		Options:           opts,
		Executions:        nonNilSlice(p.Executions),
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func trimmed(s string) string { return strings.TrimSpace(s) }
