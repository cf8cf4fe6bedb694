package domain

import "strings"

// Pilot is a certified operator that can be assigned to missions.
type Pilot struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Skills         []string    `json:"skills"`
	Certifications []string    `json:"certifications"`
	Location       string      `json:"location"`
	Status         PilotStatus `json:"status" enum:"Available,Assigned,On Leave,Unavailable"`
	CurrentMission *string     `json:"current_mission,omitempty"`
	AvailableFrom  Date        `json:"available_from,omitempty"`
	Version        int64       `json:"version"`
}

type Drone struct {
	ID             string      `json:"id"`
	Model          string      `json:"model"`
	Capabilities   []string    `json:"capabilities"`
	Status         DroneStatus `json:"status" enum:"Available,Maintenance,Deployed"`
	Location       string      `json:"location"`
	CurrentMission *string     `json:"current_mission,omitempty"`
	MaintenanceDue Date        `json:"maintenance_due,omitempty"`
	Version        int64       `json:"version"`
}

// Mission is a time-bounded client engagement. Start and End are inclusive.
type Mission struct {
	ID                     string        `json:"id"`
	Client                 string        `json:"client"`
	Location               string        `json:"location"`
	RequiredSkills         []string      `json:"required_skills"`
	RequiredCertifications []string      `json:"required_certifications"`
	Start                  Date          `json:"start_date"`
	End                    Date          `json:"end_date"`
	Priority               Priority      `json:"priority" enum:"Urgent,High,Standard"`
	AssignedPilot          *string       `json:"assigned_pilot,omitempty"`
	AssignedDrone          *string       `json:"assigned_drone,omitempty"`
	Status                 MissionStatus `json:"status" enum:"Planned,Active,Completed,Cancelled"`
	Version                int64         `json:"version"`
}

// Participating reports whether the mission takes part in conflict checks.
func (m Mission) Participating() bool {
	return m.Status == MissionPlanned || m.Status == MissionActive
}

// AssignedTo returns the mission's reference for the given resource kind.
func (m Mission) AssignedTo(kind ResourceKind) *string {
	if kind == ResourceDrone {
		return m.AssignedDrone
	}
	return m.AssignedPilot
}

// Conflict is a computed rule violation. It is never persisted.
type Conflict struct {
	Kind      ConflictKind `json:"kind"`
	Severity  Severity     `json:"severity" enum:"error,warning"`
	Message   string       `json:"message"`
	Entities  []string     `json:"entities"`
	MissionID *string      `json:"mission_id,omitempty"`
}

// RefOf turns an identifier into an optional reference; blank means unassigned.
func RefOf(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}

// RefValue returns the referenced identifier or "".
func RefValue(ref *string) string {
	if ref == nil {
		return ""
	}
	return *ref
}

// RefEquals reports whether ref points at id. A nil ref never matches.
func RefEquals(ref *string, id string) bool {
	return ref != nil && *ref != "" && *ref == id
}

// NormalizeTokens trims tokens, drops blanks and removes case-insensitive duplicates,
// keeping the first spelling seen.
func NormalizeTokens(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, tok := range in {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		key := strings.ToLower(tok)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// SplitTokens parses a comma separated token list such as "Mapping, Thermal".
func SplitTokens(s string) []string {
	return NormalizeTokens(strings.Split(s, ","))
}
