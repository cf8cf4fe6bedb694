package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stackDawg/skylark2/internal/domain"
)

// Candidate is one ranked resource. Scores are a heuristic ordering; negative
// totals still rank.
type Candidate struct {
	Kind           domain.ResourceKind `json:"kind"`
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Status         string              `json:"status"`
	Location       string              `json:"location"`
	CurrentMission *string             `json:"current_mission,omitempty"`
	Score          int                 `json:"score"`
	Issues         []string            `json:"issues"`
}

// Viable reports a strictly positive score.
func (c Candidate) Viable() bool { return c.Score > 0 }

// RankCandidates scores every pilot or drone against the mission and returns
// the full list, best first. Equal scores keep store order.
func (e Engine) RankCandidates(ctx context.Context, missionID string, kind domain.ResourceKind) ([]Candidate, error) {
	m, err := e.Store.GetMission(ctx, missionID)
	if err != nil {
		return nil, storeErr("get mission", err)
	}
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	switch kind {
	case domain.ResourcePilot:
		return RankPilots(snap.pilots, m, snap.missionByID()), nil
	case domain.ResourceDrone:
		return RankDrones(snap.drones, m, snap.missionByID()), nil
	default:
		return nil, fmt.Errorf("resource kind %q: %w", kind, ErrInvalidRequest)
	}
}

func RankPilots(pilots []domain.Pilot, m domain.Mission, missions map[string]domain.Mission) []Candidate {
	out := make([]Candidate, 0, len(pilots))
	for _, p := range pilots {
		out = append(out, ScorePilot(p, m, currentMission(p.CurrentMission, m, missions)))
	}
	sortCandidates(out)
	return out
}

func RankDrones(drones []domain.Drone, m domain.Mission, missions map[string]domain.Mission) []Candidate {
	out := make([]Candidate, 0, len(drones))
	for _, d := range drones {
		out = append(out, ScoreDrone(d, m, currentMission(d.CurrentMission, m, missions)))
	}
	sortCandidates(out)
	return out
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Score > c[j].Score })
}

// currentMission resolves a resource's current mission for overlap scoring.
// The target itself and finished missions never count as overlapping.
func currentMission(ref *string, target domain.Mission, missions map[string]domain.Mission) *domain.Mission {
	id := domain.RefValue(ref)
	if id == "" || id == target.ID {
		return nil
	}
	cur, ok := missions[id]
	if !ok || !cur.Participating() {
		return nil
	}
	return &cur
}

// ScorePilot applies the pilot scoring table. current is the pilot's other
// live mission, if any.
func ScorePilot(p domain.Pilot, m domain.Mission, current *domain.Mission) Candidate {
	c := Candidate{
		Kind:           domain.ResourcePilot,
		ID:             p.ID,
		Name:           p.Name,
		Status:         string(p.Status),
		Location:       p.Location,
		CurrentMission: p.CurrentMission,
		Issues:         []string{},
	}
	switch {
	case p.Status == domain.PilotAvailable:
		c.Score += 30
	case p.Status == domain.PilotAssigned && (current == nil || !missionsOverlap(*current, m)):
		c.Score += 20
	case p.Status == domain.PilotAssigned:
		c.Score -= 50
		c.Issues = append(c.Issues, "has overlapping assignment")
	default:
		c.Score -= 100
		c.Issues = append(c.Issues, fmt.Sprintf("status is %s", p.Status))
	}
	if missing := Missing(p.Skills, m.RequiredSkills); len(missing) == 0 {
		c.Score += 25
	} else {
		c.Score -= 20
		c.Issues = append(c.Issues, "missing skills: "+strings.Join(missing, ", "))
	}
	if missing := Missing(p.Certifications, m.RequiredCertifications); len(missing) == 0 {
		c.Score += 25
	} else {
		c.Score -= 30
		c.Issues = append(c.Issues, "missing certifications: "+strings.Join(missing, ", "))
	}
	if SameLocation(p.Location, m.Location) {
		c.Score += 20
	} else {
		c.Score -= 10
		c.Issues = append(c.Issues, fmt.Sprintf("located in %s, mission in %s", p.Location, m.Location))
	}
	return c
}

// ScoreDrone applies the drone scoring table.
func ScoreDrone(d domain.Drone, m domain.Mission, current *domain.Mission) Candidate {
	c := Candidate{
		Kind:           domain.ResourceDrone,
		ID:             d.ID,
		Name:           d.Model,
		Status:         string(d.Status),
		Location:       d.Location,
		CurrentMission: d.CurrentMission,
		Issues:         []string{},
	}
	switch {
	case d.Status == domain.DroneAvailable:
		c.Score += 30
	case d.Status == domain.DroneDeployed && (current == nil || !missionsOverlap(*current, m)):
		c.Score += 15
	case d.Status == domain.DroneDeployed:
		c.Score -= 50
		c.Issues = append(c.Issues, "deployed on overlapping mission")
	default:
		c.Score -= 100
		c.Issues = append(c.Issues, fmt.Sprintf("status is %s", d.Status))
	}
	if SameLocation(d.Location, m.Location) {
		c.Score += 30
	} else {
		c.Score -= 15
		c.Issues = append(c.Issues, fmt.Sprintf("located in %s, mission in %s", d.Location, m.Location))
	}
	if anyTokenContains(m.RequiredSkills, "thermal") {
		if anyTokenContains(d.Capabilities, "thermal") {
			c.Score += 20
		} else {
			c.Score -= 15
			c.Issues = append(c.Issues, "no thermal capability")
		}
	}
	if anyTokenContains(m.RequiredSkills, "mapping", "survey") {
		switch {
		case anyTokenContains(d.Capabilities, "lidar"):
			c.Score += 20
		case anyTokenContains(d.Capabilities, "rgb"):
			c.Score += 10
		}
	}
	if !d.MaintenanceDue.IsZero() && d.MaintenanceDue.Compare(m.End) <= 0 {
		c.Score -= 10
		c.Issues = append(c.Issues, fmt.Sprintf("maintenance due %s, before mission ends %s", d.MaintenanceDue, m.End))
	}
	return c
}
