// Package seed imports a fleet description (pilots, drones, missions) from
// YAML into a record store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/store"
)

//go:embed fleet.yml
var sampleFleet []byte

// Tokens accepts either a YAML list or a comma separated string.
type Tokens []string

func (t *Tokens) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*t = domain.SplitTokens(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = domain.NormalizeTokens(list)
		return nil
	}
	return fmt.Errorf("line %d: expected list or comma separated string", node.Line)
}

type PilotRecord struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Skills         Tokens `yaml:"skills"`
	Certifications Tokens `yaml:"certifications"`
	Location       string `yaml:"location"`
	Status         string `yaml:"status"`
	CurrentMission string `yaml:"current_mission"`
	AvailableFrom  string `yaml:"available_from"`
}

type DroneRecord struct {
	ID             string `yaml:"id"`
	Model          string `yaml:"model"`
	Capabilities   Tokens `yaml:"capabilities"`
	Status         string `yaml:"status"`
	Location       string `yaml:"location"`
	CurrentMission string `yaml:"current_mission"`
	MaintenanceDue string `yaml:"maintenance_due"`
}

type MissionRecord struct {
	ID                     string `yaml:"id"`
	Client                 string `yaml:"client"`
	Location               string `yaml:"location"`
	RequiredSkills         Tokens `yaml:"required_skills"`
	RequiredCertifications Tokens `yaml:"required_certifications"`
	StartDate              string `yaml:"start_date"`
	EndDate                string `yaml:"end_date"`
	Priority               string `yaml:"priority"`
	AssignedPilot          string `yaml:"assigned_pilot"`
	AssignedDrone          string `yaml:"assigned_drone"`
	Status                 string `yaml:"status"`
}

type File struct {
	Pilots   []PilotRecord   `yaml:"pilots"`
	Drones   []DroneRecord   `yaml:"drones"`
	Missions []MissionRecord `yaml:"missions"`
}

// Summary counts imported records.
type Summary struct {
	Pilots   int `json:"pilots"`
	Drones   int `json:"drones"`
	Missions int `json:"missions"`
}

func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse fleet: %w", err)
	}
	return f, nil
}

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(data)
}

// Sample is the built-in demo fleet.
func Sample() File {
	f, err := Parse(sampleFleet)
	if err != nil {
		panic(err)
	}
	return f
}

// Fleet canonicalizes every record. Statuses default to Available/Planned and
// priority to Standard when omitted.
func (f File) Fleet() ([]domain.Pilot, []domain.Drone, []domain.Mission, error) {
	pilots := make([]domain.Pilot, 0, len(f.Pilots))
	for _, r := range f.Pilots {
		p, err := r.pilot()
		if err != nil {
			return nil, nil, nil, err
		}
		pilots = append(pilots, p)
	}
	drones := make([]domain.Drone, 0, len(f.Drones))
	for _, r := range f.Drones {
		d, err := r.drone()
		if err != nil {
			return nil, nil, nil, err
		}
		drones = append(drones, d)
	}
	missions := make([]domain.Mission, 0, len(f.Missions))
	for _, r := range f.Missions {
		m, err := r.mission()
		if err != nil {
			return nil, nil, nil, err
		}
		missions = append(missions, m)
	}
	return pilots, drones, missions, nil
}

func (r PilotRecord) pilot() (domain.Pilot, error) {
	status, err := domain.ParsePilotStatus(orDefault(r.Status, string(domain.PilotAvailable)))
	if err != nil {
		return domain.Pilot{}, fmt.Errorf("pilot %s: %w", r.ID, err)
	}
	from, err := domain.ParseDate(r.AvailableFrom)
	if err != nil {
		return domain.Pilot{}, fmt.Errorf("pilot %s: %w", r.ID, err)
	}
	return domain.Pilot{
		ID:             strings.TrimSpace(r.ID),
		Name:           strings.TrimSpace(r.Name),
		Skills:         r.Skills,
		Certifications: r.Certifications,
		Location:       strings.TrimSpace(r.Location),
		Status:         status,
		CurrentMission: domain.RefOf(r.CurrentMission),
		AvailableFrom:  from,
	}, nil
}

func (r DroneRecord) drone() (domain.Drone, error) {
	status, err := domain.ParseDroneStatus(orDefault(r.Status, string(domain.DroneAvailable)))
	if err != nil {
		return domain.Drone{}, fmt.Errorf("drone %s: %w", r.ID, err)
	}
	due, err := domain.ParseDate(r.MaintenanceDue)
	if err != nil {
		return domain.Drone{}, fmt.Errorf("drone %s: %w", r.ID, err)
	}
	return domain.Drone{
		ID:             strings.TrimSpace(r.ID),
		Model:          strings.TrimSpace(r.Model),
		Capabilities:   r.Capabilities,
		Status:         status,
		Location:       strings.TrimSpace(r.Location),
		CurrentMission: domain.RefOf(r.CurrentMission),
		MaintenanceDue: due,
	}, nil
}

func (r MissionRecord) mission() (domain.Mission, error) {
	status, err := domain.ParseMissionStatus(orDefault(r.Status, string(domain.MissionPlanned)))
	if err != nil {
		return domain.Mission{}, fmt.Errorf("mission %s: %w", r.ID, err)
	}
	priority, err := domain.ParsePriority(orDefault(r.Priority, string(domain.PriorityStandard)))
	if err != nil {
		return domain.Mission{}, fmt.Errorf("mission %s: %w", r.ID, err)
	}
	start, err := domain.ParseDate(r.StartDate)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("mission %s start: %w", r.ID, err)
	}
	end, err := domain.ParseDate(r.EndDate)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("mission %s end: %w", r.ID, err)
	}
	return domain.Mission{
		ID:                     strings.TrimSpace(r.ID),
		Client:                 strings.TrimSpace(r.Client),
		Location:               strings.TrimSpace(r.Location),
		RequiredSkills:         r.RequiredSkills,
		RequiredCertifications: r.RequiredCertifications,
		Start:                  start,
		End:                    end,
		Priority:               priority,
		AssignedPilot:          domain.RefOf(r.AssignedPilot),
		AssignedDrone:          domain.RefOf(r.AssignedDrone),
		Status:                 status,
	}, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Import creates every record in file order. It stops at the first failure;
// records created before it stay.
func Import(ctx context.Context, s store.Seeder, f File) (Summary, error) {
	pilots, drones, missions, err := f.Fleet()
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, p := range pilots {
		if _, err := s.CreatePilot(ctx, p); err != nil {
			return sum, fmt.Errorf("import pilot %s: %w", p.ID, err)
		}
		sum.Pilots++
	}
	for _, d := range drones {
		if _, err := s.CreateDrone(ctx, d); err != nil {
			return sum, fmt.Errorf("import drone %s: %w", d.ID, err)
		}
		sum.Drones++
	}
	for _, m := range missions {
		if _, err := s.CreateMission(ctx, m); err != nil {
			return sum, fmt.Errorf("import mission %s: %w", m.ID, err)
		}
		sum.Missions++
	}
	return sum, nil
}
