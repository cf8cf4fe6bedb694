package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
)

// ScanConflicts reports every conflict present in the current fleet state.
func (e Engine) ScanConflicts(ctx context.Context) ([]domain.Conflict, error) {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	conflicts := Scan(snap.pilots, snap.drones, snap.missions)
	counts := map[domain.ConflictKind]int{}
	for _, c := range conflicts {
		counts[c.Kind]++
	}
	for kind, n := range counts {
		e.metrics().ConflictsDetected(string(kind), n)
	}
	e.log().Debug("fleet scan complete", zap.Int("missions", len(snap.missions)), zap.Int("conflicts", len(conflicts)))
	return conflicts, nil
}

// Scan is the pure conflict scanner. Only Planned and Active missions take
// part. Output order is fixed for a given input: pairwise double bookings in
// mission order (pilot before drone for each pair), then per-mission checks in
// mission order.
func Scan(pilots []domain.Pilot, drones []domain.Drone, missions []domain.Mission) []domain.Conflict {
	pilotByID := make(map[string]domain.Pilot, len(pilots))
	for _, p := range pilots {
		pilotByID[p.ID] = p
	}
	droneByID := make(map[string]domain.Drone, len(drones))
	for _, d := range drones {
		droneByID[d.ID] = d
	}
	var active []domain.Mission
	for _, m := range missions {
		if m.Participating() {
			active = append(active, m)
		}
	}

	conflicts := []domain.Conflict{}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			if !missionsOverlap(a, b) {
				continue
			}
			if a.AssignedPilot != nil && domain.RefEquals(b.AssignedPilot, *a.AssignedPilot) {
				conflicts = append(conflicts, doubleBooking(domain.ResourcePilot, *a.AssignedPilot, a, b))
			}
			if a.AssignedDrone != nil && domain.RefEquals(b.AssignedDrone, *a.AssignedDrone) {
				conflicts = append(conflicts, doubleBooking(domain.ResourceDrone, *a.AssignedDrone, a, b))
			}
		}
	}

	for _, m := range active {
		var pilot *domain.Pilot
		var drone *domain.Drone
		if id := domain.RefValue(m.AssignedPilot); id != "" {
			if p, ok := pilotByID[id]; ok {
				pilot = &p
			}
		}
		if id := domain.RefValue(m.AssignedDrone); id != "" {
			if d, ok := droneByID[id]; ok {
				drone = &d
			}
		}
		if pilot != nil {
			if missing := Missing(pilot.Certifications, m.RequiredCertifications); len(missing) > 0 {
				conflicts = append(conflicts, certificationMismatch(*pilot, m, missing))
			}
			if missing := Missing(pilot.Skills, m.RequiredSkills); len(missing) > 0 {
				conflicts = append(conflicts, skillMismatch(*pilot, m, missing))
			}
		}
		if drone != nil && drone.Status == domain.DroneMaintenance {
			conflicts = append(conflicts, maintenanceIssue(*drone, m))
		}
		if pilot != nil && !SameLocation(pilot.Location, m.Location) {
			conflicts = append(conflicts, locationMismatch(domain.ResourcePilot, pilot.ID, pilot.Location, m))
		}
		if drone != nil && !SameLocation(drone.Location, m.Location) {
			conflicts = append(conflicts, locationMismatch(domain.ResourceDrone, drone.ID, drone.Location, m))
		}
		if pilot != nil && pilotUnavailable(pilot.Status) {
			conflicts = append(conflicts, unavailablePilot(*pilot, m))
		}
		if id := domain.RefValue(m.AssignedPilot); id != "" && pilot == nil {
			conflicts = append(conflicts, unknownResource(domain.ResourcePilot, id, m))
		}
		if id := domain.RefValue(m.AssignedDrone); id != "" && drone == nil {
			conflicts = append(conflicts, unknownResource(domain.ResourceDrone, id, m))
		}
	}
	return conflicts
}

func missionRef(m domain.Mission) *string {
	id := m.ID
	return &id
}

func doubleBooking(kind domain.ResourceKind, id string, a, b domain.Mission) domain.Conflict {
	ck := domain.ConflictDoubleBookingPilot
	if kind == domain.ResourceDrone {
		ck = domain.ConflictDoubleBookingDrone
	}
	return domain.Conflict{
		Kind:     ck,
		Severity: domain.SeverityError,
		Message: fmt.Sprintf("%s %s is double-booked: %s (%s to %s) overlaps %s (%s to %s)",
			title(kind), id, a.ID, a.Start, a.End, b.ID, b.Start, b.End),
		Entities:  []string{id, a.ID, b.ID},
		MissionID: missionRef(a),
	}
}

func certificationMismatch(p domain.Pilot, m domain.Mission, missing []string) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictCertificationMismatch,
		Severity:  domain.SeverityError,
		Message:   fmt.Sprintf("Pilot %s lacks certifications required by %s: %s", p.ID, m.ID, strings.Join(missing, ", ")),
		Entities:  []string{p.ID, m.ID},
		MissionID: missionRef(m),
	}
}

func skillMismatch(p domain.Pilot, m domain.Mission, missing []string) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictSkillMismatch,
		Severity:  domain.SeverityWarning,
		Message:   fmt.Sprintf("Pilot %s lacks skills required by %s: %s", p.ID, m.ID, strings.Join(missing, ", ")),
		Entities:  []string{p.ID, m.ID},
		MissionID: missionRef(m),
	}
}

func maintenanceIssue(d domain.Drone, m domain.Mission) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictMaintenanceIssue,
		Severity:  domain.SeverityError,
		Message:   fmt.Sprintf("Drone %s assigned to %s is in maintenance", d.ID, m.ID),
		Entities:  []string{d.ID, m.ID},
		MissionID: missionRef(m),
	}
}

func locationMismatch(kind domain.ResourceKind, id, location string, m domain.Mission) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictLocationMismatch,
		Severity:  domain.SeverityWarning,
		Message:   fmt.Sprintf("%s %s is in %s but %s is in %s", title(kind), id, location, m.ID, m.Location),
		Entities:  []string{id, m.ID},
		MissionID: missionRef(m),
	}
}

func unavailablePilot(p domain.Pilot, m domain.Mission) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictUnavailablePilot,
		Severity:  domain.SeverityError,
		Message:   fmt.Sprintf("Pilot %s assigned to %s is %s", p.ID, m.ID, p.Status),
		Entities:  []string{p.ID, m.ID},
		MissionID: missionRef(m),
	}
}

func unknownResource(kind domain.ResourceKind, id string, m domain.Mission) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictUnknownResource,
		Severity:  domain.SeverityError,
		Message:   fmt.Sprintf("%s references unknown %s %s", m.ID, kind, id),
		Entities:  []string{id, m.ID},
		MissionID: missionRef(m),
	}
}

func notFoundConflict(entity, id string, mission *string) domain.Conflict {
	return domain.Conflict{
		Kind:      domain.ConflictNotFound,
		Severity:  domain.SeverityError,
		Message:   fmt.Sprintf("%s %s not found", entity, id),
		Entities:  []string{id},
		MissionID: mission,
	}
}

func title(kind domain.ResourceKind) string {
	if kind == domain.ResourceDrone {
		return "Drone"
	}
	return "Pilot"
}
