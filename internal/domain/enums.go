package domain

import (
	"fmt"
	"strings"
)

type PilotStatus string

const (
	PilotAvailable   PilotStatus = "Available"
	PilotAssigned    PilotStatus = "Assigned"
	PilotOnLeave     PilotStatus = "On Leave"
	PilotUnavailable PilotStatus = "Unavailable"
)

type DroneStatus string

const (
	DroneAvailable   DroneStatus = "Available"
	DroneMaintenance DroneStatus = "Maintenance"
	DroneDeployed    DroneStatus = "Deployed"
)

type MissionStatus string

const (
	MissionPlanned   MissionStatus = "Planned"
	MissionActive    MissionStatus = "Active"
	MissionCompleted MissionStatus = "Completed"
	MissionCancelled MissionStatus = "Cancelled"
)

// Priority orders missions Urgent < High < Standard.
type Priority string

const (
	PriorityUrgent   Priority = "Urgent"
	PriorityHigh     Priority = "High"
	PriorityStandard Priority = "Standard"
)

// Rank returns the sort position of the priority; unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityStandard:
		return 2
	default:
		return 3
	}
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type ConflictKind string

const (
	ConflictDoubleBookingPilot    ConflictKind = "double_booking_pilot"
	ConflictDoubleBookingDrone    ConflictKind = "double_booking_drone"
	ConflictCertificationMismatch ConflictKind = "certification_mismatch"
	ConflictSkillMismatch         ConflictKind = "skill_mismatch"
	ConflictMaintenanceIssue      ConflictKind = "maintenance_issue"
	ConflictLocationMismatch      ConflictKind = "location_mismatch"
	ConflictUnavailablePilot      ConflictKind = "unavailable_pilot"
	ConflictUnknownResource       ConflictKind = "unknown_resource"
	ConflictNotFound              ConflictKind = "not_found"
)

// ResourceKind selects between the two assignable resource types.
type ResourceKind string

const (
	ResourcePilot ResourceKind = "pilot"
	ResourceDrone ResourceKind = "drone"
)

// canon folds case, spaces, dashes and underscores so "on_leave", "On Leave"
// and "ON-LEAVE" compare equal.
func canon(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func ParsePilotStatus(s string) (PilotStatus, error) {
	for _, v := range []PilotStatus{PilotAvailable, PilotAssigned, PilotOnLeave, PilotUnavailable} {
		if canon(s) == canon(string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid pilot status %q", s)
}

func ParseDroneStatus(s string) (DroneStatus, error) {
	for _, v := range []DroneStatus{DroneAvailable, DroneMaintenance, DroneDeployed} {
		if canon(s) == canon(string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid drone status %q", s)
}

func ParseMissionStatus(s string) (MissionStatus, error) {
	for _, v := range []MissionStatus{MissionPlanned, MissionActive, MissionCompleted, MissionCancelled} {
		if canon(s) == canon(string(v)) {
			return v, nil
		}
	}
	// Accept the US spelling too.
	if canon(s) == "canceled" {
		return MissionCancelled, nil
	}
	return "", fmt.Errorf("invalid mission status %q", s)
}

func ParsePriority(s string) (Priority, error) {
	for _, v := range []Priority{PriorityUrgent, PriorityHigh, PriorityStandard} {
		if canon(s) == canon(string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid priority %q", s)
}

func ParseResourceKind(s string) (ResourceKind, error) {
	switch canon(s) {
	case "pilot", "pilots":
		return ResourcePilot, nil
	case "drone", "drones":
		return ResourceDrone, nil
	}
	return "", fmt.Errorf("invalid resource kind %q", s)
}
