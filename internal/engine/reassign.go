package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/store"
)

var (
	ErrStageOrder      = errors.New("plan stage cannot move backwards")
	ErrNotInPlan       = errors.New("choice is not a proposed option")
	ErrAlreadyExecuted = errors.New("replacement already executed")
)

type Stage string

const (
	StageTriggered         Stage = "triggered"
	StageMarkedUnavailable Stage = "marked_unavailable"
	StageImpactAssessed    Stage = "impact_assessed"
	StagePlanProposed      Stage = "plan_proposed"
	StageExecuted          Stage = "executed"
)

var stageOrder = map[Stage]int{
	StageTriggered:         0,
	StageMarkedUnavailable: 1,
	StageImpactAssessed:    2,
	StagePlanProposed:      3,
	StageExecuted:          4,
}

type UrgentRequest struct {
	PilotID         string
	DroneID         string
	Reason          string
	MarkUnavailable bool
	ActorID         string
}

// ReplacementOptions are the viable candidates for one resource slot of one
// affected mission.
type ReplacementOptions struct {
	MissionID          string              `json:"mission_id"`
	Priority           domain.Priority     `json:"priority"`
	Kind               domain.ResourceKind `json:"kind"`
	Replacing          string              `json:"replacing"`
	Candidates         []Candidate         `json:"candidates"`
	NoViableCandidates bool                `json:"no_viable_candidates"`
}

type Execution struct {
	MissionID   string              `json:"mission_id"`
	Kind        domain.ResourceKind `json:"kind"`
	CandidateID string              `json:"candidate_id"`
	Forced      bool                `json:"forced"`
}

// Plan is an urgent-reassignment proposal. It only moves forward through its
// stages and nothing in it is committed until ConfirmReplacement.
type Plan struct {
	ID                string               `json:"id"`
	Reason            string               `json:"reason"`
	PilotID           string               `json:"pilot_id,omitempty"`
	DroneID           string               `json:"drone_id,omitempty"`
	Stage             Stage                `json:"stage"`
	History           []Stage              `json:"history"`
	MarkedUnavailable bool                 `json:"marked_unavailable"`
	AffectedMissions  []domain.Mission     `json:"affected_missions"`
	Options           []ReplacementOptions `json:"options"`
	Executions        []Execution          `json:"executions"`
}

func (p *Plan) advance(s Stage) error {
	if stageOrder[s] <= stageOrder[p.Stage] && len(p.History) > 0 {
		return fmt.Errorf("%s to %s: %w", p.Stage, s, ErrStageOrder)
	}
	p.Stage = s
	p.History = append(p.History, s)
	return nil
}

// OptionsFor returns the slot for a mission and resource kind.
func (p *Plan) OptionsFor(missionID string, kind domain.ResourceKind) (ReplacementOptions, bool) {
	for _, o := range p.Options {
		if o.MissionID == missionID && o.Kind == kind {
			return o, true
		}
	}
	return ReplacementOptions{}, false
}

func (p *Plan) executed(missionID string, kind domain.ResourceKind) bool {
	for _, x := range p.Executions {
		if x.MissionID == missionID && x.Kind == kind {
			return true
		}
	}
	return false
}

// PlanUrgentReassignment runs the protocol up to PlanProposed: optionally
// takes the resource out of service, collects the live missions it was
// assigned to (Urgent first) and ranks replacements for each. Mission
// assignments are never changed here.
func (e Engine) PlanUrgentReassignment(ctx context.Context, req UrgentRequest) (Plan, error) {
	if req.PilotID == "" && req.DroneID == "" {
		return Plan{}, fmt.Errorf("pilot or drone id is required: %w", ErrInvalidRequest)
	}
	if req.PilotID != "" {
		if _, err := e.Store.GetPilot(ctx, req.PilotID); err != nil {
			return Plan{}, storeErr("get pilot", err)
		}
	}
	if req.DroneID != "" {
		if _, err := e.Store.GetDrone(ctx, req.DroneID); err != nil {
			return Plan{}, storeErr("get drone", err)
		}
	}

	plan := Plan{ID: uuid.NewString(), Reason: req.Reason, PilotID: req.PilotID, DroneID: req.DroneID, Options: []ReplacementOptions{}, Executions: []Execution{}}
	_ = plan.advance(StageTriggered)

	if req.MarkUnavailable {
		if err := e.markUnavailable(ctx, req); err != nil {
			return Plan{}, err
		}
		plan.MarkedUnavailable = true
		_ = plan.advance(StageMarkedUnavailable)
	}

	missions, err := e.Store.ListMissions(ctx, store.MissionFilter{ActiveOnly: true})
	if err != nil {
		return Plan{}, storeErr("list missions", err)
	}
	plan.AffectedMissions = AffectedMissions(missions, req.PilotID, req.DroneID)
	_ = plan.advance(StageImpactAssessed)

	snap, err := e.snapshot(ctx)
	if err != nil {
		return Plan{}, err
	}
	byID := snap.missionByID()
	noViable := 0
	for _, m := range plan.AffectedMissions {
		if req.PilotID != "" && domain.RefEquals(m.AssignedPilot, req.PilotID) {
			opt := e.replacementOptions(domain.ResourcePilot, req.PilotID, m, RankPilots(snap.pilots, m, byID), byID)
			plan.Options = append(plan.Options, opt)
		}
		if req.DroneID != "" && domain.RefEquals(m.AssignedDrone, req.DroneID) {
			opt := e.replacementOptions(domain.ResourceDrone, req.DroneID, m, RankDrones(snap.drones, m, byID), byID)
			plan.Options = append(plan.Options, opt)
		}
	}
	for _, o := range plan.Options {
		if o.NoViableCandidates {
			noViable++
		}
	}
	_ = plan.advance(StagePlanProposed)

	e.metrics().PlanProposed(len(plan.AffectedMissions), noViable)
	e.log().Info("reassignment planned",
		zap.String("plan_id", plan.ID), zap.String("pilot_id", req.PilotID), zap.String("drone_id", req.DroneID),
		zap.Int("affected", len(plan.AffectedMissions)), zap.Int("no_viable", noViable))
	affected := make([]string, 0, len(plan.AffectedMissions))
	for _, m := range plan.AffectedMissions {
		affected = append(affected, m.ID)
	}
	e.publish(ctx, events.ReassignmentPlanned, "plan", plan.ID, req.ActorID, events.EventPayload{
		"reason":             req.Reason,
		"pilot_id":           req.PilotID,
		"drone_id":           req.DroneID,
		"marked_unavailable": plan.MarkedUnavailable,
		"affected_missions":  affected,
	})
	return plan, nil
}

// AffectedMissions picks the Planned/Active missions assigned to either
// trigger resource, each once, ordered Urgent, High, Standard with store order
// kept inside a priority.
func AffectedMissions(missions []domain.Mission, pilotID, droneID string) []domain.Mission {
	out := []domain.Mission{}
	for _, m := range missions {
		if !m.Participating() {
			continue
		}
		if (pilotID != "" && domain.RefEquals(m.AssignedPilot, pilotID)) ||
			(droneID != "" && domain.RefEquals(m.AssignedDrone, droneID)) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority.Rank() < out[j].Priority.Rank() })
	return out
}

func (e Engine) replacementOptions(kind domain.ResourceKind, trigger string, m domain.Mission, ranked []Candidate, byID map[string]domain.Mission) ReplacementOptions {
	limit := e.Options.MaxReplacementOptions
	if limit <= 0 {
		limit = DefaultMaxReplacementOptions
	}
	opt := ReplacementOptions{MissionID: m.ID, Priority: m.Priority, Kind: kind, Replacing: trigger, Candidates: []Candidate{}}
	for _, c := range ranked {
		if len(opt.Candidates) == limit {
			break
		}
		if c.ID == trigger || !c.Viable() {
			continue
		}
		if e.Options.ProtectUrgentAssignments {
			if cur := currentMission(c.CurrentMission, m, byID); cur != nil && cur.Priority == domain.PriorityUrgent {
				continue
			}
		}
		opt.Candidates = append(opt.Candidates, c)
	}
	opt.NoViableCandidates = len(opt.Candidates) == 0
	return opt
}

func (e Engine) markUnavailable(ctx context.Context, req UrgentRequest) error {
	unlock := e.lock()
	defer unlock()
	if req.PilotID != "" {
		p, err := e.Store.GetPilot(ctx, req.PilotID)
		if err != nil {
			return storeErr("get pilot", err)
		}
		status := domain.PilotUnavailable
		if _, err := e.Store.UpdatePilot(ctx, p.ID, store.PilotPatch{
			Status:              &status,
			ClearCurrentMission: true,
			ExpectVersion:       store.Version(p.Version),
		}); err != nil {
			return storeErr("update pilot", err)
		}
		e.publish(ctx, events.PilotStatusChanged, "pilot", p.ID, req.ActorID, events.EventPayload{
			"from": string(p.Status), "to": string(status), "reason": req.Reason,
		})
	}
	if req.DroneID != "" {
		d, err := e.Store.GetDrone(ctx, req.DroneID)
		if err != nil {
			return storeErr("get drone", err)
		}
		status := domain.DroneMaintenance
		if _, err := e.Store.UpdateDrone(ctx, d.ID, store.DronePatch{
			Status:              &status,
			ClearCurrentMission: true,
			ExpectVersion:       store.Version(d.Version),
		}); err != nil {
			return storeErr("update drone", err)
		}
		e.publish(ctx, events.DroneStatusChanged, "drone", d.ID, req.ActorID, events.EventPayload{
			"from": string(d.Status), "to": string(status), "reason": req.Reason,
		})
	}
	return nil
}

// Choice picks one proposed candidate for one slot of a plan.
type Choice struct {
	MissionID   string
	Kind        domain.ResourceKind
	CandidateID string
	Force       bool
	ActorID     string
}

// ConfirmReplacement commits a chosen option through Assign. Each slot can be
// confirmed once; a blocked validation leaves the plan untouched.
func (e Engine) ConfirmReplacement(ctx context.Context, plan *Plan, c Choice) (AssignResult, error) {
	if plan == nil {
		return AssignResult{}, fmt.Errorf("plan is required: %w", ErrInvalidRequest)
	}
	if stageOrder[plan.Stage] < stageOrder[StagePlanProposed] {
		return AssignResult{}, fmt.Errorf("plan %s is %s: %w", plan.ID, plan.Stage, ErrStageOrder)
	}
	opt, ok := plan.OptionsFor(c.MissionID, c.Kind)
	if !ok {
		return AssignResult{}, fmt.Errorf("no %s slot for mission %s: %w", c.Kind, c.MissionID, ErrNotInPlan)
	}
	found := false
	for _, cand := range opt.Candidates {
		if cand.ID == c.CandidateID {
			found = true
			break
		}
	}
	if !found {
		return AssignResult{}, fmt.Errorf("%s %s for mission %s: %w", c.Kind, c.CandidateID, c.MissionID, ErrNotInPlan)
	}
	if plan.executed(c.MissionID, c.Kind) {
		return AssignResult{}, fmt.Errorf("%s slot of mission %s: %w", c.Kind, c.MissionID, ErrAlreadyExecuted)
	}

	res, err := e.Assign(ctx, AssignRequest{
		Kind:       c.Kind,
		ResourceID: c.CandidateID,
		MissionID:  c.MissionID,
		Force:      c.Force,
		ActorID:    c.ActorID,
	})
	if err != nil || !res.Committed {
		return res, err
	}
	plan.Executions = append(plan.Executions, Execution{MissionID: c.MissionID, Kind: c.Kind, CandidateID: c.CandidateID, Forced: res.Forced})
	if plan.Stage != StageExecuted {
		if err := plan.advance(StageExecuted); err != nil {
			return res, err
		}
	}
	e.publish(ctx, events.ReassignmentExecuted, "plan", plan.ID, c.ActorID, events.EventPayload{
		"mission_id":   c.MissionID,
		"kind":         string(c.Kind),
		"candidate_id": c.CandidateID,
		"replacing":    opt.Replacing,
	})
	return res, nil
}
