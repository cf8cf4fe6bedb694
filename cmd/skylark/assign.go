package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackDawg/skylark2/internal/app"
	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/engine"
)

func conflictsCmd() *cobra.Command {
	var failOnError bool
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Scan every live mission for conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				conflicts, err := rt.Engine.ScanConflicts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(conflicts); err != nil {
						return err
					}
				} else {
					printConflicts(conflicts)
				}
				if failOnError {
					for _, c := range conflicts {
						if c.Severity == domain.SeverityError {
							return errors.New("fleet has error conflicts")
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when an error conflict is found")
	return cmd
}

func printConflicts(conflicts []domain.Conflict) {
	if len(conflicts) == 0 {
		fmt.Println("no conflicts")
		return
	}
	tw := newTable(table.Row{"Severity", "Kind", "Mission", "Entities", "Message"})
	for _, c := range conflicts {
		tw.AppendRow(table.Row{c.Severity, c.Kind, refString(c.MissionID), strings.Join(c.Entities, ", "), c.Message})
	}
	tw.Render()
}

// resourceFlags reads the --pilot/--drone pair used by validate and assign.
func resourceFlags(pilotID, droneID string) (domain.ResourceKind, string, error) {
	switch {
	case pilotID != "" && droneID != "":
		return "", "", errors.New("pass either --pilot or --drone, not both")
	case pilotID != "":
		return domain.ResourcePilot, pilotID, nil
	case droneID != "":
		return domain.ResourceDrone, droneID, nil
	}
	return "", "", errors.New("--pilot or --drone required")
}

func validateCmd() *cobra.Command {
	var missionID, pilotID, droneID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pilot or drone against a mission without assigning",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := resourceFlags(pilotID, droneID)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				v, err := rt.Engine.ValidateAssignment(ctx, kind, id, missionID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(v)
				}
				verdict := "valid"
				if !v.Valid {
					verdict = "blocked"
				}
				fmt.Printf("%s %s on mission %s: %s\n", kind, id, missionID, verdict)
				printConflicts(v.Conflicts)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&pilotID, "pilot", "", "pilot id")
	cmd.Flags().StringVar(&droneID, "drone", "", "drone id")
	_ = cmd.MarkFlagRequired("mission")
	return cmd
}

func rankCmd() *cobra.Command {
	var missionID, kind string
	var limit int
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank pilots or drones for a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseResourceKind(kind)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				cands, err := rt.Engine.RankCandidates(ctx, missionID, k)
				if err != nil {
					return err
				}
				if limit > 0 && len(cands) > limit {
					cands = cands[:limit]
				}
				if viper.GetBool("json") {
					return printJSON(cands)
				}
				printCandidates(cands)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&kind, "kind", "pilot", "pilot or drone")
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the best n")
	_ = cmd.MarkFlagRequired("mission")
	return cmd
}

func printCandidates(cands []engine.Candidate) {
	tw := newTable(table.Row{"#", "ID", "Name", "Status", "Location", "Score", "Viable", "Issues"})
	for i, c := range cands {
		tw.AppendRow(table.Row{i + 1, c.ID, c.Name, c.Status, c.Location, c.Score, c.Viable(), strings.Join(c.Issues, "; ")})
	}
	tw.Render()
}

func assignCmd() *cobra.Command {
	var missionID, pilotID, droneID string
	var force bool
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Validate and commit an assignment",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, err := resourceFlags(pilotID, droneID)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.Assign(ctx, engine.AssignRequest{
					Kind:       kind,
					ResourceID: id,
					MissionID:  missionID,
					Force:      force,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					if err := printJSON(res); err != nil {
						return err
					}
				} else {
					printConflicts(res.Validation.Conflicts)
				}
				if !res.Committed {
					if res.Validation.NotFound() {
						return errors.New("assignment references a missing record")
					}
					return errors.New("assignment blocked by conflicts; rerun with --force to override")
				}
				if !viper.GetBool("json") {
					msg := fmt.Sprintf("assigned %s %s to mission %s", kind, id, missionID)
					if res.Forced {
						msg += " (forced)"
					}
					if res.Released != nil {
						msg += ", released " + *res.Released
					}
					fmt.Println(msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&pilotID, "pilot", "", "pilot id")
	cmd.Flags().StringVar(&droneID, "drone", "", "drone id")
	cmd.Flags().BoolVar(&force, "force", false, "commit despite error conflicts")
	_ = cmd.MarkFlagRequired("mission")
	return cmd
}

func unassignCmd() *cobra.Command {
	var missionID, kind string
	cmd := &cobra.Command{
		Use:   "unassign",
		Short: "Clear a mission's pilot or drone",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseResourceKind(kind)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := rt.Engine.Unassign(ctx, k, missionID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&missionID, "mission", "", "mission id")
	cmd.Flags().StringVar(&kind, "kind", "", "pilot or drone")
	_ = cmd.MarkFlagRequired("mission")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func urgentCmd() *cobra.Command {
	var req engine.UrgentRequest
	var execute bool
	cmd := &cobra.Command{
		Use:   "urgent",
		Short: "Plan replacements for a pilot or drone that dropped out",
		Long: `Plan an urgent reassignment. With --mark-unavailable the pilot becomes Unavailable
(or the drone goes to Maintenance) first. Every live mission it held is listed, Urgent first,
with the best replacement options. --execute confirms the top option of every slot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ActorID = viper.GetString("actor-id")
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				plan, err := rt.Engine.PlanUrgentReassignment(ctx, req)
				if err != nil {
					return err
				}
				if execute {
					for _, opt := range plan.Options {
						if opt.NoViableCandidates {
							continue
						}
						if _, err := rt.Engine.ConfirmReplacement(ctx, &plan, engine.Choice{
							MissionID:   opt.MissionID,
							Kind:        opt.Kind,
							CandidateID: opt.Candidates[0].ID,
							ActorID:     req.ActorID,
						}); err != nil {
							return err
						}
					}
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				printPlan(plan)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.PilotID, "pilot", "", "pilot id")
	cmd.Flags().StringVar(&req.DroneID, "drone", "", "drone id")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "why the resource dropped out")
	cmd.Flags().BoolVar(&req.MarkUnavailable, "mark-unavailable", false, "take the resource out of service first")
	cmd.Flags().BoolVar(&execute, "execute", false, "confirm the top option for every affected slot")
	return cmd
}

func printPlan(plan engine.Plan) {
	fmt.Printf("plan %s: %s (%d affected missions)\n", plan.ID, plan.Stage, len(plan.AffectedMissions))
	if len(plan.Options) == 0 {
		fmt.Println("no live missions affected")
		return
	}
	tw := newTable(table.Row{"Mission", "Priority", "Slot", "Replacing", "Options", "Confirmed"})
	for _, opt := range plan.Options {
		names := make([]string, 0, len(opt.Candidates))
		for _, c := range opt.Candidates {
			names = append(names, fmt.Sprintf("%s (%d)", c.ID, c.Score))
		}
		options := strings.Join(names, ", ")
		if opt.NoViableCandidates {
			options = "no viable candidates"
		}
		confirmed := ""
		for _, x := range plan.Executions {
			if x.MissionID == opt.MissionID && x.Kind == opt.Kind {
				confirmed = x.CandidateID
			}
		}
		tw.AppendRow(table.Row{opt.MissionID, opt.Priority, opt.Kind, opt.Replacing, options, confirmed})
	}
	tw.Render()
}
