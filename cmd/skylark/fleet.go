package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackDawg/skylark2/internal/app"
	"github.com/stackDawg/skylark2/internal/domain"
	"github.com/stackDawg/skylark2/internal/seed"
	"github.com/stackDawg/skylark2/internal/store"
)

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import pilots, drones and missions from a fleet YAML file",
		Long:  "Import a fleet file. Without --file the built-in sample fleet is loaded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := seed.Sample()
			if file != "" {
				var err error
				if f, err = seed.Load(file); err != nil {
					return err
				}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				sum, err := seed.Import(ctx, rt.Store, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("imported %d pilots, %d drones, %d missions\n", sum.Pilots, sum.Drones, sum.Missions)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fleet YAML file")
	return cmd
}

func pilotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pilot", Short: "Inspect and update pilots"}
	var f store.PilotFilter
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List pilots",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				st, err := domain.ParsePilotStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				pilots, err := rt.Store.ListPilots(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pilots)
				}
				tw := newTable(table.Row{"ID", "Name", "Status", "Location", "Skills", "Certifications", "Mission", "Available From"})
				for _, p := range pilots {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Location, strings.Join(p.Skills, ", "),
						strings.Join(p.Certifications, ", "), refString(p.CurrentMission), p.AvailableFrom})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Skill, "skill", "", "skill filter")
	list.Flags().StringVar(&f.Certification, "certification", "", "certification filter")
	list.Flags().StringVar(&f.Location, "location", "", "location filter")
	list.Flags().StringVar(&status, "status", "", "status filter")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a pilot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Store.GetPilot(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a pilot's status (Available clears the current mission)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParsePilotStatus(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.UpdatePilotStatus(ctx, args[0], st, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	return cmd
}

func droneCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "drone", Short: "Inspect and update drones"}
	var f store.DroneFilter
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List drones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				st, err := domain.ParseDroneStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				drones, err := rt.Store.ListDrones(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(drones)
				}
				tw := newTable(table.Row{"ID", "Model", "Status", "Location", "Capabilities", "Mission", "Maintenance Due"})
				for _, d := range drones {
					tw.AppendRow(table.Row{d.ID, d.Model, d.Status, d.Location, strings.Join(d.Capabilities, ", "),
						refString(d.CurrentMission), d.MaintenanceDue})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&f.Capability, "capability", "", "capability filter")
	list.Flags().StringVar(&f.Location, "location", "", "location filter")
	list.Flags().StringVar(&status, "status", "", "status filter")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a drone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Store.GetDrone(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a drone's status (Available clears the current mission)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseDroneStatus(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.UpdateDroneStatus(ctx, args[0], st, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	})
	return cmd
}

func missionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "mission", Short: "Inspect and update missions"}
	var f store.MissionFilter
	var status, priority string
	list := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				st, err := domain.ParseMissionStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}
			if priority != "" {
				pr, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				f.Priority = pr
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				missions, err := rt.Store.ListMissions(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := newTable(table.Row{"ID", "Client", "Priority", "Status", "Location", "Start", "End", "Pilot", "Drone"})
				for _, m := range missions {
					tw.AppendRow(table.Row{m.ID, m.Client, m.Priority, m.Status, m.Location, m.Start, m.End,
						refString(m.AssignedPilot), refString(m.AssignedDrone)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "status filter")
	list.Flags().StringVar(&priority, "priority", "", "priority filter")
	list.Flags().StringVar(&f.PilotID, "pilot", "", "assigned pilot filter")
	list.Flags().StringVar(&f.DroneID, "drone", "", "assigned drone filter")
	list.Flags().BoolVar(&f.ActiveOnly, "active", false, "only Planned and Active missions")
	cmd.AddCommand(list)
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := rt.Store.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a mission's status (Completed and Cancelled release its pilot and drone)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseMissionStatus(args[1])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := rt.Engine.UpdateMissionStatus(ctx, args[0], st, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	})
	return cmd
}

type fleetStatus struct {
	Pilots    map[domain.PilotStatus]int   `json:"pilots"`
	Drones    map[domain.DroneStatus]int   `json:"drones"`
	Missions  map[domain.MissionStatus]int `json:"missions"`
	Errors    int                          `json:"conflict_errors"`
	Warnings  int                          `json:"conflict_warnings"`
	Unstaffed []string                     `json:"unstaffed_missions"`
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fleet overview: counts by status and open conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				st := fleetStatus{
					Pilots:    map[domain.PilotStatus]int{},
					Drones:    map[domain.DroneStatus]int{},
					Missions:  map[domain.MissionStatus]int{},
					Unstaffed: []string{},
				}
				pilots, err := rt.Store.ListPilots(ctx, store.PilotFilter{})
				if err != nil {
					return err
				}
				for _, p := range pilots {
					st.Pilots[p.Status]++
				}
				drones, err := rt.Store.ListDrones(ctx, store.DroneFilter{})
				if err != nil {
					return err
				}
				for _, d := range drones {
					st.Drones[d.Status]++
				}
				missions, err := rt.Store.ListMissions(ctx, store.MissionFilter{})
				if err != nil {
					return err
				}
				for _, m := range missions {
					st.Missions[m.Status]++
					if m.Participating() && (m.AssignedPilot == nil || m.AssignedDrone == nil) {
						st.Unstaffed = append(st.Unstaffed, m.ID)
					}
				}
				conflicts, err := rt.Engine.ScanConflicts(ctx)
				if err != nil {
					return err
				}
				for _, c := range conflicts {
					if c.Severity == domain.SeverityError {
						st.Errors++
					} else {
						st.Warnings++
					}
				}
				if viper.GetBool("json") {
					return printJSON(st)
				}
				tw := newTable(table.Row{"Area", "State", "Count"})
				for _, s := range []domain.PilotStatus{domain.PilotAvailable, domain.PilotAssigned, domain.PilotOnLeave, domain.PilotUnavailable} {
					tw.AppendRow(table.Row{"pilots", s, st.Pilots[s]})
				}
				for _, s := range []domain.DroneStatus{domain.DroneAvailable, domain.DroneDeployed, domain.DroneMaintenance} {
					tw.AppendRow(table.Row{"drones", s, st.Drones[s]})
				}
				for _, s := range []domain.MissionStatus{domain.MissionPlanned, domain.MissionActive, domain.MissionCompleted, domain.MissionCancelled} {
					tw.AppendRow(table.Row{"missions", s, st.Missions[s]})
				}
				tw.AppendSeparator()
				tw.AppendRow(table.Row{"conflicts", domain.SeverityError, st.Errors})
				tw.AppendRow(table.Row{"conflicts", domain.SeverityWarning, st.Warnings})
				tw.Render()
				if len(st.Unstaffed) > 0 {
					fmt.Println("missions missing a pilot or drone:", strings.Join(st.Unstaffed, ", "))
				}
				return nil
			})
		},
	}
}
