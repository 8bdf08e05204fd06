package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pulsewatch/internal/incident"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

var (
	incidentsProjectID string
	incidentsStatus    string
)

// incidentsCmd represents the incidents command group
var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Incident management commands",
	Long: `Commands for inspecting and resolving incidents.

Examples:
  # List a project's open incidents
  pulsectl incidents list --project <project-id> --status open

  # Resolve an incident by hand
  pulsectl incidents resolve <incident-id> --project <project-id>`,
}

// incidentsListCmd lists a project's incidents
var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's incidents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if incidentsProjectID == "" {
			return fmt.Errorf("--project is required")
		}
		filter := storage.IncidentFilter{Status: models.IncidentStatus(incidentsStatus)}
		if filter.Status != "" && !models.ValidStatus(filter.Status) {
			return fmt.Errorf("invalid status %q", incidentsStatus)
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.Incidents().ListByProject(context.Background(), incidentsProjectID, filter)
		if err != nil {
			return fmt.Errorf("list incidents: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(list, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(list) == 0 {
			fmt.Println("No incidents found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-13s  %-8s  %-19s  %s\n",
			"ID", "STATUS", "SEVERITY", "STARTED", "SUMMARY")
		fmt.Println(strings.Repeat("-", 120))

		for _, inc := range list {
			summary := inc.Summary
			if len(summary) > 40 {
				summary = summary[:37] + "..."
			}
			fmt.Printf("%-36s  %-13s  %-8s  %-19s  %s\n",
				inc.ID, inc.Status, inc.Severity,
				inc.StartedAt.Format("2006-01-02 15:04:05"), summary)
		}
		fmt.Printf("\nTotal: %d incident(s)\n", len(list))

		return nil
	},
}

// incidentsResolveCmd resolves an incident
var incidentsResolveCmd = &cobra.Command{
	Use:   "resolve <incident-id>",
	Short: "Resolve an incident",
	Long: `Transition an incident to resolved.

Fails when the incident is already resolved: resolution is terminal and
a recurring breach opens a new incident.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if incidentsProjectID == "" {
			return fmt.Errorf("--project is required")
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := incident.NewService(store)
		inc, err := svc.UpdateStatus(context.Background(), incidentsProjectID, args[0], models.StatusResolved)
		if err != nil {
			return fmt.Errorf("resolve incident: %w", err)
		}

		resolvedAt := "now"
		if inc.ResolvedAt != nil {
			resolvedAt = inc.ResolvedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("Incident %s resolved at %s\n", inc.ID, resolvedAt)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(incidentsCmd)
	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsCmd.AddCommand(incidentsResolveCmd)

	incidentsListCmd.Flags().StringVar(&incidentsProjectID, "project", "", "project ID (required)")
	incidentsListCmd.Flags().StringVar(&incidentsStatus, "status", "", "filter by status (open, investigating, resolved)")
	incidentsListCmd.MarkFlagRequired("project")

	incidentsResolveCmd.Flags().StringVar(&incidentsProjectID, "project", "", "project ID (required)")
	incidentsResolveCmd.MarkFlagRequired("project")
}
