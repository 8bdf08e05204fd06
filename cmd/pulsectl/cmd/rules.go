package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var rulesProjectID string

// rulesCmd represents the rules command group
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Alert rule management commands",
	Long: `Commands for inspecting and toggling alert rules.

Examples:
  # List a project's rules
  pulsectl rules list --project <project-id>

  # Disable a misfiring rule
  pulsectl rules disable <rule-id>`,
}

// rulesListCmd lists a project's alert rules
var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a project's alert rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rulesProjectID == "" {
			return fmt.Errorf("--project is required")
		}

		store, err := openDatabase(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		rules, err := store.Rules().ListByProject(context.Background(), rulesProjectID)
		if err != nil {
			return fmt.Errorf("list rules: %w", err)
		}

		if GetOutput() == "json" {
			data, _ := json.MarshalIndent(rules, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if len(rules) == 0 {
			fmt.Println("No rules found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-25s  %-30s  %-8s  %s\n",
			"ID", "NAME", "CONDITION", "SEVERITY", "ENABLED")
		fmt.Println(strings.Repeat("-", 115))

		for _, r := range rules {
			condition := fmt.Sprintf("%s(%s) %s %g", r.Aggregation, r.MetricName, r.Operator, r.Threshold)
			fmt.Printf("%-36s  %-25s  %-30s  %-8s  %t\n",
				r.ID, r.Name, condition, r.Severity, r.Enabled)
		}
		fmt.Printf("\nTotal: %d rule(s)\n", len(rules))

		return nil
	},
}

// rulesEnableCmd enables a rule
var rulesEnableCmd = &cobra.Command{
	Use:   "enable <rule-id>",
	Short: "Enable an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleEnabled(args[0], true)
	},
}

// rulesDisableCmd disables a rule
var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Disable an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleEnabled(args[0], false)
	},
}

func setRuleEnabled(ruleID string, enabled bool) error {
	store, err := openDatabase(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	rule, err := store.Rules().GetByID(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("find rule: %w", err)
	}

	if err := store.Rules().SetEnabled(ctx, ruleID, enabled); err != nil {
		return fmt.Errorf("update rule: %w", err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Rule '%s' %s\n", rule.Name, state)
	return nil
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesEnableCmd)
	rulesCmd.AddCommand(rulesDisableCmd)

	rulesListCmd.Flags().StringVar(&rulesProjectID, "project", "", "project ID (required)")
	rulesListCmd.MarkFlagRequired("project")
}
