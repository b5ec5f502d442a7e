package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aqasim81/depmigrate/internal/config"
	"github.com/aqasim81/depmigrate/internal/engine"
	"github.com/aqasim81/depmigrate/internal/resolver"
)

var planCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "plan",
	Short: "Show the dependency-resolved execution order",
	Long: `Load the migrations directory, extract the entities each file creates and
references, and print the order apply would use. No database connection is
made.`,
	RunE: runPlan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	planCmd.Flags().String("format", "", "output format (text, json)")
	rootCmd.AddCommand(planCmd)
}

type planEntry struct {
	Order        int      `json:"order"`
	Filename     string   `json:"filename"`
	Checksum     string   `json:"checksum"`
	Creates      []string `json:"creates"`
	References   []string `json:"references"`
	Dependencies []string `json:"dependencies"`
}

type planOutput struct {
	Migrations []planEntry                 `json:"migrations"`
	Forward    []resolver.ForwardReference `json:"forward_references,omitempty"`
}

func runPlan(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	plan, err := engine.New(engine.SettingsFromConfig(AppConfig), engine.WithLogger(currentLogger())).Plan()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if format == "json" {
		return writeJSON(out, toPlanOutput(plan))
	}

	printPlan(out, plan)

	return nil
}

func toPlanOutput(plan *resolver.Plan) planOutput {
	po := planOutput{
		Migrations: make([]planEntry, 0, len(plan.Migrations)),
		Forward:    plan.Forward,
	}

	for _, m := range plan.Migrations {
		po.Migrations = append(po.Migrations, planEntry{
			Order:        m.Order,
			Filename:     m.Filename,
			Checksum:     m.Checksum,
			Creates:      nonNil(m.Creates),
			References:   nonNil(m.References),
			Dependencies: nonNil(m.Dependencies),
		})
	}

	return po
}

func printPlan(out io.Writer, plan *resolver.Plan) {
	if len(plan.Migrations) == 0 {
		fmt.Fprintln(out, "No migration files found.")

		return
	}

	fmt.Fprintf(out, "Execution plan (%d migrations):\n\n", len(plan.Migrations))

	for _, m := range plan.Migrations {
		fmt.Fprintf(out, "  %3d. %s\n", m.Order, m.Filename)

		if len(m.Dependencies) > 0 {
			fmt.Fprintf(out, "       depends on: %s\n", strings.Join(m.Dependencies, ", "))
		}

		if len(m.Creates) > 0 {
			fmt.Fprintf(out, "       creates:    %s\n", strings.Join(m.Creates, ", "))
		}

		if len(m.References) > 0 {
			fmt.Fprintf(out, "       references: %s\n", strings.Join(m.References, ", "))
		}
	}

	if len(plan.Forward) == 0 {
		return
	}

	fmt.Fprintln(out, "\nWarnings:")

	for _, fr := range plan.Forward {
		fmt.Fprintf(out, "  %s references %s, created later by %s (no dependency recorded)\n",
			fr.Filename, fr.Entity, fr.CreatedBy)
	}
}

// outputFormat prefers the command's --format flag over the configured format.
func outputFormat(cmd *cobra.Command) (string, error) {
	format := config.DefaultFormat

	if AppConfig != nil && AppConfig.Format != "" {
		format = AppConfig.Format
	}

	if cmd.Flags().Changed("format") {
		format, _ = cmd.Flags().GetString("format")
	}

	switch format {
	case "text", "json":
		return format, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q", config.ErrInvalidConfig, format)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
