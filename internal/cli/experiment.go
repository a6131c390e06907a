package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Manage experiments",
	Long:  `Create and list A/B experiments.`,
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new experiment",
	Long: `Create a new experiment with its variants and traffic weights.

Variants are given as name=weight pairs; weights are relative and do not
have to sum to 100.

Examples:
  splitlab experiment create "checkout-button" --variant red=50 --variant blue=50
  splitlab experiment create "pricing" --variant control=1 --variant treatment=1 --description "New pricing page"`,
	Args: cobra.ExactArgs(1),
	RunE: runExperimentCreate,
}

var experimentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	RunE:  runExperimentList,
}

// Flags
var (
	expDescription string
	expVariants    []string
)

func init() {
	rootCmd.AddCommand(experimentCmd)
	experimentCmd.AddCommand(experimentCreateCmd)
	experimentCmd.AddCommand(experimentListCmd)

	experimentCreateCmd.Flags().StringVarP(&expDescription, "description", "d", "", "Experiment description")
	experimentCreateCmd.Flags().StringArrayVarP(&expVariants, "variant", "v", nil, "Variant as name=weight (repeatable)")
}

func runExperimentCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	variants, err := parseVariants(expVariants)
	if err != nil {
		return err
	}

	app, err := NewAppContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(ctx) }()

	var description *string
	if expDescription != "" {
		description = &expDescription
	}

	experiment, err := app.Assignments.CreateExperiment(ctx, args[0], description, variants)
	if err != nil {
		return err
	}

	fmt.Printf("Created experiment %q with id %d (%d variants)\n",
		experiment.Name, experiment.ID, len(experiment.Variants))
	return nil
}

func runExperimentList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := NewAppContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(ctx) }()

	experiments, err := app.ExperimentRepo.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tACTIVE\tCREATED")
	for _, e := range experiments {
		fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", e.ID, e.Name, e.IsActive, e.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func parseVariants(specs []string) ([]domain.Variant, error) {
	variants := make([]domain.Variant, 0, len(specs))
	for _, spec := range specs {
		name, weightStr, ok := strings.Cut(spec, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variant %q, expected name=weight", spec)
		}
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight in variant %q: %w", spec, err)
		}
		variants = append(variants, domain.Variant{Name: name, AllocationWeight: weight})
	}
	return variants, nil
}
