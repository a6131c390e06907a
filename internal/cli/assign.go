package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var assignCmd = &cobra.Command{
	Use:   "assign <experiment-id> <user-id>",
	Short: "Resolve a user's variant assignment",
	Long: `Resolve the variant assignment for a user, creating one on first touch.
Repeated calls for the same pair always return the same assignment.`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

func init() {
	rootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	experimentID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid experiment id: %s", args[0])
	}

	app, err := NewAppContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(ctx) }()

	assignment, err := app.Assignments.Resolve(ctx, experimentID, args[1])
	if err != nil {
		return err
	}

	fmt.Printf("User %s -> variant %q (assigned %s)\n",
		assignment.UserID, assignment.VariantName, assignment.AssignedAt.Format(time.RFC3339))
	return nil
}
