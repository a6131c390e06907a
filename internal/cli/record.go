package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

var recordCmd = &cobra.Command{
	Use:   "record <user-id> <event-type>",
	Short: "Record a conversion event",
	Long: `Record a conversion event (click, purchase, signup) for a user.
The event is inserted directly; use the API for asynchronous recording.`,
	Args: cobra.ExactArgs(2),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := NewAppContext(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(ctx) }()

	event := &domain.Event{
		UserID:    args[0],
		Type:      args[1],
		Timestamp: time.Now().UTC(),
	}
	if err := app.EventRepo.Insert(ctx, event); err != nil {
		return err
	}

	fmt.Printf("Recorded %q event for user %s (id %d)\n", event.Type, event.UserID, event.ID)
	return nil
}
