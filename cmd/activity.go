package cmd

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	activityID   string
	activityWait bool
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the status of a submitted activity, optionally waiting for it to finish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, a, err := bootstrap(cmd.Context(), args)
		if err != nil {
			return err
		}
		defer a.shutdown()

		token, err := a.token(ctx)
		if err != nil {
			return err
		}

		if activityWait {
			outcome, err := a.handler(token).Monitor(ctx, activityID)

			return reportOutcome(outcome, err)
		}

		snapshot, err := a.machine().Poll(ctx, token, activityID)
		if err != nil {
			return err
		}

		slog.Info("Activity status", snapshot.AsLogFields()...)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(snapshot)
	},
}

func init() {
	activityCmd.Flags().StringVar(&activityID, "id", "", "activity id")
	activityCmd.Flags().BoolVar(&activityWait, "wait", false, "poll until the activity finishes or the poll budget runs out")

	if err := activityCmd.MarkFlagRequired("id"); err != nil {
		slog.Error("failed to mark required flag", "error", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(activityCmd)
}
