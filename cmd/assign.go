package cmd

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type mutationFlags struct {
	server      string
	devices     string
	devicesFile string
	reportDir   string
}

var (
	assignArgs   = &mutationFlags{}
	unassignArgs = &mutationFlags{}
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign devices to a management server and wait for the activity to finish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMutation(cmd, model.MutationAssign, assignArgs)
	},
}

var unassignCmd = &cobra.Command{
	Use:   "unassign",
	Short: "Release devices from their management server and wait for the activity to finish",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMutation(cmd, model.MutationUnassign, unassignArgs)
	},
}

// deviceSelection reads the device ids from the flag or the file.
func (f *mutationFlags) deviceSelection() (model.Selection, error) {
	input := f.devices

	if f.devicesFile != "" {
		b, err := os.ReadFile(f.devicesFile)
		if err != nil {
			return model.Selection{}, errors.Wrap(err, "devices file")
		}

		input = string(b)
	}

	return model.ParseSelection(input), nil
}

func runMutation(cmd *cobra.Command, kind model.MutationKind, flags *mutationFlags) error {
	selection, err := flags.deviceSelection()
	if err != nil {
		return err
	}

	switch selection.Kind {
	case model.SelectionCancelled:
		slog.Info("No devices selected, nothing submitted")
		return nil
	case model.SelectionInvalid:
		return selection.Err()
	}

	ctx, a, err := bootstrap(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if flags.reportDir != "" {
		a.config.Export.ReportDir = flags.reportDir
	}

	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	request := &model.MutationRequest{
		Kind:           kind,
		Devices:        selection.References(),
		TargetServerID: flags.server,
	}

	outcome, err := a.handler(token).Handle(ctx, request)

	return reportOutcome(outcome, err)
}

type outcomeView struct {
	ActivityID  string `json:"activityId"`
	State       string `json:"state"`
	Checks      int    `json:"checks"`
	Status      string `json:"status,omitempty"`
	SubStatus   string `json:"subStatus,omitempty"`
	CompletedAt string `json:"completedDateTime,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

func printOutcome(outcome *activity.Outcome) error {
	view := outcomeView{
		ActivityID: outcome.ActivityID,
		State:      string(outcome.State),
		Checks:     outcome.Checks,
	}

	if s := outcome.Snapshot; s != nil {
		view.Status = s.Status
		view.SubStatus = s.SubStatus
		view.CompletedAt = s.CompletedAt
		view.DownloadURL = s.DownloadURL
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(view)
}

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *mutationFlags
	}{
		{assignCmd, assignArgs},
		{unassignCmd, unassignArgs},
	} {
		c.cmd.Flags().StringVar(&c.flags.devices, "devices", "", "device ids, separated by commas or whitespace")
		c.cmd.Flags().StringVar(&c.flags.devicesFile, "devices-file", "", "file with device ids, separated by commas or newlines")
		c.cmd.Flags().StringVar(&c.flags.reportDir, "report-dir", "", "directory to save the activity report in")
		c.cmd.MarkFlagsMutuallyExclusive("devices", "devices-file")
		c.cmd.MarkFlagsOneRequired("devices", "devices-file")

		rootCmd.AddCommand(c.cmd)
	}

	assignCmd.Flags().StringVar(&assignArgs.server, "server", "", "target management server id")

	if err := assignCmd.MarkFlagRequired("server"); err != nil {
		slog.Error("failed to mark required flag", "error", err)
		os.Exit(1)
	}
}
