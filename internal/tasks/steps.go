package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
)

// ActivityClient submits and follows vendor activities.
type ActivityClient interface {
	Submit(ctx context.Context, token string, kind model.MutationKind, refs []model.DeviceReference, targetServerID string) (string, error)
	Monitor(ctx context.Context, token, activityID string) (*activity.Outcome, error)
}

// ReportClient transfers an activity report.
type ReportClient interface {
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Clients are the collaborators steps act through.
type Clients struct {
	Activities ActivityClient
	Reports    ReportClient
	Token      string
	// ReportDir is where activity reports are saved, reports are not fetched when empty.
	ReportDir string
}

// StepStatus has status about a step, to be reported as part of the overall task.
type StepStatus struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewStepStatus will create a new step status struct
func NewStepStatus(stepName string, state State, details string, err error) *StepStatus {
	status := &StepStatus{
		Step:    stepName,
		Status:  string(state),
		Details: details,
	}

	if err != nil {
		status.Error = err.Error()
	}

	return status
}

func (s *StepStatus) AsLogFields() []any {
	return []any{
		"step", s.Step,
		"status", s.Status,
		"details", s.Details,
		"error", s.Error,
	}
}

// Step is a unit of work. Multiple steps accomplish a task.
type Step interface {
	// Name of this step
	Name() string
	// Run will execute the code to accomplish this step
	Run(ctx context.Context, clients *Clients, data sharedData) (string, error)
}

type submitActivityStep struct {
	name    string
	request *model.MutationRequest
}

// SubmitActivityStep submits the mutation and stores the activity id in sharedData.
func SubmitActivityStep(request *model.MutationRequest) Step {
	return &submitActivityStep{
		name:    "SubmitActivity",
		request: request,
	}
}

func (t *submitActivityStep) Name() string {
	return t.name
}

func (t *submitActivityStep) Run(ctx context.Context, clients *Clients, data sharedData) (string, error) {
	activityID, err := clients.Activities.Submit(
		ctx,
		clients.Token,
		t.request.Kind,
		t.request.Devices,
		t.request.TargetServerID,
	)
	if err != nil {
		return "Failed to submit activity", err
	}

	data[activityIDKey] = activityID

	return "Activity submitted: " + activityID, nil
}

type useActivityStep struct {
	name       string
	activityID string
}

// UseActivityStep stores an existing activity id in sharedData.
func UseActivityStep(activityID string) Step {
	return &useActivityStep{
		name:       "UseActivity",
		activityID: activityID,
	}
}

func (t *useActivityStep) Name() string {
	return t.name
}

func (t *useActivityStep) Run(_ context.Context, _ *Clients, data sharedData) (string, error) {
	if t.activityID == "" {
		return "Missing activity id", errors.Wrap(model.ErrValidation, "empty activity id")
	}

	data[activityIDKey] = t.activityID

	return "Following activity " + t.activityID, nil
}

type monitorActivityStep struct {
	name string
}

// MonitorActivityStep polls the activity in sharedData to a terminal state.
// A timed out or failed activity is an outcome, not a step failure.
func MonitorActivityStep() Step {
	return &monitorActivityStep{
		name: "MonitorActivity",
	}
}

func (t *monitorActivityStep) Name() string {
	return t.name
}

func (t *monitorActivityStep) Run(ctx context.Context, clients *Clients, data sharedData) (string, error) {
	activityID, ok := data[activityIDKey].(string)
	if !ok {
		return "Activity unknown", errors.New("missing activity id")
	}

	outcome, err := clients.Activities.Monitor(ctx, clients.Token, activityID)
	if outcome != nil {
		data[outcomeKey] = outcome
	}

	if err != nil {
		return "Failed to monitor activity", err
	}

	return fmt.Sprintf("Activity %s after %d checks", outcome.State, outcome.Checks), nil
}

type downloadReportStep struct {
	name string
}

// DownloadReportStep saves the report of a completed activity when a report directory is configured.
// A failed transfer does not fail the task, the report URL is reported instead.
func DownloadReportStep() Step {
	return &downloadReportStep{
		name: "DownloadReport",
	}
}

func (t *downloadReportStep) Name() string {
	return t.name
}

func (t *downloadReportStep) Run(ctx context.Context, clients *Clients, data sharedData) (string, error) {
	outcome, ok := data[outcomeKey].(*activity.Outcome)
	if !ok || outcome.ReportURL() == "" {
		return "No report available", nil
	}

	if clients.ReportDir == "" || clients.Reports == nil {
		return "Report available at " + outcome.ReportURL(), nil
	}

	path := filepath.Join(clients.ReportDir, ReportFileName(outcome.ActivityID))

	f, err := os.Create(path)
	if err != nil {
		return reportFailure(outcome, err), nil
	}

	n, err := clients.Reports.Download(ctx, outcome.ReportURL(), f)
	if errClose := f.Close(); err == nil {
		err = errClose
	}

	if err != nil {
		// no partial report is left behind
		_ = os.Remove(path)

		return reportFailure(outcome, errors.Wrap(err, path)), nil
	}

	return fmt.Sprintf("Report saved to %s (%d bytes)", path, n), nil
}

func reportFailure(outcome *activity.Outcome, err error) string {
	return fmt.Sprintf("Report download failed (%s), available at %s", err, outcome.ReportURL())
}

// ReportFileName is the file an activity report is saved as.
func ReportFileName(activityID string) string {
	return "activity-" + activityID + "-report.csv"
}
