package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	pkgName = "internal/tasks"

	activityIDKey = "activityID"
	outcomeKey    = "outcome"
)

// State of a task or step.
type State string

const (
	Pending   State = "pending"
	Active    State = "active"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Miscellaneous
type sharedData map[string]interface{}

// TaskStatus has status about a task, and it's steps.
type TaskStatus struct {
	Task       string        `json:"task"`
	TaskID     string        `json:"task_id"`
	Status     string        `json:"status"`
	Details    string        `json:"details,omitempty"`
	Error      string        `json:"error,omitempty"`
	ActiveStep string        `json:"active_step,omitempty"`
	Steps      []*StepStatus `json:"steps"`
}

// NewTaskStatus will generate a new task status struct
func NewTaskStatus(task Task, state State) *TaskStatus {
	return &TaskStatus{
		Task:   task.Name(),
		TaskID: task.ID(),
		Status: string(state),
	}
}

func (r *TaskStatus) AsLogFields() []any {
	return []any{
		"task", r.Task,
		"status", r.Status,
		"details", r.Details,
		"error", r.Error,
	}
}

func (r *TaskStatus) Marshal() ([]byte, error) {
	respBytes, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal response to json")
	}

	return respBytes, nil
}

// Task is a unit of work against the vendor activity API.
// The task runs multiple steps to accomplish the work.
type Task interface {
	// Name of the task
	Name() string
	// ID identifies this run of the task in published status updates
	ID() string
	// Fields are the log fields describing what the task acts on
	Fields() []any
	// Steps is the multiple units of work that will accomplish this task
	Steps() []Step
}

type mutationTask struct {
	id      string
	name    string
	request *model.MutationRequest
	steps   []Step
}

// NewAssignDevicesTask creates the task that assigns devices to a management server
// and follows the resulting activity.
func NewAssignDevicesTask(request *model.MutationRequest) Task {
	return newMutationTask("AssignDevices", request)
}

// NewUnassignDevicesTask creates the task that releases devices from their management
// server and follows the resulting activity.
func NewUnassignDevicesTask(request *model.MutationRequest) Task {
	return newMutationTask("UnassignDevices", request)
}

func newMutationTask(name string, request *model.MutationRequest) *mutationTask {
	return &mutationTask{
		id:      uuid.NewString(),
		name:    name,
		request: request,
		steps: []Step{
			SubmitActivityStep(request),
			MonitorActivityStep(),
			DownloadReportStep(),
		},
	}
}

func (j *mutationTask) Name() string {
	return j.name
}

func (j *mutationTask) ID() string {
	return j.id
}

func (j *mutationTask) Fields() []any {
	return j.request.AsLogFields()
}

func (j *mutationTask) Steps() []Step {
	return j.steps
}

type monitorTask struct {
	id         string
	activityID string
	steps      []Step
}

// NewMonitorActivityTask creates the task that follows an already submitted activity.
func NewMonitorActivityTask(activityID string) Task {
	return &monitorTask{
		id:         uuid.NewString(),
		activityID: activityID,
		steps: []Step{
			UseActivityStep(activityID),
			MonitorActivityStep(),
			DownloadReportStep(),
		},
	}
}

func (j *monitorTask) Name() string {
	return "MonitorActivity"
}

func (j *monitorTask) ID() string {
	return j.id
}

func (j *monitorTask) Fields() []any {
	return []any{"activity_id", j.activityID}
}

func (j *monitorTask) Steps() []Step {
	return j.steps
}

// TaskRunner Will run the task by executing the individual steps in the task,
// and reports task status using the publisher.
type TaskRunner struct {
	publisher  Publisher
	task       Task
	taskStatus *TaskStatus
}

// NewTaskRunner creates a TaskRunner to run a specific Task
func NewTaskRunner(publisher Publisher, task Task) *TaskRunner {
	return &TaskRunner{
		publisher:  publisher,
		task:       task,
		taskStatus: NewTaskStatus(task, Pending),
	}
}

// Status returns the last published task status.
func (r *TaskRunner) Status() *TaskStatus {
	return r.taskStatus
}

// Run executes the task steps in order and returns the monitored activity outcome,
// which is nil when the task failed before monitoring finished.
func (r *TaskRunner) Run(ctx context.Context, clients *Clients) (outcome *activity.Outcome, err error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"TaskRunner.Run",
		trace.WithAttributes(
			attribute.String("task", r.task.Name()),
			attribute.String("taskID", r.task.ID()),
		),
	)
	defer span.End()

	slog.With(r.task.Fields()...).Info("Running task", "task", r.task.Name())

	data := sharedData{}
	r.initTaskLog()

	defer func() {
		if rec := recover(); rec != nil {
			outcome = nil
			err = r.handlePanic(ctx, rec)
		}
	}()

	r.publishTaskUpdate(ctx, Active, "Starting task", nil)

	for stepID, step := range r.task.Steps() {
		r.publishStepUpdate(ctx, stepID, "Running step")

		details, err := step.Run(ctx, clients, data)
		if err != nil {
			r.publishFailed(ctx, stepID, details, err)
			return outcomeFrom(data), err
		}

		r.publishStepSuccess(ctx, stepID, details)
	}

	r.publishTaskSuccess(ctx)

	return outcomeFrom(data), nil
}

func outcomeFrom(data sharedData) *activity.Outcome {
	outcome, _ := data[outcomeKey].(*activity.Outcome)
	return outcome
}

func (r *TaskRunner) initTaskLog() {
	steps := r.task.Steps()
	r.taskStatus.Steps = make([]*StepStatus, len(steps))

	for i, step := range steps {
		r.taskStatus.Steps[i] = NewStepStatus(step.Name(), Pending, "", nil)
	}
}

func (r *TaskRunner) handlePanic(ctx context.Context, rec any) error {
	msg := "Panic occurred while running task"
	slog.Error("!!panic occurred", "rec", rec, "stack", string(debug.Stack()))
	slog.Error(msg)
	err := errors.New("Task fatal error, check logs for details")

	r.publishTaskUpdate(ctx, Failed, msg, err)

	return err
}

func (r *TaskRunner) publishStepUpdate(ctx context.Context, stepID int, details string) {
	r.taskStatus.ActiveStep = r.task.Steps()[stepID].Name()
	r.publish(ctx, stepID, Active, Active, details, nil)
}

func (r *TaskRunner) publishStepSuccess(ctx context.Context, stepID int, details string) {
	r.publish(ctx, stepID, Succeeded, Active, details, nil)
}

func (r *TaskRunner) publishFailed(ctx context.Context, stepID int, details string, err error) {
	slog.With(r.task.Fields()...).Error("Task failed", "task", r.task.Name(), "error", err)
	r.publish(ctx, stepID, Failed, Failed, details, err)
}

func (r *TaskRunner) publishTaskSuccess(ctx context.Context) {
	slog.With(r.task.Fields()...).Info("Task completed successfully", "task", r.task.Name())
	r.taskStatus.ActiveStep = ""
	r.publishTaskUpdate(ctx, Succeeded, "Task completed successfully", nil)
}

func (r *TaskRunner) publish(ctx context.Context, stepID int, stepState, taskState State, details string, err error) {
	step := r.task.Steps()[stepID]
	stepStatus := NewStepStatus(step.Name(), stepState, details, err)

	slog.With(r.task.Fields()...).With(stepStatus.AsLogFields()...).Debug(details, "step", step.Name())

	r.taskStatus.Steps[stepID] = stepStatus

	var taskDetails string
	if err != nil {
		taskDetails = "Task failed at step " + step.Name()
	}

	r.publishTaskUpdate(ctx, taskState, taskDetails, err)
}

func (r *TaskRunner) publishTaskUpdate(ctx context.Context, state State, details string, err error) {
	r.taskStatus.Status = string(state)
	r.taskStatus.Details = details

	if err != nil {
		r.taskStatus.Error = err.Error()
	}

	respBytes, err := r.taskStatus.Marshal()
	if err != nil {
		slog.Error("Failed to marshal task update", "error", err)
		return
	}

	r.publisher.Publish(ctx, r.task.ID(), state, respBytes)
}
