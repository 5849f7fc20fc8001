package handlers

import (
	"context"
	"log/slog"

	"github.com/metal-toolbox/devicesync/internal/activity"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/tasks"
	"github.com/pkg/errors"
)

// Handler validates activity requests and runs the matching task.
type Handler struct {
	clients   *tasks.Clients
	publisher tasks.Publisher
}

// NewHandler returns a new instance of the Handler
func NewHandler(clients *tasks.Clients, publisher tasks.Publisher) *Handler {
	return &Handler{
		clients:   clients,
		publisher: publisher,
	}
}

// validate checks the request and drops duplicate devices, keeping the first occurrence.
func (h *Handler) validate(request *model.MutationRequest) error {
	if request == nil {
		return errors.Wrap(model.ErrValidation, "empty request")
	}

	if request.Kind.ActivityType() == "" {
		return errors.Wrapf(model.ErrValidation, "unknown mutation kind %q", request.Kind)
	}

	if request.Kind == model.MutationAssign && request.TargetServerID == "" {
		return errors.Wrap(model.ErrValidation, "assign requires a target server")
	}

	if request.TargetServerID != "" && !model.ValidIdentifier(request.TargetServerID) {
		return errors.Wrapf(model.ErrValidation, "malformed server identifier %q", request.TargetServerID)
	}

	devices := model.NewWorkingSet()

	for _, ref := range request.Devices {
		if !model.ValidIdentifier(ref.ID) {
			return errors.Wrapf(model.ErrValidation, "malformed device identifier %q", ref.ID)
		}

		devices.Add(ref)
	}

	if devices.Len() == 0 {
		return errors.Wrap(model.ErrValidation, "no devices")
	}

	request.Devices = devices.References()

	slog.Debug("Validated request", request.AsLogFields()...)

	return nil
}

// Handle will run the task for the received request and return the activity outcome.
func (h *Handler) Handle(ctx context.Context, request *model.MutationRequest) (*activity.Outcome, error) {
	if err := h.validate(request); err != nil {
		return nil, err
	}

	var task tasks.Task

	switch request.Kind {
	case model.MutationAssign:
		task = tasks.NewAssignDevicesTask(request)
	case model.MutationUnassign:
		task = tasks.NewUnassignDevicesTask(request)
	default:
		slog.Error("Invalid mutation", request.AsLogFields()...)
		return nil, errors.Wrapf(model.ErrValidation, "unknown mutation kind %q", request.Kind)
	}

	return h.run(ctx, task)
}

// Monitor follows an activity submitted earlier.
func (h *Handler) Monitor(ctx context.Context, activityID string) (*activity.Outcome, error) {
	if !model.ValidIdentifier(activityID) {
		return nil, errors.Wrapf(model.ErrValidation, "malformed activity identifier %q", activityID)
	}

	return h.run(ctx, tasks.NewMonitorActivityTask(activityID))
}

func (h *Handler) run(ctx context.Context, task tasks.Task) (*activity.Outcome, error) {
	runner := tasks.NewTaskRunner(h.publisher, task)

	outcome, err := runner.Run(ctx, h.clients)
	if err != nil {
		slog.With(runner.Status().AsLogFields()...).Error("Failed running task", "error", err)
		return outcome, err
	}

	if outcome != nil {
		slog.Info("Task finished", outcome.AsLogFields()...)
	}

	return outcome, nil
}
