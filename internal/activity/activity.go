package activity

import (
	"context"
	"net/http"
	"time"

	"github.com/metal-toolbox/devicesync/internal/metrics"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/metal-toolbox/devicesync/internal/pace"
	"github.com/metal-toolbox/devicesync/internal/store"
	"github.com/metal-toolbox/devicesync/internal/store/vendorapi"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	pkgName = "internal/activity"

	DefaultPollInterval = 5 * time.Second
	DefaultMaxChecks    = 60
)

// State is the client side view of a submitted activity.
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StatePolling   State = "POLLING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
	// StateTimedOut is reached when the poll budget runs out, the activity
	// may still be running at the vendor.
	StateTimedOut State = "TIMED_OUT"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Outcome is the final state of a monitored activity.
type Outcome struct {
	State      State
	ActivityID string
	// Snapshot is the last observed activity, nil when no poll returned.
	Snapshot *model.ActivitySnapshot
	Checks   int
}

// ReportURL returns the report reference surfaced by the vendor, if any.
func (o *Outcome) ReportURL() string {
	if o.Snapshot == nil {
		return ""
	}

	return o.Snapshot.DownloadURL
}

func (o *Outcome) AsLogFields() []any {
	fields := []any{
		"activity_id", o.ActivityID,
		"state", string(o.State),
		"checks", o.Checks,
	}

	if o.Snapshot != nil {
		fields = append(fields, "sub_status", o.Snapshot.SubStatus, "report", o.Snapshot.DownloadURL != "")
	}

	return fields
}

// Machine submits bulk device mutations and follows them to a terminal state.
type Machine struct {
	repository store.Repository
	logger     *logrus.Entry
	interval   time.Duration
	maxChecks  int
	sleep      pace.SleepFunc
}

type Option func(*Machine)

func WithPollInterval(d time.Duration) Option {
	return func(m *Machine) {
		m.interval = d
	}
}

func WithMaxChecks(n int) Option {
	return func(m *Machine) {
		m.maxChecks = n
	}
}

func WithSleepFunc(fn pace.SleepFunc) Option {
	return func(m *Machine) {
		m.sleep = fn
	}
}

func New(repository store.Repository, logger *logrus.Entry, opts ...Option) *Machine {
	m := &Machine{
		repository: repository,
		logger:     logger,
		interval:   DefaultPollInterval,
		maxChecks:  DefaultMaxChecks,
		sleep:      pace.Sleep,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Submit posts the mutation and returns the new activity id.
func (m *Machine) Submit(
	ctx context.Context,
	token string,
	kind model.MutationKind,
	refs []model.DeviceReference,
	targetServerID string,
) (string, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"Machine.Submit",
		trace.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.Int("devices", len(refs)),
		),
	)
	defer span.End()

	if len(refs) == 0 {
		return "", errors.Wrap(model.ErrValidation, "no devices to submit")
	}

	switch kind {
	case model.MutationAssign:
		if targetServerID == "" {
			return "", errors.Wrap(model.ErrValidation, "assign requires a target server")
		}
	case model.MutationUnassign:
		targetServerID = ""
	default:
		return "", errors.Wrapf(model.ErrValidation, "unknown mutation kind %q", kind)
	}

	body := vendorapi.NewActivityRequest(kind, refs, targetServerID)

	resp, err := m.repository.Request(ctx, token, http.MethodPost, vendorapi.ActivitiesPath(), nil, body)
	if err != nil {
		return "", err
	}

	if resp.Status != http.StatusOK && resp.Status != http.StatusCreated {
		metrics.ActivitySubmissions.WithLabelValues(string(kind), "rejected").Inc()

		return "", resp.StatusError(model.ErrSubmission)
	}

	snapshot, err := vendorapi.DecodeActivity(resp.Body)
	if err != nil {
		return "", errors.Wrap(model.ErrSubmission, err.Error())
	}

	metrics.ActivitySubmissions.WithLabelValues(string(kind), "accepted").Inc()

	m.logger.WithFields(logrus.Fields{
		"activityID": snapshot.ID,
		"kind":       string(kind),
		"devices":    len(refs),
		"status":     snapshot.Status,
	}).Info("activity submitted")

	return snapshot.ID, nil
}

// Poll returns the current activity snapshot, it is not retried.
func (m *Machine) Poll(ctx context.Context, token, activityID string) (*model.ActivitySnapshot, error) {
	resp, err := m.repository.Request(ctx, token, http.MethodGet, vendorapi.ActivityPath(activityID), nil, nil)
	if err != nil {
		return nil, errors.Wrap(model.ErrPoll, err.Error())
	}

	if resp.Status != http.StatusOK {
		return nil, resp.StatusError(model.ErrPoll)
	}

	snapshot, err := vendorapi.DecodeActivity(resp.Body)
	if err != nil {
		return nil, errors.Wrap(model.ErrPoll, err.Error())
	}

	return snapshot, nil
}

// Monitor polls the activity every interval until the vendor reports a terminal
// status or maxChecks polls were made. A poll error aborts monitoring.
func (m *Machine) Monitor(ctx context.Context, token, activityID string) (*Outcome, error) {
	ctx, span := otel.Tracer(pkgName).Start(
		ctx,
		"Machine.Monitor",
		trace.WithAttributes(attribute.String("activityID", activityID)),
	)
	defer span.End()

	logger := m.logger.WithField("activityID", activityID)
	outcome := &Outcome{State: StateSubmitted, ActivityID: activityID}

	for outcome.Checks < m.maxChecks {
		if err := m.sleep(ctx, m.interval); err != nil {
			return outcome, err
		}

		outcome.State = StatePolling
		outcome.Checks++

		snapshot, err := m.Poll(ctx, token, activityID)
		if err != nil {
			logger.WithError(err).WithField("check", outcome.Checks).Warn("activity poll failed, monitoring aborted")
			return outcome, err
		}

		outcome.Snapshot = snapshot

		logger.WithFields(logrus.Fields{
			"check":     outcome.Checks,
			"status":    snapshot.Status,
			"subStatus": snapshot.SubStatus,
		}).Debug("activity polled")

		if state, ok := terminalState(snapshot.Status); ok {
			outcome.State = state
			break
		}
	}

	if !outcome.State.Terminal() {
		outcome.State = StateTimedOut
	}

	metrics.ActivityOutcomes.WithLabelValues(string(outcome.State)).Inc()
	logger.WithFields(logrus.Fields{
		"state":  string(outcome.State),
		"checks": outcome.Checks,
	}).Info("activity monitoring finished")

	return outcome, nil
}

func terminalState(status string) (State, bool) {
	switch status {
	case model.ActivityStatusCompleted:
		return StateCompleted, true
	case model.ActivityStatusFailed:
		return StateFailed, true
	default:
		return "", false
	}
}
