package tasks

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Publisher receives task status updates.
type Publisher interface {
	Publish(ctx context.Context, taskID string, state State, status json.RawMessage)
}

// LogPublisher publishes task status updates as log entries.
type LogPublisher struct {
	logger *logrus.Entry
}

func NewLogPublisher(logger *logrus.Entry) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, taskID string, state State, status json.RawMessage) {
	entry := p.logger.WithFields(logrus.Fields{
		"taskID": taskID,
		"state":  string(state),
		"status": string(status),
	})

	switch state {
	case Failed:
		entry.Warn("task status")
	case Succeeded:
		entry.Info("task status")
	default:
		entry.Debug("task status")
	}
}
