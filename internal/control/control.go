package control

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
)

// LogMessenger implements orchestrator.Messenger by logging the message.
// It stands in until an SMS/email provider is configured.
type LogMessenger struct {
	log *slog.Logger
}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{log: slog.Default().With("component", "messenger")}
}

func (m *LogMessenger) Send(ctx context.Context, channel domain.Channel, to, body, subject string) error {
	m.log.Info("Message sent", "channel", channel, "to", to, "subject", subject, "length", len(body))
	return nil
}

// LogTaskCreator implements orchestrator.TaskCreator by logging the task.
type LogTaskCreator struct {
	log *slog.Logger
}

func NewLogTaskCreator() *LogTaskCreator {
	return &LogTaskCreator{log: slog.Default().With("component", "tasks")}
}

func (c *LogTaskCreator) CreateTask(ctx context.Context, title, description string) (string, error) {
	id := uuid.NewString()
	c.log.Info("Task created", "taskID", id, "title", title)
	return id, nil
}
