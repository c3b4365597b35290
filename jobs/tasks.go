package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskOnboardingScan is the task type for the overdue onboarding scan.
	TaskOnboardingScan = "onboarding:scan"
	// TaskWarrantyScan is the task type for the asset warranty expiry scan.
	TaskWarrantyScan = "assets:warranty_scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks. Delivery is logged
// until an SMTP relay is configured.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Info("send email",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}

// OnboardingScanPayload tunes the overdue onboarding scan.
type OnboardingScanPayload struct {
	// DueSoonDays widens the warning window for tasks due shortly.
	DueSoonDays int `json:"dueSoonDays"`
}

// NewOnboardingScanTask constructs the onboarding scan task.
func NewOnboardingScanTask(payload OnboardingScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOnboardingScan, data), nil
}

// WarrantyScanPayload tunes the warranty expiry scan.
type WarrantyScanPayload struct {
	// WindowDays is how far ahead to look for expiring warranties.
	WindowDays int `json:"windowDays"`
}

// NewWarrantyScanTask constructs the warranty scan task.
func NewWarrantyScanTask(payload WarrantyScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWarrantyScan, data), nil
}
