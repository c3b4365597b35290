package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atlas-ops/atlas-ops/internal/jobs"
	"github.com/atlas-ops/atlas-ops/internal/onboarding"
)

// OnboardingScanPort is the slice of the onboarding repository the scan
// needs.
type OnboardingScanPort interface {
	OverdueInstances(ctx context.Context) ([]onboarding.OverdueInstance, error)
	TaskDueCounts(ctx context.Context, window time.Duration) (overdue, dueSoon int, err error)
}

// MailEnqueuer queues outgoing mail. *Client satisfies it.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// OnboardingScanJob flags active onboarding runs with overdue checklist
// items and queues a chase email per flagged employee. Mail is optional.
type OnboardingScanJob struct {
	Repo    OnboardingScanPort
	Mail    MailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOnboardingScanJob initialises the overdue onboarding scan handler.
func NewOnboardingScanJob(repo OnboardingScanPort, mail MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OnboardingScanJob {
	return &OnboardingScanJob{
		Repo:    repo,
		Mail:    mail,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the overdue onboarding scan.
func (j *OnboardingScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("onboarding scan: handler not configured")
	}
	var payload OnboardingScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.DueSoonDays <= 0 {
		payload.DueSoonDays = 7
	}

	start := j.now()
	tracker := j.metrics().Track(TaskOnboardingScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("due_soon_days", payload.DueSoonDays))
	logger.Info("starting onboarding scan")

	overdue, err := j.Repo.OverdueInstances(ctx)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	for _, inst := range overdue {
		logger.Warn("onboarding overdue",
			slog.Int64("instance_id", inst.ID),
			slog.Int64("employee_id", inst.EmployeeID),
			slog.Int("progress", inst.Progress),
			slog.Int("overdue_tasks", inst.OverdueTasks),
		)
		if j.Mail == nil || inst.EmployeeEmail == "" {
			continue
		}
		if _, err := j.Mail.EnqueueSendEmail(ctx, chaseEmail(inst)); err != nil {
			logger.Error("chase email enqueue failed",
				slog.Int64("instance_id", inst.ID),
				slog.Any("error", err))
		}
	}
	j.metrics().AddFindings(TaskOnboardingScan, "overdue", len(overdue))

	window := time.Duration(payload.DueSoonDays) * 24 * time.Hour
	overdueTasks, dueSoon, err := j.Repo.TaskDueCounts(ctx, window)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddFindings(TaskOnboardingScan, "due_soon", dueSoon)

	logger.Info("completed onboarding scan",
		slog.Int("overdue_instances", len(overdue)),
		slog.Int("overdue_tasks", overdueTasks),
		slog.Int("due_soon_tasks", dueSoon),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *OnboardingScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *OnboardingScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *OnboardingScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func chaseEmail(inst onboarding.OverdueInstance) SendEmailPayload {
	return SendEmailPayload{
		To:      inst.EmployeeEmail,
		Subject: "Onboarding tasks overdue",
		Body: fmt.Sprintf("Hi %s, your onboarding checklist has %d overdue task(s). Please catch up or contact your manager.",
			inst.EmployeeName, inst.OverdueTasks),
	}
}
