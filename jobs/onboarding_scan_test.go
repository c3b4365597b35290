package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/atlas-ops/atlas-ops/internal/onboarding"
)

type stubOnboardingPort struct {
	instances []onboarding.OverdueInstance
	overdue   int
	dueSoon   int
	err       error

	window time.Duration
}

func (s *stubOnboardingPort) OverdueInstances(ctx context.Context) ([]onboarding.OverdueInstance, error) {
	return s.instances, s.err
}

func (s *stubOnboardingPort) TaskDueCounts(ctx context.Context, window time.Duration) (int, int, error) {
	s.window = window
	return s.overdue, s.dueSoon, s.err
}

type stubMailEnqueuer struct {
	sent []SendEmailPayload
	err  error
}

func (s *stubMailEnqueuer) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sent = append(s.sent, payload)
	return &asynq.TaskInfo{ID: "task-1"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOnboardingScanHandleDefaultsWindow(t *testing.T) {
	port := &stubOnboardingPort{
		instances: []onboarding.OverdueInstance{
			{Instance: onboarding.Instance{ID: 10, EmployeeID: 3, Progress: 50}, OverdueTasks: 1},
		},
		overdue: 1,
		dueSoon: 2,
	}
	job := NewOnboardingScanJob(port, nil, discardLogger(), nil)

	task, err := NewOnboardingScanTask(OnboardingScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 7*24*time.Hour, port.window)
}

func TestOnboardingScanHandleQueuesChaseEmails(t *testing.T) {
	port := &stubOnboardingPort{
		instances: []onboarding.OverdueInstance{
			{
				Instance:      onboarding.Instance{ID: 10, EmployeeID: 3, Progress: 50},
				EmployeeName:  "Taylor Kim",
				EmployeeEmail: "taylor@example.com",
				OverdueTasks:  2,
			},
			{
				// No email on file, nothing to queue.
				Instance:     onboarding.Instance{ID: 11, EmployeeID: 4},
				EmployeeName: "Robin Vance",
				OverdueTasks: 1,
			},
		},
	}
	mail := &stubMailEnqueuer{}
	job := NewOnboardingScanJob(port, mail, discardLogger(), nil)

	task, err := NewOnboardingScanTask(OnboardingScanPayload{DueSoonDays: 5})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, mail.sent, 1)
	require.Equal(t, "taylor@example.com", mail.sent[0].To)
	require.Contains(t, mail.sent[0].Body, "Taylor Kim")
	require.Contains(t, mail.sent[0].Body, "2 overdue task")
}

func TestOnboardingScanHandleMailFailureDoesNotFailScan(t *testing.T) {
	port := &stubOnboardingPort{
		instances: []onboarding.OverdueInstance{
			{
				Instance:      onboarding.Instance{ID: 10, EmployeeID: 3},
				EmployeeEmail: "taylor@example.com",
				OverdueTasks:  1,
			},
		},
	}
	mail := &stubMailEnqueuer{err: errors.New("redis down")}
	job := NewOnboardingScanJob(port, mail, discardLogger(), nil)

	task, err := NewOnboardingScanTask(OnboardingScanPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestOnboardingScanHandleRepoError(t *testing.T) {
	port := &stubOnboardingPort{err: errors.New("connection reset")}
	job := NewOnboardingScanJob(port, nil, discardLogger(), nil)

	task, err := NewOnboardingScanTask(OnboardingScanPayload{DueSoonDays: 3})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))
}

func TestOnboardingScanHandleMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewOnboardingScanJob(&stubOnboardingPort{}, nil, discardLogger(), nil)

	task := asynq.NewTask(TaskOnboardingScan, []byte("{"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
