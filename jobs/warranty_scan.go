package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-ops/atlas-ops/internal/assets"
	jobmetrics "github.com/atlas-ops/atlas-ops/internal/jobs"
)

// WarrantyScanPort is the slice of the assets repository the scan needs.
type WarrantyScanPort interface {
	ExpiringWarranties(ctx context.Context, window time.Duration) ([]assets.Asset, error)
}

// WarrantyScanJob reports assets whose warranty runs out inside the
// configured window.
type WarrantyScanJob struct {
	Repo    WarrantyScanPort
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewWarrantyScanJob initialises the warranty expiry scan handler.
func NewWarrantyScanJob(repo WarrantyScanPort, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarrantyScanJob {
	return &WarrantyScanJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the warranty expiry scan.
func (j *WarrantyScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("warranty scan: handler not configured")
	}
	var payload WarrantyScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 30
	}

	start := j.now()
	tracker := j.metrics().Track(TaskWarrantyScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("window_days", payload.WindowDays))
	logger.Info("starting warranty scan")

	window := time.Duration(payload.WindowDays) * 24 * time.Hour
	expiring, err := j.Repo.ExpiringWarranties(ctx, window)
	if err != nil {
		resultErr = err
		logger.Error("scan failed", slog.Any("error", err))
		return resultErr
	}

	for _, a := range expiring {
		severity := "expiring"
		if a.WarrantyExpiry != nil && a.WarrantyExpiry.Before(start) {
			severity = "expired"
		}
		logger.Warn("asset warranty running out",
			slog.Int64("asset_id", a.ID),
			slog.String("name", a.Name),
			slog.String("status", string(a.Status)),
			slog.String("severity", severity),
		)
		j.metrics().AddFindings(TaskWarrantyScan, severity, 1)
	}

	logger.Info("completed warranty scan",
		slog.Int("expiring", len(expiring)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *WarrantyScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *WarrantyScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *WarrantyScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
