package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubEnqueuer struct {
	onboarding []OnboardingScanPayload
	warranty   []WarrantyScanPayload
	err        error
}

func (s *stubEnqueuer) EnqueueOnboardingScan(ctx context.Context, payload OnboardingScanPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.onboarding = append(s.onboarding, payload)
	return &asynq.TaskInfo{ID: "onboarding-1"}, nil
}

func (s *stubEnqueuer) EnqueueWarrantyScan(ctx context.Context, payload WarrantyScanPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.warranty = append(s.warranty, payload)
	return &asynq.TaskInfo{ID: "warranty-1"}, nil
}

func newJobsRouter(enqueuer Enqueuer) chi.Router {
	h := NewHandler(nil, enqueuer, discardLogger())
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestTriggerOnboardingScanQueuesTask(t *testing.T) {
	enq := &stubEnqueuer{}
	router := newJobsRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/scans/onboarding", strings.NewReader(`{"dueSoonDays":3}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "onboarding-1")
	require.Len(t, enq.onboarding, 1)
	require.Equal(t, 3, enq.onboarding[0].DueSoonDays)
}

func TestTriggerWarrantyScanEmptyBodyUsesDefaults(t *testing.T) {
	enq := &stubEnqueuer{}
	router := newJobsRouter(enq)

	req := httptest.NewRequest(http.MethodPost, "/scans/warranty", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.warranty, 1)
	require.Zero(t, enq.warranty[0].WindowDays)
}

func TestTriggerScanMalformedBody(t *testing.T) {
	router := newJobsRouter(&stubEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/scans/onboarding", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerScanEnqueueFailure(t *testing.T) {
	router := newJobsRouter(&stubEnqueuer{err: errors.New("redis down")})

	req := httptest.NewRequest(http.MethodPost, "/scans/warranty", strings.NewReader(`{"windowDays":14}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestTriggerScanWithoutEnqueuer(t *testing.T) {
	router := newJobsRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/scans/onboarding", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
