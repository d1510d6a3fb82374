package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rohittupe/prediction-service/config"
	"github.com/rohittupe/prediction-service/internal/core"
	"github.com/rohittupe/prediction-service/internal/data"
	"github.com/rohittupe/prediction-service/internal/domain/job"
	"github.com/rohittupe/prediction-service/internal/domain/model"
	"github.com/rohittupe/prediction-service/internal/mocks"
	"github.com/rohittupe/prediction-service/internal/testutil"
)

type recordingSink struct {
	mu     sync.Mutex
	counts map[string]int64
	gauges map[string]float64
}

func newRecordingSink() *recordingSink {
	return &recordingSink{counts: map[string]int64{}, gauges: map[string]float64{}}
}

func (r *recordingSink) Count(name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name] += value
}

func (r *recordingSink) Gauge(name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *recordingSink) Timing(string, time.Duration, map[string]string) {}

func testRetention(t *testing.T) *job.DynamicRetention {
	t.Helper()
	r, err := job.NewDynamicRetention(job.RetentionPolicy{
		CompletedTTL:  time.Hour,
		FailedTTL:     30 * time.Minute,
		PendingMaxAge: 10 * time.Minute,
	})
	require.NoError(t, err)
	return r
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, err := NewReaperService(ReaperServiceOptions{
			Reaper:    mocks.NewMockJobReaper(ctrl),
			Retention: testRetention(t),
			Config:    config.ReaperConfig{Interval: 5 * time.Minute, BatchSize: 1000},
			Logger:    slog.Default(),
		})

		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when reaper is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Retention: testRetention(t)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JobReaper is required")
	})

	t.Run("returns error when retention is nil", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := NewReaperService(ReaperServiceOptions{Reaper: mocks.NewMockJobReaper(ctrl)})
		require.Error(t, err)
	})
}

func TestReaperService_RunOnce(t *testing.T) {
	t.Run("runs all cleanup operations with the current policy", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reaper := mocks.NewMockJobReaper(ctrl)
		retention := testRetention(t)
		sink := newRecordingSink()

		gomock.InOrder(
			reaper.EXPECT().FailStalePending(gomock.Any(), core.FailStalePendingParams{
				MaxAge: 10 * time.Minute, BatchSize: 50, Message: AbandonedJobMessage,
			}).Return(int64(5), nil),
			reaper.EXPECT().FailStalePending(gomock.Any(), gomock.Any()).Return(int64(0), nil),
		)
		gomock.InOrder(
			reaper.EXPECT().DeleteExpired(gomock.Any(), core.DeleteExpiredParams{
				State: model.JobStateCompleted, OlderThan: time.Hour, BatchSize: 50,
			}).Return(int64(10), nil),
			reaper.EXPECT().DeleteExpired(gomock.Any(), core.DeleteExpiredParams{
				State: model.JobStateCompleted, OlderThan: time.Hour, BatchSize: 50,
			}).Return(int64(0), nil),
		)
		reaper.EXPECT().DeleteExpired(gomock.Any(), core.DeleteExpiredParams{
			State: model.JobStateFailed, OlderThan: 30 * time.Minute, BatchSize: 50,
		}).Return(int64(0), nil)

		svc, err := NewReaperService(ReaperServiceOptions{
			Reaper:    reaper,
			Retention: retention,
			Config:    config.ReaperConfig{Interval: time.Minute, BatchSize: 50},
			Metrics:   sink,
		})
		require.NoError(t, err)

		report, err := svc.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(5), report.Abandoned)
		assert.Equal(t, int64(10), report.DeletedCompleted)
		assert.Equal(t, int64(15), report.Total())
		assert.Equal(t, time.Hour, report.Policy.CompletedTTL)
		assert.Equal(t, int64(1), sink.counts[MetricReaperSweeps])
		assert.Equal(t, int64(15), sink.counts[MetricReaperJobs])
		assert.Contains(t, sink.gauges, MetricReaperLastSuccess)
	})

	t.Run("picks up policy updates between passes", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reaper := mocks.NewMockJobReaper(ctrl)
		retention := testRetention(t)
		require.NoError(t, retention.Update(job.RetentionPolicy{
			CompletedTTL: 2 * time.Hour, FailedTTL: time.Minute, PendingMaxAge: time.Minute,
		}))

		reaper.EXPECT().FailStalePending(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p core.FailStalePendingParams) (int64, error) {
				assert.Equal(t, time.Minute, p.MaxAge)
				return 0, nil
			})
		reaper.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, p core.DeleteExpiredParams) (int64, error) {
				if p.State == model.JobStateCompleted {
					assert.Equal(t, 2*time.Hour, p.OlderThan)
				} else {
					assert.Equal(t, time.Minute, p.OlderThan)
				}
				return 0, nil
			}).Times(2)

		svc, err := NewReaperService(ReaperServiceOptions{Reaper: reaper, Retention: retention})
		require.NoError(t, err)
		_, err = svc.RunOnce(context.Background())
		require.NoError(t, err)
	})

	t.Run("continues on partial errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reaper := mocks.NewMockJobReaper(ctrl)
		reaper.EXPECT().FailStalePending(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("fail error"))
		reaper.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)

		svc, err := NewReaperService(ReaperServiceOptions{Reaper: reaper, Retention: testRetention(t)})
		require.NoError(t, err)

		_, err = svc.RunOnce(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fail stale pending jobs")
	})

	t.Run("reports cancellation plainly", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reaper := mocks.NewMockJobReaper(ctrl)
		reaper.EXPECT().FailStalePending(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)
		reaper.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled).Times(2)

		svc, err := NewReaperService(ReaperServiceOptions{Reaper: reaper, Retention: testRetention(t)})
		require.NoError(t, err)

		_, err = svc.RunOnce(context.Background())
		require.Equal(t, context.Canceled, err)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reaper := mocks.NewMockJobReaper(ctrl)
		var mu sync.Mutex
		calls := 0
		reaper.EXPECT().FailStalePending(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, core.FailStalePendingParams) (int64, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return 0, nil
			}).AnyTimes()
		reaper.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

		svc, err := NewReaperService(ReaperServiceOptions{
			Reaper:    reaper,
			Retention: testRetention(t),
			Config:    config.ReaperConfig{Interval: 100 * time.Millisecond, BatchSize: 10},
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		time.Sleep(150 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}

		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, calls, 1)
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reaper := mocks.NewMockJobReaper(ctrl)
		var mu sync.Mutex
		calls := 0
		reaper.EXPECT().FailStalePending(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, core.FailStalePendingParams) (int64, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return 0, errors.New("test error")
			}).AnyTimes()
		reaper.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

		svc, err := NewReaperService(ReaperServiceOptions{
			Reaper:    reaper,
			Retention: testRetention(t),
			Config:    config.ReaperConfig{Interval: 50 * time.Millisecond, BatchSize: 10},
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		mu.Lock()
		defer mu.Unlock()
		assert.GreaterOrEqual(t, calls, 2)
	})
}

func TestReaperService_WithMemoryStore(t *testing.T) {
	clock := data.NewManualClock(testutil.TestTime())
	retention := testRetention(t)
	store, err := data.NewMemoryJobStore(data.MemoryJobStoreOptions{Retention: retention, Clock: clock})
	require.NoError(t, err)
	ctx := context.Background()

	abandoned, _ := store.Create(ctx)
	finished, _ := store.Create(ctx)
	require.NoError(t, store.Complete(ctx, finished, model.PredictionResult{}))

	clock.Advance(2 * time.Hour)
	fresh, _ := store.Create(ctx)

	svc, err := NewReaperService(ReaperServiceOptions{Reaper: store, Retention: retention})
	require.NoError(t, err)
	report, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Abandoned)
	assert.Equal(t, int64(1), report.DeletedCompleted)

	j, err := store.Get(ctx, abandoned)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, j.State)
	assert.Equal(t, AbandonedJobMessage, j.ErrorMessage())

	_, err = store.Get(ctx, finished)
	require.ErrorIs(t, err, model.ErrJobNotFound)

	j, err = store.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatePending, j.State)
}
