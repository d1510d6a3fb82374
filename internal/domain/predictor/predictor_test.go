package predictor

import (
	"context"
	"testing"
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 23, 30, 0, 0, time.UTC)

func newTestPredictor() *Predictor {
	return New(Options{Now: func() time.Time { return fixedNow }})
}

func daysAgo(n int) *model.Date {
	d := model.DateOf(fixedNow).AddDays(-n)
	return &d
}

func request(balance, size float64, date *model.Date) model.PredictionRequest {
	return model.PredictionRequest{
		MemberID:         "member-1",
		Balance:          model.Float64(balance),
		LastPurchaseSize: model.Float64(size),
		LastPurchaseDate: date,
	}
}

func TestCompute_AverageAndProbability(t *testing.T) {
	tests := []struct {
		name        string
		req         model.PredictionRequest
		wantAverage float64
		wantProb    float64
	}{
		{"purchase today", request(1000, 500, daysAgo(0)), 750, 1.0},
		{"30 days ago", request(0, 100, daysAgo(30)), 50, 1 - 30.0/365},
		{"90 days ago", request(2000, 0, daysAgo(90)), 1000, 1 - 90.0/365},
		{"180 days ago", request(10, 20, daysAgo(180)), 15, 1 - 180.0/365},
		{"exactly one year", request(1, 1, daysAgo(365)), 1, 0},
		{"older than a year clamps at zero", request(1, 1, daysAgo(400)), 1, 0},
		{"future date clamps at one", request(1, 1, daysAgo(-10)), 1, 1},
		{"missing date is maximally stale", request(1000, 500, nil), 750, 0},
		{"zero amounts", request(0, 0, daysAgo(0)), 0, 1},
	}

	p := newTestPredictor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Compute(context.Background(), tt.req)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantAverage, got.AverageTransactionSize, 1e-9)
			assert.InDelta(t, tt.wantProb, got.ProbabilityToTransact, 1e-9)
			assert.GreaterOrEqual(t, got.ProbabilityToTransact, 0.0)
			assert.LessOrEqual(t, got.ProbabilityToTransact, 1.0)
		})
	}
}

func TestCompute_UsesDateOnlyDifference(t *testing.T) {
	// 00:05 UTC the day after the purchase is one whole day, regardless of time of day.
	now := time.Date(2025, 6, 16, 0, 5, 0, 0, time.UTC)
	p := New(Options{Now: func() time.Time { return now }})
	d := model.MustParseDate("2025-06-15")

	got, err := p.Compute(context.Background(), request(1, 1, &d))
	require.NoError(t, err)
	assert.InDelta(t, 1-1.0/365, got.ProbabilityToTransact, 1e-9)
}

func TestCompute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   model.PredictionRequest
		field string
	}{
		{"negative balance", request(-1, 10, nil), "balance"},
		{"negative purchase size", request(10, -0.01, nil), "last_purchase_size"},
		{"missing balance", model.PredictionRequest{MemberID: "m", LastPurchaseSize: model.Float64(1)}, "balance"},
		{"missing purchase size", model.PredictionRequest{MemberID: "m", Balance: model.Float64(1)}, "last_purchase_size"},
	}

	p := newTestPredictor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Compute(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	p := newTestPredictor()
	req := request(123.45, 67.89, daysAgo(12))
	first, err := p.Compute(context.Background(), req)
	require.NoError(t, err)
	for range 10 {
		again, err := p.Compute(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_SimulatedFailure(t *testing.T) {
	t.Run("fires below rate", func(t *testing.T) {
		p := New(Options{Now: func() time.Time { return fixedNow }, FailureRate: 0.15, Rand: func() float64 { return 0.1 }})
		_, err := p.Compute(context.Background(), request(1, 1, nil))
		require.ErrorIs(t, err, ErrSimulatedFailure)
		assert.False(t, apperrors.IsValidation(err))
	})

	t.Run("skipped at or above rate", func(t *testing.T) {
		p := New(Options{Now: func() time.Time { return fixedNow }, FailureRate: 0.15, Rand: func() float64 { return 0.15 }})
		_, err := p.Compute(context.Background(), request(1, 1, nil))
		require.NoError(t, err)
	})

	t.Run("disabled by default", func(t *testing.T) {
		p := New(Options{Rand: func() float64 { return 0 }})
		_, err := p.Compute(context.Background(), request(1, 1, nil))
		require.NoError(t, err)
	})

	t.Run("validation runs before injection", func(t *testing.T) {
		p := New(Options{FailureRate: 1, Rand: func() float64 { return 0 }})
		_, err := p.Compute(context.Background(), request(-1, 1, nil))
		assert.True(t, apperrors.IsValidation(err))
	})
}
