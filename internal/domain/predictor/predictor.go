// Package predictor computes prediction scores from a validated request.
package predictor

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
	apperrors "github.com/rohittupe/prediction-service/internal/errors"
)

// DaysPerYear is the horizon over which transact probability decays linearly to zero.
const DaysPerYear = 365.0

// ErrSimulatedFailure is returned when a simulated failure is injected.
//
//nolint:staticcheck // message is surfaced to clients verbatim.
var ErrSimulatedFailure = errors.New("Unknown error occurred during prediction")

// Options configures a Predictor.
type Options struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	// FailureRate is the probability in [0,1] that Compute fails with ErrSimulatedFailure.
	// Zero disables simulated failures.
	FailureRate float64
	// Rand returns a float in [0,1). Defaults to math/rand/v2.Float64.
	Rand func() float64
}

// Predictor is a pure scoring function apart from its clock and optional failure injection.
type Predictor struct {
	now         func() time.Time
	failureRate float64
	rand        func() float64
}

// New constructs a Predictor.
func New(opts Options) *Predictor {
	p := &Predictor{
		now:         opts.Now,
		failureRate: math.Max(0, math.Min(1, opts.FailureRate)),
		rand:        opts.Rand,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.rand == nil {
		p.rand = rand.Float64
	}
	return p
}

// Compute derives the average transaction size and the probability to transact.
// It fails with a validation error when an amount is absent, negative, or not finite.
func (p *Predictor) Compute(_ context.Context, req model.PredictionRequest) (model.PredictionResult, error) {
	balance, err := amount("balance", req.Balance)
	if err != nil {
		return model.PredictionResult{}, err
	}
	size, err := amount("last_purchase_size", req.LastPurchaseSize)
	if err != nil {
		return model.PredictionResult{}, err
	}

	if p.failureRate > 0 && p.rand() < p.failureRate {
		return model.PredictionResult{}, ErrSimulatedFailure
	}

	return model.PredictionResult{
		AverageTransactionSize: (balance + size) / 2,
		ProbabilityToTransact:  p.probability(req.LastPurchaseDate),
	}, nil
}

// probability decays linearly from 1 on the purchase day to 0 after a year, clamped to [0,1].
// A missing date is treated as maximally stale.
func (p *Predictor) probability(last *model.Date) float64 {
	if last == nil {
		return 0
	}
	today := model.DateOf(p.now().UTC())
	days := last.DaysUntil(today)
	return clamp01(1 - float64(days)/DaysPerYear)
}

func amount(field string, v *float64) (float64, error) {
	switch {
	case v == nil:
		return 0, apperrors.ValidationField(field, field+" is required")
	case math.IsNaN(*v) || math.IsInf(*v, 0):
		return 0, apperrors.ValidationField(field, field+" must be a finite number")
	case *v < 0:
		return 0, apperrors.ValidationField(field, field+" must be non-negative")
	}
	return *v, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
