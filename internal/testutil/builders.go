// Package testutil provides testing utilities and helpers for the prediction service.
package testutil

import (
	"time"

	"github.com/rohittupe/prediction-service/internal/domain/model"
)

// PredictionRequestBuilder provides a fluent interface for building PredictionRequest values.
type PredictionRequestBuilder struct {
	req model.PredictionRequest
}

// NewPredictionRequest creates a builder with a valid request purchased "today" relative to now.
func NewPredictionRequest(now time.Time) *PredictionRequestBuilder {
	today := model.DateOf(now.UTC())
	return &PredictionRequestBuilder{
		req: model.PredictionRequest{
			MemberID:         "member-001",
			Balance:          model.Float64(1000),
			LastPurchaseSize: model.Float64(500),
			LastPurchaseDate: &today,
		},
	}
}

// WithMemberID sets the member id.
func (b *PredictionRequestBuilder) WithMemberID(id string) *PredictionRequestBuilder {
	b.req.MemberID = id
	return b
}

// WithBalance sets the balance.
func (b *PredictionRequestBuilder) WithBalance(v float64) *PredictionRequestBuilder {
	b.req.Balance = model.Float64(v)
	return b
}

// WithLastPurchaseSize sets the last purchase size.
func (b *PredictionRequestBuilder) WithLastPurchaseSize(v float64) *PredictionRequestBuilder {
	b.req.LastPurchaseSize = model.Float64(v)
	return b
}

// WithDaysSincePurchase sets the purchase date n days before the builder's reference date.
func (b *PredictionRequestBuilder) WithDaysSincePurchase(n int) *PredictionRequestBuilder {
	if b.req.LastPurchaseDate != nil {
		d := b.req.LastPurchaseDate.AddDays(-n)
		b.req.LastPurchaseDate = &d
	}
	return b
}

// WithoutPurchaseDate clears the purchase date.
func (b *PredictionRequestBuilder) WithoutPurchaseDate() *PredictionRequestBuilder {
	b.req.LastPurchaseDate = nil
	return b
}

// Build returns a copy of the request.
func (b *PredictionRequestBuilder) Build() model.PredictionRequest {
	return b.req.Clone()
}
