package model

import (
	"fmt"
	"strings"
)

// PredictionRequest is the input to a prediction.
// Numeric fields are pointers so an absent value is distinguishable from zero.
type PredictionRequest struct {
	MemberID         string   `json:"member_id"`
	Balance          *float64 `json:"balance"`
	LastPurchaseSize *float64 `json:"last_purchase_size"`
	LastPurchaseDate *Date    `json:"last_purchase_date,omitempty"`
}

// PredictionResult is the output of a prediction.
type PredictionResult struct {
	AverageTransactionSize float64 `json:"average_transaction_size"`
	ProbabilityToTransact  float64 `json:"probability_to_transact"`
}

// FieldError describes a request shape problem on a single field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks request shape only: presence of required fields.
// Business rules such as non-negative amounts belong to the predictor.
func (r PredictionRequest) Validate() error {
	if strings.TrimSpace(r.MemberID) == "" {
		return &FieldError{Field: "member_id", Message: "member_id is required"}
	}
	if r.Balance == nil {
		return &FieldError{Field: "balance", Message: "balance is required"}
	}
	if r.LastPurchaseSize == nil {
		return &FieldError{Field: "last_purchase_size", Message: "last_purchase_size is required"}
	}
	return nil
}

// Clone returns a deep copy of the request.
func (r PredictionRequest) Clone() PredictionRequest {
	out := PredictionRequest{MemberID: r.MemberID}
	if r.Balance != nil {
		v := *r.Balance
		out.Balance = &v
	}
	if r.LastPurchaseSize != nil {
		v := *r.LastPurchaseSize
		out.LastPurchaseSize = &v
	}
	if r.LastPurchaseDate != nil {
		v := *r.LastPurchaseDate
		out.LastPurchaseDate = &v
	}
	return out
}

// Float64 returns a pointer to v. Handy for building requests.
func Float64(v float64) *float64 { return &v }
