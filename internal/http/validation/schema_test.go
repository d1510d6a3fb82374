package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionRequestSchema(t *testing.T) {
	schema, err := PredictionRequest()
	require.NoError(t, err)

	tests := []struct {
		name      string
		body      string
		wantField string
		malformed bool
	}{
		{name: "valid", body: `{"member_id":"m1","balance":1000,"last_purchase_size":500,"last_purchase_date":"2024-01-01"}`},
		{name: "date optional", body: `{"member_id":"m1","balance":1000,"last_purchase_size":500}`},
		{name: "null date", body: `{"member_id":"m1","balance":1000,"last_purchase_size":500,"last_purchase_date":null}`},
		{name: "negative amounts pass shape checks", body: `{"member_id":"m1","balance":-1,"last_purchase_size":-2}`},
		{name: "missing balance", body: `{"member_id":"m1","last_purchase_size":500}`, wantField: "balance"},
		{name: "balance as string", body: `{"member_id":"m1","balance":"lots","last_purchase_size":500}`, wantField: "balance"},
		{name: "empty member", body: `{"member_id":"","balance":1,"last_purchase_size":1}`, wantField: "member_id"},
		{name: "bad date", body: `{"member_id":"m1","balance":1,"last_purchase_size":1,"last_purchase_date":"2024-13-45"}`, wantField: "last_purchase_date"},
		{name: "unknown field ignored", body: `{"member_id":"m1","balance":1,"last_purchase_size":1,"extra":true}`},
		{name: "not an object", body: `[1,2]`},
		{name: "truncated", body: `{"member_id":`, malformed: true},
		{name: "trailing data", body: `{} {}`, malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]byte(tt.body))
			if tt.malformed {
				require.ErrorIs(t, err, ErrMalformedJSON)
				return
			}
			switch tt.name {
			case "not an object":
				var v *Violation
				require.ErrorAs(t, err, &v)
				return
			}
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var v *Violation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.wantField, v.Field)
			assert.NotEmpty(t, v.Message)
			assert.False(t, errors.Is(err, ErrMalformedJSON))
		})
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile("broken.json", `{"type": 12}`)
	require.Error(t, err)
}

func TestMissingProperty(t *testing.T) {
	assert.Equal(t, "balance", missingProperty("missing properties: 'balance', 'last_purchase_size'"))
	assert.Empty(t, missingProperty("expected number, but got string"))
}
