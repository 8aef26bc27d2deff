package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userbus/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidatePredicate(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "suffix match", expr: `event.phoneNumber.endsWith("99")`},
		{name: "generated suffix match", expr: FieldEndsWith("phoneNumber", "06")},
		{name: "role comparison", expr: `event.role == "admin"`},
		{name: "delivery count", expr: `deliveryCount > 1`},
		{name: "property lookup", expr: `properties["Source"] == "crm"`},
		{name: "non-bool", expr: `deliveryCount + 1`, wantError: true},
		{name: "syntax error", expr: `event.phoneNumber ==`, wantError: true},
		{name: "undefined variable", expr: `payload.status == "x"`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidatePredicate(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPredicate_Eval(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	now := time.Date(2021, 5, 13, 12, 0, 0, 0, time.UTC)
	evt := models.UnitEvent{
		EntityID:    "1",
		Role:        "admin",
		PhoneNumber: "555-0199",
		Timestamp:   models.NewTimestamp(now.Add(-2 * time.Hour)),
	}

	tests := []struct {
		name string
		expr string
		in   Input
		want bool
	}{
		{name: "suffix hit", expr: FieldEndsWith("phoneNumber", "99"), in: Input{Event: evt}, want: true},
		{name: "suffix miss", expr: FieldEndsWith("phoneNumber", "06"), in: Input{Event: evt}, want: false},
		{name: "empty field", expr: FieldEndsWith("email", "09"), in: Input{Event: evt}, want: false},
		{name: "older than an hour", expr: `event.timestamp < now - duration("1h")`, in: Input{Event: evt, Now: now}, want: true},
		{name: "final attempt", expr: `deliveryCount >= 2`, in: Input{Event: evt, DeliveryCount: 2}, want: true},
		{name: "property", expr: `properties["Source"] == "crm"`, in: Input{Event: evt, Properties: map[string]string{"Source": "crm"}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := eval.CompilePredicate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, p.Expression())

			got, err := p.Eval(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatePredicate_RuntimeTypeError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	_, err = eval.EvaluatePredicate(context.Background(), `event.timestamp.endsWith("x")`, Input{Event: models.UnitEvent{EntityID: "1"}})
	assert.Error(t, err)
}

func TestFieldEndsWith(t *testing.T) {
	assert.Equal(t, `has(event.phoneNumber) && event.phoneNumber.endsWith("09")`, FieldEndsWith("phoneNumber", "09"))
}
