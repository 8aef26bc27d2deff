package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"userbus/internal/delivery"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		outcome delivery.Outcome
		want    Decision
	}{
		{
			name:    "success acknowledges",
			outcome: delivery.Success(),
			want:    Decision{Action: Acknowledge},
		},
		{
			name:    "discard acknowledges",
			outcome: delivery.Discard(delivery.ReasonStaleMessage, delivery.ConditionStale),
			want:    Decision{Action: Acknowledge},
		},
		{
			name:    "terminal rejects with reason",
			outcome: delivery.Terminal(delivery.ReasonMissingRequiredFields, delivery.ConditionInvalid),
			want:    Decision{Action: Reject, Reason: "missing required fields"},
		},
		{
			name:    "retryable waits for lock expiry",
			outcome: delivery.Retryable(delivery.ReasonTargetUnreachable, delivery.ConditionUnreachable),
			want:    Decision{Action: None},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.outcome))
		})
	}
}

func TestResolver_ImmediateRelease(t *testing.T) {
	r := NewResolver(WithImmediateRelease(true))

	got := r.Resolve(delivery.Retryable(delivery.ReasonDependencyNotAvailable, delivery.ConditionMissingDependency))
	assert.Equal(t, Decision{Action: Retry}, got)

	// everything else is unaffected
	assert.Equal(t, Decision{Action: Acknowledge}, r.Resolve(delivery.Success()))
	assert.Equal(t, Reject, r.Resolve(delivery.Terminal(delivery.ReasonTargetUnreachable, delivery.ConditionUnreachable)).Action)
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "acknowledge", Acknowledge.String())
	assert.Equal(t, "reject", Reject.String())
	assert.Equal(t, "unknown", Action(42).String())
}
