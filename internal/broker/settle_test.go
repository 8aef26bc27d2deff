package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"userbus/internal/constants"
	"userbus/internal/settlement"
)

func TestPlanSettlement(t *testing.T) {
	lock := 5 * time.Second

	tests := []struct {
		name          string
		decision      settlement.Decision
		handlerErr    error
		deliveryCount int
		maxDelivery   int
		want          step
	}{
		{
			name:          "acknowledge completes",
			decision:      settlement.Decision{Action: settlement.Acknowledge},
			deliveryCount: 1,
			maxDelivery:   2,
			want:          step{kind: stepComplete},
		},
		{
			name:          "reject dead-letters with reason",
			decision:      settlement.Decision{Action: settlement.Reject, Reason: "missing required fields"},
			deliveryCount: 1,
			maxDelivery:   2,
			want:          step{kind: stepDeadLetter, reason: "missing required fields"},
		},
		{
			name:          "reject without reason",
			decision:      settlement.Decision{Action: settlement.Reject},
			deliveryCount: 1,
			maxDelivery:   2,
			want:          step{kind: stepDeadLetter, reason: "rejected"},
		},
		{
			name:          "none waits for the lock",
			decision:      settlement.Decision{Action: settlement.None},
			deliveryCount: 1,
			maxDelivery:   2,
			want:          step{kind: stepRedeliver, delay: lock},
		},
		{
			name:          "retry redelivers immediately",
			decision:      settlement.Decision{Action: settlement.Retry},
			deliveryCount: 1,
			maxDelivery:   2,
			want:          step{kind: stepRedeliver},
		},
		{
			name:          "handler error behaves like none",
			decision:      settlement.Decision{Action: settlement.Acknowledge},
			handlerErr:    errors.New("boom"),
			deliveryCount: 1,
			maxDelivery:   2,
			want:          step{kind: stepRedeliver, delay: lock},
		},
		{
			name:          "handler error on last delivery dead-letters",
			handlerErr:    errors.New("boom"),
			deliveryCount: 2,
			maxDelivery:   2,
			want:          step{kind: stepDeadLetter, reason: constants.ReasonMaxDeliveryCountExceeded},
		},
		{
			name:          "retry past the ceiling dead-letters",
			decision:      settlement.Decision{Action: settlement.Retry},
			deliveryCount: 3,
			maxDelivery:   3,
			want:          step{kind: stepDeadLetter, reason: constants.ReasonMaxDeliveryCountExceeded},
		},
		{
			name:          "ceiling disabled",
			decision:      settlement.Decision{Action: settlement.None},
			deliveryCount: 50,
			maxDelivery:   0,
			want:          step{kind: stepRedeliver, delay: lock},
		},
		{
			name:          "acknowledge on last delivery still completes",
			decision:      settlement.Decision{Action: settlement.Acknowledge},
			deliveryCount: 2,
			maxDelivery:   2,
			want:          step{kind: stepComplete},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := planSettlement(tt.decision, tt.handlerErr, tt.deliveryCount, tt.maxDelivery, lock)
			assert.Equal(t, tt.want, got)
		})
	}
}
