package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"userbus/internal/config"
	"userbus/internal/delivery"
)

func TestRuleExpressions(t *testing.T) {
	got := ruleExpressions([]config.RuleConfig{
		{Condition: string(delivery.ConditionUnreachable), Expression: `event.role == "offline"`},
		{Condition: string(delivery.ConditionCatastrophic), Expression: ""},
	})

	defaults := delivery.DefaultExpressions()
	assert.Equal(t, `event.role == "offline"`, got[delivery.ConditionUnreachable])
	assert.NotContains(t, got, delivery.ConditionCatastrophic)
	assert.Equal(t, defaults[delivery.ConditionInvalid], got[delivery.ConditionInvalid])
	assert.Len(t, got, len(defaults)-1)
}
