package conditions

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadmill/leadmill/pkg/models"
)

func TestEvaluate_Equals(t *testing.T) {
	tests := []struct {
		name     string
		field    any
		target   any
		expected bool
	}{
		{"equal strings", "vip", "vip", true},
		{"different strings", "vip", "new", false},
		{"equal numbers", 42, 42.0, true},
		{"numeric string matches number", "42", 42, true},
		{"string never equals bool", "true", true, false},
		{"both nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(tt.field, OperatorEquals, tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestEvaluate_Comparisons(t *testing.T) {
	result, err := Evaluate(100.0, OperatorGreaterThan, 50)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate(10, OperatorLessThan, 50.5)
	require.NoError(t, err)
	assert.True(t, result)

	// Non-numeric operands never satisfy an ordering comparison.
	result, err = Evaluate("abc", OperatorGreaterThan, 50)
	require.NoError(t, err)
	assert.False(t, result)

	result, err = Evaluate(nil, OperatorLessThan, 50)
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluate_Contains(t *testing.T) {
	result, err := Evaluate("hello world", OperatorContains, "world")
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate("hello", OperatorContains, "world")
	require.NoError(t, err)
	assert.False(t, result)
}

func TestEvaluate_In(t *testing.T) {
	result, err := Evaluate("gold", OperatorIn, []any{"silver", "gold"})
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate("bronze", OperatorIn, []any{"silver", "gold"})
	require.NoError(t, err)
	assert.False(t, result)

	result, err = Evaluate(2, OperatorIn, []any{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_IsSet(t *testing.T) {
	result, err := Evaluate("anything", OperatorIsSet, nil)
	require.NoError(t, err)
	assert.True(t, result)

	result, err = Evaluate(nil, OperatorIsSet, nil)
	require.NoError(t, err)
	assert.False(t, result)

	result, err = Evaluate(nil, OperatorIsNotSet, nil)
	require.NoError(t, err)
	assert.True(t, result)
}

func TestEvaluate_UnknownOperator(t *testing.T) {
	_, err := Evaluate("a", Operator("regex_match"), "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestMatchesTriggerConditions(t *testing.T) {
	logger := slog.Default()
	data := map[string]any{"total": 150.0, "source": "checkout"}

	conds := []models.Condition{
		{Field: "total", Operator: "greater_than", Value: 100},
		{Field: "source", Operator: "equals", Value: "checkout"},
	}
	assert.True(t, MatchesTriggerConditions(logger, conds, data))

	conds[0].Value = 200
	assert.False(t, MatchesTriggerConditions(logger, conds, data))

	// No conditions matches every event.
	assert.True(t, MatchesTriggerConditions(logger, nil, data))
}

func TestMatchesTriggerConditions_UnknownOperatorFailsOpen(t *testing.T) {
	conds := []models.Condition{
		{Field: "total", Operator: "regex_match", Value: ".*"},
		{Field: "source", Operator: "equals", Value: "checkout"},
	}
	data := map[string]any{"total": 150.0, "source": "checkout"}

	assert.True(t, MatchesTriggerConditions(slog.Default(), conds, data))
}

func TestResolveField(t *testing.T) {
	customer := &models.Customer{
		ID:      "c1",
		StoreID: "s1",
		Email:   "ada@example.com",
		Fields:  map[string]any{"tier": "gold"},
	}
	triggerData := map[string]any{"email": "other@example.com", "total": 99.0}

	// Customer record wins over trigger data.
	assert.Equal(t, "ada@example.com", ResolveField(customer, triggerData, "email"))
	assert.Equal(t, "gold", ResolveField(customer, triggerData, "tier"))

	// Trigger data backfills fields the customer lacks.
	assert.Equal(t, 99.0, ResolveField(customer, triggerData, "total"))

	// Unknown everywhere resolves to unset.
	assert.Nil(t, ResolveField(customer, triggerData, "missing"))

	// A nil customer only consults the trigger data.
	assert.Equal(t, 99.0, ResolveField(nil, triggerData, "total"))
}
