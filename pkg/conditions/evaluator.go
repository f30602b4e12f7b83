// Package conditions evaluates workflow predicates against customer and
// trigger data.
package conditions

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/leadmill/leadmill/pkg/models"
)

// Operator is a supported comparison operator.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIn          Operator = "in"
	OperatorIsSet       Operator = "is_set"
	OperatorIsNotSet    Operator = "is_not_set"
)

// ErrUnknownOperator is returned when an operator is not supported. Callers
// decide whether that fails open (trigger filters) or closed (condition
// steps).
var ErrUnknownOperator = errors.New("unknown operator")

// Evaluate applies a single predicate. fieldValue is nil when the field is
// absent from every source.
func Evaluate(fieldValue any, operator Operator, target any) (bool, error) {
	switch operator {
	case OperatorEquals:
		return equalValues(fieldValue, target), nil
	case OperatorNotEquals:
		return !equalValues(fieldValue, target), nil
	case OperatorContains:
		return strings.Contains(coerceString(fieldValue), coerceString(target)), nil
	case OperatorGreaterThan:
		left, right, ok := coerceNumbers(fieldValue, target)

		return ok && left > right, nil
	case OperatorLessThan:
		left, right, ok := coerceNumbers(fieldValue, target)

		return ok && left < right, nil
	case OperatorIn:
		return containsValue(target, fieldValue), nil
	case OperatorIsSet:
		return fieldValue != nil, nil
	case OperatorIsNotSet:
		return fieldValue == nil, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}
}

// MatchesTriggerConditions evaluates a compound trigger filter (implicit
// AND) against the trigger data bag. An empty or absent filter matches
// trivially. Unknown operators pass rather than disabling the whole
// workflow; they are logged for the operator to find.
func MatchesTriggerConditions(logger *slog.Logger, conds []models.Condition, data map[string]any) bool {
	for _, cond := range conds {
		matched, err := Evaluate(data[cond.Field], Operator(cond.Operator), cond.Value)
		if err != nil {
			logger.Warn("Skipping trigger condition with unknown operator",
				"field", cond.Field,
				"operator", cond.Operator)

			continue
		}

		if !matched {
			return false
		}
	}

	return true
}

// ResolveField resolves a condition-step field: the customer record wins,
// then the enrollment's captured trigger data, otherwise unset (nil).
func ResolveField(customer *models.Customer, triggerData map[string]any, field string) any {
	if value, ok := customer.Field(field); ok {
		return value
	}

	if value, ok := triggerData[field]; ok {
		return value
	}

	return nil
}

// equalValues compares with strict-equality semantics: numbers compare
// numerically regardless of their Go representation, everything else must
// match in kind and value.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if left, leftOK := toFloat(a); leftOK {
		if right, rightOK := toFloat(b); rightOK {
			return left == right
		}

		return false
	}

	if left, ok := a.(string); ok {
		right, rightOK := b.(string)

		return rightOK && left == right
	}

	if left, ok := a.(bool); ok {
		right, rightOK := b.(bool)

		return rightOK && left == right
	}

	return reflect.DeepEqual(a, b)
}

// containsValue reports whether the target list contains the field value.
func containsValue(list any, value any) bool {
	switch items := list.(type) {
	case []any:
		for _, item := range items {
			if equalValues(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range items {
			if equalValues(value, item) {
				return true
			}
		}
	}

	return false
}

func coerceString(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprintf("%v", v)
}

func coerceNumbers(a, b any) (float64, float64, bool) {
	left, leftOK := toFloat(a)
	right, rightOK := toFloat(b)

	return left, right, leftOK && rightOK
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)

		return parsed, err == nil
	default:
		return 0, false
	}
}
