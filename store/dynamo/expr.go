package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docmap/store"
)

// expression is a condition or update clause with its placeholder maps.
type expression struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// empty reports whether the expression has no clause.
func (e expression) empty() bool {
	return e.Expr == ""
}

// nullType is the attribute_type operand for DynamoDB NULL values.
const nullType = "NULL"

// buildCondition translates equality criteria into a condition/filter expression.
// Placeholders are prefixed with prefix so several expressions can be merged.
// A nil criteria value matches a missing or NULL attribute.
func buildCondition(criteria store.Criteria, prefix string) (expression, error) {
	e := expression{
		Names:  map[string]string{},
		Values: map[string]types.AttributeValue{},
	}

	var clauses []string
	for i, k := range criteria.Keys() {
		nameKey := fmt.Sprintf("#%s%d", prefix, i)
		valueKey := fmt.Sprintf(":%s%d", prefix, i)
		e.Names[nameKey] = k

		v := criteria[k]
		if v == nil {
			e.Values[valueKey] = &types.AttributeValueMemberS{Value: nullType}
			clauses = append(clauses, fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, %s))", nameKey, nameKey, valueKey))
			continue
		}

		av, err := attributevalue.Marshal(v)
		if err != nil {
			return expression{}, fmt.Errorf("marshal criteria %q: %w", k, err)
		}
		e.Values[valueKey] = av
		clauses = append(clauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	e.Expr = strings.Join(clauses, " AND ")
	return e, nil
}

// buildSet translates a record into a SET update expression, skipping the identity.
func buildSet(set store.Record, prefix string) (expression, error) {
	e := expression{
		Names:  map[string]string{},
		Values: map[string]types.AttributeValue{},
	}

	var clauses []string
	for i, k := range store.Criteria(set).Keys() {
		if k == store.IDField {
			continue
		}
		nameKey := fmt.Sprintf("#%s%d", prefix, i)
		valueKey := fmt.Sprintf(":%s%d", prefix, i)

		av, err := attributevalue.Marshal(set[k])
		if err != nil {
			return expression{}, fmt.Errorf("marshal value %q: %w", k, err)
		}
		e.Names[nameKey] = k
		e.Values[valueKey] = av
		clauses = append(clauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	if len(clauses) > 0 {
		e.Expr = "SET " + strings.Join(clauses, ", ")
	}
	return e, nil
}

// existsCondition returns the condition requiring the keyed item to exist,
// and-ed with an optional extra condition.
func existsCondition(extra expression) expression {
	cond := expression{
		Expr:   "attribute_exists(#id)",
		Names:  mergeExprNames(map[string]string{"#id": store.IDField}, extra.Names),
		Values: mergeExprValues(extra.Values),
	}
	if !extra.empty() {
		cond.Expr = fmt.Sprintf("attribute_exists(#id) AND (%s)", extra.Expr)
	}
	return cond
}

// mergeExprNames merges multiple expression attribute name maps.
func mergeExprNames(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// mergeExprValues merges multiple expression attribute value maps.
func mergeExprValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// nilIfEmpty returns nil for empty maps; DynamoDB rejects empty placeholder maps.
func nilIfEmpty[M ~map[K]V, K comparable, V any](m M) M {
	if len(m) == 0 {
		return nil
	}
	return m
}
