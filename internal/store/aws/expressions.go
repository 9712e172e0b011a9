package aws

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

// compiled holds the expression strings and placeholders for one item write.
type compiled struct {
	condition *string
	update    *string
	names     map[string]string
	values    map[string]types.AttributeValue
}

func compile(conds []store.Condition, assignments []store.Assignment) (compiled, error) {
	if len(conds) == 0 && len(assignments) == 0 {
		return compiled{}, nil
	}

	builder := expression.NewBuilder()
	if len(conds) > 0 {
		cond, err := conditionExpression(conds)
		if err != nil {
			return compiled{}, err
		}
		builder = builder.WithCondition(cond)
	}
	if len(assignments) > 0 {
		update, err := updateExpression(assignments)
		if err != nil {
			return compiled{}, err
		}
		builder = builder.WithUpdate(update)
	}

	expr, err := builder.Build()
	if err != nil {
		return compiled{}, fmt.Errorf("failed to build expression: %w", err)
	}

	return compiled{
		condition: expr.Condition(),
		update:    expr.Update(),
		names:     expr.Names(),
		values:    expr.Values(),
	}, nil
}

func conditionExpression(conds []store.Condition) (expression.ConditionBuilder, error) {
	builders := make([]expression.ConditionBuilder, 0, len(conds))
	for _, c := range conds {
		b, err := condition(c)
		if err != nil {
			return expression.ConditionBuilder{}, err
		}
		builders = append(builders, b)
	}
	if len(builders) == 1 {
		return builders[0], nil
	}
	return expression.And(builders[0], builders[1], builders[2:]...), nil
}

func condition(c store.Condition) (expression.ConditionBuilder, error) {
	id := expression.Name(string(models.FieldID))

	switch c := c.(type) {
	case store.ItemExists:
		return expression.AttributeExists(id), nil
	case store.ItemAbsent:
		return expression.AttributeNotExists(id), nil
	case store.ListExcludes:
		return expression.Not(expression.Name(string(c.Field)).Contains(c.Value)), nil
	case store.ListIndexEquals:
		return listElement(c.Field, c.Index).Equal(expression.Value(c.Value)), nil
	case store.ListSizeEquals:
		return expression.Name(string(c.Field)).Size().Equal(expression.Value(c.Size)), nil
	case store.FieldEquals:
		return expression.Name(string(c.Field)).Equal(expression.Value(c.Value)), nil
	case store.FieldGreaterThan:
		return expression.Name(string(c.Field)).GreaterThan(expression.Value(c.Value)), nil
	case store.FieldGreaterThanField:
		return expression.Name(string(c.Field)).GreaterThan(expression.Name(string(c.Other))), nil
	default:
		return expression.ConditionBuilder{}, fmt.Errorf("%w: unsupported condition %T", store.ErrInvalidBatch, c)
	}
}

func updateExpression(assignments []store.Assignment) (expression.UpdateBuilder, error) {
	var update expression.UpdateBuilder
	for _, a := range assignments {
		switch a := a.(type) {
		case store.SetField:
			update = update.Set(expression.Name(string(a.Field)), expression.Value(a.Value))
		case store.IncrementField:
			name := expression.Name(string(a.Field))
			if a.Delta < 0 {
				update = update.Set(name, name.Minus(expression.Value(-a.Delta)))
			} else {
				update = update.Set(name, name.Plus(expression.Value(a.Delta)))
			}
		case store.AppendToList:
			name := expression.Name(string(a.Field))
			update = update.Set(name, expression.ListAppend(
				expression.IfNotExists(name, expression.Value([]string{})),
				expression.Value([]string{a.Value}),
			))
		case store.RemoveListIndex:
			update = update.Remove(listElement(a.Field, a.Index))
		default:
			return expression.UpdateBuilder{}, fmt.Errorf("%w: unsupported assignment %T", store.ErrInvalidBatch, a)
		}
	}
	return update, nil
}

func listElement(field models.Field, index int) expression.NameBuilder {
	return expression.Name(fmt.Sprintf("%s[%d]", field, index))
}
