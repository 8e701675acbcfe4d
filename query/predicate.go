package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/secrepo/secrepo/types"
)

// boundClause is one clause with its call-time operands resolved.
type boundClause func(id string) bool

// BindPredicate binds call arguments to a descriptor's clauses and
// returns the combined predicate. Comparisons are string-typed:
// lexicographic for ranges, case-sensitive for prefix, suffix, substring
// and regex matching. Combinators apply strictly left-to-right in the
// order written; there is no precedence between And and Or.
func BindPredicate(qd *types.QueryDescriptor, args []any) (func(id string) (bool, error), error) {
	if want := qd.ArgCount(); len(args) != want {
		return nil, fmt.Errorf("query %q expects %d argument(s), got %d", qd.Source, want, len(args))
	}

	bound := make([]boundClause, 0, len(qd.Clauses))
	next := 0
	for _, clause := range qd.Clauses {
		operands := args[next : next+clause.NumArgs]
		next += clause.NumArgs
		bc, err := bindClause(clause, operands)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", qd.Source, err)
		}
		bound = append(bound, bc)
	}

	combinators := qd.Combinators
	return func(id string) (bool, error) {
		if len(bound) == 0 {
			return true, nil
		}
		result := bound[0](id)
		for i, comb := range combinators {
			v := bound[i+1](id)
			if comb == types.CombinatorAnd {
				result = result && v
			} else {
				result = result || v
			}
		}
		return result, nil
	}, nil
}

func bindClause(clause types.Clause, operands []any) (boundClause, error) {
	switch clause.Op {
	case types.OpEquals:
		want := operandString(operands[0])
		return func(id string) bool { return id == want }, nil
	case types.OpNotEquals:
		want := operandString(operands[0])
		return func(id string) bool { return id != want }, nil
	case types.OpGreaterThan:
		want := operandString(operands[0])
		return func(id string) bool { return id > want }, nil
	case types.OpGreaterThanEqual:
		want := operandString(operands[0])
		return func(id string) bool { return id >= want }, nil
	case types.OpLessThan:
		want := operandString(operands[0])
		return func(id string) bool { return id < want }, nil
	case types.OpLessThanEqual:
		want := operandString(operands[0])
		return func(id string) bool { return id <= want }, nil
	case types.OpBetween:
		lo, hi := operandString(operands[0]), operandString(operands[1])
		return func(id string) bool { return id >= lo && id <= hi }, nil
	case types.OpIn:
		set, err := operandSet(operands[0])
		if err != nil {
			return nil, err
		}
		return func(id string) bool { return set[id] }, nil
	case types.OpNotIn:
		set, err := operandSet(operands[0])
		if err != nil {
			return nil, err
		}
		return func(id string) bool { return !set[id] }, nil
	case types.OpStartsWith:
		want := operandString(operands[0])
		return func(id string) bool { return strings.HasPrefix(id, want) }, nil
	case types.OpEndsWith:
		want := operandString(operands[0])
		return func(id string) bool { return strings.HasSuffix(id, want) }, nil
	case types.OpNotLike:
		want := operandString(operands[0])
		return func(id string) bool { return !strings.HasPrefix(id, want) }, nil
	case types.OpContains:
		want := operandString(operands[0])
		return func(id string) bool { return strings.Contains(id, want) }, nil
	case types.OpNotContains:
		want := operandString(operands[0])
		return func(id string) bool { return !strings.Contains(id, want) }, nil
	case types.OpRegex:
		re, err := regexp.Compile(operandString(operands[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid regex operand: %w", err)
		}
		return func(id string) bool { return re.MatchString(id) }, nil
	default:
		return nil, fmt.Errorf("operator %s is not executable: %w", clause.Op, types.ErrUnsupportedKeyword)
	}
}

// operandString renders one operand as the string it compares against.
// Identifiers are strings, so operands are expected to be too.
func operandString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// operandSet expands a collection operand for membership operators.
func operandSet(v any) (map[string]bool, error) {
	set := make(map[string]bool)
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			set[s] = true
		}
	case []any:
		for _, e := range t {
			set[operandString(e)] = true
		}
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("membership operand must be a collection, got %T", v)
		}
		for i := 0; i < rv.Len(); i++ {
			set[operandString(rv.Index(i).Interface())] = true
		}
	}
	return set, nil
}
