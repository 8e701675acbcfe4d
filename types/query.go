package types

// Verb identifies what a derived query does with its matches.
type Verb int

const (
	VerbFind Verb = iota
	VerbCount
	VerbExists
	VerbDelete
)

func (v Verb) String() string {
	switch v {
	case VerbFind:
		return "find"
	case VerbCount:
		return "count"
	case VerbExists:
		return "exists"
	case VerbDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Operator is a predicate operator over the identifier property.
type Operator int

const (
	OpEquals Operator = iota
	OpNotEquals
	OpGreaterThan
	OpGreaterThanEqual
	OpLessThan
	OpLessThanEqual
	OpBetween
	OpIn
	OpNotIn
	OpStartsWith
	OpEndsWith
	OpNotLike
	OpContains
	OpNotContains
	OpRegex
)

func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "equals"
	case OpNotEquals:
		return "not-equals"
	case OpGreaterThan:
		return "greater-than"
	case OpGreaterThanEqual:
		return "greater-or-equal"
	case OpLessThan:
		return "less-than"
	case OpLessThanEqual:
		return "less-or-equal"
	case OpBetween:
		return "between"
	case OpIn:
		return "in"
	case OpNotIn:
		return "not-in"
	case OpStartsWith:
		return "starts-with"
	case OpEndsWith:
		return "ends-with"
	case OpNotLike:
		return "not-like"
	case OpContains:
		return "contains"
	case OpNotContains:
		return "not-contains"
	case OpRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// Combinator joins two adjacent clauses. Combinators apply strictly
// left-to-right in the order written; there is no precedence grouping.
type Combinator int

const (
	CombinatorAnd Combinator = iota
	CombinatorOr
)

// Clause is one predicate over the identifier property. NumArgs is the
// number of call-time operands the operator consumes: 1 for most, 2 for
// between, 1 collection argument for in/not-in.
type Clause struct {
	Op      Operator
	NumArgs int
}

// QueryDescriptor is the immutable parsed form of a derived query method.
// It is produced once per method name, cached, and shared by concurrent
// callers; nothing mutates it after parsing.
type QueryDescriptor struct {
	// Source is the method name the descriptor was parsed from.
	Source string
	Verb   Verb
	// Field is the entity property every clause targets. Parsing
	// guarantees it equals the identifier property.
	Field       string
	Clauses     []Clause
	Combinators []Combinator // len(Clauses)-1 entries
	Sort        *Sort        // static OrderBy suffix, nil if absent
	Limit       int          // Top/First N, 0 if absent
}

// ArgCount is the number of call-time operands the descriptor consumes.
func (d *QueryDescriptor) ArgCount() int {
	n := 0
	for _, c := range d.Clauses {
		n += c.NumArgs
	}
	return n
}
