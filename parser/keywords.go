package parser

import (
	"sort"

	"github.com/secrepo/secrepo/types"
)

// keyword binds one method-name suffix to an operator and the number of
// call-time arguments it consumes.
type keyword struct {
	text    string
	op      types.Operator
	numArgs int
}

// keywordTable is ordered longest-suffix-first so that "Is" never matches
// inside "IsNotLike" and "Not" never swallows "NotIn". A clause with no
// keyword suffix is an equality test.
var keywordTable = buildKeywordTable()

func buildKeywordTable() []keyword {
	kws := []keyword{
		{"Is", types.OpEquals, 1},
		{"Equals", types.OpEquals, 1},
		{"Not", types.OpNotEquals, 1},
		{"After", types.OpGreaterThan, 1},
		{"GreaterThan", types.OpGreaterThan, 1},
		{"GreaterThanEqual", types.OpGreaterThanEqual, 1},
		{"Before", types.OpLessThan, 1},
		{"LessThan", types.OpLessThan, 1},
		{"LessThanEqual", types.OpLessThanEqual, 1},
		{"Between", types.OpBetween, 2},
		{"In", types.OpIn, 1},
		{"NotIn", types.OpNotIn, 1},
		{"Like", types.OpStartsWith, 1},
		{"StartingWith", types.OpStartsWith, 1},
		{"StartsWith", types.OpStartsWith, 1},
		{"EndingWith", types.OpEndsWith, 1},
		{"EndsWith", types.OpEndsWith, 1},
		{"NotLike", types.OpNotLike, 1},
		{"IsNotLike", types.OpNotLike, 1},
		{"Containing", types.OpContains, 1},
		{"Contains", types.OpContains, 1},
		{"NotContaining", types.OpNotContains, 1},
		{"NotContains", types.OpNotContains, 1},
		{"Regex", types.OpRegex, 1},
	}
	sort.SliceStable(kws, func(i, j int) bool {
		return len(kws[i].text) > len(kws[j].text)
	})
	return kws
}
