// Package parser turns derived query method names into query descriptors.
// A name like "findTop10ByIdStartsWithOrderByLoginDesc" decomposes into a
// verb, an optional result limit, predicate clauses over the identifier
// property, AND/OR combinators applied left-to-right, and an optional sort.
//
// Parsing is deterministic text decomposition; it happens once per method
// name and the resulting descriptor is immutable. Because the backing
// store can only list child keys and fetch by full path, predicates on
// anything but the identifier property are rejected at parse time.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/secrepo/secrepo/types"
)

// verbPrefixes maps recognized method prefixes to their verbs, checked
// longest-first.
var verbPrefixes = []struct {
	text string
	verb types.Verb
}{
	{"exists", types.VerbExists},
	{"delete", types.VerbDelete},
	{"count", types.VerbCount},
	{"query", types.VerbFind},
	{"find", types.VerbFind},
	{"read", types.VerbFind},
	{"get", types.VerbFind},
}

// Parse decomposes a derived query method name into a descriptor.
// idProperty is the entity's identifier field name as it appears in
// method names (for example "Id"); every predicate clause must target it.
func Parse(method, idProperty string) (*types.QueryDescriptor, error) {
	if method == "" {
		return nil, fmt.Errorf("empty method name: %w", types.ErrUnsupportedKeyword)
	}

	rest := method
	desc := &types.QueryDescriptor{Source: method, Field: exportedName(idProperty)}

	matched := false
	for _, vp := range verbPrefixes {
		if strings.HasPrefix(rest, vp.text) {
			desc.Verb = vp.verb
			rest = rest[len(vp.text):]
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("method %q has no recognized prefix: %w", method, types.ErrUnsupportedKeyword)
	}

	rest, limit, err := stripLimit(rest)
	if err != nil {
		return nil, fmt.Errorf("method %q: %w", method, err)
	}
	desc.Limit = limit
	rest = strings.TrimPrefix(rest, "All")

	if !strings.HasPrefix(rest, "By") {
		return nil, fmt.Errorf("method %q has no By clause: %w", method, types.ErrUnsupportedKeyword)
	}
	rest = rest[len("By"):]

	rest, desc.Sort = stripOrderBy(rest)

	clauses, combinators, err := splitClauses(rest)
	if err != nil {
		return nil, fmt.Errorf("method %q: %w", method, err)
	}
	for _, raw := range clauses {
		clause, err := parseClause(raw, desc.Field)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", method, err)
		}
		desc.Clauses = append(desc.Clauses, clause)
	}
	desc.Combinators = combinators
	return desc, nil
}

// stripLimit consumes an optional First/Top prefix with an optional count.
// Bare First/Top means a limit of one.
func stripLimit(s string) (string, int, error) {
	var kw string
	switch {
	case strings.HasPrefix(s, "First"):
		kw = "First"
	case strings.HasPrefix(s, "Top"):
		kw = "Top"
	default:
		return s, 0, nil
	}
	s = s[len(kw):]
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return s, 1, nil
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("invalid %s count %q: %w", kw, s[:i], types.ErrUnsupportedKeyword)
	}
	return s[i:], n, nil
}

// stripOrderBy extracts a trailing OrderBy<Field>(Asc|Desc) suffix before
// clause splitting. Direction defaults to ascending.
func stripOrderBy(s string) (string, *types.Sort) {
	idx := strings.LastIndex(s, "OrderBy")
	if idx < 0 {
		return s, nil
	}
	field := s[idx+len("OrderBy"):]
	if field == "" {
		return s, nil
	}
	sort := &types.Sort{}
	switch {
	case strings.HasSuffix(field, "Desc"):
		field = strings.TrimSuffix(field, "Desc")
		sort.Descending = true
	case strings.HasSuffix(field, "Asc"):
		field = strings.TrimSuffix(field, "Asc")
	}
	if field == "" {
		return s, nil
	}
	sort.Field = field
	return s[:idx], sort
}

// splitClauses cuts the predicate part on And/Or tokens at camel-case
// boundaries, recording the combinator sequence in written order.
func splitClauses(s string) ([]string, []types.Combinator, error) {
	if s == "" {
		return nil, nil, fmt.Errorf("empty predicate: %w", types.ErrUnsupportedKeyword)
	}
	var clauses []string
	var combinators []types.Combinator
	start := 0
	i := 0
	for i < len(s) {
		var token string
		var comb types.Combinator
		switch {
		case strings.HasPrefix(s[i:], "And"):
			token, comb = "And", types.CombinatorAnd
		case strings.HasPrefix(s[i:], "Or"):
			token, comb = "Or", types.CombinatorOr
		default:
			i++
			continue
		}
		next := i + len(token)
		// A combinator must sit between two clauses: something before it
		// and an uppercase clause start after it.
		if i == start || next >= len(s) || !unicode.IsUpper(rune(s[next])) {
			i++
			continue
		}
		clauses = append(clauses, s[start:i])
		combinators = append(combinators, comb)
		start = next
		i = next
	}
	clauses = append(clauses, s[start:])
	for _, c := range clauses {
		if c == "" {
			return nil, nil, fmt.Errorf("dangling combinator in %q: %w", s, types.ErrUnsupportedKeyword)
		}
	}
	return clauses, combinators, nil
}

// parseClause resolves one clause against the keyword table. The clause
// must target the identifier property; that is the only predicate a
// path-based store can evaluate without fetching documents.
func parseClause(clause, idProperty string) (types.Clause, error) {
	// The property prefix is compared ignoring case so the Go initialism
	// convention ("ID") lines up with the method-name form ("Id").
	if strings.EqualFold(clause, idProperty) {
		return types.Clause{Op: types.OpEquals, NumArgs: 1}, nil
	}
	if len(clause) > len(idProperty) && strings.EqualFold(clause[:len(idProperty)], idProperty) {
		suffix := clause[len(idProperty):]
		for _, kw := range keywordTable {
			if suffix == kw.text {
				return types.Clause{Op: kw.op, NumArgs: kw.numArgs}, nil
			}
		}
		// The identifier is a prefix but the remainder is not a keyword.
		// It could be an unknown keyword or a longer property name; the
		// keyword table is the authority, so report the keyword.
		return types.Clause{}, fmt.Errorf("unknown keyword %q in clause %q: %w", suffix, clause, types.ErrUnsupportedKeyword)
	}
	// Some other property: strip the longest keyword suffix to name it.
	field := clause
	for _, kw := range keywordTable {
		if strings.HasSuffix(clause, kw.text) && len(clause) > len(kw.text) {
			field = clause[:len(clause)-len(kw.text)]
			break
		}
	}
	return types.Clause{}, fmt.Errorf("predicate on %q, only %q is supported: %w", field, idProperty, types.ErrUnsupportedPredicate)
}

// exportedName returns the property name as it appears inside a method
// name, with its first letter upper-cased.
func exportedName(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
