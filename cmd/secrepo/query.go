package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/secrepo/secrepo/parser"
	"github.com/secrepo/secrepo/query"
	"github.com/secrepo/secrepo/types"
)

var queryCmd = &cobra.Command{
	Use:   "query <keyspace> <method> [arg...]",
	Short: "Run a derived query against a keyspace",
	Long: `Parses a derived query method name and executes it against the raw
identifiers under a keyspace. Predicates can only target the identifier;
the store has no way to filter on anything else without fetching.

Examples:
  secrepo query credentials findByIdStartsWith heis
  secrepo query credentials countByIdBetween a m
  secrepo query credentials deleteByIdEndsWith -tmp`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyspace, method := args[0], args[1]

		qd, err := parser.Parse(method, "Id")
		if err != nil {
			return err
		}
		operands := make([]any, len(args)-2)
		for i, a := range args[2:] {
			operands[i] = a
		}
		match, err := query.BindPredicate(qd, operands)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		keys, err := store.List(cmd.Context(), keyspace)
		if errors.Is(err, types.ErrPathNotFound) {
			keys = nil
		} else if err != nil {
			return err
		}

		var matched []string
		for _, key := range keys {
			ok, err := match(key)
			if err != nil {
				return err
			}
			if ok {
				matched = append(matched, key)
			}
		}
		slog.Debug("query evaluated", "method", method, "keyspace", keyspace, "matches", len(matched))

		switch qd.Verb {
		case types.VerbCount:
			return render(len(matched))
		case types.VerbExists:
			return render(len(matched) > 0)
		case types.VerbDelete:
			for _, id := range matched {
				if err := store.Delete(cmd.Context(), keyspace+"/"+id); err != nil {
					return err
				}
			}
			fmt.Printf("deleted %d entries\n", len(matched))
			return nil
		default:
			matched = applyLimit(matched, qd.Limit)
			out := make([]types.Document, 0, len(matched))
			for _, id := range matched {
				doc, err := store.Read(cmd.Context(), keyspace+"/"+id)
				if errors.Is(err, types.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				out = append(out, doc)
			}
			return render(out)
		}
	},
}

func applyLimit(ids []string, limit int) []string {
	if limit > 0 && limit < len(ids) {
		return ids[:limit]
	}
	return ids
}
