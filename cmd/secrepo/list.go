package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/secrepo/secrepo/types"
)

var listCmd = &cobra.Command{
	Use:   "list <keyspace>",
	Short: "List the identifiers under a keyspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		keys, err := store.List(cmd.Context(), args[0])
		if errors.Is(err, types.ErrPathNotFound) {
			keys = nil
		} else if err != nil {
			return err
		}
		return render(keys)
	},
}
