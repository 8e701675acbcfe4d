package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/secrepo/secrepo/types"
)

var getCmd = &cobra.Command{
	Use:   "get <keyspace/id>",
	Short: "Read one entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		doc, err := store.Read(cmd.Context(), args[0])
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("no entry at %s", args[0])
		}
		if err != nil {
			return err
		}
		slog.Debug("read entry", "path", args[0], "fields", len(doc))
		return render(doc)
	},
}
