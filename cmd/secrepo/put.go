package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secrepo/secrepo/keypath"
	"github.com/secrepo/secrepo/types"
)

var (
	putData []string
	putJSON string
)

var putCmd = &cobra.Command{
	Use:   "put <keyspace/id>",
	Short: "Write one entry, replacing whatever was there",
	Long: `Write fully replaces the document at the path. Fields present in the
old document but absent from the new one are gone afterwards; there is
no merge.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyspace, id, err := splitPath(args[0])
		if err != nil {
			return err
		}
		path, err := keypath.ToPath(keyspace, id)
		if err != nil {
			return err
		}

		doc := types.Document{}
		if putJSON != "" {
			if err := json.Unmarshal([]byte(putJSON), &doc); err != nil {
				return fmt.Errorf("parsing --json: %w", err)
			}
		}
		for _, pair := range putData {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", pair)
			}
			doc[k] = v
		}
		if len(doc) == 0 {
			return fmt.Errorf("nothing to write: pass --data or --json")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Write(cmd.Context(), path, doc); err != nil {
			return err
		}
		slog.Info("wrote entry", "path", path, "fields", len(doc))
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	putCmd.Flags().StringArrayVar(&putData, "data", nil, "Field as key=value (repeatable)")
	putCmd.Flags().StringVar(&putJSON, "json", "", "Document as a JSON object")
}
