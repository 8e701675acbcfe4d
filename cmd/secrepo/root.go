package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "secrepo",
	Short: "secrepo CLI - path-based secret store operations",
	Long: `secrepo operates on a hierarchical secret store that only supports
path-based read/write/list/delete. Entries live under a keyspace, one
document per identifier.

Examples:
  # Write and read back an entry
  secrepo put credentials/heisenberg --data username=walter --data password=gray-matter
  secrepo get credentials/heisenberg

  # List the identifiers under a keyspace
  secrepo list credentials

  # Run a derived query against a keyspace
  secrepo query credentials findByIdStartsWith heis`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(configPath); err != nil {
			return err
		}
		return initLogging(viper.GetString("log.level"))
	},
}

var (
	configPath string
	format     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/secrepo/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "json", "Output format: json|yaml")
	rootCmd.PersistentFlags().String("store", "", "Store backend: file|vault|memory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")

	cobra.CheckErr(viper.BindPFlag("store.type", rootCmd.PersistentFlags().Lookup("store")))
	cobra.CheckErr(viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(queryCmd)
}

// splitPath cuts a full entry path into keyspace and identifier.
func splitPath(path string) (keyspace, id string, err error) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return "", "", fmt.Errorf("expected keyspace/id, got %q", path)
	}
	return path[:idx], path[idx+1:], nil
}
