package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/secrepo/secrepo/kvstore"
)

// loadConfig wires viper: explicit file, or the XDG config dir, plus
// SECREPO_* environment variables. A missing config file is fine; flags
// and environment can carry everything.
func loadConfig(path string) error {
	viper.SetDefault("store.type", "file")
	viper.SetDefault("store.file.root", defaultFileRoot())
	viper.SetDefault("store.vault.mount", "secret")
	viper.SetDefault("store.vault.timeout", "30s")
	viper.SetDefault("log.level", "warn")

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
	}
	viper.SetEnvPrefix("SECREPO")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// openStore builds the configured store backend.
func openStore() (kvstore.Store, error) {
	switch t := viper.GetString("store.type"); t {
	case "file":
		return kvstore.NewFile(viper.GetString("store.file.root"))
	case "vault":
		timeout, err := time.ParseDuration(viper.GetString("store.vault.timeout"))
		if err != nil {
			return nil, fmt.Errorf("invalid vault timeout: %w", err)
		}
		return kvstore.NewVault(kvstore.VaultConfig{
			Address:   viper.GetString("store.vault.address"),
			Token:     viper.GetString("store.vault.token"),
			Namespace: viper.GetString("store.vault.namespace"),
			Mount:     viper.GetString("store.vault.mount"),
			Timeout:   timeout,
		})
	case "memory":
		return kvstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", t)
	}
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "secrepo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "secrepo")
}

func defaultFileRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "secrepo-data"
	}
	return filepath.Join(home, ".local", "share", "secrepo")
}
