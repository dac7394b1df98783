// Package commands implements the admin subcommands for operating a node.
package commands

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	keystorePath string
	nodeURL      string
)

const keyExtension = ".ecdsa"

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative tooling for a kaldrix node",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&keystorePath, "keystore", "k", "zledger/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&nodeURL, "url", "u", "http://localhost:8080", "Url of the node.")
}

// Execute runs the selected subcommand.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func keyPath(name string) string {
	if !strings.HasSuffix(name, keyExtension) {
		name += keyExtension
	}

	return filepath.Join(keystorePath, name)
}
