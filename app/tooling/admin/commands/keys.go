package commands

import (
	"fmt"

	"github.com/ancourn/kaldr1-sub002/foundation/keystore"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys <name>",
	Short: "Generate a new private key and store it in the keystore.",
	Args:  cobra.ExactArgs(1),
	RunE:  keysRun,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func keysRun(cmd *cobra.Command, args []string) error {
	ks, err := keystore.New(keystorePath)
	if err != nil {
		return fmt.Errorf("opening keystore: %w", err)
	}

	accountID, err := ks.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating key %q: %w", args[0], err)
	}

	fmt.Printf("account %s stored at %s\n", accountID, keyPath(args[0]))

	return nil
}
