package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account id this wallet controls.",
	RunE:  accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) error {
	accountID, _, err := loadAccountID()
	if err != nil {
		return err
	}

	fmt.Println(accountID)

	return nil
}
