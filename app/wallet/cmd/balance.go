package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance of the account this wallet controls.",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	accountID, _, err := loadAccountID()
	if err != nil {
		return err
	}

	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/list/%s", url, accountID))
	if err != nil {
		return fmt.Errorf("querying node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned status %s", resp.Status)
	}

	var result struct {
		Accounts []struct {
			Balance uint64 `json:"balance"`
			Bonded  uint64 `json:"bonded"`
			Nonce   uint64 `json:"nonce"`
		} `json:"accounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Accounts) == 0 {
		return fmt.Errorf("account %s is not known to the node", accountID)
	}

	act := result.Accounts[0]
	fmt.Printf("account: %s\nbalance: %d\nbonded:  %d\nnonce:   %d\n", accountID, act.Balance, act.Bonded, act.Nonce)

	return nil
}
