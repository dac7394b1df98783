package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts [account]",
	Short: "Print the balances the node is tracking.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  accountsRun,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func accountsRun(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/v1/accounts/list", nodeURL)
	if len(args) == 1 {
		url = fmt.Sprintf("%s/v1/accounts/list/%s", nodeURL, args[0])
	}

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("querying node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned status %s", resp.Status)
	}

	var result struct {
		LatestBlock string `json:"latest_block"`
		Uncommitted int    `json:"uncommitted"`
		Accounts    []struct {
			Account string `json:"account"`
			Name    string `json:"name"`
			Balance uint64 `json:"balance"`
			Bonded  uint64 `json:"bonded"`
			Nonce   uint64 `json:"nonce"`
		} `json:"accounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Printf("latest block: %s\n", result.LatestBlock)
	fmt.Printf("uncommitted transactions: %d\n\n", result.Uncommitted)

	for _, act := range result.Accounts {
		name := act.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%s  name: %s  balance: %d  bonded: %d  nonce: %d\n", act.Account, name, act.Balance, act.Bonded, act.Nonce)
	}

	return nil
}
