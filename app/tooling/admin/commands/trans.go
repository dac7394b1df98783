package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var transCmd = &cobra.Command{
	Use:   "trans <account>",
	Short: "Print the archived transaction history for an account.",
	Args:  cobra.ExactArgs(1),
	RunE:  transRun,
}

func init() {
	rootCmd.AddCommand(transCmd)
}

func transRun(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/v1/archive/tx/%s", nodeURL, args[0])

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("querying node: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("no archived transactions for this account")
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned status %s", resp.Status)
	}

	var txs []struct {
		Hash        string `json:"hash"`
		BlockNumber uint64 `json:"block_number"`
		Nonce       uint64 `json:"nonce"`
		FromAccount string `json:"from"`
		ToAccount   string `json:"to"`
		Value       uint64 `json:"value"`
		Tip         uint64 `json:"tip"`
		GasPrice    uint64 `json:"gas_price"`
		GasUnits    uint64 `json:"gas_units"`
		Kind        string `json:"kind"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	for _, tx := range txs {
		fee := tx.GasPrice * tx.GasUnits
		fmt.Printf("block %d  %s\n  from: %s\n  to:   %s\n  kind: %s  value: %d  tip: %d  fee: %d\n",
			tx.BlockNumber, tx.Hash, tx.FromAccount, tx.ToAccount, tx.Kind, tx.Value, tx.Tip, fee)
	}

	return nil
}
