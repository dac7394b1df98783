package cmd

import (
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/spf13/cobra"
)

var (
	sendTo    string
	sendValue uint64
	sendTip   uint64
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send value to another account.",
	RunE:  sendRun,
}

func init() {
	sendCmd.Flags().StringVarP(&sendTo, "to", "t", "", "Account to send the value to.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.Flags().Uint64VarP(&sendValue, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&sendTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	rootCmd.AddCommand(sendCmd)
}

func sendRun(cmd *cobra.Command, args []string) error {
	toID, err := database.ToAccountID(sendTo)
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindTransfer, toID, sendValue, sendTip, nil)
}
