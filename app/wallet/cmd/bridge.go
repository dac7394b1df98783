package cmd

import (
	"encoding/json"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/spf13/cobra"
)

var (
	bridgeChain      string
	bridgeRemoteAddr string
	bridgeValue      uint64
	bridgeTip        uint64
	bridgeShares     uint64
	bridgeTransferID string
	bridgeBurnTxHash string
	bridgeReleaseTo  string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Move value across the bridge or provide pool liquidity.",
}

var bridgeOutCmd = &cobra.Command{
	Use:   "out",
	Short: "Lock value for minting on a remote chain.",
	RunE:  bridgeOutRun,
}

var bridgeAttestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Attest an outbound transfer was minted on the remote chain.",
	RunE:  bridgeAttestRun,
}

var bridgeInCmd = &cobra.Command{
	Use:   "in",
	Short: "Attest a remote burn and release value to a local account.",
	RunE:  bridgeInRun,
}

var poolAddCmd = &cobra.Command{
	Use:   "pool-add",
	Short: "Add liquidity to a remote chain's pool.",
	RunE:  poolAddRun,
}

var poolRemoveCmd = &cobra.Command{
	Use:   "pool-remove",
	Short: "Remove liquidity shares from a remote chain's pool.",
	RunE:  poolRemoveRun,
}

func init() {
	bridgeOutCmd.Flags().StringVar(&bridgeChain, "chain", "", "Remote chain to mint on.")
	bridgeOutCmd.MarkFlagRequired("chain")
	bridgeOutCmd.Flags().StringVar(&bridgeRemoteAddr, "remote-addr", "", "Address on the remote chain to mint to.")
	bridgeOutCmd.MarkFlagRequired("remote-addr")
	bridgeOutCmd.Flags().Uint64VarP(&bridgeValue, "value", "v", 0, "Value to lock.")
	bridgeOutCmd.MarkFlagRequired("value")
	bridgeOutCmd.Flags().Uint64VarP(&bridgeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	bridgeCmd.AddCommand(bridgeOutCmd)

	bridgeAttestCmd.Flags().StringVar(&bridgeTransferID, "transfer", "", "Id of the outbound transfer to attest.")
	bridgeAttestCmd.MarkFlagRequired("transfer")
	bridgeAttestCmd.Flags().Uint64VarP(&bridgeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	bridgeCmd.AddCommand(bridgeAttestCmd)

	bridgeInCmd.Flags().StringVar(&bridgeChain, "chain", "", "Remote chain the burn happened on.")
	bridgeInCmd.MarkFlagRequired("chain")
	bridgeInCmd.Flags().StringVar(&bridgeBurnTxHash, "burn-tx", "", "Hash of the burn transaction on the remote chain.")
	bridgeInCmd.MarkFlagRequired("burn-tx")
	bridgeInCmd.Flags().StringVar(&bridgeReleaseTo, "to", "", "Local account to release the value to.")
	bridgeInCmd.MarkFlagRequired("to")
	bridgeInCmd.Flags().Uint64VarP(&bridgeValue, "amount", "v", 0, "Amount burned on the remote chain.")
	bridgeInCmd.MarkFlagRequired("amount")
	bridgeInCmd.Flags().Uint64VarP(&bridgeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	bridgeCmd.AddCommand(bridgeInCmd)

	poolAddCmd.Flags().StringVar(&bridgeChain, "chain", "", "Remote chain whose pool receives the liquidity.")
	poolAddCmd.MarkFlagRequired("chain")
	poolAddCmd.Flags().Uint64VarP(&bridgeValue, "value", "v", 0, "Value to add to the pool.")
	poolAddCmd.MarkFlagRequired("value")
	poolAddCmd.Flags().Uint64VarP(&bridgeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	bridgeCmd.AddCommand(poolAddCmd)

	poolRemoveCmd.Flags().StringVar(&bridgeChain, "chain", "", "Remote chain whose pool the shares are in.")
	poolRemoveCmd.MarkFlagRequired("chain")
	poolRemoveCmd.Flags().Uint64Var(&bridgeShares, "shares", 0, "Pool shares to redeem.")
	poolRemoveCmd.MarkFlagRequired("shares")
	poolRemoveCmd.Flags().Uint64VarP(&bridgeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	bridgeCmd.AddCommand(poolRemoveCmd)

	rootCmd.AddCommand(bridgeCmd)
}

func bridgeOutRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(bridge.LockData{Chain: bridgeChain, RemoteAddr: bridgeRemoteAddr})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindBridgeOut, database.BridgeAccount, bridgeValue, bridgeTip, data)
}

func bridgeAttestRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(bridge.AttestData{TransferID: bridgeTransferID})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindBridgeAttest, database.BridgeAccount, 0, bridgeTip, data)
}

func bridgeInRun(cmd *cobra.Command, args []string) error {
	toID, err := database.ToAccountID(bridgeReleaseTo)
	if err != nil {
		return err
	}

	data, err := json.Marshal(bridge.ReleaseData{
		Chain:      bridgeChain,
		BurnTxHash: bridgeBurnTxHash,
		To:         toID,
		Amount:     bridgeValue,
	})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindBridgeIn, database.BridgeAccount, 0, bridgeTip, data)
}

func poolAddRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(bridge.PoolAddData{Chain: bridgeChain})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindPoolAdd, database.BridgeAccount, bridgeValue, bridgeTip, data)
}

func poolRemoveRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(bridge.PoolRemoveData{Chain: bridgeChain, Shares: bridgeShares})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindPoolRemove, database.BridgeAccount, 0, bridgeTip, data)
}
