package cmd

import (
	"encoding/json"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
	"github.com/spf13/cobra"
)

var (
	stakeValue    uint64
	stakeTip      uint64
	stakeCompound bool
)

var stakeCmd = &cobra.Command{
	Use:   "stake",
	Short: "Bond value into a staking position.",
	RunE:  stakeRun,
}

var unstakeCmd = &cobra.Command{
	Use:   "unstake",
	Short: "Exit value from your staking position.",
	RunE:  unstakeRun,
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Move accrued staking rewards into your spendable balance.",
	RunE:  claimRun,
}

func init() {
	stakeCmd.Flags().Uint64VarP(&stakeValue, "value", "v", 0, "Value to bond.")
	stakeCmd.MarkFlagRequired("value")
	stakeCmd.Flags().Uint64VarP(&stakeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	stakeCmd.Flags().BoolVar(&stakeCompound, "auto-compound", false, "Fold rewards back into the principal as they accrue.")
	rootCmd.AddCommand(stakeCmd)

	unstakeCmd.Flags().Uint64VarP(&stakeValue, "value", "v", 0, "Value to exit from the position.")
	unstakeCmd.MarkFlagRequired("value")
	unstakeCmd.Flags().Uint64VarP(&stakeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	rootCmd.AddCommand(unstakeCmd)

	claimCmd.Flags().Uint64VarP(&stakeTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	rootCmd.AddCommand(claimCmd)
}

func stakeRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(staking.StakeData{AutoCompound: stakeCompound})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindStake, database.StakingAccount, stakeValue, stakeTip, data)
}

func unstakeRun(cmd *cobra.Command, args []string) error {
	return signAndSubmit(database.KindUnstake, database.StakingAccount, stakeValue, stakeTip, nil)
}

func claimRun(cmd *cobra.Command, args []string) error {
	return signAndSubmit(database.KindClaim, database.StakingAccount, 0, stakeTip, nil)
}
