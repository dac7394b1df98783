package cmd

import (
	"encoding/json"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
	"github.com/spf13/cobra"
)

var (
	proposeParam string
	proposeValue uint64
	proposeDesc  string
	voteProposal uint64
	voteAgainst  bool
	govTip       uint64
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose a change to a governable chain parameter.",
	RunE:  proposeRun,
}

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Vote on an open proposal with your bonded stake.",
	RunE:  voteRun,
}

func init() {
	proposeCmd.Flags().StringVar(&proposeParam, "param", "", "Parameter the proposal adjusts, for example fee.gas_target.")
	proposeCmd.MarkFlagRequired("param")
	proposeCmd.Flags().Uint64VarP(&proposeValue, "value", "v", 0, "New value for the parameter.")
	proposeCmd.MarkFlagRequired("value")
	proposeCmd.Flags().StringVar(&proposeDesc, "description", "", "Human readable reason for the change.")
	proposeCmd.Flags().Uint64VarP(&govTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	rootCmd.AddCommand(proposeCmd)

	voteCmd.Flags().Uint64Var(&voteProposal, "proposal", 0, "Id of the proposal to vote on.")
	voteCmd.MarkFlagRequired("proposal")
	voteCmd.Flags().BoolVar(&voteAgainst, "against", false, "Vote against the proposal instead of for it.")
	voteCmd.Flags().Uint64VarP(&govTip, "tip", "c", 0, "Tip per unit of gas, offered for priority.")
	rootCmd.AddCommand(voteCmd)
}

func proposeRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(gov.ProposeData{
		Param:       proposeParam,
		Value:       proposeValue,
		Description: proposeDesc,
	})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindPropose, database.GovAccount, 0, govTip, data)
}

func voteRun(cmd *cobra.Command, args []string) error {
	data, err := json.Marshal(gov.VoteData{
		ProposalID: voteProposal,
		Support:    !voteAgainst,
	})
	if err != nil {
		return err
	}

	return signAndSubmit(database.KindVote, database.GovAccount, 0, govTip, data)
}
