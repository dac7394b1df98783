package commands

import (
	"fmt"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/keystore"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/spf13/cobra"
)

var (
	genesisOut     string
	genesisChainID uint16
	genesisBalance uint64
	genesisSealer  string
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Write a starter genesis file seeded from the keystore.",
	RunE:  genesisRun,
}

func init() {
	genesisCmd.Flags().StringVarP(&genesisOut, "out", "o", "zledger/genesis.json", "Path to write the genesis file to.")
	genesisCmd.Flags().Uint16Var(&genesisChainID, "chain-id", 1, "Chain id for the new network.")
	genesisCmd.Flags().Uint64Var(&genesisBalance, "balance", 1_000_000, "Starting balance for every keystore account.")
	genesisCmd.Flags().StringVar(&genesisSealer, "sealer", "sealer", "Keystore name of the account authorized to seal.")
	rootCmd.AddCommand(genesisCmd)
}

func genesisRun(cmd *cobra.Command, args []string) error {
	ks, err := keystore.New(keystorePath)
	if err != nil {
		return fmt.Errorf("opening keystore: %w", err)
	}

	accounts := ks.Accounts()
	if len(accounts) == 0 {
		return fmt.Errorf("keystore %q has no accounts, run the keys command first", keystorePath)
	}

	balances := make(map[string]uint64, len(accounts))
	for _, accountID := range accounts {
		balances[string(accountID)] = genesisBalance
	}

	sealerKey, err := ks.PrivateKey(genesisSealer)
	if err != nil {
		return fmt.Errorf("sealer account %q not in keystore: %w", genesisSealer, err)
	}
	sealerID := database.PublicKeyToAccountID(sealerKey.PublicKey)

	gen := genesis.Genesis{
		Date:             time.Now().UTC(),
		ChainID:          genesisChainID,
		Name:             "kaldrix mainnet",
		TransPerBlock:    20,
		BaseFee:          15,
		MinBaseFee:       1,
		GasTarget:        210_000,
		GasLimit:         420_000,
		SealIntervalSecs: 12,
		SealerReward:     700,
		Sealer:           string(sealerID),
		Balances:         balances,
		Staking: genesis.StakingParams{
			RewardRateBPS:       500,
			ActivationBlocks:    2,
			UnbondingPeriodDays: 30,
			EarlyPenaltyMaxBPS:  1000,
			EarlyPenaltyMinBPS:  500,
			MinStake:            1_000,
		},
		Bridge: genesis.BridgeParams{
			FlatFee:         5,
			Confirmations:   1,
			TransferTTLSecs: 3600,
			MinLiquidityAge: 100,
			Chains:          []string{"ethereum", "polygon"},
			Relayers:        []string{string(sealerID)},
		},
		Gov: genesis.GovParams{
			QuorumBPS:          1000,
			VotingPeriodBlocks: 100,
			MaxActiveProposals: 5,
		},
	}

	if err := gen.Save(genesisOut); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	fmt.Printf("genesis written to %s with %d funded accounts\n", genesisOut, len(balances))

	return nil
}
