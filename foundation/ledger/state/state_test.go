package state_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database/memory"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/mempool/selector"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Accounts used by the tests. Pavel is the authorized sealer.
const (
	signPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signBill  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	signEd    = "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"

	pavelAcct = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	billAcct  = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	edAcct    = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
)

// newState boots a node over the provided storage with the specified
// sealing key. The gas target equals one transfer plus one stake so a
// block carrying exactly those two keeps the base fee where it started.
func newState(storage database.Serializer, sealerHex string) (*state.State, error) {
	sealerKey, err := crypto.HexToECDSA(sealerHex)
	if err != nil {
		return nil, err
	}

	gen := genesis.Genesis{
		Date:             time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC),
		ChainID:          1,
		Name:             "test-chain",
		TransPerBlock:    20,
		BaseFee:          15,
		MinBaseFee:       1,
		GasTarget:        63_000,
		GasLimit:         126_000,
		SealIntervalSecs: 12,
		SealerReward:     700,
		Sealer:           pavelAcct,
		Balances: map[string]uint64{
			pavelAcct: 1_000_000,
			billAcct:  2_000_000,
		},
		Staking: genesis.StakingParams{
			RewardRateBPS:       500,
			ActivationBlocks:    2,
			UnbondingPeriodDays: 30,
			EarlyPenaltyMaxBPS:  1000,
			EarlyPenaltyMinBPS:  500,
			MinStake:            1000,
		},
		Bridge: genesis.BridgeParams{
			FlatFee:         5,
			Confirmations:   2,
			TransferTTLSecs: 3600,
			MinLiquidityAge: 100,
			Chains:          []string{"ethereum"},
			Relayers:        []string{pavelAcct},
		},
		Gov: genesis.GovParams{
			QuorumBPS:          1000,
			VotingPeriodBlocks: 100,
			MaxActiveProposals: 2,
		},
	}

	return state.New(state.Config{
		SealerKey:      sealerKey,
		Host:           "localhost:9080",
		Genesis:        gen,
		Storage:        storage,
		SelectStrategy: selector.StrategyPriority,
		KnownPeers:     peer.NewPeerSet(),
		EvHandler:      func(v string, args ...any) {},
	})
}

// submit signs the transaction with the given key and hands it to the
// node the way the wallet endpoint does.
func submit(st *state.State, hexKey string, tx database.Tx) error {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		return err
	}

	return st.UpsertWalletTransaction(signedTx)
}

// sealTwoBlocks drives the canonical two block flow the tests share: a
// transfer and a stake in block one, a second transfer in block two.
func sealTwoBlocks(st *state.State) ([]database.Block, error) {
	ctx := context.Background()

	stakeData, err := json.Marshal(staking.StakeData{AutoCompound: false})
	if err != nil {
		return nil, err
	}

	txs := []database.Tx{
		{ChainID: 1, Nonce: 1, ToID: edAcct, Value: 1_000, Tip: 10, Kind: database.KindTransfer},
		{ChainID: 1, Nonce: 2, ToID: database.StakingAccount, Value: 50_000, Kind: database.KindStake, Data: stakeData},
	}
	for _, tx := range txs {
		if err := submit(st, signBill, tx); err != nil {
			return nil, err
		}
	}

	block1, err := st.SealNewBlock(ctx)
	if err != nil {
		return nil, err
	}

	tx := database.Tx{ChainID: 1, Nonce: 3, ToID: edAcct, Value: 500, Tip: 5, Kind: database.KindTransfer}
	if err := submit(st, signBill, tx); err != nil {
		return nil, err
	}

	block2, err := st.SealNewBlock(ctx)
	if err != nil {
		return nil, err
	}

	return []database.Block{block1, block2}, nil
}

// =============================================================================

func Test_SealAndBalances(t *testing.T) {
	t.Log("Given the need to seal blocks and settle balances, fees and rewards.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sealing two blocks of wallet transactions.", testID)
		{
			storage, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %v", failed, testID, err)
			}

			st, err := newState(storage, signPavel)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to boot the state: %v", failed, testID, err)
			}

			if !st.IsSealer() {
				t.Fatalf("\t%s\tTest %d:\tShould hold the authorized sealer key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould hold the authorized sealer key.", success, testID)

			if _, err := st.SealNewBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to seal an empty mempool: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to seal an empty mempool.", success, testID)

			blocks, err := sealTwoBlocks(st)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal both blocks: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to seal both blocks.", success, testID)

			block1 := blocks[0]
			if block1.Header.Number != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould seal block number 1, got %d.", failed, testID, block1.Header.Number)
			}
			if block1.Header.BeneficiaryID != database.AccountID(pavelAcct) {
				t.Fatalf("\t%s\tTest %d:\tShould credit the sealer as beneficiary, got %s.", failed, testID, block1.Header.BeneficiaryID)
			}
			if block1.Header.GasUsed != 63_000 {
				t.Fatalf("\t%s\tTest %d:\tShould consume 63000 gas in block 1, got %d.", failed, testID, block1.Header.GasUsed)
			}
			if block1.Header.BaseFee != 15 {
				t.Fatalf("\t%s\tTest %d:\tShould seal block 1 at base fee 15, got %d.", failed, testID, block1.Header.BaseFee)
			}
			t.Logf("\t%s\tTest %d:\tShould seal the expected block 1 header.", success, testID)

			// Block 1 used exactly the gas target so the fee holds.
			if fee := st.BaseFee(); fee != 15 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the base fee at 15 after an at-target block, got %d.", failed, testID, fee)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the base fee at 15 after an at-target block.", success, testID)

			if l := st.QueryMempoolLength(); l != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould drain the mempool, got %d left.", failed, testID, l)
			}
			t.Logf("\t%s\tTest %d:\tShould drain the mempool.", success, testID)

			// Bill paid two transfer values, one bonded stake and three
			// gas fees. Pavel earned the tips plus a reward per block.
			accounts := []struct {
				name    string
				account database.AccountID
				balance uint64
			}{
				{"bill", billAcct, 373_500},
				{"ed", edAcct, 1_500},
				{"pavel", pavelAcct, 1_316_400},
			}
			for _, acct := range accounts {
				account, err := st.QueryAccount(acct.account)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to query %s: %v", failed, testID, acct.name, err)
				}
				if account.Balance != acct.balance {
					t.Logf("\t\tTest %d:\tgot: %d", testID, account.Balance)
					t.Logf("\t\tTest %d:\texp: %d", testID, acct.balance)
					t.Fatalf("\t%s\tTest %d:\tShould settle %s's balance.", failed, testID, acct.name)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould settle every account balance.", success, testID)

			supply := st.RetrieveSupply()
			if supply.Genesis != 3_000_000 || supply.Minted != 1_400 || supply.BurnedFees != 1_260_000 {
				t.Logf("\t\tTest %d:\tgot: genesis %d minted %d burned %d", testID, supply.Genesis, supply.Minted, supply.BurnedFees)
				t.Fatalf("\t%s\tTest %d:\tShould account for minted rewards and burned fees.", failed, testID)
			}
			if total := supply.Total(); total != 1_741_400 {
				t.Fatalf("\t%s\tTest %d:\tShould compute the circulating supply, got %d.", failed, testID, total)
			}
			t.Logf("\t%s\tTest %d:\tShould account for minted rewards and burned fees.", success, testID)

			position, err := st.StakingPosition(billAcct)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find bill's staking position: %v", failed, testID, err)
			}
			if position.Principal != 50_000 {
				t.Fatalf("\t%s\tTest %d:\tShould bond 50000 for bill, got %d.", failed, testID, position.Principal)
			}
			t.Logf("\t%s\tTest %d:\tShould bond the staked value.", success, testID)

			if nonce := st.QueryNextNonce(billAcct); nonce != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould report 4 as bill's next nonce, got %d.", failed, testID, nonce)
			}
			t.Logf("\t%s\tTest %d:\tShould report the next usable nonce.", success, testID)

			latest := st.RetrieveLatestBlock()
			if latest.Header.Number != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould report block 2 as latest, got %d.", failed, testID, latest.Header.Number)
			}
			t.Logf("\t%s\tTest %d:\tShould report block 2 as latest.", success, testID)
		}
	}
}

func Test_GasPriceIgnoresRevertedTips(t *testing.T) {
	t.Log("Given the need to keep reverted spam out of the gas price suggestion.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a block carries one applied and one reverted transaction.", testID)
		{
			storage, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %v", failed, testID, err)
			}
			st, err := newState(storage, signPavel)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to boot the state: %v", failed, testID, err)
			}

			attestData, err := json.Marshal(bridge.AttestData{TransferID: "missing"})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to marshal the attest data: %v", failed, testID, err)
			}

			// Bill is not a relayer, so the attest reverts at apply time
			// while its fee is still collected.
			txs := []database.Tx{
				{ChainID: 1, Nonce: 1, ToID: edAcct, Value: 1_000, Tip: 10, Kind: database.KindTransfer},
				{ChainID: 1, Nonce: 2, ToID: database.BridgeAccount, Tip: 20, Kind: database.KindBridgeAttest, Data: attestData},
			}
			for _, tx := range txs {
				if err := submit(st, signBill, tx); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
				}
			}

			block, err := st.SealNewBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal the block: %v", failed, testID, err)
			}
			if block.Header.GasUsed != 51_000 {
				t.Fatalf("\t%s\tTest %d:\tShould consume gas for both transactions, got %d.", failed, testID, block.Header.GasUsed)
			}
			t.Logf("\t%s\tTest %d:\tShould seal both transactions into the block.", success, testID)

			// Transfer fee 21000*(15+10) plus attest fee 30000*(15+20)
			// leave bill's balance even though the attest reverted.
			account, err := st.QueryAccount(billAcct)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to query bill: %v", failed, testID, err)
			}
			if account.Balance != 424_000 {
				t.Logf("\t\tTest %d:\tgot: %d", testID, account.Balance)
				t.Logf("\t\tTest %d:\texp: %d", testID, 424_000)
				t.Fatalf("\t%s\tTest %d:\tShould charge the fee for the reverted transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould charge the fee for the reverted transaction.", success, testID)

			if transfers := st.BridgeTransfers(); len(transfers) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not record any bridge transfer, got %d.", failed, testID, len(transfers))
			}
			t.Logf("\t%s\tTest %d:\tShould not record any bridge transfer.", success, testID)

			// The suggestion follows the applied transfer's tip of 10, not
			// the reverted attest's tip of 20.
			if price := st.SuggestGasPrice(); price != 25 {
				t.Logf("\t\tTest %d:\tgot: %d", testID, price)
				t.Logf("\t\tTest %d:\texp: %d", testID, 25)
				t.Fatalf("\t%s\tTest %d:\tShould suggest from applied tips only.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould suggest from applied tips only.", success, testID)
		}
	}
}

func Test_Replay(t *testing.T) {
	t.Log("Given the need to rebuild the state from stored blocks at startup.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen booting a second node over the same storage.", testID)
		{
			storage, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %v", failed, testID, err)
			}

			st1, err := newState(storage, signPavel)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to boot the first state: %v", failed, testID, err)
			}

			if _, err := sealTwoBlocks(st1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal the chain: %v", failed, testID, err)
			}

			st2, err := newState(storage, signPavel)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to replay the chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to replay the chain.", success, testID)

			b1 := st1.RetrieveLatestBlock()
			b2 := st2.RetrieveLatestBlock()
			if b1.Header.Number != b2.Header.Number || b1.Hash() != b2.Hash() {
				t.Logf("\t\tTest %d:\tgot: block %d hash %s", testID, b2.Header.Number, b2.Hash())
				t.Logf("\t\tTest %d:\texp: block %d hash %s", testID, b1.Header.Number, b1.Hash())
				t.Fatalf("\t%s\tTest %d:\tShould land on the same latest block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould land on the same latest block.", success, testID)

			for _, accountID := range []database.AccountID{pavelAcct, billAcct, edAcct} {
				a1, err := st1.QueryAccount(accountID)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to query %s on the source: %v", failed, testID, accountID, err)
				}
				a2, err := st2.QueryAccount(accountID)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to query %s on the replay: %v", failed, testID, accountID, err)
				}
				if a1 != a2 {
					t.Logf("\t\tTest %d:\tgot: %+v", testID, a2)
					t.Logf("\t\tTest %d:\texp: %+v", testID, a1)
					t.Fatalf("\t%s\tTest %d:\tShould replay %s to the same account state.", failed, testID, accountID)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould replay every account to the same state.", success, testID)

			if st1.RetrieveSupply() != st2.RetrieveSupply() {
				t.Fatalf("\t%s\tTest %d:\tShould replay to the same supply.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould replay to the same supply.", success, testID)

			if st1.BaseFee() != st2.BaseFee() {
				t.Fatalf("\t%s\tTest %d:\tShould replay to the same base fee, got %d exp %d.", failed, testID, st2.BaseFee(), st1.BaseFee())
			}
			t.Logf("\t%s\tTest %d:\tShould replay to the same base fee.", success, testID)

			p1, err := st1.StakingPosition(billAcct)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find the position on the source: %v", failed, testID, err)
			}
			p2, err := st2.StakingPosition(billAcct)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould find the position on the replay: %v", failed, testID, err)
			}
			if p1.Principal != p2.Principal || p1.BondHeight != p2.BondHeight || !p1.BondedAt.Equal(p2.BondedAt) {
				t.Logf("\t\tTest %d:\tgot: %+v", testID, p2)
				t.Logf("\t\tTest %d:\texp: %+v", testID, p1)
				t.Fatalf("\t%s\tTest %d:\tShould replay the staking position.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould replay the staking position.", success, testID)
		}
	}
}

func Test_ProcessPeerBlock(t *testing.T) {
	t.Log("Given the need to accept sealed blocks from a peer node.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen receiving the sealer's blocks on a non-sealing node.", testID)
		{
			sealerStorage, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %v", failed, testID, err)
			}
			sealer, err := newState(sealerStorage, signPavel)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to boot the sealer: %v", failed, testID, err)
			}

			observerStorage, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %v", failed, testID, err)
			}
			observer, err := newState(observerStorage, signEd)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to boot the observer: %v", failed, testID, err)
			}

			if observer.IsSealer() {
				t.Fatalf("\t%s\tTest %d:\tShould not consider the observer a sealer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not consider the observer a sealer.", success, testID)

			if _, err := observer.SealNewBlock(context.Background()); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to seal without the sealer key.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to seal without the sealer key.", success, testID)

			blocks, err := sealTwoBlocks(sealer)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal the source chain: %v", failed, testID, err)
			}

			// Receiving block 2 before block 1 looks like a fork.
			if err := observer.ProcessPeerBlock(blocks[1]); !errors.Is(err, database.ErrChainForked) {
				t.Fatalf("\t%s\tTest %d:\tShould flag a two block jump as a fork: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould flag a two block jump as a fork.", success, testID)

			for _, block := range blocks {
				if err := observer.ProcessPeerBlock(block); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould accept block %d: %v", failed, testID, block.Header.Number, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould accept both blocks in order.", success, testID)

			if err := observer.ProcessPeerBlock(blocks[1]); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a block it already holds.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a block it already holds.", success, testID)

			for _, accountID := range []database.AccountID{pavelAcct, billAcct, edAcct} {
				sa, err := sealer.QueryAccount(accountID)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to query %s on the sealer: %v", failed, testID, accountID, err)
				}
				oa, err := observer.QueryAccount(accountID)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to query %s on the observer: %v", failed, testID, accountID, err)
				}
				if sa != oa {
					t.Logf("\t\tTest %d:\tgot: %+v", testID, oa)
					t.Logf("\t\tTest %d:\texp: %+v", testID, sa)
					t.Fatalf("\t%s\tTest %d:\tShould agree on %s after processing.", failed, testID, accountID)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould agree on every account after processing.", success, testID)
		}
	}
}

func Test_SubmitRejections(t *testing.T) {
	t.Log("Given the need to reject bad wallet transactions before they cost a fee.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen submitting transactions that cannot apply.", testID)
		{
			storage, err := memory.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to create storage: %v", failed, testID, err)
			}
			st, err := newState(storage, signPavel)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to boot the state: %v", failed, testID, err)
			}

			tx := database.Tx{ChainID: 9, Nonce: 1, ToID: edAcct, Value: 100, Kind: database.KindTransfer}
			if err := submit(st, signBill, tx); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a transaction for another chain.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a transaction for another chain.", success, testID)

			tx = database.Tx{ChainID: 1, Nonce: 0, ToID: edAcct, Value: 100, Kind: database.KindTransfer}
			if err := submit(st, signBill, tx); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould reject a nonce the account already used.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject a nonce the account already used.", success, testID)

			tx = database.Tx{ChainID: 1, Nonce: 1, ToID: edAcct, Value: 100, Kind: database.KindTransfer}
			if err := submit(st, signBill, tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the corrected transaction: %v", failed, testID, err)
			}
			if l := st.QueryMempoolLength(); l != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould hold one transaction in the mempool, got %d.", failed, testID, l)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the corrected transaction.", success, testID)
		}
	}
}
