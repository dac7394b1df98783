package database_test

import (
	"strings"
	"testing"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// The account derived from the fixed signing key below.
const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	fromAcct = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
	toAcct   = "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"
	bnfcAcct = "0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8"
	transGas = 21_000
)

// =============================================================================

func Test_Transactions(t *testing.T) {
	type table struct {
		name     string
		baseFee  uint64
		balances map[string]uint64
		final    map[database.AccountID]uint64
		burned   uint64
		txs      []database.Tx
	}

	tt := []table{
		{
			name:    "transfers",
			baseFee: 10,
			balances: map[string]uint64{
				fromAcct: 10_000_000,
				toAcct:   0,
				bnfcAcct: 0,
			},
			final: map[database.AccountID]uint64{
				fromAcct: 7_870_000,
				toAcct:   1_500_000,
				bnfcAcct: 210_000,
			},
			burned: 2 * 10 * transGas,
			txs: []database.Tx{
				{ChainID: 1, Nonce: 1, ToID: toAcct, Value: 1_000_000, Tip: 5, Kind: database.KindTransfer},
				{ChainID: 1, Nonce: 2, ToID: toAcct, Value: 500_000, Tip: 5, Kind: database.KindTransfer},
			},
		},
	}

	t.Log("Given the need to validate transaction fee and balance mechanics.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transactions.", testID)
			{
				f := func(t *testing.T) {
					db, err := database.New(genesis.Genesis{ChainID: 1, Balances: tst.balances}, nil, nopEv)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to open database: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to open database.", success, testID)

					block := newBlock(tst.baseFee)

					for _, tx := range tst.txs {
						blockTx, err := sign(tx, tst.baseFee)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to sign transaction: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to sign transaction.", success, testID)

						if err := db.ApplyTransaction(block, blockTx); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to apply transaction: %v", failed, testID, err)
						}
						t.Logf("\t%s\tTest %d:\tShould be able to apply transaction.", success, testID)
					}

					for accountID, exp := range tst.final {
						account, err := db.Query(accountID)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould have account %s in database.", failed, testID, accountID)
						}

						if account.Balance != exp {
							t.Errorf("\t%s\tTest %d:\tShould have correct balance for %s.", failed, testID, accountID)
							t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, account.Balance)
							t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, exp)
						} else {
							t.Logf("\t%s\tTest %d:\tShould have correct balance for %s.", success, testID, accountID)
						}
					}

					supply := db.Supply()
					if supply.BurnedFees != tst.burned {
						t.Errorf("\t%s\tTest %d:\tShould burn the base fee portion of every transaction.", failed, testID)
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, supply.BurnedFees)
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tst.burned)
					} else {
						t.Logf("\t%s\tTest %d:\tShould burn the base fee portion of every transaction.", success, testID)
					}

					exp := supply.Genesis - tst.burned
					if supply.Total() != exp {
						t.Errorf("\t%s\tTest %d:\tShould shrink the supply by exactly the burned fees.", failed, testID)
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, supply.Total())
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, exp)
					} else {
						t.Logf("\t%s\tTest %d:\tShould shrink the supply by exactly the burned fees.", success, testID)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_TransactionRejections(t *testing.T) {
	t.Log("Given the need to reject invalid transactions while keeping the fee.")
	{
		t.Logf("\tTest 0:\tWhen handling nonces, chain ids and balances.")
		{
			balances := map[string]uint64{fromAcct: 10_000_000}

			db, err := database.New(genesis.Genesis{ChainID: 1, Balances: balances}, nil, nopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open database.", success)

			const baseFee = 10
			block := newBlock(baseFee)

			// Establish nonce 2 for the account.
			blockTx, err := sign(database.Tx{ChainID: 1, Nonce: 2, ToID: toAcct, Value: 100, Kind: database.KindTransfer}, baseFee)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}
			if err := db.ApplyTransaction(block, blockTx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould accept the first transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould accept the first transaction.", success)

			before, _ := db.Query(fromAcct)

			// A stale nonce must be rejected, but the fee stays charged.
			blockTx, err = sign(database.Tx{ChainID: 1, Nonce: 1, ToID: toAcct, Value: 100, Kind: database.KindTransfer}, baseFee)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}
			if err := db.ApplyTransaction(block, blockTx); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject a transaction with a stale nonce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a transaction with a stale nonce.", success)

			after, _ := db.Query(fromAcct)
			fee := uint64(baseFee * transGas)
			if before.Balance-after.Balance != fee {
				t.Logf("\t%s\tTest 0:\tgot: %d", failed, before.Balance-after.Balance)
				t.Logf("\t%s\tTest 0:\texp: %d", failed, fee)
				t.Fatalf("\t%s\tTest 0:\tShould still charge the gas fee on a rejected transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould still charge the gas fee on a rejected transaction.", success)

			if after.Nonce != before.Nonce {
				t.Fatalf("\t%s\tTest 0:\tShould not advance the nonce on a rejected transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not advance the nonce on a rejected transaction.", success)

			// A transaction for another chain must be rejected.
			blockTx, err = sign(database.Tx{ChainID: 9, Nonce: 3, ToID: toAcct, Value: 100, Kind: database.KindTransfer}, baseFee)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}
			if err := db.ApplyTransaction(block, blockTx); err == nil || !strings.Contains(err.Error(), "chain id") {
				t.Fatalf("\t%s\tTest 0:\tShould reject a transaction signed for another chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a transaction signed for another chain.", success)

			// Sending money to yourself must be rejected.
			blockTx, err = sign(database.Tx{ChainID: 1, Nonce: 3, ToID: fromAcct, Value: 100, Kind: database.KindTransfer}, baseFee)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}
			if err := db.ApplyTransaction(block, blockTx); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject sending money to yourself.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject sending money to yourself.", success)

			// A value larger than the remaining balance must be rejected.
			blockTx, err = sign(database.Tx{ChainID: 1, Nonce: 3, ToID: toAcct, Value: 500_000_000, Kind: database.KindTransfer}, baseFee)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign transaction: %v", failed, err)
			}
			if err := db.ApplyTransaction(block, blockTx); err == nil || !strings.Contains(err.Error(), "insufficient") {
				t.Fatalf("\t%s\tTest 0:\tShould reject a value above the spendable balance.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a value above the spendable balance.", success)
		}
	}
}

func Test_SupplyMechanics(t *testing.T) {
	t.Log("Given the need to keep the supply exact through every fund movement.")
	{
		t.Logf("\tTest 0:\tWhen bonding, unbonding, slashing and minting.")
		{
			balances := map[string]uint64{fromAcct: 1_000}

			db, err := database.New(genesis.Genesis{ChainID: 1, Balances: balances}, nil, nopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open database.", success)

			if err := db.Bond(fromAcct, 400); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to bond funds: %v", failed, err)
			}
			account, _ := db.Query(fromAcct)
			if account.Balance != 600 || account.Bonded != 400 {
				t.Fatalf("\t%s\tTest 0:\tShould move bonded funds out of the balance, got bal %d bonded %d.", failed, account.Balance, account.Bonded)
			}
			t.Logf("\t%s\tTest 0:\tShould move bonded funds out of the balance.", success)

			if err := db.Bond(fromAcct, 601); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject bonding more than the balance.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject bonding more than the balance.", success)

			if err := db.Unbond(fromAcct, 100); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to unbond funds: %v", failed, err)
			}
			account, _ = db.Query(fromAcct)
			if account.Balance != 700 || account.Bonded != 300 {
				t.Fatalf("\t%s\tTest 0:\tShould move unbonded funds back, got bal %d bonded %d.", failed, account.Balance, account.Bonded)
			}
			t.Logf("\t%s\tTest 0:\tShould move unbonded funds back into the balance.", success)

			if err := db.SlashBonded(fromAcct, 50); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to slash bonded stake: %v", failed, err)
			}
			supply := db.Supply()
			if supply.BurnedPenalties != 50 || supply.Total() != 950 {
				t.Fatalf("\t%s\tTest 0:\tShould burn slashed stake out of the supply, got total %d.", failed, supply.Total())
			}
			t.Logf("\t%s\tTest 0:\tShould burn slashed stake out of the supply.", success)

			db.MintBonded(fromAcct, 25)
			supply = db.Supply()
			account, _ = db.Query(fromAcct)
			if account.Bonded != 275 || supply.Minted != 25 || supply.Total() != 975 {
				t.Fatalf("\t%s\tTest 0:\tShould mint compounded rewards into the supply, got total %d.", failed, supply.Total())
			}
			t.Logf("\t%s\tTest 0:\tShould mint compounded rewards into the supply.", success)

			if err := db.Debit(fromAcct, 10_000); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject debiting more than the balance.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject debiting more than the balance.", success)
		}
	}
}

func Test_SealerReward(t *testing.T) {
	t.Log("Given the need to mint the sealer reward.")
	{
		t.Logf("\tTest 0:\tWhen a block is sealed.")
		{
			db, err := database.New(genesis.Genesis{ChainID: 1, SealerReward: 700, Balances: map[string]uint64{}}, nil, nopEv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to open database: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to open database.", success)

			db.ApplySealerReward(newBlock(0))

			account, err := db.Query(bnfcAcct)
			if err != nil || account.Balance != 700 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the sealer reward to the beneficiary.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the sealer reward to the beneficiary.", success)

			supply := db.Supply()
			if supply.Minted != 700 || supply.Total() != 700 {
				t.Fatalf("\t%s\tTest 0:\tShould mint the reward into the supply, got total %d.", failed, supply.Total())
			}
			t.Logf("\t%s\tTest 0:\tShould mint the reward into the supply.", success)
		}
	}
}

// =============================================================================

func nopEv(v string, args ...any) {}

func newBlock(baseFee uint64) database.Block {
	return database.Block{
		Header: database.BlockHeader{
			BeneficiaryID: bnfcAcct,
			BaseFee:       baseFee,
		},
	}
}

func sign(tx database.Tx, baseFee uint64) (database.BlockTx, error) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		return database.BlockTx{}, err
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		return database.BlockTx{}, err
	}

	return database.NewBlockTx(signedTx, baseFee), nil
}
