package selector_test

import (
	"testing"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/mempool/selector"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func sign(hexKey string, tx database.Tx) (database.BlockTx, error) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return database.BlockTx{}, err
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		return database.BlockTx{}, err
	}

	return database.NewBlockTx(signedTx, 0), nil
}

func TestPrioritySort(t *testing.T) {
	tran := func(nonce uint64, hexKey string, tip uint64) database.BlockTx {
		const to = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"

		tx, err := sign(hexKey, database.Tx{ChainID: 1, Nonce: nonce, ToID: to, Tip: tip, Kind: database.KindTransfer})
		if err != nil {
			t.Fatalf("\t%s \tShould be able to sign transaction: %s", failed, err)
		}
		return tx
	}

	type test struct {
		name    string
		txs     []database.BlockTx
		howMany int
		best    []database.BlockTx
	}

	signPavel := "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signBill := "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	signEd := "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"

	tt := []test{
		{
			name: "one from second cycle",
			txs: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(3, signPavel, 50),

				tran(1, signBill, 10),
				tran(2, signBill, 5),
				tran(3, signBill, 75),

				tran(1, signEd, 5),
				tran(2, signEd, 50),
				tran(3, signEd, 25),
			},
			howMany: 4,
			best: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(1, signBill, 10),
				tran(1, signEd, 5),
			},
		},
		{
			name: "whole two cycles",
			txs: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(3, signPavel, 50),

				tran(1, signBill, 10),
				tran(2, signBill, 5),
				tran(3, signBill, 75),

				tran(1, signEd, 5),
				tran(2, signEd, 50),
				tran(3, signEd, 25),
			},
			howMany: 6,
			best: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(1, signBill, 10),
				tran(2, signBill, 5),
				tran(1, signEd, 5),
				tran(2, signEd, 50),
			},
		},
		{
			name: "take all with negative count",
			txs: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(1, signBill, 10),
				tran(1, signEd, 5),
			},
			howMany: -1,
			best: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(1, signBill, 10),
				tran(1, signEd, 5),
			},
		},
		{
			name: "first two",
			txs: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(2, signPavel, 75),
				tran(3, signPavel, 50),

				tran(1, signBill, 10),
				tran(2, signBill, 5),
				tran(3, signBill, 75),

				tran(1, signEd, 5),
				tran(2, signEd, 50),
				tran(3, signEd, 25),
			},
			howMany: 2,
			best: []database.BlockTx{
				tran(1, signPavel, 25),
				tran(1, signBill, 10),
			},
		},
	}

	t.Log("Given the need to pick the best paying transactions in nonce order.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transactions.", testID)
			{
				f := func(t *testing.T) {
					m := make(map[database.AccountID][]database.BlockTx)
					for _, tx := range tst.txs {
						from, err := tx.FromAccount()
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to get from account: %s", failed, testID, err)
						}

						m[from] = append(m[from], tx)
					}

					sort, err := selector.Retrieve(selector.StrategyPriority)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to get sort strategy function: %s", failed, testID, err)
					}

					txs := sort(m, tst.howMany)
					if len(txs) != len(tst.best) {
						t.Fatalf("\t%s\tTest %d:\tShould get back %d transactions, got %d.", failed, testID, len(tst.best), len(txs))
					}
					t.Logf("\t%s\tTest %d:\tShould get back %d transactions.", success, testID, len(tst.best))

					for _, tx := range txs {
						gotFrom, err := tx.FromAccount()
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to get from account: %s", failed, testID, err)
						}

						found := false
						for _, exp := range tst.best {
							expFrom, err := exp.FromAccount()
							if err != nil {
								t.Fatalf("\t%s\tTest %d:\tShould be able to get from account: %s", failed, testID, err)
							}

							if exp.Nonce == tx.Nonce && expFrom == gotFrom {
								found = true
								break
							}
						}

						if !found {
							t.Fatalf("\t%s\tTest %d:\tShould get back the right from/nonce: %s/%d", failed, testID, gotFrom, tx.Nonce)
						}
						t.Logf("\t%s\tTest %d:\tShould get back the right from/nonce: %s/%d", success, testID, gotFrom, tx.Nonce)
					}
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func TestRetrieveUnknown(t *testing.T) {
	t.Log("Given the need to reject an unknown strategy.")
	{
		if _, err := selector.Retrieve("unknown"); err == nil {
			t.Fatalf("\t%s\tShould get an error for an unknown strategy.", failed)
		}
		t.Logf("\t%s\tShould get an error for an unknown strategy.", success)
	}
}
