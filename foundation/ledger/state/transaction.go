package state

import (
	"fmt"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
)

// UpsertWalletTransaction accepts a transaction from a wallet for inclusion
// into the chain.
func (s *State) UpsertWalletTransaction(signedTx database.SignedTx) error {
	if err := s.validateTransaction(signedTx); err != nil {
		return err
	}

	// The gas price is locked in at acceptance time from the current base
	// fee plus the signer's tip.
	tx := database.NewBlockTx(signedTx, s.fees.BaseFee())

	if _, err := s.mempool.Upsert(tx); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.MempoolDepth.Set(float64(s.mempool.Count()))
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartSealing()
	}

	return nil
}

// UpsertNodeTransaction accepts a transaction from a peer node for
// inclusion into the chain.
func (s *State) UpsertNodeTransaction(tx database.BlockTx) error {
	if err := s.validateTransaction(tx.SignedTx); err != nil {
		return err
	}

	if _, err := s.mempool.Upsert(tx); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.MempoolDepth.Set(float64(s.mempool.Count()))
	}

	if s.Worker != nil {
		s.Worker.SignalStartSealing()
	}

	return nil
}

// =============================================================================

// validateTransaction takes the signed transaction and validates it has
// a proper signature and other aspects of the data.
func (s *State) validateTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return err
	}

	// Reject nonces at or below the account's current nonce now so the
	// signer doesn't burn a fee on a transaction that can only fail.
	fromID, err := signedTx.FromAccount()
	if err != nil {
		return err
	}

	account, _ := s.db.Query(fromID)

	if signedTx.Nonce <= account.Nonce {
		return fmt.Errorf("invalid nonce, got %d, exp > %d", signedTx.Nonce, account.Nonce)
	}

	// Kinds that spend the value up front need the balance to cover it.
	// The gas fee is still collected at apply time even when the balance
	// runs short, so only the value is checked here.
	if signedTx.Kind.DebitsValue() && account.Balance < signedTx.Value {
		return fmt.Errorf("insufficient funds, bal %d, needed %d", account.Balance, signedTx.Value)
	}

	return nil
}
