package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/events"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/signature"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
)

// updateLocalState takes a validated block, writes it to storage and
// applies its effects to the account database and the engines.
func (s *State) updateLocalState(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: updateLocalState: write block %d to storage", block.Header.Number)

	if err := s.db.Write(block); err != nil {
		return err
	}

	return s.applyBlock(block)
}

// applyBlock runs every effect of a sealed block in a fixed order:
// transactions, staking accrual, bridge refunds, governance tallies, the
// sealer reward and finally the fee market update. Replay at startup runs
// this same function so the order is part of the chain's semantics.
func (s *State) applyBlock(block database.Block) error {
	blockTime := time.UnixMilli(int64(block.Header.TimeStamp)).UTC()

	// Only tips from applied transactions feed the gas price suggestion,
	// so reverted spam cannot push the median up.
	var tips []uint64
	for _, tx := range block.Trans.Values() {
		if err := s.applyTransaction(block, blockTime, tx); err != nil {
			s.evHandler("state: applyBlock: WARNING: tx[%s]: %s", tx, err)
		} else {
			tips = append(tips, tx.Tip)
		}
		s.mempool.Delete(tx)
	}

	s.staking.AccrueBlock(block.Header.Number)

	for _, transfer := range s.bridge.RefundExpired(blockTime) {
		s.evHandler("state: applyBlock: transfer %s expired, refunded %d to %s", transfer.ID, transfer.Amount, transfer.AccountID)
		s.publish(events.KindBridge, "transfer %s refunded %d to %s", transfer.ID, transfer.Amount, transfer.AccountID)
		if s.metrics != nil {
			s.metrics.RecordBridgeTransfer(string(transfer.Direction), string(transfer.Status))
		}
	}

	for _, proposal := range s.gov.TallyDue(block.Header.Number) {
		s.evHandler("state: applyBlock: proposal %d %s %s", proposal.ID, proposal.Status, proposal.Reason)
		s.publish(events.KindGov, "proposal %d %s", proposal.ID, proposal.Status)
	}

	s.db.ApplySealerReward(block)

	s.fees.Advance(block.Header.Number, block.Header.GasUsed, tips)

	s.db.UpdateLatestBlock(block)

	if s.metrics != nil {
		supply := s.db.Supply()
		s.metrics.UpdateSupply(supply.Genesis, supply.Minted, supply.BurnedFees, supply.BurnedPenalties, supply.Total())
		s.metrics.BondedTotal.Set(float64(s.staking.TotalBonded()))
		s.metrics.BridgeVault.Set(float64(s.bridge.Vault()))
		s.metrics.MempoolDepth.Set(float64(s.mempool.Count()))
	}

	return nil
}

// applyTransaction runs the shared fee and nonce mechanics and then the
// kind specific engine effect. The fee is charged even when the engine
// effect fails, just like a reverted transaction.
func (s *State) applyTransaction(block database.Block, blockTime time.Time, tx database.BlockTx) error {
	fromID, err := tx.FromAccount()
	if err != nil {
		return err
	}

	if err := s.db.ApplyTransaction(block, tx); err != nil {
		if s.metrics != nil {
			s.metrics.RecordTxApplied(string(tx.Kind), err)
		}
		return err
	}

	err = s.applyEngines(block, blockTime, fromID, tx)

	if s.metrics != nil {
		s.metrics.RecordTxApplied(string(tx.Kind), err)
	}
	if err != nil {
		return err
	}

	s.publish(events.KindTx, "tx %s kind %s applied in block %d", tx, tx.Kind, block.Header.Number)

	return nil
}

// applyEngines dispatches the transaction to the engine that owns its
// kind. Plain transfers were fully handled by the account database.
func (s *State) applyEngines(block database.Block, blockTime time.Time, fromID database.AccountID, tx database.BlockTx) error {
	height := block.Header.Number

	switch tx.Kind {
	case database.KindTransfer:
		return nil

	case database.KindStake:
		var data staking.StakeData
		if len(tx.Data) > 0 {
			if err := json.Unmarshal(tx.Data, &data); err != nil {
				return fmt.Errorf("stake data: %w", err)
			}
		}
		return s.staking.Stake(fromID, tx.Value, data.AutoCompound, height, blockTime)

	case database.KindUnstake:
		_, err := s.staking.Unstake(fromID, tx.Value, blockTime)
		return err

	case database.KindClaim:
		_, err := s.staking.Claim(fromID)
		return err

	case database.KindBridgeOut:
		var data bridge.LockData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("bridge out data: %w", err)
		}
		transfer, err := s.bridge.Lock(fromID, data, tx.Value, signature.Hash(tx), blockTime)
		if err != nil {
			return err
		}
		s.publish(events.KindBridge, "transfer %s locked %d for %s on %s", transfer.ID, transfer.Amount, transfer.RemoteAddr, transfer.RemoteChain)
		if s.metrics != nil {
			s.metrics.RecordBridgeTransfer(string(transfer.Direction), string(transfer.Status))
		}
		return nil

	case database.KindBridgeAttest:
		var data bridge.AttestData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("bridge attest data: %w", err)
		}
		transfer, err := s.bridge.Attest(fromID, data)
		if err != nil {
			return err
		}
		if transfer.Status == bridge.StatusSettled {
			s.publish(events.KindBridge, "transfer %s settled on %s", transfer.ID, transfer.RemoteChain)
			if s.metrics != nil {
				s.metrics.RecordBridgeTransfer(string(transfer.Direction), string(transfer.Status))
			}
		}
		return nil

	case database.KindBridgeIn:
		var data bridge.ReleaseData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("bridge in data: %w", err)
		}
		transfer, err := s.bridge.Release(fromID, data, blockTime)
		if err != nil {
			return err
		}
		if transfer.Status == bridge.StatusSettled {
			s.publish(events.KindBridge, "transfer %s released %d to %s", transfer.ID, transfer.Amount, transfer.AccountID)
			if s.metrics != nil {
				s.metrics.RecordBridgeTransfer(string(transfer.Direction), string(transfer.Status))
			}
		}
		return nil

	case database.KindPoolAdd:
		var data bridge.PoolAddData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("pool add data: %w", err)
		}
		return s.bridge.AddLiquidity(fromID, data, tx.Value, height)

	case database.KindPoolRemove:
		var data bridge.PoolRemoveData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("pool remove data: %w", err)
		}
		_, err := s.bridge.RemoveLiquidity(fromID, data, height)
		return err

	case database.KindPropose:
		var data gov.ProposeData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("propose data: %w", err)
		}
		proposal, err := s.gov.Propose(fromID, data, height)
		if err != nil {
			return err
		}
		s.publish(events.KindGov, "proposal %d opened: %s = %d", proposal.ID, proposal.Param, proposal.Value)
		return nil

	case database.KindVote:
		var data gov.VoteData
		if err := json.Unmarshal(tx.Data, &data); err != nil {
			return fmt.Errorf("vote data: %w", err)
		}
		_, err := s.gov.Vote(fromID, data, height)
		return err
	}

	return fmt.Errorf("unknown transaction kind %s", tx.Kind)
}
