package state

import (
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/bridge"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/gov"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/staking"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveSealerAccount returns the account this node seals and collects
// fees with.
func (s *State) RetrieveSealerAccount() database.AccountID {
	return s.sealerID
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy of the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.LatestBlock()
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []database.BlockTx {
	return s.mempool.PickBest(-1)
}

// RetrieveAccounts returns a copy of the database accounts.
func (s *State) RetrieveAccounts() map[database.AccountID]database.Account {
	return s.db.CopyAccounts()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveKnownPeerCount returns the number of peers this node knows,
// excluding itself.
func (s *State) RetrieveKnownPeerCount() int {
	return s.knownPeers.Count(s.host)
}

// RetrieveSupply returns a copy of the supply bookkeeping.
func (s *State) RetrieveSupply() database.Supply {
	return s.db.Supply()
}

// =============================================================================
// Fee market views.

// BaseFee returns the base fee the next block will be sealed with.
func (s *State) BaseFee() uint64 {
	return s.fees.BaseFee()
}

// GasTarget returns the per-block gas usage the fee market steers toward.
func (s *State) GasTarget() uint64 {
	return s.fees.GasTarget()
}

// SuggestGasPrice returns a gas price that should get a transaction into
// the next few blocks.
func (s *State) SuggestGasPrice() uint64 {
	return s.fees.SuggestGasPrice()
}

// =============================================================================
// Staking views.

// StakingPosition returns the staking position of the specified account.
func (s *State) StakingPosition(accountID database.AccountID) (staking.Position, error) {
	return s.staking.Position(accountID)
}

// StakingPositions returns every staking position.
func (s *State) StakingPositions() []staking.Position {
	return s.staking.Positions()
}

// RewardRateBPS returns the annual staking reward rate in basis points.
func (s *State) RewardRateBPS() uint64 {
	return s.staking.RewardRateBPS()
}

// TotalBonded returns the total bonded stake across all accounts.
func (s *State) TotalBonded() uint64 {
	return s.staking.TotalBonded()
}

// TotalClaimable returns the total unclaimed staking rewards.
func (s *State) TotalClaimable() uint64 {
	return s.staking.TotalClaimable()
}

// =============================================================================
// Bridge views.

// BridgeTransfer returns the transfer with the specified id.
func (s *State) BridgeTransfer(id string) (bridge.Transfer, error) {
	return s.bridge.Transfer(id)
}

// BridgeTransfers returns every bridge transfer.
func (s *State) BridgeTransfers() []bridge.Transfer {
	return s.bridge.Transfers()
}

// BridgeVault returns the units locked backing outbound transfers.
func (s *State) BridgeVault() uint64 {
	return s.bridge.Vault()
}

// BridgeFlatFee returns the fee charged per outbound transfer.
func (s *State) BridgeFlatFee() uint64 {
	return s.bridge.FlatFee()
}

// BridgePool returns the liquidity pool for the specified chain.
func (s *State) BridgePool(chain string) (bridge.Pool, error) {
	return s.bridge.Pool(chain)
}

// BridgePools returns every liquidity pool.
func (s *State) BridgePools() []bridge.Pool {
	return s.bridge.Pools()
}

// BridgePoolPosition returns the provider's stake in a chain's pool.
func (s *State) BridgePoolPosition(accountID database.AccountID, chain string) (bridge.ProviderPosition, error) {
	return s.bridge.Position(accountID, chain)
}

// TotalLiquidity returns the combined balance of every liquidity pool.
func (s *State) TotalLiquidity() uint64 {
	return s.bridge.TotalLiquidity()
}

// =============================================================================
// Governance views.

// Proposal returns the proposal with the specified id.
func (s *State) Proposal(id uint64) (gov.Proposal, error) {
	return s.gov.Proposal(id)
}

// Proposals returns every governance proposal.
func (s *State) Proposals() []gov.Proposal {
	return s.gov.Proposals()
}

// QuorumBPS returns the governance participation threshold in basis points.
func (s *State) QuorumBPS() uint64 {
	return s.gov.QuorumBPS()
}
