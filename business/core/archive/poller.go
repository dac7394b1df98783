package archive

import (
	"context"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/peer"
	"go.uber.org/zap"
)

// Chain is the view of the running node the poller tails. The state package
// satisfies this interface.
type Chain interface {
	RetrieveHost() string
	RetrieveLatestBlock() database.Block
	QueryBlocksByNumber(from uint64, to uint64) []database.Block
	RetrieveKnownPeers() []peer.Peer
	QueryMempoolLength() int
	BaseFee() uint64
	RetrieveSupply() database.Supply
	TotalBonded() uint64
	BridgeVault() uint64
}

// Poller tails the chain and keeps the archive in sync. Archiving lags the
// chain by at most one poll interval and never blocks sealing.
type Poller struct {
	log          *zap.SugaredLogger
	core         *Core
	chain        Chain
	pollInterval time.Duration
	snapInterval time.Duration
	wg           sync.WaitGroup
	shut         chan struct{}
}

// NewPoller constructs a poller for the specified chain and archive.
func NewPoller(log *zap.SugaredLogger, core *Core, chain Chain, pollInterval time.Duration, snapInterval time.Duration) *Poller {
	return &Poller{
		log:          log,
		core:         core,
		chain:        chain,
		pollInterval: pollInterval,
		snapInterval: snapInterval,
		shut:         make(chan struct{}),
	}
}

// Start launches the poll loop and returns once it is running.
func (p *Poller) Start() {
	p.wg.Add(1)

	hasStarted := make(chan bool)

	go func() {
		defer p.wg.Done()
		hasStarted <- true
		p.run()
	}()

	<-hasStarted
}

// Shutdown stops the poll loop and waits for it to finish.
func (p *Poller) Shutdown() {
	p.log.Infow("archive poller: shutdown: started")
	defer p.log.Infow("archive poller: shutdown: completed")

	close(p.shut)
	p.wg.Wait()
}

// run drives the poll and snapshot tickers until shutdown.
func (p *Poller) run() {
	poll := time.NewTicker(p.pollInterval)
	defer poll.Stop()

	snap := time.NewTicker(p.snapInterval)
	defer snap.Stop()

	for {
		select {
		case <-poll.C:
			ctx := context.Background()

			if err := p.archiveNewBlocks(ctx); err != nil {
				p.log.Errorw("archive poller: blocks", "ERROR", err)
			}
			if err := p.recordNodes(ctx); err != nil {
				p.log.Errorw("archive poller: nodes", "ERROR", err)
			}

		case <-snap.C:
			if err := p.snapshot(context.Background()); err != nil {
				p.log.Errorw("archive poller: snapshot", "ERROR", err)
			}

		case <-p.shut:
			return
		}
	}
}

// archiveNewBlocks records every sealed block the archive hasn't seen yet.
func (p *Poller) archiveNewBlocks(ctx context.Context) error {
	latest := p.chain.RetrieveLatestBlock().Header.Number

	archived, err := p.core.LatestArchivedBlock(ctx)
	if err != nil {
		return err
	}
	if latest <= archived {
		return nil
	}

	for _, block := range p.chain.QueryBlocksByNumber(archived+1, latest) {
		if err := p.core.RecordBlock(ctx, block); err != nil {
			return err
		}
	}

	return nil
}

// recordNodes refreshes the node table with ourselves and the known peers.
func (p *Poller) recordNodes(ctx context.Context) error {
	now := time.Now().UTC()

	self := Node{
		Host:        p.chain.RetrieveHost(),
		Role:        RoleSelf,
		LatestBlock: p.chain.RetrieveLatestBlock().Header.Number,
		LastSeen:    now,
	}
	if err := p.core.RecordNode(ctx, self); err != nil {
		return err
	}

	for _, pr := range p.chain.RetrieveKnownPeers() {
		node := Node{
			Host:     pr.Host,
			Role:     RolePeer,
			LastSeen: now,
		}
		if err := p.core.RecordNode(ctx, node); err != nil {
			return err
		}
	}

	return nil
}

// snapshot samples the economic state into the metrics table.
func (p *Poller) snapshot(ctx context.Context) error {
	tps, err := p.core.TPS(ctx, time.Minute)
	if err != nil {
		return err
	}

	snap := MetricSnapshot{
		TakenAt:      time.Now().UTC(),
		BlockHeight:  p.chain.RetrieveLatestBlock().Header.Number,
		BaseFee:      p.chain.BaseFee(),
		SupplyTotal:  p.chain.RetrieveSupply().Total(),
		TotalBonded:  p.chain.TotalBonded(),
		BridgeVault:  p.chain.BridgeVault(),
		MempoolDepth: p.chain.QueryMempoolLength(),
		TPS:          tps,
	}

	return p.core.Snapshot(ctx, snap)
}
