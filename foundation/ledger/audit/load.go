package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/database"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/genesis"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
)

// Bounds for a load test run. Values above the caps are clamped so one
// RPC call can't pin the node for minutes.
const (
	defaultTxCount     = 200
	defaultConcurrency = 4
	maxTxCount         = 10_000
	maxConcurrency     = 32
)

// LoadConfig tunes a load test run. Zero values use the defaults.
type LoadConfig struct {
	TxCount     int `json:"tx_count"`
	Concurrency int `json:"concurrency"`
}

// LoadResult reports the throughput and inclusion latency measured on
// the sandbox chain.
type LoadResult struct {
	TxsSubmitted int     `json:"txs_submitted"`
	TxsApplied   int     `json:"txs_applied"`
	BlocksSealed int     `json:"blocks_sealed"`
	DurationMS   int64   `json:"duration_ms"`
	TPS          float64 `json:"tps"`
	LatencyP50MS float64 `json:"latency_p50_ms"`
	LatencyP95MS float64 `json:"latency_p95_ms"`
	LatencyMaxMS float64 `json:"latency_max_ms"`
}

// RunLoadTest floods a sandbox chain with concurrent transfers while the
// sealer drains the mempool, measuring throughput and per transaction
// inclusion latency.
func (a *Audit) RunLoadTest(ctx context.Context, cfg LoadConfig) (LoadResult, error) {
	a.evHandler("audit: RunLoadTest: started")
	defer a.evHandler("audit: RunLoadTest: completed")

	if cfg.TxCount <= 0 {
		cfg.TxCount = defaultTxCount
	}
	if cfg.TxCount > maxTxCount {
		cfg.TxCount = maxTxCount
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Concurrency > maxConcurrency {
		cfg.Concurrency = maxConcurrency
	}
	if cfg.Concurrency > cfg.TxCount {
		cfg.Concurrency = cfg.TxCount
	}

	// The extra sender acts as the sink the transfers pay into.
	transferGas := database.KindTransfer.GasUnits()
	sb, err := newSandbox(a.state.RetrieveGenesis(), cfg.Concurrency+1, func(gen *genesis.Genesis) {
		gen.TransPerBlock = 200
		gen.GasTarget = 100 * transferGas
		gen.GasLimit = 200 * transferGas
	})
	if err != nil {
		return LoadResult{}, err
	}
	defer sb.close()

	sink := sb.accountOf(sb.senders[cfg.Concurrency])

	var mu sync.Mutex
	submitted := make(map[string]time.Time, cfg.TxCount)

	start := time.Now()

	// Each sender submits its share of the transactions on its own G,
	// walking its own nonce sequence.
	var wg sync.WaitGroup
	wg.Add(cfg.Concurrency)
	errCh := make(chan error, cfg.Concurrency)

	perSender := cfg.TxCount / cfg.Concurrency
	remainder := cfg.TxCount % cfg.Concurrency

	for i := 0; i < cfg.Concurrency; i++ {
		count := perSender
		if i < remainder {
			count++
		}

		go func(key int, count int) {
			defer wg.Done()

			sender := sb.senders[key]
			fromID := sb.accountOf(sender)

			for j := 0; j < count; j++ {
				nonce := sb.st.QueryNextNonce(fromID)

				tx, err := database.NewTx(sb.gen.ChainID, nonce, sink, 10, uint64(1+j%5), database.KindTransfer, nil)
				if err != nil {
					errCh <- err
					return
				}

				signedTx, err := tx.Sign(sender)
				if err != nil {
					errCh <- err
					return
				}

				mu.Lock()
				submitted[fmt.Sprintf("%s:%d", fromID, nonce)] = time.Now()
				mu.Unlock()

				if err := sb.st.UpsertWalletTransaction(signedTx); err != nil {
					errCh <- err
					return
				}
			}
		}(i, count)
	}

	doneSubmitting := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneSubmitting)
	}()

	// Seal concurrently with the submitters until everything landed.
	var latencies []time.Duration
	var txsApplied, blocksSealed int

seal:
	for {
		block, err := sb.st.SealNewBlock(ctx)
		if err != nil {
			if !errors.Is(err, state.ErrNoTransactions) {
				return LoadResult{}, err
			}

			select {
			case <-doneSubmitting:
				if sb.st.QueryMempoolLength() == 0 {
					break seal
				}
			case <-time.After(5 * time.Millisecond):
			}
			continue
		}

		sealedAt := time.Now()
		blocksSealed++

		for _, tx := range block.Trans.Values() {
			fromID, err := tx.FromAccount()
			if err != nil {
				continue
			}

			mu.Lock()
			submittedAt, exists := submitted[fmt.Sprintf("%s:%d", fromID, tx.Nonce)]
			mu.Unlock()

			if exists {
				latencies = append(latencies, sealedAt.Sub(submittedAt))
				txsApplied++
			}
		}
	}

	select {
	case err := <-errCh:
		return LoadResult{}, fmt.Errorf("load test submitter: %w", err)
	default:
	}

	duration := time.Since(start)

	mu.Lock()
	txsSubmitted := len(submitted)
	mu.Unlock()

	result := LoadResult{
		TxsSubmitted: txsSubmitted,
		TxsApplied:   txsApplied,
		BlocksSealed: blocksSealed,
		DurationMS:   duration.Milliseconds(),
		LatencyP50MS: percentileMS(latencies, 0.50),
		LatencyP95MS: percentileMS(latencies, 0.95),
		LatencyMaxMS: percentileMS(latencies, 1.00),
	}
	if seconds := duration.Seconds(); seconds > 0 {
		result.TPS = float64(txsApplied) / seconds
	}

	return result, nil
}

// percentileMS returns the latency at the given percentile in
// milliseconds.
func percentileMS(latencies []time.Duration, p float64) float64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)

	return float64(sorted[idx].Microseconds()) / 1000.0
}
