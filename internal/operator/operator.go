// Package operator is the single chokepoint every on-chain write passes
// through (C5): one FIFO queue, one nonce counter, bounded retry on nonce
// races, and persisted status so a restart can pick the queue back up.
// Its shape is htlcswitch.go's single worker goroutine draining a
// buffered channel, generalized from forwarded HTLC packets to operator
// transactions and built on the dedicated queue package instead of a
// bare channel.
package operator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/queue"

	"github.com/kalinbas/chain-assassin/internal/chainio"
	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/logging"
	"github.com/kalinbas/chain-assassin/internal/store"
)

var log = logging.Named("OPER")

// maxNonceRaceRetries bounds how many submission attempts Queue makes for a
// single transaction while each attempt fails with a nonce race; after the
// last one it marks the transaction failed.
const maxNonceRaceRetries = 6

// ChainClient is the subset of chainio.Client the queue drives. Defined
// here, not imported from chainio, so tests can supply a fake without
// spinning up a websocket.
type ChainClient interface {
	CreateGame(ctx context.Context, nonce uint64, cfg chainio.GameConfig, shrinks []store.ZoneShrink) (chainio.WriteResult, error)
	StartGame(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error)
	RecordKill(ctx context.Context, nonce uint64, gameID uint64, k store.Kill) (chainio.WriteResult, error)
	EliminatePlayer(ctx context.Context, nonce uint64, gameID uint64, address string, reason store.EliminationReason) (chainio.WriteResult, error)
	EndGame(ctx context.Context, nonce uint64, gameID uint64, winners store.Winners) (chainio.WriteResult, error)
	TriggerCancellation(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error)
	TriggerExpiry(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error)
	WithdrawCreatorFees(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error)
	WithdrawPlatformFees(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error)
	FundWallet(ctx context.Context, nonce uint64, address string, amountWei string) (chainio.WriteResult, error)
	GetTxStatus(ctx context.Context, txHash string) (chainio.TxStatus, error)
}

// Queue is the operator's single-writer transaction submitter.
type Queue struct {
	chain ChainClient
	store store.Store
	clock clock.Clock

	cq     *queue.ConcurrentQueue
	nonce  uint64
	wg     sync.WaitGroup
	quit   chan struct{}
	started atomic.Bool
}

// New builds a Queue. startNonce is the first nonce to use; callers
// normally derive it from the chain's current account nonce at startup.
func New(chain ChainClient, st store.Store, clk clock.Clock, startNonce uint64) *Queue {
	return &Queue{
		chain: chain,
		store: st,
		clock: clk,
		cq:    queue.NewConcurrentQueue(64),
		nonce: startNonce,
		quit:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Start is idempotent.
func (q *Queue) Start(ctx context.Context) error {
	if !q.started.CompareAndSwap(false, true) {
		return nil
	}
	q.cq.Start()

	q.wg.Add(1)
	go q.worker(ctx)

	return q.reconcile(ctx)
}

// Stop drains the worker and releases the underlying queue.
func (q *Queue) Stop() {
	if !q.started.CompareAndSwap(true, false) {
		return
	}
	close(q.quit)
	q.cq.Stop()
	q.wg.Wait()
}

// Enqueue persists tx as pending and schedules it for submission. The
// caller's original action record (gameId, params) is durable before
// Enqueue returns, so a crash between Enqueue and submission loses no
// work.
func (q *Queue) Enqueue(ctx context.Context, action store.OperatorTxAction, gameID uint64, params map[string]interface{}) (string, error) {
	tx := store.OperatorTx{
		ID:        uuid.New().String(),
		GameID:    gameID,
		Action:    action,
		Params:    params,
		Status:    store.OperatorTxPending,
		CreatedAt: q.clock.Now(),
	}
	if err := q.store.InsertOperatorTx(ctx, tx); err != nil {
		return "", err
	}

	q.cq.ChanIn() <- tx
	return tx.ID, nil
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case item := <-q.cq.ChanOut():
			tx := item.(store.OperatorTx)
			q.process(ctx, tx)
		case <-q.quit:
			return
		}
	}
}

// process submits tx, making at most maxNonceRaceRetries attempts, each
// with a fresh nonce, while the attempts fail with nonce races. Any other
// chain error marks the tx failed without retry.
func (q *Queue) process(ctx context.Context, tx store.OperatorTx) {
	var lastErr error

	for attempt := 0; attempt < maxNonceRaceRetries; attempt++ {
		nonce := atomic.AddUint64(&q.nonce, 1) - 1

		result, err := q.dispatch(ctx, tx, nonce)
		if err == nil {
			q.markSubmitted(ctx, tx.ID, result.TxHash)
			return
		}

		lastErr = err
		if !gerrors.Is(err, gerrors.CodeNonceRace) {
			break
		}
		log.Warnw("nonce race, retrying", "tx", tx.ID, "attempt", attempt)
	}

	q.markFailed(ctx, tx.ID, lastErr)
}

func (q *Queue) dispatch(ctx context.Context, tx store.OperatorTx, nonce uint64) (chainio.WriteResult, error) {
	switch tx.Action {
	case store.ActionCreateGame:
		var p struct {
			Config  chainio.GameConfig   `json:"config"`
			Shrinks []store.ZoneShrink   `json:"shrinks"`
		}
		if err := decodeParams(tx.Params, &p); err != nil {
			return chainio.WriteResult{}, err
		}
		return q.chain.CreateGame(ctx, nonce, p.Config, p.Shrinks)

	case store.ActionStartGame:
		return q.chain.StartGame(ctx, nonce, tx.GameID)

	case store.ActionRecordKill:
		var k store.Kill
		if err := decodeParams(tx.Params, &k); err != nil {
			return chainio.WriteResult{}, err
		}
		return q.chain.RecordKill(ctx, nonce, tx.GameID, k)

	case store.ActionEliminatePlayer:
		var p struct {
			Address string                    `json:"address"`
			Reason  store.EliminationReason    `json:"reason"`
		}
		if err := decodeParams(tx.Params, &p); err != nil {
			return chainio.WriteResult{}, err
		}
		return q.chain.EliminatePlayer(ctx, nonce, tx.GameID, p.Address, p.Reason)

	case store.ActionEndGame:
		var winners store.Winners
		if err := decodeParams(tx.Params, &winners); err != nil {
			return chainio.WriteResult{}, err
		}
		return q.chain.EndGame(ctx, nonce, tx.GameID, winners)

	case store.ActionTriggerCancellation:
		return q.chain.TriggerCancellation(ctx, nonce, tx.GameID)

	case store.ActionTriggerExpiry:
		return q.chain.TriggerExpiry(ctx, nonce, tx.GameID)

	case store.ActionWithdrawCreatorFees:
		return q.chain.WithdrawCreatorFees(ctx, nonce, tx.GameID)

	case store.ActionWithdrawPlatformFees:
		return q.chain.WithdrawPlatformFees(ctx, nonce, tx.GameID)

	default:
		return chainio.WriteResult{}, gerrors.New("operator.dispatch", gerrors.CodeConstraintViolation)
	}
}

func decodeParams(params map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return gerrors.Wrap("operator.decodeParams", gerrors.CodeConstraintViolation, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return gerrors.Wrap("operator.decodeParams", gerrors.CodeConstraintViolation, err)
	}
	return nil
}

func (q *Queue) markSubmitted(ctx context.Context, id, txHash string) {
	now := q.clock.Now()
	err := q.store.UpdateOperatorTx(ctx, id, store.OperatorTxUpdate{
		Status:      store.OperatorTxConfirmed,
		TxHash:      txHash,
		ConfirmedAt: &now,
	})
	if err != nil {
		log.Errorw("failed to persist submitted tx", "tx", id, "err", err)
	}
}

func (q *Queue) markFailed(ctx context.Context, id string, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := q.store.UpdateOperatorTx(ctx, id, store.OperatorTxUpdate{
		Status:    store.OperatorTxFailed,
		LastError: msg,
	})
	if err != nil {
		log.Errorw("failed to persist failed tx", "tx", id, "err", err)
	}
}

// reconcile picks up every tx left pending or submitted from a prior
// process lifetime. A submitted tx with a hash is looked up on chain and
// marked confirmed or failed once the chain has settled it; every other
// entry, pending ones included, is re-enqueued without a chain check.
func (q *Queue) reconcile(ctx context.Context) error {
	pending, err := q.store.GetPendingOperatorTxs(ctx)
	if err != nil {
		return err
	}

	for _, tx := range pending {
		if tx.Status == store.OperatorTxSubmitted && tx.TxHash != "" {
			status, err := q.chain.GetTxStatus(ctx, tx.TxHash)
			if err == nil {
				if status.Confirmed {
					q.markSubmitted(ctx, tx.ID, tx.TxHash)
					continue
				}
				if status.Reverted {
					q.markFailed(ctx, tx.ID, gerrors.New("operator.reconcile", gerrors.CodeRevertedByContract))
					continue
				}
			}
		}

		log.Infow("re-enqueuing operator tx from prior run", "tx", tx.ID, "action", tx.Action)
		q.cq.ChanIn() <- tx
	}
	return nil
}

// MaxRetries reports the bounded nonce-race retry budget, exposed for tests
// and operational tooling.
func MaxRetries() int { return maxNonceRaceRetries }
