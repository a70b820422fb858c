package operator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/chainio"
	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

// fakeChain is a ChainClient whose StartGame call fails with a nonce race
// a fixed number of times before succeeding, and which answers
// GetTxStatus as unconfirmed-but-not-reverted so reconcile re-enqueues.
type fakeChain struct {
	mu           sync.Mutex
	failuresLeft int
	calls        int
}

func (f *fakeChain) StartGame(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return chainio.WriteResult{}, gerrors.New("fake.StartGame", gerrors.CodeNonceRace)
	}
	return chainio.WriteResult{TxHash: "0xdeadbeef"}, nil
}

func (f *fakeChain) CreateGame(ctx context.Context, nonce uint64, cfg chainio.GameConfig, shrinks []store.ZoneShrink) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) RecordKill(ctx context.Context, nonce uint64, gameID uint64, k store.Kill) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) EliminatePlayer(ctx context.Context, nonce uint64, gameID uint64, address string, reason store.EliminationReason) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) EndGame(ctx context.Context, nonce uint64, gameID uint64, winners store.Winners) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) TriggerCancellation(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) TriggerExpiry(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) WithdrawCreatorFees(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) WithdrawPlatformFees(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) FundWallet(ctx context.Context, nonce uint64, address string, amountWei string) (chainio.WriteResult, error) {
	return chainio.WriteResult{}, nil
}
func (f *fakeChain) GetTxStatus(ctx context.Context, txHash string) (chainio.TxStatus, error) {
	return chainio.TxStatus{}, nil
}

func openTestDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestQueueRetriesNonceRaceThenSucceeds(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseRegistration}))

	fc := &fakeChain{failuresLeft: 2}
	q := New(fc, db, clock.NewDefaultClock(), 0)
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	id, err := q.Enqueue(ctx, store.ActionStartGame, 1, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tx, err := db.GetOperatorTx(ctx, id)
		return err == nil && tx.Status == store.OperatorTxConfirmed
	}, time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Equal(t, 3, fc.calls, "two failures plus the successful attempt")
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseRegistration}))

	fc := &fakeChain{failuresLeft: MaxRetries() + 5}
	q := New(fc, db, clock.NewDefaultClock(), 0)
	require.NoError(t, q.Start(ctx))
	defer q.Stop()

	id, err := q.Enqueue(ctx, store.ActionStartGame, 1, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tx, err := db.GetOperatorTx(ctx, id)
		return err == nil && tx.Status == store.OperatorTxFailed
	}, time.Second, 5*time.Millisecond)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	require.Equal(t, MaxRetries(), fc.calls)
}
