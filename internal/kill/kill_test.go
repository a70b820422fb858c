package kill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/proof"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

type fakeEnqueuer struct {
	calls []store.OperatorTxAction
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, action store.OperatorTxAction, gameID uint64, params map[string]interface{}) (string, error) {
	f.calls = append(f.calls, action)
	return "tx-1", nil
}

func setupGame(t *testing.T) (*sqlstore.DB, store.Game) {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	sub := store.SubPhaseGame
	game := store.Game{GameID: 1, Phase: store.PhaseActive, SubPhase: &sub}
	require.NoError(t, db.InsertGame(ctx, game))

	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xhunter", PlayerNumber: 1, IsAlive: true}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xtarget", PlayerNumber: 2, IsAlive: true, BluetoothID: "ble-t"}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xnext", PlayerNumber: 3, IsAlive: true}))

	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xhunter", "0xtarget"))
	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xtarget", "0xnext"))
	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xnext", "0xhunter"))

	require.NoError(t, db.InsertLocationPing(ctx, store.LocationPing{GameID: 1, Address: "0xtarget", Timestamp: time.Now()}))

	return db, game
}

func TestVerifySucceedsAndReassignsTarget(t *testing.T) {
	db, game := setupGame(t)
	ctx := context.Background()
	enq := &fakeEnqueuer{}

	qr := proof.EncodeQR(1, 2)
	result, err := Verify(ctx, db, enq, 1, game, Input{
		HunterAddress: "0xhunter", QRPayload: qr, BLENearby: []string{"ble-t"},
	}, Params{ProximityMeters: 100, BLERequired: true}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "0xtarget", result.EliminatedTarget)
	require.Equal(t, 2, result.AliveRemaining)
	require.Len(t, enq.calls, 1)
	require.Equal(t, store.ActionRecordKill, enq.calls[0])

	newTarget, err := db.GetTargetAssignment(ctx, 1, "0xhunter")
	require.NoError(t, err)
	require.Equal(t, "0xnext", newTarget)
}

func TestVerifyRejectsWrongTarget(t *testing.T) {
	db, game := setupGame(t)
	ctx := context.Background()
	enq := &fakeEnqueuer{}

	qr := proof.EncodeQR(1, 3) // 0xnext is not 0xhunter's assigned target
	_, err := Verify(ctx, db, enq, 1, game, Input{
		HunterAddress: "0xhunter", QRPayload: qr, BLENearby: nil,
	}, Params{ProximityMeters: 100, BLERequired: false}, time.Now())
	require.True(t, gerrors.Is(err, gerrors.CodeNotYourTarget))
}

func TestVerifyRejectsGameNotActive(t *testing.T) {
	db, game := setupGame(t)
	game.Phase = store.PhaseEnded
	ctx := context.Background()
	enq := &fakeEnqueuer{}

	qr := proof.EncodeQR(1, 2)
	_, err := Verify(ctx, db, enq, 1, game, Input{
		HunterAddress: "0xhunter", QRPayload: qr,
	}, Params{ProximityMeters: 100}, time.Now())
	require.True(t, gerrors.Is(err, gerrors.CodeGameNotActive))
}

func TestVerifyRejectsOutOfRange(t *testing.T) {
	db, game := setupGame(t)
	ctx := context.Background()
	enq := &fakeEnqueuer{}

	qr := proof.EncodeQR(1, 2)
	_, err := Verify(ctx, db, enq, 1, game, Input{
		HunterAddress: "0xhunter", QRPayload: qr,
		HunterLat: 5, HunterLng: 5, BLENearby: []string{"ble-t"},
	}, Params{ProximityMeters: 100, BLERequired: true}, time.Now())
	require.True(t, gerrors.Is(err, gerrors.CodeOutOfRange))
}
