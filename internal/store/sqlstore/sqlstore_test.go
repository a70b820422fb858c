package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTestGame(t *testing.T, db *DB, gameID uint64) {
	t.Helper()
	err := db.InsertGame(context.Background(), store.Game{
		GameID:               gameID,
		Title:                "test game",
		EntryFeeWei:          "1000",
		BaseRewardWei:        "10000",
		BpsFirst:             5000,
		BpsSecond:            2000,
		BpsThird:             1000,
		BpsKills:             1500,
		BpsCreator:           500,
		CreatorAddress:       "0xcreator",
		RegistrationDeadline: time.Unix(1000, 0).UTC(),
		GameDate:             time.Unix(2000, 0).UTC(),
		MaxDuration:          2 * time.Hour,
		Phase:                store.PhaseRegistration,
	})
	require.NoError(t, err)
}

func TestGameRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	insertTestGame(t, db, 42)

	got, err := db.GetGame(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "test game", got.Title)
	require.Equal(t, store.PhaseRegistration, got.Phase)
	require.Nil(t, got.SubPhase)

	_, err = db.GetGame(ctx, 999)
	require.Error(t, err)
}

func TestUpdateGamePhaseSetsSubPhase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insertTestGame(t, db, 1)

	startedAt := time.Unix(5000, 0).UTC()
	sub := store.SubPhaseCheckin
	err := db.UpdateGamePhase(ctx, 1, store.PhaseActive, store.GamePhaseUpdate{
		StartedAt: &startedAt,
		SubPhase:  &sub,
	})
	require.NoError(t, err)

	got, err := db.GetGame(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, store.PhaseActive, got.Phase)
	require.NotNil(t, got.SubPhase)
	require.Equal(t, store.SubPhaseCheckin, *got.SubPhase)
	require.NotNil(t, got.StartedAt)
}

func TestPlayerCheckInAndCounts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insertTestGame(t, db, 1)

	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xa", PlayerNumber: 1}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xb", PlayerNumber: 2}))

	require.NoError(t, db.SetPlayerCheckedIn(ctx, 1, "0xa", time.Now()))

	n, err := db.GetCheckedInCount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	total, err := db.GetPlayerCount(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestEliminationPipelineIsAtomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insertTestGame(t, db, 1)

	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xhunter", PlayerNumber: 1}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xtarget", PlayerNumber: 2}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xnext", PlayerNumber: 3}))

	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xhunter", "0xtarget"))
	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xtarget", "0xnext"))

	now := time.Now()
	err := db.WithTx(ctx, func(tx store.Store) error {
		if err := tx.InsertKill(ctx, store.Kill{
			ID: "kill-1", GameID: 1, HunterAddress: "0xhunter",
			TargetAddress: "0xtarget", Timestamp: now,
		}); err != nil {
			return err
		}
		if err := tx.IncrementPlayerKills(ctx, 1, "0xhunter"); err != nil {
			return err
		}
		if err := tx.EliminatePlayer(ctx, 1, "0xtarget", "0xhunter", store.EliminationKill, now); err != nil {
			return err
		}
		newTarget, err := tx.GetTargetAssignment(ctx, 1, "0xtarget")
		if err != nil {
			return err
		}
		if err := tx.RemoveTargetAssignment(ctx, 1, "0xtarget"); err != nil {
			return err
		}
		return tx.SetTargetAssignment(ctx, 1, "0xhunter", newTarget)
	})
	require.NoError(t, err)

	hunter, err := db.GetPlayer(ctx, 1, "0xhunter")
	require.NoError(t, err)
	require.Equal(t, 1, hunter.Kills)

	target, err := db.GetPlayer(ctx, 1, "0xtarget")
	require.NoError(t, err)
	require.False(t, target.IsAlive)

	newTarget, err := db.GetTargetAssignment(ctx, 1, "0xhunter")
	require.NoError(t, err)
	require.Equal(t, "0xnext", newTarget)
}

func TestEliminationPipelineRollsBackOnFailure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	insertTestGame(t, db, 1)
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xhunter", PlayerNumber: 1}))

	err := db.WithTx(ctx, func(tx store.Store) error {
		if err := tx.IncrementPlayerKills(ctx, 1, "0xhunter"); err != nil {
			return err
		}
		return errTestForcedRollback
	})
	require.Error(t, err)

	hunter, err := db.GetPlayer(ctx, 1, "0xhunter")
	require.NoError(t, err)
	require.Equal(t, 0, hunter.Kills)
}

func TestSyncState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, ok, err := db.GetSyncState(ctx, "lastBlock")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.SetSyncState(ctx, "lastBlock", "100"))
	require.NoError(t, db.SetSyncState(ctx, "lastBlock", "101"))

	v, ok, err := db.GetSyncState(ctx, "lastBlock")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "101", v)
}

var errTestForcedRollback = &forcedRollbackError{}

type forcedRollbackError struct{}

func (e *forcedRollbackError) Error() string { return "forced rollback for test" }
