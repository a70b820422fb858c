package gamemanager

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/chainio"
	"github.com/kalinbas/chain-assassin/internal/config"
	"github.com/kalinbas/chain-assassin/internal/listener"
	"github.com/kalinbas/chain-assassin/internal/operator"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

// fakeSource is a listener.Source with no history and no live events, so
// Manager.Start's listener.Start call backfills nothing and returns
// immediately instead of blocking on a real chain subscription.
type fakeSource struct{}

func (fakeSource) LatestBlock(ctx context.Context) (uint64, error) { return 0, nil }
func (fakeSource) EventsInRange(ctx context.Context, from, to uint64) ([]listener.ChainEvent, error) {
	return nil, nil
}
func (fakeSource) Subscribe(ctx context.Context) (<-chan listener.ChainEvent, error) {
	ch := make(chan listener.ChainEvent)
	close(ch)
	return ch, nil
}

func newLifecycleManager(t *testing.T, chain ChainReader) (*Manager, *sqlstore.DB, *fakeBroadcaster) {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewDefaultClock()
	q := operator.New(fakeOperatorClient{}, db, clk, 0)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)

	bc := &fakeBroadcaster{}
	m := New(db, chain, q, fakeSource{}, clk, bc, config.Default(), listener.Config{
		StaleAfter: time.Hour, RestartCooldown: time.Hour,
	})
	t.Cleanup(m.Shutdown)
	return m, db, bc
}

func TestStartResumesCheckinSubPhaseTimer(t *testing.T) {
	chain := fakeChainReader{}
	m, db, _ := newLifecycleManager(t, chain)
	ctx := context.Background()

	sub := store.SubPhaseCheckin
	require.NoError(t, db.InsertGame(ctx, store.Game{
		GameID: 1, Phase: store.PhaseActive, SubPhase: &sub,
		StartedAt: timePtr(time.Now()), SubPhaseStartedAt: timePtr(time.Now()),
		MaxDuration: time.Hour,
	}))

	require.NoError(t, m.Start(ctx, false))

	// resumeActiveGames arms a checkin timer rather than a live gameRuntime:
	// no runtime should be registered for a checkin-phase game.
	_, ok := m.runtime(1)
	require.False(t, ok)
}

func TestStartResumesGameSubPhaseWithLiveRuntime(t *testing.T) {
	chain := fakeChainReader{}
	m, db, _ := newLifecycleManager(t, chain)
	ctx := context.Background()

	sub := store.SubPhaseGame
	require.NoError(t, db.InsertGame(ctx, store.Game{
		GameID: 1, Phase: store.PhaseActive, SubPhase: &sub,
		StartedAt: timePtr(time.Now()),
	}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xa", PlayerNumber: 1, IsAlive: true}))

	require.NoError(t, m.Start(ctx, false))

	rt, ok := m.runtime(1)
	require.True(t, ok)
	require.Equal(t, uint64(1), rt.gameID)
}

func TestRebuildFromChainRecreatesGame(t *testing.T) {
	chain := fakeChainReader{
		cfg: chainio.GameConfig{
			GameID: 1, Title: "rebuilt", BpsFirst: 5000, BpsSecond: 2000, BpsThird: 1000, BpsKills: 1500, BpsCreator: 500,
		},
		state:      chainio.GameState{Phase: store.PhaseRegistration},
		nextGameID: 2, // rebuildFromChain walks [StartGameID, nextGameID), so this covers gameID 1
	}
	m, db, _ := newLifecycleManager(t, chain)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx, true)) // rebuildDB = true

	game, err := db.GetGame(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "rebuilt", game.Title)
	require.Equal(t, store.PhaseRegistration, game.Phase)
}

func timePtr(t time.Time) *time.Time { return &t }
