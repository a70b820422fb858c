package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

type fakeSource struct {
	mu      sync.Mutex
	latest  uint64
	events  map[uint64][]ChainEvent // by block
	subCh   chan ChainEvent
}

func (f *fakeSource) LatestBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeSource) EventsInRange(ctx context.Context, from, to uint64) ([]ChainEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ChainEvent
	for b := from; b <= to; b++ {
		out = append(out, f.events[b]...)
	}
	return out, nil
}

func (f *fakeSource) Subscribe(ctx context.Context) (<-chan ChainEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCh = make(chan ChainEvent, 16)
	return f.subCh, nil
}

func openTestDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBackfillDeliversInOrderAndPersistsCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	src := &fakeSource{
		latest: 3,
		events: map[uint64][]ChainEvent{
			1: {{Block: 1, Kind: EventGameCreated, GameID: 1}},
			3: {{Block: 3, Kind: EventGameStarted, GameID: 1}},
		},
	}

	var got []ChainEvent
	l := New(src, db, clock.NewDefaultClock(), Config{
		StaleAfter:      time.Hour,
		RestartCooldown: time.Minute,
	}, func(ev ChainEvent) error {
		got = append(got, ev)
		return nil
	})
	defer l.Stop()

	require.NoError(t, l.Start(ctx, false))

	require.Len(t, got, 2)
	require.Equal(t, EventGameCreated, got[0].Kind)
	require.Equal(t, EventGameStarted, got[1].Kind)

	v, ok, err := db.GetSyncState(ctx, syncStateKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "3", v)
}

func TestLiveEventsAdvanceCursor(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := &fakeSource{latest: 0, events: map[uint64][]ChainEvent{}}

	gotCh := make(chan ChainEvent, 4)
	l := New(src, db, clock.NewDefaultClock(), Config{
		StaleAfter:      time.Hour,
		RestartCooldown: time.Minute,
	}, func(ev ChainEvent) error {
		gotCh <- ev
		return nil
	})
	defer l.Stop()

	require.NoError(t, l.Start(ctx, false))

	src.subCh <- ChainEvent{Block: 5, Kind: EventKillRecorded, GameID: 1}

	select {
	case ev := <-gotCh:
		require.Equal(t, EventKillRecorded, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}

	require.Eventually(t, func() bool {
		v, ok, _ := db.GetSyncState(ctx, syncStateKey)
		return ok && v == "5"
	}, time.Second, 5*time.Millisecond)
}
