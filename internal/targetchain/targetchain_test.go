package targetchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

func openTestDB(t *testing.T) *sqlstore.DB {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func insertGame(t *testing.T, db *sqlstore.DB, addrs []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseActive}))
	for i, a := range addrs {
		require.NoError(t, db.InsertPlayer(ctx, store.Player{
			GameID: 1, Address: a, PlayerNumber: uint32(i + 1), IsAlive: true,
		}))
	}
}

func TestBuildFormsSingleCycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addrs := []string{"0xa", "0xb", "0xc", "0xd"}
	insertGame(t, db, addrs)

	require.NoError(t, Build(ctx, db, 1, addrs, Seed(1, 1000, nil)))

	assignments, err := db.GetAllTargetAssignments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, assignments, 4)

	visited := map[string]bool{}
	cur := addrs[0]
	for i := 0; i < 4; i++ {
		require.False(t, visited[cur], "cycle revisited a node early")
		visited[cur] = true
		cur = assignments[cur]
	}
	require.Equal(t, addrs[0], cur, "cycle must return to start after visiting every node")
}

func TestSeedIsDeterministic(t *testing.T) {
	require.Equal(t, Seed(1, 1000, nil), Seed(1, 1000, nil))
	require.NotEqual(t, Seed(1, 1000, nil), Seed(2, 1000, nil))

	bh := []byte{0x01, 0x02, 0x03}
	require.Equal(t, Seed(1, 1000, bh), Seed(99, 99, bh), "block hash dominates when present")
}

func TestReassignRewiresAroundEliminated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addrs := []string{"0xa", "0xb", "0xc"}
	insertGame(t, db, addrs)

	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xa", "0xb"))
	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xb", "0xc"))
	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xc", "0xa"))

	require.NoError(t, db.WithTx(ctx, func(tx store.Store) error {
		return Reassign(ctx, tx, 1, "0xb")
	}))

	target, err := db.GetTargetAssignment(ctx, 1, "0xa")
	require.NoError(t, err)
	require.Equal(t, "0xc", target)

	_, err = db.GetTargetAssignment(ctx, 1, "0xb")
	require.Error(t, err)
}

func TestReassignLastTwoLeavesSurvivorWithNoTarget(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addrs := []string{"0xa", "0xb"}
	insertGame(t, db, addrs)

	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xa", "0xb"))
	require.NoError(t, db.SetTargetAssignment(ctx, 1, "0xb", "0xa"))

	require.NoError(t, db.WithTx(ctx, func(tx store.Store) error {
		return Reassign(ctx, tx, 1, "0xb")
	}))

	_, err := db.GetTargetAssignment(ctx, 1, "0xa")
	require.Error(t, err, "sole survivor must have no target once the game is over")
}
