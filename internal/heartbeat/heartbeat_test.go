package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/proof"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

func setup(t *testing.T) (*sqlstore.DB, context.Context) {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseActive}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xa", PlayerNumber: 1, IsAlive: true}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xb", PlayerNumber: 2, IsAlive: true, BluetoothID: "ble-b"}))
	require.NoError(t, db.InsertLocationPing(ctx, store.LocationPing{GameID: 1, Address: "0xb", Timestamp: time.Now()}))
	return db, ctx
}

func TestAcceptUpdatesBothPlayersDeadlines(t *testing.T) {
	db, ctx := setup(t)
	qr := proof.EncodeQR(1, 2)

	res, err := Accept(ctx, db, 1, "0xa", qr, geo.Point{}, []string{"ble-b"},
		Params{ProximityMeters: 100, BLERequired: true}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "0xa", res.ScannerAddress)
	require.Equal(t, "0xb", res.ScannedAddress)

	a, err := db.GetPlayer(ctx, 1, "0xa")
	require.NoError(t, err)
	require.NotNil(t, a.LastHeartbeatAt)

	b, err := db.GetPlayer(ctx, 1, "0xb")
	require.NoError(t, err)
	require.NotNil(t, b.LastHeartbeatAt)
}

func TestAcceptRejectsMissingBLE(t *testing.T) {
	db, ctx := setup(t)
	qr := proof.EncodeQR(1, 2)

	_, err := Accept(ctx, db, 1, "0xa", qr, geo.Point{}, nil,
		Params{ProximityMeters: 100, BLERequired: true}, time.Now())
	require.Error(t, err)
}

func TestAcceptRejectsOutOfRange(t *testing.T) {
	db, ctx := setup(t)
	qr := proof.EncodeQR(1, 2)
	far := geo.Point{Lat: 5, Lng: 5}

	_, err := Accept(ctx, db, 1, "0xa", qr, far, []string{"ble-b"},
		Params{ProximityMeters: 100, BLERequired: true}, time.Now())
	require.Error(t, err)
}

func TestSweepDisablesOneWay(t *testing.T) {
	db, ctx := setup(t)

	var d Disabler
	expired, err := d.Sweep(ctx, db, 1, Params{Interval: time.Hour, DisableThreshold: 4}, time.Now())
	require.NoError(t, err)
	require.Empty(t, expired)
	require.True(t, d.Disabled(), "two alive players is below the default threshold of 4")

	require.NoError(t, db.EliminatePlayer(ctx, 1, "0xb", "", store.EliminationZone, time.Now()))
	_, err = d.Sweep(ctx, db, 1, Params{Interval: time.Hour, DisableThreshold: 0}, time.Now())
	require.NoError(t, err)
	require.True(t, d.Disabled(), "auto-disable never re-enables")
}
