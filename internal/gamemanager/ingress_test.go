package gamemanager

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/chainio"
	"github.com/kalinbas/chain-assassin/internal/config"
	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/listener"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/operator"
	"github.com/kalinbas/chain-assassin/internal/proof"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/store/sqlstore"
)

// fakeBroadcaster records every Egress sent through it, for assertions.
type fakeBroadcaster struct {
	sent []message.Egress
}

func (b *fakeBroadcaster) Send(msg message.Egress) { b.sent = append(b.sent, msg) }

func (b *fakeBroadcaster) kinds() []message.EgressKind {
	out := make([]message.EgressKind, len(b.sent))
	for i, m := range b.sent {
		out[i] = m.Kind
	}
	return out
}

// fakeOperatorClient answers every operator write with a fixed hash; the
// ingress/tick tests only care that a write was enqueued and persisted, not
// its chain round-trip.
type fakeOperatorClient struct{}

func (fakeOperatorClient) CreateGame(ctx context.Context, nonce uint64, cfg chainio.GameConfig, shrinks []store.ZoneShrink) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) StartGame(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) RecordKill(ctx context.Context, nonce uint64, gameID uint64, k store.Kill) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) EliminatePlayer(ctx context.Context, nonce uint64, gameID uint64, address string, reason store.EliminationReason) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) EndGame(ctx context.Context, nonce uint64, gameID uint64, winners store.Winners) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) TriggerCancellation(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) TriggerExpiry(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) WithdrawCreatorFees(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) WithdrawPlatformFees(ctx context.Context, nonce uint64, gameID uint64) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) FundWallet(ctx context.Context, nonce uint64, address string, amountWei string) (chainio.WriteResult, error) {
	return chainio.WriteResult{TxHash: "0xfake"}, nil
}
func (fakeOperatorClient) GetTxStatus(ctx context.Context, txHash string) (chainio.TxStatus, error) {
	return chainio.TxStatus{Confirmed: true}, nil
}

// newTestManager builds a Manager over a fresh in-memory store and a real,
// started operator.Queue, with no chain client and a listener over a nil
// source that is never started — every ingress/tick path under test here
// never touches either.
func newTestManager(t *testing.T, cfg config.Config) (*Manager, *sqlstore.DB, *fakeBroadcaster) {
	t.Helper()
	db, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewDefaultClock()
	q := operator.New(fakeOperatorClient{}, db, clk, 0)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)

	bc := &fakeBroadcaster{}
	m := New(db, nil, q, nil, clk, bc, cfg, listener.Config{})
	return m, db, bc
}

func baseCfg() config.Config {
	cfg := config.Default()
	cfg.KillProximityMeters = 100
	cfg.HeartbeatProximityMeters = 100
	cfg.BleRequired = true
	return cfg
}

func insertCheckinGame(t *testing.T, db *sqlstore.DB, playerCount int) store.Game {
	t.Helper()
	ctx := context.Background()
	sub := store.SubPhaseCheckin
	game := store.Game{
		GameID: 1, Phase: store.PhaseActive, SubPhase: &sub,
		PlayerCount: playerCount,
		BpsFirst:    5000, BpsSecond: 2000, BpsThird: 1000, BpsKills: 1500, BpsCreator: 500,
	}
	require.NoError(t, db.InsertGame(ctx, game))
	for i := 1; i <= playerCount; i++ {
		require.NoError(t, db.InsertPlayer(ctx, store.Player{
			GameID: 1, Address: addrFor(i), PlayerNumber: uint32(i), IsAlive: true,
		}))
	}
	return game
}

func addrFor(n int) string {
	return "0xplayer" + string(rune('a'+n-1))
}

func TestCheckInRejectsWhenGameNotInCheckin(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseRegistration}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xa", PlayerNumber: 1, IsAlive: true}))

	err := m.CheckIn(ctx, 1, "0xa", message.CheckInPayload{Lat: 1, Lng: 1})
	require.True(t, gerrors.Is(err, gerrors.CodeGameNotActive))
}

func TestCheckInRejectsAlreadyCheckedIn(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	insertCheckinGame(t, db, 20)
	require.NoError(t, db.SetPlayerCheckedIn(ctx, 1, addrFor(1), time.Now()))

	err := m.CheckIn(ctx, 1, addrFor(1), message.CheckInPayload{Lat: 1, Lng: 1})
	require.True(t, gerrors.Is(err, gerrors.CodeAlreadyCheckedIn))
}

func TestCheckInSeedSlotEligibleWithinQuota(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	// quota = ceil(20*0.05) = 1, so the very first GPS-only check-in succeeds.
	insertCheckinGame(t, db, 20)

	err := m.CheckIn(ctx, 1, addrFor(1), message.CheckInPayload{Lat: 1, Lng: 1})
	require.NoError(t, err)

	p, err := db.GetPlayer(ctx, 1, addrFor(1))
	require.NoError(t, err)
	require.True(t, p.CheckedIn)
}

func TestCheckInRejectsBeyondQuotaWithoutQR(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	insertCheckinGame(t, db, 20)

	require.NoError(t, m.CheckIn(ctx, 1, addrFor(1), message.CheckInPayload{Lat: 1, Lng: 1}))
	err := m.CheckIn(ctx, 1, addrFor(2), message.CheckInPayload{Lat: 1, Lng: 1})
	require.True(t, gerrors.Is(err, gerrors.CodeNotCheckedIn))
}

func TestCheckInViralQRAcceptsCoPresentPlayer(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	insertCheckinGame(t, db, 20)
	require.NoError(t, m.CheckIn(ctx, 1, addrFor(1), message.CheckInPayload{Lat: 1, Lng: 1}))

	qr := proof.EncodeQR(1, 1)
	err := m.CheckIn(ctx, 1, addrFor(2), message.CheckInPayload{Lat: 1, Lng: 1, QRPayload: qr})
	require.NoError(t, err)
}

func TestCheckInAdvancesToPregameOnceThresholdReached(t *testing.T) {
	m, db, bc := newTestManager(t, baseCfg())
	ctx := context.Background()
	// bps split gives 4 required winners (first/second/third/topKiller), so
	// minRequiredForPrizes is 4 and all 4 players must check in.
	insertCheckinGame(t, db, 4)

	for i := 1; i <= 4; i++ {
		qr := ""
		if i > 1 {
			// only the seed slot is GPS-eligible; everyone else vouches off
			// player 1 who is already checked in and standing in the same spot.
			qr = proof.EncodeQR(1, 1)
		}
		require.NoError(t, m.CheckIn(ctx, 1, addrFor(i), message.CheckInPayload{Lat: 1, Lng: 1, QRPayload: qr}))
	}

	game, err := db.GetGame(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, game.SubPhase)
	require.Equal(t, store.SubPhasePregame, *game.SubPhase)

	require.Contains(t, bc.kinds(), message.EgressPregameStarted)
}

func TestLocationRejectsUnknownPlayer(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseActive}))

	err := m.Location(ctx, 1, "0xghost", message.LocationPayload{Lat: 1, Lng: 1})
	require.True(t, gerrors.Is(err, gerrors.CodeNotFound))
}

func TestLocationPersistsLatestPing(t *testing.T) {
	m, db, _ := newTestManager(t, baseCfg())
	ctx := context.Background()
	require.NoError(t, db.InsertGame(ctx, store.Game{GameID: 1, Phase: store.PhaseActive}))
	require.NoError(t, db.InsertPlayer(ctx, store.Player{GameID: 1, Address: "0xa", PlayerNumber: 1, IsAlive: true}))

	require.NoError(t, m.Location(ctx, 1, "0xa", message.LocationPayload{Lat: 37.7, Lng: -122.4}))

	ping, err := db.GetLatestLocationPing(ctx, 1, "0xa")
	require.NoError(t, err)
	require.NotZero(t, ping.LatFixed)
}
