package gamemanager

import (
	"context"
	"math"
	"time"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/heartbeat"
	"github.com/kalinbas/chain-assassin/internal/kill"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/proof"
	"github.com/kalinbas/chain-assassin/internal/store"
)

// lockedGame resolves the active runtime for gameID and takes its lock,
// the per-game serialization point shared by SubmitKill, HeartbeatScan and
// the tick task; CheckIn and Location do not go through it.
// Callers must call the returned unlock func exactly once.
func (m *Manager) lockedGame(gameID uint64) (*gameRuntime, func(), error) {
	rt, ok := m.runtime(gameID)
	if !ok {
		return nil, nil, gerrors.New("gamemanager.lockedGame", gerrors.CodeNotFound)
	}
	rt.mu.Lock()
	return rt, rt.mu.Unlock, nil
}

// CheckIn handles checkin(gameId, lat, lng, qrPayload?, bluetoothId?)
// action.
func (m *Manager) CheckIn(ctx context.Context, gameID uint64, address string, in message.CheckInPayload) error {
	const op = "gamemanager.CheckIn"

	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return gerrors.Wrap(op, gerrors.CodeNotFound, err)
	}
	if game.Phase != store.PhaseActive || game.SubPhase == nil || *game.SubPhase != store.SubPhaseCheckin {
		return gerrors.New(op, gerrors.CodeGameNotActive)
	}

	player, err := m.store.GetPlayer(ctx, gameID, address)
	if err != nil {
		return gerrors.Wrap(op, gerrors.CodeNotFound, err)
	}
	if player.CheckedIn {
		return gerrors.New(op, gerrors.CodeAlreadyCheckedIn)
	}

	now := m.clock.Now()
	point := geo.Point{Lat: in.Lat, Lng: in.Lng}

	checkedInCount, err := m.store.GetCheckedInCount(ctx, gameID)
	if err != nil {
		return err
	}
	quota := seedSlotQuota(game.PlayerCount)

	eligible := checkedInCount < quota
	if !eligible && in.QRPayload != "" {
		eligible, err = m.viralCheckinEligible(ctx, gameID, point, in.QRPayload)
		if err != nil {
			return err
		}
	}
	if !eligible {
		return gerrors.New(op, gerrors.CodeNotCheckedIn)
	}

	latFixed, lngFixed := point.ToFixed()
	if in.BluetoothID != "" {
		player.BluetoothID = in.BluetoothID
	}

	err = m.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SetPlayerCheckedIn(ctx, gameID, address, now); err != nil {
			return err
		}
		if in.BluetoothID != "" {
			if err := tx.SetPlayerConnectionState(ctx, gameID, address, store.ConnectionConnected, now); err != nil {
				return err
			}
		}
		return tx.InsertLocationPing(ctx, store.LocationPing{
			GameID: gameID, Address: address, LatFixed: latFixed, LngFixed: lngFixed,
			Timestamp: now, IsInZone: true,
		})
	})
	if err != nil {
		return err
	}

	checkedInCount++
	m.send(message.Egress{
		Kind: message.EgressCheckinUpdate, GameID: gameID,
		Payload: map[string]interface{}{"checkedInCount": checkedInCount, "playerCount": game.PlayerCount},
	})

	if checkedInCount >= minRequiredForPrizes(game, m.constants.MinPlayers) {
		m.advanceToPregame(ctx, gameID, now)
	}
	return nil
}

// seedSlotQuota is GPS-alone allowance.
func seedSlotQuota(playerCount int) int {
	q := int(math.Ceil(float64(playerCount) * 0.05))
	if q < 1 {
		q = 1
	}
	return q
}

// minRequiredForPrizes derives the checked-in threshold for entering
// pregame from the prize bps split.
func minRequiredForPrizes(game store.Game, minPlayers int) int {
	n := 0
	if game.BpsFirst > 0 {
		n++
	}
	if game.BpsSecond > 0 {
		n++
	}
	if game.BpsThird > 0 {
		n++
	}
	if game.BpsKills > 0 && n < 4 {
		n++
	}
	if n < minPlayers {
		n = minPlayers
	}
	return n
}

// viralCheckinEligible implements co-presence rule: the QR belongs to an
// already-checked-in player whose last known position is within
// killProximityMeters of the submitted position.
func (m *Manager) viralCheckinEligible(ctx context.Context, gameID uint64, at geo.Point, qrPayload string) (bool, error) {
	qrGameID, playerNumber, err := proof.DecodeQR(qrPayload)
	if err != nil || qrGameID != gameID {
		return false, nil
	}

	vouched, err := m.store.GetPlayerByNumber(ctx, gameID, playerNumber)
	if err != nil {
		return false, nil
	}
	if !vouched.CheckedIn {
		return false, nil
	}

	ping, err := m.store.GetLatestLocationPing(ctx, gameID, vouched.Address)
	if err != nil {
		return false, nil
	}
	vouchedPoint := geo.FromFixed(ping.LatFixed, ping.LngFixed)
	return geo.HaversineMeters(at, vouchedPoint) <= m.cfg.KillProximityMeters, nil
}

// advanceToPregame transitions ACTIVE/checkin → ACTIVE/pregame and arms
// the pregame-duration timer.
func (m *Manager) advanceToPregame(ctx context.Context, gameID uint64, now time.Time) {
	if err := m.store.UpdateSubPhase(ctx, gameID, store.SubPhasePregame, now); err != nil {
		log.Errorw("failed to advance to pregame", "game", gameID, "err", err)
		return
	}
	m.send(message.Egress{Kind: message.EgressPregameStarted, GameID: gameID})
	m.schedulePregameTimer(gameID, now)
}

// Location handles location(gameId, lat, lng) action: a bare position update
// consumed by the next zone tick.
func (m *Manager) Location(ctx context.Context, gameID uint64, address string, in message.LocationPayload) error {
	const op = "gamemanager.Location"

	if _, err := m.store.GetPlayer(ctx, gameID, address); err != nil {
		return gerrors.Wrap(op, gerrors.CodeNotFound, err)
	}

	point := geo.Point{Lat: in.Lat, Lng: in.Lng}
	latFixed, lngFixed := point.ToFixed()
	return m.store.InsertLocationPing(ctx, store.LocationPing{
		GameID: gameID, Address: address, LatFixed: latFixed, LngFixed: lngFixed,
		Timestamp: m.clock.Now(),
	})
}

// HeartbeatScan handles heartbeatScan action, delegating to
// internal/heartbeat and broadcasting the paired per-player results.
func (m *Manager) HeartbeatScan(ctx context.Context, gameID uint64, scannerAddress string, in message.HeartbeatScanPayload) error {
	_, unlock, err := m.lockedGame(gameID)
	if err != nil {
		return err
	}
	defer unlock()

	result, err := heartbeat.Accept(ctx, m.store, gameID, scannerAddress, in.QRPayload,
		geo.Point{Lat: in.Lat, Lng: in.Lng}, in.BLENearby,
		heartbeat.Params{
			ProximityMeters: m.cfg.HeartbeatProximityMeters,
			BLERequired:     m.cfg.BleRequired,
		}, m.clock.Now())
	if err != nil {
		m.sendToAddress(ctx, gameID, scannerAddress, message.EgressHeartbeatError,
			map[string]interface{}{"error": err.Error()})
		return err
	}

	m.sendToAddress(ctx, gameID, result.ScannerAddress, message.EgressHeartbeatSuccess,
		map[string]interface{}{"scanned": result.ScannedAddress})
	m.sendToAddress(ctx, gameID, result.ScannedAddress, message.EgressHeartbeatRefreshed,
		map[string]interface{}{"scanner": result.ScannerAddress})
	return nil
}

// SubmitKill handles submitKill action, delegating to internal/kill and
// broadcasting the resulting elimination and target rewire.
func (m *Manager) SubmitKill(ctx context.Context, gameID uint64, hunterAddress string, in message.SubmitKillPayload) error {
	rt, unlock, err := m.lockedGame(gameID)
	if err != nil {
		return err
	}
	defer unlock()

	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return gerrors.Wrap("gamemanager.SubmitKill", gerrors.CodeNotFound, err)
	}

	result, err := kill.Verify(ctx, m.store, m.queue, gameID, game, kill.Input{
		HunterAddress: hunterAddress,
		QRPayload:     in.QRPayload,
		HunterLat:     in.Lat,
		HunterLng:     in.Lng,
		BLENearby:     in.BLENearby,
	}, kill.Params{
		ProximityMeters: m.cfg.KillProximityMeters,
		BLERequired:     m.cfg.BleRequired,
	}, m.clock.Now())
	if err != nil {
		m.sendToAddress(ctx, gameID, hunterAddress, message.EgressError,
			map[string]interface{}{"error": err.Error()})
		return err
	}

	m.send(message.Egress{
		Kind: message.EgressKillRecorded, GameID: gameID,
		Payload: map[string]interface{}{
			"hunter": hunterAddress, "target": result.EliminatedTarget,
		},
	})
	m.send(message.Egress{
		Kind: message.EgressPlayerEliminated, GameID: gameID,
		Payload: map[string]interface{}{
			"address": result.EliminatedTarget, "reason": store.EliminationKill,
			"aliveRemaining": result.AliveRemaining,
		},
	})

	if newTarget, err := m.store.GetTargetAssignment(ctx, gameID, hunterAddress); err == nil {
		m.sendToAddress(ctx, gameID, hunterAddress, message.EgressTargetAssigned,
			map[string]interface{}{"target": newTarget})
		// the inherited target is now hunted by hunterAddress
		m.sendToAddress(ctx, gameID, newTarget, message.EgressHunterUpdated, nil)
	}

	if result.AliveRemaining <= 1 {
		m.checkGameEnd(ctx, rt)
	}
	return nil
}

// sendToAddress resolves address's player number and sends a targeted
// Egress, or does nothing if the address can't be resolved (e.g. an
// eliminated player that was just removed).
func (m *Manager) sendToAddress(ctx context.Context, gameID uint64, address string, kind message.EgressKind, payload interface{}) {
	p, err := m.store.GetPlayer(ctx, gameID, address)
	if err != nil {
		return
	}
	m.send(message.Egress{Kind: kind, GameID: gameID, Target: p.PlayerNumber, Payload: payload})
}
