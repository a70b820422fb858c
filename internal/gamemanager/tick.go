package gamemanager

import (
	"context"
	"sort"
	"time"

	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/heartbeat"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/targetchain"
	"github.com/kalinbas/chain-assassin/internal/zone"
)

// pingFreshnessMultiple bounds how stale a location ping may be and
// still count as "fresh" for zone evaluation, expressed as a multiple of the
// configured GPS ping interval.
const pingFreshnessMultiple = 3

// tickGame runs one 1 Hz tick for gameID in the exact order specifies: zone
// shrink/evaluation, heartbeat sweep, then the alive-count ≤ 1 end check.
// Called with rt's lock already held.
func (m *Manager) tickGame(ctx context.Context, rt *gameRuntime) {
	now := m.clock.Now()

	pings, err := m.freshPings(ctx, rt.gameID, now)
	if err != nil {
		log.Errorw("failed to load pings for tick", "game", rt.gameID, "err", err)
		return
	}

	events, eliminations := rt.zone.Tick(rt.startedAt, now, pings)
	for _, ev := range events {
		m.sendZoneEvent(ctx, rt.gameID, ev)
	}
	for _, elim := range eliminations {
		m.eliminateNonCombat(ctx, rt, elim.Address, store.EliminationZone, now)
	}

	expired, err := rt.heartbeat.Sweep(ctx, m.store, rt.gameID, heartbeat.Params{
		Interval:         m.cfg.HeartbeatInterval(),
		DisableThreshold: m.cfg.HeartbeatDisableThreshold,
	}, now)
	if err != nil {
		log.Errorw("heartbeat sweep failed", "game", rt.gameID, "err", err)
	}
	for _, p := range expired {
		m.eliminateNonCombat(ctx, rt, p.Address, store.EliminationHeartbeat, now)
	}

	m.checkGameEnd(ctx, rt)
}

func (m *Manager) freshPings(ctx context.Context, gameID uint64, now time.Time) (map[string]geo.Point, error) {
	alive, err := m.store.GetAlivePlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}

	maxAge := time.Duration(pingFreshnessMultiple*m.cfg.GpsPingIntervalSeconds) * time.Second
	out := make(map[string]geo.Point)
	for _, p := range alive {
		ping, err := m.store.GetLatestLocationPing(ctx, gameID, p.Address)
		if err != nil {
			continue
		}
		if now.Sub(ping.Timestamp) > maxAge {
			continue
		}
		out[p.Address] = geo.FromFixed(ping.LatFixed, ping.LngFixed)
	}
	return out, nil
}

// sendZoneEvent forwards one zone.Tick notification to the transport
// layer: EventShrink broadcasts to the whole game, the per-player
// warning/ok events target only the affected player.
func (m *Manager) sendZoneEvent(ctx context.Context, gameID uint64, ev zone.Event) {
	var kind message.EgressKind
	switch ev.Kind {
	case zone.EventShrink:
		kind = message.EgressZoneShrink
	case zone.EventWarning:
		kind = message.EgressZoneWarning
	case zone.EventOk:
		kind = message.EgressZoneOk
	default:
		return
	}

	var target uint32
	if ev.Address != "" {
		if p, err := m.store.GetPlayer(ctx, gameID, ev.Address); err == nil {
			target = p.PlayerNumber
		}
	}

	m.send(message.Egress{
		Kind:   kind,
		GameID: gameID,
		Target: target,
		Payload: map[string]interface{}{
			"radiusMeters":     ev.RadiusMeters,
			"secondsRemaining": ev.SecondsRemaining,
		},
	})
}

// eliminateNonCombat applies a zone or heartbeat elimination: the same
// target-chain reassignment a kill triggers, minus the kill row and
// operator recordKill write.
func (m *Manager) eliminateNonCombat(ctx context.Context, rt *gameRuntime, address string, reason store.EliminationReason, now time.Time) {
	var aliveRemaining int
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.EliminatePlayer(ctx, rt.gameID, address, "", reason, now); err != nil {
			return err
		}
		if err := targetchain.Reassign(ctx, tx, rt.gameID, address); err != nil {
			return err
		}
		n, err := tx.GetAlivePlayerCount(ctx, rt.gameID)
		if err != nil {
			return err
		}
		aliveRemaining = n
		return nil
	})
	if err != nil {
		log.Errorw("non-combat elimination failed", "game", rt.gameID, "address", address, "err", err)
		return
	}

	if _, err := m.queue.Enqueue(ctx, store.ActionEliminatePlayer, rt.gameID, map[string]interface{}{
		"address": address,
		"reason":  string(reason),
	}); err != nil {
		log.Errorw("failed to enqueue eliminatePlayer", "game", rt.gameID, "err", err)
	}

	m.send(message.Egress{
		Kind:   message.EgressPlayerEliminated,
		GameID: rt.gameID,
		Payload: map[string]interface{}{
			"address": address, "reason": reason, "aliveRemaining": aliveRemaining,
		},
	})
}

// checkGameEnd transitions a game to ENDED once at most one player is
// alive, computing winners
func (m *Manager) checkGameEnd(ctx context.Context, rt *gameRuntime) {
	aliveCount, err := m.store.GetAlivePlayerCount(ctx, rt.gameID)
	if err != nil {
		log.Errorw("failed to read alive count", "game", rt.gameID, "err", err)
		return
	}
	if aliveCount > 1 {
		return
	}

	winners, err := computeWinners(ctx, m.store, rt.gameID)
	if err != nil {
		log.Errorw("failed to compute winners", "game", rt.gameID, "err", err)
		return
	}

	now := m.clock.Now()
	err = m.store.UpdateGamePhase(ctx, rt.gameID, store.PhaseEnded, store.GamePhaseUpdate{
		EndedAt: &now,
		Winners: &winners,
	})
	if err != nil {
		log.Errorw("failed to persist game end", "game", rt.gameID, "err", err)
		return
	}

	if _, err := m.queue.Enqueue(ctx, store.ActionEndGame, rt.gameID, map[string]interface{}{
		"first": winners.First, "second": winners.Second, "third": winners.Third,
		"topKiller": winners.TopKiller,
	}); err != nil {
		log.Errorw("failed to enqueue endGame", "game", rt.gameID, "err", err)
	}

	m.dropRuntime(rt.gameID)
	m.send(message.Egress{Kind: message.EgressGameEnded, GameID: rt.gameID, Payload: winners})
}

// computeWinners ranks players for the ended-game prize tuple: 1st is the
// remaining alive player (if any), 2nd/3rd come from
// the elimination order reversed (most recently eliminated first), and
// topKiller is the highest kill count, tie-broken by lowest player
// number.
func computeWinners(ctx context.Context, s store.Store, gameID uint64) (store.Winners, error) {
	players, err := s.GetPlayers(ctx, gameID)
	if err != nil {
		return store.Winners{}, err
	}

	var alive []store.Player
	var eliminated []store.Player
	for _, p := range players {
		if p.IsAlive {
			alive = append(alive, p)
		} else if p.EliminatedAt != nil {
			eliminated = append(eliminated, p)
		}
	}

	sort.Slice(eliminated, func(i, j int) bool {
		return eliminated[i].EliminatedAt.After(*eliminated[j].EliminatedAt)
	})

	var w store.Winners
	if len(alive) == 1 {
		w.First = alive[0].Address
	}
	if len(eliminated) > 0 {
		w.Second = eliminated[0].Address
	}
	if len(eliminated) > 1 {
		w.Third = eliminated[1].Address
	}

	sort.Slice(players, func(i, j int) bool {
		if players[i].Kills != players[j].Kills {
			return players[i].Kills > players[j].Kills
		}
		return players[i].PlayerNumber < players[j].PlayerNumber
	})
	if len(players) > 0 && players[0].Kills > 0 {
		w.TopKiller = players[0].Address
	}

	return w, nil
}
