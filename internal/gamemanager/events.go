package gamemanager

import (
	"context"

	"github.com/kalinbas/chain-assassin/internal/listener"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/targetchain"
)

// handleChainEvent is the reaction table describes, passed to
// internal/listener.New as its handle callback. Every branch is written to
// be idempotent: the server's own state transitions usually arrive before
// the corresponding confirmation event, so most reactions are a no-op mirror
// check.
func (m *Manager) handleChainEvent(ev listener.ChainEvent) error {
	ctx := context.Background()

	switch ev.Kind {
	case listener.EventGameCreated:
		return m.onGameCreated(ctx, ev)
	case listener.EventPlayerRegistered:
		return m.onPlayerRegistered(ctx, ev)
	case listener.EventGameStarted:
		return m.onGameStarted(ctx, ev)
	case listener.EventKillRecorded:
		return m.onKillRecorded(ctx, ev)
	case listener.EventPlayerEliminated:
		return m.onPlayerEliminated(ctx, ev)
	case listener.EventGameEnded:
		return m.onGameEnded(ctx, ev)
	case listener.EventGameCancelled:
		return m.onGameCancelled(ctx, ev)
	}
	return nil
}

func (m *Manager) onGameCreated(ctx context.Context, ev listener.ChainEvent) error {
	if _, err := m.store.GetGame(ctx, ev.GameID); err == nil {
		return nil // already mirrored
	}

	cfg, err := m.chain.GetGameConfig(ctx, ev.GameID)
	if err != nil {
		return err
	}
	shrinks, err := m.chain.GetZoneShrinks(ctx, ev.GameID)
	if err != nil {
		return err
	}

	game := store.Game{
		GameID:               ev.GameID,
		Title:                cfg.Title,
		EntryFeeWei:          cfg.EntryFeeWei,
		BaseRewardWei:        cfg.BaseRewardWei,
		BpsFirst:             cfg.BpsFirst,
		BpsSecond:            cfg.BpsSecond,
		BpsThird:             cfg.BpsThird,
		BpsKills:             cfg.BpsKills,
		BpsCreator:           cfg.BpsCreator,
		CreatorAddress:       cfg.CreatorAddress,
		ZoneCenterLatFixed:   cfg.ZoneCenterLatFixed,
		ZoneCenterLngFixed:   cfg.ZoneCenterLngFixed,
		MeetingLatFixed:      cfg.MeetingLatFixed,
		MeetingLngFixed:      cfg.MeetingLngFixed,
		RegistrationDeadline: unixTime(cfg.RegistrationDeadline),
		GameDate:             unixTime(cfg.GameDate),
		MaxDuration:          secondsDuration(cfg.MaxDurationSeconds),
		Phase:                store.PhaseRegistration,
	}

	if err := m.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.InsertGame(ctx, game); err != nil {
			return err
		}
		return tx.InsertZoneShrinks(ctx, ev.GameID, shrinks)
	}); err != nil {
		return err
	}

	m.scheduleRegistrationTimer(ev.GameID, game.RegistrationDeadline)
	return nil
}

func (m *Manager) onPlayerRegistered(ctx context.Context, ev listener.ChainEvent) error {
	if _, err := m.store.GetPlayer(ctx, ev.GameID, ev.Address); err == nil {
		return nil
	}

	if err := m.store.InsertPlayer(ctx, store.Player{
		GameID: ev.GameID, Address: ev.Address, PlayerNumber: ev.PlayerNumber, IsAlive: true,
	}); err != nil {
		return err
	}
	if err := m.store.UpdatePlayerCount(ctx, ev.GameID, ev.PlayerCount, ev.CollectedWei); err != nil {
		return err
	}

	m.send(message.Egress{Kind: message.EgressPlayerRegistered, GameID: ev.GameID,
		Payload: map[string]interface{}{"playerNumber": ev.PlayerNumber, "playerCount": ev.PlayerCount}})
	return nil
}

func (m *Manager) onGameStarted(ctx context.Context, ev listener.ChainEvent) error {
	game, err := m.store.GetGame(ctx, ev.GameID)
	if err != nil {
		return err
	}
	if game.Phase != store.PhaseRegistration {
		return nil
	}

	now := m.clock.Now()
	checkin := store.SubPhaseCheckin
	if err := m.store.UpdateGamePhase(ctx, ev.GameID, store.PhaseActive, store.GamePhaseUpdate{
		StartedAt: &now, SubPhase: &checkin, SubPhaseStartedAt: &now,
	}); err != nil {
		return err
	}

	m.cancelTimersFor(ev.GameID)
	m.send(message.Egress{Kind: message.EgressCheckinStarted, GameID: ev.GameID})
	m.scheduleCheckinTimer(ev.GameID, game.ExpiryDeadline())
	return nil
}

func (m *Manager) onKillRecorded(ctx context.Context, ev listener.ChainEvent) error {
	kills, err := m.store.GetKills(ctx, ev.GameID)
	if err != nil {
		return err
	}
	for _, k := range kills {
		if k.HunterAddress == ev.Address && k.TargetAddress == ev.TargetAddress && k.TxHash == "" {
			return m.store.UpdateKillTxHash(ctx, k.ID, ev.TxHash)
		}
	}
	log.Warnw("KillRecorded event with no matching local kill row", "game", ev.GameID, "hunter", ev.Address)
	return nil
}

func (m *Manager) onPlayerEliminated(ctx context.Context, ev listener.ChainEvent) error {
	p, err := m.store.GetPlayer(ctx, ev.GameID, ev.Address)
	if err != nil {
		return err
	}
	if !p.IsAlive {
		return nil // already mirrored locally
	}

	now := m.clock.Now()
	return m.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.EliminatePlayer(ctx, ev.GameID, ev.Address, "", store.EliminationReason(ev.Reason), now); err != nil {
			return err
		}
		return targetchain.Reassign(ctx, tx, ev.GameID, ev.Address)
	})
}

func (m *Manager) onGameEnded(ctx context.Context, ev listener.ChainEvent) error {
	game, err := m.store.GetGame(ctx, ev.GameID)
	if err != nil {
		return err
	}
	if game.Phase == store.PhaseEnded {
		return nil
	}

	now := m.clock.Now()
	winners := store.Winners{First: ev.First, Second: ev.Second, Third: ev.Third, TopKiller: ev.TopKiller}
	if err := m.store.UpdateGamePhase(ctx, ev.GameID, store.PhaseEnded, store.GamePhaseUpdate{
		EndedAt: &now, Winners: &winners,
	}); err != nil {
		return err
	}

	m.cancelTimersFor(ev.GameID)
	m.dropRuntime(ev.GameID)
	m.send(message.Egress{Kind: message.EgressGameEnded, GameID: ev.GameID, Payload: winners})
	return nil
}

func (m *Manager) onGameCancelled(ctx context.Context, ev listener.ChainEvent) error {
	game, err := m.store.GetGame(ctx, ev.GameID)
	if err != nil {
		return err
	}
	if game.Phase == store.PhaseCancelled {
		return nil
	}

	now := m.clock.Now()
	if err := m.store.UpdateGamePhase(ctx, ev.GameID, store.PhaseCancelled, store.GamePhaseUpdate{EndedAt: &now}); err != nil {
		return err
	}

	m.cancelTimersFor(ev.GameID)
	m.dropRuntime(ev.GameID)
	m.send(message.Egress{Kind: message.EgressGameCancelled, GameID: ev.GameID})
	return nil
}
