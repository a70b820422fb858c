package gamemanager

import (
	"context"
	"sort"
	"time"

	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/targetchain"
)

func unixTime(sec int64) time.Time        { return time.Unix(sec, 0).UTC() }
func secondsDuration(sec int64) time.Duration { return time.Duration(sec) * time.Second }

// Start runs startup recovery and begins the event listener. Call once,
// after the store and chain client are connected.
func (m *Manager) Start(ctx context.Context, rebuildDB bool) error {
	constants, err := m.chain.GetPlatformConstants(ctx)
	if err != nil {
		return err
	}
	m.constants = constants

	if rebuildDB {
		if err := m.rebuildFromChain(ctx); err != nil {
			return err
		}
	}

	if err := m.resumeRegistrationGames(ctx); err != nil {
		return err
	}
	if err := m.resumeActiveGames(ctx); err != nil {
		return err
	}

	return m.listener.Start(ctx, rebuildDB)
}

// rebuildFromChain wipes all game rows and re-derives them from chain
// history for every gameId in [startGameId, nextGameId).
func (m *Manager) rebuildFromChain(ctx context.Context) error {
	if err := m.store.ResetGameData(ctx); err != nil {
		return err
	}

	next, err := m.chain.NextGameID(ctx)
	if err != nil {
		return err
	}

	for id := m.cfg.StartGameID; id < next; id++ {
		if err := m.rebuildOneGame(ctx, id); err != nil {
			log.Errorw("failed to rebuild game from chain", "game", id, "err", err)
		}
	}
	return nil
}

func (m *Manager) rebuildOneGame(ctx context.Context, gameID uint64) error {
	cfg, err := m.chain.GetGameConfig(ctx, gameID)
	if err != nil {
		return err
	}
	state, err := m.chain.GetGameState(ctx, gameID)
	if err != nil {
		return err
	}
	shrinks, err := m.chain.GetZoneShrinks(ctx, gameID)
	if err != nil {
		return err
	}

	game := store.Game{
		GameID:               gameID,
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
		Phase:                state.Phase,
		PlayerCount:          state.PlayerCount,
		TotalCollected:       state.TotalCollected,
		Winners:              state.Winners,
	}
	if state.StartedAt > 0 {
		t := unixTime(state.StartedAt)
		game.StartedAt = &t
	}
	if state.EndedAt > 0 {
		t := unixTime(state.EndedAt)
		game.EndedAt = &t
	}

	// Sub-phase is server-advisory, never chain-authoritative, so a chain
	// rebuild cannot recover it. An ACTIVE game is conservatively resumed at
	// sub-phase game with a freshly-seeded target chain; rebuild-idempotence
	// is unaffected since a second rebuild reseeds identically from the
	// same chain state.
	if game.Phase == store.PhaseActive {
		sub := store.SubPhaseGame
		game.SubPhase = &sub
		game.SubPhaseStartedAt = game.StartedAt
	}

	err = m.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.InsertGame(ctx, game); err != nil {
			return err
		}
		if err := tx.InsertZoneShrinks(ctx, gameID, shrinks); err != nil {
			return err
		}

		for number := uint32(1); number <= uint32(state.PlayerCount); number++ {
			p, err := m.chain.GetPlayerByNumber(ctx, gameID, number)
			if err != nil {
				return err
			}
			if err := tx.InsertPlayer(ctx, store.Player{
				GameID: gameID, Address: p.Address, PlayerNumber: p.PlayerNumber,
				IsAlive: p.IsAlive, Kills: p.Kills, CheckedIn: p.CheckedIn,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if game.Phase == store.PhaseActive {
		startedAt := m.clock.Now()
		if game.StartedAt != nil {
			startedAt = *game.StartedAt
		}
		if err := m.initTargetChainAndHeartbeat(ctx, gameID, startedAt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) resumeRegistrationGames(ctx context.Context) error {
	games, err := m.store.GetGamesInPhase(ctx, store.PhaseRegistration)
	if err != nil {
		return err
	}
	for _, g := range games {
		m.scheduleRegistrationTimer(g.GameID, g.RegistrationDeadline)
	}
	return nil
}

func (m *Manager) resumeActiveGames(ctx context.Context) error {
	games, err := m.store.GetGamesInPhase(ctx, store.PhaseActive)
	if err != nil {
		return err
	}
	now := m.clock.Now()

	for _, g := range games {
		if g.SubPhase == nil {
			continue
		}
		switch *g.SubPhase {
		case store.SubPhaseCheckin:
			m.scheduleCheckinTimer(g.GameID, g.ExpiryDeadline())
		case store.SubPhasePregame:
			if g.SubPhaseStartedAt != nil {
				m.schedulePregameTimer(g.GameID, *g.SubPhaseStartedAt)
			} else {
				m.schedulePregameTimer(g.GameID, now)
			}
		case store.SubPhaseGame:
			m.startGameRuntime(ctx, g, now)
		}
	}
	return nil
}

// initTargetChainAndHeartbeat builds the initial hunter→target cycle and
// seeds every alive player's heartbeat deadline, run once on entry into
// sub-phase game.
func (m *Manager) initTargetChainAndHeartbeat(ctx context.Context, gameID uint64, now time.Time) error {
	alive, err := m.store.GetAlivePlayers(ctx, gameID)
	if err != nil {
		return err
	}
	sort.Slice(alive, func(i, j int) bool { return alive[i].PlayerNumber < alive[j].PlayerNumber })

	addrs := make([]string, len(alive))
	for i, p := range alive {
		addrs[i] = p.Address
	}

	seed := targetchain.Seed(gameID, now.Unix(), nil)
	if err := targetchain.Build(ctx, m.store, gameID, addrs, seed); err != nil {
		return err
	}
	return m.store.InitPlayersHeartbeat(ctx, gameID, now)
}

// startGameRuntime builds and starts the per-game tick actor for a game
// that just entered (or is resuming) sub-phase game.
func (m *Manager) startGameRuntime(ctx context.Context, game store.Game, startedAt time.Time) {
	shrinks, err := m.store.GetZoneShrinks(ctx, game.GameID)
	if err != nil {
		log.Errorw("failed to load zone shrinks", "game", game.GameID, "err", err)
		return
	}

	center := geo.FromFixed(game.ZoneCenterLatFixed, game.ZoneCenterLngFixed)
	rt := newGameRuntime(game.GameID, startedAt, center, shrinks, m.cfg.ZoneGraceSeconds, m.clock)
	rt.zone.Resume(startedAt, m.clock.Now())

	rt.start(func() { m.tickGame(context.Background(), rt) })
	m.setRuntime(game.GameID, rt)
}

// announceTargets sends each hunter their per-player game:started message
// naming their assigned target ( "game:started (per-player, includes
// target)").
func (m *Manager) announceTargets(ctx context.Context, gameID uint64) {
	assignments, err := m.store.GetAllTargetAssignments(ctx, gameID)
	if err != nil {
		log.Errorw("failed to load target assignments", "game", gameID, "err", err)
		return
	}
	for hunter, target := range assignments {
		m.sendToAddress(ctx, gameID, hunter, message.EgressStarted,
			map[string]interface{}{"target": target})
	}
}
