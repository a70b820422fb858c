package gamemanager

import (
	"context"
	"sync"
	"time"

	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/store"
)

// cancelTimer wraps a clock.Clock-driven one-shot wait with idempotent
// cancellation, used for the registration deadline, the checkin-expiry
// upper bound, and the pregame-duration timer. Built on clock.Clock rather
// than time.AfterFunc so tests can drive deadlines deterministically,
// matching the rest of the core's clock discipline.
type cancelTimer struct {
	quit chan struct{}
	once sync.Once
}

func (m *Manager) armTimer(delay time.Duration, fn func()) *cancelTimer {
	if delay < 0 {
		delay = 0
	}
	ct := &cancelTimer{quit: make(chan struct{})}
	ch := m.clock.TickAfter(delay)
	go func() {
		select {
		case <-ch:
			fn()
		case <-ct.quit:
		}
	}()
	return ct
}

func (ct *cancelTimer) stop() { ct.once.Do(func() { close(ct.quit) }) }

// scheduleRegistrationTimer arms (or rearms on startup recovery) the
// one-shot deadline timer for a REGISTRATION game.
func (m *Manager) scheduleRegistrationTimer(gameID uint64, deadline time.Time) {
	delay := deadline.Sub(m.clock.Now())
	ct := m.armTimer(delay, func() {
		m.onRegistrationDeadline(context.Background(), gameID)
	})

	m.mu.Lock()
	if old, ok := m.regTimers[gameID]; ok {
		old.stop()
	}
	m.regTimers[gameID] = ct
	m.mu.Unlock()
}

// onRegistrationDeadline handles REGISTRATION exit edges:
// promote to ACTIVE/checkin if enough players registered, else cancel.
func (m *Manager) onRegistrationDeadline(ctx context.Context, gameID uint64) {
	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		log.Errorw("registration deadline: game not found", "game", gameID, "err", err)
		return
	}
	if game.Phase != store.PhaseRegistration {
		return
	}

	if game.PlayerCount < m.constants.MinPlayers {
		m.cancelGame(ctx, gameID, store.ActionTriggerCancellation)
		return
	}

	now := m.clock.Now()
	checkin := store.SubPhaseCheckin
	err = m.store.UpdateGamePhase(ctx, gameID, store.PhaseActive, store.GamePhaseUpdate{
		StartedAt: &now, SubPhase: &checkin, SubPhaseStartedAt: &now,
	})
	if err != nil {
		log.Errorw("failed to enter checkin", "game", gameID, "err", err)
		return
	}

	if _, err := m.queue.Enqueue(ctx, store.ActionStartGame, gameID, nil); err != nil {
		log.Errorw("failed to enqueue startGame", "game", gameID, "err", err)
	}

	m.send(message.Egress{Kind: message.EgressCheckinStarted, GameID: gameID})
	m.scheduleCheckinTimer(gameID, game.ExpiryDeadline())
}

// scheduleCheckinTimer arms the upper-bound timer for ACTIVE/checkin,
// keyed off the game's expiry deadline.
func (m *Manager) scheduleCheckinTimer(gameID uint64, deadline time.Time) {
	delay := deadline.Sub(m.clock.Now())
	ct := m.armTimer(delay, func() {
		m.onCheckinExpiry(context.Background(), gameID)
	})

	m.mu.Lock()
	if old, ok := m.checkinTimers[gameID]; ok {
		old.stop()
	}
	m.checkinTimers[gameID] = ct
	m.mu.Unlock()
}

func (m *Manager) onCheckinExpiry(ctx context.Context, gameID uint64) {
	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		return
	}
	if game.Phase != store.PhaseActive || game.SubPhase == nil || *game.SubPhase != store.SubPhaseCheckin {
		return
	}
	m.cancelGame(ctx, gameID, store.ActionTriggerExpiry)
}

// cancelGame marks a game CANCELLED and enqueues the triggering write.
func (m *Manager) cancelGame(ctx context.Context, gameID uint64, action store.OperatorTxAction) {
	now := m.clock.Now()
	if err := m.store.UpdateGamePhase(ctx, gameID, store.PhaseCancelled, store.GamePhaseUpdate{EndedAt: &now}); err != nil {
		log.Errorw("failed to cancel game", "game", gameID, "err", err)
		return
	}
	if _, err := m.queue.Enqueue(ctx, action, gameID, nil); err != nil {
		log.Errorw("failed to enqueue cancellation", "game", gameID, "action", action, "err", err)
	}
	m.cancelTimersFor(gameID)
	m.dropRuntime(gameID)
	m.send(message.Egress{Kind: message.EgressGameCancelled, GameID: gameID})
}

func (m *Manager) cancelTimersFor(gameID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.regTimers[gameID]; ok {
		t.stop()
		delete(m.regTimers, gameID)
	}
	if t, ok := m.checkinTimers[gameID]; ok {
		t.stop()
		delete(m.checkinTimers, gameID)
	}
	if t, ok := m.pregameTimers[gameID]; ok {
		t.stop()
		delete(m.pregameTimers, gameID)
	}
}

// schedulePregameTimer arms the pregame-duration timer, firing the
// ACTIVE/pregame → ACTIVE/game transition.
func (m *Manager) schedulePregameTimer(gameID uint64, pregameStartedAt time.Time) {
	fireAt := pregameStartedAt.Add(m.cfg.PregameDuration())
	delay := fireAt.Sub(m.clock.Now())
	ct := m.armTimer(delay, func() {
		m.onPregameElapsed(context.Background(), gameID)
	})

	m.mu.Lock()
	if old, ok := m.pregameTimers[gameID]; ok {
		old.stop()
	}
	m.pregameTimers[gameID] = ct
	m.mu.Unlock()
}

// onPregameElapsed transitions ACTIVE/pregame → ACTIVE/game: builds the
// target chain, initializes heartbeat deadlines, and starts the 1 Hz
// tick.
func (m *Manager) onPregameElapsed(ctx context.Context, gameID uint64) {
	game, err := m.store.GetGame(ctx, gameID)
	if err != nil {
		log.Errorw("pregame elapsed: game not found", "game", gameID, "err", err)
		return
	}
	if game.Phase != store.PhaseActive || game.SubPhase == nil || *game.SubPhase != store.SubPhasePregame {
		return
	}

	now := m.clock.Now()
	if err := m.store.UpdateSubPhase(ctx, gameID, store.SubPhaseGame, now); err != nil {
		log.Errorw("failed to enter game subphase", "game", gameID, "err", err)
		return
	}

	if err := m.initTargetChainAndHeartbeat(ctx, gameID, now); err != nil {
		log.Errorw("failed to initialize game subphase", "game", gameID, "err", err)
		return
	}

	m.startGameRuntime(ctx, game, now)
	m.send(message.Egress{Kind: message.EgressStartedBroadcast, GameID: gameID})
	m.announceTargets(ctx, gameID)
}
