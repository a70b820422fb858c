// Package gamemanager is the game server's keystone (C11): the
// phase/sub-phase state machine, the per-second tick that drives the
// zone tracker and heartbeat sweep, startup recovery, and the chain-event
// reactions that keep the store in sync with the settlement chain. Its
// per-game actor shape is grounded on server.go's top-level server
// struct — one long-lived task per entity, each with its own shutdown
// channel and, here, its own ticker — generalized from one server-wide
// peer/query bus to one runtime per active game.
package gamemanager

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/kalinbas/chain-assassin/internal/chainio"
	"github.com/kalinbas/chain-assassin/internal/config"
	"github.com/kalinbas/chain-assassin/internal/listener"
	"github.com/kalinbas/chain-assassin/internal/logging"
	"github.com/kalinbas/chain-assassin/internal/message"
	"github.com/kalinbas/chain-assassin/internal/operator"
	"github.com/kalinbas/chain-assassin/internal/store"
)

var log = logging.Named("GAME")

// ChainReader is the subset of chainio.Client the manager reads from.
// Defined here, not imported from chainio, so tests can fake it.
type ChainReader interface {
	GetGameConfig(ctx context.Context, gameID uint64) (chainio.GameConfig, error)
	GetGameState(ctx context.Context, gameID uint64) (chainio.GameState, error)
	GetZoneShrinks(ctx context.Context, gameID uint64) ([]store.ZoneShrink, error)
	GetPlayer(ctx context.Context, gameID uint64, address string) (chainio.PlayerOnChain, error)
	GetPlayerByNumber(ctx context.Context, gameID uint64, playerNumber uint32) (chainio.PlayerOnChain, error)
	GetPlatformConstants(ctx context.Context) (chainio.PlatformConstants, error)
	NextGameID(ctx context.Context) (uint64, error)
}

// Broadcaster delivers one Egress message to its transport-layer
// collaborator; the transport itself is out of scope.
type Broadcaster interface {
	Send(msg message.Egress)
}

// Manager owns every active and pending game's runtime state. One
// process hosts exactly one Manager.
type Manager struct {
	store     store.Store
	chain     ChainReader
	queue     *operator.Queue
	listener  *listener.Listener
	clock     clock.Clock
	broadcast Broadcaster
	cfg       config.Config

	constants chainio.PlatformConstants

	mu            sync.Mutex
	games         map[uint64]*gameRuntime
	regTimers     map[uint64]*cancelTimer
	checkinTimers map[uint64]*cancelTimer
	pregameTimers map[uint64]*cancelTimer
}

// New builds a Manager and the event listener that drives it, wiring
// handleChainEvent as the listener's reaction callback. Call Start to run
// startup recovery and begin the listener.
func New(
	st store.Store, chain ChainReader, queue *operator.Queue, source listener.Source,
	clk clock.Clock, broadcast Broadcaster, cfg config.Config, listenerCfg listener.Config,
) *Manager {
	m := &Manager{
		store:         st,
		chain:         chain,
		queue:         queue,
		clock:         clk,
		broadcast:     broadcast,
		cfg:           cfg,
		games:         make(map[uint64]*gameRuntime),
		regTimers:     make(map[uint64]*cancelTimer),
		checkinTimers: make(map[uint64]*cancelTimer),
		pregameTimers: make(map[uint64]*cancelTimer),
	}
	m.listener = listener.New(source, st, clk, listenerCfg, m.handleChainEvent)
	return m
}

func (m *Manager) send(msg message.Egress) {
	if m.broadcast != nil {
		m.broadcast.Send(msg)
	}
}

// runtime returns the live gameRuntime for gameID, if one is active.
func (m *Manager) runtime(gameID uint64) (*gameRuntime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.games[gameID]
	return rt, ok
}

func (m *Manager) setRuntime(gameID uint64, rt *gameRuntime) {
	m.mu.Lock()
	m.games[gameID] = rt
	m.mu.Unlock()
}

func (m *Manager) dropRuntime(gameID uint64) {
	m.mu.Lock()
	rt, ok := m.games[gameID]
	delete(m.games, gameID)
	m.mu.Unlock()
	if ok {
		rt.stop()
	}
}

// Shutdown stops every per-game runtime and the event listener.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	games := make([]*gameRuntime, 0, len(m.games))
	for _, rt := range m.games {
		games = append(games, rt)
	}
	m.games = make(map[uint64]*gameRuntime)

	for _, t := range m.regTimers {
		t.stop()
	}
	m.regTimers = make(map[uint64]*cancelTimer)
	for _, t := range m.checkinTimers {
		t.stop()
	}
	m.checkinTimers = make(map[uint64]*cancelTimer)
	for _, t := range m.pregameTimers {
		t.stop()
	}
	m.pregameTimers = make(map[uint64]*cancelTimer)
	m.mu.Unlock()

	for _, rt := range games {
		rt.stop()
	}
	if m.listener != nil {
		m.listener.Stop()
	}
}
