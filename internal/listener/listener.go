// Package listener consumes settlement-chain events in block order (C6):
// an ordered backfill over any gap since the last processed block,
// followed by a live subscription, with stale-subscription detection and
// restart. Its lifecycle mirrors chainntfs/chainntfs.go's ChainNotifier
// (RegisterBlockEpochNtfn / Start / Stop), generalized from block epochs
// to this chain's game-contract events.
package listener

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/kalinbas/chain-assassin/internal/logging"
	"github.com/kalinbas/chain-assassin/internal/store"
)

var log = logging.Named("LSTN")

// EventKind enumerates the contract events the game manager reacts to.
type EventKind string

const (
	EventGameCreated       EventKind = "GameCreated"
	EventPlayerRegistered  EventKind = "PlayerRegistered"
	EventGameStarted       EventKind = "GameStarted"
	EventKillRecorded      EventKind = "KillRecorded"
	EventPlayerEliminated  EventKind = "PlayerEliminated"
	EventGameEnded         EventKind = "GameEnded"
	EventGameCancelled     EventKind = "GameCancelled"
)

// ChainEvent is one decoded contract event. Not every field is populated
// for every Kind; for which fields each reaction reads.
type ChainEvent struct {
	Block  uint64
	Kind   EventKind
	GameID uint64

	Address       string // player/creator address, when the event carries one
	TargetAddress string // KillRecorded's target
	PlayerNumber  uint32 // PlayerRegistered's assigned number
	Reason        string // PlayerEliminated's reason
	TxHash        string // KillRecorded's settlement tx hash
	CollectedWei  string // PlayerRegistered's running total
	PlayerCount   int    // PlayerRegistered's running count

	First     string // GameEnded winners
	Second    string
	Third     string
	TopKiller string
}

// Source is the chain-facing half of the listener: reading a range of
// historical events and subscribing to new ones. chainio.Client is
// expected to implement it; defined here so tests can supply a fake.
type Source interface {
	LatestBlock(ctx context.Context) (uint64, error)
	EventsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]ChainEvent, error)
	Subscribe(ctx context.Context) (<-chan ChainEvent, error)
}

const syncStateKey = "lastProcessedBlock"

// Listener drives Source and invokes Handle for every event in strictly
// increasing block order, never skipping a height.
type Listener struct {
	source  Source
	store   store.Store
	clock   clock.Clock
	handle  func(ChainEvent) error

	staleAfter      time.Duration
	restartCooldown time.Duration

	mu            sync.Mutex
	lastEventAt   time.Time
	lastRestartAt time.Time

	quit chan struct{}
	wg   sync.WaitGroup
}

// Config bundles the staleness/restart timings
type Config struct {
	StaleAfter      time.Duration
	RestartCooldown time.Duration
}

// New builds a Listener. handle is invoked synchronously and in order for
// every event, both during backfill and live subscription.
func New(source Source, st store.Store, clk clock.Clock, cfg Config, handle func(ChainEvent) error) *Listener {
	return &Listener{
		source:          source,
		store:           st,
		clock:           clk,
		handle:          handle,
		staleAfter:      cfg.StaleAfter,
		restartCooldown: cfg.RestartCooldown,
		quit:            make(chan struct{}),
	}
}

// Start backfills from the last processed block through the chain's tip,
// then subscribes for new events. If rebuild is true, the backfill starts
// from block 0 instead of the persisted cursor.
func (l *Listener) Start(ctx context.Context, rebuild bool) error {
	from := uint64(0)
	if !rebuild {
		if v, ok, err := l.store.GetSyncState(ctx, syncStateKey); err != nil {
			return err
		} else if ok {
			from = parseBlock(v) + 1
		}
	}

	if err := l.backfill(ctx, from); err != nil {
		return err
	}

	return l.subscribe(ctx)
}

func (l *Listener) backfill(ctx context.Context, from uint64) error {
	latest, err := l.source.LatestBlock(ctx)
	if err != nil {
		return err
	}
	if from > latest {
		return nil
	}

	events, err := l.source.EventsInRange(ctx, from, latest)
	if err != nil {
		return err
	}

	for _, ev := range events {
		if err := l.handle(ev); err != nil {
			return err
		}
	}

	return l.store.SetSyncState(ctx, syncStateKey, formatBlock(latest))
}

func (l *Listener) subscribe(ctx context.Context) error {
	ch, err := l.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.lastEventAt = l.clock.Now()
	l.mu.Unlock()

	l.wg.Add(2)
	go l.consume(ctx, ch)
	go l.watchStaleness(ctx)
	return nil
}

func (l *Listener) consume(ctx context.Context, ch <-chan ChainEvent) {
	defer l.wg.Done()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			l.mu.Lock()
			l.lastEventAt = l.clock.Now()
			l.mu.Unlock()

			if err := l.handle(ev); err != nil {
				log.Errorw("event handler failed", "kind", ev.Kind, "err", err)
				continue
			}
			if err := l.store.SetSyncState(ctx, syncStateKey, formatBlock(ev.Block)); err != nil {
				log.Errorw("failed to persist sync state", "err", err)
			}
		case <-l.quit:
			return
		}
	}
}

// watchStaleness restarts the subscription if no event has arrived for
// staleAfter, respecting restartCooldown between attempts.
func (l *Listener) watchStaleness(ctx context.Context) {
	defer l.wg.Done()

	check := ticker.New(l.staleAfter / 4)
	check.Resume()
	defer check.Stop()

	for {
		select {
		case <-check.Ticks():
			l.mu.Lock()
			idle := l.clock.Now().Sub(l.lastEventAt)
			sinceRestart := l.clock.Now().Sub(l.lastRestartAt)
			l.mu.Unlock()

			if idle < l.staleAfter || sinceRestart < l.restartCooldown {
				continue
			}

			log.Warnw("subscription stale, restarting", "idle", idle)
			l.mu.Lock()
			l.lastRestartAt = l.clock.Now()
			l.mu.Unlock()

			if err := l.subscribe(ctx); err != nil {
				log.Errorw("restart subscribe failed", "err", err)
			}
		case <-l.quit:
			return
		}
	}
}

// Stop tears down every goroutine the listener has started.
func (l *Listener) Stop() {
	close(l.quit)
	l.wg.Wait()
}

func parseBlock(s string) uint64 {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + uint64(r-'0')
	}
	return n
}

func formatBlock(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
