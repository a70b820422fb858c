package gamemanager

import (
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/heartbeat"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/zone"
)

// gameRuntime holds one active game's in-memory state: its zone tracker,
// heartbeat disable latch, and the one tick task driving both. The
// embedded mutex orders this game's tick task against the SubmitKill and
// HeartbeatScan handlers, which take it through lockedGame. CheckIn and
// Location do not take it; they write to the store without a per-game lock.
type gameRuntime struct {
	mu sync.Mutex

	gameID    uint64
	startedAt time.Time
	center    geo.Point

	zone      *zone.Tracker
	heartbeat heartbeat.Disabler

	tick ticker.Ticker
	quit chan struct{}
	wg   sync.WaitGroup
}

// newGameRuntime builds a runtime for a game that just entered ACTIVE,
// or is being re-entered at startup.
func newGameRuntime(gameID uint64, startedAt time.Time, center geo.Point, schedule []store.ZoneShrink, graceSeconds int, clk clock.Clock) *gameRuntime {
	return &gameRuntime{
		gameID:    gameID,
		startedAt: startedAt,
		center:    center,
		zone:      zone.New(center, schedule, graceSeconds, clk),
		quit:      make(chan struct{}),
	}
}

// start launches the 1 Hz tick task. fn runs once per tick under the
// runtime's lock.
func (rt *gameRuntime) start(fn func()) {
	rt.tick = ticker.New(time.Second)
	rt.tick.Resume()

	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		for {
			select {
			case <-rt.tick.Ticks():
				rt.mu.Lock()
				fn()
				rt.mu.Unlock()
			case <-rt.quit:
				return
			}
		}
	}()
}

func (rt *gameRuntime) stop() {
	if rt.tick != nil {
		rt.tick.Stop()
	}
	close(rt.quit)
	rt.wg.Wait()
}
