// Package zone implements the shrinking play-zone tracker (C8): advances
// a game's current radius along its shrink schedule, and runs an
// out-of-zone grace countdown per alive player. It is driven once per
// tick by internal/gamemanager, which owns the clock and the player
// location pings.
package zone

import (
	"time"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/store"
)

// defaultWarnIntervalSeconds is how often a player still outside the
// zone gets a repeat zone:warning while their grace countdown runs.
const defaultWarnIntervalSeconds = 10

// EventKind enumerates the zone events a Tick can emit.
type EventKind string

const (
	EventShrink  EventKind = "zone:shrink"
	EventWarning EventKind = "zone:warning"
	EventOk      EventKind = "zone:ok"
)

// Event is one zone notification to broadcast or deliver to a player.
type Event struct {
	Kind             EventKind
	Address          string // empty for a broadcast EventShrink
	RadiusMeters     float64
	SecondsRemaining int64
}

// Tracker holds one active game's zone state.
type Tracker struct {
	center   geo.Point
	schedule []store.ZoneShrink
	grace    time.Duration
	clock    clock.Clock

	currentRadius   float64
	nextShrinkIndex int

	outOfZoneSince map[string]time.Time
	lastWarnAt     map[string]time.Time
	warned         map[string]bool
}

// New builds a Tracker at the start of a game; currentRadius begins at
// schedule[0].RadiusMeters, since the shrink schedule's first entry is
// always at AtSecond = 0.
func New(center geo.Point, schedule []store.ZoneShrink, graceSeconds int, clk clock.Clock) *Tracker {
	t := &Tracker{
		center:         center,
		schedule:       schedule,
		grace:          time.Duration(graceSeconds) * time.Second,
		clock:          clk,
		outOfZoneSince: make(map[string]time.Time),
		lastWarnAt:     make(map[string]time.Time),
		warned:         make(map[string]bool),
	}
	if len(schedule) > 0 {
		t.currentRadius = schedule[0].RadiusMeters
		t.nextShrinkIndex = 1
	}
	return t
}

// Resume fast-forwards nextShrinkIndex/currentRadius to match elapsed
// time since startedAt, used by startup recovery so a restart doesn't replay
// every already-passed shrink as a fresh event.
func (t *Tracker) Resume(startedAt, now time.Time) {
	elapsed := int64(now.Sub(startedAt) / time.Second)
	for t.nextShrinkIndex < len(t.schedule) && t.schedule[t.nextShrinkIndex].AtSecond <= elapsed {
		t.currentRadius = t.schedule[t.nextShrinkIndex].RadiusMeters
		t.nextShrinkIndex++
	}
}

// Elimination reports one player who crossed the grace boundary.
type Elimination struct {
	Address string
}

// Tick advances the shrink schedule and re-evaluates every player with a
// fresh ping in pings. Players absent from pings are treated as unknown and
// never zone-eliminated.
func (t *Tracker) Tick(startedAt, now time.Time, pings map[string]geo.Point) ([]Event, []Elimination) {
	var events []Event

	elapsed := int64(now.Sub(startedAt) / time.Second)
	for t.nextShrinkIndex < len(t.schedule) && t.schedule[t.nextShrinkIndex].AtSecond <= elapsed {
		t.currentRadius = t.schedule[t.nextShrinkIndex].RadiusMeters
		t.nextShrinkIndex++
		events = append(events, Event{Kind: EventShrink, RadiusMeters: t.currentRadius})
	}

	var eliminations []Elimination
	for address, point := range pings {
		inZone := geo.WithinRadius(t.center, point, t.currentRadius)

		since, outOfZone := t.outOfZoneSince[address]
		switch {
		case inZone && outOfZone:
			delete(t.outOfZoneSince, address)
			delete(t.lastWarnAt, address)
			if t.warned[address] {
				events = append(events, Event{Kind: EventOk, Address: address})
				delete(t.warned, address)
			}

		case !inZone && !outOfZone:
			t.outOfZoneSince[address] = now
			t.lastWarnAt[address] = now
			t.warned[address] = true
			events = append(events, Event{
				Kind: EventWarning, Address: address,
				SecondsRemaining: int64(t.grace / time.Second),
			})

		case !inZone && outOfZone:
			if now.Sub(since) >= t.grace {
				eliminations = append(eliminations, Elimination{Address: address})
				delete(t.outOfZoneSince, address)
				delete(t.lastWarnAt, address)
				delete(t.warned, address)
				continue
			}
			if now.Sub(t.lastWarnAt[address]) >= defaultWarnIntervalSeconds*time.Second {
				t.lastWarnAt[address] = now
				remaining := int64((t.grace - now.Sub(since)) / time.Second)
				events = append(events, Event{
					Kind: EventWarning, Address: address, SecondsRemaining: remaining,
				})
			}
		}
	}

	return events, eliminations
}

// CurrentRadius reports the active radius, for status snapshots.
func (t *Tracker) CurrentRadius() float64 { return t.currentRadius }
