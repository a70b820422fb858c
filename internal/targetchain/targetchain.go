// Package targetchain builds and maintains the circular hunter→target
// assignment graph (C7): every alive player hunts exactly one other alive
// player, and being hunted by exactly one other, so the whole alive set
// forms a single cycle. Reassignment on elimination keeps that invariant
// down to the last two players; when one of them is eliminated, the
// survivor is left with no target.
package targetchain

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/kalinbas/chain-assassin/internal/store"
)

// Seed derives the deterministic-but-unpredictable permutation seed for a
// game: the SHA-256 digest of the chain block hash at or after startedAt
// when the caller has one, else the SHA-256 digest of gameId and
// startedAt. blockHash may be nil.
func Seed(gameID uint64, startedAtUnix int64, blockHash []byte) uint64 {
	if len(blockHash) > 0 {
		return binary.BigEndian.Uint64(hash(blockHash)[:8])
	}
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], gameID)
	binary.BigEndian.PutUint64(buf[8:], uint64(startedAtUnix))
	return binary.BigEndian.Uint64(hash(buf)[:8])
}

func hash(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Build computes an initial hunter→target cycle over addrs using a
// Fisher-Yates shuffle keyed by seed, then persists every edge via store.
// addrs must already be sorted deterministically by the caller (by player
// number) so the same seed always yields the same cycle.
func Build(ctx context.Context, s store.Store, gameID uint64, addrs []string, seed uint64) error {
	order := shuffle(addrs, seed)
	return s.WithTx(ctx, func(tx store.Store) error {
		n := len(order)
		for i, hunter := range order {
			target := order[(i+1)%n]
			if err := tx.SetTargetAssignment(ctx, gameID, hunter, target); err != nil {
				return err
			}
		}
		return nil
	})
}

// shuffle returns a permutation of addrs via a linear-congruential PRNG
// keyed by seed, so the result is deterministic for a given (addrs, seed)
// pair regardless of process restarts.
func shuffle(addrs []string, seed uint64) []string {
	out := make([]string, len(addrs))
	copy(out, addrs)
	sort.Strings(out)

	rng := seed
	next := func() uint64 {
		rng = rng*6364136223846793005 + 1442695040888963407
		return rng
	}
	for i := len(out) - 1; i > 0; i-- {
		j := int(next() % uint64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Reassign removes eliminated from the cycle and rewires its hunter to
// its former target, preserving the single-cycle invariant. When exactly two
// alive players remain before removal, the survivor keeps no target.
func Reassign(ctx context.Context, tx store.Store, gameID uint64, eliminated string) error {
	hunter, err := tx.FindHunterOf(ctx, gameID, eliminated)
	if err != nil {
		return err
	}
	formerTarget, err := tx.GetTargetAssignment(ctx, gameID, eliminated)
	if err != nil {
		return err
	}

	if err := tx.RemoveTargetAssignment(ctx, gameID, eliminated); err != nil {
		return err
	}

	if hunter == formerTarget {
		// Only two players were left in the cycle; the hunter now has
		// no one to hunt because the game is over.
		return nil
	}

	return tx.SetTargetAssignment(ctx, gameID, hunter, formerTarget)
}
