// Package kill implements the kill-submission verifier (C10): an ordered,
// short-circuiting validation pipeline followed by one atomic elimination
// transaction. The pipeline shape — "is this already resolved? is the
// next precondition met? advance one stage" — is grounded on
// contractcourt/htlc_timeout_resolver.go's staged resolution loop,
// generalized from on-chain HTLC stages to seven checks.
package kill

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/proof"
	"github.com/kalinbas/chain-assassin/internal/store"
	"github.com/kalinbas/chain-assassin/internal/targetchain"
)

// Enqueuer is the operator queue's submission surface, abstracted behind
// an interface so this package never imports internal/operator directly.
type Enqueuer interface {
	Enqueue(ctx context.Context, action store.OperatorTxAction, gameID uint64, params map[string]interface{}) (string, error)
}

// Params bundles the tunables the pipeline needs.
type Params struct {
	ProximityMeters float64
	BLERequired     bool
}

// Input is one kill-submission request.
type Input struct {
	HunterAddress string
	QRPayload     string
	HunterLat     float64
	HunterLng     float64
	BLENearby     []string
}

// Result is what a successfully verified kill changed.
type Result struct {
	Kill             store.Kill
	EliminatedTarget string
	AliveRemaining   int
}

// Verify runs a seven-step validation pipeline against a loaded game and,
// on success, performs the elimination transaction and enqueues the
// on-chain recordKill write. game must already reflect the current phase
// and sub-phase; the caller (internal/gamemanager) owns game-state
// caching.
func Verify(
	ctx context.Context, s store.Store, enq Enqueuer,
	gameID uint64, game store.Game, in Input, p Params, now time.Time,
) (Result, error) {
	const op = "kill.Verify"

	// Step 1: GameNotActive.
	if game.Phase != store.PhaseActive || game.SubPhase == nil || *game.SubPhase != store.SubPhaseGame {
		return Result{}, gerrors.New(op, gerrors.CodeGameNotActive)
	}

	// Step 2: HunterNotAlive.
	hunter, err := s.GetPlayer(ctx, gameID, in.HunterAddress)
	if err != nil {
		return Result{}, gerrors.Wrap(op, gerrors.CodeHunterNotAlive, err)
	}
	if !hunter.IsAlive {
		return Result{}, gerrors.New(op, gerrors.CodeHunterNotAlive)
	}

	// Step 3: InvalidQr.
	qrGameID, playerNumber, err := proof.DecodeQR(in.QRPayload)
	if err != nil {
		return Result{}, err
	}
	if qrGameID != gameID {
		return Result{}, gerrors.New(op, gerrors.CodeInvalidQr)
	}

	// Step 4: TargetNotFound / TargetNotAlive.
	target, err := s.GetPlayerByNumber(ctx, gameID, playerNumber)
	if err != nil {
		return Result{}, gerrors.Wrap(op, gerrors.CodeTargetNotFound, err)
	}
	if !target.IsAlive {
		return Result{}, gerrors.New(op, gerrors.CodeTargetNotAlive)
	}

	// Step 5: NotYourTarget.
	assigned, err := s.GetTargetAssignment(ctx, gameID, hunter.Address)
	if err != nil || assigned != target.Address {
		return Result{}, gerrors.New(op, gerrors.CodeNotYourTarget)
	}

	// Step 6: OutOfRange / NoTargetPosition.
	hunterPoint := geo.Point{Lat: in.HunterLat, Lng: in.HunterLng}
	targetPing, err := s.GetLatestLocationPing(ctx, gameID, target.Address)
	if err != nil {
		return Result{}, gerrors.Wrap(op, gerrors.CodeNoTargetPosition, err)
	}
	targetPoint := geo.FromFixed(targetPing.LatFixed, targetPing.LngFixed)
	distance := geo.HaversineMeters(hunterPoint, targetPoint)
	if distance > p.ProximityMeters {
		return Result{}, gerrors.New(op, gerrors.CodeOutOfRange)
	}

	// Step 7: BlePresenceMissing.
	if p.BLERequired && !containsBLE(in.BLENearby, target.BluetoothID) {
		return Result{}, gerrors.New(op, gerrors.CodeBlePresenceMissing)
	}

	hunterLatFixed, hunterLngFixed := hunterPoint.ToFixed()
	k := store.Kill{
		ID:             uuid.New().String(),
		GameID:         gameID,
		HunterAddress:  hunter.Address,
		TargetAddress:  target.Address,
		Timestamp:      now,
		HunterLatFixed: hunterLatFixed,
		HunterLngFixed: hunterLngFixed,
		TargetLatFixed: targetPing.LatFixed,
		TargetLngFixed: targetPing.LngFixed,
		DistanceMeters: distance,
	}

	var aliveRemaining int
	err = s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.InsertKill(ctx, k); err != nil {
			return err
		}
		if err := tx.IncrementPlayerKills(ctx, gameID, hunter.Address); err != nil {
			return err
		}
		if err := tx.EliminatePlayer(ctx, gameID, target.Address, hunter.Address, store.EliminationKill, now); err != nil {
			return err
		}
		if err := targetchain.Reassign(ctx, tx, gameID, target.Address); err != nil {
			return err
		}

		n, err := tx.GetAlivePlayerCount(ctx, gameID)
		if err != nil {
			return err
		}
		aliveRemaining = n
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if _, err := enq.Enqueue(ctx, store.ActionRecordKill, gameID, map[string]interface{}{
		"id":            k.ID,
		"gameId":        k.GameID,
		"hunterAddress": k.HunterAddress,
		"targetAddress": k.TargetAddress,
		"timestamp":     k.Timestamp,
	}); err != nil {
		return Result{}, err
	}

	return Result{Kill: k, EliminatedTarget: target.Address, AliveRemaining: aliveRemaining}, nil
}

func containsBLE(set []string, want string) bool {
	if want == "" {
		return false
	}
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}
