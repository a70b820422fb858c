// Package heartbeat implements the liveness-proof enforcer (C9): proximity
// QR scans that refresh two players' liveness deadlines at once, and a
// per-tick timeout sweep that eliminates players who stop proving
// liveness, with a one-way auto-disable once too few players remain.
package heartbeat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/geo"
	"github.com/kalinbas/chain-assassin/internal/proof"
	"github.com/kalinbas/chain-assassin/internal/store"
)

// Params bundles the tunables a scan/sweep needs.
type Params struct {
	ProximityMeters  float64
	BLERequired      bool
	Interval         time.Duration
	DisableThreshold int
}

// ScanResult names the two players whose liveness deadline just refreshed.
type ScanResult struct {
	ScannerAddress string
	ScannedAddress string
}

// Accept validates and applies one heartbeat scan, short-circuiting on the
// first failed check.
func Accept(
	ctx context.Context, s store.Store, gameID uint64,
	scannerAddress, qrPayload string, scannerPoint geo.Point, bleNearby []string,
	p Params, now time.Time,
) (ScanResult, error) {
	const op = "heartbeat.Accept"

	qrGameID, playerNumber, err := proof.DecodeQR(qrPayload)
	if err != nil {
		return ScanResult{}, err
	}
	if qrGameID != gameID {
		return ScanResult{}, gerrors.New(op, gerrors.CodeInvalidQr)
	}

	scanned, err := s.GetPlayerByNumber(ctx, gameID, playerNumber)
	if err != nil {
		return ScanResult{}, gerrors.Wrap(op, gerrors.CodeTargetNotFound, err)
	}
	if scanned.Address == scannerAddress {
		return ScanResult{}, gerrors.New(op, gerrors.CodeConstraintViolation)
	}

	scanner, err := s.GetPlayer(ctx, gameID, scannerAddress)
	if err != nil {
		return ScanResult{}, gerrors.Wrap(op, gerrors.CodeNotFound, err)
	}
	if !scanner.IsAlive {
		return ScanResult{}, gerrors.New(op, gerrors.CodeHunterNotAlive)
	}
	if !scanned.IsAlive {
		return ScanResult{}, gerrors.New(op, gerrors.CodeTargetNotAlive)
	}

	scannedPing, err := s.GetLatestLocationPing(ctx, gameID, scanned.Address)
	if err != nil {
		return ScanResult{}, gerrors.Wrap(op, gerrors.CodeNoTargetPosition, err)
	}
	scannedPoint := geo.FromFixed(scannedPing.LatFixed, scannedPing.LngFixed)

	distance := geo.HaversineMeters(scannerPoint, scannedPoint)
	if distance > p.ProximityMeters {
		return ScanResult{}, gerrors.New(op, gerrors.CodeOutOfRange)
	}

	if p.BLERequired && !containsAddress(bleNearby, scanned.BluetoothID) {
		return ScanResult{}, gerrors.New(op, gerrors.CodeBlePresenceMissing)
	}

	latFixed, lngFixed := scannerPoint.ToFixed()
	err = s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateLastHeartbeat(ctx, gameID, scanner.Address, now); err != nil {
			return err
		}
		if err := tx.UpdateLastHeartbeat(ctx, gameID, scanned.Address, now); err != nil {
			return err
		}
		return tx.InsertHeartbeatScan(ctx, store.HeartbeatScan{
			ID:              uuid.New().String(),
			GameID:          gameID,
			ScannerAddress:  scanner.Address,
			ScannedAddress:  scanned.Address,
			Timestamp:       now,
			ScannerLatFixed: latFixed,
			ScannerLngFixed: lngFixed,
			DistanceMeters:  distance,
		})
	})
	if err != nil {
		return ScanResult{}, err
	}

	return ScanResult{ScannerAddress: scanner.Address, ScannedAddress: scanned.Address}, nil
}

func containsAddress(set []string, want string) bool {
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

// Disabler tracks whether timeout-based elimination has been switched off
// for a game.
type Disabler struct {
	disabled bool
}

// Sweep evaluates the auto-disable threshold, then returns the alive
// players whose liveness deadline has expired. It returns no expirations
// once disabled, permanently, for the life of the Disabler.
func (d *Disabler) Sweep(ctx context.Context, s store.Store, gameID uint64, p Params, now time.Time) ([]store.Player, error) {
	aliveCount, err := s.GetAlivePlayerCount(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if aliveCount <= p.DisableThreshold {
		d.disabled = true
	}
	if d.disabled {
		return nil, nil
	}

	return s.GetHeartbeatExpiredPlayers(ctx, gameID, now, p.Interval)
}

// Disabled reports the current one-way auto-disable state, surfaced to
// clients via the auth snapshot's heartbeatDisabled flag.
func (d *Disabler) Disabled() bool { return d.disabled }
