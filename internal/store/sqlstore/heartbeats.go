package sqlstore

import (
	"context"
	"time"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) InitPlayersHeartbeat(ctx context.Context, gameID uint64, at time.Time) error {
	_, err := db.ec().exec(ctx, `
		UPDATE players SET last_heartbeat_at = ? WHERE game_id = ? AND is_alive = 1`,
		at.Unix(), gameID)
	return err
}

func (db *DB) UpdateLastHeartbeat(ctx context.Context, gameID uint64, address string, at time.Time) error {
	_, err := db.ec().exec(ctx, `
		UPDATE players SET last_heartbeat_at = ? WHERE game_id = ? AND address = ?`,
		at.Unix(), gameID, address)
	return err
}

func (db *DB) GetHeartbeatExpiredPlayers(ctx context.Context, gameID uint64, now time.Time, interval time.Duration) ([]store.Player, error) {
	cutoff := now.Add(-interval).Unix()
	rows, err := db.ec().query(ctx, playerColumns+`
		WHERE game_id = ? AND is_alive = 1
			AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)`,
		gameID, cutoff)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

func (db *DB) InsertHeartbeatScan(ctx context.Context, s store.HeartbeatScan) error {
	_, err := db.ec().exec(ctx, `
		INSERT INTO heartbeat_scans (
			id, game_id, scanner_address, scanned_address, ts,
			scanner_lat_fixed, scanner_lng_fixed, distance_meters
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GameID, s.ScannerAddress, s.ScannedAddress, s.Timestamp.Unix(),
		s.ScannerLatFixed, s.ScannerLngFixed, s.DistanceMeters,
	)
	return err
}
