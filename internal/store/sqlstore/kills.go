package sqlstore

import (
	"context"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) InsertKill(ctx context.Context, k store.Kill) error {
	return insertKill(ctx, db.ec(), k)
}

func insertKill(ctx context.Context, e execCtx, k store.Kill) error {
	_, err := e.exec(ctx, `
		INSERT INTO kills (
			id, game_id, hunter_address, target_address, ts,
			hunter_lat_fixed, hunter_lng_fixed, target_lat_fixed,
			target_lng_fixed, distance_meters, tx_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.GameID, k.HunterAddress, k.TargetAddress, k.Timestamp.Unix(),
		k.HunterLatFixed, k.HunterLngFixed, k.TargetLatFixed, k.TargetLngFixed,
		k.DistanceMeters, k.TxHash,
	)
	return err
}

func (db *DB) UpdateKillTxHash(ctx context.Context, killID string, txHash string) error {
	_, err := db.ec().exec(ctx, `UPDATE kills SET tx_hash = ? WHERE id = ?`, txHash, killID)
	return err
}

func (db *DB) GetKills(ctx context.Context, gameID uint64) ([]store.Kill, error) {
	rows, err := db.ec().query(ctx, `
		SELECT id, game_id, hunter_address, target_address, ts,
			hunter_lat_fixed, hunter_lng_fixed, target_lat_fixed,
			target_lng_fixed, distance_meters, tx_hash
		FROM kills WHERE game_id = ? ORDER BY ts`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Kill
	for rows.Next() {
		var k store.Kill
		var ts int64
		if err := rows.Scan(
			&k.ID, &k.GameID, &k.HunterAddress, &k.TargetAddress, &ts,
			&k.HunterLatFixed, &k.HunterLngFixed, &k.TargetLatFixed,
			&k.TargetLngFixed, &k.DistanceMeters, &k.TxHash,
		); err != nil {
			return nil, err
		}
		k.Timestamp = unixTime(ts)
		out = append(out, k)
	}
	return out, rows.Err()
}
