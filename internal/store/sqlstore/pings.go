package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) InsertLocationPing(ctx context.Context, p store.LocationPing) error {
	_, err := db.ec().exec(ctx, `
		INSERT INTO location_pings (game_id, address, lat_fixed, lng_fixed, ts, is_in_zone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (game_id, address) DO UPDATE SET
			lat_fixed = excluded.lat_fixed,
			lng_fixed = excluded.lng_fixed,
			ts = excluded.ts,
			is_in_zone = excluded.is_in_zone`,
		p.GameID, p.Address, p.LatFixed, p.LngFixed, p.Timestamp.Unix(), boolToInt(p.IsInZone))
	return err
}

func (db *DB) GetLatestLocationPing(ctx context.Context, gameID uint64, address string) (store.LocationPing, error) {
	var p store.LocationPing
	var ts int64
	var isInZone int
	err := db.ec().queryRow(ctx, `
		SELECT game_id, address, lat_fixed, lng_fixed, ts, is_in_zone
		FROM location_pings WHERE game_id = ? AND address = ?`, gameID, address).
		Scan(&p.GameID, &p.Address, &p.LatFixed, &p.LngFixed, &ts, &isInZone)
	if errors.Is(err, sql.ErrNoRows) {
		return store.LocationPing{}, store.NotFound("getLatestLocationPing")
	}
	if err != nil {
		return store.LocationPing{}, err
	}
	p.Timestamp = unixTime(ts)
	p.IsInZone = isInZone != 0
	return p, nil
}

func (db *DB) PruneLocationPings(ctx context.Context, olderThan time.Time) error {
	_, err := db.ec().exec(ctx, `DELETE FROM location_pings WHERE ts < ?`, olderThan.Unix())
	return err
}
