package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) GetSyncState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.ec().queryRow(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (db *DB) SetSyncState(ctx context.Context, key, value string) error {
	_, err := db.ec().exec(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (db *DB) AddGamePhoto(ctx context.Context, photo store.GamePhoto) error {
	_, err := db.ec().exec(ctx, `
		INSERT INTO game_photos (id, game_id, url, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		photo.ID, photo.GameID, photo.URL, photo.UploadedBy, photo.UploadedAt.Unix())
	return err
}

func (db *DB) GetGamePhotos(ctx context.Context, gameID uint64) ([]store.GamePhoto, error) {
	rows, err := db.ec().query(ctx, `
		SELECT id, game_id, url, uploaded_by, uploaded_at
		FROM game_photos WHERE game_id = ? ORDER BY uploaded_at`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.GamePhoto
	for rows.Next() {
		var p store.GamePhoto
		var uploadedAt int64
		if err := rows.Scan(&p.ID, &p.GameID, &p.URL, &p.UploadedBy, &uploadedAt); err != nil {
			return nil, err
		}
		p.UploadedAt = unixTime(uploadedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
