package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kalinbas/chain-assassin/internal/store"
)

// WithTx runs fn against a Store scoped to one *sql.Tx. All writes made
// through txStore commit or roll back together; see store.Store.WithTx.
func (db *DB) WithTx(ctx context.Context, fn func(txStore store.Store) error) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	err = fn(&txStore{execCtx{q: tx, driver: db.driver}})
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// ResetGameData truncates every game-scoped table, used before a full
// rebuild from chain.
func (db *DB) ResetGameData(ctx context.Context) error {
	tables := []string{
		"game_photos", "operator_txs", "heartbeat_scans", "location_pings",
		"kills", "target_assignments", "players", "zone_shrinks", "games",
	}
	for _, t := range tables {
		if _, err := db.ec().exec(ctx, `DELETE FROM `+t); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// txStore implements store.Store against a single in-flight transaction.
// It reuses the execCtx-based helpers backing *DB so the two never drift.
type txStore struct {
	e execCtx
}

func (t *txStore) InsertGame(ctx context.Context, g store.Game) error { return insertGame(ctx, t.e, g) }

func (t *txStore) GetGame(ctx context.Context, gameID uint64) (store.Game, error) {
	return getGame(ctx, t.e, gameID)
}

func (t *txStore) UpdateGamePhase(ctx context.Context, gameID uint64, phase store.Phase, upd store.GamePhaseUpdate) error {
	return updateGamePhase(ctx, t.e, gameID, phase, upd)
}

func (t *txStore) UpdateSubPhase(ctx context.Context, gameID uint64, sub store.SubPhase, startedAt time.Time) error {
	_, err := t.e.exec(ctx, `
		UPDATE games SET sub_phase = ?, sub_phase_started_at = ?
		WHERE game_id = ?`, string(sub), startedAt.Unix(), gameID)
	return err
}

func (t *txStore) GetGamesInPhase(ctx context.Context, phase store.Phase) ([]store.Game, error) {
	rows, err := t.e.query(ctx, gameQueryColumns+` WHERE phase = ?`, string(phase))
	if err != nil {
		return nil, err
	}
	return scanGames(rows)
}

func (t *txStore) GetAllGames(ctx context.Context) ([]store.Game, error) {
	rows, err := t.e.query(ctx, gameQueryColumns+` ORDER BY game_id`)
	if err != nil {
		return nil, err
	}
	return scanGames(rows)
}

func (t *txStore) UpdatePlayerCount(ctx context.Context, gameID uint64, count int, totalCollectedWei string) error {
	_, err := t.e.exec(ctx, `
		UPDATE games SET player_count = ?, total_collected_wei = ?
		WHERE game_id = ?`, count, totalCollectedWei, gameID)
	return err
}

func (t *txStore) InsertZoneShrinks(ctx context.Context, gameID uint64, schedule []store.ZoneShrink) error {
	for _, z := range schedule {
		if _, err := t.e.exec(ctx, `
			INSERT INTO zone_shrinks (game_id, at_second, radius_meters)
			VALUES (?, ?, ?)`, gameID, z.AtSecond, z.RadiusMeters); err != nil {
			return err
		}
	}
	return nil
}

func (t *txStore) GetZoneShrinks(ctx context.Context, gameID uint64) ([]store.ZoneShrink, error) {
	rows, err := t.e.query(ctx, `
		SELECT game_id, at_second, radius_meters FROM zone_shrinks
		WHERE game_id = ? ORDER BY at_second`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ZoneShrink
	for rows.Next() {
		var z store.ZoneShrink
		if err := rows.Scan(&z.GameID, &z.AtSecond, &z.RadiusMeters); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (t *txStore) InsertPlayer(ctx context.Context, p store.Player) error {
	return insertPlayer(ctx, t.e, p)
}

func (t *txStore) GetPlayer(ctx context.Context, gameID uint64, address string) (store.Player, error) {
	return getPlayer(ctx, t.e, gameID, address)
}

func (t *txStore) GetPlayerByNumber(ctx context.Context, gameID uint64, playerNumber uint32) (store.Player, error) {
	row := t.e.queryRow(ctx, playerColumns+` WHERE game_id = ? AND player_number = ?`, gameID, playerNumber)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Player{}, store.NotFound("getPlayerByNumber")
	}
	return p, err
}

func (t *txStore) GetPlayers(ctx context.Context, gameID uint64) ([]store.Player, error) {
	return getPlayers(ctx, t.e, gameID)
}

func (t *txStore) GetAlivePlayers(ctx context.Context, gameID uint64) ([]store.Player, error) {
	rows, err := t.e.query(ctx, playerColumns+` WHERE game_id = ? AND is_alive = 1 ORDER BY player_number`, gameID)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

func (t *txStore) GetPlayerCount(ctx context.Context, gameID uint64) (int, error) {
	return countPlayers(ctx, t.e, gameID, `SELECT COUNT(*) FROM players WHERE game_id = ?`)
}

func (t *txStore) GetAlivePlayerCount(ctx context.Context, gameID uint64) (int, error) {
	return countPlayers(ctx, t.e, gameID, `SELECT COUNT(*) FROM players WHERE game_id = ? AND is_alive = 1`)
}

func (t *txStore) GetCheckedInCount(ctx context.Context, gameID uint64) (int, error) {
	return countPlayers(ctx, t.e, gameID, `SELECT COUNT(*) FROM players WHERE game_id = ? AND checked_in = 1`)
}

func (t *txStore) SetPlayerCheckedIn(ctx context.Context, gameID uint64, address string, at time.Time) error {
	_, err := t.e.exec(ctx, `UPDATE players SET checked_in = 1 WHERE game_id = ? AND address = ?`, gameID, address)
	return err
}

func (t *txStore) SetPlayerClaimed(ctx context.Context, gameID uint64, address string, claimed bool) error {
	_, err := t.e.exec(ctx, `UPDATE players SET has_claimed = ? WHERE game_id = ? AND address = ?`,
		boolToInt(claimed), gameID, address)
	return err
}

func (t *txStore) SetPlayerConnectionState(ctx context.Context, gameID uint64, address string, state store.ConnectionState, at time.Time) error {
	_, err := t.e.exec(ctx, `
		UPDATE players SET connection_state = ?, last_seen_connected_at = ?
		WHERE game_id = ? AND address = ?`, string(state), at.Unix(), gameID, address)
	return err
}

func (t *txStore) EliminatePlayer(ctx context.Context, gameID uint64, address string, by string, reason store.EliminationReason, at time.Time) error {
	return eliminatePlayer(ctx, t.e, gameID, address, by, reason, at)
}

func (t *txStore) IncrementPlayerKills(ctx context.Context, gameID uint64, address string) error {
	return incrementPlayerKills(ctx, t.e, gameID, address)
}

func (t *txStore) SetTargetAssignment(ctx context.Context, gameID uint64, hunter, target string) error {
	return setTargetAssignment(ctx, t.e, gameID, hunter, target)
}

func (t *txStore) GetTargetAssignment(ctx context.Context, gameID uint64, hunter string) (string, error) {
	var target string
	err := t.e.queryRow(ctx, `
		SELECT target_address FROM target_assignments
		WHERE game_id = ? AND hunter_address = ?`, gameID, hunter).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NotFound("getTargetAssignment")
	}
	return target, err
}

func (t *txStore) RemoveTargetAssignment(ctx context.Context, gameID uint64, hunter string) error {
	return removeTargetAssignment(ctx, t.e, gameID, hunter)
}

func (t *txStore) FindHunterOf(ctx context.Context, gameID uint64, target string) (string, error) {
	var hunter string
	err := t.e.queryRow(ctx, `
		SELECT hunter_address FROM target_assignments
		WHERE game_id = ? AND target_address = ?`, gameID, target).Scan(&hunter)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NotFound("findHunterOf")
	}
	return hunter, err
}

func (t *txStore) GetAllTargetAssignments(ctx context.Context, gameID uint64) (map[string]string, error) {
	rows, err := t.e.query(ctx, `
		SELECT hunter_address, target_address FROM target_assignments
		WHERE game_id = ?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var hunter, target string
		if err := rows.Scan(&hunter, &target); err != nil {
			return nil, err
		}
		out[hunter] = target
	}
	return out, rows.Err()
}

func (t *txStore) InsertKill(ctx context.Context, k store.Kill) error { return insertKill(ctx, t.e, k) }

func (t *txStore) UpdateKillTxHash(ctx context.Context, killID string, txHash string) error {
	_, err := t.e.exec(ctx, `UPDATE kills SET tx_hash = ? WHERE id = ?`, txHash, killID)
	return err
}

func (t *txStore) GetKills(ctx context.Context, gameID uint64) ([]store.Kill, error) {
	rows, err := t.e.query(ctx, `
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

func (t *txStore) InsertLocationPing(ctx context.Context, p store.LocationPing) error {
	_, err := t.e.exec(ctx, `
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

func (t *txStore) GetLatestLocationPing(ctx context.Context, gameID uint64, address string) (store.LocationPing, error) {
	var p store.LocationPing
	var ts int64
	var isInZone int
	err := t.e.queryRow(ctx, `
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

func (t *txStore) PruneLocationPings(ctx context.Context, olderThan time.Time) error {
	_, err := t.e.exec(ctx, `DELETE FROM location_pings WHERE ts < ?`, olderThan.Unix())
	return err
}

func (t *txStore) InitPlayersHeartbeat(ctx context.Context, gameID uint64, at time.Time) error {
	_, err := t.e.exec(ctx, `UPDATE players SET last_heartbeat_at = ? WHERE game_id = ? AND is_alive = 1`, at.Unix(), gameID)
	return err
}

func (t *txStore) UpdateLastHeartbeat(ctx context.Context, gameID uint64, address string, at time.Time) error {
	_, err := t.e.exec(ctx, `UPDATE players SET last_heartbeat_at = ? WHERE game_id = ? AND address = ?`, at.Unix(), gameID, address)
	return err
}

func (t *txStore) GetHeartbeatExpiredPlayers(ctx context.Context, gameID uint64, now time.Time, interval time.Duration) ([]store.Player, error) {
	cutoff := now.Add(-interval).Unix()
	rows, err := t.e.query(ctx, playerColumns+`
		WHERE game_id = ? AND is_alive = 1
			AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)`,
		gameID, cutoff)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

func (t *txStore) InsertHeartbeatScan(ctx context.Context, s store.HeartbeatScan) error {
	_, err := t.e.exec(ctx, `
		INSERT INTO heartbeat_scans (
			id, game_id, scanner_address, scanned_address, ts,
			scanner_lat_fixed, scanner_lng_fixed, distance_meters
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.GameID, s.ScannerAddress, s.ScannedAddress, s.Timestamp.Unix(),
		s.ScannerLatFixed, s.ScannerLngFixed, s.DistanceMeters,
	)
	return err
}

func (t *txStore) InsertOperatorTx(ctx context.Context, tx store.OperatorTx) error {
	return insertOperatorTx(ctx, t.e, tx)
}

func (t *txStore) UpdateOperatorTx(ctx context.Context, id string, upd store.OperatorTxUpdate) error {
	return updateOperatorTx(ctx, t.e, id, upd)
}

func (t *txStore) GetOperatorTx(ctx context.Context, id string) (store.OperatorTx, error) {
	row := t.e.queryRow(ctx, operatorTxColumns+` WHERE id = ?`, id)
	tx, err := scanOperatorTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.OperatorTx{}, store.NotFound("getOperatorTx")
	}
	return tx, err
}

func (t *txStore) GetPendingOperatorTxs(ctx context.Context) ([]store.OperatorTx, error) {
	rows, err := t.e.query(ctx, operatorTxColumns+`
		WHERE status IN (?, ?) ORDER BY created_at`,
		string(store.OperatorTxPending), string(store.OperatorTxSubmitted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.OperatorTx
	for rows.Next() {
		tx, err := scanOperatorTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (t *txStore) GetSyncState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := t.e.queryRow(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (t *txStore) SetSyncState(ctx context.Context, key, value string) error {
	_, err := t.e.exec(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (t *txStore) AddGamePhoto(ctx context.Context, photo store.GamePhoto) error {
	_, err := t.e.exec(ctx, `
		INSERT INTO game_photos (id, game_id, url, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		photo.ID, photo.GameID, photo.URL, photo.UploadedBy, photo.UploadedAt.Unix())
	return err
}

func (t *txStore) GetGamePhotos(ctx context.Context, gameID uint64) ([]store.GamePhoto, error) {
	rows, err := t.e.query(ctx, `
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

// WithTx and ResetGameData are never called on a transaction-scoped
// store; nesting transactions is not supported.
func (t *txStore) WithTx(ctx context.Context, fn func(txStore store.Store) error) error {
	return fn(t)
}

func (t *txStore) ResetGameData(ctx context.Context) error {
	return errors.New("sqlstore: ResetGameData not supported inside a transaction")
}

func (t *txStore) Close() error { return nil }
