package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kalinbas/chain-assassin/internal/store"
)

const playerColumns = `
	SELECT game_id, address, player_number, is_alive, kills, checked_in,
		bluetooth_id, last_heartbeat_at, eliminated_at, eliminated_by,
		eliminated_reason, has_claimed, connection_state,
		last_seen_connected_at
	FROM players`

func scanPlayer(row rowScanner) (store.Player, error) {
	var p store.Player
	var isAlive, checkedIn, hasClaimed int
	var lastHeartbeat, eliminatedAt, lastSeenConnected sql.NullInt64
	var connState sql.NullString

	err := row.Scan(
		&p.GameID, &p.Address, &p.PlayerNumber, &isAlive, &p.Kills, &checkedIn,
		&p.BluetoothID, &lastHeartbeat, &eliminatedAt, &p.EliminatedBy,
		&p.EliminatedReason, &hasClaimed, &connState, &lastSeenConnected,
	)
	if err != nil {
		return store.Player{}, err
	}

	p.IsAlive = isAlive != 0
	p.CheckedIn = checkedIn != 0
	p.HasClaimed = hasClaimed != 0
	p.ConnectionState = store.ConnectionState(connState.String)

	if lastHeartbeat.Valid {
		t := unixTime(lastHeartbeat.Int64)
		p.LastHeartbeatAt = &t
	}
	if eliminatedAt.Valid {
		t := unixTime(eliminatedAt.Int64)
		p.EliminatedAt = &t
	}
	if lastSeenConnected.Valid {
		t := unixTime(lastSeenConnected.Int64)
		p.LastSeenConnectedAt = &t
	}
	return p, nil
}

func scanPlayers(rows *sql.Rows) ([]store.Player, error) {
	defer rows.Close()
	var out []store.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) InsertPlayer(ctx context.Context, p store.Player) error {
	return insertPlayer(ctx, db.ec(), p)
}

func insertPlayer(ctx context.Context, e execCtx, p store.Player) error {
	_, err := e.exec(ctx, `
		INSERT INTO players (
			game_id, address, player_number, is_alive, kills, checked_in,
			bluetooth_id
		) VALUES (?, ?, ?, 1, 0, 0, '')`, p.GameID, p.Address, p.PlayerNumber)
	if isUniqueViolation(err) {
		return store.ConstraintViolation("insertPlayer", err)
	}
	return err
}

func (db *DB) GetPlayer(ctx context.Context, gameID uint64, address string) (store.Player, error) {
	return getPlayer(ctx, db.ec(), gameID, address)
}

func getPlayer(ctx context.Context, e execCtx, gameID uint64, address string) (store.Player, error) {
	row := e.queryRow(ctx, playerColumns+` WHERE game_id = ? AND address = ?`, gameID, address)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Player{}, store.NotFound("getPlayer")
	}
	return p, err
}

func (db *DB) GetPlayerByNumber(ctx context.Context, gameID uint64, playerNumber uint32) (store.Player, error) {
	row := db.ec().queryRow(ctx, playerColumns+` WHERE game_id = ? AND player_number = ?`, gameID, playerNumber)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Player{}, store.NotFound("getPlayerByNumber")
	}
	return p, err
}

func (db *DB) GetPlayers(ctx context.Context, gameID uint64) ([]store.Player, error) {
	return getPlayers(ctx, db.ec(), gameID)
}

func getPlayers(ctx context.Context, e execCtx, gameID uint64) ([]store.Player, error) {
	rows, err := e.query(ctx, playerColumns+` WHERE game_id = ? ORDER BY player_number`, gameID)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

func (db *DB) GetAlivePlayers(ctx context.Context, gameID uint64) ([]store.Player, error) {
	rows, err := db.ec().query(ctx, playerColumns+` WHERE game_id = ? AND is_alive = 1 ORDER BY player_number`, gameID)
	if err != nil {
		return nil, err
	}
	return scanPlayers(rows)
}

func (db *DB) GetPlayerCount(ctx context.Context, gameID uint64) (int, error) {
	return countPlayers(ctx, db.ec(), gameID, `SELECT COUNT(*) FROM players WHERE game_id = ?`)
}

func (db *DB) GetAlivePlayerCount(ctx context.Context, gameID uint64) (int, error) {
	return countPlayers(ctx, db.ec(), gameID, `SELECT COUNT(*) FROM players WHERE game_id = ? AND is_alive = 1`)
}

func (db *DB) GetCheckedInCount(ctx context.Context, gameID uint64) (int, error) {
	return countPlayers(ctx, db.ec(), gameID, `SELECT COUNT(*) FROM players WHERE game_id = ? AND checked_in = 1`)
}

func countPlayers(ctx context.Context, e execCtx, gameID uint64, query string) (int, error) {
	var n int
	if err := e.queryRow(ctx, query, gameID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (db *DB) SetPlayerCheckedIn(ctx context.Context, gameID uint64, address string, at time.Time) error {
	_, err := db.ec().exec(ctx, `
		UPDATE players SET checked_in = 1 WHERE game_id = ? AND address = ?`, gameID, address)
	return err
}

func (db *DB) SetPlayerClaimed(ctx context.Context, gameID uint64, address string, claimed bool) error {
	_, err := db.ec().exec(ctx, `
		UPDATE players SET has_claimed = ? WHERE game_id = ? AND address = ?`,
		boolToInt(claimed), gameID, address)
	return err
}

func (db *DB) SetPlayerConnectionState(ctx context.Context, gameID uint64, address string, state store.ConnectionState, at time.Time) error {
	_, err := db.ec().exec(ctx, `
		UPDATE players SET connection_state = ?, last_seen_connected_at = ?
		WHERE game_id = ? AND address = ?`, string(state), at.Unix(), gameID, address)
	return err
}

func (db *DB) EliminatePlayer(ctx context.Context, gameID uint64, address string, by string, reason store.EliminationReason, at time.Time) error {
	return eliminatePlayer(ctx, db.ec(), gameID, address, by, reason, at)
}

func eliminatePlayer(ctx context.Context, e execCtx, gameID uint64, address string, by string, reason store.EliminationReason, at time.Time) error {
	_, err := e.exec(ctx, `
		UPDATE players SET is_alive = 0, eliminated_at = ?, eliminated_by = ?,
			eliminated_reason = ?
		WHERE game_id = ? AND address = ?`, at.Unix(), by, string(reason), gameID, address)
	return err
}

func (db *DB) IncrementPlayerKills(ctx context.Context, gameID uint64, address string) error {
	return incrementPlayerKills(ctx, db.ec(), gameID, address)
}

func incrementPlayerKills(ctx context.Context, e execCtx, gameID uint64, address string) error {
	_, err := e.exec(ctx, `
		UPDATE players SET kills = kills + 1 WHERE game_id = ? AND address = ?`, gameID, address)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
