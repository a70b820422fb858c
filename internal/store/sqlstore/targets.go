package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) SetTargetAssignment(ctx context.Context, gameID uint64, hunter, target string) error {
	return setTargetAssignment(ctx, db.ec(), gameID, hunter, target)
}

func setTargetAssignment(ctx context.Context, e execCtx, gameID uint64, hunter, target string) error {
	_, err := e.exec(ctx, `
		INSERT INTO target_assignments (game_id, hunter_address, target_address)
		VALUES (?, ?, ?)
		ON CONFLICT (game_id, hunter_address)
		DO UPDATE SET target_address = excluded.target_address`,
		gameID, hunter, target)
	return err
}

func (db *DB) GetTargetAssignment(ctx context.Context, gameID uint64, hunter string) (string, error) {
	var target string
	err := db.ec().queryRow(ctx, `
		SELECT target_address FROM target_assignments
		WHERE game_id = ? AND hunter_address = ?`, gameID, hunter).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NotFound("getTargetAssignment")
	}
	return target, err
}

func (db *DB) RemoveTargetAssignment(ctx context.Context, gameID uint64, hunter string) error {
	return removeTargetAssignment(ctx, db.ec(), gameID, hunter)
}

func removeTargetAssignment(ctx context.Context, e execCtx, gameID uint64, hunter string) error {
	_, err := e.exec(ctx, `
		DELETE FROM target_assignments WHERE game_id = ? AND hunter_address = ?`,
		gameID, hunter)
	return err
}

func (db *DB) FindHunterOf(ctx context.Context, gameID uint64, target string) (string, error) {
	var hunter string
	err := db.ec().queryRow(ctx, `
		SELECT hunter_address FROM target_assignments
		WHERE game_id = ? AND target_address = ?`, gameID, target).Scan(&hunter)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.NotFound("findHunterOf")
	}
	return hunter, err
}

func (db *DB) GetAllTargetAssignments(ctx context.Context, gameID uint64) (map[string]string, error) {
	rows, err := db.ec().query(ctx, `
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
