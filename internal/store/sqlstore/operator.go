package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) InsertOperatorTx(ctx context.Context, tx store.OperatorTx) error {
	return insertOperatorTx(ctx, db.ec(), tx)
}

func insertOperatorTx(ctx context.Context, e execCtx, tx store.OperatorTx) error {
	params, err := json.Marshal(tx.Params)
	if err != nil {
		return err
	}
	_, err = e.exec(ctx, `
		INSERT INTO operator_txs (
			id, game_id, action, params, status, tx_hash, created_at,
			confirmed_at, last_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, '')`,
		tx.ID, tx.GameID, string(tx.Action), string(params), string(tx.Status),
		tx.TxHash, tx.CreatedAt.Unix(),
	)
	return err
}

func (db *DB) UpdateOperatorTx(ctx context.Context, id string, upd store.OperatorTxUpdate) error {
	return updateOperatorTx(ctx, db.ec(), id, upd)
}

func updateOperatorTx(ctx context.Context, e execCtx, id string, upd store.OperatorTxUpdate) error {
	var confirmedAt interface{}
	if upd.ConfirmedAt != nil {
		confirmedAt = upd.ConfirmedAt.Unix()
	}
	_, err := e.exec(ctx, `
		UPDATE operator_txs SET status = ?, tx_hash = ?, confirmed_at = ?,
			last_error = ?
		WHERE id = ?`, string(upd.Status), upd.TxHash, confirmedAt, upd.LastError, id)
	return err
}

func (db *DB) GetOperatorTx(ctx context.Context, id string) (store.OperatorTx, error) {
	row := db.ec().queryRow(ctx, operatorTxColumns+` WHERE id = ?`, id)
	tx, err := scanOperatorTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.OperatorTx{}, store.NotFound("getOperatorTx")
	}
	return tx, err
}

func (db *DB) GetPendingOperatorTxs(ctx context.Context) ([]store.OperatorTx, error) {
	rows, err := db.ec().query(ctx, operatorTxColumns+`
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

const operatorTxColumns = `
	SELECT id, game_id, action, params, status, tx_hash, created_at,
		confirmed_at, last_error
	FROM operator_txs`

func scanOperatorTx(row rowScanner) (store.OperatorTx, error) {
	var tx store.OperatorTx
	var params string
	var createdAt int64
	var confirmedAt sql.NullInt64

	err := row.Scan(
		&tx.ID, &tx.GameID, &tx.Action, &params, &tx.Status, &tx.TxHash,
		&createdAt, &confirmedAt, &tx.LastError,
	)
	if err != nil {
		return store.OperatorTx{}, err
	}

	if params != "" {
		if err := json.Unmarshal([]byte(params), &tx.Params); err != nil {
			return store.OperatorTx{}, err
		}
	}
	tx.CreatedAt = unixTime(createdAt)
	if confirmedAt.Valid {
		t := unixTime(confirmedAt.Int64)
		tx.ConfirmedAt = &t
	}
	return tx, nil
}
