package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kalinbas/chain-assassin/internal/store"
)

func (db *DB) InsertGame(ctx context.Context, g store.Game) error {
	return insertGame(ctx, db.ec(), g)
}

func insertGame(ctx context.Context, e execCtx, g store.Game) error {
	_, err := e.exec(ctx, `
		INSERT INTO games (
			game_id, title, entry_fee_wei, base_reward_wei,
			bps_first, bps_second, bps_third, bps_kills, bps_creator,
			creator_address, zone_center_lat_fixed, zone_center_lng_fixed,
			meeting_lat_fixed, meeting_lng_fixed, registration_deadline,
			game_date, max_duration_seconds, phase, player_count,
			total_collected_wei
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.GameID, g.Title, g.EntryFeeWei, g.BaseRewardWei,
		g.BpsFirst, g.BpsSecond, g.BpsThird, g.BpsKills, g.BpsCreator,
		g.CreatorAddress, g.ZoneCenterLatFixed, g.ZoneCenterLngFixed,
		g.MeetingLatFixed, g.MeetingLngFixed, g.RegistrationDeadline.Unix(),
		g.GameDate.Unix(), int64(g.MaxDuration/time.Second), g.Phase,
		g.PlayerCount, g.TotalCollected,
	)
	if isUniqueViolation(err) {
		return store.ConstraintViolation("insertGame", err)
	}
	return err
}

func (db *DB) GetGame(ctx context.Context, gameID uint64) (store.Game, error) {
	return getGame(ctx, db.ec(), gameID)
}

func getGame(ctx context.Context, e execCtx, gameID uint64) (store.Game, error) {
	row := e.queryRow(ctx, gameQueryColumns+` WHERE game_id = ?`, gameID)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Game{}, store.NotFound("getGame")
	}
	return g, err
}

const gameQueryColumns = `
	SELECT game_id, title, entry_fee_wei, base_reward_wei,
		bps_first, bps_second, bps_third, bps_kills, bps_creator,
		creator_address, zone_center_lat_fixed, zone_center_lng_fixed,
		meeting_lat_fixed, meeting_lng_fixed, registration_deadline,
		game_date, max_duration_seconds, phase, sub_phase,
		sub_phase_started_at, started_at, ended_at,
		winner_first, winner_second, winner_third, winner_top_killer,
		player_count, total_collected_wei
	FROM games`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row rowScanner) (store.Game, error) {
	var g store.Game
	var subPhase, winFirst, winSecond, winThird, winTop sql.NullString
	var subPhaseStartedAt, startedAt, endedAt sql.NullInt64
	var regDeadline, gameDate, maxDurSeconds int64

	err := row.Scan(
		&g.GameID, &g.Title, &g.EntryFeeWei, &g.BaseRewardWei,
		&g.BpsFirst, &g.BpsSecond, &g.BpsThird, &g.BpsKills, &g.BpsCreator,
		&g.CreatorAddress, &g.ZoneCenterLatFixed, &g.ZoneCenterLngFixed,
		&g.MeetingLatFixed, &g.MeetingLngFixed, &regDeadline,
		&gameDate, &maxDurSeconds, &g.Phase, &subPhase,
		&subPhaseStartedAt, &startedAt, &endedAt,
		&winFirst, &winSecond, &winThird, &winTop,
		&g.PlayerCount, &g.TotalCollected,
	)
	if err != nil {
		return store.Game{}, err
	}

	g.RegistrationDeadline = time.Unix(regDeadline, 0).UTC()
	g.GameDate = time.Unix(gameDate, 0).UTC()
	g.MaxDuration = time.Duration(maxDurSeconds) * time.Second

	if subPhase.Valid {
		sp := store.SubPhase(subPhase.String)
		g.SubPhase = &sp
	}
	if subPhaseStartedAt.Valid {
		t := time.Unix(subPhaseStartedAt.Int64, 0).UTC()
		g.SubPhaseStartedAt = &t
	}
	if startedAt.Valid {
		t := time.Unix(startedAt.Int64, 0).UTC()
		g.StartedAt = &t
	}
	if endedAt.Valid {
		t := time.Unix(endedAt.Int64, 0).UTC()
		g.EndedAt = &t
	}
	g.Winners = store.Winners{
		First:     winFirst.String,
		Second:    winSecond.String,
		Third:     winThird.String,
		TopKiller: winTop.String,
	}
	return g, nil
}

func (db *DB) UpdateGamePhase(ctx context.Context, gameID uint64, phase store.Phase, upd store.GamePhaseUpdate) error {
	return updateGamePhase(ctx, db.ec(), gameID, phase, upd)
}

func updateGamePhase(ctx context.Context, e execCtx, gameID uint64, phase store.Phase, upd store.GamePhaseUpdate) error {
	var subPhase interface{}
	var subPhaseStartedAt, startedAt, endedAt interface{}
	var winFirst, winSecond, winThird, winTop interface{}

	if upd.SubPhase != nil {
		subPhase = string(*upd.SubPhase)
	}
	if upd.SubPhaseStartedAt != nil {
		subPhaseStartedAt = upd.SubPhaseStartedAt.Unix()
	}
	if upd.StartedAt != nil {
		startedAt = upd.StartedAt.Unix()
	}
	if upd.EndedAt != nil {
		endedAt = upd.EndedAt.Unix()
	}
	if upd.Winners != nil {
		winFirst, winSecond, winThird, winTop =
			upd.Winners.First, upd.Winners.Second, upd.Winners.Third, upd.Winners.TopKiller
	}

	_, err := e.exec(ctx, `
		UPDATE games SET
			phase = ?,
			sub_phase = COALESCE(?, sub_phase),
			sub_phase_started_at = COALESCE(?, sub_phase_started_at),
			started_at = COALESCE(?, started_at),
			ended_at = COALESCE(?, ended_at),
			winner_first = COALESCE(?, winner_first),
			winner_second = COALESCE(?, winner_second),
			winner_third = COALESCE(?, winner_third),
			winner_top_killer = COALESCE(?, winner_top_killer)
		WHERE game_id = ?`,
		string(phase), subPhase, subPhaseStartedAt, startedAt, endedAt,
		winFirst, winSecond, winThird, winTop, gameID,
	)
	return err
}

func (db *DB) UpdateSubPhase(ctx context.Context, gameID uint64, sub store.SubPhase, startedAt time.Time) error {
	_, err := db.ec().exec(ctx, `
		UPDATE games SET sub_phase = ?, sub_phase_started_at = ?
		WHERE game_id = ?`, string(sub), startedAt.Unix(), gameID)
	return err
}

func (db *DB) GetGamesInPhase(ctx context.Context, phase store.Phase) ([]store.Game, error) {
	rows, err := db.ec().query(ctx, gameQueryColumns+` WHERE phase = ?`, string(phase))
	if err != nil {
		return nil, err
	}
	return scanGames(rows)
}

func (db *DB) GetAllGames(ctx context.Context) ([]store.Game, error) {
	rows, err := db.ec().query(ctx, gameQueryColumns+` ORDER BY game_id`)
	if err != nil {
		return nil, err
	}
	return scanGames(rows)
}

func scanGames(rows *sql.Rows) ([]store.Game, error) {
	defer rows.Close()
	var out []store.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (db *DB) UpdatePlayerCount(ctx context.Context, gameID uint64, count int, totalCollectedWei string) error {
	_, err := db.ec().exec(ctx, `
		UPDATE games SET player_count = ?, total_collected_wei = ?
		WHERE game_id = ?`, count, totalCollectedWei, gameID)
	return err
}

func (db *DB) InsertZoneShrinks(ctx context.Context, gameID uint64, schedule []store.ZoneShrink) error {
	e := db.ec()
	for _, z := range schedule {
		_, err := e.exec(ctx, `
			INSERT INTO zone_shrinks (game_id, at_second, radius_meters)
			VALUES (?, ?, ?)`, gameID, z.AtSecond, z.RadiusMeters)
		if err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) GetZoneShrinks(ctx context.Context, gameID uint64) ([]store.ZoneShrink, error) {
	rows, err := db.ec().query(ctx, `
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
