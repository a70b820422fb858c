package store

import (
	"context"
	"time"
)

// GamePhaseUpdate carries the optional fields updateGamePhase may set
// alongside a phase transition.
type GamePhaseUpdate struct {
	StartedAt         *time.Time
	EndedAt           *time.Time
	SubPhase          *SubPhase
	SubPhaseStartedAt *time.Time
	Winners           *Winners
}

// OperatorTxUpdate carries the fields updateOperatorTx may change.
type OperatorTxUpdate struct {
	Status      OperatorTxStatus
	TxHash      string
	ConfirmedAt *time.Time
	LastError   string
}

// Store is the typed persistence contract every component in C7-C11
// depends on. Implementations must make the multi-row transitions listed in
// the method docs atomic.
type Store interface {
	// Games.
	InsertGame(ctx context.Context, g Game) error
	GetGame(ctx context.Context, gameID uint64) (Game, error)
	UpdateGamePhase(ctx context.Context, gameID uint64, phase Phase, upd GamePhaseUpdate) error
	UpdateSubPhase(ctx context.Context, gameID uint64, sub SubPhase, startedAt time.Time) error
	GetGamesInPhase(ctx context.Context, phase Phase) ([]Game, error)
	GetAllGames(ctx context.Context) ([]Game, error)
	UpdatePlayerCount(ctx context.Context, gameID uint64, count int, totalCollectedWei string) error

	// Zone shrinks.
	InsertZoneShrinks(ctx context.Context, gameID uint64, schedule []ZoneShrink) error
	GetZoneShrinks(ctx context.Context, gameID uint64) ([]ZoneShrink, error)

	// Players.
	InsertPlayer(ctx context.Context, p Player) error
	GetPlayer(ctx context.Context, gameID uint64, address string) (Player, error)
	GetPlayerByNumber(ctx context.Context, gameID uint64, playerNumber uint32) (Player, error)
	GetPlayers(ctx context.Context, gameID uint64) ([]Player, error)
	GetAlivePlayers(ctx context.Context, gameID uint64) ([]Player, error)
	GetPlayerCount(ctx context.Context, gameID uint64) (int, error)
	GetAlivePlayerCount(ctx context.Context, gameID uint64) (int, error)
	GetCheckedInCount(ctx context.Context, gameID uint64) (int, error)
	SetPlayerCheckedIn(ctx context.Context, gameID uint64, address string, at time.Time) error
	SetPlayerClaimed(ctx context.Context, gameID uint64, address string, claimed bool) error
	SetPlayerConnectionState(ctx context.Context, gameID uint64, address string, state ConnectionState, at time.Time) error

	// EliminatePlayer, IncrementPlayerKills, SetTargetAssignment,
	// RemoveTargetAssignment participate in the atomic kill/elimination
	// transaction driven by WithTx; see WithTx doc below.
	EliminatePlayer(ctx context.Context, gameID uint64, address string, by string, reason EliminationReason, at time.Time) error
	IncrementPlayerKills(ctx context.Context, gameID uint64, address string) error

	// Target assignments.
	SetTargetAssignment(ctx context.Context, gameID uint64, hunter, target string) error
	GetTargetAssignment(ctx context.Context, gameID uint64, hunter string) (string, error)
	RemoveTargetAssignment(ctx context.Context, gameID uint64, hunter string) error
	FindHunterOf(ctx context.Context, gameID uint64, target string) (string, error)
	GetAllTargetAssignments(ctx context.Context, gameID uint64) (map[string]string, error)

	// Kills.
	InsertKill(ctx context.Context, k Kill) error
	UpdateKillTxHash(ctx context.Context, killID string, txHash string) error
	GetKills(ctx context.Context, gameID uint64) ([]Kill, error)

	// Location pings.
	InsertLocationPing(ctx context.Context, p LocationPing) error
	GetLatestLocationPing(ctx context.Context, gameID uint64, address string) (LocationPing, error)
	PruneLocationPings(ctx context.Context, olderThan time.Time) error

	// Heartbeats.
	InitPlayersHeartbeat(ctx context.Context, gameID uint64, at time.Time) error
	UpdateLastHeartbeat(ctx context.Context, gameID uint64, address string, at time.Time) error
	GetHeartbeatExpiredPlayers(ctx context.Context, gameID uint64, now time.Time, interval time.Duration) ([]Player, error)
	InsertHeartbeatScan(ctx context.Context, s HeartbeatScan) error

	// Operator tx log.
	InsertOperatorTx(ctx context.Context, tx OperatorTx) error
	UpdateOperatorTx(ctx context.Context, id string, upd OperatorTxUpdate) error
	GetOperatorTx(ctx context.Context, id string) (OperatorTx, error)
	GetPendingOperatorTxs(ctx context.Context) ([]OperatorTx, error)

	// Listener sync state.
	GetSyncState(ctx context.Context, key string) (string, bool, error)
	SetSyncState(ctx context.Context, key, value string) error

	// Game photos.
	AddGamePhoto(ctx context.Context, photo GamePhoto) error
	GetGamePhotos(ctx context.Context, gameID uint64) ([]GamePhoto, error)

	// WithTx runs fn inside one atomic transaction against a
	// transaction-scoped Store; used for the kill/elimination pipeline
	// (record kill + increment hunter kills + eliminate target +
	// rewire target chain) and for rebuild-from-chain's per-game load.
	WithTx(ctx context.Context, fn func(txStore Store) error) error

	// ResetGameData wipes all game rows, used before a full rebuild from chain.
	ResetGameData(ctx context.Context) error

	// Close releases the underlying connection pool.
	Close() error
}
