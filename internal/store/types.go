// Package store defines the typed persistence contract for every entity
// in (C3): games, zone shrinks, players, target assignments, kills, location
// pings, heartbeat scans, the operator tx log, game photos, and listener
// sync state.
package store

import "time"

// Phase is a Game's top-level, chain-authoritative lifecycle phase.
type Phase string

const (
	PhaseRegistration Phase = "REGISTRATION"
	PhaseActive       Phase = "ACTIVE"
	PhaseEnded        Phase = "ENDED"
	PhaseCancelled    Phase = "CANCELLED"
)

// SubPhase is the server-advisory sub-state within PhaseActive.
type SubPhase string

const (
	SubPhaseCheckin SubPhase = "checkin"
	SubPhasePregame SubPhase = "pregame"
	SubPhaseGame    SubPhase = "game"
)

// Winners holds the four chain-attested prize recipients of an ended
// game.
type Winners struct {
	First     string
	Second    string
	Third     string
	TopKiller string
}

// Game mirrors Game entity.
type Game struct {
	GameID uint64
	Title  string

	EntryFeeWei   string
	BaseRewardWei string
	BpsFirst      int
	BpsSecond     int
	BpsThird      int
	BpsKills      int
	BpsCreator    int

	CreatorAddress string

	ZoneCenterLatFixed int64
	ZoneCenterLngFixed int64
	MeetingLatFixed    int64
	MeetingLngFixed    int64

	RegistrationDeadline time.Time
	GameDate             time.Time
	MaxDuration          time.Duration

	Phase             Phase
	SubPhase          *SubPhase
	SubPhaseStartedAt *time.Time
	StartedAt         *time.Time
	EndedAt           *time.Time
	Winners           Winners

	PlayerCount     int
	TotalCollected  string
}

// ExpiryDeadline is gameDate + maxDuration.
func (g Game) ExpiryDeadline() time.Time {
	return g.GameDate.Add(g.MaxDuration)
}

// ZoneShrink is one entry of a game's shrink schedule.
type ZoneShrink struct {
	GameID       uint64
	AtSecond     int64
	RadiusMeters float64
}

// EliminationReason enumerates why a player stopped being alive.
type EliminationReason string

const (
	EliminationKill      EliminationReason = "kill"
	EliminationZone      EliminationReason = "zone_violation"
	EliminationHeartbeat EliminationReason = "heartbeat_timeout"
)

// ConnectionState is the advisory, transport-reported presence state for
// a player.
type ConnectionState string

const (
	ConnectionUnknown      ConnectionState = ""
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// Player mirrors Player entity.
type Player struct {
	GameID       uint64
	Address      string
	PlayerNumber uint32

	IsAlive     bool
	Kills       int
	CheckedIn   bool
	BluetoothID string

	LastHeartbeatAt *time.Time

	EliminatedAt     *time.Time
	EliminatedBy     string
	EliminatedReason EliminationReason

	HasClaimed bool

	ConnectionState     ConnectionState
	LastSeenConnectedAt *time.Time
}

// TargetAssignment mirrors TargetAssignment entity.
type TargetAssignment struct {
	GameID         uint64
	HunterAddress  string
	TargetAddress  string
}

// Kill mirrors Kill entity.
type Kill struct {
	ID            string
	GameID        uint64
	HunterAddress string
	TargetAddress string
	Timestamp     time.Time
	HunterLatFixed int64
	HunterLngFixed int64
	TargetLatFixed int64
	TargetLngFixed int64
	DistanceMeters float64
	TxHash         string
}

// LocationPing mirrors LocationPing entity: the latest known point for
// (gameId, address).
type LocationPing struct {
	GameID    uint64
	Address   string
	LatFixed  int64
	LngFixed  int64
	Timestamp time.Time
	IsInZone  bool
}

// HeartbeatScan mirrors HeartbeatScan audit entity.
type HeartbeatScan struct {
	ID             string
	GameID         uint64
	ScannerAddress string
	ScannedAddress string
	Timestamp      time.Time
	ScannerLatFixed int64
	ScannerLngFixed int64
	DistanceMeters  float64
}

// OperatorTxStatus is the lifecycle state of an OperatorTx.
type OperatorTxStatus string

const (
	OperatorTxPending   OperatorTxStatus = "pending"
	OperatorTxSubmitted OperatorTxStatus = "submitted"
	OperatorTxConfirmed OperatorTxStatus = "confirmed"
	OperatorTxFailed    OperatorTxStatus = "failed"
)

// OperatorTxAction enumerates the on-chain write operations the operator
// queue can submit.
type OperatorTxAction string

const (
	ActionCreateGame          OperatorTxAction = "createGame"
	ActionStartGame           OperatorTxAction = "startGame"
	ActionRecordKill          OperatorTxAction = "recordKill"
	ActionEliminatePlayer     OperatorTxAction = "eliminatePlayer"
	ActionEndGame             OperatorTxAction = "endGame"
	ActionTriggerCancellation OperatorTxAction = "triggerCancellation"
	ActionTriggerExpiry       OperatorTxAction = "triggerExpiry"
	ActionWithdrawCreatorFees OperatorTxAction = "withdrawCreatorFees"
	ActionWithdrawPlatformFees OperatorTxAction = "withdrawPlatformFees"
)

// OperatorTx mirrors OperatorTx queue entry.
type OperatorTx struct {
	ID          string
	GameID      uint64
	Action      OperatorTxAction
	Params      map[string]interface{}
	Status      OperatorTxStatus
	TxHash      string
	CreatedAt   time.Time
	ConfirmedAt *time.Time
	LastError   string
}

// GamePhoto is a metadata-only attachment row; the file bytes themselves
// live with an external collaborator.
type GamePhoto struct {
	ID         string
	GameID     uint64
	URL        string
	UploadedBy string
	UploadedAt time.Time
}
