package chainio

import (
	"context"
	"encoding/json"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/store"
)

// GameConfig is the chain-authoritative configuration of one game: the
// fields set at creation and never mutated off-chain.
type GameConfig struct {
	GameID               uint64
	Title                string
	EntryFeeWei          string
	BaseRewardWei        string
	BpsFirst             int
	BpsSecond            int
	BpsThird             int
	BpsKills             int
	BpsCreator           int
	CreatorAddress       string
	ZoneCenterLatFixed   int64
	ZoneCenterLngFixed   int64
	MeetingLatFixed      int64
	MeetingLngFixed      int64
	RegistrationDeadline int64
	GameDate             int64
	MaxDurationSeconds   int64
}

// GameState is the chain-authoritative mutable state of one game.
type GameState struct {
	Phase          store.Phase
	StartedAt      int64
	EndedAt        int64
	PlayerCount    int
	TotalCollected string
	Winners        store.Winners
}

// PlayerOnChain is the chain's view of one registered player.
type PlayerOnChain struct {
	Address      string
	PlayerNumber uint32
	CheckedIn    bool
	IsAlive      bool
	Kills        int
}

// GetGameConfig reads a game's immutable configuration.
func (c *Client) GetGameConfig(ctx context.Context, gameID uint64) (GameConfig, error) {
	raw, err := c.call(ctx, "game_getConfig", gameID)
	if err != nil {
		return GameConfig{}, err
	}
	var out GameConfig
	if err := json.Unmarshal(raw, &out); err != nil {
		return GameConfig{}, gerrors.Wrap("chainio.GetGameConfig", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// GetGameState reads a game's current mutable state.
func (c *Client) GetGameState(ctx context.Context, gameID uint64) (GameState, error) {
	raw, err := c.call(ctx, "game_getState", gameID)
	if err != nil {
		return GameState{}, err
	}
	var out GameState
	if err := json.Unmarshal(raw, &out); err != nil {
		return GameState{}, gerrors.Wrap("chainio.GetGameState", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// GetZoneShrinks reads the immutable shrink schedule set at game
// creation.
func (c *Client) GetZoneShrinks(ctx context.Context, gameID uint64) ([]store.ZoneShrink, error) {
	raw, err := c.call(ctx, "game_getZoneShrinks", gameID)
	if err != nil {
		return nil, err
	}
	var out []store.ZoneShrink
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, gerrors.Wrap("chainio.GetZoneShrinks", gerrors.CodeRpcUnavailable, err)
	}
	for i := range out {
		out[i].GameID = gameID
	}
	return out, nil
}

// GetPlayer reads one registered player's on-chain record.
func (c *Client) GetPlayer(ctx context.Context, gameID uint64, address string) (PlayerOnChain, error) {
	raw, err := c.call(ctx, "game_getPlayer", gameID, address)
	if err != nil {
		return PlayerOnChain{}, err
	}
	var out PlayerOnChain
	if err := json.Unmarshal(raw, &out); err != nil {
		return PlayerOnChain{}, gerrors.Wrap("chainio.GetPlayer", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// GetPlayerByNumber reads one registered player's on-chain record by its
// assigned player number, used by full rebuild-from-chain which has no
// address to key off of.
func (c *Client) GetPlayerByNumber(ctx context.Context, gameID uint64, playerNumber uint32) (PlayerOnChain, error) {
	raw, err := c.call(ctx, "game_getPlayerByNumber", gameID, playerNumber)
	if err != nil {
		return PlayerOnChain{}, err
	}
	var out PlayerOnChain
	if err := json.Unmarshal(raw, &out); err != nil {
		return PlayerOnChain{}, gerrors.Wrap("chainio.GetPlayerByNumber", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// TxStatus is the confirmation state of a previously submitted operator
// transaction, used by the operator queue's restart reconciliation to
// avoid blindly resubmitting work the chain already settled.
type TxStatus struct {
	Confirmed bool
	Reverted  bool
}

// GetTxStatus reads whether a previously submitted transaction has
// confirmed, reverted, or is still unknown to the chain (e.g. dropped
// from the mempool and safe to resubmit with a fresh nonce).
func (c *Client) GetTxStatus(ctx context.Context, txHash string) (TxStatus, error) {
	raw, err := c.call(ctx, "chain_getTxStatus", txHash)
	if err != nil {
		return TxStatus{}, err
	}
	var out TxStatus
	if err := json.Unmarshal(raw, &out); err != nil {
		return TxStatus{}, gerrors.Wrap("chainio.GetTxStatus", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// PlatformConstants are the chain's fixed, game-independent rules, read
// once at startup.
type PlatformConstants struct {
	MinPlayers int
}

// GetPlatformConstants reads the platform-wide rules.
func (c *Client) GetPlatformConstants(ctx context.Context) (PlatformConstants, error) {
	raw, err := c.call(ctx, "platform_getConstants")
	if err != nil {
		return PlatformConstants{}, err
	}
	var out PlatformConstants
	if err := json.Unmarshal(raw, &out); err != nil {
		return PlatformConstants{}, gerrors.Wrap("chainio.GetPlatformConstants", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// NextGameID reads the next game id the contract will hand out, used by
// startup recovery to discover games created since the server last ran.
func (c *Client) NextGameID(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "game_nextId")
	if err != nil {
		return 0, err
	}
	var out uint64
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, gerrors.Wrap("chainio.NextGameID", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}

// GetOperatorNonce reads the operator account's current transaction
// nonce, used once at startup to seed the operator queue so a restart
// never replays a nonce the chain already consumed.
func (c *Client) GetOperatorNonce(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "account_getNonce", c.operatorAddress())
	if err != nil {
		return 0, err
	}
	var out uint64
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, gerrors.Wrap("chainio.GetOperatorNonce", gerrors.CodeRpcUnavailable, err)
	}
	return out, nil
}
