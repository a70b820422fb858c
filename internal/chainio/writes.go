package chainio

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
	"github.com/kalinbas/chain-assassin/internal/store"
)

// WriteResult is what every operator-only write returns: the submitted
// transaction's hash, for the operator queue to track to confirmation.
type WriteResult struct {
	TxHash string
}

// send signs action's canonical encoding with the operator key and
// submits it, classifying any chain-side rejection via call's error
// classification.
func (c *Client) send(ctx context.Context, method string, nonce uint64, params ...interface{}) (WriteResult, error) {
	digest := signingDigest(c.cfg.ChainID, c.cfg.ContractAddress, method, nonce, params)
	sig := ecdsa.SignCompact(c.cfg.OperatorKey, digest[:], true)

	args := append([]interface{}{nonce, fmt.Sprintf("0x%x", sig)}, params...)
	raw, err := c.call(ctx, method, args...)
	if err != nil {
		return WriteResult{}, err
	}

	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return WriteResult{}, gerrors.Wrap("chainio.send", gerrors.CodeRpcUnavailable, err)
	}
	return WriteResult{TxHash: txHash}, nil
}

// signingDigest hashes the operator tx's method, nonce, and arguments the
// same way proof.AuthMessage.Digest hashes player auth payloads: a fixed
// canonical string fed through Keccak-256.
func signingDigest(chainID int64, contract, method string, nonce uint64, params []interface{}) [32]byte {
	enc, _ := json.Marshal(params)
	data := fmt.Sprintf("chain-assassin-tx:%d:%s:%s:%d:%s", chainID, contract, method, nonce, enc)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(data))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CreateGame submits a new game's immutable configuration.
func (c *Client) CreateGame(ctx context.Context, nonce uint64, cfg GameConfig, shrinks []store.ZoneShrink) (WriteResult, error) {
	return c.send(ctx, "game_create", nonce, cfg, shrinks)
}

// StartGame transitions a game from REGISTRATION to ACTIVE on-chain.
func (c *Client) StartGame(ctx context.Context, nonce uint64, gameID uint64) (WriteResult, error) {
	return c.send(ctx, "game_start", nonce, gameID)
}

// RecordKill submits one verified kill for permanent, public attestation.
func (c *Client) RecordKill(ctx context.Context, nonce uint64, gameID uint64, k store.Kill) (WriteResult, error) {
	return c.send(ctx, "game_recordKill", nonce, gameID, k.HunterAddress, k.TargetAddress, k.ID)
}

// EliminatePlayer submits a non-kill elimination (zone violation or
// heartbeat timeout).
func (c *Client) EliminatePlayer(ctx context.Context, nonce uint64, gameID uint64, address string, reason store.EliminationReason) (WriteResult, error) {
	return c.send(ctx, "game_eliminatePlayer", nonce, gameID, address, string(reason))
}

// EndGame submits the final winners and closes the game for prize
// withdrawal.
func (c *Client) EndGame(ctx context.Context, nonce uint64, gameID uint64, winners store.Winners) (WriteResult, error) {
	return c.send(ctx, "game_end", nonce, gameID, winners)
}

// TriggerCancellation submits a registration-phase cancellation: the
// registration deadline passed without enough players.
func (c *Client) TriggerCancellation(ctx context.Context, nonce uint64, gameID uint64) (WriteResult, error) {
	return c.send(ctx, "game_triggerCancellation", nonce, gameID)
}

// TriggerExpiry submits an active-phase expiry.
func (c *Client) TriggerExpiry(ctx context.Context, nonce uint64, gameID uint64) (WriteResult, error) {
	return c.send(ctx, "game_triggerExpiry", nonce, gameID)
}

// WithdrawCreatorFees submits the creator's fee withdrawal.
func (c *Client) WithdrawCreatorFees(ctx context.Context, nonce uint64, gameID uint64) (WriteResult, error) {
	return c.send(ctx, "game_withdrawCreatorFees", nonce, gameID)
}

// WithdrawPlatformFees submits the platform's fee withdrawal.
func (c *Client) WithdrawPlatformFees(ctx context.Context, nonce uint64, gameID uint64) (WriteResult, error) {
	return c.send(ctx, "game_withdrawPlatformFees", nonce, gameID)
}

// FundWallet submits a top-up transfer to address, used to keep a
// player's gas wallet funded for claim transactions.
func (c *Client) FundWallet(ctx context.Context, nonce uint64, address string, amountWei string) (WriteResult, error) {
	return c.send(ctx, "wallet_fund", nonce, address, amountWei)
}
