// Package proof implements the QR payload codec and auth-message
// signature validation used by the kill verifier, heartbeat enforcer, and
// check-in flow.
package proof

import (
	"math/big"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
)

// qrModulus and qrMultiplier implement the numeric-only multiplicative
// cipher over gameId*10000+playerNumber. Both are build-time constants,
// never configurable at runtime, so that a payload minted by one server
// build can never be replayed against another with a different cipher.
const (
	qrModulus    int64 = 999999999989 // large prime below 10^12
	qrMultiplier int64 = 123456789011
)

// playerSlotWidth is the multiplier that reserves four decimal digits for
// the player-number component of the plaintext (gameId*10000 + playerNumber).
const playerSlotWidth = 10000

var qrMultiplierInverse int64

func init() {
	m := big.NewInt(qrModulus)
	a := big.NewInt(qrMultiplier)
	inv := new(big.Int).ModInverse(a, m)
	if inv == nil {
		panic("proof: qrMultiplier has no inverse mod qrModulus")
	}
	qrMultiplierInverse = inv.Int64()
}

// EncodeQR produces the obfuscated numeric QR payload for a given game and
// player number.
func EncodeQR(gameID uint64, playerNumber uint32) string {
	plain := int64(gameID)*playerSlotWidth + int64(playerNumber)
	code := mulmod(plain, qrMultiplier, qrModulus)
	return big.NewInt(code).String()
}

// DecodeQR reverses EncodeQR. It rejects payloads outside the valid
// numeric domain and payloads whose decoded player number is zero; the
// caller is responsible for rejecting player numbers exceeding the
// game's registered count, since the codec has no store access.
func DecodeQR(payload string) (gameID uint64, playerNumber uint32, err error) {
	code, ok := new(big.Int).SetString(payload, 10)
	if !ok || code.Sign() < 0 || code.Cmp(big.NewInt(qrModulus)) >= 0 {
		return 0, 0, gerrors.New("proof.DecodeQR", gerrors.CodeInvalidQr)
	}

	plain := mulmod(code.Int64(), qrMultiplierInverse, qrModulus)
	if plain <= 0 {
		return 0, 0, gerrors.New("proof.DecodeQR", gerrors.CodeInvalidQr)
	}

	gid := plain / playerSlotWidth
	pn := plain % playerSlotWidth
	if pn == 0 || gid <= 0 {
		return 0, 0, gerrors.New("proof.DecodeQR", gerrors.CodeInvalidQr)
	}

	return uint64(gid), uint32(pn), nil
}

// mulmod computes (a*b) mod m without risking int64 overflow, via big.Int.
func mulmod(a, b, m int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Mod(r, big.NewInt(m))
	return r.Int64()
}
