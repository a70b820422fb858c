package proof

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
)

// AuthMessage is the canonical content an ingress message's signature
// covers: which game it claims to be for, which address claims to have
// sent it, and when it was issued. The HTTP/WS transport that actually
// carries these bytes is out of scope; this package only validates the
// payload it is handed.
type AuthMessage struct {
	GameID    uint64
	Address   string
	IssuedAt  time.Time
}

// Digest returns the Keccak-256 hash of the message's canonical encoding,
// the same hash-then-verify shape as discovery/validation.go's channel
// and node announcement checks.
func (m AuthMessage) Digest() [32]byte {
	data := fmt.Sprintf("chain-assassin-auth:%d:%s:%d",
		m.GameID, m.Address, m.IssuedAt.Unix())
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(data))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Sign produces a recoverable compact signature over m's digest using the
// given private key. Used by tests and simulation tooling; real player
// signatures are produced client-side.
func Sign(m AuthMessage, priv *btcec.PrivateKey) []byte {
	digest := m.Digest()
	sig := ecdsa.SignCompact(priv, digest[:], true)
	return sig
}

// Recover recovers the public key that produced sig over m's digest and
// returns the corresponding address, in the same hex-of-hash form used
// elsewhere in the system for wallet addresses.
func Recover(m AuthMessage, sig []byte) (string, error) {
	digest := m.Digest()

	pub, _, err := ecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return "", gerrors.Wrap("proof.Recover", gerrors.CodeSignatureInvalid, err)
	}

	return AddressFromPubKey(pub), nil
}

// AddressFromPubKey derives an address from an uncompressed public key by
// hashing its serialized form and taking the trailing 20 bytes, the same
// derivation used by public EVM-style chains.
func AddressFromPubKey(pub *btcec.PublicKey) string {
	raw := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(raw[1:])
	return fmt.Sprintf("0x%x", h.Sum(nil)[12:])
}

// Validate checks staleness, game-scoping, and signature validity of an
// auth message.
func Validate(m AuthMessage, sig []byte, expectedGameID uint64, maxAge time.Duration, now time.Time) error {
	if m.GameID != expectedGameID {
		return gerrors.New("proof.Validate", gerrors.CodeWrongGame)
	}
	if now.Sub(m.IssuedAt) > maxAge || m.IssuedAt.After(now) {
		return gerrors.New("proof.Validate", gerrors.CodeMessageStale)
	}

	recovered, err := Recover(m, sig)
	if err != nil {
		return err
	}
	if recovered != m.Address {
		return gerrors.New("proof.Validate", gerrors.CodeSignatureInvalid)
	}

	return nil
}
