package proof

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndRecover(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr := AddressFromPubKey(priv.PubKey())
	msg := AuthMessage{GameID: 7, Address: addr, IssuedAt: time.Unix(1000, 0)}

	sig := Sign(msg, priv)

	recovered, err := Recover(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestValidateRejectsStaleMessage(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr := AddressFromPubKey(priv.PubKey())
	now := time.Unix(10_000, 0)
	msg := AuthMessage{GameID: 1, Address: addr, IssuedAt: now.Add(-time.Hour)}
	sig := Sign(msg, priv)

	err = Validate(msg, sig, 1, time.Minute, now)
	assert.ErrorContains(t, err, "MessageStale")
}

func TestValidateRejectsWrongGame(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr := AddressFromPubKey(priv.PubKey())
	now := time.Unix(10_000, 0)
	msg := AuthMessage{GameID: 1, Address: addr, IssuedAt: now}
	sig := Sign(msg, priv)

	err = Validate(msg, sig, 2, time.Minute, now)
	assert.ErrorContains(t, err, "WrongGame")
}

func TestValidateRejectsWrongSigner(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	other, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	addr := AddressFromPubKey(other.PubKey())
	now := time.Unix(10_000, 0)
	msg := AuthMessage{GameID: 1, Address: addr, IssuedAt: now}
	sig := Sign(msg, priv) // signed by the wrong key

	err = Validate(msg, sig, 1, time.Minute, now)
	assert.ErrorContains(t, err, "SignatureInvalid")
}
