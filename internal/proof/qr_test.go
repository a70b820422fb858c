package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRRoundTrip(t *testing.T) {
	cases := []struct {
		gameID       uint64
		playerNumber uint32
	}{
		{1, 1},
		{42, 17},
		{999999, 9999},
	}

	for _, c := range cases {
		payload := EncodeQR(c.gameID, c.playerNumber)

		gid, pn, err := DecodeQR(payload)
		require.NoError(t, err)
		assert.Equal(t, c.gameID, gid)
		assert.Equal(t, c.playerNumber, pn)
	}
}

func TestDecodeQRRejectsOutOfDomain(t *testing.T) {
	_, _, err := DecodeQR("not-a-number")
	assert.Error(t, err)

	_, _, err = DecodeQR("-1")
	assert.Error(t, err)

	_, _, err = DecodeQR("999999999999999999999999")
	assert.Error(t, err)
}

func TestDecodeQRRejectsZeroPlayerNumber(t *testing.T) {
	payload := EncodeQR(5, 0)
	_, _, err := DecodeQR(payload)
	assert.Error(t, err)
}
