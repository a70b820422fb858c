package chainio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalinbas/chain-assassin/internal/gerrors"
)

func TestClassifyRPCError(t *testing.T) {
	cases := []struct {
		msg  string
		code gerrors.Code
	}{
		{"nonce too low", gerrors.CodeNonceRace},
		{"replacement transaction underpriced", gerrors.CodeNonceRace},
		{"execution reverted: not the creator", gerrors.CodeRevertedByContract},
		{"connection refused", gerrors.CodeRpcUnavailable},
	}

	for _, tc := range cases {
		err := classifyRPCError("op", tc.msg)
		code, ok := gerrors.CodeOf(err)
		require.True(t, ok)
		require.Equal(t, tc.code, code, tc.msg)
	}
}

func TestSigningDigestVariesWithInputs(t *testing.T) {
	d1 := signingDigest(1, "0xc", "game_start", 0, []interface{}{uint64(1)})
	d2 := signingDigest(1, "0xc", "game_start", 1, []interface{}{uint64(1)})
	require.NotEqual(t, d1, d2, "nonce must be covered by the signing digest")
}
