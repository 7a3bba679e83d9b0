package keygen_test

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/curve"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/keygen"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/params"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/transport"
)

func runKeygen(t *testing.T, n, k, th uint32, executionHash [32]byte) []*keygen.State {
	t.Helper()
	p, err := params.Validate(n, k, th)
	require.NoError(t, err)

	net := transport.NewInMemoryNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	signers := make([]*secp256k1.PrivateKey, n)
	verifyKeys := make(map[uint16]*secp256k1.PublicKey, n)
	for i := uint32(0); i < n; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		signers[i] = priv
		verifyKeys[uint16(i)] = priv.PubKey()
	}

	var wg sync.WaitGroup
	results := make([]*keygen.State, n)
	errs := make([]error, n)
	for i := uint32(0); i < n; i++ {
		wg.Add(1)
		go func(idx uint16) {
			defer wg.Done()
			session := transport.NewSession(net, executionHash, idx, uint16(n), signers[idx], verifyKeys)
			defer session.Close()
			st, err := keygen.Run(ctx, p, idx, session, rand.Reader)
			results[idx] = st
			errs[idx] = err
		}(uint16(i))
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	return results
}

func TestRun_AllPartiesAgreeOnGroupKey(t *testing.T) {
	var eh [32]byte
	eh[0] = 1
	states := runKeygen(t, 3, 3, 1, eh)

	for i := 1; i < len(states); i++ {
		require.True(t, states[0].GroupKey.Equal(states[i].GroupKey))
	}
	require.False(t, states[0].GroupKey.IsIdentity())
}

func TestRun_EachPartyOwnsDistinctKeyIDs(t *testing.T) {
	var eh [32]byte
	eh[0] = 2
	states := runKeygen(t, 3, 6, 1, eh)

	seen := make(map[uint32]bool)
	for _, st := range states {
		require.Len(t, st.KeyIDs, 2)
		for _, id := range st.KeyIDs {
			require.False(t, seen[id], "key id %d owned by more than one party", id)
			seen[id] = true
		}
	}
	require.Len(t, seen, 6)
}

func TestRun_SecretsReconstructGroupKey(t *testing.T) {
	var eh [32]byte
	eh[0] = 3
	n, k := uint32(3), uint32(3)
	states := runKeygen(t, n, k, 1, eh)

	ids := make([]curve.Scalar, 0, k)
	for keyID := uint32(0); keyID < k; keyID++ {
		ids = append(ids, curve.ScalarFromUint32(keyID))
	}

	var reconstructed curve.Point
	first := true
	for _, st := range states {
		for _, keyID := range st.KeyIDs {
			lambda := curve.LagrangeCoefficient(curve.ScalarFromUint32(keyID), ids)
			weighted := curve.ScalarBaseMul(st.Secrets[keyID].Mul(lambda))
			if first {
				reconstructed = weighted
				first = false
			} else {
				reconstructed = reconstructed.Add(weighted)
			}
		}
	}

	require.True(t, reconstructed.Equal(states[0].GroupKey))
}

func TestRun_DifferentExecutionHashesAreIndependent(t *testing.T) {
	var eh1, eh2 [32]byte
	eh1[0] = 4
	eh2[0] = 5

	s1 := runKeygen(t, 3, 3, 1, eh1)
	s2 := runKeygen(t, 3, 3, 1, eh2)

	require.False(t, s1[0].GroupKey.Equal(s2[0].GroupKey))
}
