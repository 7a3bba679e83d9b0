package store_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/curve"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/keygen"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/store"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"
)

func sampleState(t *testing.T) *keygen.State {
	t.Helper()
	secret, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	groupKey := curve.ScalarBaseMul(secret)

	other, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)

	return &keygen.State{
		PartyID:   1,
		NSigners:  3,
		Threshold: 1,
		TotalKeys: 3,
		KeyIDs:    []uint32{1},
		PolyCommitments: map[uint16][]curve.Point{
			0: {curve.ScalarBaseMul(other), curve.ScalarBaseMul(other)},
			1: {groupKey, curve.ScalarBaseMul(other)},
		},
		Secrets: map[uint32]curve.Scalar{
			1: secret,
		},
		GroupKey: groupKey,
	}
}

func TestPutGet_RoundTrips(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	want := sampleState(t)
	var metaHash [32]byte
	metaHash[0] = 9

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, metaHash, want))

	got, err := s.Get(ctx, metaHash)
	require.NoError(t, err)

	require.Equal(t, want.PartyID, got.PartyID)
	require.Equal(t, want.NSigners, got.NSigners)
	require.Equal(t, want.Threshold, got.Threshold)
	require.Equal(t, want.TotalKeys, got.TotalKeys)
	require.Equal(t, want.KeyIDs, got.KeyIDs)
	require.True(t, want.GroupKey.Equal(got.GroupKey))
	require.True(t, want.Secrets[1].Equal(got.Secrets[1]))
	for src := range want.PolyCommitments {
		for i, pt := range want.PolyCommitments[src] {
			require.True(t, pt.Equal(got.PolyCommitments[src][i]))
		}
	}
}

func TestGet_MissingKeyReturnsContextError(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	var metaHash [32]byte
	metaHash[0] = 42

	_, err = s.Get(context.Background(), metaHash)
	require.Error(t, err)
	require.True(t, wstserr.Is(err, wstserr.KindContext))
	require.Contains(t, err.Error(), "Key entry not found")
}

func TestPut_DistinctMetaHashesDoNotCollide(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	st1 := sampleState(t)
	st2 := sampleState(t)

	var h1, h2 [32]byte
	h1[0] = 1
	h2[0] = 2

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, h1, st1))
	require.NoError(t, s.Put(ctx, h2, st2))

	got1, err := s.Get(ctx, h1)
	require.NoError(t, err)
	got2, err := s.Get(ctx, h2)
	require.NoError(t, err)

	require.True(t, got1.GroupKey.Equal(st1.GroupKey))
	require.True(t, got2.GroupKey.Equal(st2.GroupKey))
}
