package params_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/params"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"
)

func TestValidate_Boundaries(t *testing.T) {
	cases := []struct {
		name    string
		n, k, t uint32
		wantErr bool
	}{
		{"k_zero", 3, 0, 1, true},
		{"k_not_multiple_of_n", 3, 4, 1, true},
		{"n_leq_t", 3, 3, 3, true},
		{"n_lt_t", 3, 3, 5, true},
		{"valid", 3, 3, 2, false},
		{"valid_t_eq_n_minus_1", 3, 3, 2, false},
		{"valid_large_k", 4, 12, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := params.Validate(c.n, c.k, c.t)
			if c.wantErr {
				require.Error(t, err)
				require.True(t, wstserr.Is(err, wstserr.KindSetup))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPartition_CoversExactlyOnce(t *testing.T) {
	n, k := uint32(4), uint32(12)
	blocks := params.Partition(n, k)
	require.Len(t, blocks, int(n))

	seen := make(map[uint32]bool)
	var prevEnd uint32
	for _, b := range blocks {
		require.Len(t, b, int(k/n))
		for idx, id := range b {
			if idx > 0 {
				require.Equal(t, b[idx-1]+1, id, "block must be contiguous ascending")
			}
			require.False(t, seen[id], "key id %d covered twice", id)
			seen[id] = true
		}
		require.Equal(t, prevEnd, b[0], "blocks must be contiguous across parties")
		prevEnd = b[len(b)-1] + 1
	}
	require.Len(t, seen, int(k))
}

func TestKeyIDsFor_UnknownParty(t *testing.T) {
	p, err := params.Validate(3, 3, 2)
	require.NoError(t, err)

	_, err = p.KeyIDsFor(3)
	require.Error(t, err)
	require.True(t, wstserr.Is(err, wstserr.KindSetup))

	ids, err := p.KeyIDsFor(0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, ids)
}
