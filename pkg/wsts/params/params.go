// Package params validates the (n, k, t) triple that governs a WSTS cohort
// and partitions the k virtual key-ids across the n parties.
//
// Grounded on original_source/src/utils.go (validate_parameters,
// generate_party_key_ids).
package params

import "github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"

// Params is the validated (n, k, t) triple for a single DKG/signing cohort.
type Params struct {
	// N is the number of parties.
	N uint32
	// K is the total number of virtual key-ids, distributed across N
	// parties in contiguous blocks.
	K uint32
	// T is the signing threshold: at least T+1 key-ids must contribute to
	// reconstruct a signature.
	T uint32
}

// Validate checks (n, k, t) against the invariants in spec §4.1:
// k > 0, k % n == 0, n > t.
func Validate(n, k, t uint32) (Params, error) {
	if n == 0 {
		return Params{}, wstserr.New(wstserr.KindSetup, "n(%d) == 0", n)
	}
	if k == 0 {
		return Params{}, wstserr.New(wstserr.KindSetup, "k(%d) == 0", k)
	}
	if k%n != 0 {
		return Params{}, wstserr.New(wstserr.KindSetup, "k(%d) %% n(%d) != 0", k, n)
	}
	if n <= t {
		return Params{}, wstserr.New(wstserr.KindSetup, "n(%d) <= t(%d)", n, t)
	}
	return Params{N: n, K: k, T: t}, nil
}

// Partition returns n contiguous blocks of k/n key-ids each, in ascending
// order: party p owns [p*k/n, (p+1)*k/n). The result is deterministic given
// only (n, k) and is shared by all parties without communication.
func Partition(n, k uint32) [][]uint32 {
	perParty := k / n
	blocks := make([][]uint32, n)
	start := uint32(0)
	for p := uint32(0); p < n; p++ {
		block := make([]uint32, perParty)
		for j := uint32(0); j < perParty; j++ {
			block[j] = start + j
		}
		blocks[p] = block
		start += perParty
	}
	return blocks
}

// KeyIDsFor returns the key-ids owned by party p, or an error if p is
// outside [0, n).
func (p Params) KeyIDsFor(party uint32) ([]uint32, error) {
	if party >= p.N {
		return nil, wstserr.New(wstserr.KindSetup, "unknown party_id %d (n=%d)", party, p.N)
	}
	blocks := Partition(p.N, p.K)
	return blocks[party], nil
}
