// Package keygen implements the one-round distributed key generation
// described in spec §4.5: every party samples a degree-t Feldman polynomial,
// broadcasts per-key-id shares and a public commitment to it, and every
// party locally combines the n broadcasts into an identical group key and
// its own private key-share state.
//
// Grounded on original_source/src/keygen_state_machine.go for the broadcast
// shape (source, shares keyed by key_id, key_ids, poly_commitment) and on
// the teacher's round idiom (protocols/frost/sign/round1.go: a single
// Finalize-style function that broadcasts once and then blocks collecting
// everyone else's message).
package keygen

import (
	"context"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-multierror"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/curve"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/params"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/transport"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"
)

const roundBroadcast uint32 = 1

// Broadcast is the single message every party sends during keygen: its
// public polynomial commitment, and its evaluation of that polynomial at
// every key-id in the cohort (not just the ones it owns — every recipient
// needs its own row out of every sender's broadcast).
type Broadcast struct {
	Source         uint16
	KeyIDs         []uint32
	Shares         map[uint32]curve.Scalar
	PolyCommitment []curve.Point
}

type wireBroadcast struct {
	Source         uint16
	KeyIDs         []uint32
	ShareKeyIDs    []uint32
	ShareValues    [][]byte
	PolyCommitment [][]byte
}

func (b Broadcast) marshal() ([]byte, error) {
	w := wireBroadcast{
		Source: b.Source,
		KeyIDs: append([]uint32(nil), b.KeyIDs...),
	}
	keys := make([]uint32, 0, len(b.Shares))
	for k := range b.Shares {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		v := b.Shares[k].Bytes()
		w.ShareKeyIDs = append(w.ShareKeyIDs, k)
		w.ShareValues = append(w.ShareValues, v[:])
	}
	for _, c := range b.PolyCommitment {
		raw := c.Compress()
		w.PolyCommitment = append(w.PolyCommitment, raw[:])
	}
	return cbor.Marshal(w)
}

func unmarshalBroadcast(raw []byte) (Broadcast, error) {
	var w wireBroadcast
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return Broadcast{}, err
	}
	b := Broadcast{
		Source: w.Source,
		KeyIDs: w.KeyIDs,
		Shares: make(map[uint32]curve.Scalar, len(w.ShareKeyIDs)),
	}
	for i, k := range w.ShareKeyIDs {
		b.Shares[k] = curve.ScalarFromBytes(w.ShareValues[i])
	}
	for _, raw := range w.PolyCommitment {
		pt, ok := curve.DecompressPoint(raw)
		if !ok {
			return Broadcast{}, wstserr.New(wstserr.KindMpc, "poly commitment entry is not a valid point")
		}
		b.PolyCommitment = append(b.PolyCommitment, pt)
	}
	return b, nil
}

// State is the immutable result of a completed keygen run: this party's
// durable, private key-share material plus the data needed to verify and
// later participate in signing. Once constructed it is never mutated;
// signing sessions take it by value/copy, never by locked reference, per
// spec §5's "pass owned, immutable copies" resolution.
type State struct {
	PartyID         uint16
	NSigners        uint32
	Threshold       uint32
	TotalKeys       uint32
	KeyIDs          []uint32                   // key-ids this party owns
	PolyCommitments map[uint16][]curve.Point    // every party's public commitment, by source
	Secrets         map[uint32]curve.Scalar     // this party's private share, per owned key-id
	GroupKey        curve.Point
}

// Run executes the one-round keygen protocol: broadcast this party's
// polynomial commitment and shares, collect every other party's broadcast,
// verify each received share against its sender's commitment, and combine
// into a State.
func Run(ctx context.Context, p params.Params, selfIndex uint16, session *transport.Session, rng io.Reader) (*State, error) {
	ownKeyIDs, err := p.KeyIDsFor(uint32(selfIndex))
	if err != nil {
		return nil, err
	}

	secret, err := curve.RandomScalar(rng)
	if err != nil {
		return nil, wstserr.Wrap(wstserr.KindMpc, err, "sampling secret for party %d", selfIndex)
	}
	poly, err := curve.NewPolynomial(rng, p.T, secret)
	if err != nil {
		return nil, wstserr.Wrap(wstserr.KindMpc, err, "sampling polynomial for party %d", selfIndex)
	}

	shares := make(map[uint32]curve.Scalar, p.K)
	for keyID := uint32(0); keyID < p.K; keyID++ {
		shares[keyID] = poly.Evaluate(curve.ScalarFromUint32(keyID))
	}

	own := Broadcast{
		Source:         selfIndex,
		KeyIDs:         ownKeyIDs,
		Shares:         shares,
		PolyCommitment: poly.Commit(),
	}
	payload, err := own.marshal()
	if err != nil {
		return nil, wstserr.Wrap(wstserr.KindSerialization, err, "encoding broadcast for party %d", selfIndex)
	}
	if err := session.Broadcast(ctx, roundBroadcast, payload); err != nil {
		return nil, err
	}

	received, err := transport.RoundInput(ctx, session, roundBroadcast, uint16(p.N), func(in transport.Incoming) (Broadcast, error) {
		return unmarshalBroadcast(in.Payload)
	})
	if err != nil {
		return nil, err
	}

	sources := make([]uint16, 0, len(received))
	for src := range received {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	polyCommitments := make(map[uint16][]curve.Point, len(received))
	groupKey := curve.Identity()
	for _, src := range sources {
		b := received[src]
		polyCommitments[src] = b.PolyCommitment
		if len(b.PolyCommitment) == 0 {
			return nil, wstserr.New(wstserr.KindMpc, "party %d sent an empty poly commitment", src)
		}
		groupKey = groupKey.Add(b.PolyCommitment[0])
	}

	// Every owned key-id's share from every source is checked before
	// returning, rather than failing fast on the first bad share: a single
	// malicious broadcast can fail several (source, key_id) checks at once,
	// and the caller should see the whole set, not just whichever was
	// evaluated first.
	var verifyErrs *multierror.Error
	secrets := make(map[uint32]curve.Scalar, len(ownKeyIDs))
	for _, keyID := range ownKeyIDs {
		x := curve.ScalarFromUint32(keyID)
		var sum curve.Scalar
		first := true
		for _, src := range sources {
			b := received[src]
			share, ok := b.Shares[keyID]
			if !ok {
				verifyErrs = multierror.Append(verifyErrs, wstserr.New(wstserr.KindMpc, "party %d did not send a share for key id %d", src, keyID))
				continue
			}
			expected := curve.EvaluateCommitment(b.PolyCommitment, x)
			if !curve.ScalarBaseMul(share).Equal(expected) {
				verifyErrs = multierror.Append(verifyErrs, wstserr.New(wstserr.KindMpc, "share from party %d for key id %d fails its Feldman commitment check", src, keyID))
				continue
			}
			if first {
				sum = share
				first = false
			} else {
				sum = sum.Add(share)
			}
		}
		secrets[keyID] = sum
	}
	if verifyErrs.ErrorOrNil() != nil {
		return nil, wstserr.Wrap(wstserr.KindMpc, verifyErrs, "verifying received shares for party %d", selfIndex)
	}

	return &State{
		PartyID:         selfIndex,
		NSigners:        p.N,
		Threshold:       p.T,
		TotalKeys:       p.K,
		KeyIDs:          ownKeyIDs,
		PolyCommitments: polyCommitments,
		Secrets:         secrets,
		GroupKey:        groupKey,
	}, nil
}
