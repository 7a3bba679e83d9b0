// Package signing implements the two-round threshold signing protocol of
// spec §4.6: a nonce-commitment round, a signature-share round, Lagrange-
// weighted aggregation across every key-id in the cohort, and dual
// verification (a direct WSTS-native Schnorr check, then an independent
// re-parse-and-verify through the FROST-TR wire encoding).
//
// Grounded on original_source/src/signing_state_machine.go for the two-round
// shape (Round1{source,key_ids,nonce}, Round2{source,signature_share}) and on
// the teacher's hedged-nonce derivation (protocols/frost/sign/round1.go,
// github.com/zeebo/blake3), generalized here to the public, recomputable
// FROST binding factor every party must derive identically (unkeyed, since
// it has no secret input, unlike the teacher's per-party nonce hedge).
package signing

import (
	"context"
	"io"
	"math/big"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/curve"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/frost"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/keygen"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/transport"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"
)

const (
	roundNonce     uint32 = 1
	roundSigShare  uint32 = 2
	bindingFactorTag      = "wsts-blueprint/frost-tr/binding-factor"
)

// Round1 is the nonce-commitment broadcast.
type Round1 struct {
	Source uint16
	KeyIDs []uint32
	D, E   curve.Point
}

type wireRound1 struct {
	Source uint16
	KeyIDs []uint32
	D, E   []byte
}

func (r Round1) marshal() ([]byte, error) {
	d := r.D.Compress()
	e := r.E.Compress()
	return cbor.Marshal(wireRound1{Source: r.Source, KeyIDs: r.KeyIDs, D: d[:], E: e[:]})
}

func unmarshalRound1(raw []byte) (Round1, error) {
	var w wireRound1
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return Round1{}, err
	}
	d, ok := curve.DecompressPoint(w.D)
	if !ok {
		return Round1{}, wstserr.New(wstserr.KindMpc, "round1 D from party %d is not a valid point", w.Source)
	}
	e, ok := curve.DecompressPoint(w.E)
	if !ok {
		return Round1{}, wstserr.New(wstserr.KindMpc, "round1 E from party %d is not a valid point", w.Source)
	}
	return Round1{Source: w.Source, KeyIDs: w.KeyIDs, D: d, E: e}, nil
}

// Round2 is the signature-share broadcast.
type Round2 struct {
	Source         uint16
	SignatureShare curve.Scalar
}

type wireRound2 struct {
	Source         uint16
	SignatureShare []byte
}

func (r Round2) marshal() ([]byte, error) {
	z := r.SignatureShare.Bytes()
	return cbor.Marshal(wireRound2{Source: r.Source, SignatureShare: z[:]})
}

func unmarshalRound2(raw []byte) (Round2, error) {
	var w wireRound2
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return Round2{}, err
	}
	return Round2{Source: w.Source, SignatureShare: curve.ScalarFromBytes(w.SignatureShare)}, nil
}

// bindingFactor computes party i's FROST binding factor rho_i = H(i, msg, B)
// where B is the ordered encoding of every party's (D, E) commitment pair.
// Every party derives this identically: it depends only on public data, so
// unlike the teacher's hedged nonce derivation it is not keyed to any
// secret.
func bindingFactor(party uint16, message []byte, orderedNonces []Round1) curve.Scalar {
	h := blake3.New()
	_, _ = h.Write([]byte(bindingFactorTag))
	var partyBuf [2]byte
	partyBuf[0] = byte(party >> 8)
	partyBuf[1] = byte(party)
	_, _ = h.Write(partyBuf[:])
	_, _ = h.Write(message)
	for _, n := range orderedNonces {
		d := n.D.Compress()
		e := n.E.Compress()
		_, _ = h.Write(d[:])
		_, _ = h.Write(e[:])
	}
	return curve.ScalarFromBytes(h.Sum(nil))
}

// Run executes one threshold signing session over message, using the
// party's keygen state, returning a 65-byte FROST-TR signature that has
// passed both the WSTS-native and FROST-format verification paths.
func Run(ctx context.Context, st *keygen.State, session *transport.Session, message []byte, rng io.Reader) (frost.Signature, error) {
	d, err := curve.RandomScalar(rng)
	if err != nil {
		return frost.Signature{}, wstserr.Wrap(wstserr.KindMpc, err, "sampling nonce d for party %d", st.PartyID)
	}
	e, err := curve.RandomScalar(rng)
	if err != nil {
		return frost.Signature{}, wstserr.Wrap(wstserr.KindMpc, err, "sampling nonce e for party %d", st.PartyID)
	}
	ownNonce := Round1{Source: st.PartyID, KeyIDs: st.KeyIDs, D: curve.ScalarBaseMul(d), E: curve.ScalarBaseMul(e)}
	payload, err := ownNonce.marshal()
	if err != nil {
		return frost.Signature{}, wstserr.Wrap(wstserr.KindSerialization, err, "encoding round1 for party %d", st.PartyID)
	}
	if err := session.Broadcast(ctx, roundNonce, payload); err != nil {
		return frost.Signature{}, err
	}

	received, err := transport.RoundInput(ctx, session, roundNonce, uint16(st.NSigners), func(in transport.Incoming) (Round1, error) {
		return unmarshalRound1(in.Payload)
	})
	if err != nil {
		return frost.Signature{}, err
	}

	partyIDs := make([]uint16, 0, len(received))
	for id := range received {
		partyIDs = append(partyIDs, id)
	}
	sort.Slice(partyIDs, func(i, j int) bool { return partyIDs[i] < partyIDs[j] })

	orderedNonces := make([]Round1, 0, len(partyIDs))
	for _, id := range partyIDs {
		orderedNonces = append(orderedNonces, received[id])
	}

	allKeyIDs := make([]curve.Scalar, st.TotalKeys)
	for i := uint32(0); i < st.TotalKeys; i++ {
		allKeyIDs[i] = curve.ScalarFromUint32(i)
	}

	r := curve.Identity()
	var myRho curve.Scalar
	for _, n := range orderedNonces {
		rho := bindingFactor(n.Source, message, orderedNonces)
		if n.Source == st.PartyID {
			myRho = rho
		}
		r = r.Add(n.D.Add(n.E.Mul(rho)))
	}

	c := frost.Challenge(r, st.GroupKey, message)

	var weightedSecret curve.Scalar
	first := true
	for _, keyID := range st.KeyIDs {
		lambda := curve.LagrangeCoefficient(curve.ScalarFromUint32(keyID), allKeyIDs)
		term := lambda.Mul(st.Secrets[keyID])
		if first {
			weightedSecret = term
			first = false
		} else {
			weightedSecret = weightedSecret.Add(term)
		}
	}
	if first {
		return frost.Signature{}, wstserr.New(wstserr.KindMpc, "party %d owns no key ids", st.PartyID)
	}

	// BIP340/taproot signing requires every party to scale its nonce
	// contribution by sR and its secret contribution by sY, where sR/sY are
	// ±1 depending on whether the aggregate nonce point R and the group
	// key Y have even Y — public values every party derives identically
	// from R and Y alone, needed because the verification equation
	// z*G == R + c*Y only holds for the even-Y representatives of R and Y
	// (frost.Verify performs the matching reconstruction on the other side).
	one := curve.NewScalar(big.NewInt(1))
	sR := one
	if !r.HasEvenY() {
		sR = sR.Negate()
	}
	sY := one
	if !st.GroupKey.HasEvenY() {
		sY = sY.Negate()
	}

	zShare := d.Add(e.Mul(myRho)).Mul(sR).Add(c.Mul(sY.Mul(weightedSecret)))
	ownShare := Round2{Source: st.PartyID, SignatureShare: zShare}
	sharePayload, err := ownShare.marshal()
	if err != nil {
		return frost.Signature{}, wstserr.Wrap(wstserr.KindSerialization, err, "encoding round2 for party %d", st.PartyID)
	}
	if err := session.Broadcast(ctx, roundSigShare, sharePayload); err != nil {
		return frost.Signature{}, err
	}

	shares, err := transport.RoundInput(ctx, session, roundSigShare, uint16(st.NSigners), func(in transport.Incoming) (Round2, error) {
		return unmarshalRound2(in.Payload)
	})
	if err != nil {
		return frost.Signature{}, err
	}

	var z curve.Scalar
	first = true
	for _, share := range shares {
		if first {
			z = share.SignatureShare
			first = false
		} else {
			z = z.Add(share.SignatureShare)
		}
	}

	sig := frost.Signature{R: r, Z: z}

	// Mirror frost.Verify's even-Y reconstruction here so this first,
	// WSTS-native check enforces the same equation the FROST-format
	// re-verification below will independently re-derive from the 65-byte
	// wire encoding.
	rEven := sig.R
	if !rEven.HasEvenY() {
		rEven = rEven.Negate()
	}
	yEven := st.GroupKey
	if !yEven.HasEvenY() {
		yEven = yEven.Negate()
	}
	lhs := curve.ScalarBaseMul(sig.Z)
	rhs := rEven.Add(yEven.Mul(c))
	if !lhs.Equal(rhs) {
		return frost.Signature{}, wstserr.New(wstserr.KindInvalidSignature, "aggregated signature fails WSTS-native verification")
	}

	raw := sig.Serialize()
	reparsed, err := frost.ParseSignature(raw[:])
	if err != nil {
		return frost.Signature{}, wstserr.Wrap(wstserr.KindInvalidFrostSignature, err, "re-parsing aggregated signature")
	}
	verifyingKey := frost.NewVerifyingKey(st.GroupKey)
	if err := frost.Verify(reparsed, verifyingKey, message); err != nil {
		return frost.Signature{}, wstserr.Wrap(wstserr.KindInvalidFrostVerification, err, "FROST-format re-verification")
	}

	return sig, nil
}
