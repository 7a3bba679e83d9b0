// Package blueprint wires the WSTS keygen/signing core to the job-dispatch
// runtime described in spec §4.8/§6: two entry points, keygen and sign, that
// resolve the calling context, derive the session fingerprint, drive the
// appropriate state machine, and return serialized bytes.
//
// Grounded on original_source/src/context.go (WstsContext bundling a
// keystore, a P2P context, and the identity used to authenticate transport
// frames) and original_source/src/keygen.go / signing.go for the entry-point
// sequencing (resolve context → validate operators → derive fingerprint →
// run state machine → persist/return).
package blueprint

import (
	"context"
	"crypto/rand"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/keygen"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/params"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/session"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/signing"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/store"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/transport"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"
)

// ProtocolID is the libp2p protocol string this service's gossip traffic is
// tagged with; changing it segregates otherwise-compatible cohorts.
const ProtocolID = "/wsts/frost/1.0.0"

// Operator is one cohort member: its canonical index and 33-byte compressed
// secp256k1 verification key used for transport authentication.
type Operator struct {
	Index     uint16
	VerifyKey [33]byte
}

// Context is everything the core requires from the runtime: identity
// (blueprint id, call id), cohort membership, the keystore location,
// network startup, and this party's own transport signing key. Implementations
// are an external collaborator per spec §1 — production wiring talks to the
// Tangle job-dispatch runtime and a libp2p gossip stack; StaticContext below
// is the in-memory implementation used by tests and the CLI's simulate
// path.
type Context interface {
	BlueprintID() uint64
	CurrentCallID(ctx context.Context) (uint64, error)
	PartyIndexAndOperators(ctx context.Context) (uint16, []Operator, error)
	KeystoreURI() string
	StartNetwork(ctx context.Context, protocolID string) (transport.Gossip, error)
	// SigningKey returns this party's private identity key, which it signs
	// every transport frame it sends with. Its public counterpart must be
	// exactly the operator's VerifyKey at PartyIndexAndOperators's returned
	// index, or every other party will reject this party's frames.
	SigningKey() (*secp256k1.PrivateKey, error)
}

// verifyKeys parses and validates every operator's compressed verify-key,
// returning them keyed by operator index for Session authentication.
func verifyKeys(ops []Operator) (map[uint16]*secp256k1.PublicKey, error) {
	out := make(map[uint16]*secp256k1.PublicKey, len(ops))
	for _, op := range ops {
		pub, err := secp256k1.ParsePubKey(op.VerifyKey[:])
		if err != nil {
			return nil, wstserr.New(wstserr.KindInvalidPublicKey, "operator %d's verify key is not a valid compressed secp256k1 point", op.Index)
		}
		out[op.Index] = pub
	}
	return out, nil
}

// Keygen runs one distributed-key-generation job: validate the cohort,
// derive the session fingerprint, run the keygen state machine, persist the
// result, and return the 33-byte compressed group public key.
func Keygen(ctx context.Context, c Context, t uint32) ([33]byte, error) {
	var out [33]byte

	callID, err := c.CurrentCallID(ctx)
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "resolving current call id")
	}
	partyIdx, operators, err := c.PartyIndexAndOperators(ctx)
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "resolving party index and operators")
	}
	vks, err := verifyKeys(operators)
	if err != nil {
		return out, err
	}
	signer, err := c.SigningKey()
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "resolving transport signing key")
	}

	n := uint32(len(operators))
	p, err := params.Validate(n, n, t)
	if err != nil {
		return out, err
	}

	fp := session.Derive(uint16(n), c.BlueprintID(), callID, session.SaltKeygen)

	gossip, err := c.StartNetwork(ctx, ProtocolID)
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "starting network")
	}
	sess := transport.NewSession(gossip, fp.Execution, partyIdx, uint16(n), signer, vks)
	defer sess.Close()

	st, err := keygen.Run(ctx, p, partyIdx, sess, rand.Reader)
	if err != nil {
		return out, err
	}

	kv, err := store.Open(c.KeystoreURI())
	if err != nil {
		return out, err
	}
	defer kv.Close()
	if err := kv.Put(ctx, fp.Meta, st); err != nil {
		return out, err
	}

	return st.GroupKey.Compress(), nil
}

// Sign runs one threshold-signing job over message, against the keygen
// result identified by keygenCallID, returning the 65-byte R‖z signature.
func Sign(ctx context.Context, c Context, keygenCallID uint64, message []byte) ([65]byte, error) {
	var out [65]byte

	partyIdx, operators, err := c.PartyIndexAndOperators(ctx)
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "resolving party index and operators")
	}
	vks, err := verifyKeys(operators)
	if err != nil {
		return out, err
	}
	signer, err := c.SigningKey()
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "resolving transport signing key")
	}
	n := uint32(len(operators))

	keygenFP := session.Derive(uint16(n), c.BlueprintID(), keygenCallID, session.SaltKeygen)

	kv, err := store.Open(c.KeystoreURI())
	if err != nil {
		return out, err
	}
	defer kv.Close()
	st, err := kv.Get(ctx, keygenFP.Meta)
	if err != nil {
		return out, err
	}

	// The wire session id is derived from THIS sign invocation's own call
	// id, not keygen_call_id: two concurrent signs over the same keygen
	// result share a meta_hash (by design, so they read the same state) but
	// must not share an execution_hash, or their round traffic would
	// interleave on the wire. Store lookup above still keys strictly off
	// keygen_call_id per spec §4.8 step 3.
	signCallID, err := c.CurrentCallID(ctx)
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "resolving current call id")
	}
	signFP := session.Derive(uint16(n), c.BlueprintID(), signCallID, session.SaltSigning)

	gossip, err := c.StartNetwork(ctx, ProtocolID)
	if err != nil {
		return out, wstserr.Wrap(wstserr.KindContext, err, "starting network")
	}
	sess := transport.NewSession(gossip, signFP.Execution, partyIdx, uint16(n), signer, vks)
	defer sess.Close()

	sig, err := signing.Run(ctx, st, sess, message, rand.Reader)
	if err != nil {
		return out, err
	}
	return sig.Serialize(), nil
}

// StaticContext is a deterministic, in-memory Context implementation for
// tests and the CLI's simulate command: one instance per party, sharing a
// transport.Gossip handle and a cohort-wide operator list, each with its
// own keystore directory (parties never share key material).
type StaticContext struct {
	PartyIdx      uint16
	Operators     []Operator
	Blueprint     uint64
	CallID        uint64
	KeystoreDir   string
	GossipNetwork transport.Gossip
	Signer        *secp256k1.PrivateKey
}

// BlueprintID implements Context.
func (c *StaticContext) BlueprintID() uint64 { return c.Blueprint }

// CurrentCallID implements Context.
func (c *StaticContext) CurrentCallID(context.Context) (uint64, error) { return c.CallID, nil }

// PartyIndexAndOperators implements Context.
func (c *StaticContext) PartyIndexAndOperators(context.Context) (uint16, []Operator, error) {
	return c.PartyIdx, c.Operators, nil
}

// KeystoreURI implements Context.
func (c *StaticContext) KeystoreURI() string { return c.KeystoreDir }

// StartNetwork implements Context.
func (c *StaticContext) StartNetwork(context.Context, string) (transport.Gossip, error) {
	return c.GossipNetwork, nil
}

// SigningKey implements Context.
func (c *StaticContext) SigningKey() (*secp256k1.PrivateKey, error) {
	if c.Signer == nil {
		return nil, wstserr.New(wstserr.KindContext, "static context has no signing key configured")
	}
	return c.Signer, nil
}
