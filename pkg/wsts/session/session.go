// Package session derives the deterministic session fingerprint used to
// key the keygen store and to domain-separate MPC executions on the wire.
//
// Grounded on original_source/src/lib.go (compute_execution_hashes) — the
// byte layout and salt constants here MUST match that implementation
// bit-for-bit, since two cohorts only interoperate if they derive the same
// digests from the same (n, blueprint_id, call_id, salt).
package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Salt constants, domain-separating keygen from signing executions that
// otherwise share the same meta_hash.
const (
	SaltKeygen  = "wsts-keygen"
	SaltSigning = "wsts-signing"

	metaSalt = "wsts-protocol"
)

// Fingerprint is the (meta_hash, execution_hash) pair identifying a single
// keygen or signing run, per spec §3/§4.2.
type Fingerprint struct {
	// Meta keys the persistent keygen store.
	Meta [32]byte
	// Execution domain-separates MPC wire traffic for this run.
	Execution [32]byte
}

// MetaHex returns the lowercase hex encoding of Meta, the canonical store
// key per spec §6.
func (f Fingerprint) MetaHex() string {
	return hex.EncodeToString(f.Meta[:])
}

// Derive computes the session fingerprint for (n, blueprintID, callID,
// salt). n is encoded big-endian as a 16-bit value, blueprintID and callID
// as 64-bit values, matching the original Rust implementation's
// n.to_be_bytes() / blueprint_id.to_be_bytes() / call_id.to_be_bytes().
func Derive(n uint16, blueprintID, callID uint64, salt string) Fingerprint {
	var nBE [2]byte
	binary.BigEndian.PutUint16(nBE[:], n)

	var blueprintBE, callBE [8]byte
	binary.BigEndian.PutUint64(blueprintBE[:], blueprintID)
	binary.BigEndian.PutUint64(callBE[:], callID)

	meta := sha256.New()
	meta.Write(nBE[:])
	meta.Write(blueprintBE[:])
	meta.Write(callBE[:])
	meta.Write([]byte(metaSalt))

	var fp Fingerprint
	copy(fp.Meta[:], meta.Sum(nil))

	exec := sha256.New()
	exec.Write(fp.Meta[:])
	exec.Write([]byte(salt))
	copy(fp.Execution[:], exec.Sum(nil))

	return fp
}
