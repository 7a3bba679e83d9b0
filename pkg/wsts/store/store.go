// Package store persists keygen results to the single embedded key-value
// file described in spec §4.7/§6: `<keystore_uri>/wsts.json`, keyed by the
// lowercase hex of meta_hash, values a deterministic binary encoding of the
// keygen.State.
//
// Grounded on the teacher's go.mod (go.etcd.io/bbolt is a direct
// require there) for the embedded single-file KV choice, and on
// fxamacker/cbor/v2 (also a teacher direct require) for canonical encoding
// of the stored value. The format is explicitly private (spec §4.7): it is
// never read by anything outside this package, so the wire struct here is
// free to differ from the wire structs in pkg/wsts/keygen/pkg/wsts/signing.
package store

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/curve"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/keygen"
	"github.com/tangle-network/wsts-blueprint/pkg/wsts/wstserr"
)

const fileName = "wsts.json"

var bucketName = []byte("keygen")

// Store is a single-file, embedded key-value store of keygen results.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the keystore file at
// <keystoreURI>/wsts.json.
func Open(keystoreURI string) (*Store, error) {
	path := filepath.Join(keystoreURI, fileName)
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, wstserr.Wrap(wstserr.KindContext, err, "opening keystore at %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, wstserr.Wrap(wstserr.KindContext, err, "initializing keystore bucket")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error { return s.db.Close() }

type wireState struct {
	PartyID            uint16
	NSigners           uint32
	Threshold          uint32
	TotalKeys          uint32
	KeyIDs             []uint32
	CommitmentSources  []uint16
	Commitments        [][][]byte
	SecretKeyIDs       []uint32
	SecretValues       [][]byte
	GroupKey           []byte
}

func encodeState(st *keygen.State) ([]byte, error) {
	w := wireState{
		PartyID:   st.PartyID,
		NSigners:  st.NSigners,
		Threshold: st.Threshold,
		TotalKeys: st.TotalKeys,
		KeyIDs:    st.KeyIDs,
	}
	gk := st.GroupKey.Compress()
	w.GroupKey = gk[:]

	sources := make([]uint16, 0, len(st.PolyCommitments))
	for src := range st.PolyCommitments {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		w.CommitmentSources = append(w.CommitmentSources, src)
		var perSource [][]byte
		for _, pt := range st.PolyCommitments[src] {
			c := pt.Compress()
			perSource = append(perSource, c[:])
		}
		w.Commitments = append(w.Commitments, perSource)
	}

	keyIDs := make([]uint32, 0, len(st.Secrets))
	for id := range st.Secrets {
		keyIDs = append(keyIDs, id)
	}
	sort.Slice(keyIDs, func(i, j int) bool { return keyIDs[i] < keyIDs[j] })
	for _, id := range keyIDs {
		w.SecretKeyIDs = append(w.SecretKeyIDs, id)
		v := st.Secrets[id].Bytes()
		w.SecretValues = append(w.SecretValues, v[:])
	}

	return cbor.Marshal(w)
}

func decodeState(raw []byte) (*keygen.State, error) {
	var w wireState
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	groupKey, ok := curve.DecompressPoint(w.GroupKey)
	if !ok {
		return nil, wstserr.New(wstserr.KindInvalidPublicKey, "stored group key is not a valid compressed point")
	}

	commitments := make(map[uint16][]curve.Point, len(w.CommitmentSources))
	for i, src := range w.CommitmentSources {
		pts := make([]curve.Point, 0, len(w.Commitments[i]))
		for _, raw := range w.Commitments[i] {
			pt, ok := curve.DecompressPoint(raw)
			if !ok {
				return nil, wstserr.New(wstserr.KindInvalidPublicKey, "stored poly commitment for source %d is invalid", src)
			}
			pts = append(pts, pt)
		}
		commitments[src] = pts
	}

	secrets := make(map[uint32]curve.Scalar, len(w.SecretKeyIDs))
	for i, id := range w.SecretKeyIDs {
		secrets[id] = curve.ScalarFromBytes(w.SecretValues[i])
	}

	return &keygen.State{
		PartyID:         w.PartyID,
		NSigners:        w.NSigners,
		Threshold:       w.Threshold,
		TotalKeys:       w.TotalKeys,
		KeyIDs:          w.KeyIDs,
		PolyCommitments: commitments,
		Secrets:         secrets,
		GroupKey:        groupKey,
	}, nil
}

// Put persists a keygen result under hex(metaHash).
func (s *Store) Put(_ context.Context, metaHash [32]byte, st *keygen.State) error {
	raw, err := encodeState(st)
	if err != nil {
		return wstserr.Wrap(wstserr.KindSerialization, err, "encoding keygen state for %x", metaHash)
	}
	key := []byte(hex.EncodeToString(metaHash[:]))
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(key, raw)
	})
}

// Get loads a previously-persisted keygen result by metaHash. Returns a
// ContextError wrapping "Key entry not found" if absent, matching the
// original implementation's signing-path error.
func (s *Store) Get(_ context.Context, metaHash [32]byte) (*keygen.State, error) {
	key := []byte(hex.EncodeToString(metaHash[:]))
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(key)
		if v == nil {
			return nil
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, wstserr.Wrap(wstserr.KindContext, err, "reading keystore")
	}
	if raw == nil {
		return nil, wstserr.New(wstserr.KindContext, "Key entry not found")
	}
	return decodeState(raw)
}
