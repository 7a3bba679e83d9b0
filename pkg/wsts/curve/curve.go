// Package curve provides the secp256k1 scalar and point arithmetic shared by
// keygen and signing: polynomial evaluation, Feldman commitments, and
// Schnorr nonce/signature aggregation.
//
// Group law (point addition, doubling, scalar multiplication) and scalar
// field arithmetic are delegated entirely to
// github.com/decred/dcrd/dcrec/secp256k1/v4, the same secp256k1 library the
// teacher depends on directly (go.mod's decred/dcrd/dcrec/secp256k1/v4
// require) and the library the wider pack reaches for whenever it touches
// raw secp256k1 points (e.g. JacobianPoint/FieldVal/NewPublicKey in
// smallyunet-go-cggmp-tss's keygen round). This package is a thin,
// curve-agnostic-API adapter over it: ModNScalar for the scalar field,
// ScalarBaseMultNonConst/ScalarMultNonConst/AddNonConst for the group law,
// PublicKey for compressed-point encode/decode. The only hand-written
// modular arithmetic left is the y-coordinate negation in Point.Negate,
// which is a direct consequence of the curve equation (-P has the same x
// and p-y) rather than a reimplementation of the group law.
package curve

import (
	"errors"
	"io"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var errPointUnmarshal = errors.New("curve: invalid compressed point encoding")

// fieldPrime and groupOrder are secp256k1's public domain parameters,
// needed only to reduce arbitrary-width big.Int inputs (NewScalar,
// ScalarFromBytes) before handing 32-byte values to ModNScalar, and to
// compute p-y for Point.Negate's encoding-level negation.
var (
	fieldPrime = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F")
	groupOrder = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")
)

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("curve: bad constant " + s)
	}
	return v
}

// N is the order of the secp256k1 group.
func N() *big.Int { return new(big.Int).Set(groupOrder) }

// Scalar is an element of Z/N, always kept reduced.
type Scalar struct {
	v secp256k1.ModNScalar
}

// NewScalar wraps and reduces v mod N. v is not mutated.
func NewScalar(v *big.Int) Scalar {
	reduced := new(big.Int).Mod(v, groupOrder)
	var buf [32]byte
	reduced.FillBytes(buf[:])
	var s Scalar
	s.v.SetByteSlice(buf[:])
	return s
}

// ScalarFromUint32 returns the non-zero scalar representing a party or
// key-id index. Indices are shifted by one so that index 0 (a perfectly
// valid party/key-id) never maps to the zero scalar, which has no inverse
// and would break Lagrange coefficients.
func ScalarFromUint32(id uint32) Scalar {
	return NewScalar(new(big.Int).SetUint64(uint64(id) + 1))
}

// RandomScalar samples a uniform non-zero scalar from r.
func RandomScalar(r io.Reader) (Scalar, error) {
	for {
		buf := make([]byte, 32)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Scalar{}, err
		}
		var s Scalar
		s.v.SetByteSlice(buf) // reduces mod N, same as the big.Int.Mod path it replaces
		if !s.IsZero() {
			return s, nil
		}
	}
}

// ScalarFromBytes decodes a big-endian scalar, reducing mod N.
func ScalarFromBytes(b []byte) Scalar {
	return NewScalar(new(big.Int).SetBytes(b))
}

// Bytes returns the big-endian 32-byte encoding.
func (s Scalar) Bytes() [32]byte { return s.v.Bytes() }

func (s Scalar) IsZero() bool { return s.v.IsZero() }

func (s Scalar) Add(o Scalar) Scalar {
	r := s.v
	r.Add(&o.v)
	return Scalar{v: r}
}

func (s Scalar) Sub(o Scalar) Scalar { return s.Add(o.Negate()) }

func (s Scalar) Mul(o Scalar) Scalar {
	r := s.v
	r.Mul(&o.v)
	return Scalar{v: r}
}

func (s Scalar) Negate() Scalar {
	r := s.v
	r.Negate()
	return Scalar{v: r}
}

// Inverse returns the multiplicative inverse of s mod N. Panics if s is
// zero; callers must never invert a zero scalar.
func (s Scalar) Inverse() Scalar {
	if s.IsZero() {
		panic("curve: inverse of zero scalar")
	}
	r := s.v
	r.InverseValNonConst()
	return Scalar{v: r}
}

func (s Scalar) Equal(o Scalar) bool { return s.v.Equals(&o.v) }

// MarshalBinary implements encoding.BinaryMarshaler, returning the 32-byte
// big-endian encoding (the same bytes as Bytes).
func (s Scalar) MarshalBinary() ([]byte, error) {
	b := s.Bytes()
	return b[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	*s = ScalarFromBytes(data)
	return nil
}

// Point is a secp256k1 point, kept internally in Jacobian coordinates so
// repeated Add/Mul chains (Horner evaluation, running sums) avoid a modular
// inverse per step. The zero value is not meaningful; use Identity().
type Point struct {
	pt         secp256k1.JacobianPoint
	isIdentity bool
}

// Identity returns the group identity (point at infinity), a valid start
// value for a running Add accumulation.
func Identity() Point { return Point{isIdentity: true} }

// BasePoint returns the secp256k1 generator G.
func BasePoint() Point {
	var one secp256k1.ModNScalar
	one.SetInt(1)
	var pt Point
	secp256k1.ScalarBaseMultNonConst(&one, &pt.pt)
	return pt
}

// isInfinity reports whether a freshly-computed Jacobian result is the
// point at infinity (Z == 0 in Jacobian coordinates), which AddNonConst and
// ScalarMultNonConst both produce for P + (-P) and 0*P respectively.
func isInfinity(pt *secp256k1.JacobianPoint) bool {
	z := pt.Z
	z.Normalize()
	return z.IsZero()
}

// Add returns p+q via the curve's group law.
func (pt Point) Add(q Point) Point {
	if pt.isIdentity {
		return q
	}
	if q.isIdentity {
		return pt
	}
	a, b := pt.pt, q.pt
	var result Point
	secp256k1.AddNonConst(&a, &b, &result.pt)
	if isInfinity(&result.pt) {
		return Identity()
	}
	return result
}

// Mul returns s*P. Not constant-time: every scalar here is either
// ephemeral (a nonce) or this party's own long-lived secret used once per
// signing session, never a value an attacker can time against.
func (pt Point) Mul(s Scalar) Point {
	if pt.isIdentity || s.IsZero() {
		return Identity()
	}
	p := pt.pt
	sv := s.v
	var result Point
	secp256k1.ScalarMultNonConst(&sv, &p, &result.pt)
	if isInfinity(&result.pt) {
		return Identity()
	}
	return result
}

// ScalarBaseMul returns s*G.
func ScalarBaseMul(s Scalar) Point {
	if s.IsZero() {
		return Identity()
	}
	sv := s.v
	var result Point
	secp256k1.ScalarBaseMultNonConst(&sv, &result.pt)
	return result
}

func (pt Point) IsIdentity() bool { return pt.isIdentity }

// affine returns pt's normalized affine X and Y coordinates. Must not be
// called on the identity.
func (pt Point) affine() (secp256k1.FieldVal, secp256k1.FieldVal) {
	p := pt.pt
	p.ToAffine()
	return p.X, p.Y
}

func (pt Point) Equal(o Point) bool {
	if pt.isIdentity || o.isIdentity {
		return pt.isIdentity == o.isIdentity
	}
	x1, y1 := pt.affine()
	x2, y2 := o.affine()
	return x1.Equals(&x2) && y1.Equals(&y2)
}

// IsOnCurve reports whether pt is a valid non-identity group element. Every
// non-identity Point in this package is constructed either via the group
// law (Add/Mul/ScalarBaseMul, which always stay on the curve) or via
// DecompressPoint, which rejects invalid encodings through
// secp256k1.ParsePubKey before a Point is ever produced — so this is always
// true for a non-identity Point that exists at all. Kept as a named
// predicate so callers (and tests) can still assert the invariant
// explicitly.
func (pt Point) IsOnCurve() bool { return !pt.isIdentity }

// HasEvenY reports whether pt's affine Y coordinate is even, the parity
// test BIP340/taproot signing uses to decide whether a point needs
// negating before it can serve as the even-Y representative its tagged
// challenge hash implicitly assumes.
func (pt Point) HasEvenY() bool {
	if pt.isIdentity {
		return true
	}
	_, y := pt.affine()
	return !y.IsOdd()
}

// Negate returns -pt: same X coordinate, Y coordinate replaced by p-Y. This
// is a direct property of the Weierstrass curve equation (y² is unchanged
// by y ↦ p-y), not a parallel implementation of the group law; everything
// that actually needs the group law (Add, Mul, ScalarBaseMul) still goes
// through decred's AddNonConst/ScalarMultNonConst/ScalarBaseMultNonConst.
func (pt Point) Negate() Point {
	if pt.isIdentity {
		return pt
	}
	x, y := pt.affine()
	xBytes, yBytes := x.Bytes(), y.Bytes()
	yInt := new(big.Int).SetBytes(yBytes[:])
	yInt.Sub(fieldPrime, yInt)
	yInt.Mod(yInt, fieldPrime)

	var negY secp256k1.FieldVal
	var negYBuf [32]byte
	yInt.FillBytes(negYBuf[:])
	negY.SetByteSlice(negYBuf[:])
	var xField secp256k1.FieldVal
	xField.SetByteSlice(xBytes[:])

	pk := secp256k1.NewPublicKey(&xField, &negY)
	var out Point
	pk.AsJacobian(&out.pt)
	return out
}

// XBytes returns pt's 32-byte affine X coordinate, the x-only encoding
// BIP340/taproot-style challenge hashing uses in place of a full 33-byte
// compressed point (x-only encoding is sign-independent: X is identical for
// pt and its negation).
func (pt Point) XBytes() [32]byte {
	if pt.isIdentity {
		return [32]byte{}
	}
	x, _ := pt.affine()
	return x.Bytes()
}

// Compress returns the 33-byte SEC1 compressed encoding: a one-byte parity
// prefix (0x02 even-y, 0x03 odd-y) followed by the 32-byte big-endian X
// coordinate.
func (pt Point) Compress() [33]byte {
	var out [33]byte
	if pt.isIdentity {
		// Never a valid group element to transmit; callers must reject
		// identity before it reaches the wire. Zero bytes are a safe,
		// unambiguous sentinel since no valid compressed key starts with 0x00.
		return out
	}
	x, y := pt.affine()
	pub := secp256k1.NewPublicKey(&x, &y)
	copy(out[:], pub.SerializeCompressed())
	return out
}

// MarshalBinary implements encoding.BinaryMarshaler via the 33-byte
// compressed encoding.
func (pt Point) MarshalBinary() ([]byte, error) {
	c := pt.Compress()
	return c[:], nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler via DecompressPoint.
func (pt *Point) UnmarshalBinary(data []byte) error {
	p, ok := DecompressPoint(data)
	if !ok {
		return errPointUnmarshal
	}
	*pt = p
	return nil
}

// DecompressPoint parses a 33-byte SEC1 compressed point, verifying it lies
// on the curve via secp256k1.ParsePubKey.
func DecompressPoint(raw []byte) (Point, bool) {
	if len(raw) != 33 {
		return Point{}, false
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return Point{}, false
	}
	var pt Point
	pub.AsJacobian(&pt.pt)
	return pt, true
}
