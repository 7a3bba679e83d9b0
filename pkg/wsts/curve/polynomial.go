package curve

import (
	"io"
	"math/big"
)

// Polynomial is a degree-t polynomial over Z/N with the secret as its
// constant term, used both for Feldman VSS share generation in keygen and
// Lagrange-weighted aggregation in signing.
//
// Grounded on the structure described in original_source/src/keygen_state_machine.go
// (signer.get_shares / signer.get_poly_commitment) and the teacher's
// pkg/math/polynomial package (luxfi-threshold), generalized here to an
// explicit, directly-constructible coefficient slice since this repo does
// not carry over the teacher's polynomial package verbatim.
type Polynomial struct {
	coeffs []Scalar // coeffs[0] is the constant term (the secret)
}

// NewPolynomial samples a fresh degree-t polynomial with the given constant
// term (the party's secret contribution for this DKG run).
func NewPolynomial(r io.Reader, t uint32, secret Scalar) (*Polynomial, error) {
	coeffs := make([]Scalar, t+1)
	coeffs[0] = secret
	for i := uint32(1); i <= t; i++ {
		c, err := RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &Polynomial{coeffs: coeffs}, nil
}

// Degree returns t.
func (p *Polynomial) Degree() uint32 { return uint32(len(p.coeffs) - 1) }

// Evaluate computes f(x) via Horner's method.
func (p *Polynomial) Evaluate(x Scalar) Scalar {
	acc := p.coeffs[len(p.coeffs)-1]
	for i := len(p.coeffs) - 2; i >= 0; i-- {
		acc = acc.Mul(x).Add(p.coeffs[i])
	}
	return acc
}

// Commit returns the Feldman commitment: g^{c_0}, g^{c_1}, ..., g^{c_t}.
func (p *Polynomial) Commit() []Point {
	out := make([]Point, len(p.coeffs))
	for i, c := range p.coeffs {
		out[i] = ScalarBaseMul(c)
	}
	return out
}

// Constant returns the constant term (the secret this polynomial hides).
func (p *Polynomial) Constant() Scalar { return p.coeffs[0] }

// EvaluateCommitment evaluates a Feldman commitment at x without knowledge
// of the underlying scalars: sum_i commitment[i] * x^i. Used to verify a
// received share against the sender's public commitment.
func EvaluateCommitment(commitment []Point, x Scalar) Point {
	acc := Identity()
	xPow := NewScalar(bigOne())
	for _, c := range commitment {
		acc = acc.Add(c.Mul(xPow))
		xPow = xPow.Mul(x)
	}
	return acc
}

// LagrangeCoefficient returns the Lagrange basis coefficient for index `id`
// within the signer set `ids`, evaluated at x=0 (the standard Shamir
// reconstruction point): the product over j != id of ids[j] / (ids[j] - id).
func LagrangeCoefficient(id Scalar, ids []Scalar) Scalar {
	num := NewScalar(bigOne())
	den := NewScalar(bigOne())
	for _, other := range ids {
		if other.Equal(id) {
			continue
		}
		num = num.Mul(other)
		den = den.Mul(other.Sub(id))
	}
	return num.Mul(den.Inverse())
}

func bigOne() *big.Int { return big.NewInt(1) }
