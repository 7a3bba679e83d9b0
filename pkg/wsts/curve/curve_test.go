package curve_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/curve"
)

func TestScalarBaseMul_CompressDecompressRoundTrips(t *testing.T) {
	s, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)

	pt := curve.ScalarBaseMul(s)
	require.True(t, pt.IsOnCurve())

	compressed := pt.Compress()
	decompressed, ok := curve.DecompressPoint(compressed[:])
	require.True(t, ok)
	require.True(t, pt.Equal(decompressed))
}

func TestPointAdd_MatchesScalarAddition(t *testing.T) {
	a, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	b, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)

	lhs := curve.ScalarBaseMul(a).Add(curve.ScalarBaseMul(b))
	rhs := curve.ScalarBaseMul(a.Add(b))
	require.True(t, lhs.Equal(rhs))
}

func TestPointAdd_IdentityIsNeutral(t *testing.T) {
	s, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	p := curve.ScalarBaseMul(s)

	require.True(t, p.Add(curve.Identity()).Equal(p))
	require.True(t, curve.Identity().Add(p).Equal(p))
}

func TestPointAdd_InverseIsIdentity(t *testing.T) {
	s, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	p := curve.ScalarBaseMul(s)
	neg := curve.ScalarBaseMul(s.Negate())

	require.True(t, p.Add(neg).IsIdentity())
}

func TestScalarInverse(t *testing.T) {
	s, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	inv := s.Inverse()
	require.True(t, s.Mul(inv).Equal(curve.ScalarFromBytes([]byte{1})))
}

func TestPolynomial_EvaluateCommitmentMatchesScalarEvaluate(t *testing.T) {
	secret, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	poly, err := curve.NewPolynomial(rand.Reader, 2, secret)
	require.NoError(t, err)

	commitment := poly.Commit()
	x := curve.ScalarFromUint32(5)

	lhs := curve.ScalarBaseMul(poly.Evaluate(x))
	rhs := curve.EvaluateCommitment(commitment, x)
	require.True(t, lhs.Equal(rhs))
}

func TestLagrangeReconstructsConstantTerm(t *testing.T) {
	secret, err := curve.RandomScalar(rand.Reader)
	require.NoError(t, err)
	poly, err := curve.NewPolynomial(rand.Reader, 2, secret)
	require.NoError(t, err)

	ids := []curve.Scalar{
		curve.ScalarFromUint32(0),
		curve.ScalarFromUint32(1),
		curve.ScalarFromUint32(2),
	}

	var sum curve.Scalar
	for i, id := range ids {
		share := poly.Evaluate(id)
		coeff := curve.LagrangeCoefficient(id, ids)
		term := coeff.Mul(share)
		if i == 0 {
			sum = term
		} else {
			sum = sum.Add(term)
		}
	}

	require.True(t, sum.Equal(secret))
}
