package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/wsts-blueprint/pkg/wsts/transport"
)

// newTestSessions samples one identity keypair per party and returns n
// transport.Sessions sharing verifyKeys so each can authenticate the
// others' frames, mirroring how blueprint.Keygen/Sign wire a Session in
// production.
func newTestSessions(t *testing.T, net transport.Gossip, eh [32]byte, n int) []*transport.Session {
	t.Helper()
	signers := make([]*secp256k1.PrivateKey, n)
	verifyKeys := make(map[uint16]*secp256k1.PublicKey, n)
	for i := 0; i < n; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		signers[i] = priv
		verifyKeys[uint16(i)] = priv.PubKey()
	}
	sessions := make([]*transport.Session, n)
	for i := 0; i < n; i++ {
		sessions[i] = transport.NewSession(net, eh, uint16(i), uint16(n), signers[i], verifyKeys)
	}
	return sessions
}

func TestInMemoryNetwork_BroadcastReachesAllSubscribers(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	var eh [32]byte
	eh[0] = 1

	sessions := newTestSessions(t, net, eh, 3)
	s0, s1, s2 := sessions[0], sessions[1], sessions[2]
	defer s0.Close()
	defer s1.Close()
	defer s2.Close()

	ctx := context.Background()
	require.NoError(t, s0.Broadcast(ctx, 1, []byte("hello")))

	for _, s := range []*transport.Session{s0, s1, s2} {
		frame, err := s.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, uint16(0), frame.Sender)
		require.Equal(t, uint32(1), frame.Round)
		require.Equal(t, []byte("hello"), frame.Payload)
	}
}

func decodeString(in transport.Incoming) (string, error) {
	return string(in.Payload), nil
}

func TestRoundInput_CollectsOnePerParty(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	var eh [32]byte
	eh[1] = 7

	sessions := newTestSessions(t, net, eh, 3)
	for _, s := range sessions {
		defer s.Close()
	}

	ctx := context.Background()
	for i, s := range sessions {
		require.NoError(t, s.Broadcast(ctx, 5, []byte{byte('a' + i)}))
	}

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	got, err := transport.RoundInput(ctx2, sessions[0], 5, 3, decodeString)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "a", got[0])
	require.Equal(t, "b", got[1])
	require.Equal(t, "c", got[2])
}

func TestRoundInput_TimesOutWhenAPartyNeverSends(t *testing.T) {
	net := transport.NewInMemoryNetwork()
	var eh [32]byte
	eh[2] = 9

	sessions := newTestSessions(t, net, eh, 3)
	s0, s1 := sessions[0], sessions[1]
	defer s0.Close()
	defer s1.Close()

	ctx := context.Background()
	require.NoError(t, s0.Broadcast(ctx, 2, []byte("x")))
	require.NoError(t, s1.Broadcast(ctx, 2, []byte("y")))

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := transport.RoundInput(ctx2, s0, 2, 3, decodeString)
	require.Error(t, err)
}

func TestDroppingNetwork_DropsOnlyNamedSender(t *testing.T) {
	inner := transport.NewInMemoryNetwork()
	net := transport.NewDroppingNetwork(inner, 2)
	var eh [32]byte
	eh[3] = 4

	sessions := newTestSessions(t, net, eh, 3)
	for _, s := range sessions {
		defer s.Close()
	}

	ctx := context.Background()
	for i, s := range sessions {
		require.NoError(t, s.Broadcast(ctx, 1, []byte{byte('a' + i)}))
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := transport.RoundInput(ctx2, sessions[0], 1, 3, decodeString)
	require.Error(t, err, "party 2's broadcast was dropped, so the round never collects all 3")
}

// tamperingNetwork wraps an InMemoryNetwork and flips a byte of every
// broadcast payload after it leaves the sender, simulating a frame altered
// in flight: the signature was computed over the original payload, so the
// altered frame must fail every receiver's authentication check.
type tamperingNetwork struct {
	*transport.InMemoryNetwork
}

func (n *tamperingNetwork) Send(ctx context.Context, executionHash [32]byte, sender uint16, frame transport.Outgoing) error {
	tampered := append([]byte(nil), frame.Payload...)
	if len(tampered) > 0 {
		tampered[0] ^= 0xff
	}
	frame.Payload = tampered
	return n.InMemoryNetwork.Send(ctx, executionHash, sender, frame)
}

func TestSession_RejectsFrameWithSignatureThatDoesNotMatchPayload(t *testing.T) {
	inner := transport.NewInMemoryNetwork()
	net := &tamperingNetwork{InMemoryNetwork: inner}
	var eh [32]byte
	eh[4] = 2

	sessions := newTestSessions(t, net, eh, 2)
	s0, s1 := sessions[0], sessions[1]
	defer s0.Close()
	defer s1.Close()

	require.NoError(t, s0.Broadcast(context.Background(), 9, []byte("legit")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s1.Next(ctx)
	require.Error(t, err, "the tampered payload no longer matches party 0's signature, so Next must never return it")
}
