package bootstrap

import (
	"context"
	"encoding/hex"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/eventstore"
	"github.com/agentpay/relaynode/internal/facade"
	"github.com/agentpay/relaynode/internal/facade/facadetest"
)

type fakeSigner struct{}

func (fakeSigner) Pubkey(sk events.SecretKey) (events.PublicKey, error) {
	return events.PublicKey(sk), nil
}
func (fakeSigner) Sign(sk events.SecretKey, digest [32]byte) (string, error) {
	return hex.EncodeToString(digest[:]), nil
}
func (fakeSigner) Verify(pubkey events.PublicKey, digest [32]byte, sig string) bool {
	return sig == hex.EncodeToString(digest[:])
}

type fakeCipher struct{}

func xorPad(data []byte, a, b [32]byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ a[i%32] ^ b[i%32]
	}
	return out
}

func (fakeCipher) Encrypt(plaintext []byte, senderSK events.SecretKey, recipientPub events.PublicKey) (string, error) {
	return hex.EncodeToString(xorPad(plaintext, [32]byte(senderSK), [32]byte(recipientPub))), nil
}

func (fakeCipher) Decrypt(ciphertext string, recipientSK events.SecretKey, senderPub events.PublicKey) ([]byte, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, err
	}
	return xorPad(raw, [32]byte(senderPub), [32]byte(recipientSK)), nil
}

func key(b byte) (events.SecretKey, events.PublicKey) {
	var sk events.SecretKey
	for i := range sk {
		sk[i] = b
	}
	return sk, events.PublicKey(sk)
}

func intPtr(i int) *int { return &i }

func testPeerInfo(pk events.PublicKey) events.PeerInfo {
	return events.PeerInfo{
		Pubkey:      pk,
		IlpAddress:  "g.relay.local",
		BtpEndpoint: "wss://relay.local/btp",
		SettlementDescriptors: events.SettlementDescriptors{
			AssetCode:       "USD",
			AssetScale:      intPtr(9),
			SupportedChains: []events.ChainID{"evm:base:8453"},
			SettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xLOCAL"},
		},
	}
}

// TestRunGenesisNoPeers covers scenario S6: an empty seed list
// degrades to a self-announcement rather than failing, and a single
// PeerInfo event lands in the store.
func TestRunGenesisNoPeers(t *testing.T) {
	sk, pk := key(0x11)
	codec := events.NewCodec(fakeSigner{}, fakeCipher{}, func() int64 { return time.Now().Unix() })
	store := eventstore.NewMemStore()

	var phases []Phase
	svc := New(Config{
		LocalPeerInfo: testPeerInfo(pk),
		SecretKey:     sk,
		Codec:         codec,
		Store:         store,
		ConnAdmin:     facadetest.NewConnectorAdmin(),
		RuntimeClient: facadetest.NewRuntimeClient(),
	})
	svc.On(func(ev Event) { phases = append(phases, ev.Phase) })

	results, err := svc.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, PhaseReady, svc.Phase())
	assert.Equal(t, 0, svc.PeerCount())
	assert.Equal(t, 0, svc.ChannelCount())

	infoEvents := store.ByKind(events.PeerInfoKind)
	require.Len(t, infoEvents, 1)
	assert.Equal(t, pk.String(), infoEvents[0].Pubkey)

	// Phases must strictly advance: init is never re-emitted, and every
	// phase-changed event moves forward, never backward.
	require.NotEmpty(t, phases)
	for i := 1; i < len(phases); i++ {
		assert.GreaterOrEqual(t, phases[i], phases[i-1])
	}
}

// TestRunHandshakeSuccess covers a successful single-peer handshake
// that negotiates and opens a channel.
func TestRunHandshakeSuccess(t *testing.T) {
	localSK, localPK := key(0x21)
	peerSK, peerPK := key(0x22)
	codec := events.NewCodec(fakeSigner{}, fakeCipher{}, func() int64 { return time.Now().Unix() })
	store := eventstore.NewMemStore()

	responsePayload := events.SettlementResponse{
		RequestID:           "ignored-in-fake",
		DestinationAccount:  "g.peer.spsp.abc123",
		SharedSecret:        "c2VjcmV0",
		NegotiatedChain:     "evm:base:8453",
		SettlementAddress:   "0xPEER",
		ChannelID:            "0xCH",
	}
	respEvent, err := codec.BuildResponse(responsePayload, localPK, peerSK, "")
	require.NoError(t, err)
	respData, err := events.EncodeWire(respEvent)
	require.NoError(t, err)

	runtime := facadetest.NewRuntimeClient()
	runtime.Result = facade.SendPacketResult{Accepted: true, Data: respData}

	channels := facadetest.NewChannelService()
	channels.StateSequence = []facade.ChannelState{{ChannelID: "0xCH", Status: facade.ChannelOpen}}

	admin := facadetest.NewConnectorAdmin()

	var events_ []EventKind
	svc := New(Config{
		LocalPeerInfo: testPeerInfo(localPK),
		SecretKey:     localSK,
		SeedPeers: []KnownPeer{
			{Pubkey: peerPK, PacketAddress: "g.peer.spsp"},
		},
		Codec:              codec,
		Store:              store,
		RuntimeClient:      runtime,
		ConnAdmin:          admin,
		ChannelClient:      channels,
		ChannelOpenTimeout: time.Second,
		PollInterval:       time.Millisecond,
	})
	svc.On(func(ev Event) { events_ = append(events_, ev.Kind) })

	results, err := svc.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeChannelOpened, results[0].Outcome)
	assert.Equal(t, 1, svc.PeerCount())
	assert.Equal(t, 1, svc.ChannelCount())

	_, registered := admin.Peers[peerPK.String()]
	assert.True(t, registered)

	assert.Contains(t, events_, EventPeerRegistered)
	assert.Contains(t, events_, EventChannelOpened)
	assert.Contains(t, events_, EventReady)
}

// TestRunHandshakeFailureDoesNotAbort covers a peer that never
// responds: the run still completes, reporting the peer as failed.
func TestRunHandshakeFailureDoesNotAbort(t *testing.T) {
	localSK, localPK := key(0x31)
	_, peerPK := key(0x32)
	codec := events.NewCodec(fakeSigner{}, fakeCipher{}, func() int64 { return time.Now().Unix() })
	store := eventstore.NewMemStore()

	runtime := facadetest.NewRuntimeClient()
	runtime.Err = assertError{"connection refused"}

	svc := New(Config{
		LocalPeerInfo: testPeerInfo(localPK),
		SecretKey:     localSK,
		SeedPeers: []KnownPeer{
			{Pubkey: peerPK, PacketAddress: "g.peer.spsp"},
		},
		Codec:         codec,
		Store:         store,
		RuntimeClient: runtime,
		ConnAdmin:     facadetest.NewConnectorAdmin(),
	})

	results, err := svc.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Equal(t, PhaseReady, svc.Phase())
	assert.Equal(t, 0, svc.PeerCount())
}

// TestRunAlreadyRunning covers the idempotent re-bootstrap guard.
func TestRunAlreadyRunning(t *testing.T) {
	_, localPK := key(0x41)
	svc := New(Config{LocalPeerInfo: testPeerInfo(localPK)})
	atomic.StoreInt32(&svc.running, 1)

	_, err := svc.Run(context.Background(), "")
	assert.Equal(t, ErrAlreadyRunning, err)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
