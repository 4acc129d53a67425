package pkthandler

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/eventstore"
	"github.com/agentpay/relaynode/internal/facade"
	"github.com/agentpay/relaynode/internal/facade/facadetest"
	"github.com/agentpay/relaynode/internal/negotiator"
	"github.com/agentpay/relaynode/internal/priceoracle"
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

func newTestHandler(t *testing.T, basePrice int64, requestFloor *big.Int) (*Handler, events.SecretKey, events.PublicKey, *events.Codec, *eventstore.MemStore) {
	t.Helper()
	nodeSK, nodePK := key(0x01)
	codec := events.NewCodec(fakeSigner{}, fakeCipher{}, func() int64 { return time.Now().Unix() })
	store := eventstore.NewMemStore()

	oracle := priceoracle.New(priceoracle.Policy{
		BasePricePerByte: big.NewInt(basePrice),
		RequestFloor:     requestFloor,
	})

	h := New(Config{
		OwnerPubkey:    nodePK,
		NodeIlpAddress: "g.relay.spsp",
		SecretKey:      nodeSK,
		Oracle:         oracle,
		Codec:          codec,
		Store:          store,
	})
	return h, nodeSK, nodePK, codec, store
}

func TestHandlePacketS1NoChains(t *testing.T) {
	h, nodeSK, nodePK, codec, _ := newTestHandler(t, 10, big.NewInt(0))
	_ = nodeSK

	senderSK, _ := key(0x02)
	event, _, err := codec.BuildRequest(nodePK, senderSK, events.SettlementDescriptors{
		SupportedChains: []events.ChainID{},
	}, "g.relay.remote")
	require.NoError(t, err)

	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "0",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.True(t, resp.Accept)

	respEvent, err := events.DecodeWire(resp.Data)
	require.NoError(t, err)

	senderPK, _ := key(0x02)
	parsed, err := codec.ParseResponse(respEvent, senderSK, nodePK)
	require.NoError(t, err)
	_ = senderPK
	assert.Empty(t, parsed.ChannelID)
	assert.Regexp(t, `^g\.relay\.spsp\.spsp\.[0-9a-f]{16}$`, parsed.DestinationAccount)
}

func TestHandlePacketS3Underpayment(t *testing.T) {
	h, _, nodePK, codec, _ := newTestHandler(t, 10, nil)

	senderSK, _ := key(0x03)
	event, _, err := codec.BuildRequest(nodePK, senderSK, events.SettlementDescriptors{}, "g.relay.remote")
	require.NoError(t, err)
	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "500",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.False(t, resp.Accept)
	assert.Equal(t, CodeInsufficientAmount, resp.Code)
	required := new(big.Int).Mul(big.NewInt(int64(len(data))), big.NewInt(10)).String()
	assert.Equal(t, required, resp.Metadata["required"])
	assert.Equal(t, "500", resp.Metadata["received"])
	assert.Equal(t, 400, resp.HTTPStatus())
}

func TestHandlePacketS4DecryptionFailure(t *testing.T) {
	h, _, nodePK, codec, _ := newTestHandler(t, 10, big.NewInt(0))

	senderSK, _ := key(0x05)
	event, _, err := codec.BuildRequest(nodePK, senderSK, events.SettlementDescriptors{}, "g.relay.remote")
	require.NoError(t, err)
	// Corrupt the ciphertext so decryption recovers garbage JSON.
	event.Content = event.Content[:len(event.Content)-2]
	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "0",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.False(t, resp.Accept)
	assert.Equal(t, CodeBadRequest, resp.Code)
}

func TestHandlePacketOwnerBypassNonRequestKind(t *testing.T) {
	h, nodeSK, nodePK, codec, store := newTestHandler(t, 10, nil)

	event, err := codec.BuildPeerInfo(events.PeerInfo{
		Pubkey:      nodePK,
		IlpAddress:  "g.relay.spsp",
		BtpEndpoint: "wss://relay.example/btp",
		SettlementDescriptors: events.SettlementDescriptors{
			AssetCode:       "USD",
			AssetScale:      intPtr(9),
			SupportedChains: []events.ChainID{},
			SettlementAddrs: map[events.ChainID]string{},
		},
	}, nodeSK)
	require.NoError(t, err)
	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "0",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.True(t, resp.Accept)
	assert.True(t, store.Exists(event.ID))
}

func TestHandlePacketNonOwnerUnderpaymentNonRequestKind(t *testing.T) {
	h, _, nodePK, codec, _ := newTestHandler(t, 10, nil)

	otherSK, _ := key(0x09)
	event, err := codec.BuildPeerInfo(events.PeerInfo{
		Pubkey:      nodePK, // not serialized: the event pubkey comes from otherSK, not the owner
		IlpAddress:  "g.relay.spsp",
		BtpEndpoint: "wss://relay.example/btp",
		SettlementDescriptors: events.SettlementDescriptors{
			AssetCode:       "USD",
			AssetScale:      intPtr(9),
			SupportedChains: []events.ChainID{},
			SettlementAddrs: map[events.ChainID]string{},
		},
	}, otherSK)
	require.NoError(t, err)
	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "0",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.False(t, resp.Accept)
	assert.Equal(t, CodeInsufficientAmount, resp.Code)
}

func TestHandlePacketS2ChannelOpen(t *testing.T) {
	h, _, nodePK, codec, _ := newTestHandler(t, 10, big.NewInt(0))

	channels := facadetest.NewChannelService()
	channels.OpenResult = facade.ChannelState{ChannelID: "0xCH", Status: facade.ChannelOpening}
	channels.StateSequence = []facade.ChannelState{
		{ChannelID: "0xCH", Status: facade.ChannelOpening},
		{ChannelID: "0xCH", Status: facade.ChannelOpen},
	}
	admin := facadetest.NewConnectorAdmin()

	h.cfg.Negotiator = negotiator.New(channels)
	h.cfg.ChannelClient = channels
	h.cfg.ConnAdmin = admin
	h.cfg.LocalSettlement = negotiator.LocalConfig{
		OwnSupportedChains: []events.ChainID{"evm:base:8453"},
		OwnSettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xOWN"},
		SettlementTimeout:  86400,
		ChannelOpenTimeout: time.Second,
		PollInterval:       time.Millisecond,
	}

	senderSK, senderPK := key(0x07)
	event, _, err := codec.BuildRequest(nodePK, senderSK, events.SettlementDescriptors{
		SupportedChains: []events.ChainID{"evm:base:8453"},
		SettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xPEER"},
	}, "g.relay.remote")
	require.NoError(t, err)
	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "0",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.True(t, resp.Accept)

	respEvent, err := events.DecodeWire(resp.Data)
	require.NoError(t, err)
	parsed, err := codec.ParseResponse(respEvent, senderSK, nodePK)
	require.NoError(t, err)
	assert.Equal(t, events.ChainID("evm:base:8453"), parsed.NegotiatedChain)
	assert.Equal(t, "0xOWN", parsed.SettlementAddress)
	assert.Equal(t, "0xCH", parsed.ChannelID)
	require.NotNil(t, parsed.SettlementTimeout)
	assert.EqualValues(t, 86400, *parsed.SettlementTimeout)

	_, registered := admin.Peers[senderPK.String()]
	assert.True(t, registered)
}

func TestHandlePacketS5ChannelOpenTimeout(t *testing.T) {
	h, _, nodePK, codec, _ := newTestHandler(t, 10, big.NewInt(0))

	channels := facadetest.NewChannelService()
	channels.OpenResult = facade.ChannelState{ChannelID: "0xCH", Status: facade.ChannelOpening}
	channels.StateSequence = []facade.ChannelState{{ChannelID: "0xCH", Status: facade.ChannelOpening}}

	h.cfg.Negotiator = negotiator.New(channels)
	h.cfg.ChannelClient = channels
	h.cfg.LocalSettlement = negotiator.LocalConfig{
		OwnSupportedChains: []events.ChainID{"evm:base:8453"},
		OwnSettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xOWN"},
		ChannelOpenTimeout: 20 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
	}

	senderSK, _ := key(0x08)
	event, _, err := codec.BuildRequest(nodePK, senderSK, events.SettlementDescriptors{
		SupportedChains: []events.ChainID{"evm:base:8453"},
		SettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xPEER"},
	}, "g.relay.remote")
	require.NoError(t, err)
	data, err := events.EncodeWire(event)
	require.NoError(t, err)

	resp := h.HandlePacket(context.Background(), Packet{
		Amount:      "0",
		Destination: "g.relay.spsp",
		Data:        data,
	})
	require.False(t, resp.Accept)
	assert.Equal(t, CodeInternalError, resp.Code)
	assert.Contains(t, resp.Message, "channel")
	assert.Equal(t, 500, resp.HTTPStatus())
}

func intPtr(i int) *int { return &i }
