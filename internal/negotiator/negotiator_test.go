package negotiator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/facade"
	"github.com/agentpay/relaynode/internal/facade/facadetest"
)

func TestNegotiateNoChainMatchMakesNoRPC(t *testing.T) {
	channels := facadetest.NewChannelService()
	// Any OpenChannel call would surface this error and fail NoError below.
	channels.OpenErr = errors.New("unexpected OpenChannel call")
	neg := New(channels)

	req := &events.SettlementRequest{
		SettlementDescriptors: events.SettlementDescriptors{
			SupportedChains: []events.ChainID{},
		},
	}
	cfg := LocalConfig{OwnSupportedChains: []events.ChainID{"evm:base:8453"}}

	result, err := neg.Negotiate(context.Background(), req, cfg, "peer-1")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestNegotiateSuccessfulOpen(t *testing.T) {
	channels := facadetest.NewChannelService()
	channels.OpenResult = facade.ChannelState{ChannelID: "0xCH", Status: facade.ChannelOpening}
	channels.StateSequence = []facade.ChannelState{
		{ChannelID: "0xCH", Status: facade.ChannelOpening},
		{ChannelID: "0xCH", Status: facade.ChannelOpen},
	}
	neg := New(channels)

	req := &events.SettlementRequest{
		SettlementDescriptors: events.SettlementDescriptors{
			SupportedChains: []events.ChainID{"evm:base:8453"},
			SettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xPEER"},
		},
	}
	cfg := LocalConfig{
		OwnSupportedChains: []events.ChainID{"evm:base:8453"},
		OwnSettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xOWN"},
		SettlementTimeout:  86400,
		ChannelOpenTimeout: time.Second,
		PollInterval:       time.Millisecond,
	}

	result, err := neg.Negotiate(context.Background(), req, cfg, "peer-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, events.ChainID("evm:base:8453"), result.NegotiatedChain)
	assert.Equal(t, "0xOWN", result.SettlementAddress)
	assert.Equal(t, "0xCH", result.ChannelID)
	assert.EqualValues(t, 86400, result.SettlementTimeout)
}

func TestNegotiateTimeout(t *testing.T) {
	channels := facadetest.NewChannelService()
	channels.OpenResult = facade.ChannelState{ChannelID: "0xCH", Status: facade.ChannelOpening}
	channels.StateSequence = []facade.ChannelState{
		{ChannelID: "0xCH", Status: facade.ChannelOpening},
	}
	neg := New(channels)

	req := &events.SettlementRequest{
		SettlementDescriptors: events.SettlementDescriptors{
			SupportedChains: []events.ChainID{"evm:base:8453"},
			SettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xPEER"},
		},
	}
	cfg := LocalConfig{
		OwnSupportedChains: []events.ChainID{"evm:base:8453"},
		OwnSettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xOWN"},
		ChannelOpenTimeout: 20 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
	}

	_, err := neg.Negotiate(context.Background(), req, cfg, "peer-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannelOpenTimeout)
}

func TestNegotiateDuplicateChainConsideredOnce(t *testing.T) {
	channels := facadetest.NewChannelService()
	channels.OpenResult = facade.ChannelState{ChannelID: "0xCH", Status: facade.ChannelOpen}
	channels.StateSequence = []facade.ChannelState{{ChannelID: "0xCH", Status: facade.ChannelOpen}}
	neg := New(channels)

	req := &events.SettlementRequest{
		SettlementDescriptors: events.SettlementDescriptors{
			SupportedChains: []events.ChainID{"evm:base:8453", "evm:base:8453"},
			SettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xPEER"},
		},
	}
	cfg := LocalConfig{
		OwnSupportedChains: []events.ChainID{"evm:base:8453"},
		OwnSettlementAddrs: map[events.ChainID]string{"evm:base:8453": "0xOWN"},
		ChannelOpenTimeout: time.Second,
		PollInterval:       time.Millisecond,
	}

	result, err := neg.Negotiate(context.Background(), req, cfg, "peer-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, events.ChainID("evm:base:8453"), result.NegotiatedChain)
}
