// Package negotiator picks a settlement rail: given a peer's
// advertised chain preferences and the local node's own settlement
// configuration, pick a mutually-supported rail, drive the channel
// service's open-channel state machine, and return the opened
// channel's identity.
package negotiator

import (
	"context"
	"time"

	"github.com/go-errors/errors"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/facade"
)

// ErrChannelOpenTimeout is returned when getChannelState never reports
// "open" before LocalConfig.ChannelOpenTimeout elapses.
var ErrChannelOpenTimeout = errors.New("channel open timed out")

// ErrChannelTerminal is returned when the channel service reports a
// terminal non-open status (closed/failed) during the poll loop.
var ErrChannelTerminal = errors.New("channel reached a terminal non-open status")

// LocalConfig is this node's own settlement configuration, the
// counterpart to the fields the remote peer carries in its request.
type LocalConfig struct {
	OwnSupportedChains []events.ChainID
	OwnSettlementAddrs map[events.ChainID]string
	OwnPreferredTokens map[events.ChainID]string
	OwnTokenNetworks   map[events.ChainID]string

	// SettlementTimeout is the value attached to a successfully opened
	// channel's descriptor (the response's settlementTimeout field).
	SettlementTimeout int64

	// ChannelOpenTimeout bounds the poll loop's wall-clock budget.
	ChannelOpenTimeout time.Duration
	// PollInterval is the minimum sleep between getChannelState calls.
	PollInterval time.Duration
}

// Result is the opened-channel descriptor returned on a successful
// negotiation. A nil *Result with a nil error is the "no chain match"
// sentinel: not an error, a graceful degrade.
type Result struct {
	NegotiatedChain     events.ChainID
	SettlementAddress   string
	TokenAddress        string
	TokenNetworkAddress string
	ChannelID           string
	SettlementTimeout   int64
}

// Negotiator drives the settlement rail selection and channel-open
// state machine against an injected facade.ChannelService.
type Negotiator struct {
	Channels facade.ChannelService
}

func New(channels facade.ChannelService) *Negotiator {
	return &Negotiator{Channels: channels}
}

// Negotiate selects a chain, opens a channel over it, and polls the
// channel service until the channel reports open, fails terminally,
// or the configured timeout elapses.
func (n *Negotiator) Negotiate(ctx context.Context, request *events.SettlementRequest, cfg LocalConfig, peerID string) (*Result, error) {
	candidate := selectChain(request, cfg)
	if candidate == nil {
		log.Debugf("no chain match for peer %s", peerID)
		return nil, nil
	}

	openReq := facade.OpenChannelRequest{
		PeerID: peerID,
		Chain:  string(candidate.chain),
		Token:  candidate.tokenAddress,
		TokenNetwork:      candidate.tokenNetworkAddress,
		PeerAddress:       candidate.peerSettlementAddress,
		InitialDeposit:    "0",
		SettlementTimeout: cfg.SettlementTimeout,
	}

	opened, err := n.Channels.OpenChannel(ctx, openReq)
	if err != nil {
		return nil, errors.Errorf("open channel on %s: %v", candidate.chain, err)
	}

	final, err := n.awaitOpen(ctx, opened.ChannelID, cfg)
	if err != nil {
		return nil, err
	}

	return &Result{
		NegotiatedChain:     candidate.chain,
		SettlementAddress:   candidate.ownSettlementAddress,
		TokenAddress:        candidate.tokenAddress,
		TokenNetworkAddress: candidate.tokenNetworkAddress,
		ChannelID:           final.ChannelID,
		SettlementTimeout:   cfg.SettlementTimeout,
	}, nil
}

type selectedChain struct {
	chain                 events.ChainID
	ownSettlementAddress  string
	peerSettlementAddress string
	tokenAddress          string
	tokenNetworkAddress   string
}

// selectChain implements steps 1-2: intersect chains in the request's
// preference order (first occurrence only), then pick the first
// candidate with both a local and a peer settlement address.
func selectChain(request *events.SettlementRequest, cfg LocalConfig) *selectedChain {
	if len(cfg.OwnSupportedChains) == 0 {
		return nil
	}
	ownSupported := make(map[events.ChainID]bool, len(cfg.OwnSupportedChains))
	for _, c := range cfg.OwnSupportedChains {
		ownSupported[c] = true
	}

	seen := make(map[events.ChainID]bool, len(request.SupportedChains))
	for _, c := range request.SupportedChains {
		if seen[c] || !ownSupported[c] {
			continue
		}
		seen[c] = true

		ownAddr, ok := cfg.OwnSettlementAddrs[c]
		if !ok {
			continue
		}
		peerAddr, ok := request.SettlementAddrs[c]
		if !ok {
			continue
		}

		token := resolveToken(c, request, cfg)
		tokenNetwork := cfg.OwnTokenNetworks[c]

		return &selectedChain{
			chain:                 c,
			ownSettlementAddress:  ownAddr,
			peerSettlementAddress: peerAddr,
			tokenAddress:          token,
			tokenNetworkAddress:   tokenNetwork,
		}
	}
	return nil
}

// resolveToken implements step 2's token resolution rule: prefer the
// peer's requested token when it matches our own preferred token for
// the chain, otherwise fall back to our own preferred token, otherwise
// leave it absent.
func resolveToken(chain events.ChainID, request *events.SettlementRequest, cfg LocalConfig) string {
	ownPreferred, haveOwn := cfg.OwnPreferredTokens[chain]
	peerPreferred, havePeer := request.PreferredTokens[chain]

	if haveOwn && havePeer && peerPreferred == ownPreferred {
		return peerPreferred
	}
	if haveOwn {
		return ownPreferred
	}
	return ""
}

// awaitOpen implements step 4: poll getChannelState until open, a
// terminal failure, or timeout.
func (n *Negotiator) awaitOpen(ctx context.Context, channelID string, cfg LocalConfig) (facade.ChannelState, error) {
	timeout := cfg.ChannelOpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	deadline := time.Now().Add(timeout)
	for {
		state, err := n.Channels.GetChannelState(ctx, channelID)
		if err != nil {
			return facade.ChannelState{}, errors.Errorf("get channel state: %v", err)
		}

		switch state.Status {
		case facade.ChannelOpen:
			return state, nil
		case facade.ChannelClosed, facade.ChannelFailed:
			return facade.ChannelState{}, ErrChannelTerminal
		}

		if time.Now().After(deadline) {
			return facade.ChannelState{}, ErrChannelOpenTimeout
		}

		select {
		case <-ctx.Done():
			return facade.ChannelState{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}
