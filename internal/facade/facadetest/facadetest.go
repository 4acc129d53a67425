// Package facadetest provides hand-written in-memory fakes for the
// three external facades, in the same spirit as lnd's
// htlcswitch/mock.go: enough behavior to drive integration-style
// tests without a real relay, channel service, or packet runtime.
package facadetest

import (
	"context"
	"reflect"
	"sync"

	"github.com/agentpay/relaynode/internal/facade"
)

// ConnectorAdmin is a fake facade.ConnectorAdmin that records calls and
// enforces the idempotency contract: identical repeat AddPeer calls
// succeed silently, differing ones are reported as a programmer error
// via ErrAlreadyExists (the caller is expected to treat this as fatal
// in production, non-fatal in this repo's best-effort register path).
type ConnectorAdmin struct {
	mu      sync.Mutex
	Peers   map[string]facade.AddPeerRequest
	Removed map[string]bool

	// FailNextAddPeer, if set, is returned (and cleared) on the next
	// AddPeer call — used to inject a one-off AddPeer failure.
	FailNextAddPeer error
}

func NewConnectorAdmin() *ConnectorAdmin {
	return &ConnectorAdmin{
		Peers:   map[string]facade.AddPeerRequest{},
		Removed: map[string]bool{},
	}
}

func (c *ConnectorAdmin) AddPeer(_ context.Context, req facade.AddPeerRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailNextAddPeer != nil {
		err := c.FailNextAddPeer
		c.FailNextAddPeer = nil
		return err
	}

	existing, ok := c.Peers[req.ID]
	if ok && !sameRequest(existing, req) {
		return &facade.FacadeError{Kind: facade.ErrAlreadyExists, Op: "AddPeer", Msg: "peer already registered with a different payload"}
	}
	c.Peers[req.ID] = req
	return nil
}

func (c *ConnectorAdmin) RemovePeer(_ context.Context, peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Peers, peerID)
	c.Removed[peerID] = true
	return nil
}

func sameRequest(a, b facade.AddPeerRequest) bool {
	return reflect.DeepEqual(a, b)
}

// ChannelService is a fake facade.ChannelService whose OpenChannel and
// GetChannelState results are scripted (one sequence shared by every
// channel), so tests can model
// scenario S2 (open after N polls) and S5 (never transitions).
type ChannelService struct {
	mu sync.Mutex

	// OpenResult is returned by every OpenChannel call.
	OpenResult facade.ChannelState
	OpenErr    error

	// StateSequence is consumed one entry per GetChannelState call;
	// the last entry repeats once exhausted.
	StateSequence []facade.ChannelState
	pollIndex     int
}

func NewChannelService() *ChannelService {
	return &ChannelService{}
}

func (c *ChannelService) OpenChannel(_ context.Context, _ facade.OpenChannelRequest) (facade.ChannelState, error) {
	if c.OpenErr != nil {
		return facade.ChannelState{}, c.OpenErr
	}
	return c.OpenResult, nil
}

func (c *ChannelService) GetChannelState(_ context.Context, channelID string) (facade.ChannelState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.StateSequence) == 0 {
		return facade.ChannelState{ChannelID: channelID, Status: facade.ChannelOpening}, nil
	}
	idx := c.pollIndex
	if idx >= len(c.StateSequence) {
		idx = len(c.StateSequence) - 1
	} else {
		c.pollIndex++
	}
	return c.StateSequence[idx], nil
}

// RuntimeClient is a fake facade.RuntimeClient that returns a scripted
// result for every SendPacket call.
type RuntimeClient struct {
	Result facade.SendPacketResult
	Err    error

	mu    sync.Mutex
	Sent  []facade.SendPacketRequest
}

func NewRuntimeClient() *RuntimeClient {
	return &RuntimeClient{}
}

func (r *RuntimeClient) SendPacket(_ context.Context, req facade.SendPacketRequest) (facade.SendPacketResult, error) {
	r.mu.Lock()
	r.Sent = append(r.Sent, req)
	r.mu.Unlock()

	if r.Err != nil {
		return facade.SendPacketResult{}, r.Err
	}
	return r.Result, nil
}
