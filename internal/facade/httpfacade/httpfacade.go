// Package httpfacade implements the three facade.* interfaces over
// plain JSON/HTTP, the transport this node uses to reach its external
// collaborators (the packet router's admin surface, the channel
// service, and the runtime's outbound packet sender) when they are
// not embedded in the same process. Every one of these stays an
// external collaborator — this package is a thin client, never a
// real implementation of connector/channel/runtime behavior.
package httpfacade

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/agentpay/relaynode/internal/facade"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the shared HTTP plumbing every facade client below embeds.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func newClient(baseURL string) Client {
	return Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func (c Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &facade.FacadeError{Kind: facade.ErrNetwork, Op: path, Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &facade.FacadeError{Kind: facade.ErrServer, Op: path, Msg: resp.Status}
	}
	if resp.StatusCode >= 400 {
		return &facade.FacadeError{Kind: facade.ErrValidation, Op: path, Msg: resp.Status}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ConnectorAdmin is an HTTP-backed facade.ConnectorAdmin.
type ConnectorAdmin struct{ Client }

func NewConnectorAdmin(baseURL string) *ConnectorAdmin {
	return &ConnectorAdmin{newClient(baseURL)}
}

func (c *ConnectorAdmin) AddPeer(ctx context.Context, req facade.AddPeerRequest) error {
	return c.postJSON(ctx, "/peers", req, nil)
}

func (c *ConnectorAdmin) RemovePeer(ctx context.Context, peerID string) error {
	return c.postJSON(ctx, "/peers/"+peerID+"/remove", struct{}{}, nil)
}

// ChannelService is an HTTP-backed facade.ChannelService.
type ChannelService struct{ Client }

func NewChannelService(baseURL string) *ChannelService {
	return &ChannelService{newClient(baseURL)}
}

func (c *ChannelService) OpenChannel(ctx context.Context, req facade.OpenChannelRequest) (facade.ChannelState, error) {
	var out facade.ChannelState
	err := c.postJSON(ctx, "/channels/open", req, &out)
	return out, err
}

func (c *ChannelService) GetChannelState(ctx context.Context, channelID string) (facade.ChannelState, error) {
	var out facade.ChannelState
	err := c.postJSON(ctx, "/channels/"+channelID+"/state", struct{}{}, &out)
	return out, err
}

// RuntimeClient is an HTTP-backed facade.RuntimeClient.
type RuntimeClient struct{ Client }

func NewRuntimeClient(baseURL string) *RuntimeClient {
	return &RuntimeClient{newClient(baseURL)}
}

func (c *RuntimeClient) SendPacket(ctx context.Context, req facade.SendPacketRequest) (facade.SendPacketResult, error) {
	var out facade.SendPacketResult
	err := c.postJSON(ctx, "/send-packet", req, &out)
	return out, err
}
