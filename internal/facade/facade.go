// Package facade declares the three external collaborators this core
// only ever reaches through an interface: the
// Connector Admin Facade, the Channel Service Facade, and the Runtime
// Client Facade. None of them are implemented here — they're owned by
// the packet router, the channel-service process, and the relay
// server respectively — except for small in-memory fakes used by this
// repo's own tests, mirroring lnd's htlcswitch/mock.go style.
package facade

import "context"

// ErrorKind classifies a facade RPC failure: network-class errors are
// marked retryable, 4xx/5xx-equivalent errors are not. The facade
// clients and their callers in this module make a single attempt per
// call; none of them retries, with or without backoff.
type ErrorKind int

const (
	ErrValidation ErrorKind = iota
	ErrUnauthorized
	ErrAlreadyExists
	ErrNotFound
	ErrNetwork
	ErrServer
)

// FacadeError is the uniform error shape returned by every facade
// method below.
type FacadeError struct {
	Kind ErrorKind
	Op   string
	Msg  string
}

func (e *FacadeError) Error() string {
	return e.Op + ": " + e.Msg
}

// Retryable reports whether this failure is network-class, the only
// class a retrying caller would repeat.
func (e *FacadeError) Retryable() bool {
	return e.Kind == ErrNetwork
}

// Route is one routing-table entry supplied to addPeer.
type Route struct {
	Prefix   string
	Priority int
}

// SettlementInfo carries the negotiated settlement descriptor attached
// to an addPeer call, when the handshake opened a channel.
type SettlementInfo struct {
	Chain             string
	SettlementAddress string
	TokenAddress      string
	ChannelID         string
}

// AddPeerRequest is the payload for ConnectorAdmin.AddPeer.
type AddPeerRequest struct {
	ID         string
	URL        string
	AuthToken  string
	Routes     []Route
	Settlement *SettlementInfo
}

// ConnectorAdmin registers and deregisters routable peers with the
// local packet router. AddPeer MUST be idempotent: two calls with an
// identical payload both succeed; two calls for the same ID with
// differing payloads are a programmer error, not a runtime one.
type ConnectorAdmin interface {
	AddPeer(ctx context.Context, req AddPeerRequest) error
	RemovePeer(ctx context.Context, peerID string) error
}

// ChannelStatus is the channel lifecycle status enum.
type ChannelStatus string

const (
	ChannelOpening ChannelStatus = "opening"
	ChannelOpen    ChannelStatus = "open"
	ChannelClosed  ChannelStatus = "closed"
	ChannelFailed  ChannelStatus = "failed"
)

// OpenChannelRequest is the payload for ChannelService.OpenChannel.
type OpenChannelRequest struct {
	PeerID            string
	Chain             string
	Token             string
	TokenNetwork      string
	PeerAddress       string
	InitialDeposit    string
	SettlementTimeout int64
}

// ChannelState is the result of OpenChannel/GetChannelState.
type ChannelState struct {
	ChannelID string
	Status    ChannelStatus
	Chain     string
}

// ChannelService is the on-chain payment-channel collaborator: opening
// a channel and polling its state. Actual blockchain interaction is
// entirely external to this core.
type ChannelService interface {
	OpenChannel(ctx context.Context, req OpenChannelRequest) (ChannelState, error)
	GetChannelState(ctx context.Context, channelID string) (ChannelState, error)
}

// SendPacketRequest is the payload for RuntimeClient.SendPacket.
type SendPacketRequest struct {
	Destination string
	Amount      string
	Data        []byte
	Timeout     int64 // seconds; 0 means "use the client's default"
}

// SendPacketResult is the outcome of an outbound packet send.
type SendPacketResult struct {
	Accepted    bool
	Fulfillment []byte
	Data        []byte
	Code        string
	Message     string
}

// RuntimeClient sends outbound payment packets over the packet layer.
// Implementations may layer additional protocol steps (e.g. attaching
// a balance-proof claim) without affecting this core's contract.
type RuntimeClient interface {
	SendPacket(ctx context.Context, req SendPacketRequest) (SendPacketResult, error)
}
