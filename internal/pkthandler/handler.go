// Package pkthandler implements the packet-handling
// business-logic server (BLS). It prices incoming payments, validates
// event payloads, routes settlement-request packets to the negotiator,
// and returns accept/reject verdicts. Never blocks longer than
// Config.PacketDeadline.
package pkthandler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/eventstore"
	"github.com/agentpay/relaynode/internal/facade"
	"github.com/agentpay/relaynode/internal/negotiator"
	"github.com/agentpay/relaynode/internal/priceoracle"
)

// Encoder/Decoder let the handler stay oblivious to the packet wire's
// compact encoding, keeping the codec itself free of network
// concerns: New fills in events.EncodeWire / events.DecodeWire when
// they are left nil, tests can substitute anything bijective.
type Encoder func(*events.WireEvent) ([]byte, error)
type Decoder func([]byte) (*events.WireEvent, error)

// Config holds every collaborator the handler needs. Negotiator,
// ChannelClient, and ConnAdmin are optional: when Negotiator or
// ChannelClient is nil, request packets fall back to the base response
// with no channel negotiation, exactly as if the request carried no
// supportedChains; when ConnAdmin is nil, negotiation still runs and
// only the best-effort peer registration is skipped.
type Config struct {
	OwnerPubkey    events.PublicKey
	NodeIlpAddress string
	SecretKey      events.SecretKey

	Oracle *priceoracle.Oracle
	Codec  *events.Codec
	Store  eventstore.Store

	Negotiator       *negotiator.Negotiator
	ChannelClient    facade.ChannelService
	ConnAdmin        facade.ConnectorAdmin
	LocalSettlement  negotiator.LocalConfig

	Encode Encoder
	Decode Decoder

	PacketDeadline time.Duration
}

// Handler is the BLS: one HandlePacket call per inbound packet,
// stateless apart from observability counters.
type Handler struct {
	cfg Config

	rejectedBadRequest  uint64
	rejectedInsufficient uint64
	rejectedInternal     uint64
	accepted             uint64
}

func New(cfg Config) *Handler {
	if cfg.Encode == nil {
		cfg.Encode = events.EncodeWire
	}
	if cfg.Decode == nil {
		cfg.Decode = events.DecodeWire
	}
	if cfg.PacketDeadline <= 0 {
		cfg.PacketDeadline = 10 * time.Second
	}
	return &Handler{cfg: cfg}
}

// Stats is a supplemental, non-spec observability accessor (SPEC_FULL
// §12) exposing per-outcome counters beyond the HTTP surface.
type Stats struct {
	Accepted             uint64
	RejectedBadRequest   uint64
	RejectedInsufficient uint64
	RejectedInternal     uint64
}

func (h *Handler) Stats() Stats {
	return Stats{
		Accepted:             atomic.LoadUint64(&h.accepted),
		RejectedBadRequest:   atomic.LoadUint64(&h.rejectedBadRequest),
		RejectedInsufficient: atomic.LoadUint64(&h.rejectedInsufficient),
		RejectedInternal:     atomic.LoadUint64(&h.rejectedInternal),
	}
}

// HandlePacket validates, decodes, prices, and routes a single inbound
// packet, then tallies the outcome against the handler's counters.
func (h *Handler) HandlePacket(ctx context.Context, pkt Packet) *Response {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.PacketDeadline)
	defer cancel()

	resp := h.handle(ctx, pkt)
	h.tally(resp)
	return resp
}

func (h *Handler) tally(resp *Response) {
	switch {
	case resp.Accept:
		atomic.AddUint64(&h.accepted, 1)
	case resp.Code == CodeBadRequest:
		atomic.AddUint64(&h.rejectedBadRequest, 1)
	case resp.Code == CodeInsufficientAmount:
		atomic.AddUint64(&h.rejectedInsufficient, 1)
	default:
		atomic.AddUint64(&h.rejectedInternal, 1)
	}
}

func (h *Handler) handle(ctx context.Context, pkt Packet) *Response {
	// Step 1: validate the packet itself.
	if pkt.Destination == "" || pkt.Amount == "" || len(pkt.Data) == 0 {
		return reject(CodeBadRequest, "amount, destination, and data are required")
	}
	amount, ok := new(big.Int).SetString(pkt.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return reject(CodeBadRequest, "amount must be a non-negative decimal integer")
	}

	// Step 2: decode the wire event.
	event, err := h.cfg.Decode(pkt.Data)
	if err != nil {
		return reject(CodeBadRequest, "unable to decode event: "+err.Error())
	}

	// Step 3: price the event.
	isRequest := event.Kind == events.RequestKind
	price := h.cfg.Oracle.Price(len(pkt.Data), event.Kind, isRequest)

	// Step 4: self-write bypass.
	bypass := event.Pubkey == h.cfg.OwnerPubkey.String()

	if !bypass && amount.Cmp(price) < 0 {
		log.Debugf("rejecting packet from %s: amount %s below price %s",
			event.Pubkey, amount.String(), price.String())
		return rejectMeta(CodeInsufficientAmount, "amount is below the required price", map[string]interface{}{
			"required": price.String(),
			"received": amount.String(),
		})
	}

	// Step 5: classify by kind.
	if isRequest {
		return h.handleRequest(ctx, event)
	}
	return h.handleOther(event)
}

func (h *Handler) handleOther(event *events.WireEvent) *Response {
	if err := h.cfg.Store.Store(event); err != nil {
		log.Errorf("store event %s: %v", event.ID, err)
		return reject(CodeInternalError, "unable to store event")
	}
	return accept(nil, nil, map[string]interface{}{
		"eventId": event.ID,
	})
}

func (h *Handler) handleRequest(ctx context.Context, event *events.WireEvent) *Response {
	senderPubkey, err := events.ParsePublicKey(event.Pubkey)
	if err != nil {
		return reject(CodeBadRequest, "malformed sender pubkey: "+err.Error())
	}

	req, err := h.cfg.Codec.ParseRequest(event, h.cfg.SecretKey, senderPubkey)
	if err != nil {
		return reject(CodeBadRequest, "unable to decrypt request: "+err.Error())
	}

	destinationAccount, sharedSecret, err := h.freshPaymentRoute()
	if err != nil {
		return reject(CodeInternalError, "unable to generate payment route: "+err.Error())
	}

	responsePayload := events.SettlementResponse{
		RequestID:           req.RequestID,
		DestinationAccount:  destinationAccount,
		SharedSecret:        sharedSecret,
	}

	if h.cfg.Negotiator != nil && h.cfg.ChannelClient != nil && len(req.SupportedChains) > 0 {
		result, err := h.cfg.Negotiator.Negotiate(ctx, req, h.cfg.LocalSettlement, event.Pubkey)
		if err != nil {
			log.Errorf("settlement negotiation failed for %s: %v", event.Pubkey, err)
			return reject(CodeInternalError, "channel negotiation failed: "+err.Error())
		}
		if result != nil {
			responsePayload.NegotiatedChain = result.NegotiatedChain
			responsePayload.SettlementAddress = result.SettlementAddress
			responsePayload.TokenAddress = result.TokenAddress
			responsePayload.TokenNetworkAddress = result.TokenNetworkAddress
			responsePayload.ChannelID = result.ChannelID
			timeout := result.SettlementTimeout
			responsePayload.SettlementTimeout = &timeout

			h.registerPeerBestEffort(ctx, event.Pubkey, req, result)
		}
		// result == nil: no chain match, degrade to the base response.
	}

	respEvent, err := h.cfg.Codec.BuildResponse(responsePayload, senderPubkey, h.cfg.SecretKey, event.ID)
	if err != nil {
		return reject(CodeInternalError, "unable to build response event: "+err.Error())
	}

	encoded, err := h.cfg.Encode(respEvent)
	if err != nil {
		return reject(CodeInternalError, "unable to encode response event: "+err.Error())
	}

	return accept(nil, encoded, map[string]interface{}{
		"eventId": respEvent.ID,
	})
}

// registerPeerBestEffort wires the sender into the local packet router
// after a successful channel open. Failures here are non-fatal:
// logged as a warning, never surfaced to the caller.
func (h *Handler) registerPeerBestEffort(ctx context.Context, senderPubkey string, req *events.SettlementRequest, result *negotiator.Result) {
	if h.cfg.ConnAdmin == nil {
		return
	}

	// The authToken is always passed empty, including when the
	// event-carried ilpAddress is absent, rather than inventing one.
	authToken := ""

	err := h.cfg.ConnAdmin.AddPeer(ctx, facade.AddPeerRequest{
		ID:        senderPubkey,
		URL:       req.SenderIlpAddress,
		AuthToken: authToken,
		Routes:    []facade.Route{{Prefix: req.SenderIlpAddress}},
		Settlement: &facade.SettlementInfo{
			Chain:             string(result.NegotiatedChain),
			SettlementAddress: result.SettlementAddress,
			TokenAddress:      result.TokenAddress,
			ChannelID:         result.ChannelID,
		},
	})
	if err != nil {
		log.Warnf("best-effort peer registration failed for %s: %v\n%s",
			senderPubkey, err, spew.Sdump(req))
	}
}

// freshPaymentRoute generates the per-payment routing identifier (a
// 16-hex suffix of an opaque UUID grafted onto the node's ILP address)
// and a fresh 32-byte shared secret. Neither
// operation touches signing or curve arithmetic — this is plain
// randomness, the one stdlib crypto primitive this core is allowed to
// use directly.
func (h *Handler) freshPaymentRoute() (destinationAccount, sharedSecretB64 string, err error) {
	id := uuid.New()
	suffix := hex.EncodeToString(id[:])[:16]
	destinationAccount = h.cfg.NodeIlpAddress + ".spsp." + suffix

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", "", err
	}
	sharedSecretB64 = base64.StdEncoding.EncodeToString(secret[:])
	return destinationAccount, sharedSecretB64, nil
}
