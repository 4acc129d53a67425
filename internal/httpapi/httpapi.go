// Package httpapi exposes the two endpoints
// this node's packet-layer surface requires: POST /handle-packet and GET
// /health. Routing follows lnd's rpcserver-adjacent style of
// a thin HTTP layer over an already-built business-logic core, using
// gorilla/mux for the route table the way other REST-surfaced repos in
// the ecosystem wire theirs (lnd itself is gRPC-only).
package httpapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/agentpay/relaynode/internal/bootstrap"
	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/pkthandler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BootstrapStatus is the narrow slice of bootstrap.Service this
// package needs, kept as an interface so tests can supply a fake
// instead of a running Service.
type BootstrapStatus interface {
	Phase() bootstrap.Phase
	PeerCount() int
	ChannelCount() int
}

// Config wires the HTTP surface to the node's identity and the
// already-constructed packet handler.
type Config struct {
	NodeID     string
	Pubkey     events.PublicKey
	IlpAddress string

	Handler   *pkthandler.Handler
	Bootstrap BootstrapStatus // optional; nil renders bootstrapPhase as absent

	Now func() time.Time
}

// NewRouter builds the *mux.Router serving this node's HTTP surface.
func NewRouter(cfg Config) *mux.Router {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	r := mux.NewRouter()
	r.HandleFunc("/handle-packet", handlePacket(cfg)).Methods(http.MethodPost)
	r.HandleFunc("/health", health(cfg)).Methods(http.MethodGet)
	return r
}

type handlePacketRequest struct {
	Amount        string `json:"amount"`
	Destination   string `json:"destination"`
	Data          string `json:"data"`
	SourceAccount string `json:"sourceAccount,omitempty"`
}

type handlePacketResponse struct {
	Accept      bool                   `json:"accept"`
	Fulfillment string                 `json:"fulfillment,omitempty"`
	Data        string                 `json:"data,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Code        string                 `json:"code,omitempty"`
	Message     string                 `json:"message,omitempty"`
}

func handlePacket(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req handlePacketRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, handlePacketResponse{
				Accept:  false,
				Code:    string(pkthandler.CodeBadRequest),
				Message: "malformed request body: " + err.Error(),
			})
			return
		}

		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, handlePacketResponse{
				Accept:  false,
				Code:    string(pkthandler.CodeBadRequest),
				Message: "data is not valid base64: " + err.Error(),
			})
			return
		}

		resp := cfg.Handler.HandlePacket(r.Context(), pkthandler.Packet{
			Amount:        req.Amount,
			Destination:   req.Destination,
			Data:          data,
			SourceAccount: req.SourceAccount,
		})

		out := handlePacketResponse{
			Accept:   resp.Accept,
			Metadata: resp.Metadata,
			Code:     string(resp.Code),
			Message:  resp.Message,
		}
		if resp.Fulfillment != nil {
			out.Fulfillment = base64.StdEncoding.EncodeToString(resp.Fulfillment)
		}
		if resp.Data != nil {
			out.Data = base64.StdEncoding.EncodeToString(resp.Data)
		}
		writeJSON(w, resp.HTTPStatus(), out)
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	NodeID         string `json:"nodeId"`
	Pubkey         string `json:"pubkey"`
	IlpAddress     string `json:"ilpAddress"`
	Timestamp      int64  `json:"timestamp"`
	BootstrapPhase string `json:"bootstrapPhase,omitempty"`
	PeerCount      *int   `json:"peerCount,omitempty"`
	ChannelCount   *int   `json:"channelCount,omitempty"`
}

func health(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:     "healthy",
			NodeID:     cfg.NodeID,
			Pubkey:     cfg.Pubkey.String(),
			IlpAddress: cfg.IlpAddress,
			Timestamp:  cfg.Now().Unix(),
		}
		if cfg.Bootstrap != nil {
			phase := cfg.Bootstrap.Phase()
			resp.BootstrapPhase = phase.String()
			if phase == bootstrap.PhaseReady {
				peers := cfg.Bootstrap.PeerCount()
				channels := cfg.Bootstrap.ChannelCount()
				resp.PeerCount = &peers
				resp.ChannelCount = &channels
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("write response body: %v", err)
	}
}
