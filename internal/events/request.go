package events

// SettlementRequest is the plaintext carried encrypted inside a
// REQUEST_KIND wire event.
type SettlementRequest struct {
	RequestID string `json:"requestId"`
	Timestamp int64  `json:"timestamp"`

	// SenderIlpAddress is the sender's own routing address, included so
	// the responder knows where to address a reply packet.
	SenderIlpAddress string `json:"ilpAddress,omitempty"`

	SettlementDescriptors
}

// validate enforces the parseRequest rules: non-empty requestId,
// an integer timestamp, and the same settlement-descriptor validation
// as PeerInfo (chain identifiers, address-map membership).
func (r *SettlementRequest) validate() error {
	if r.RequestID == "" {
		return newInvalidEvent("requestId is missing or empty")
	}
	if err := r.SettlementDescriptors.validate(); err != nil {
		return wrapInvalidEvent("settlement descriptors", err)
	}
	return nil
}
