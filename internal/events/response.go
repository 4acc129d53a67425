package events

// SettlementResponse is the plaintext carried encrypted inside a
// RESPONSE_KIND wire event.
type SettlementResponse struct {
	RequestID          string  `json:"requestId"`
	DestinationAccount string  `json:"destinationAccount"`
	SharedSecret       string  `json:"sharedSecret"` // base-64, 32 bytes decoded

	// The fields below are present only when a channel was opened by
	// the settlement negotiator; absent on the "no chain match"
	// degrade-to-base path.
	NegotiatedChain      ChainID `json:"negotiatedChain,omitempty"`
	SettlementAddress    string  `json:"settlementAddress,omitempty"`
	TokenAddress         string  `json:"tokenAddress,omitempty"`
	TokenNetworkAddress  string  `json:"tokenNetworkAddress,omitempty"`
	ChannelID            string  `json:"channelId,omitempty"`
	SettlementTimeout    *int64  `json:"settlementTimeout,omitempty"`
}

// validate enforces the settlement-response decoding rules.
func (r *SettlementResponse) validate() error {
	if r.RequestID == "" {
		return newInvalidEvent("requestId is missing or empty")
	}
	if r.DestinationAccount == "" {
		return newInvalidEvent("destinationAccount is missing or empty")
	}
	if r.SharedSecret == "" {
		return newInvalidEvent("sharedSecret is missing or empty")
	}
	if r.NegotiatedChain != "" {
		if err := r.NegotiatedChain.Validate(); err != nil {
			return wrapInvalidEvent("negotiatedChain", err)
		}
	}
	if r.SettlementTimeout != nil && *r.SettlementTimeout <= 0 {
		return newInvalidEvent("settlementTimeout must be a positive integer")
	}
	return nil
}
