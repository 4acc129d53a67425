package events

// SettlementDescriptors is the set of settlement fields shared, with
// slightly different optionality, between PeerInfo, SettlementRequest
// and SettlementResponse. Centralising them here keeps the
// chain/address validation rules in one place instead of scattered
// across three near-duplicate structs.
type SettlementDescriptors struct {
	AssetCode        string            `json:"assetCode,omitempty"`
	AssetScale       *int              `json:"assetScale,omitempty"`
	SettlementEngine string            `json:"settlementEngine,omitempty"`
	SupportedChains  []ChainID         `json:"supportedChains"`
	SettlementAddrs  map[ChainID]string `json:"settlementAddresses"`
	PreferredTokens  map[ChainID]string `json:"preferredTokens,omitempty"`
	TokenNetworks    map[ChainID]string `json:"tokenNetworks,omitempty"`
}

// validate runs the chain-identifier and address-map invariants shared
// by every settlement descriptor set: every supportedChains entry must
// itself be a well-formed ChainID, and every key of settlementAddresses
// (and, when present, preferredTokens/tokenNetworks) must appear in
// supportedChains.
func (d *SettlementDescriptors) validate() error {
	if err := validateSupportedChains(d.SupportedChains); err != nil {
		return err
	}
	supported := chainSet(d.SupportedChains)
	if err := validateAddressMap(d.SettlementAddrs, supported, "settlementAddresses"); err != nil {
		return err
	}
	if d.PreferredTokens != nil {
		if err := validateAddressMap(d.PreferredTokens, supported, "preferredTokens"); err != nil {
			return err
		}
	}
	if d.TokenNetworks != nil {
		if err := validateAddressMap(d.TokenNetworks, supported, "tokenNetworks"); err != nil {
			return err
		}
	}
	return nil
}

// fillDefaults replaces absent required collections with empty ones:
// missing optional collections decode to empty collections (not
// absent), except preferredTokens and tokenNetworks which stay absent.
func (d *SettlementDescriptors) fillDefaults() {
	if d.SupportedChains == nil {
		d.SupportedChains = []ChainID{}
	}
	if d.SettlementAddrs == nil {
		d.SettlementAddrs = map[ChainID]string{}
	}
}

// PeerInfo is a peer's public advertisement, carried in the content of
// a PEER_INFO_KIND wire event.
type PeerInfo struct {
	// Pubkey is populated from the enclosing WireEvent's pubkey field,
	// never serialized as part of the JSON content itself.
	Pubkey PublicKey `json:"-"`

	IlpAddress   string `json:"ilpAddress"`
	BtpEndpoint  string `json:"btpEndpoint"`
	HttpEndpoint string `json:"httpEndpoint,omitempty"`

	SettlementDescriptors
}

// validate enforces the non-empty-required-field and chain-identifier
// rules parsePeerInfo applies to a decoded peer advertisement.
func (p *PeerInfo) validate() error {
	if p.IlpAddress == "" {
		return newInvalidEvent("ilpAddress is missing or empty")
	}
	if p.BtpEndpoint == "" {
		return newInvalidEvent("btpEndpoint is missing or empty")
	}
	if p.AssetCode == "" {
		return newInvalidEvent("assetCode is missing or empty")
	}
	if p.AssetScale == nil {
		return newInvalidEvent("assetScale is missing")
	}
	if *p.AssetScale < 0 {
		return newInvalidEvent("assetScale must be a non-negative integer")
	}
	if err := p.SettlementDescriptors.validate(); err != nil {
		return wrapInvalidEvent("settlement descriptors", err)
	}
	return nil
}
