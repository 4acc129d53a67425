package events

import (
	"strings"

	"github.com/go-errors/errors"
)

// ChainID is a CAIP-2-shaped chain identifier, "ns:net[:chainId]", e.g.
// "evm:base:8453". Each colon-delimited segment must be non-empty.
type ChainID string

// Validate checks the "{ns}:{net}[:{chainId}]" shape: two or three
// non-empty, colon-delimited segments.
func (c ChainID) Validate() error {
	segments := strings.Split(string(c), ":")
	if len(segments) != 2 && len(segments) != 3 {
		return errors.Errorf("chain id %q must have 2 or 3 colon-delimited segments", c)
	}
	for _, seg := range segments {
		if seg == "" {
			return errors.Errorf("chain id %q has an empty segment", c)
		}
	}
	return nil
}

// validateSupportedChains checks every entry in a []ChainID.
func validateSupportedChains(chains []ChainID) error {
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// validateAddressMap checks that every key of a chain->value mapping
// both parses as a ChainID and, when restrictTo is non-nil, appears in
// the given supported-chains set. This implements the PeerInfo
// invariant "every key in settlementAddresses must appear in
// supportedChains" and the analogous check for the optional maps.
func validateAddressMap(m map[ChainID]string, restrictTo map[ChainID]bool, mapName string) error {
	for c := range m {
		if err := c.Validate(); err != nil {
			return errors.Errorf("%s: %v", mapName, err)
		}
		if restrictTo != nil && !restrictTo[c] {
			return errors.Errorf("%s: chain %q is not in supportedChains", mapName, c)
		}
	}
	return nil
}

func chainSet(chains []ChainID) map[ChainID]bool {
	set := make(map[ChainID]bool, len(chains))
	for _, c := range chains {
		set[c] = true
	}
	return set
}
