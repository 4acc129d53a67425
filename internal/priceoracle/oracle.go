// Package priceoracle computes the minimum acceptable
// payment for an inbound event, given its byte length and kind.
package priceoracle

import "math/big"

// Oracle prices inbound events. All arithmetic is unsigned
// arbitrary-precision (math/big.Int): no third-party decimal library
// in the example corpus models an *integer* "amount as decimal
// string" the way this pricing rule requires (shopspring/decimal targets
// fractional decimals, not bignum integers), so this is one of the few
// places this repo falls back to the standard library — see
// DESIGN.md.
type Oracle struct {
	policy Policy
}

// Policy is the pricing configuration: a base per-byte rate, per-kind
// overrides, and an optional floor applied only to request-kind
// events.
type Policy struct {
	BasePricePerByte *big.Int
	KindOverrides    map[int]*big.Int

	// RequestFloor, when non-nil, is used verbatim as the request-kind
	// price instead of falling through to BasePricePerByte * byteLen.
	// A nil floor means "no override for requests"; a SPSP_MIN_PRICE=0
	// case is represented by a floor of big.NewInt(0).
	RequestFloor *big.Int
}

// New builds an Oracle from a fully-formed Policy.
func New(policy Policy) *Oracle {
	if policy.BasePricePerByte == nil {
		policy.BasePricePerByte = big.NewInt(0)
	}
	if policy.KindOverrides == nil {
		policy.KindOverrides = map[int]*big.Int{}
	}
	return &Oracle{policy: policy}
}

// Price computes the minimum acceptable payment for an event of the
// given kind and serialized byte length.
func (o *Oracle) Price(byteLen int, kind int, isRequestKind bool) *big.Int {
	if override, ok := o.policy.KindOverrides[kind]; ok {
		return new(big.Int).Set(override)
	}
	if isRequestKind && o.policy.RequestFloor != nil {
		return new(big.Int).Set(o.policy.RequestFloor)
	}
	return new(big.Int).Mul(big.NewInt(int64(byteLen)), o.policy.BasePricePerByte)
}
