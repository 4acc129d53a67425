package priceoracle

import (
	"math/big"
	"testing"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/stretchr/testify/assert"
)

func TestPriceBaseRate(t *testing.T) {
	o := New(Policy{BasePricePerByte: big.NewInt(10)})
	got := o.Price(100, 99, false)
	assert.Equal(t, big.NewInt(1000), got)
}

func TestPriceKindOverride(t *testing.T) {
	o := New(Policy{
		BasePricePerByte: big.NewInt(10),
		KindOverrides:    map[int]*big.Int{events.PeerInfoKind: big.NewInt(0)},
	})
	got := o.Price(500, events.PeerInfoKind, false)
	assert.Equal(t, big.NewInt(0), got)
}

func TestPriceRequestFloorZero(t *testing.T) {
	o := New(Policy{
		BasePricePerByte: big.NewInt(10),
		RequestFloor:     big.NewInt(0),
	})
	got := o.Price(100, events.RequestKind, true)
	assert.Equal(t, big.NewInt(0), got)
}

func TestPriceRequestNoFloorFallsThrough(t *testing.T) {
	o := New(Policy{BasePricePerByte: big.NewInt(10)})
	got := o.Price(100, events.RequestKind, true)
	assert.Equal(t, big.NewInt(1000), got)
}
