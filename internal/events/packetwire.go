package events

import "github.com/go-errors/errors"

// EncodeWire renders a WireEvent into the compact form carried inside
// a Packet's data field. The packet handler is oblivious to this
// format — it only ever calls EncodeWire/DecodeWire through the
// function-valued Encoder/Decoder fields of pkthandler.Config, so a
// node could swap in a binary codec without touching the handler.
func EncodeWire(event *WireEvent) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, errors.Errorf("encode wire event: %v", err)
	}
	return raw, nil
}

// DecodeWire is the bijective inverse of EncodeWire.
func DecodeWire(data []byte) (*WireEvent, error) {
	var event WireEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, errors.Errorf("decode wire event: %v", err)
	}
	return &event, nil
}
