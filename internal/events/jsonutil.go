package events

import (
	"github.com/go-errors/errors"
	jsoniter "github.com/json-iterator/go"
)

// json is the compact, stdlib-compatible codec used for every wire
// payload this package builds or parses: event content, the packet
// transport's compact envelope, and the small helpers below.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

func marshalQuoted(s string) ([]byte, error) {
	return json.Marshal(s)
}

func unmarshalQuoted(data []byte) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", errors.Errorf("decode string: %v", err)
	}
	return s, nil
}
