package events

import (
	"encoding/hex"
	"regexp"

	"github.com/go-errors/errors"
)

// PublicKey is a peer's stable identity: a 32-byte key, always handled
// hex-encoded at the boundaries of this package. The actual elliptic-curve arithmetic lives outside this
// repo's core (behind the Signer/Cipher facades below); this type only
// carries and validates the encoded form.
type PublicKey [32]byte

// SecretKey is an opaque handle to a node's private key material. This
// package never inspects its bytes directly: every operation that
// needs to sign or open an encrypted payload goes through a Signer or
// Cipher implementation supplied by the caller.
type SecretKey [32]byte

var pubkeyPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParsePublicKey validates and decodes a 64-char lowercase-hex pubkey.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	if !pubkeyPattern.MatchString(s) {
		return pk, errors.Errorf("pubkey must be 64 lowercase hex characters, got %q", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return pk, errors.Errorf("decode pubkey: %v", err)
	}
	copy(pk[:], raw)
	return pk, nil
}

// String renders the pubkey as lowercase hex.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

func (pk PublicKey) MarshalJSON() ([]byte, error) {
	return marshalQuoted(pk.String())
}

func (pk *PublicKey) UnmarshalJSON(data []byte) error {
	s, err := unmarshalQuoted(data)
	if err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
