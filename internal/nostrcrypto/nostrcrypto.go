// Package nostrcrypto supplies one concrete implementation of the
// events.Signer and events.Cipher collaborators the core keeps
// external to itself: schnorr signing and ECDH-derived symmetric
// encryption over the same secp256k1 curve lnd's lnwallet
// channel code already depends on (github.com/btcsuite/btcd/btcec/v2).
// Nothing in internal/events, internal/pkthandler, internal/negotiator
// or internal/bootstrap imports this package directly — cmd/relaynoded
// wires it in at the process boundary, keeping credential signing and
// curve arithmetic contracted only through interfaces everywhere else.
package nostrcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/go-errors/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/agentpay/relaynode/internal/events"
)

// Signer implements events.Signer with BIP340 schnorr signatures over
// secp256k1, the same scheme nostr events use.
type Signer struct{}

func (Signer) Pubkey(sk events.SecretKey) (events.PublicKey, error) {
	_, pub := btcec.PrivKeyFromBytes(sk[:])
	var out events.PublicKey
	copy(out[:], schnorr.SerializePubKey(pub))
	return out, nil
}

func (Signer) Sign(sk events.SecretKey, digest [32]byte) (string, error) {
	priv, _ := btcec.PrivKeyFromBytes(sk[:])
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return "", errors.Errorf("schnorr sign: %v", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

func (Signer) Verify(pubkey events.PublicKey, digest [32]byte, sig string) bool {
	rawSig, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	parsedSig, err := schnorr.ParseSignature(rawSig)
	if err != nil {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubkey[:])
	if err != nil {
		return false
	}
	return parsedSig.Verify(digest[:], pub) == nil
}

// Cipher implements events.Cipher with ECDH key agreement (the same
// secp256k1 curve) feeding a chacha20poly1305 AEAD, mirroring nostr's
// NIP-44-style sender/recipient shared-secret scheme without the
// padding rules this core has no use for.
type Cipher struct{}

func (Cipher) Encrypt(plaintext []byte, senderSK events.SecretKey, recipientPub events.PublicKey) (string, error) {
	key, err := sharedKey(senderSK, recipientPub)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", errors.Errorf("init aead: %v", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Errorf("generate nonce: %v", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return hex.EncodeToString(append(nonce, sealed...)), nil
}

func (Cipher) Decrypt(ciphertext string, recipientSK events.SecretKey, senderPub events.PublicKey) ([]byte, error) {
	raw, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, errors.Errorf("decode ciphertext: %v", err)
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return nil, errors.Errorf("ciphertext shorter than nonce")
	}
	key, err := sharedKey(recipientSK, senderPub)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Errorf("init aead: %v", err)
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Errorf("open aead: %v", err)
	}
	return plaintext, nil
}

// sharedKey derives a 32-byte symmetric key from an ECDH shared point,
// hashed once to whiten it into a uniform AEAD key.
func sharedKey(sk events.SecretKey, pub events.PublicKey) ([]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(sk[:])
	pubKey, err := schnorr.ParsePubKey(pub[:])
	if err != nil {
		return nil, errors.Errorf("parse counterparty pubkey: %v", err)
	}
	point := btcec.GenerateSharedSecret(priv, pubKey)
	sum := sha256.Sum256(point)
	return sum[:], nil
}
