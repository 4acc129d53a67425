package events

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-errors/errors"
)

// Wire-event kind tags.
const (
	// PeerInfoKind sits in the replaceable-profile range; the exact
	// value only needs to be stable across this node's lifetime and
	// distinct from the other two kinds.
	PeerInfoKind = 10100

	RequestKind  = 23194
	ResponseKind = 23195
)

// Tag is a single ordered string sequence inside a WireEvent's tags,
// e.g. ["p", "<pubkey>"] or ["e", "<eventId>"].
type Tag []string

// WireEvent is the canonical signed-event envelope used on the relay.
// It is immutable once signed: every field below is set exactly once,
// by buildPeerInfo/buildRequest/buildResponse.
type WireEvent struct {
	ID        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	Kind      int    `json:"kind"`
	Content   string `json:"content"`
	Tags      []Tag  `json:"tags"`
	CreatedAt int64  `json:"created_at"`
	Sig       string `json:"sig"`
}

// canonicalID computes the event's content-addressed id as the sha256
// of its canonical (field-order-fixed) JSON serialization, excluding
// id and sig themselves. Hashing here is plain content-addressing, not
// a signature: the actual signing key operation is delegated to the
// injected Signer.
func canonicalID(pubkey string, kind int, content string, tags []Tag, createdAt int64) (string, []byte, error) {
	if tags == nil {
		tags = []Tag{}
	}
	canon := []interface{}{0, pubkey, createdAt, kind, tags, content}
	raw, err := json.Marshal(canon)
	if err != nil {
		return "", nil, errors.Errorf("marshal canonical event: %v", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), sum[:], nil
}

// Signer is the external collaborator that owns elliptic-curve key
// material: it derives a pubkey from a SecretKey and produces a
// signature over an event's hash digest. The codec never touches raw
// EC scalars or curve points itself.
type Signer interface {
	Pubkey(sk SecretKey) (PublicKey, error)
	Sign(sk SecretKey, digest [32]byte) (sig string, err error)
	Verify(pubkey PublicKey, digest [32]byte, sig string) bool
}

// Cipher is the external collaborator that performs sender/recipient
// key-agreement encryption of an event's plaintext payload. Failures
// here are always surfaced as InvalidEvent by the codec, never
// swallowed.
type Cipher interface {
	Encrypt(plaintext []byte, senderSK SecretKey, recipientPub PublicKey) (ciphertext string, err error)
	Decrypt(ciphertext string, recipientSK SecretKey, senderPub PublicKey) (plaintext []byte, err error)
}

// Clock abstracts "now" so tests can pin timestamps; production wiring
// supplies a closure returning time.Now().Unix() (see cmd/relaynoded).
type Clock func() int64

func sign(signer Signer, sk SecretKey, pubkey string, kind int, content string, tags []Tag, createdAt int64) (*WireEvent, error) {
	id, digestBytes, err := canonicalID(pubkey, kind, content, tags, createdAt)
	if err != nil {
		return nil, err
	}
	var digest [32]byte
	copy(digest[:], digestBytes)

	sig, err := signer.Sign(sk, digest)
	if err != nil {
		return nil, errors.Errorf("sign event: %v", err)
	}

	if tags == nil {
		tags = []Tag{}
	}
	return &WireEvent{
		ID:        id,
		Pubkey:    pubkey,
		Kind:      kind,
		Content:   content,
		Tags:      tags,
		CreatedAt: createdAt,
		Sig:       sig,
	}, nil
}

// findTag returns the first value of the first tag whose name matches,
// e.g. findTag(ev.Tags, "p") to recover a recipient pubkey.
func findTag(tags []Tag, name string) (string, bool) {
	for _, t := range tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}
