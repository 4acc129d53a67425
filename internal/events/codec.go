package events

import (
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// Codec builds and parses the three wire
// events this core consumes or emits, delegating signing and
// encryption to the injected Signer/Cipher so it never touches raw
// key material itself.
type Codec struct {
	Signer Signer
	Cipher Cipher
	Now    Clock
}

// NewCodec constructs a Codec. now must be non-nil; no default clock is
// applied (production wiring passes a closure over time.Now().Unix()).
func NewCodec(signer Signer, cipher Cipher, now Clock) *Codec {
	return &Codec{Signer: signer, Cipher: cipher, Now: now}
}

// BuildPeerInfo serialises info as compact JSON content, signs it with
// secretKey, and returns the resulting PEER_INFO_KIND event.
func (c *Codec) BuildPeerInfo(info PeerInfo, secretKey SecretKey) (*WireEvent, error) {
	pubkey, err := c.Signer.Pubkey(secretKey)
	if err != nil {
		return nil, errors.Errorf("derive pubkey: %v", err)
	}

	content, err := json.Marshal(peerInfoWire{
		IlpAddress:            info.IlpAddress,
		BtpEndpoint:           info.BtpEndpoint,
		HttpEndpoint:          info.HttpEndpoint,
		SettlementDescriptors: info.SettlementDescriptors,
	})
	if err != nil {
		return nil, errors.Errorf("marshal peer info: %v", err)
	}

	return sign(c.Signer, secretKey, pubkey.String(), PeerInfoKind, string(content), nil, c.Now())
}

// ParsePeerInfo recovers a PeerInfo from a signed PEER_INFO_KIND event.
func (c *Codec) ParsePeerInfo(event *WireEvent) (*PeerInfo, error) {
	if event.Kind != PeerInfoKind {
		return nil, newInvalidEvent("event kind is not PEER_INFO_KIND")
	}

	var raw peerInfoWire
	if err := json.Unmarshal([]byte(event.Content), &raw); err != nil {
		return nil, wrapInvalidEvent("content is not a JSON object", err)
	}

	pubkey, err := ParsePublicKey(event.Pubkey)
	if err != nil {
		return nil, wrapInvalidEvent("event pubkey", err)
	}

	info := raw.toPeerInfo()
	info.Pubkey = pubkey
	info.fillDefaults()

	if err := info.validate(); err != nil {
		return nil, err
	}
	return &info, nil
}

// BuildRequest generates a fresh requestId, encrypts
// {requestId, timestamp, ...hints} to recipientPubkey, and returns both
// the signed REQUEST_KIND event and the requestId for correlation.
func (c *Codec) BuildRequest(recipientPubkey PublicKey, senderSecretKey SecretKey, hints SettlementDescriptors, senderIlpAddress string) (*WireEvent, string, error) {
	senderPubkey, err := c.Signer.Pubkey(senderSecretKey)
	if err != nil {
		return nil, "", errors.Errorf("derive pubkey: %v", err)
	}

	requestID := uuid.NewString()
	timestamp := c.Now()

	payload := SettlementRequest{
		RequestID:             requestID,
		Timestamp:             timestamp,
		SenderIlpAddress:      senderIlpAddress,
		SettlementDescriptors: hints,
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, "", errors.Errorf("marshal request payload: %v", err)
	}

	ciphertext, err := c.Cipher.Encrypt(plaintext, senderSecretKey, recipientPubkey)
	if err != nil {
		return nil, "", wrapInvalidEvent("encrypt request", err)
	}

	tags := []Tag{{"p", recipientPubkey.String()}}
	event, err := sign(c.Signer, senderSecretKey, senderPubkey.String(), RequestKind, ciphertext, tags, timestamp)
	if err != nil {
		return nil, "", err
	}
	return event, requestID, nil
}

// ParseRequest decrypts and validates a REQUEST_KIND event sent by
// senderPubkey to a node holding recipientSecretKey.
func (c *Codec) ParseRequest(event *WireEvent, recipientSecretKey SecretKey, senderPubkey PublicKey) (*SettlementRequest, error) {
	if event.Kind != RequestKind {
		return nil, newInvalidEvent("event kind is not REQUEST_KIND")
	}

	plaintext, err := c.Cipher.Decrypt(event.Content, recipientSecretKey, senderPubkey)
	if err != nil {
		return nil, wrapInvalidEvent("decrypt request", err)
	}

	var req SettlementRequest
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return nil, wrapInvalidEvent("decrypted content is not a JSON object", err)
	}

	if req.Timestamp == 0 {
		return nil, newInvalidEvent("timestamp is missing or not an integer")
	}
	req.fillDefaults()
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// BuildResponse encrypts payload to originalSenderPubkey and signs the
// resulting RESPONSE_KIND event, tagging it back to the original
// sender and (optionally) the originating request event.
func (c *Codec) BuildResponse(payload SettlementResponse, originalSenderPubkey PublicKey, responderSecretKey SecretKey, requestEventID string) (*WireEvent, error) {
	responderPubkey, err := c.Signer.Pubkey(responderSecretKey)
	if err != nil {
		return nil, errors.Errorf("derive pubkey: %v", err)
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Errorf("marshal response payload: %v", err)
	}

	ciphertext, err := c.Cipher.Encrypt(plaintext, responderSecretKey, originalSenderPubkey)
	if err != nil {
		return nil, wrapInvalidEvent("encrypt response", err)
	}

	tags := []Tag{{"p", originalSenderPubkey.String()}}
	if requestEventID != "" {
		tags = append(tags, Tag{"e", requestEventID})
	}

	return sign(c.Signer, responderSecretKey, responderPubkey.String(), ResponseKind, ciphertext, tags, c.Now())
}

// ParseResponse decrypts and validates a RESPONSE_KIND event addressed
// to senderPubkey (the original requester) by responderPubkey.
func (c *Codec) ParseResponse(event *WireEvent, senderSecretKey SecretKey, responderPubkey PublicKey) (*SettlementResponse, error) {
	if event.Kind != ResponseKind {
		return nil, newInvalidEvent("event kind is not RESPONSE_KIND")
	}

	plaintext, err := c.Cipher.Decrypt(event.Content, senderSecretKey, responderPubkey)
	if err != nil {
		return nil, wrapInvalidEvent("decrypt response", err)
	}

	var resp SettlementResponse
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return nil, wrapInvalidEvent("decrypted content is not a JSON object", err)
	}

	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// peerInfoWire is the on-the-wire JSON shape of a PeerInfo's content:
// identical to SettlementDescriptors plus the non-descriptor fields,
// flattened into one object.
type peerInfoWire struct {
	IlpAddress   string `json:"ilpAddress"`
	BtpEndpoint  string `json:"btpEndpoint"`
	HttpEndpoint string `json:"httpEndpoint,omitempty"`
	SettlementDescriptors
}

func (w peerInfoWire) toPeerInfo() PeerInfo {
	return PeerInfo{
		IlpAddress:            w.IlpAddress,
		BtpEndpoint:           w.BtpEndpoint,
		HttpEndpoint:          w.HttpEndpoint,
		SettlementDescriptors: w.SettlementDescriptors,
	}
}
