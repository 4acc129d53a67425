package bootstrap

import (
	"sort"

	"github.com/agentpay/relaynode/internal/events"
)

// KnownPeer is a seed entry: the minimal information needed to drive a
// handshake with a counterpart node.
type KnownPeer struct {
	Pubkey        events.PublicKey
	RelayWsURL    string
	PacketAddress string // optional
	PacketURL     string // optional direct HTTP BLS endpoint
}

// Phase is the bootstrap run's totally-ordered lifecycle label.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDiscovering
	PhaseHandshaking
	PhaseAnnouncing
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseDiscovering:
		return "discovering"
	case PhaseHandshaking:
		return "handshaking"
	case PhaseAnnouncing:
		return "announcing"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind enumerates the observability record kinds this service emits.
type EventKind string

const (
	EventPhaseChanged      EventKind = "bootstrap:phase-changed"
	EventPeerDiscovered    EventKind = "bootstrap:peer-discovered"
	EventPeerRegistered    EventKind = "bootstrap:peer-registered"
	EventChannelOpened     EventKind = "bootstrap:channel-opened"
	EventHandshakeFailed   EventKind = "bootstrap:handshake-failed"
	EventAnnounced         EventKind = "bootstrap:announced"
	EventAnnounceFailed    EventKind = "bootstrap:announce-failed"
	EventPeerDeregistered  EventKind = "bootstrap:peer-deregistered"
	EventReady             EventKind = "bootstrap:ready"
)

// Event is the fan-out-only observability record emitted for every
// phase transition or per-peer outcome. Never read back by this
// package itself.
type Event struct {
	Kind  EventKind
	Phase Phase
	Peer  *KnownPeer
	// Reason carries the failure detail for EventHandshakeFailed /
	// EventAnnounceFailed.
	Reason string
	// ChannelID is set on EventChannelOpened.
	ChannelID string
	// PeerCount/ChannelCount are set on EventReady.
	PeerCount   int
	ChannelCount int
}

// Listener receives Events synchronously, in order of occurrence. A
// listener MUST NOT block; a panicking listener is
// logged and does not interrupt the run.
type Listener func(Event)

// Outcome tags a single handshake attempt's result in the array Run
// returns.
type Outcome string

const (
	OutcomeRegistered Outcome = "registered"
	OutcomeChannelOpened Outcome = "channel-opened"
	OutcomeFailed     Outcome = "failed"
)

// PeerResult is one entry of the array Run returns: the KnownPeer that
// was attempted plus an outcome tag.
type PeerResult struct {
	Peer    KnownPeer
	Outcome Outcome
	Reason  string
}

// dedupePeers collapses a peer list by pubkey, first-seen entry wins,
// implementing the discovery union's dedup semantics.
func dedupePeers(lists ...[]KnownPeer) []KnownPeer {
	seen := make(map[events.PublicKey]bool)
	var out []KnownPeer
	for _, list := range lists {
		for _, p := range list {
			if seen[p.Pubkey] {
				continue
			}
			seen[p.Pubkey] = true
			out = append(out, p)
		}
	}
	return out
}

// sortedPubkeys is a test/debug helper for deterministic iteration.
func sortedPubkeys(peers []KnownPeer) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Pubkey.String())
	}
	sort.Strings(out)
	return out
}
