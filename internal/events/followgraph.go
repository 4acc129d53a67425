package events

// FollowGraphKind is the contact-list event kind the Relay Monitor
// subscribes to alongside PeerInfoKind, following the
// same "p" tag convention RequestKind/ResponseKind tags use to address
// a single recipient: a follow-graph event carries one "p" tag per
// followed pubkey.
const FollowGraphKind = 3

// ParseFollowGraph extracts the followed pubkeys from a FollowGraphKind
// event's tags. Malformed individual tags are skipped rather than
// failing the whole event, since a follow-graph update degrading to a
// smaller candidate set is harmless and a single bad tag must not
// block picking up the other, well-formed ones.
func ParseFollowGraph(event *WireEvent) ([]PublicKey, error) {
	if event.Kind != FollowGraphKind {
		return nil, newInvalidEvent("event kind is not the follow-graph kind")
	}
	var out []PublicKey
	for _, tag := range event.Tags {
		if len(tag) < 2 || tag[0] != "p" {
			continue
		}
		pk, err := ParsePublicKey(tag[1])
		if err != nil {
			continue
		}
		out = append(out, pk)
	}
	return out, nil
}
