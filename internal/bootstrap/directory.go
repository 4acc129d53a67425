package bootstrap

import "context"

// DirectoryClient is the optional decentralised-directory collaborator:
// given this node's own identity it returns additional KnownPeers to fold
// into discovery.
type DirectoryClient interface {
	Lookup(ctx context.Context) ([]KnownPeer, error)
}
