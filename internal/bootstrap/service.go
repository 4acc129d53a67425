package bootstrap

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-errors/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/eventstore"
	"github.com/agentpay/relaynode/internal/facade"
)

// ErrAlreadyRunning is returned by Run when a previous call is still in
// flight, implementing the idempotent re-bootstrap guard.
var ErrAlreadyRunning = errors.New("bootstrap already running")

// Config wires every collaborator the Bootstrap Service needs. Fields
// marked optional may be left zero: ChannelClient and DirectoryClient
// absent simply narrow what a handshake can do, exactly as an absent
// Negotiator narrows pkthandler.
type Config struct {
	LocalPeerInfo events.PeerInfo
	SecretKey     events.SecretKey
	SeedPeers     []KnownPeer

	Codec         *events.Codec
	Store         eventstore.Store
	RuntimeClient facade.RuntimeClient
	ConnAdmin     facade.ConnectorAdmin
	ChannelClient facade.ChannelService // optional
	Directory     DirectoryClient       // optional

	// HandshakeAmount is the packet amount attached to outbound
	// handshake requests; "0" lets the RuntimeClient's own quoting
	// cover the remote node's price, matching a payment-gated
	// transport rather than this core re-implementing pricing.
	HandshakeAmount string

	// Concurrency bounds the number of handshakes in flight at once.
	Concurrency int

	ChannelOpenTimeout time.Duration
	PollInterval       time.Duration
}

func (c *Config) setDefaults() {
	if c.HandshakeAmount == "" {
		c.HandshakeAmount = "0"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.ChannelOpenTimeout <= 0 {
		c.ChannelOpenTimeout = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
}

// Service runs the node's bootstrap algorithm: discover peers,
// handshake with every discovered peer, announce this node's own
// presence, then settle into the ready phase. Exactly one Run may be in
// flight at a time, guarded by an atomic CAS in lnd's usual
// started/shutdown idiom.
type Service struct {
	cfg Config

	running int32

	phase        int32 // Phase, accessed atomically
	peerCount    int32
	channelCount int32

	listenersMu sync.Mutex
	listeners   []Listener

	knownMu sync.RWMutex
	known   map[events.PublicKey]bool

	quit chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config) *Service {
	cfg.setDefaults()
	s := &Service{cfg: cfg, quit: make(chan struct{}), known: make(map[events.PublicKey]bool)}
	atomic.StoreInt32(&s.phase, int32(PhaseInit))
	return s
}

// IsKnown reports whether pubkey has already been registered by a
// prior handshake, the ignore-list check the Relay Monitor uses to
// skip peers it would otherwise redundantly re-handshake.
func (s *Service) IsKnown(pubkey events.PublicKey) bool {
	s.knownMu.RLock()
	defer s.knownMu.RUnlock()
	return s.known[pubkey]
}

func (s *Service) markKnown(pubkey events.PublicKey) {
	s.knownMu.Lock()
	s.known[pubkey] = true
	s.knownMu.Unlock()
}

// Handshake runs the same per-peer pipeline Run uses internally, for
// callers that discover a peer outside of a bootstrap Run — namely
// the Relay Monitor, reacting to a live peer-info advertisement.
func (s *Service) Handshake(ctx context.Context, peer KnownPeer) PeerResult {
	return s.handshakeOne(ctx, peer)
}

// Discovered emits the bootstrap:peer-discovered event for a peer
// found outside of a Run's own discover step — the Relay Monitor calls
// this before dispatching to Handshake, so a listener registered via
// On sees the same discovery/handshake event pair for a live peer that
// it would see for one discovered during the initial bootstrap run.
func (s *Service) Discovered(peer KnownPeer) {
	s.emit(Event{Kind: EventPeerDiscovered, Phase: s.Phase(), Peer: &peer})
}

// On registers a Listener invoked synchronously for every Event this
// run emits, in order. Must be called before Run.
func (s *Service) On(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Service) emit(ev Event) {
	s.listenersMu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.Unlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("bootstrap listener panicked: %v", r)
				}
			}()
			l(ev)
		}()
	}
}

func (s *Service) setPhase(p Phase) {
	atomic.StoreInt32(&s.phase, int32(p))
	s.emit(Event{Kind: EventPhaseChanged, Phase: p})
}

// Phase reports the run's current lifecycle position.
func (s *Service) Phase() Phase {
	return Phase(atomic.LoadInt32(&s.phase))
}

// PeerCount and ChannelCount report monotonically-increasing
// counters that never decrease within a run.
func (s *Service) PeerCount() int    { return int(atomic.LoadInt32(&s.peerCount)) }
func (s *Service) ChannelCount() int { return int(atomic.LoadInt32(&s.channelCount)) }

// Run executes the discovering -> handshaking -> announcing -> ready
// pipeline once, matching the numbered algorithm: discover peers, run
// handshakes (registering peers and opening channels as negotiated),
// then publish this node's own advertisement, then settle into ready.
// When discovery turns up no peers, the handshaking phase transition
// is skipped entirely (there is nothing to hand off to it) and the
// node announces itself as a genesis node before going ready.
// additionalPeersJSON is an optional JSON array of KnownPeer-shaped
// objects folded into the seed list, an operator-supplied peer
// override. Concurrent calls while a run is already in flight return
// ErrAlreadyRunning immediately.
func (s *Service) Run(ctx context.Context, additionalPeersJSON string) ([]PeerResult, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return nil, ErrAlreadyRunning
	}
	defer atomic.StoreInt32(&s.running, 0)

	s.setPhase(PhaseDiscovering)
	peers, err := s.discover(ctx, additionalPeersJSON)
	if err != nil {
		s.setPhase(PhaseFailed)
		return nil, err
	}

	var results []PeerResult
	if len(peers) > 0 {
		s.setPhase(PhaseHandshaking)
		results = s.handshakeAll(ctx, peers)
	}

	s.setPhase(PhaseAnnouncing)
	if err := s.announce(len(peers) == 0); err != nil {
		s.setPhase(PhaseFailed)
		return nil, err
	}

	s.setPhase(PhaseReady)
	s.emit(Event{
		Kind:         EventReady,
		Phase:        PhaseReady,
		PeerCount:    s.PeerCount(),
		ChannelCount: s.ChannelCount(),
	})
	return results, nil
}

// discover implements step 1: union the configured seed peers, the
// caller-supplied additional peers, and (when wired) the directory
// lookup's peers, first-seen-by-pubkey wins.
func (s *Service) discover(ctx context.Context, additionalPeersJSON string) ([]KnownPeer, error) {
	additional, err := parseAdditionalPeers(additionalPeersJSON)
	if err != nil {
		return nil, wrapInvalid("additional peers", err)
	}

	lists := [][]KnownPeer{s.cfg.SeedPeers, additional}

	if s.cfg.Directory != nil {
		dirPeers, err := s.cfg.Directory.Lookup(ctx)
		if err != nil {
			log.Warnf("directory lookup failed, continuing with seed peers only: %v", err)
		} else {
			lists = append(lists, dirPeers)
		}
	}

	peers := dedupePeers(lists...)
	for _, p := range peers {
		s.emit(Event{Kind: EventPeerDiscovered, Phase: PhaseDiscovering, Peer: &p})
	}
	return peers, nil
}

// announce implements step 3: publish this node's own PeerInfo into
// the local event store. The same single event is stored either way;
// isGenesis only adds an info log line naming the node as genesis.
func (s *Service) announce(isGenesis bool) error {
	event, err := s.cfg.Codec.BuildPeerInfo(s.cfg.LocalPeerInfo, s.cfg.SecretKey)
	if err != nil {
		s.emit(Event{Kind: EventAnnounceFailed, Phase: PhaseAnnouncing, Reason: err.Error()})
		return errors.Errorf("build self peer-info event: %v", err)
	}
	if err := s.cfg.Store.Store(event); err != nil {
		s.emit(Event{Kind: EventAnnounceFailed, Phase: PhaseAnnouncing, Reason: err.Error()})
		return errors.Errorf("store self peer-info event: %v", err)
	}
	s.emit(Event{Kind: EventAnnounced, Phase: PhaseAnnouncing})
	if isGenesis {
		log.Infof("no peers discovered; announced as genesis node (event %s)", event.ID)
	}
	return nil
}

// handshakeAll runs handshakeOne over every discovered peer with
// bounded concurrency. A single peer's failure never aborts the run:
// results carry a per-peer outcome instead.
func (s *Service) handshakeAll(ctx context.Context, peers []KnownPeer) []PeerResult {
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	group, gctx := errgroup.WithContext(ctx)

	results := make([]PeerResult, len(peers))
	for i, peer := range peers {
		i, peer := i, peer
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = PeerResult{Peer: peer, Outcome: OutcomeFailed, Reason: err.Error()}
			continue
		}
		group.Go(func() error {
			defer sem.Release(1)
			results[i] = s.handshakeOne(gctx, peer)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

// handshakeOne implements step 2's per-peer pipeline: send an
// encrypted settlement request, parse the reply, await a channel open
// when one was negotiated, then idempotently register the peer with
// the local connector.
func (s *Service) handshakeOne(ctx context.Context, peer KnownPeer) PeerResult {
	event, _, err := s.cfg.Codec.BuildRequest(peer.Pubkey, s.cfg.SecretKey, s.cfg.LocalPeerInfo.SettlementDescriptors, s.cfg.LocalPeerInfo.IlpAddress)
	if err != nil {
		return s.fail(peer, "build request: "+err.Error())
	}

	data, err := events.EncodeWire(event)
	if err != nil {
		return s.fail(peer, "encode request: "+err.Error())
	}

	destination := peer.PacketAddress
	if destination == "" {
		destination = peer.PacketURL
	}
	sendResult, err := s.cfg.RuntimeClient.SendPacket(ctx, facade.SendPacketRequest{
		Destination: destination,
		Amount:      s.cfg.HandshakeAmount,
		Data:        data,
	})
	if err != nil {
		return s.fail(peer, "send packet: "+err.Error())
	}
	if !sendResult.Accepted {
		return s.fail(peer, "peer rejected handshake request: "+sendResult.Message)
	}

	respEvent, err := events.DecodeWire(sendResult.Data)
	if err != nil {
		return s.fail(peer, "decode response event: "+err.Error())
	}
	resp, err := s.cfg.Codec.ParseResponse(respEvent, s.cfg.SecretKey, peer.Pubkey)
	if err != nil {
		return s.fail(peer, "parse response: "+err.Error())
	}

	channelID := resp.ChannelID
	if channelID != "" && s.cfg.ChannelClient != nil {
		state, err := s.awaitChannelOpen(ctx, channelID)
		if err != nil {
			return s.fail(peer, "await channel open: "+err.Error())
		}
		channelID = state.ChannelID
		atomic.AddInt32(&s.channelCount, 1)
		s.emit(Event{Kind: EventChannelOpened, Phase: PhaseHandshaking, Peer: &peer, ChannelID: channelID})
	}

	if err := s.registerPeer(ctx, peer, resp); err != nil {
		return s.fail(peer, "register peer: "+err.Error())
	}

	atomic.AddInt32(&s.peerCount, 1)
	s.markKnown(peer.Pubkey)
	s.emit(Event{Kind: EventPeerRegistered, Phase: PhaseHandshaking, Peer: &peer})

	outcome := OutcomeRegistered
	if channelID != "" {
		outcome = OutcomeChannelOpened
	}
	return PeerResult{Peer: peer, Outcome: outcome}
}

func (s *Service) fail(peer KnownPeer, reason string) PeerResult {
	log.Warnf("handshake with %s failed: %s", peer.Pubkey, reason)
	s.emit(Event{Kind: EventHandshakeFailed, Phase: PhaseHandshaking, Peer: &peer, Reason: reason})
	return PeerResult{Peer: peer, Outcome: OutcomeFailed, Reason: reason}
}

func (s *Service) registerPeer(ctx context.Context, peer KnownPeer, resp *events.SettlementResponse) error {
	req := facade.AddPeerRequest{
		ID:  peer.Pubkey.String(),
		URL: peer.PacketAddress,
		Routes: []facade.Route{
			{Prefix: peer.PacketAddress},
		},
	}
	if resp.ChannelID != "" {
		req.Settlement = &facade.SettlementInfo{
			Chain:             string(resp.NegotiatedChain),
			SettlementAddress: resp.SettlementAddress,
			TokenAddress:      resp.TokenAddress,
			ChannelID:         resp.ChannelID,
		}
	}
	return s.cfg.ConnAdmin.AddPeer(ctx, req)
}

// awaitChannelOpen polls the channel service until open, a terminal
// failure, or Config.ChannelOpenTimeout elapses; the same shape as
// negotiator's poll loop, duplicated rather than shared because this
// package has no LocalConfig to drive it with.
func (s *Service) awaitChannelOpen(ctx context.Context, channelID string) (facade.ChannelState, error) {
	deadline := time.Now().Add(s.cfg.ChannelOpenTimeout)
	for {
		state, err := s.cfg.ChannelClient.GetChannelState(ctx, channelID)
		if err != nil {
			return facade.ChannelState{}, err
		}
		switch state.Status {
		case facade.ChannelOpen:
			return state, nil
		case facade.ChannelClosed, facade.ChannelFailed:
			return facade.ChannelState{}, errors.Errorf("channel %s reached terminal status %s", channelID, state.Status)
		}
		if time.Now().After(deadline) {
			return facade.ChannelState{}, errors.Errorf("channel %s did not open before timeout", channelID)
		}
		select {
		case <-ctx.Done():
			return facade.ChannelState{}, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// DeregisterPeer removes a previously registered peer from the local
// connector and emits the corresponding observability event. A
// SPEC_FULL supplemented convenience over the base algorithm, for
// operator-driven peer removal outside a bootstrap run.
func (s *Service) DeregisterPeer(ctx context.Context, pubkey events.PublicKey) error {
	if err := s.cfg.ConnAdmin.RemovePeer(ctx, pubkey.String()); err != nil {
		return err
	}
	s.emit(Event{Kind: EventPeerDeregistered, Phase: s.Phase(), Peer: &KnownPeer{Pubkey: pubkey}})
	return nil
}

// Stop closes the service's quit channel and waits, bounded by ctx, on
// its WaitGroup. Run and Handshake execute on the caller's goroutine
// and register with neither; the goroutines relaymonitor spawns to call
// Handshake are tracked by relaymonitor.Monitor.Wait instead.
func (s *Service) Stop(ctx context.Context) error {
	close(s.quit)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseAdditionalPeers(raw string) ([]KnownPeer, error) {
	if raw == "" {
		return nil, nil
	}
	var peers []KnownPeer
	if err := json.Unmarshal([]byte(raw), &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func wrapInvalid(what string, err error) error {
	return errors.Errorf("%s: %v", what, err)
}
