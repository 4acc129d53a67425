// Package relaymonitor maintains a standing subscription against the
// local relay's websocket surface that
// expands the peer set as new peer-info advertisements and
// follow-graph updates arrive, driving the same handshake pipeline
// the Bootstrap Service uses for its initial run. Wired with
// gorilla/websocket, the transport other relay-shaped repos in the
// ecosystem (and lnd's own lnrpc streaming clients) reach for over a raw
// net.Conn.
package relaymonitor

import (
	"context"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/agentpay/relaynode/internal/bootstrap"
	"github.com/agentpay/relaynode/internal/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// subscriptionID is fixed: this monitor only ever holds one standing
// subscription per connection.
const subscriptionID = "relaymonitor"

// Config wires the monitor to the relay it watches and the Bootstrap
// Service whose handshake pipeline it drives.
type Config struct {
	RelayWsURL string
	Bootstrap  *bootstrap.Service
	Codec      *events.Codec

	DialTimeout time.Duration

	// MaxFollowFanout caps how many never-seen pubkeys a single
	// follow-graph event may add to the candidate set, so a large
	// contact list can't cause an unbounded fanout of handshakes.
	MaxFollowFanout int
}

func (c *Config) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxFollowFanout <= 0 {
		c.MaxFollowFanout = 50
	}
}

// Handle is returned by Start; Unsubscribe cancels the subscription
// context (which in-flight handshakes also run under), so no new
// handshake is started, and waits for the read loop to exit. It does
// not wait for in-flight handshakes; Monitor.Wait does.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *Handle) Unsubscribe() {
	h.cancel()
	<-h.done
}

// Monitor holds the candidate set a follow-graph expansion has primed
// but not yet handshaked, plus the WaitGroup tracking its goroutines.
// The live connection is owned by the goroutine Start spawns.
type Monitor struct {
	cfg Config

	candidatesMu sync.Mutex
	candidates   map[events.PublicKey]bool

	wg sync.WaitGroup
}

func New(cfg Config) *Monitor {
	cfg.setDefaults()
	return &Monitor{cfg: cfg, candidates: make(map[events.PublicKey]bool)}
}

// Start dials the relay, issues a REQ subscription for PeerInfoKind
// and FollowGraphKind events, and processes them until Unsubscribe is
// called or the connection is lost.
func (m *Monitor) Start(ctx context.Context) (*Handle, error) {
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}

	if err := conn.WriteJSON(reqMessage(subscriptionID)); err != nil {
		conn.Close()
		return nil, errors.Errorf("send subscription request: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		defer conn.Close()
		m.readLoop(runCtx, conn)
	}()

	return &Handle{cancel: cancel, done: done}, nil
}

func (m *Monitor) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, m.cfg.RelayWsURL, nil)
	if err != nil {
		return nil, errors.Errorf("dial relay %s: %v", m.cfg.RelayWsURL, err)
	}
	return conn, nil
}

// readLoop reads frames of the minimal NOSTR-shaped envelope this
// monitor understands, ["EVENT", subID, event] or ["EOSE", subID],
// and dispatches each event frame to handleEvent.
func (m *Monitor) readLoop(ctx context.Context, conn *websocket.Conn) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnf("relay subscription read error: %v", err)
			return
		}

		event, ok := parseEventMessage(raw)
		if !ok {
			continue
		}

		if ctx.Err() != nil {
			// Cancellation propagated: finish processing nothing new.
			return
		}
		m.handleEvent(ctx, event)
	}
}

func reqMessage(subID string) []interface{} {
	return []interface{}{
		"REQ",
		subID,
		map[string]interface{}{
			"kinds": []int{events.PeerInfoKind, events.FollowGraphKind},
		},
	}
}

// parseEventMessage extracts the WireEvent payload from a ["EVENT",
// subID, event] frame, ignoring every other frame shape (EOSE, NOTICE,
// OK) this monitor has no use for.
func parseEventMessage(raw []byte) (*events.WireEvent, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(raw, &frame); err != nil || len(frame) < 3 {
		return nil, false
	}
	var kind string
	if err := json.Unmarshal(frame[0], &kind); err != nil || kind != "EVENT" {
		return nil, false
	}
	var event events.WireEvent
	if err := json.Unmarshal(frame[2], &event); err != nil {
		return nil, false
	}
	return &event, true
}

func (m *Monitor) handleEvent(ctx context.Context, event *events.WireEvent) {
	switch event.Kind {
	case events.PeerInfoKind:
		m.handlePeerInfo(ctx, event)
	case events.FollowGraphKind:
		m.handleFollowGraph(event)
	}
}

func (m *Monitor) handlePeerInfo(ctx context.Context, event *events.WireEvent) {
	pubkey, err := events.ParsePublicKey(event.Pubkey)
	if err != nil {
		return
	}
	if m.cfg.Bootstrap.IsKnown(pubkey) {
		return
	}

	info, err := m.cfg.Codec.ParsePeerInfo(event)
	if err != nil {
		log.Debugf("ignoring malformed peer-info event %s: %v", event.ID, err)
		return
	}

	peer := bootstrap.KnownPeer{Pubkey: pubkey, PacketAddress: info.IlpAddress, RelayWsURL: info.BtpEndpoint}

	m.candidatesMu.Lock()
	delete(m.candidates, pubkey)
	m.candidatesMu.Unlock()

	m.cfg.Bootstrap.Discovered(peer)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cfg.Bootstrap.Handshake(ctx, peer)
	}()
}

// handleFollowGraph expands the candidate set, capping how many
// never-seen pubkeys a single event may add.
func (m *Monitor) handleFollowGraph(event *events.WireEvent) {
	followed, err := events.ParseFollowGraph(event)
	if err != nil {
		return
	}

	m.candidatesMu.Lock()
	defer m.candidatesMu.Unlock()

	added := 0
	for _, pk := range followed {
		if added >= m.cfg.MaxFollowFanout {
			log.Debugf("follow-graph event %s truncated at %d new candidates", event.ID, m.cfg.MaxFollowFanout)
			break
		}
		if m.candidates[pk] || m.cfg.Bootstrap.IsKnown(pk) {
			continue
		}
		m.candidates[pk] = true
		added++
	}
}

// Wait blocks until every goroutine this monitor has spawned —
// including in-flight handshakes — has returned. Intended to be
// called after Handle.Unsubscribe during a graceful shutdown.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
