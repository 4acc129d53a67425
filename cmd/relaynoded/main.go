// Command relaynoded is the process entrypoint: load configuration,
// wire the Event Codec, Price Oracle, Packet Handler, Bootstrap
// Service and Relay Monitor together, and serve the HTTP surface until
// interrupted. Mirrors the shape of lnd's own main, scaled
// down to this core's much smaller dependency graph.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	jsoniter "github.com/json-iterator/go"

	"github.com/agentpay/relaynode/internal/bootstrap"
	"github.com/agentpay/relaynode/internal/buildlog"
	"github.com/agentpay/relaynode/internal/config"
	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/eventstore"
	"github.com/agentpay/relaynode/internal/facade"
	"github.com/agentpay/relaynode/internal/facade/httpfacade"
	"github.com/agentpay/relaynode/internal/httpapi"
	"github.com/agentpay/relaynode/internal/negotiator"
	"github.com/agentpay/relaynode/internal/nostrcrypto"
	"github.com/agentpay/relaynode/internal/pkthandler"
	"github.com/agentpay/relaynode/internal/priceoracle"
	"github.com/agentpay/relaynode/internal/relaymonitor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var log = buildlog.NewSubLogger("MAIN", btclog.LevelInfo)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relaynoded:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLogLevels(buildlog.ParseLevel(cfg.LogLevel))

	signer := nostrcrypto.Signer{}
	cipher := nostrcrypto.Cipher{}
	codec := events.NewCodec(signer, cipher, func() int64 { return time.Now().Unix() })

	selfPubkey, err := signer.Pubkey(cfg.SecretKey)
	if err != nil {
		return fmt.Errorf("derive node pubkey: %w", err)
	}

	oracle := priceoracle.New(cfg.Pricing)
	store := eventstore.NewMemStore()

	localPeerInfo := events.PeerInfo{
		Pubkey:                selfPubkey,
		IlpAddress:            cfg.IlpAddress,
		BtpEndpoint:           fmt.Sprintf("wss://%s:%d", cfg.NodeID, cfg.RelayWsPort),
		SettlementDescriptors: cfg.SettlementDescriptors,
	}

	var connAdmin facade.ConnectorAdmin
	var channelService facade.ChannelService
	var runtimeClient facade.RuntimeClient
	if cfg.ConnectorAdminURL != "" {
		connAdmin = httpfacade.NewConnectorAdmin(cfg.ConnectorAdminURL)
	}
	if cfg.ChannelServiceURL != "" {
		channelService = httpfacade.NewChannelService(cfg.ChannelServiceURL)
	}
	if cfg.RuntimeClientURL != "" {
		runtimeClient = httpfacade.NewRuntimeClient(cfg.RuntimeClientURL)
	}

	var owner events.PublicKey
	if cfg.OwnerPubkey != nil {
		owner = *cfg.OwnerPubkey
	} else {
		owner = selfPubkey
	}

	var neg *negotiator.Negotiator
	if channelService != nil {
		neg = negotiator.New(channelService)
	}

	handler := pkthandler.New(pkthandler.Config{
		OwnerPubkey:    owner,
		NodeIlpAddress: cfg.IlpAddress,
		SecretKey:      cfg.SecretKey,
		Oracle:         oracle,
		Codec:          codec,
		Store:          store,
		Negotiator:     neg,
		ChannelClient:  channelService,
		ConnAdmin:      connAdmin,
		LocalSettlement: negotiator.LocalConfig{
			OwnSupportedChains: cfg.SettlementDescriptors.SupportedChains,
			OwnSettlementAddrs: cfg.SettlementDescriptors.SettlementAddrs,
			OwnPreferredTokens: cfg.SettlementDescriptors.PreferredTokens,
			OwnTokenNetworks:   cfg.SettlementDescriptors.TokenNetworks,
			SettlementTimeout:  int64((30 * 24 * time.Hour).Seconds()),
			ChannelOpenTimeout: time.Minute,
			PollInterval:       2 * time.Second,
		},
	})

	seedPeers, err := parseKnownPeers(cfg.SeedPeersJSON)
	if err != nil {
		return fmt.Errorf("parse SEED_PEERS: %w", err)
	}

	var bootSvc *bootstrap.Service
	if runtimeClient != nil && connAdmin != nil {
		bootSvc = bootstrap.New(bootstrap.Config{
			LocalPeerInfo:      localPeerInfo,
			SecretKey:          cfg.SecretKey,
			SeedPeers:          seedPeers,
			Codec:              codec,
			Store:              store,
			RuntimeClient:      runtimeClient,
			ConnAdmin:          connAdmin,
			ChannelClient:      channelService,
			ChannelOpenTimeout: time.Minute,
			PollInterval:       2 * time.Second,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var monitorHandle *relaymonitor.Handle
	if bootSvc != nil {
		if _, err := bootSvc.Run(ctx, cfg.AdditionalPeersJSON); err != nil {
			log.Errorf("initial bootstrap run failed: %v", err)
		}

		if cfg.RelayWsPort != 0 {
			monitor := relaymonitor.New(relaymonitor.Config{
				RelayWsURL: fmt.Sprintf("ws://127.0.0.1:%d", cfg.RelayWsPort),
				Bootstrap:  bootSvc,
				Codec:      codec,
			})
			handle, err := monitor.Start(ctx)
			if err != nil {
				log.Warnf("relay monitor failed to start: %v", err)
			} else {
				monitorHandle = handle
			}
		}
	}

	router := httpapi.NewRouter(httpapi.Config{
		NodeID:     cfg.NodeID,
		Pubkey:     selfPubkey,
		IlpAddress: cfg.IlpAddress,
		Handler:    handler,
		Bootstrap:  bootstrapStatus(bootSvc),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("serving HTTP on :%d", cfg.HTTPPort)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if monitorHandle != nil {
		monitorHandle.Unsubscribe()
	}
	return server.Shutdown(shutdownCtx)
}

// bootstrapStatus adapts a possibly-nil *bootstrap.Service into the
// httpapi.BootstrapStatus interface, since a node with no facades
// wired runs without bootstrap at all.
func bootstrapStatus(svc *bootstrap.Service) httpapi.BootstrapStatus {
	if svc == nil {
		return nil
	}
	return svc
}

func parseKnownPeers(raw string) ([]bootstrap.KnownPeer, error) {
	if raw == "" {
		return nil, nil
	}
	var peers []bootstrap.KnownPeer
	if err := json.Unmarshal([]byte(raw), &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// setLogLevels raises every subsystem's own default logger to the
// configured level, the same "one backend, many subsystem loggers"
// wiring buildlog documents.
func setLogLevels(level btclog.Level) {
	bootstrap.UseLogger(buildlog.NewSubLogger(bootstrap.Subsystem, level))
	config.UseLogger(buildlog.NewSubLogger(config.Subsystem, level))
	events.UseLogger(buildlog.NewSubLogger(events.Subsystem, level))
	httpapi.UseLogger(buildlog.NewSubLogger(httpapi.Subsystem, level))
	negotiator.UseLogger(buildlog.NewSubLogger(negotiator.Subsystem, level))
	pkthandler.UseLogger(buildlog.NewSubLogger(pkthandler.Subsystem, level))
	relaymonitor.UseLogger(buildlog.NewSubLogger(relaymonitor.Subsystem, level))
	log = buildlog.NewSubLogger("MAIN", level)
}
