// Package config parses the environment/flag surface this node needs
// at process start, the same responsibility lnd.go's
// loadConfig holds for the full lnd node, but scoped to this core's much
// smaller knob set.
package config

import (
	"encoding/hex"
	"math/big"
	"regexp"
	"strconv"

	"github.com/go-errors/errors"
	flags "github.com/jessevdk/go-flags"
	jsoniter "github.com/json-iterator/go"

	"github.com/agentpay/relaynode/internal/events"
	"github.com/agentpay/relaynode/internal/priceoracle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ilpAddressPattern = regexp.MustCompile(`^g\.[A-Za-z0-9.\-]+$`)
	secretKeyPattern  = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Raw is the flag/env-parseable shape; every configuration knob this
// node accepts, kept as strings/JSON blobs so a malformed value fails
// loudly during Load rather than silently during use.
type Raw struct {
	NodeID string `long:"nodeid" env:"NODE_ID" description:"stable identifier for this node, used only in logs and /health" required:"true"`

	SecretKeyHex string `long:"secretkey" env:"SECRET_KEY" description:"64-hex-character node secret key" required:"true"`

	IlpAddress string `long:"ilpaddress" env:"ILP_ADDRESS" description:"this node's ILP routing address, g.<alnum/./-  >" required:"true"`

	PacketAddress string `long:"packetaddress" env:"PACKET_ADDRESS" description:"this node's packet-layer address advertised to peers"`

	PacketTransportEndpoint string `long:"packettransport" env:"PACKET_TRANSPORT_ENDPOINT" description:"outbound packet transport endpoint used to reach peers"`

	HTTPPort int `long:"httpport" env:"HTTP_PORT" default:"3100" description:"port the /handle-packet and /health HTTP surface listens on"`

	RelayWsPort int `long:"relaywsport" env:"RELAY_WS_PORT" description:"port the local relay serves its websocket subscription surface on"`

	BasePricePerByte int64 `long:"baseprice" env:"BASE_PRICE_PER_BYTE" default:"10" description:"minimum charge per content byte of an inbound event"`

	SpspMinPrice *int64 `long:"spspminprice" env:"SPSP_MIN_PRICE" description:"floor price applied to request-kind events only; absent means no floor"`

	KindOverridesJSON string `long:"kindoverrides" env:"KIND_PRICE_OVERRIDES" description:"JSON object mapping event kind (string int) to a flat price override"`

	OwnerPubkeyHex string `long:"ownerpubkey" env:"OWNER_PUBKEY" description:"64-hex pubkey exempted from the price floor on self-authored writes"`

	SettlementDescriptorsJSON string `long:"settlement" env:"SETTLEMENT_DESCRIPTORS" description:"JSON settlement descriptor set this node advertises (assetCode, assetScale, supportedChains, settlementAddresses, ...)"`

	AdditionalPeersJSON string `long:"additionalpeers" env:"ADDITIONAL_SEED_PEERS" description:"JSON array of extra KnownPeer objects folded into bootstrap discovery"`

	SeedPeersJSON string `long:"seedpeers" env:"SEED_PEERS" description:"JSON array of static seed KnownPeer objects"`

	DataDir string `long:"datadir" env:"DATA_DIR" default:"/data" description:"directory used for any local persistence this node keeps"`

	LogLevel string `long:"loglevel" env:"RELAY_LOG_LEVEL" default:"info" description:"log level applied to every subsystem logger"`

	ConnectorAdminURL string `long:"connectoradmin" env:"CONNECTOR_ADMIN_URL" description:"base URL of the external Connector Admin facade"`
	ChannelServiceURL string `long:"channelservice" env:"CHANNEL_SERVICE_URL" description:"base URL of the external Channel Service facade"`
	RuntimeClientURL  string `long:"runtimeclient" env:"RUNTIME_CLIENT_URL" description:"base URL of the external Runtime Client facade"`
}

// Config is the validated, typed result of Load: every string the
// operator could get wrong has already been decoded and checked.
type Config struct {
	NodeID        string
	SecretKey     events.SecretKey
	IlpAddress    string
	PacketAddress string

	PacketTransportEndpoint string
	HTTPPort                int
	RelayWsPort             int

	Pricing priceoracle.Policy

	OwnerPubkey *events.PublicKey

	SettlementDescriptors events.SettlementDescriptors

	AdditionalPeersJSON string
	SeedPeersJSON       string
	DataDir             string
	LogLevel            string

	ConnectorAdminURL string
	ChannelServiceURL string
	RuntimeClientURL  string
}

// Load parses argv plus the process environment into a Raw config,
// then validates and decodes it into a Config. Every error here is
// meant to be fatal at startup: Load itself only returns the error;
// cmd/relaynoded decides how to die.
func Load(args []string) (*Config, error) {
	var raw Raw
	parser := flags.NewParser(&raw, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, err
		}
		return nil, errors.Errorf("parse flags: %v", err)
	}
	return validate(&raw)
}

func validate(raw *Raw) (*Config, error) {
	if !ilpAddressPattern.MatchString(raw.IlpAddress) {
		return nil, errors.Errorf("ILP_ADDRESS %q must match g.<alphanumerics/dots/hyphens>", raw.IlpAddress)
	}
	if !secretKeyPattern.MatchString(raw.SecretKeyHex) {
		return nil, errors.Errorf("SECRET_KEY must be 64 lowercase hex characters")
	}

	var sk events.SecretKey
	decoded, err := hex.DecodeString(raw.SecretKeyHex)
	if err != nil {
		return nil, errors.Errorf("decode SECRET_KEY: %v", err)
	}
	copy(sk[:], decoded)

	cfg := &Config{
		NodeID:                  raw.NodeID,
		SecretKey:               sk,
		IlpAddress:              raw.IlpAddress,
		PacketAddress:           raw.PacketAddress,
		PacketTransportEndpoint: raw.PacketTransportEndpoint,
		HTTPPort:                raw.HTTPPort,
		RelayWsPort:             raw.RelayWsPort,
		AdditionalPeersJSON:     raw.AdditionalPeersJSON,
		SeedPeersJSON:           raw.SeedPeersJSON,
		DataDir:                 raw.DataDir,
		LogLevel:                raw.LogLevel,
		ConnectorAdminURL:       raw.ConnectorAdminURL,
		ChannelServiceURL:       raw.ChannelServiceURL,
		RuntimeClientURL:        raw.RuntimeClientURL,
	}

	if raw.OwnerPubkeyHex != "" {
		pk, err := events.ParsePublicKey(raw.OwnerPubkeyHex)
		if err != nil {
			return nil, errors.Errorf("OWNER_PUBKEY: %v", err)
		}
		cfg.OwnerPubkey = &pk
	}

	pricing, err := parsePricing(raw)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = pricing

	descriptors, err := parseSettlementDescriptors(raw.SettlementDescriptorsJSON)
	if err != nil {
		return nil, err
	}
	cfg.SettlementDescriptors = descriptors

	log.Infof("loaded config for node %s (ilpAddress=%s, httpPort=%d)", cfg.NodeID, cfg.IlpAddress, cfg.HTTPPort)
	return cfg, nil
}

func parsePricing(raw *Raw) (priceoracle.Policy, error) {
	policy := priceoracle.Policy{
		BasePricePerByte: big.NewInt(raw.BasePricePerByte),
	}
	if raw.SpspMinPrice != nil {
		policy.RequestFloor = big.NewInt(*raw.SpspMinPrice)
	}
	if raw.KindOverridesJSON != "" {
		var overrides map[string]int64
		if err := json.Unmarshal([]byte(raw.KindOverridesJSON), &overrides); err != nil {
			return policy, errors.Errorf("KIND_PRICE_OVERRIDES: %v", err)
		}
		policy.KindOverrides = make(map[int]*big.Int, len(overrides))
		for kindStr, price := range overrides {
			kind, err := parseKind(kindStr)
			if err != nil {
				return policy, errors.Errorf("KIND_PRICE_OVERRIDES: %v", err)
			}
			policy.KindOverrides[kind] = big.NewInt(price)
		}
	}
	return policy, nil
}

func parseKind(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("kind %q is not an integer: %v", s, err)
	}
	return n, nil
}

func parseSettlementDescriptors(raw string) (events.SettlementDescriptors, error) {
	var d events.SettlementDescriptors
	if raw == "" {
		return d, nil
	}
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, errors.Errorf("SETTLEMENT_DESCRIPTORS: %v", err)
	}
	return d, nil
}
