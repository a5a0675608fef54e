// Package config loads campaign.yaml and applies .env and environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/units"
)

type Config struct {
	Campaign CampaignConfig `yaml:"campaign"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Mirror   MirrorConfig   `yaml:"mirror"`
}

type CampaignConfig struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Symbol         string `yaml:"symbol"`
	MaxSupply      uint64 `yaml:"max_supply"`
	MintPriceWei   string `yaml:"mint_price_wei"`
	MintPriceEth   string `yaml:"mint_price_eth"`
	MaxPerWallet   uint64 `yaml:"max_per_wallet"`
	HiddenURI      string `yaml:"hidden_uri"`
	MetadataSuffix string `yaml:"metadata_suffix"`
	MerkleRoot     string `yaml:"merkle_root"`
	Owner          string `yaml:"owner"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	DataDir        string        `yaml:"data_dir"`
	SnapshotEvery  uint64        `yaml:"snapshot_every"`
	QueueSize      int           `yaml:"queue_size"`
	FeedBuffer     int           `yaml:"feed_buffer"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DisableIndex   bool          `yaml:"disable_index"`
	AdminLoopback  bool          `yaml:"admin_loopback_only"`
}

type AuthConfig struct {
	RequireSignature bool          `yaml:"require_signature"`
	MaxClockSkew     time.Duration `yaml:"max_clock_skew"`
}

// MirrorConfig enables off-site copies of snapshots and closed journal
// segments to an S3-compatible bucket. Keys come only from the environment.
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`

	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Defaults() Config {
	return Config{
		Campaign: CampaignConfig{
			ID:             "default",
			MaxSupply:      10000,
			MaxPerWallet:   3,
			MetadataSuffix: campaign.DefaultMetadataSuffix,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			DataDir:        "./data",
			SnapshotEvery:  500,
			QueueSize:      4096,
			FeedBuffer:     4096,
			RequestTimeout: 5 * time.Second,
			AdminLoopback:  true,
		},
		Auth: AuthConfig{
			RequireSignature: true,
			MaxClockSkew:     5 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over Defaults. An empty path yields the defaults.
// The result is normalized but not validated; call Validate once overrides
// are applied.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("campaign.yaml: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

func (c *Config) Normalize() {
	c.Campaign.ID = strings.TrimSpace(c.Campaign.ID)
	c.Campaign.Name = strings.TrimSpace(c.Campaign.Name)
	c.Campaign.Symbol = strings.TrimSpace(c.Campaign.Symbol)
	c.Campaign.MintPriceWei = strings.TrimSpace(c.Campaign.MintPriceWei)
	c.Campaign.MintPriceEth = strings.TrimSpace(c.Campaign.MintPriceEth)
	c.Campaign.MerkleRoot = strings.TrimSpace(c.Campaign.MerkleRoot)
	c.Campaign.Owner = strings.TrimSpace(c.Campaign.Owner)
	if c.Campaign.MetadataSuffix == "" {
		c.Campaign.MetadataSuffix = campaign.DefaultMetadataSuffix
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 4096
	}
	if c.Server.FeedBuffer <= 0 {
		c.Server.FeedBuffer = 4096
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 5 * time.Second
	}
	if c.Auth.MaxClockSkew <= 0 {
		c.Auth.MaxClockSkew = 5 * time.Minute
	}
	c.Mirror.Endpoint = strings.TrimSpace(c.Mirror.Endpoint)
	c.Mirror.Bucket = strings.TrimSpace(c.Mirror.Bucket)
	if c.Mirror.Region = strings.TrimSpace(c.Mirror.Region); c.Mirror.Region == "" {
		c.Mirror.Region = "auto"
	}
	if c.Mirror.Workers <= 0 {
		c.Mirror.Workers = 2
	}
	if c.Mirror.QueueSize <= 0 {
		c.Mirror.QueueSize = 1024
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

var campaignIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

func (c Config) Validate() error {
	cc := c.Campaign
	if !campaignIDPattern.MatchString(cc.ID) {
		return fmt.Errorf("campaign.id %q must be 1-64 characters of letters, digits, '.', '_' or '-'", cc.ID)
	}
	if cc.MaxSupply == 0 {
		return errors.New("campaign.max_supply must be positive")
	}
	if cc.MaxPerWallet == 0 {
		return errors.New("campaign.max_per_wallet must be positive")
	}
	if cc.MintPriceWei != "" && cc.MintPriceEth != "" {
		return errors.New("set only one of campaign.mint_price_wei and campaign.mint_price_eth")
	}
	if _, err := cc.Price(); err != nil {
		return err
	}
	if !common.IsHexAddress(cc.Owner) {
		return fmt.Errorf("campaign.owner %q is not an address", cc.Owner)
	}
	if common.HexToAddress(cc.Owner) == (common.Address{}) {
		return errors.New("campaign.owner must not be the zero address")
	}
	if cc.MerkleRoot != "" {
		if _, err := cc.Root(); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if strings.TrimSpace(c.Server.DataDir) == "" {
		return errors.New("server.data_dir is required")
	}
	if m := c.Mirror; m.Enabled && (m.Endpoint == "" || m.Bucket == "" || m.AccessKeyID == "" || m.SecretAccessKey == "") {
		return errors.New("mirror.enabled needs mirror.endpoint, mirror.bucket, MINTGATE_MIRROR_ACCESS_KEY_ID and MINTGATE_MIRROR_SECRET_ACCESS_KEY")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Price returns the configured mint price in wei.
func (cc CampaignConfig) Price() (*uint256.Int, error) {
	if cc.MintPriceEth != "" {
		v, err := units.ParseEther(cc.MintPriceEth)
		if err != nil {
			return nil, fmt.Errorf("campaign.mint_price_eth: %w", err)
		}
		return v, nil
	}
	v, err := units.ParseWei(cc.MintPriceWei)
	if err != nil {
		return nil, fmt.Errorf("campaign.mint_price_wei: %w", err)
	}
	return v, nil
}

// Root decodes merkle_root. Empty means the zero hash, which no proof can reach.
func (cc CampaignConfig) Root() (common.Hash, error) {
	if cc.MerkleRoot == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(cc.MerkleRoot)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("campaign.merkle_root %q is not a 32-byte 0x hex value", cc.MerkleRoot)
	}
	return common.BytesToHash(b), nil
}

// Build converts a validated config into the engine's construction arguments.
func (c Config) Build() (campaign.Config, error) {
	if err := c.Validate(); err != nil {
		return campaign.Config{}, err
	}
	price, _ := c.Campaign.Price()
	root, _ := c.Campaign.Root()
	return campaign.Config{
		ID:             c.Campaign.ID,
		Name:           c.Campaign.Name,
		Symbol:         c.Campaign.Symbol,
		MaxSupply:      c.Campaign.MaxSupply,
		MintPrice:      price,
		MaxPerWallet:   c.Campaign.MaxPerWallet,
		HiddenURI:      c.Campaign.HiddenURI,
		MetadataSuffix: c.Campaign.MetadataSuffix,
		MerkleRoot:     root,
		Owner:          common.HexToAddress(c.Campaign.Owner),
	}, nil
}
