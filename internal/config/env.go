package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverrides keeps the collection deploy variable names. Zero
// values mean "not set".
type envOverrides struct {
	Name         string `env:"COLLECTION_NAME"`
	Symbol       string `env:"COLLECTION_SYMBOL"`
	MaxSupply    uint64 `env:"MAX_SUPPLY"`
	MintPriceWei string `env:"MINT_PRICE_WEI"`
	MintPriceEth string `env:"MINT_PRICE_ETH"`
	MaxPerWallet uint64 `env:"MAX_PER_WALLET"`
	HiddenURI    string `env:"HIDDEN_URI"`
	MerkleRoot   string `env:"MERKLE_ROOT"`
	Owner        string `env:"OWNER_ADDRESS"`

	CampaignID string `env:"MINTGATE_CAMPAIGN_ID"`
	Addr       string `env:"MINTGATE_ADDR"`
	DataDir    string `env:"MINTGATE_DATA_DIR"`
	LogLevel   string `env:"MINTGATE_LOG_LEVEL"`
	RequireSig string `env:"MINTGATE_REQUIRE_SIGNATURE"`

	MirrorEnabled   string `env:"MINTGATE_MIRROR"`
	MirrorEndpoint  string `env:"MINTGATE_MIRROR_ENDPOINT"`
	MirrorBucket    string `env:"MINTGATE_MIRROR_BUCKET"`
	MirrorPrefix    string `env:"MINTGATE_MIRROR_PREFIX"`
	MirrorAccessKey string `env:"MINTGATE_MIRROR_ACCESS_KEY_ID"`
	MirrorSecret    string `env:"MINTGATE_MIRROR_SECRET_ACCESS_KEY"`
}

// LoadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables on cfg.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setStr := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	setStr(&c.Campaign.Name, o.Name)
	setStr(&c.Campaign.Symbol, o.Symbol)
	setStr(&c.Campaign.HiddenURI, o.HiddenURI)
	setStr(&c.Campaign.MerkleRoot, o.MerkleRoot)
	setStr(&c.Campaign.Owner, o.Owner)
	setStr(&c.Campaign.ID, o.CampaignID)
	setStr(&c.Server.Addr, o.Addr)
	setStr(&c.Server.DataDir, o.DataDir)
	setStr(&c.Log.Level, o.LogLevel)
	if o.MaxSupply != 0 {
		c.Campaign.MaxSupply = o.MaxSupply
	}
	if o.MaxPerWallet != 0 {
		c.Campaign.MaxPerWallet = o.MaxPerWallet
	}
	// A price from the environment replaces both file forms.
	if v := strings.TrimSpace(o.MintPriceWei); v != "" {
		c.Campaign.MintPriceWei, c.Campaign.MintPriceEth = v, ""
	} else if v := strings.TrimSpace(o.MintPriceEth); v != "" {
		c.Campaign.MintPriceWei, c.Campaign.MintPriceEth = "", v
	}
	setStr(&c.Mirror.Endpoint, o.MirrorEndpoint)
	setStr(&c.Mirror.Bucket, o.MirrorBucket)
	setStr(&c.Mirror.Prefix, o.MirrorPrefix)
	setStr(&c.Mirror.AccessKeyID, o.MirrorAccessKey)
	setStr(&c.Mirror.SecretAccessKey, o.MirrorSecret)
	if err := setBool(&c.Auth.RequireSignature, "MINTGATE_REQUIRE_SIGNATURE", o.RequireSig); err != nil {
		return err
	}
	if err := setBool(&c.Mirror.Enabled, "MINTGATE_MIRROR", o.MirrorEnabled); err != nil {
		return err
	}
	c.Normalize()
	return nil
}

func setBool(dst *bool, name, v string) error {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
	case "1", "true", "yes", "y", "on":
		*dst = true
	case "0", "false", "no", "n", "off":
		*dst = false
	default:
		return fmt.Errorf("%s=%q is not a boolean", name, v)
	}
	return nil
}

// Resolve is the full load sequence used by the binaries: file, .env,
// environment, then validation.
func Resolve(path, dotenvPath string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := LoadDotEnv(dotenvPath); err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("campaign.yaml: %w", err)
	}
	return cfg, nil
}
