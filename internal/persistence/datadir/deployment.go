package datadir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/units"
)

// Deployment records the construction arguments a campaign was first
// started with. It is written once and never updated.
type Deployment struct {
	CampaignID     string `json:"campaign_id"`
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	MaxSupply      uint64 `json:"max_supply"`
	MintPriceWei   string `json:"mint_price_wei"`
	MintPriceEth   string `json:"mint_price_eth"`
	MaxPerWallet   uint64 `json:"max_per_wallet"`
	HiddenURI      string `json:"hidden_uri"`
	MetadataSuffix string `json:"metadata_suffix"`
	MerkleRoot     string `json:"merkle_root"`
	Owner          string `json:"owner"`
	DeployedAt     string `json:"deployed_at"`
}

func NewDeployment(cfg campaign.Config, now time.Time) Deployment {
	d := Deployment{
		CampaignID:     cfg.ID,
		Name:           cfg.Name,
		Symbol:         cfg.Symbol,
		MaxSupply:      cfg.MaxSupply,
		MintPriceWei:   "0",
		MintPriceEth:   "0",
		MaxPerWallet:   cfg.MaxPerWallet,
		HiddenURI:      cfg.HiddenURI,
		MetadataSuffix: cfg.MetadataSuffix,
		MerkleRoot:     cfg.MerkleRoot.Hex(),
		Owner:          cfg.Owner.Hex(),
		DeployedAt:     now.UTC().Format(time.RFC3339),
	}
	if cfg.MintPrice != nil {
		d.MintPriceWei = cfg.MintPrice.Dec()
		d.MintPriceEth = units.FormatEther(cfg.MintPrice)
	}
	return d
}

// WriteDeploymentOnce writes d unless a record already exists. created
// reports whether this call wrote it.
func (l Layout) WriteDeploymentOnce(d Deployment) (created bool, err error) {
	if err := l.Ensure(); err != nil {
		return false, err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(l.DeploymentPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}

func (l Layout) ReadDeployment() (Deployment, error) {
	var d Deployment
	b, err := os.ReadFile(l.DeploymentPath())
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("%s: %w", l.DeploymentPath(), err)
	}
	return d, nil
}
