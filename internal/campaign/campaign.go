package campaign

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const DefaultMetadataSuffix = ".json"

// Config holds the construction arguments of a campaign.
type Config struct {
	ID             string
	Name           string
	Symbol         string
	MaxSupply      uint64
	MintPrice      *uint256.Int
	MaxPerWallet   uint64
	HiddenURI      string
	MetadataSuffix string
	MerkleRoot     common.Hash
	Owner          common.Address
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("campaign id is required")
	}
	if c.MaxSupply == 0 {
		return errors.New("max supply must be positive")
	}
	if c.MaxPerWallet == 0 {
		return errors.New("max per wallet must be positive")
	}
	if c.Owner == (common.Address{}) {
		return errors.New("owner must not be the zero address")
	}
	return nil
}

// Campaign is the minting authorization and accounting engine. It is not
// safe for concurrent use; Runtime serializes access to it.
type Campaign struct {
	id        string
	name      string
	symbol    string
	suffix    string
	owner     common.Address
	mintPrice uint256.Int
	root      common.Hash

	phases   Phases
	meta     metadata
	ledger   *Ledger
	treasury Treasury

	issuer Issuer
	payout Payout

	seq uint64
}

func New(cfg Config) (*Campaign, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("campaign config: %w", err)
	}
	suffix := cfg.MetadataSuffix
	if suffix == "" {
		suffix = DefaultMetadataSuffix
	}
	c := &Campaign{
		id:     cfg.ID,
		name:   cfg.Name,
		symbol: cfg.Symbol,
		suffix: suffix,
		owner:  cfg.Owner,
		root:   cfg.MerkleRoot,
		meta:   metadata{hiddenURI: cfg.HiddenURI},
		ledger: NewLedger(cfg.MaxSupply, cfg.MaxPerWallet),
		issuer: NewSequentialIssuer(),
		payout: NewAccountBook(),
	}
	if cfg.MintPrice != nil {
		c.mintPrice.Set(cfg.MintPrice)
	}
	return c, nil
}

// SetIssuer replaces the issuance collaborator. Call before the first mint.
func (c *Campaign) SetIssuer(i Issuer) { c.issuer = i }

// SetPayout replaces the collaborator that moves withdrawn funds.
func (c *Campaign) SetPayout(p Payout) { c.payout = p }

func (c *Campaign) Payout() Payout { return c.payout }

func (c *Campaign) ID() string { return c.id }

// Seq is the number of accepted commands applied so far.
func (c *Campaign) Seq() uint64 { return c.seq }

func (c *Campaign) Owner() common.Address { return c.owner }

func (c *Campaign) MintPrice() *uint256.Int { return new(uint256.Int).Set(&c.mintPrice) }

func (c *Campaign) WalletMintCount(wallet common.Address) uint64 { return c.ledger.MintedBy(wallet) }

func (c *Campaign) TotalMinted() uint64 { return c.ledger.TotalMinted() }

func (c *Campaign) Balance() *uint256.Int { return c.treasury.Balance() }

func (c *Campaign) OwnerOf(id uint64) (common.Address, error) {
	holder, ok := c.issuer.OwnerOf(id)
	if !ok {
		return common.Address{}, reject(KindUnknownToken, "token %d", id)
	}
	return holder, nil
}

// Status is an immutable view of the campaign, safe to share across goroutines.
type Status struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Symbol        string         `json:"symbol"`
	Owner         common.Address `json:"owner"`
	MaxSupply     uint64         `json:"max_supply"`
	TotalMinted   uint64         `json:"total_minted"`
	MaxPerWallet  uint64         `json:"max_per_wallet"`
	Wallets       int            `json:"wallets"`
	MintPrice     *uint256.Int   `json:"mint_price"`
	MerkleRoot    common.Hash    `json:"merkle_root"`
	AllowlistOpen bool           `json:"allowlist_open"`
	PublicOpen    bool           `json:"public_open"`
	Revealed      bool           `json:"revealed"`
	HiddenURI     string         `json:"hidden_uri"`
	BaseURI       string         `json:"base_uri,omitempty"`
	Balance       *uint256.Int   `json:"balance"`
	Collected     *uint256.Int   `json:"collected"`
	Withdrawn     *uint256.Int   `json:"withdrawn"`
	Seq           uint64         `json:"seq"`
}

func (c *Campaign) Status() Status {
	return Status{
		ID:            c.id,
		Name:          c.name,
		Symbol:        c.symbol,
		Owner:         c.owner,
		MaxSupply:     c.ledger.MaxSupply(),
		TotalMinted:   c.ledger.TotalMinted(),
		MaxPerWallet:  c.ledger.MaxPerWallet(),
		Wallets:       c.ledger.Wallets(),
		MintPrice:     c.MintPrice(),
		MerkleRoot:    c.root,
		AllowlistOpen: c.phases.AllowlistOpen,
		PublicOpen:    c.phases.PublicOpen,
		Revealed:      c.meta.revealed,
		HiddenURI:     c.meta.hiddenURI,
		BaseURI:       c.meta.baseURI,
		Balance:       c.treasury.Balance(),
		Collected:     new(uint256.Int).Set(&c.treasury.collected),
		Withdrawn:     new(uint256.Int).Set(&c.treasury.withdrawn),
		Seq:           c.seq,
	}
}
