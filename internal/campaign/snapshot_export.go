package campaign

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"mintgate.io/internal/persistence/snapshot"
)

// ExportSnapshot captures the full campaign state at the current seq.
func (c *Campaign) ExportSnapshot() snapshot.SnapshotV1 {
	wallets := make([]snapshot.WalletV1, 0, len(c.ledger.wallets))
	for _, a := range sortedWallets(c.ledger.wallets) {
		wallets = append(wallets, snapshot.WalletV1{Address: a.Hex(), Minted: c.ledger.wallets[a]})
	}

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:    snapshot.Version,
			CampaignID: c.id,
			Seq:        c.seq,
			Digest:     c.StateDigest(),
		},
		Name:           c.name,
		Symbol:         c.symbol,
		MaxSupply:      c.ledger.MaxSupply(),
		MetadataSuffix: c.suffix,
		Owner:          c.owner.Hex(),
		MintPriceWei:   c.mintPrice.Dec(),
		MaxPerWallet:   c.ledger.MaxPerWallet(),
		MerkleRoot:     c.root.Hex(),
		HiddenURI:      c.meta.hiddenURI,
		BaseURI:        c.meta.baseURI,
		AllowlistOpen:  c.phases.AllowlistOpen,
		PublicOpen:     c.phases.PublicOpen,
		Revealed:       c.meta.revealed,
		TotalMinted:    c.ledger.TotalMinted(),
		Wallets:        wallets,
		BalanceWei:     c.treasury.balance.Dec(),
		CollectedWei:   c.treasury.collected.Dec(),
		WithdrawnWei:   c.treasury.withdrawn.Dec(),
	}
	if hs, ok := c.issuer.(holderStore); ok {
		for _, h := range hs.Holders() {
			snap.Holders = append(snap.Holders, h.Hex())
		}
	}
	if book, ok := c.payout.(*AccountBook); ok {
		bal := book.Balances()
		addrs := make([]common.Address, 0, len(bal))
		for a := range bal {
			addrs = append(addrs, a)
		}
		sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
		for _, a := range addrs {
			snap.Payouts = append(snap.Payouts, snapshot.PayoutV1{Address: a.Hex(), AmountWei: bal[a].Dec()})
		}
	}
	return snap
}

// FromSnapshot rebuilds a campaign. The default issuer and account book are
// restored from the snapshot; callers may swap them before applying commands.
func FromSnapshot(snap snapshot.SnapshotV1) (*Campaign, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("snapshot version %d not supported", snap.Header.Version)
	}
	price, err := parseWei("mint_price_wei", snap.MintPriceWei)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(snap.Owner) {
		return nil, fmt.Errorf("snapshot owner %q is not an address", snap.Owner)
	}
	c, err := New(Config{
		ID:             snap.Header.CampaignID,
		Name:           snap.Name,
		Symbol:         snap.Symbol,
		MaxSupply:      snap.MaxSupply,
		MintPrice:      price,
		MaxPerWallet:   max(snap.MaxPerWallet, 1),
		HiddenURI:      snap.HiddenURI,
		MetadataSuffix: snap.MetadataSuffix,
		MerkleRoot:     common.HexToHash(snap.MerkleRoot),
		Owner:          common.HexToAddress(snap.Owner),
	})
	if err != nil {
		return nil, err
	}
	// A zero cap is legal after set_max_per_wallet even though New refuses it.
	c.ledger.SetMaxPerWallet(snap.MaxPerWallet)
	c.meta.baseURI = snap.BaseURI
	c.meta.revealed = snap.Revealed
	c.phases = Phases{AllowlistOpen: snap.AllowlistOpen, PublicOpen: snap.PublicOpen}

	wallets := make(map[common.Address]uint64, len(snap.Wallets))
	var sum uint64
	for _, w := range snap.Wallets {
		if !common.IsHexAddress(w.Address) {
			return nil, fmt.Errorf("snapshot wallet %q is not an address", w.Address)
		}
		wallets[common.HexToAddress(w.Address)] = w.Minted
		sum += w.Minted
	}
	if sum != snap.TotalMinted {
		return nil, fmt.Errorf("snapshot wallets sum to %d, total minted is %d", sum, snap.TotalMinted)
	}
	if snap.TotalMinted > snap.MaxSupply {
		return nil, fmt.Errorf("snapshot total minted %d exceeds max supply %d", snap.TotalMinted, snap.MaxSupply)
	}
	c.ledger.restore(snap.TotalMinted, wallets)

	if len(snap.Holders) > 0 {
		holders := make([]common.Address, 0, len(snap.Holders))
		for _, h := range snap.Holders {
			holders = append(holders, common.HexToAddress(h))
		}
		c.issuer.(*SequentialIssuer).RestoreHolders(holders)
	}

	for _, f := range []struct {
		name string
		src  string
		dst  *uint256.Int
	}{
		{"balance_wei", snap.BalanceWei, &c.treasury.balance},
		{"collected_wei", snap.CollectedWei, &c.treasury.collected},
		{"withdrawn_wei", snap.WithdrawnWei, &c.treasury.withdrawn},
	} {
		v, err := parseWei(f.name, f.src)
		if err != nil {
			return nil, err
		}
		f.dst.Set(v)
	}

	if len(snap.Payouts) > 0 {
		bal := make(map[common.Address]*uint256.Int, len(snap.Payouts))
		for _, p := range snap.Payouts {
			v, err := parseWei("payout", p.AmountWei)
			if err != nil {
				return nil, err
			}
			bal[common.HexToAddress(p.Address)] = v
		}
		c.payout.(*AccountBook).RestoreBalances(bal)
	}

	c.seq = snap.Header.Seq
	if snap.Header.Digest != "" {
		if got := c.StateDigest(); got != snap.Header.Digest {
			return nil, fmt.Errorf("snapshot digest mismatch: header %s, state %s", snap.Header.Digest, got)
		}
	}
	return c, nil
}

func parseWei(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s %q: %w", field, s, err)
	}
	return v, nil
}

func sortedWallets(m map[common.Address]uint64) []common.Address {
	out := make([]common.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}
