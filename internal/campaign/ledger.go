package campaign

import "github.com/ethereum/go-ethereum/common"

// Ledger tracks how many tokens were minted overall and per wallet.
// Reserve is its only mutator.
type Ledger struct {
	maxSupply    uint64
	maxPerWallet uint64

	totalMinted uint64
	wallets     map[common.Address]uint64
}

func NewLedger(maxSupply, maxPerWallet uint64) *Ledger {
	return &Ledger{
		maxSupply:    maxSupply,
		maxPerWallet: maxPerWallet,
		wallets:      map[common.Address]uint64{},
	}
}

// Reserve credits quantity to wallet if neither cap would be exceeded.
// Nothing changes on rejection.
func (l *Ledger) Reserve(wallet common.Address, quantity uint64) error {
	if quantity == 0 {
		return reject(KindInvalidQuantity, "quantity must be positive")
	}
	if quantity > l.maxSupply-min(l.totalMinted, l.maxSupply) {
		return reject(KindMintExceedsMaxSupply, "%d minted of %d, requested %d", l.totalMinted, l.maxSupply, quantity)
	}
	have := l.wallets[wallet]
	if quantity > l.maxPerWallet-min(have, l.maxPerWallet) {
		return reject(KindExceedsWalletLimit, "wallet holds %d of %d, requested %d", have, l.maxPerWallet, quantity)
	}
	l.totalMinted += quantity
	l.wallets[wallet] = have + quantity
	return nil
}

func (l *Ledger) TotalMinted() uint64  { return l.totalMinted }
func (l *Ledger) MaxSupply() uint64    { return l.maxSupply }
func (l *Ledger) MaxPerWallet() uint64 { return l.maxPerWallet }

// MintedBy returns the cumulative quantity minted by wallet.
func (l *Ledger) MintedBy(wallet common.Address) uint64 { return l.wallets[wallet] }

// Wallets returns the number of wallets that minted at least once.
func (l *Ledger) Wallets() int { return len(l.wallets) }

// SetMaxPerWallet lowers or raises the cap. Existing counts are kept; a wallet
// above a lowered cap simply cannot mint again.
func (l *Ledger) SetMaxPerWallet(n uint64) { l.maxPerWallet = n }

func (l *Ledger) restore(total uint64, wallets map[common.Address]uint64) {
	l.totalMinted = total
	l.wallets = wallets
}
