package campaign

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// checkpoint is everything one command can change on the campaign itself.
// Issued tokens and payouts are taken back through their collaborators.
type checkpoint struct {
	seq       uint64
	owner     common.Address
	mintPrice uint256.Int
	root      common.Hash
	phases    Phases
	meta      metadata
	treasury  Treasury

	maxPerWallet uint64
	totalMinted  uint64
	wallet       common.Address
	walletCount  uint64
	walletSeen   bool
}

// issueUndoer is implemented by issuers that can withdraw their most recent ids.
type issueUndoer interface {
	Unissue(count uint64)
}

// payoutUndoer is implemented by payouts that can claw back a transfer.
type payoutUndoer interface {
	Reverse(to common.Address, amount *uint256.Int) error
}

func (c *Campaign) checkpoint(wallet common.Address) checkpoint {
	n, seen := c.ledger.wallets[wallet]
	return checkpoint{
		seq:          c.seq,
		owner:        c.owner,
		mintPrice:    c.mintPrice,
		root:         c.root,
		phases:       c.phases,
		meta:         c.meta,
		treasury:     c.treasury,
		maxPerWallet: c.ledger.maxPerWallet,
		totalMinted:  c.ledger.totalMinted,
		wallet:       wallet,
		walletCount:  n,
		walletSeen:   seen,
	}
}

// rollback returns the campaign to cp, undoing the accepted command that
// produced r. It changes nothing and returns an error when a collaborator
// cannot undo its part.
func (c *Campaign) rollback(cp checkpoint, r Receipt) error {
	issued := uint64(len(r.TokenIDs))
	iu, canUnissue := c.issuer.(issueUndoer)
	if issued > 0 && !canUnissue {
		return fmt.Errorf("issuer %T cannot take back tokens", c.issuer)
	}
	var withdrawals []*WithdrawEvent
	for _, ev := range r.Events {
		if ev.Withdraw != nil {
			withdrawals = append(withdrawals, ev.Withdraw)
		}
	}
	pu, canReverse := c.payout.(payoutUndoer)
	if len(withdrawals) > 0 && !canReverse {
		return fmt.Errorf("payout %T cannot reverse transfers", c.payout)
	}
	for _, w := range withdrawals {
		if err := pu.Reverse(w.To, w.Amount); err != nil {
			return err
		}
	}
	if issued > 0 {
		iu.Unissue(issued)
	}

	c.seq = cp.seq
	c.owner = cp.owner
	c.mintPrice = cp.mintPrice
	c.root = cp.root
	c.phases = cp.phases
	c.meta = cp.meta
	c.treasury = cp.treasury
	c.ledger.maxPerWallet = cp.maxPerWallet
	c.ledger.totalMinted = cp.totalMinted
	if cp.walletSeen {
		c.ledger.wallets[cp.wallet] = cp.walletCount
	} else {
		delete(c.ledger.wallets, cp.wallet)
	}
	return nil
}
