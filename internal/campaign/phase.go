package campaign

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Phases are the two independent sale windows. Both may be open at once.
type Phases struct {
	AllowlistOpen bool
	PublicOpen    bool
}

func (c *Campaign) requireOwner(caller common.Address) error {
	if caller != c.owner {
		return reject(KindUnauthorized, "caller %s is not the owner", caller.Hex())
	}
	return nil
}

func (c *Campaign) commit(r Receipt) Receipt {
	c.seq++
	r.Seq = c.seq
	return r
}

// SetPhases sets both sale flags in one step.
func (c *Campaign) SetPhases(caller common.Address, allowlistOpen, publicOpen bool) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	c.phases = Phases{AllowlistOpen: allowlistOpen, PublicOpen: publicOpen}
	return c.commit(Receipt{}), nil
}

func (c *Campaign) Phases() Phases { return c.phases }

func (c *Campaign) SetMintPrice(caller common.Address, price *uint256.Int) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	if price == nil {
		c.mintPrice.Clear()
	} else {
		c.mintPrice.Set(price)
	}
	return c.commit(Receipt{}), nil
}

// SetMaxPerWallet accepts any value, including one below counts already
// minted. The cap is enforced at mint time.
func (c *Campaign) SetMaxPerWallet(caller common.Address, n uint64) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	c.ledger.SetMaxPerWallet(n)
	return c.commit(Receipt{}), nil
}

func (c *Campaign) SetMerkleRoot(caller common.Address, root common.Hash) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	c.root = root
	return c.commit(Receipt{}), nil
}

func (c *Campaign) MerkleRoot() common.Hash { return c.root }

func (c *Campaign) SetHiddenURI(caller common.Address, uri string) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	c.meta.hiddenURI = uri
	return c.commit(Receipt{}), nil
}

// SetBaseURI changes the revealed prefix without touching the reveal flag.
func (c *Campaign) SetBaseURI(caller common.Address, uri string) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	c.meta.baseURI = uri
	return c.commit(Receipt{}), nil
}

// Reveal switches every token to per-token metadata under baseURI. There is
// no way back; calling it again only replaces the prefix.
func (c *Campaign) Reveal(caller common.Address, baseURI string) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	c.meta.baseURI = baseURI
	c.meta.revealed = true
	return c.commit(Receipt{Events: []Event{revealEvent(RevealEvent{BaseURI: baseURI})}}), nil
}

// TransferOwnership hands every admin capability to newOwner.
func (c *Campaign) TransferOwnership(caller, newOwner common.Address) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	if newOwner == (common.Address{}) {
		return Receipt{}, reject(KindInvalidOwner, "new owner is the zero address")
	}
	c.owner = newOwner
	return c.commit(Receipt{}), nil
}
