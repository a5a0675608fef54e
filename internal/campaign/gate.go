package campaign

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AllowlistMint mints quantity tokens to caller during the allowlist phase.
// Checks run in a fixed order: phase, quantity, proof, payment, capacity.
func (c *Campaign) AllowlistMint(caller common.Address, quantity uint64, proof []common.Hash, value *uint256.Int) (Receipt, error) {
	if !c.phases.AllowlistOpen {
		return Receipt{}, reject(KindAllowlistMintClosed, "")
	}
	if quantity == 0 {
		return Receipt{}, reject(KindInvalidQuantity, "quantity must be positive")
	}
	if !VerifyProof(proof, LeafFor(caller), c.root) {
		return Receipt{}, reject(KindInvalidProof, "%s is not in the allowlist", caller.Hex())
	}
	return c.mint(PhaseAllowlist, caller, quantity, value)
}

// PublicMint mints quantity tokens to caller during the public phase.
func (c *Campaign) PublicMint(caller common.Address, quantity uint64, value *uint256.Int) (Receipt, error) {
	if !c.phases.PublicOpen {
		return Receipt{}, reject(KindPublicMintClosed, "")
	}
	if quantity == 0 {
		return Receipt{}, reject(KindInvalidQuantity, "quantity must be positive")
	}
	return c.mint(PhasePublic, caller, quantity, value)
}

func (c *Campaign) mint(phase Phase, caller common.Address, quantity uint64, value *uint256.Int) (Receipt, error) {
	paid, err := RequireExactPayment(value, quantity, &c.mintPrice)
	if err != nil {
		return Receipt{}, err
	}
	if err := c.ledger.Reserve(caller, quantity); err != nil {
		return Receipt{}, err
	}
	ids := c.issuer.Issue(caller, quantity)
	c.treasury.credit(paid)

	ev := MintEvent{
		Minter:    caller,
		Quantity:  quantity,
		PricePaid: paid,
		Phase:     phase,
	}
	if len(ids) > 0 {
		ev.FirstTokenID = ids[0]
		ev.LastTokenID = ids[len(ids)-1]
	}
	return c.commit(Receipt{
		TokenIDs: ids,
		Paid:     new(uint256.Int).Set(paid),
		Events:   []Event{mintEvent(ev)},
	}), nil
}
