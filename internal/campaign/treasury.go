package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Payout moves withdrawn funds to a recipient.
type Payout interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Treasury holds collected mint payments.
type Treasury struct {
	balance   uint256.Int
	collected uint256.Int
	withdrawn uint256.Int
}

func (t *Treasury) Balance() *uint256.Int { return new(uint256.Int).Set(&t.balance) }

func (t *Treasury) credit(amount *uint256.Int) {
	t.balance.Add(&t.balance, amount)
	t.collected.Add(&t.collected, amount)
}

// Withdraw sends the whole balance to `to`. The balance is zeroed before the
// transfer runs and restored if it fails.
func (c *Campaign) Withdraw(ctx context.Context, caller, to common.Address) (Receipt, error) {
	if err := c.requireOwner(caller); err != nil {
		return Receipt{}, err
	}
	if to == (common.Address{}) {
		return Receipt{}, reject(KindInvalidRecipient, "withdraw to the zero address")
	}
	if c.treasury.balance.IsZero() {
		return Receipt{}, reject(KindNothingToWithdraw, "")
	}
	amount := c.treasury.Balance()
	c.treasury.balance.Clear()
	if err := c.payout.Transfer(ctx, to, amount); err != nil {
		c.treasury.balance.Set(amount)
		return Receipt{}, &Rejection{Kind: KindTransferFailed, Detail: err.Error()}
	}
	c.treasury.withdrawn.Add(&c.treasury.withdrawn, amount)
	return c.commit(Receipt{
		Paid:   new(uint256.Int).Set(amount),
		Events: []Event{withdrawEvent(WithdrawEvent{To: to, Amount: amount})},
	}), nil
}

var ErrRecipientRefused = errors.New("recipient cannot accept funds")

// AccountBook is an in-process Payout that keeps recipient balances.
type AccountBook struct {
	mu       sync.Mutex
	balances map[common.Address]*uint256.Int
	refused  map[common.Address]bool
}

func NewAccountBook() *AccountBook {
	return &AccountBook{
		balances: map[common.Address]*uint256.Int{},
		refused:  map[common.Address]bool{},
	}
}

func (b *AccountBook) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refused[to] {
		return ErrRecipientRefused
	}
	cur := b.balances[to]
	if cur == nil {
		cur = new(uint256.Int)
		b.balances[to] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// Reverse takes back amount from a previous transfer to to.
func (b *AccountBook) Reverse(to common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balances[to]
	if cur == nil || cur.Lt(amount) {
		return fmt.Errorf("reverse %s from %s: balance too low", amount.Dec(), to.Hex())
	}
	cur.Sub(cur, amount)
	if cur.IsZero() {
		delete(b.balances, to)
	}
	return nil
}

// Refuse marks addr as unable to receive funds.
func (b *AccountBook) Refuse(addr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refused[addr] = true
}

func (b *AccountBook) BalanceOf(addr common.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur := b.balances[addr]; cur != nil {
		return new(uint256.Int).Set(cur)
	}
	return new(uint256.Int)
}

// Balances returns a copy of every recipient balance.
func (b *AccountBook) Balances() map[common.Address]*uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[common.Address]*uint256.Int, len(b.balances))
	for a, v := range b.balances {
		out[a] = new(uint256.Int).Set(v)
	}
	return out
}

func (b *AccountBook) RestoreBalances(in map[common.Address]*uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = make(map[common.Address]*uint256.Int, len(in))
	for a, v := range in {
		b.balances[a] = new(uint256.Int).Set(v)
	}
}
