package campaign

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollback_RestoresDigest(t *testing.T) {
	c, proofs := newTestCampaign(t, nil)
	openPhases(t, c, true, true)
	_, err := c.PublicMint(walletB, 1, wei(50))
	require.NoError(t, err)
	ctx := context.Background()
	book := c.Payout().(*AccountBook)

	cmds := []Command{
		{Op: OpAllowlistMint, Caller: walletA, Quantity: 2, Proof: proofs[walletA], Value: wei(100)},
		{Op: OpPublicMint, Caller: walletB, Quantity: 1, Value: wei(50)},
		{Op: OpWithdraw, Caller: ownerAddr, To: walletC},
		{Op: OpSetMaxPerWallet, Caller: ownerAddr, MaxPerWallet: 9},
		{Op: OpReveal, Caller: ownerAddr, URI: "ipfs://revealed/"},
		{Op: OpTransferOwnership, Caller: ownerAddr, To: walletC},
	}
	for _, cmd := range cmds {
		before := c.StateDigest()
		cp := c.checkpoint(cmd.Caller)
		r, err := c.Apply(ctx, cmd)
		require.NoErrorf(t, err, "op %s", cmd.Op)
		require.NotEqual(t, before, c.StateDigest())

		require.NoError(t, c.rollback(cp, r))
		assert.Equalf(t, before, c.StateDigest(), "op %s", cmd.Op)
	}
	assert.True(t, book.BalanceOf(walletC).IsZero(), "withdrawal clawed back")
	assert.Equal(t, uint64(1), c.WalletMintCount(walletB))
	assert.Zero(t, c.WalletMintCount(walletA))
	_, ok := c.issuer.OwnerOf(2)
	assert.False(t, ok)
}

type fixedIssuer struct{ next uint64 }

func (f *fixedIssuer) Issue(_ common.Address, count uint64) []uint64 {
	ids := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		f.next++
		ids = append(ids, f.next)
	}
	return ids
}
func (f *fixedIssuer) Exists(id uint64) bool { return id >= 1 && id <= f.next }
func (f *fixedIssuer) OwnerOf(uint64) (common.Address, bool) { return common.Address{}, false }

func TestRollback_RefusesWithoutUndo(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	c.SetIssuer(&fixedIssuer{})
	openPhases(t, c, false, true)

	before := c.StateDigest()
	cp := c.checkpoint(walletA)
	r, err := c.PublicMint(walletA, 1, wei(50))
	require.NoError(t, err)
	after := c.StateDigest()
	require.Error(t, c.rollback(cp, r))
	assert.Equal(t, after, c.StateDigest(), "a refused rollback changes nothing")
	assert.NotEqual(t, before, after)
}
