package campaign

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate.io/internal/persistence/snapshot"
)

// acceptedEntries applies cmds and returns them as the journal would record them.
func acceptedEntries(t *testing.T, c *Campaign, cmds []Command) []JournalEntry {
	t.Helper()
	var out []JournalEntry
	for _, cmd := range cmds {
		r, err := c.Apply(context.Background(), cmd)
		require.NoError(t, err, "op %s", cmd.Op)
		out = append(out, JournalEntry{Seq: r.Seq, Command: cmd, TokenIDs: r.TokenIDs, Paid: r.Paid, Events: r.Events})
	}
	return out
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c, proofs := newTestCampaign(t, nil)
	acceptedEntries(t, c, []Command{
		{Op: OpSetPhases, Caller: ownerAddr, AllowlistOpen: true, PublicOpen: true},
		{Op: OpAllowlistMint, Caller: walletA, Quantity: 2, Proof: proofs[walletA], Value: wei(100)},
		{Op: OpPublicMint, Caller: outsider, Quantity: 3, Value: wei(150)},
		{Op: OpWithdraw, Caller: ownerAddr, To: walletC},
		{Op: OpPublicMint, Caller: walletB, Quantity: 1, Value: wei(50)},
		{Op: OpReveal, Caller: ownerAddr, URI: "ipfs://revealed/"},
		{Op: OpSetMaxPerWallet, Caller: ownerAddr, MaxPerWallet: 0},
	})

	snap := c.ExportSnapshot()
	path := filepath.Join(t.TempDir(), "snapshots", snapshot.FileName(snap.Header.Seq))
	require.NoError(t, snapshot.WriteSnapshot(path, snap))

	got, err := snapshot.ReadSnapshot(path)
	require.NoError(t, err)
	restored, err := FromSnapshot(got)
	require.NoError(t, err)

	assert.Equal(t, c.StateDigest(), restored.StateDigest())
	assert.Equal(t, c.Status(), restored.Status())

	uri, err := restored.TokenURI(6)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://revealed/6.json", uri)
	holder, err := restored.OwnerOf(3)
	require.NoError(t, err)
	assert.Equal(t, outsider, holder)
	assert.Equal(t, "250", restored.Payout().(*AccountBook).BalanceOf(walletC).Dec())

	// The zero cap survived the round trip.
	_, err = restored.PublicMint(walletC, 1, wei(50))
	requireKind(t, err, KindExceedsWalletLimit)
}

func TestSnapshot_DigestMismatchRejected(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	snap := c.ExportSnapshot()
	snap.HiddenURI = "tampered"
	_, err := FromSnapshot(snap)
	require.Error(t, err)
}

func TestReplay_FromSnapshotAndJournal(t *testing.T) {
	c, proofs := newTestCampaign(t, nil)
	entries := acceptedEntries(t, c, []Command{
		{Op: OpSetPhases, Caller: ownerAddr, AllowlistOpen: true},
		{Op: OpAllowlistMint, Caller: walletB, Quantity: 3, Proof: proofs[walletB], Value: wei(150)},
	})
	mid := c.ExportSnapshot()
	entries = append(entries, acceptedEntries(t, c, []Command{
		{Op: OpSetPhases, Caller: ownerAddr, PublicOpen: true},
		{Op: OpPublicMint, Caller: walletA, Quantity: 2, Value: wei(100)},
		{Op: OpWithdraw, Caller: ownerAddr, To: ownerAddr},
	})...)

	fresh, _ := newTestCampaign(t, nil)
	n, err := Replay(context.Background(), fresh, entries)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, c.StateDigest(), fresh.StateDigest())

	resumed, err := FromSnapshot(mid)
	require.NoError(t, err)
	n, err = Replay(context.Background(), resumed, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, c.StateDigest(), resumed.StateDigest())
}

func TestReplay_DetectsGapAndDivergence(t *testing.T) {
	c, _ := newTestCampaign(t, nil)
	entries := acceptedEntries(t, c, []Command{
		{Op: OpSetPhases, Caller: ownerAddr, PublicOpen: true},
		{Op: OpPublicMint, Caller: walletA, Quantity: 1, Value: wei(50)},
	})

	fresh, _ := newTestCampaign(t, nil)
	_, err := Replay(context.Background(), fresh, entries[1:])
	require.ErrorContains(t, err, "journal gap")

	bad := append([]JournalEntry(nil), entries...)
	bad[1].TokenIDs = []uint64{9}
	fresh, _ = newTestCampaign(t, nil)
	_, err = Replay(context.Background(), fresh, bad)
	require.ErrorContains(t, err, "token ids")
}
