package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/persistence/snapshot"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func mintEntry(seq uint64, minter common.Address, first, last uint64) campaign.JournalEntry {
	qty := last - first + 1
	return campaign.JournalEntry{
		Seq:      seq,
		Time:     time.Unix(int64(seq), 0),
		Command:  campaign.Command{Op: campaign.OpPublicMint, Caller: minter, Quantity: qty},
		TokenIDs: []uint64{first, last},
		Paid:     uint256.NewInt(50 * qty),
		Events: []campaign.Event{{
			Type: campaign.EventMint,
			Mint: &campaign.MintEvent{
				Minter:       minter,
				Quantity:     qty,
				PricePaid:    uint256.NewInt(50 * qty),
				FirstTokenID: first,
				LastTokenID:  last,
				Phase:        campaign.PhasePublic,
			},
		}},
	}
}

func TestSQLiteIndex_RowsVisibleAfterClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path, "c1", nil)
	require.NoError(t, err)

	idx.Publish(mintEntry(1, alice, 1, 2))
	idx.Publish(mintEntry(2, bob, 3, 3))
	idx.Publish(campaign.JournalEntry{
		Seq:     3,
		Time:    time.Unix(3, 0),
		Command: campaign.Command{Op: campaign.OpWithdraw, Caller: alice, To: alice},
		Events: []campaign.Event{{
			Type:     campaign.EventWithdraw,
			Withdraw: &campaign.WithdrawEvent{To: alice, Amount: uint256.NewInt(150)},
		}},
	})
	require.NoError(t, idx.WriteRejection(campaign.RejectionEntry{
		Time:    time.Unix(4, 0),
		Command: campaign.Command{Op: campaign.OpPublicMint, Caller: bob, Quantity: 9},
		Kind:    campaign.KindExceedsWalletLimit.String(),
	}))
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Seq: 3, Digest: "d"}, TotalMinted: 3, BalanceWei: "0"}
	idx.RecordSnapshot("/tmp/000000000003.snap.zst", snap)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close(), "close is idempotent")

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	c, err := r.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Commits: 3, Mints: 2, Tokens: 3, Withdrawals: 1, Rejections: 1, Snapshots: 1}, c)

	last, err := r.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), last)

	mints, err := r.MintsByMinter(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, mints, 1)
	assert.Equal(t, uint64(2), mints[0].Quantity)
	assert.Equal(t, "100", mints[0].PricePaidWei)
	assert.Equal(t, "public", mints[0].Phase)

	recent, err := r.RecentMints(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].Seq, "newest first")

	owner, ok, err := r.TokenOwner(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, bob, owner)
	_, ok, err = r.TokenOwner(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	kinds, err := r.RejectionsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{campaign.KindExceedsWalletLimit.String(): 1}, kinds)

	s, ok, err := r.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), s.TotalMinted)
}

func TestSQLiteIndex_RepublishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path, "c1", nil)
	require.NoError(t, err)
	entries := []campaign.JournalEntry{mintEntry(1, alice, 1, 1), mintEntry(2, alice, 2, 2)}
	for _, e := range entries {
		idx.Publish(e)
	}
	require.NoError(t, idx.Close())

	idx, err = OpenSQLite(path, "c1", nil)
	require.NoError(t, err)
	n, err := idx.CatchUp(ctx, append(entries, mintEntry(3, bob, 3, 3)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	idx.Publish(entries[0])
	require.NoError(t, idx.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var mints int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM mints`).Scan(&mints))
	assert.Equal(t, 3, mints)
}

func TestOpenSQLite_CampaignMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(path, "c1", nil)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = OpenSQLite(path, "c2", nil)
	assert.ErrorContains(t, err, "c1")
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	idx := &SQLiteIndex{ch: make(chan req, 1)}
	idx.Publish(mintEntry(1, alice, 1, 1))
	idx.Publish(mintEntry(2, alice, 2, 2))
	_ = idx.WriteRejection(campaign.RejectionEntry{})
	idx.RecordSnapshot("p", snapshot.SnapshotV1{})

	st := idx.Stats()
	assert.Equal(t, 1, st.QueueDepth)
	assert.Equal(t, 1, st.QueueCapacity)
	assert.Equal(t, uint64(1), st.DropCommitTotal)
	assert.Equal(t, uint64(1), st.DropRejectionTotal)
	assert.Equal(t, uint64(1), st.DropSnapshotTotal)

	idx.closed.Store(true)
	idx.Publish(mintEntry(3, alice, 3, 3))
	assert.Equal(t, uint64(1), idx.Stats().DropCommitTotal, "closed index ignores writes")
}
