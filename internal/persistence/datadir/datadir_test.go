package datadir

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/persistence/journal"
	"mintgate.io/internal/persistence/snapshot"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	minter = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func testConfig() campaign.Config {
	return campaign.Config{
		ID:           "c1",
		Name:         "Test",
		Symbol:       "TST",
		MaxSupply:    10,
		MintPrice:    uint256.NewInt(50),
		MaxPerWallet: 5,
		HiddenURI:    "ipfs://hidden",
		Owner:        owner,
	}
}

// commit applies cmd and journals it the way the runtime does.
func commit(t *testing.T, c *campaign.Campaign, j *journal.Journal, cmd campaign.Command) {
	t.Helper()
	r, err := c.Apply(context.Background(), cmd)
	require.NoError(t, err)
	require.NoError(t, j.WriteEntry(campaign.JournalEntry{
		Seq: r.Seq, Time: time.Now(), Command: cmd, TokenIDs: r.TokenIDs, Paid: r.Paid, Events: r.Events,
	}))
}

func mint(qty uint64) campaign.Command {
	return campaign.Command{Op: campaign.OpPublicMint, Caller: minter, Quantity: qty, Value: uint256.NewInt(50 * qty)}
}

func TestRecover_FreshThenJournal(t *testing.T) {
	ctx := context.Background()
	l := CampaignLayout(t.TempDir(), "c1")

	c, rec, err := l.Recover(ctx, testConfig(), RecoverOptions{})
	require.NoError(t, err)
	assert.Zero(t, rec.Replayed)
	assert.Empty(t, rec.SnapshotPath)
	assert.Zero(t, c.Seq())

	j := journal.NewJournal(l.Dir)
	commit(t, c, j, campaign.Command{Op: campaign.OpSetPhases, Caller: owner, PublicOpen: true})
	commit(t, c, j, mint(2))
	require.NoError(t, j.Close())

	// A snapshot mid-way, then more journal.
	snap := c.ExportSnapshot()
	require.NoError(t, snapshot.WriteSnapshot(l.SnapshotPath(snap.Header.Seq), snap))
	j = journal.NewJournal(l.Dir)
	commit(t, c, j, mint(1))
	require.NoError(t, j.Close())
	want := c.StateDigest()

	got, rec, err := l.Recover(ctx, testConfig(), RecoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rec.SnapshotSeq)
	assert.Equal(t, 1, rec.Replayed)
	assert.Len(t, rec.Entries, 3)
	assert.Equal(t, want, got.StateDigest())
	assert.Equal(t, uint64(3), got.TotalMinted())

	// Ignoring the snapshot replays everything from the config.
	got, rec, err = l.Recover(ctx, testConfig(), RecoverOptions{SnapshotPath: "-"})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Replayed)
	assert.Equal(t, want, got.StateDigest())
}

func TestRecover_WrongCampaign(t *testing.T) {
	l := CampaignLayout(t.TempDir(), "c1")
	c, err := campaign.New(testConfig())
	require.NoError(t, err)
	snap := c.ExportSnapshot()
	require.NoError(t, snapshot.WriteSnapshot(l.SnapshotPath(0), snap))

	cfg := testConfig()
	cfg.ID = "c2"
	_, _, err = l.Recover(context.Background(), cfg, RecoverOptions{})
	assert.ErrorContains(t, err, "belongs to campaign")
}

func TestDeployment_WrittenOnce(t *testing.T) {
	l := CampaignLayout(t.TempDir(), "c1")
	d := NewDeployment(testConfig(), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "0.00000000000000005", d.MintPriceEth)

	created, err := l.WriteDeploymentOnce(d)
	require.NoError(t, err)
	assert.True(t, created)

	d2 := d
	d2.Name = "Other"
	created, err = l.WriteDeploymentOnce(d2)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := l.ReadDeployment()
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.DeployedAt)

	_, err = CampaignLayout(t.TempDir(), "none").ReadDeployment()
	assert.True(t, os.IsNotExist(err))
}
